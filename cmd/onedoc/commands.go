package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/spf13/cobra"
)

// --- upload ---

var uploadCmd = &cobra.Command{
	Use:   "upload <file.pdf>",
	Short: "Upload a PDF, replacing the currently indexed document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.postFile(cmd.Context(), "/upload", args[0])
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("reading response: %w", err)
		}
		if resp.StatusCode >= 400 {
			return fmt.Errorf("server returned %d: %s", resp.StatusCode, body)
		}

		var result map[string]string
		if err := json.Unmarshal(body, &result); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}

		printSuccess("%s", result["message"])
		return nil
	},
}

// --- ask ---

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask a question about the indexed document",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		question := strings.Join(args, " ")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.getStream(cmd.Context(), "/chat", url.Values{"message": {question}})
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 400 {
			body, _ := io.ReadAll(resp.Body)
			return fmt.Errorf("server returned %d: %s", resp.StatusCode, body)
		}

		return printAnswerStream(resp.Body)
	},
}

// chatEvent is the decoded shape of one streamed event; fields are sparse
// depending on the event type.
type chatEvent struct {
	Type            string `json:"type"`
	Content         string `json:"content"`
	RetrievalStatus string `json:"retrievalStatus"`
	Docs            []struct {
		Source string `json:"source"`
		Page   int    `json:"page"`
	} `json:"docs"`
	Message           string `json:"message"`
	Hint              string `json:"hint"`
	RetryAfterSeconds int    `json:"retryAfterSeconds"`
}

func printAnswerStream(r io.Reader) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	for scanner.Scan() {
		payload, ok := strings.CutPrefix(scanner.Text(), "data: ")
		if !ok {
			continue
		}

		var ev chatEvent
		if err := json.Unmarshal([]byte(payload), &ev); err != nil {
			return fmt.Errorf("invalid event from server: %w", err)
		}

		switch ev.Type {
		case "metadata":
			if ev.RetrievalStatus != "ok" {
				printWarning("retrieval unavailable, answering without document context")
			}
			for _, d := range ev.Docs {
				printStatus("Source", "%s, page %d", d.Source, d.Page)
			}
		case "content":
			fmt.Print(ev.Content)
		case "done":
			fmt.Println()
			return nil
		case "error":
			fmt.Println()
			if ev.Hint != "" {
				printWarning("%s", ev.Hint)
			}
			if ev.RetryAfterSeconds > 0 {
				printWarning("retry in %d seconds", ev.RetryAfterSeconds)
			}
			return fmt.Errorf("model error: %s", ev.Message)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading stream: %w", err)
	}
	return fmt.Errorf("stream ended without a terminal event")
}
