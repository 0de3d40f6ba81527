package chat

import (
	"fmt"
	"strings"
)

const genericInstruction = "You are a helpful assistant. Answer the user's question clearly and concisely."

const groundedInstruction = "You are a helpful assistant answering questions about a document the user uploaded. " +
	"Use the excerpts below as your primary source. If the excerpts do not contain the answer, " +
	"say so before answering from general knowledge."

// systemPrompt builds the system instruction for a question. With retrieved
// docs it embeds their text verbatim with page attribution; without docs it
// falls back to the generic assistant instruction.
func systemPrompt(docs []Doc) string {
	if len(docs) == 0 {
		return genericInstruction
	}

	var sb strings.Builder
	sb.WriteString(groundedInstruction)
	sb.WriteString("\n\n")
	for i, d := range docs {
		fmt.Fprintf(&sb, "[Excerpt %d | %s, page %d]\n", i+1, d.Source, d.Page)
		sb.WriteString(d.Text)
		sb.WriteString("\n\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}
