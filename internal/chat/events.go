package chat

// Stream events form a tagged union: exactly one metadata event, zero or more
// content events, then exactly one terminal done-or-error event. Failures
// discovered mid-stream ride the error event because the transport has
// already committed to a success status by then.

const (
	eventMetadata = "metadata"
	eventContent  = "content"
	eventDone     = "done"
	eventError    = "error"
)

// Doc is one retrieved chunk attached to a metadata event.
type Doc struct {
	Text   string  `json:"text"`
	Source string  `json:"source"`
	Page   int     `json:"page"`
	Score  float32 `json:"score"`
}

// RetrievalOK / RetrievalFailed are the metadata retrievalStatus values.
const (
	RetrievalOK     = "ok"
	RetrievalFailed = "failed"
)

type MetadataEvent struct {
	Type            string `json:"type"`
	Docs            []Doc  `json:"docs"`
	RetrievalStatus string `json:"retrievalStatus"`
}

type ContentEvent struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

type DoneEvent struct {
	Type string `json:"type"`
}

type ErrorEvent struct {
	Type              string `json:"type"`
	Status            string `json:"status"`
	Error             string `json:"error"`
	Message           string `json:"message"`
	Hint              string `json:"hint,omitempty"`
	RetryAfterSeconds int    `json:"retryAfterSeconds,omitempty"`
}

func newMetadataEvent(docs []Doc, status string) MetadataEvent {
	if docs == nil {
		docs = []Doc{}
	}
	return MetadataEvent{Type: eventMetadata, Docs: docs, RetrievalStatus: status}
}

func newContentEvent(content string) ContentEvent {
	return ContentEvent{Type: eventContent, Content: content}
}

func newDoneEvent() DoneEvent {
	return DoneEvent{Type: eventDone}
}
