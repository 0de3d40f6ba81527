package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// JobTypeIngestPDF is the only job type the ingestion worker consumes.
const JobTypeIngestPDF = "ingest_pdf"

type Job struct {
	ID          string
	Type        string
	PayloadJSON string
	Status      string // "pending", "running", "completed", "failed"
	Attempts    int
	MaxAttempts int
	RunAfter    time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
	LastError   string
}

// Ingestion records one ingestion run. The most recent completed row names
// the document whose vectors are currently live in the index.
type Ingestion struct {
	ID           string
	OriginalName string
	Pages        int
	Status       string // "running", "completed", "failed"
	Error        string
	StartedAt    time.Time
	FinishedAt   time.Time
}
