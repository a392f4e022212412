package models

import "time"

type BatchStatus string

const (
	BatchStatusQueued     BatchStatus = "queued"
	BatchStatusProcessing BatchStatus = "processing"
	BatchStatusCompleted  BatchStatus = "completed"
	BatchStatusPartial    BatchStatus = "partial"
	BatchStatusHalted     BatchStatus = "halted"
)

// Batch is one persisted generation run over a set of uploaded files.
type Batch struct {
	ID        string
	Status    BatchStatus
	Options   GenerationRequest
	Files     []BatchFile
	CreatedAt time.Time
	UpdatedAt time.Time
}

type BatchFile struct {
	Filename  string `json:"filename"`
	Bucket    string `json:"bucket"`
	ObjectKey string `json:"objectKey"`
	MIME      string `json:"mime"`
	SizeBytes int64  `json:"sizeBytes"`
}

// Request builds the per-file request from the batch-wide options.
func (b Batch) Request(file BatchFile) GenerationRequest {
	return b.Options.ForFile(file.Filename)
}

// StatusFor derives the terminal batch status from a finished run.
func StatusFor(rows []Row, skipped int) BatchStatus {
	if skipped > 0 {
		return BatchStatusHalted
	}
	for _, row := range rows {
		if row.Failed() {
			return BatchStatusPartial
		}
	}
	return BatchStatusCompleted
}
