package models

import (
	"time"
)

// FileFormat is the detected upload format.
type FileFormat string

const (
	FormatPDF  FileFormat = "pdf"
	FormatText FileFormat = "text"
	FormatDocx FileFormat = "docx"
)

// DocumentStatus is the ingestion lifecycle state. Transitions only move
// forward: pending -> processing -> completed | failed. A terminal status is
// left only by an explicit reprocess request.
type DocumentStatus string

const (
	StatusPending    DocumentStatus = "pending"
	StatusProcessing DocumentStatus = "processing"
	StatusCompleted  DocumentStatus = "completed"
	StatusFailed     DocumentStatus = "failed"
)

// Terminal reports whether the status ends an ingestion attempt.
func (s DocumentStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// FailureStage identifies which pipeline stage recorded a failure.
type FailureStage string

const (
	StageExtract  FailureStage = "extract"
	StageClassify FailureStage = "classify"
	StageEmbed    FailureStage = "embed"
	StagePersist  FailureStage = "persist"
)

// DocumentTypes lists the classification labels the classifier may assign.
var DocumentTypes = []string{"contract", "invoice", "report", "letter", "other"}

// Document is the metadata record for one uploaded file.
type Document struct {
	ID               string         `json:"id"`
	Filename         string         `json:"filename"`
	OriginalFilename string         `json:"originalFilename"`
	Size             int64          `json:"size"`
	Format           FileFormat     `json:"format"`
	DocumentType     string         `json:"documentType,omitempty"`
	Status           DocumentStatus `json:"status"`
	FailureStage     FailureStage   `json:"failureStage,omitempty"`
	FailureReason    string         `json:"failureReason,omitempty"`
	ExtractedData    map[string]any `json:"extractedData,omitempty"`
	Metadata         map[string]any `json:"metadata,omitempty"`
	VectorPartition  string         `json:"vectorPartition,omitempty"`
	CreatedAt        time.Time      `json:"createdAt"`
	UpdatedAt        time.Time      `json:"updatedAt"`
}

// Chunk is the unit of embedding and retrieval. Chunks live in the vector
// index; DocumentType and Filename are denormalized there so search results
// can be displayed without a join.
type Chunk struct {
	ID           string    `json:"id"`
	DocumentID   string    `json:"documentId"`
	Index        int       `json:"index"`
	Text         string    `json:"text"`
	DocumentType string    `json:"documentType,omitempty"`
	Filename     string    `json:"filename,omitempty"`
	Vector       []float64 `json:"-"`
}
