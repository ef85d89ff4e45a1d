// Package extract converts uploaded files into plain text.
package extract

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/docuchat/docuchat/internal/models"
)

// Extractor converts raw file bytes into plain text.
type Extractor struct{}

// NewExtractor returns a new Extractor.
func NewExtractor() *Extractor {
	return &Extractor{}
}

// FormatForFilename maps a filename extension to a supported file format.
// The second return value is false for unsupported extensions.
func FormatForFilename(filename string) (models.FileFormat, bool) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		return models.FormatPDF, true
	case ".txt", ".md":
		return models.FormatText, true
	case ".docx":
		return models.FormatDocx, true
	default:
		return "", false
	}
}

// Extensions lists the accepted upload extensions.
func Extensions() []string {
	return []string{".pdf", ".txt", ".md", ".docx"}
}

// Extract returns the text content of the file for the given format.
func (e *Extractor) Extract(content []byte, format models.FileFormat) (string, error) {
	switch format {
	case models.FormatPDF:
		return extractPDF(content)
	case models.FormatDocx:
		return extractDocx(content)
	case models.FormatText:
		return extractPlain(content)
	default:
		return "", fmt.Errorf("unsupported format: %s", format)
	}
}
