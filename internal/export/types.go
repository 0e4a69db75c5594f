// Package export renders stories to downloadable PDF and DOCX documents.
// PDF goes through headless Chrome, DOCX through pandoc; both are runtime
// dependencies the service detects rather than bundles.
package export

import "errors"

type Format string

const (
	FormatPDF  Format = "pdf"
	FormatDOCX Format = "docx"
)

// ParseFormat maps a request string to a known format.
func ParseFormat(s string) (Format, bool) {
	switch Format(s) {
	case FormatPDF, FormatDOCX:
		return Format(s), true
	}
	return "", false
}

// Request names the story to export and how to render it.
type Request struct {
	StoryID         string
	Format          Format
	IncludeComments bool
}

// Result is a finished document ready to stream to the client.
type Result struct {
	Data     []byte
	Filename string
	MimeType string
}

var (
	ErrPDFDependencyMissing  = errors.New("export pdf dependency missing")
	ErrDOCXDependencyMissing = errors.New("export docx dependency missing")
)
