// Package extract turns uploaded file bytes into plain text or table rows.
package extract

import (
	"errors"
	"mime"
	"path/filepath"
	"strconv"
	"strings"
)

const (
	MimePDF      = "application/pdf"
	MimeDOCX     = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	MimeText     = "text/plain"
	MimeMarkdown = "text/markdown"
	MimeCSV      = "text/csv"
	MimeXLSX     = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	MimeXLS      = "application/vnd.ms-excel"
)

var (
	ErrUnsupportedType = errors.New("unsupported mime type")
	ErrContentTooLarge = errors.New("decompressed content too large")
)

// maxUncompressedBytes caps how much a zip-based upload may inflate to.
var maxUncompressedBytes int64 = 50 << 20

var docTypes = map[string]string{
	MimePDF:      "pdf",
	MimeDOCX:     "docx",
	MimeText:     "text",
	MimeMarkdown: "markdown",
	MimeCSV:      "csv",
	MimeXLSX:     "xlsx",
	MimeXLS:      "xls",
}

var extensions = map[string]string{
	".pdf":      MimePDF,
	".docx":     MimeDOCX,
	".txt":      MimeText,
	".md":       MimeMarkdown,
	".markdown": MimeMarkdown,
	".csv":      MimeCSV,
	".xlsx":     MimeXLSX,
	".xls":      MimeXLS,
}

// Normalize strips media-type parameters and lowercases the type. When the
// declared type is missing or generic, the filename extension decides.
func Normalize(declared, filename string) string {
	mediaType := strings.ToLower(strings.TrimSpace(declared))
	if parsed, _, err := mime.ParseMediaType(mediaType); err == nil {
		mediaType = parsed
	}
	if _, ok := docTypes[mediaType]; ok {
		return mediaType
	}
	if byExt, ok := extensions[strings.ToLower(filepath.Ext(filename))]; ok {
		if mediaType == "" || mediaType == "application/octet-stream" {
			return byExt
		}
	}
	return mediaType
}

func Supported(mimeType string) bool {
	_, ok := docTypes[mimeType]
	return ok
}

// DocType is the short name stored with a document, e.g. "pdf".
func DocType(mimeType string) string {
	return docTypes[mimeType]
}

// IsTabular reports whether the type is read as rows rather than prose.
func IsTabular(mimeType string) bool {
	switch mimeType {
	case MimeCSV, MimeXLSX, MimeXLS:
		return true
	}
	return false
}

// Text extracts prose from a non-tabular document.
func Text(data []byte, mimeType string) (string, error) {
	switch mimeType {
	case MimePDF:
		return pdfText(data)
	case MimeDOCX:
		return docxText(data)
	case MimeText, MimeMarkdown:
		return strings.ToValidUTF8(string(data), ""), nil
	default:
		return "", ErrUnsupportedType
	}
}

// Rows extracts one "key: value" line per data row of a tabular document.
func Rows(data []byte, mimeType string) ([]string, error) {
	switch mimeType {
	case MimeCSV:
		return csvRows(data)
	case MimeXLSX, MimeXLS:
		return spreadsheetRows(data)
	default:
		return nil, ErrUnsupportedType
	}
}

// GroupRows joins rows into blocks of at most perBlock rows.
func GroupRows(rows []string, perBlock int) []string {
	if perBlock < 1 {
		perBlock = 1
	}
	blocks := make([]string, 0, (len(rows)+perBlock-1)/perBlock)
	for start := 0; start < len(rows); start += perBlock {
		end := min(start+perBlock, len(rows))
		blocks = append(blocks, strings.Join(rows[start:end], "\n"))
	}
	return blocks
}

// formatRow renders a record against its header. Blank cells are left out and
// a row with no values yields "".
func formatRow(header, record []string) string {
	parts := make([]string, 0, len(record))
	for i, cell := range record {
		value := strings.TrimSpace(cell)
		if value == "" {
			continue
		}
		key := ""
		if i < len(header) {
			key = strings.TrimSpace(header[i])
		}
		if key == "" {
			key = "column_" + strconv.Itoa(i+1)
		}
		parts = append(parts, key+": "+value)
	}
	return strings.Join(parts, ", ")
}
