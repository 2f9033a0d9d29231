package extract

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strings"
)

type docxDocument struct {
	Body struct {
		Paragraphs []docxParagraph `xml:"p"`
	} `xml:"body"`
}

type docxParagraph struct {
	Runs []struct {
		Text []struct {
			Content string `xml:",chardata"`
		} `xml:"t"`
	} `xml:"r"`
}

func docxText(data []byte) (string, error) {
	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open docx archive failed: %w", err)
	}

	for _, file := range reader.File {
		if file.Name != "word/document.xml" {
			continue
		}
		if file.UncompressedSize64 > uint64(maxUncompressedBytes) {
			return "", fmt.Errorf("docx body is %d bytes: %w", file.UncompressedSize64, ErrContentTooLarge)
		}
		rc, err := file.Open()
		if err != nil {
			return "", fmt.Errorf("open docx body failed: %w", err)
		}
		content, err := io.ReadAll(io.LimitReader(rc, maxUncompressedBytes+1))
		rc.Close()
		if err != nil {
			return "", fmt.Errorf("read docx body failed: %w", err)
		}
		if int64(len(content)) > maxUncompressedBytes {
			return "", fmt.Errorf("docx body: %w", ErrContentTooLarge)
		}

		var doc docxDocument
		if err := xml.Unmarshal(content, &doc); err != nil {
			return "", fmt.Errorf("parse docx body failed: %w", err)
		}

		var out strings.Builder
		for i, para := range doc.Body.Paragraphs {
			if i > 0 {
				out.WriteString("\n")
			}
			for _, run := range para.Runs {
				for _, t := range run.Text {
					out.WriteString(t.Content)
				}
			}
		}
		return strings.TrimSpace(out.String()), nil
	}
	return "", fmt.Errorf("docx has no word/document.xml")
}
