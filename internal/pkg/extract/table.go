package extract

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

func csvRows(data []byte) ([]string, error) {
	reader := csv.NewReader(bytes.NewReader(bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read csv header failed: %w", err)
	}

	var rows []string
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv row failed: %w", err)
		}
		if line := formatRow(header, record); line != "" {
			rows = append(rows, line)
		}
	}
	return rows, nil
}

// spreadsheetRows reads every sheet; the first row of each sheet is its header.
func spreadsheetRows(data []byte) ([]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data), excelize.Options{
		UnzipSizeLimit:    maxUncompressedBytes,
		UnzipXMLSizeLimit: min(maxUncompressedBytes, 16<<20),
	})
	if err != nil {
		return nil, fmt.Errorf("open spreadsheet failed: %w", err)
	}
	defer f.Close()

	var rows []string
	for _, sheet := range f.GetSheetList() {
		records, err := f.GetRows(sheet)
		if err != nil {
			return nil, fmt.Errorf("read sheet %q failed: %w", sheet, err)
		}
		if len(records) < 2 {
			continue
		}
		header := records[0]
		for _, record := range records[1:] {
			if line := formatRow(header, record); line != "" {
				rows = append(rows, line)
			}
		}
	}
	return rows, nil
}
