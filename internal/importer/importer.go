// Package importer turns uploaded prospect batches (CSV or Excel) into the
// labeled prompts the engine works on.
package importer

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Batch is a parsed upload: the header row plus one string map per record,
// keyed by header.
type Batch struct {
	Headers []string
	Records []map[string]string
}

// Parse reads an uploaded file by extension: .xlsx through excelize,
// anything else as CSV.
func Parse(filename string, data []byte) (*Batch, error) {
	if strings.EqualFold(filepath.Ext(filename), ".xlsx") {
		return parseXLSX(data)
	}
	return parseCSV(data)
}

func parseCSV(data []byte) (*Batch, error) {
	data = bytes.TrimPrefix(data, []byte{0xEF, 0xBB, 0xBF})

	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	var rows [][]string
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse csv: %w", err)
		}
		rows = append(rows, record)
	}
	return fromRows(rows)
}

func parseXLSX(data []byte) (*Batch, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parse xlsx: %w", err)
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("parse xlsx: workbook has no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("parse xlsx: %w", err)
	}
	return fromRows(rows)
}

// fromRows builds the batch from raw rows: first non-empty row is the
// header, blank records are skipped.
func fromRows(rows [][]string) (*Batch, error) {
	if len(rows) < 2 {
		return nil, fmt.Errorf("batch needs a header row and at least one record")
	}

	headers := make([]string, len(rows[0]))
	for i, h := range rows[0] {
		headers[i] = strings.Trim(strings.TrimSpace(h), `"'`)
	}

	batch := &Batch{Headers: headers}
	for _, raw := range rows[1:] {
		if isBlank(raw) {
			continue
		}
		record := make(map[string]string, len(headers))
		for i, h := range headers {
			val := ""
			if i < len(raw) {
				val = strings.Trim(strings.TrimSpace(raw[i]), `"'`)
			}
			record[h] = val
		}
		batch.Records = append(batch.Records, record)
	}
	if len(batch.Records) == 0 {
		return nil, fmt.Errorf("batch has no records")
	}
	return batch, nil
}

func isBlank(fields []string) bool {
	for _, f := range fields {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}
