package service

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"member-onboarding/internal/models"

	"github.com/xuri/excelize/v2"
)

// ParseUpload decodes an uploaded member file into a raw table. Only the
// first sheet of a workbook is read. Fully blank rows are dropped here and
// never receive a row number.
func ParseUpload(filename string, content []byte) (models.RawTable, error) {
	if len(content) == 0 {
		return models.RawTable{}, &models.FileError{Reason: "file is empty"}
	}

	var (
		rows  [][]string
		lines []int
		err   error
	)
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".xlsx":
		rows, lines, err = readWorkbook(content)
	case ".csv":
		rows, lines, err = readCSV(content)
	default:
		return models.RawTable{}, &models.FileError{Reason: "unsupported file type, expected .xlsx or .csv"}
	}
	if err != nil {
		return models.RawTable{}, err
	}

	if len(rows) == 0 || isBlankRow(rows[0]) {
		return models.RawTable{}, &models.FileError{Reason: "header row is missing"}
	}

	// Data rows are numbered by their position below the header so the
	// number matches what an operator sees in the file.
	table := models.RawTable{Headers: rows[0]}
	for i := 1; i < len(rows); i++ {
		if isBlankRow(rows[i]) {
			continue
		}
		table.Rows = append(table.Rows, models.RawRow{Number: lines[i] - lines[0], Cells: rows[i]})
	}
	return table, nil
}

func readWorkbook(content []byte) ([][]string, []int, error) {
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return nil, nil, &models.FileError{Reason: fmt.Sprintf("failed to open Excel file: %v", err)}
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil, &models.FileError{Reason: "no sheets found in Excel file"}
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, nil, &models.FileError{Reason: fmt.Sprintf("failed to read rows: %v", err)}
	}

	// GetRows keeps interior empty rows, so the index is the sheet row.
	lines := make([]int, len(rows))
	for i := range rows {
		lines[i] = i + 1
	}
	return rows, lines, nil
}

func readCSV(content []byte) ([][]string, []int, error) {
	content = bytes.TrimPrefix(content, []byte("\xef\xbb\xbf"))

	reader := csv.NewReader(bytes.NewReader(content))
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	var (
		rows  [][]string
		lines []int
	)
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, nil, &models.FileError{Reason: fmt.Sprintf("malformed CSV: %v", err)}
		}
		// The csv reader skips empty lines; FieldPos keeps numbering aligned.
		line, _ := reader.FieldPos(0)
		rows = append(rows, record)
		lines = append(lines, line)
	}
	return rows, lines, nil
}

func isBlankRow(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
