package imports

import (
	"crypto/md5"
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"
)

// FileAnalysis is the parsed shape of an uploaded file: the header row plus
// every data row keyed by header.
type FileAnalysis struct {
	Headers []string
	Rows    []map[string]string
}

func (a *FileAnalysis) Sample(n int) []map[string]string {
	if len(a.Rows) <= n {
		return a.Rows
	}
	return a.Rows[:n]
}

// AnalyzeFile parses a CSV or XLSX upload. The first row is the header row;
// short data rows are padded with empty cells.
func AnalyzeFile(file io.Reader, filename string) (*FileAnalysis, error) {
	lower := strings.ToLower(filename)
	switch {
	case strings.HasSuffix(lower, ".csv"):
		return parseCSV(file)
	case strings.HasSuffix(lower, ".xlsx"), strings.HasSuffix(lower, ".xls"):
		return parseExcel(file)
	default:
		return nil, fmt.Errorf("unsupported file format")
	}
}

func parseCSV(file io.Reader) (*FileAnalysis, error) {
	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1

	headers, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV headers: %w", err)
	}
	for i := range headers {
		headers[i] = strings.TrimSpace(headers[i])
	}

	analysis := &FileAnalysis{Headers: headers}
	for {
		rec, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read CSV row: %w", err)
		}
		row := make(map[string]string, len(headers))
		for i, h := range headers {
			if i < len(rec) {
				row[h] = rec[i]
			} else {
				row[h] = ""
			}
		}
		analysis.Rows = append(analysis.Rows, row)
	}
	return analysis, nil
}

func parseExcel(file io.Reader) (*FileAnalysis, error) {
	f, err := excelize.OpenReader(file)
	if err != nil {
		return nil, fmt.Errorf("failed to open Excel file: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("no sheets found in Excel file")
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read Excel rows: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("Excel file is empty")
	}

	headers := rows[0]
	for i := range headers {
		headers[i] = strings.TrimSpace(headers[i])
	}
	analysis := &FileAnalysis{Headers: headers}
	for i := 1; i < len(rows); i++ {
		row := make(map[string]string, len(headers))
		for j, h := range headers {
			if j < len(rows[i]) {
				row[h] = rows[i][j]
			} else {
				row[h] = ""
			}
		}
		analysis.Rows = append(analysis.Rows, row)
	}
	return analysis, nil
}

// CompositeFileHash fingerprints an upload for the duplicate guard: the
// content hash catches byte-identical re-uploads, the metadata hash scopes
// the guard to one user and destination connection. The filename stays out so
// a renamed identical file still trips the guard.
func CompositeFileHash(content []byte, userID, connectionID string) string {
	contentSum := sha256.Sum256(content)
	metaSum := md5.Sum([]byte(userID + "|" + connectionID))
	return hex.EncodeToString(contentSum[:]) + "-" + hex.EncodeToString(metaSum[:])
}
