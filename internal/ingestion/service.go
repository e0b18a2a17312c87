// Package ingestion imports tabular files (CSV or XLSX) as records of one kind.
package ingestion

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"

	"github.com/raffchen/inventory/internal/domain"
	"github.com/raffchen/inventory/internal/history"
	"github.com/raffchen/inventory/internal/lifecycle"
	"github.com/raffchen/inventory/internal/validation"
)

var (
	// ErrUnsupportedFormat is returned when an uploaded file is not supported.
	ErrUnsupportedFormat = errors.New("unsupported file format")

	byteOrderMark = []byte{0xEF, 0xBB, 0xBF}
)

// Creator creates or resurrects records. lifecycle.Coordinator satisfies it.
type Creator interface {
	Create(ctx context.Context, kind *domain.Kind, id int64, values []domain.FieldValue) (lifecycle.Result, error)
}

// Service imports rows through the regular create path, so every imported row gets
// its create history like any other record.
type Service struct {
	creator Creator
	logger  zerolog.Logger
}

func NewService(creator Creator, logger zerolog.Logger) *Service {
	return &Service{creator: creator, logger: logger}
}

// Request describes the import input.
type Request struct {
	Kind     *domain.Kind
	FileName string
	Data     io.Reader
	// Source annotates the history entries. Defaults to "import:<file name>".
	Source string
}

// RowError reports a row that could not be imported.
type RowError struct {
	Row     int    `json:"row"`
	Message string `json:"message"`
}

// Summary returns import level metrics.
type Summary struct {
	TotalRows   int        `json:"totalRows"`
	Created     int        `json:"created"`
	Resurrected int        `json:"resurrected"`
	InvalidRows int        `json:"invalidRows"`
	Errors      []RowError `json:"errors"`
}

type tableData struct {
	headers []string
	rows    [][]string
	// lines holds the 1-based file line of each data row.
	lines []int
}

// Import creates one record per data row. Columns are matched to fields by header
// name; an `id` column is optional. Empty cells are left out so declared defaults
// apply. A failing row is reported and the import moves on.
func (s *Service) Import(ctx context.Context, req Request) (Summary, error) {
	summary := Summary{Errors: []RowError{}}

	if req.Kind == nil {
		return summary, errors.New("record kind is required")
	}
	if req.Data == nil {
		return summary, errors.New("data reader is required")
	}

	payload, err := io.ReadAll(req.Data)
	if err != nil {
		return summary, fmt.Errorf("failed to read upload: %w", err)
	}
	if len(payload) == 0 {
		return summary, errors.New("file is empty")
	}

	table, err := parseTable(req.FileName, payload)
	if err != nil {
		return summary, err
	}
	if err := checkHeaders(req.Kind, table.headers); err != nil {
		return summary, err
	}

	source := req.Source
	if source == "" {
		source = "import:" + filepath.Base(req.FileName)
	}

	summary.TotalRows = len(table.rows)
	for i, row := range table.rows {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		rowNumber := table.lines[i]

		id, values, err := rowValues(req.Kind, table.headers, row)
		if err == nil {
			values = append(values, domain.FieldValue{Field: history.SourceField, Value: source})
			var res lifecycle.Result
			res, err = s.creator.Create(ctx, req.Kind, id, values)
			if err == nil {
				if res.Transition == lifecycle.TransitionResurrect {
					summary.Resurrected++
				} else {
					summary.Created++
				}
				continue
			}
			if errors.Is(err, domain.ErrStorage) {
				return summary, err
			}
		}

		summary.InvalidRows++
		summary.Errors = append(summary.Errors, RowError{Row: rowNumber, Message: err.Error()})
		s.logger.Warn().Err(err).Str("kind", req.Kind.Name).Int("row", rowNumber).Msg("import row rejected")
	}

	s.logger.Info().
		Str("kind", req.Kind.Name).
		Str("file", req.FileName).
		Int("rows", summary.TotalRows).
		Int("created", summary.Created).
		Int("resurrected", summary.Resurrected).
		Int("invalid", summary.InvalidRows).
		Msg("import finished")
	return summary, nil
}

func checkHeaders(kind *domain.Kind, headers []string) error {
	for _, h := range headers {
		if h == "" || h == domain.FieldID {
			continue
		}
		if _, ok := kind.BusinessField(h); !ok {
			return fmt.Errorf("%w: column %q is not a %s field", domain.ErrInvalidPayload, h, kind.Name)
		}
	}
	return nil
}

// rowValues coerces each cell and applies the same field rules as the HTTP payloads.
func rowValues(kind *domain.Kind, headers, row []string) (int64, []domain.FieldValue, error) {
	var id int64
	values := make([]domain.FieldValue, 0, len(headers))
	for col, h := range headers {
		cell := strings.TrimSpace(row[col])
		if h == "" || cell == "" {
			continue
		}
		if h == domain.FieldID {
			parsed, err := strconv.ParseInt(cell, 10, 64)
			if err != nil || parsed <= 0 {
				return 0, nil, fmt.Errorf("%w: invalid id %q", domain.ErrInvalidPayload, cell)
			}
			id = parsed
			continue
		}
		field, _ := kind.BusinessField(h)
		v, err := field.Coerce(cell)
		if err != nil {
			return 0, nil, fmt.Errorf("%w: %v", domain.ErrInvalidPayload, err)
		}
		if err := validation.Value(kind, field, v); err != nil {
			return 0, nil, err
		}
		values = append(values, domain.FieldValue{Field: h, Value: v})
	}
	return id, values, nil
}

func parseTable(fileName string, payload []byte) (tableData, error) {
	ext := strings.ToLower(filepath.Ext(fileName))
	switch ext {
	case ".csv":
		return parseCSV(payload)
	case ".xlsx":
		return parseExcel(payload)
	default:
		return tableData{}, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
}

func parseCSV(payload []byte) (tableData, error) {
	reader := bufio.NewReader(bytes.NewReader(payload))
	if prefix, err := reader.Peek(len(byteOrderMark)); err == nil && bytes.Equal(prefix, byteOrderMark) {
		_, _ = reader.Discard(len(byteOrderMark))
	}

	csvReader := csv.NewReader(reader)
	csvReader.TrimLeadingSpace = true
	csvReader.FieldsPerRecord = -1

	// encoding/csv skips empty lines, so keep each record's own line for row errors.
	var records [][]string
	var lines []int
	for {
		record, err := csvReader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return tableData{}, fmt.Errorf("failed to read csv: %w", err)
		}
		line, _ := csvReader.FieldPos(0)
		records = append(records, record)
		lines = append(lines, line)
	}
	return normalizeTable(records, lines)
}

func parseExcel(payload []byte) (tableData, error) {
	f, err := excelize.OpenReader(bytes.NewReader(payload))
	if err != nil {
		return tableData{}, fmt.Errorf("failed to open xlsx: %w", err)
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return tableData{}, errors.New("excel file has no sheets")
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return tableData{}, fmt.Errorf("failed to read rows from xlsx: %w", err)
	}
	return normalizeTable(rows, nil)
}

// normalizeTable takes the first non-empty row as the header and drops blank rows.
// lines gives the file line of each record; nil means record i sits on line i+1.
func normalizeTable(records [][]string, lines []int) (tableData, error) {
	if len(records) == 0 {
		return tableData{}, errors.New("no rows found in file")
	}

	var headerRow []string
	var dataRows [][]string
	var dataLines []int
	for idx, row := range records {
		if isBlank(row) {
			continue
		}
		if headerRow == nil {
			headerRow = row
			continue
		}
		line := idx + 1
		if lines != nil {
			line = lines[idx]
		}
		dataRows = append(dataRows, padRow(row, len(headerRow)))
		dataLines = append(dataLines, line)
	}
	if headerRow == nil {
		return tableData{}, errors.New("header row could not be detected")
	}

	return tableData{
		headers: normalizeHeaders(headerRow),
		rows:    dataRows,
		lines:   dataLines,
	}, nil
}

func isBlank(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

// normalizeHeaders maps spreadsheet labels such as "Unit Price" onto field names.
func normalizeHeaders(raw []string) []string {
	headers := make([]string, len(raw))
	for idx, value := range raw {
		name := strings.ToLower(strings.TrimSpace(value))
		name = strings.ReplaceAll(name, " ", "_")
		name = strings.ReplaceAll(name, "-", "_")
		headers[idx] = strings.Trim(name, "_")
	}
	return headers
}

func padRow(row []string, length int) []string {
	if len(row) >= length {
		return row[:length]
	}
	padded := make([]string, length)
	copy(padded, row)
	return padded
}
