// Package export renders list query results as XLSX workbooks.
package export

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"

	"github.com/raffchen/inventory/internal/domain"
	"github.com/raffchen/inventory/internal/query"
)

// ContentType is the MIME type of the produced workbook.
const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Lister runs list queries. lifecycle.Coordinator satisfies it.
type Lister interface {
	List(ctx context.Context, kind *domain.Kind, req domain.ListRequest) (query.Page, error)
}

type Service struct {
	lister   Lister
	pageSize int
	now      func() time.Time
	logger   zerolog.Logger
}

type Option func(*Service)

func WithPageSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.pageSize = size
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func NewService(lister Lister, opts ...Option) *Service {
	service := &Service{
		lister:   lister,
		pageSize: 1000,
		now:      time.Now,
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(service)
	}
	return service
}

// Result describes a written workbook.
type Result struct {
	Filename string
	Rows     int
}

// Export writes every record matching req to w as a single-sheet workbook. When req
// carries a range only that window is exported; otherwise the full result set is read
// page by page in the requested order.
func (s *Service) Export(ctx context.Context, kind *domain.Kind, req domain.ListRequest, w io.Writer) (Result, error) {
	f := excelize.NewFile()
	defer func() {
		if err := f.Close(); err != nil {
			s.logger.Warn().Err(err).Msg("failed to close workbook")
		}
	}()

	sheet := kind.Table
	if err := f.SetSheetName(f.GetSheetName(0), sheet); err != nil {
		return Result{}, fmt.Errorf("name sheet: %w", err)
	}
	sw, err := f.NewStreamWriter(sheet)
	if err != nil {
		return Result{}, fmt.Errorf("open sheet writer: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return Result{}, fmt.Errorf("create header style: %w", err)
	}
	headers := columnNames(kind)
	headerRow := make([]interface{}, len(headers))
	for i, h := range headers {
		headerRow[i] = h
	}
	if err := sw.SetRow("A1", headerRow, excelize.RowOpts{StyleID: headerStyle}); err != nil {
		return Result{}, fmt.Errorf("write header: %w", err)
	}

	rows := 0
	writePage := func(records []domain.Record) error {
		for _, rec := range records {
			cell, err := excelize.CoordinatesToCellName(1, rows+2)
			if err != nil {
				return err
			}
			if err := sw.SetRow(cell, rowValues(kind, rec)); err != nil {
				return fmt.Errorf("write %s %d: %w", kind.Name, rec.ID, err)
			}
			rows++
		}
		return nil
	}

	if req.Range != nil {
		page, err := s.lister.List(ctx, kind, req)
		if err != nil {
			return Result{}, err
		}
		if err := writePage(page.Records); err != nil {
			return Result{}, err
		}
	} else {
		offset := 0
		for {
			if ctx.Err() != nil {
				return Result{}, ctx.Err()
			}
			paged := req
			paged.Range = &domain.PageRange{Start: offset, End: offset + s.pageSize}
			page, err := s.lister.List(ctx, kind, paged)
			if err != nil {
				return Result{}, err
			}
			if err := writePage(page.Records); err != nil {
				return Result{}, err
			}
			if len(page.Records) < s.pageSize {
				break
			}
			offset += s.pageSize
		}
	}

	if err := sw.Flush(); err != nil {
		return Result{}, fmt.Errorf("flush sheet: %w", err)
	}
	if _, err := f.WriteTo(w); err != nil {
		return Result{}, fmt.Errorf("write workbook: %w", err)
	}

	res := Result{Filename: s.fileName(kind), Rows: rows}
	s.logger.Info().Str("kind", kind.Name).Int("rows", rows).Str("file", res.Filename).Msg("export written")
	return res, nil
}

func (s *Service) fileName(kind *domain.Kind) string {
	base := sanitizeFileComponent(kind.Table)
	if base == "" {
		base = "inventory-export"
	}
	return fmt.Sprintf("%s-%s.xlsx", base, s.now().UTC().Format("20060102-150405"))
}

func columnNames(kind *domain.Kind) []string {
	names := []string{domain.FieldID}
	names = append(names, kind.FieldNames()...)
	return append(names, domain.FieldCreatedAt, domain.FieldUpdatedAt, domain.FieldDeletedAt)
}

// rowValues maps a record onto cell values. Decimals are written as numbers, so the
// sheet shows them without trailing zeros.
func rowValues(kind *domain.Kind, rec domain.Record) []interface{} {
	names := columnNames(kind)
	row := make([]interface{}, len(names))
	for i, name := range names {
		row[i] = cellValue(rec.Value(name))
	}
	return row
}

func cellValue(value any) any {
	switch v := value.(type) {
	case nil:
		return nil
	case time.Time:
		return domain.FormatTimestamp(v)
	case interface{ InexactFloat64() float64 }:
		return v.InexactFloat64()
	}
	return value
}

func sanitizeFileComponent(value string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	if value == "" {
		return ""
	}
	builder := strings.Builder{}
	for _, r := range value {
		switch {
		case r >= 'a' && r <= 'z':
			builder.WriteRune(r)
		case r >= '0' && r <= '9':
			builder.WriteRune(r)
		case r == '-' || r == '_':
			builder.WriteRune(r)
		default:
			builder.WriteRune('-')
		}
	}
	return strings.Trim(builder.String(), "-")
}
