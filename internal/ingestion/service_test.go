package ingestion

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"

	"github.com/raffchen/inventory/internal/db"
	"github.com/raffchen/inventory/internal/domain"
	"github.com/raffchen/inventory/internal/lifecycle"
	"github.com/raffchen/inventory/internal/repository"
)

func newTestCoordinator(t *testing.T) *lifecycle.Coordinator {
	t.Helper()
	bdb, err := db.OpenBadger(db.BadgerConfig{InMemory: true}, zerolog.Nop())
	if err != nil {
		t.Fatalf("failed to open in-memory badger: %v", err)
	}
	store := repository.NewBadgerStore(bdb)
	t.Cleanup(func() { _ = store.Close() })
	return lifecycle.NewCoordinator(store, lifecycle.WithClock(func() time.Time {
		return time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	}))
}

func TestImport_CSVCreatesRecordsAndReportsBadRows(t *testing.T) {
	coord := newTestCoordinator(t)
	svc := NewService(coord, zerolog.Nop())

	csvData := "\xEF\xBB\xBFid,Lens Type,Sphere,Cylinder,Unit Price,Quantity,Storage Limit\n" +
		"1,CR39,-2.00,-0.75,45,42,100\n" +
		"2,Trivex,not-a-number,0,60,10,\n" +
		",Polycarbonate,-1.25,0,55,,80\n"

	summary, err := svc.Import(context.Background(), Request{
		Kind:     domain.Lenses,
		FileName: "stock.csv",
		Data:     strings.NewReader(csvData),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary.TotalRows != 3 || summary.Created != 2 || summary.InvalidRows != 1 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	if summary.Errors[0].Row != 3 {
		t.Fatalf("expected the bad row to be reported as row 3, got %d", summary.Errors[0].Row)
	}

	rec, err := coord.Get(context.Background(), domain.Lenses, 1)
	if err != nil {
		t.Fatalf("expected imported lens: %v", err)
	}
	if rec.Values["lens_type"] != "CR39" || rec.Values["storage_limit"] != int64(100) {
		t.Fatalf("unexpected record values: %v", rec.Values)
	}

	entries, err := coord.History(context.Background(), domain.Lenses, 1)
	if err != nil {
		t.Fatalf("unexpected history error: %v", err)
	}
	if len(entries) != len(domain.Lenses.Fields) {
		t.Fatalf("expected one create entry per field, got %d", len(entries))
	}
	if entries[0].Source == nil || *entries[0].Source != "import:stock.csv" {
		t.Fatalf("expected import source annotation, got %v", entries[0].Source)
	}

	// The row without an id got the next id and the default quantity.
	page, err := coord.List(context.Background(), domain.Lenses, domain.ListRequest{})
	if err != nil {
		t.Fatalf("unexpected list error: %v", err)
	}
	if page.Total != 2 || page.Records[1].Values["quantity"] != int64(0) {
		t.Fatalf("unexpected records: %+v", page.Records)
	}
}

func TestImport_XLSX(t *testing.T) {
	coord := newTestCoordinator(t)
	svc := NewService(coord, zerolog.Nop())

	f := excelize.NewFile()
	defer f.Close()
	rows := [][]interface{}{
		{"name", "quantity"},
		{"bolt", 5},
		{"nut", 7},
	}
	for i, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow("Sheet1", cell, &row); err != nil {
			t.Fatalf("failed to build workbook: %v", err)
		}
	}
	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		t.Fatalf("failed to write workbook: %v", err)
	}

	summary, err := svc.Import(context.Background(), Request{Kind: domain.Products, FileName: "products.xlsx", Data: &buf})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary.Created != 2 || summary.InvalidRows != 0 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
}

func TestImport_ResurrectsDeletedRecord(t *testing.T) {
	coord := newTestCoordinator(t)
	svc := NewService(coord, zerolog.Nop())
	ctx := context.Background()

	if _, err := coord.Create(ctx, domain.Products, 1, []domain.FieldValue{{Field: "name", Value: "bolt"}, {Field: "quantity", Value: int64(5)}}); err != nil {
		t.Fatalf("seed failed: %v", err)
	}
	if _, err := coord.Delete(ctx, domain.Products, 1); err != nil {
		t.Fatalf("delete failed: %v", err)
	}

	summary, err := svc.Import(ctx, Request{Kind: domain.Products, FileName: "p.csv", Data: strings.NewReader("id,name,quantity\n1,bolt,9\n")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary.Resurrected != 1 {
		t.Fatalf("expected a resurrection, got %+v", summary)
	}
}

func TestImport_RejectsUnknownColumnsAndFormats(t *testing.T) {
	svc := NewService(newTestCoordinator(t), zerolog.Nop())

	if _, err := svc.Import(context.Background(), Request{
		Kind: domain.Products, FileName: "p.csv", Data: strings.NewReader("name,colour\nbolt,red\n"),
	}); err == nil {
		t.Fatalf("expected unknown column to be rejected")
	}
	if _, err := svc.Import(context.Background(), Request{
		Kind: domain.Products, FileName: "p.json", Data: strings.NewReader("[]"),
	}); err == nil {
		t.Fatalf("expected unsupported format to be rejected")
	}
}

func TestImport_RejectsCellsOutsideColumnLimits(t *testing.T) {
	coord := newTestCoordinator(t)
	svc := NewService(coord, zerolog.Nop())
	ctx := context.Background()

	csvData := "id,lens_type,sphere,cylinder,unit_price,quantity\n" +
		"1,CR39,-2.239,0,45,1\n" +
		"2,Trivex,150,0,10,1\n" +
		"3,Hi-Index,1.00,0,-5,1\n" +
		"4,Polycarbonate,-1.25,0,30,2\n"

	summary, err := svc.Import(ctx, Request{Kind: domain.Lenses, FileName: "stock.csv", Data: strings.NewReader(csvData)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary.Created != 1 || summary.InvalidRows != 3 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	for i, want := range []int{2, 3, 4} {
		if summary.Errors[i].Row != want {
			t.Fatalf("expected error %d on line %d, got %+v", i, want, summary.Errors[i])
		}
	}
	if !strings.Contains(summary.Errors[0].Message, "decimal places") {
		t.Fatalf("expected a scale error, got %q", summary.Errors[0].Message)
	}
	if !strings.Contains(summary.Errors[1].Message, "99.99") {
		t.Fatalf("expected a precision error, got %q", summary.Errors[1].Message)
	}

	for _, id := range []int64{1, 2, 3} {
		if _, err := coord.Get(ctx, domain.Lenses, id); !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("expected lens %d to be skipped, got %v", id, err)
		}
	}
}

func TestImport_ReportsFileLinesAcrossBlankLines(t *testing.T) {
	svc := NewService(newTestCoordinator(t), zerolog.Nop())

	csvData := "name,quantity\n" +
		"bolt,5\n" +
		"\n" +
		",\n" +
		"nut,many\n" +
		"washer,3\n"

	summary, err := svc.Import(context.Background(), Request{Kind: domain.Products, FileName: "p.csv", Data: strings.NewReader(csvData)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary.TotalRows != 3 || summary.Created != 2 || summary.InvalidRows != 1 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	if summary.Errors[0].Row != 5 {
		t.Fatalf("expected the bad row on line 5, got %d", summary.Errors[0].Row)
	}
}

func TestNormalizeTable_KeepsSpreadsheetRowNumbers(t *testing.T) {
	table, err := normalizeTable([][]string{{}, {"name", "quantity"}, {"bolt", "1"}, {}, {"nut", "2"}}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(table.lines) != 2 || table.lines[0] != 3 || table.lines[1] != 5 {
		t.Fatalf("expected data rows on lines 3 and 5, got %v", table.lines)
	}
}
