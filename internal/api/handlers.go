package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/raffchen/inventory/internal/domain"
	"github.com/raffchen/inventory/internal/export"
	"github.com/raffchen/inventory/internal/ingestion"
	"github.com/raffchen/inventory/internal/lifecycle"
	"github.com/raffchen/inventory/internal/middleware"
	"github.com/raffchen/inventory/internal/query"
)

// TotalCountHeader carries the pre-range total of a list response.
const TotalCountHeader = "X-Total-Count"

// RecordService is the set of record operations the handlers drive.
type RecordService interface {
	Create(ctx context.Context, kind *domain.Kind, id int64, values []domain.FieldValue) (lifecycle.Result, error)
	Update(ctx context.Context, kind *domain.Kind, id int64, values []domain.FieldValue) (lifecycle.Result, error)
	Delete(ctx context.Context, kind *domain.Kind, id int64) (lifecycle.Result, error)
	Get(ctx context.Context, kind *domain.Kind, id int64) (domain.Record, error)
	GetMany(ctx context.Context, kind *domain.Kind, ids []int64) ([]domain.Record, error)
	List(ctx context.Context, kind *domain.Kind, req domain.ListRequest) (query.Page, error)
	History(ctx context.Context, kind *domain.Kind, id int64) ([]domain.HistoryEntry, error)
}

// Handlers serves the inventory resources.
type Handlers struct {
	records  RecordService
	exporter *export.Service
	importer *ingestion.Service
	logger   zerolog.Logger
}

func NewHandlers(records RecordService, exporter *export.Service, importer *ingestion.Service, logger zerolog.Logger) *Handlers {
	return &Handlers{records: records, exporter: exporter, importer: importer, logger: logger}
}

// listRequest reads sort, range, filter and show_deleted from the query string.
func listRequest(c *gin.Context) (domain.ListRequest, error) {
	var req domain.ListRequest
	var err error
	if req.Sort, err = query.ParseSort(c.Query("sort")); err != nil {
		return req, err
	}
	if req.Range, err = query.ParseRange(c.Query("range")); err != nil {
		return req, err
	}
	if req.Filter, err = query.ParseFilter(c.Query("filter")); err != nil {
		return req, err
	}
	if raw := strings.TrimSpace(c.Query("show_deleted")); raw != "" {
		req.ShowDeleted, err = strconv.ParseBool(raw)
		if err != nil {
			return req, fmt.Errorf("%w: show_deleted must be a boolean", domain.ErrInvalidFilterValue)
		}
	}
	return req, nil
}

func pathID(c *gin.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: id must be a positive integer", domain.ErrInvalidPayload)
	}
	return id, nil
}

// queryIDs accepts both ?id=1&id=2 and ?ids=1,2.
func queryIDs(c *gin.Context) ([]int64, error) {
	raw := c.QueryArray("id")
	for _, list := range c.QueryArray("ids") {
		raw = append(raw, strings.Split(list, ",")...)
	}
	ids := make([]int64, 0, len(raw))
	for _, s := range raw {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid id %q", domain.ErrInvalidPayload, s)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (h *Handlers) List(kind *domain.Kind) gin.HandlerFunc {
	return func(c *gin.Context) {
		req, err := listRequest(c)
		if err != nil {
			abortWithError(c, err)
			return
		}
		page, err := h.records.List(c.Request.Context(), kind, req)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.Header(TotalCountHeader, strconv.Itoa(page.Total))
		c.JSON(http.StatusOK, recordsJSON(kind, page.Records))
	}
}

func (h *Handlers) GetMany(kind *domain.Kind) gin.HandlerFunc {
	return func(c *gin.Context) {
		ids, err := queryIDs(c)
		if err != nil {
			abortWithError(c, err)
			return
		}
		ctx := c.Request.Context()
		var records []domain.Record
		if loader := middleware.RecordLoaderFromContext(ctx, kind); loader != nil {
			records, err = loader.LoadMany(ctx, ids)
		} else {
			records, err = h.records.GetMany(ctx, kind, ids)
		}
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, recordsJSON(kind, records))
	}
}

func (h *Handlers) Get(kind *domain.Kind) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := pathID(c)
		if err != nil {
			abortWithError(c, err)
			return
		}
		rec, err := h.records.Get(c.Request.Context(), kind, id)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, recordJSON(kind, rec))
	}
}

func (h *Handlers) Create(kind *domain.Kind) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, err := parseCreatePayload(kind, c.Request.Body)
		if err != nil {
			abortWithError(c, err)
			return
		}
		res, err := h.records.Create(c.Request.Context(), kind, p.ID, p.Values)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusCreated, recordJSON(kind, res.Record))
	}
}

func (h *Handlers) Update(kind *domain.Kind) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := pathID(c)
		if err != nil {
			abortWithError(c, err)
			return
		}
		values, err := parseUpdatePayload(kind, c.Request.Body)
		if err != nil {
			abortWithError(c, err)
			return
		}
		res, err := h.records.Update(c.Request.Context(), kind, id, values)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, recordJSON(kind, res.Record))
	}
}

func (h *Handlers) Delete(kind *domain.Kind) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := pathID(c)
		if err != nil {
			abortWithError(c, err)
			return
		}
		if _, err := h.records.Delete(c.Request.Context(), kind, id); err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": fmt.Sprintf("%s with ID %d deleted successfully", kind.Name, id)})
	}
}

func (h *Handlers) History(kind *domain.Kind) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := pathID(c)
		if err != nil {
			abortWithError(c, err)
			return
		}
		entries, err := h.records.History(c.Request.Context(), kind, id)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, entries)
	}
}

// Export streams the list query as an XLSX workbook.
func (h *Handlers) Export(kind *domain.Kind) gin.HandlerFunc {
	return func(c *gin.Context) {
		req, err := listRequest(c)
		if err != nil {
			abortWithError(c, err)
			return
		}
		// Validate before any bytes are written, so errors still get a JSON body.
		if _, err := query.BuildPlan(kind, req); err != nil {
			abortWithError(c, err)
			return
		}

		var buf bytes.Buffer
		res, err := h.exporter.Export(c.Request.Context(), kind, req, &buf)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", res.Filename))
		c.Data(http.StatusOK, export.ContentType, buf.Bytes())
	}
}

// Import creates records from an uploaded CSV or XLSX file in the multipart field "file".
func (h *Handlers) Import(kind *domain.Kind) gin.HandlerFunc {
	return func(c *gin.Context) {
		file, header, err := c.Request.FormFile("file")
		if err != nil {
			abortWithError(c, fmt.Errorf("%w: multipart field \"file\" is required", domain.ErrInvalidPayload))
			return
		}
		defer file.Close()

		summary, err := h.importer.Import(c.Request.Context(), ingestion.Request{
			Kind:     kind,
			FileName: header.Filename,
			Data:     file,
			Source:   c.PostForm("source"),
		})
		if err != nil {
			if !errors.Is(err, domain.ErrStorage) && !errors.Is(err, domain.ErrInvalidPayload) {
				err = fmt.Errorf("%w: %v", domain.ErrInvalidPayload, err)
			}
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, summary)
	}
}
