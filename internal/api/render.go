package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/raffchen/inventory/internal/domain"
)

// recordJSON renders a record as a flat object. Decimals are emitted as JSON numbers at
// their column scale.
func recordJSON(kind *domain.Kind, rec domain.Record) gin.H {
	out := gin.H{
		domain.FieldID:        rec.ID,
		domain.FieldCreatedAt: rec.CreatedAt.UTC().Format(time.RFC3339Nano),
		domain.FieldUpdatedAt: rec.UpdatedAt.UTC().Format(time.RFC3339Nano),
		domain.FieldDeletedAt: nil,
	}
	if rec.DeletedAt != nil {
		out[domain.FieldDeletedAt] = rec.DeletedAt.UTC().Format(time.RFC3339Nano)
	}
	for _, f := range kind.Fields {
		v := rec.Values[f.Name]
		if d, ok := v.(decimal.Decimal); ok {
			out[f.Name] = json.Number(d.StringFixed(f.Scale))
			continue
		}
		out[f.Name] = v
	}
	return out
}

func recordsJSON(kind *domain.Kind, records []domain.Record) []gin.H {
	out := make([]gin.H, len(records))
	for i, rec := range records {
		out[i] = recordJSON(kind, rec)
	}
	return out
}

// statusFor maps a classified error onto an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrAlreadyExists):
		return http.StatusConflict
	case domain.IsMalformedQuery(err), errors.Is(err, domain.ErrInvalidPayload):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// abortWithError writes the error body and records err on the context for the request log.
// Storage faults are reported without their internal detail.
func abortWithError(c *gin.Context, err error) {
	status := statusFor(err)
	_ = c.Error(err)
	detail := err.Error()
	if status == http.StatusInternalServerError {
		detail = "internal storage error"
	}
	c.AbortWithStatusJSON(status, gin.H{"detail": detail})
}
