package middleware

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/raffchen/inventory/internal/domain"
	"github.com/raffchen/inventory/internal/recordloader"
)

type ctxKey string

const recordLoadersKey ctxKey = "recordLoaders"

// Loaders holds one record loader per kind for a single request.
type Loaders map[*domain.Kind]*recordloader.RecordLoader

// DataLoader attaches fresh record loaders to the request context.
func DataLoader(fetcher recordloader.Fetcher, registry domain.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		loaders := make(Loaders, len(registry))
		for _, kind := range registry {
			loaders[kind] = recordloader.NewRecordLoader(fetcher, kind)
		}
		ctx := context.WithValue(c.Request.Context(), recordLoadersKey, loaders)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// RecordLoaderFromContext retrieves the loader for kind, or nil when the middleware did not run.
func RecordLoaderFromContext(ctx context.Context, kind *domain.Kind) *recordloader.RecordLoader {
	if l, ok := ctx.Value(recordLoadersKey).(Loaders); ok {
		return l[kind]
	}
	return nil
}
