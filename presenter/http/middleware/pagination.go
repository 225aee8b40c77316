package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/omni/transfer-indexer/presenter/http/render"
)

type ctxKey int

const paginationCtxKey ctxKey = iota

const (
	DefaultPage  = 1
	DefaultLimit = 10
	MaxLimit     = 100
)

type Pagination struct {
	Page  uint
	Limit uint
}

func (p *Pagination) Offset() uint {
	return (p.Page - 1) * p.Limit
}

// GetPaginationMiddleware parses optional page and limit query parameters.
func GetPaginationMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()

		page, err := parsePositive(query.Get("page"), DefaultPage)
		if err != nil {
			render.Error(w, r, fmt.Errorf("invalid page parameter: %w", err))
			return
		}
		limit, err := parsePositive(query.Get("limit"), DefaultLimit)
		if err != nil {
			render.Error(w, r, fmt.Errorf("invalid limit parameter: %w", err))
			return
		}
		if limit > MaxLimit {
			render.Error(w, r, fmt.Errorf("limit should not exceed %d: %w", MaxLimit, render.ErrBadRequest))
			return
		}

		ctx := context.WithValue(r.Context(), paginationCtxKey, &Pagination{Page: page, Limit: limit})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func GetPagination(ctx context.Context) *Pagination {
	if p, ok := ctx.Value(paginationCtxKey).(*Pagination); ok {
		return p
	}
	return &Pagination{Page: DefaultPage, Limit: DefaultLimit}
}

func parsePositive(raw string, def uint) (uint, error) {
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("%s is not a number: %w", raw, render.ErrBadRequest)
	}
	if v == 0 {
		return 0, fmt.Errorf("value should be positive: %w", render.ErrBadRequest)
	}
	return uint(v), nil
}
