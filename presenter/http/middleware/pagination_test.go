package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/omni/transfer-indexer/presenter/http/middleware"
)

func TestGetPaginationMiddleware(t *testing.T) {
	t.Parallel()

	for _, test := range []struct {
		Query  string
		Status int
		Page   uint
		Limit  uint
		Offset uint
	}{
		{"", http.StatusOK, 1, 10, 0},
		{"page=3", http.StatusOK, 3, 10, 20},
		{"page=2&limit=25", http.StatusOK, 2, 25, 25},
		{"limit=100", http.StatusOK, 1, 100, 0},
		{"limit=101", http.StatusBadRequest, 0, 0, 0},
		{"page=0", http.StatusBadRequest, 0, 0, 0},
		{"limit=0", http.StatusBadRequest, 0, 0, 0},
		{"page=1.5", http.StatusBadRequest, 0, 0, 0},
	} {
		var got *middleware.Pagination
		h := middleware.GetPaginationMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got = middleware.GetPagination(r.Context())
		}))
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/?"+test.Query, nil))

		require.Equal(t, test.Status, w.Code, test.Query)
		if test.Status != http.StatusOK {
			require.Nil(t, got, test.Query)
			continue
		}
		require.Equal(t, test.Page, got.Page, test.Query)
		require.Equal(t, test.Limit, got.Limit, test.Query)
		require.Equal(t, test.Offset, got.Offset(), test.Query)
	}
}
