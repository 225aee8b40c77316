package render

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/omni/transfer-indexer/db"
	"github.com/omni/transfer-indexer/logging"
)

var ErrBadRequest = errors.New("bad request")

type errorResponse struct {
	Error string `json:"error"`
}

func JSON(w http.ResponseWriter, r *http.Request, status int, res interface{}) {
	enc := json.NewEncoder(w)

	if pretty, _ := strconv.ParseBool(r.URL.Query().Get("pretty")); pretty {
		enc.SetIndent("", "  ")
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := enc.Encode(res); err != nil {
		logging.LoggerFromContext(r.Context()).WithError(err).Error("failed to marshal JSON result")
	}
}

// Error maps well-known errors to client statuses, everything else is
// reported as an internal error.
func Error(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, db.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, ErrBadRequest), errors.Is(err, db.ErrInvalidPage):
		status = http.StatusBadRequest
	}

	logger := logging.LoggerFromContext(r.Context()).WithError(err)
	if status == http.StatusInternalServerError {
		logger.Error("request handling failed")
		JSON(w, r, status, errorResponse{Error: http.StatusText(status)})
		return
	}
	logger.Warn("rejected http request")
	JSON(w, r, status, errorResponse{Error: err.Error()})
}
