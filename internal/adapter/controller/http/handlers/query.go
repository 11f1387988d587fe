package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/haoyusec/threatlens/internal/entity"
	"github.com/haoyusec/threatlens/internal/usecase/intelquery"
)

// QueryService is the orchestrator surface the handler drives
type QueryService interface {
	Query(ctx context.Context, value string, queryType entity.QueryType) (*entity.QueryResponse, error)
}

// QueryHandler handles threat intelligence query requests
type QueryHandler struct {
	service QueryService
}

// NewQueryHandler creates a new query handler
func NewQueryHandler(service QueryService) *QueryHandler {
	return &QueryHandler{service: service}
}

// queryRequest is the accepted request body. Clients are loose about the
// value field name, so query/value/q are all honored; a bare JSON string
// body is treated as the query value with auto-detected type.
type queryRequest struct {
	Query string `json:"query"`
	Value string `json:"value"`
	Q     string `json:"q"`
	Type  string `json:"type"`
}

func (q *queryRequest) queryValue() string {
	if q.Query != "" {
		return q.Query
	}
	if q.Value != "" {
		return q.Value
	}
	return q.Q
}

// Query runs a value against all configured providers
// POST /api/v1/query
func (h *QueryHandler) Query(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		ErrorResponse(w, http.StatusBadRequest, "failed to read request body", err)
		return
	}

	var req queryRequest
	if err := json.Unmarshal(body, &req); err != nil {
		// Fall back to a bare JSON string body
		var value string
		if err := json.Unmarshal(body, &value); err != nil {
			ErrorResponse(w, http.StatusBadRequest, "request body must be a JSON object or string", err)
			return
		}
		req.Query = value
	}

	response, err := h.service.Query(r.Context(), req.queryValue(), entity.QueryType(req.Type))
	if err != nil {
		if errors.Is(err, intelquery.ErrEmptyQuery) || errors.Is(err, intelquery.ErrUnsupportedType) {
			ErrorResponse(w, http.StatusBadRequest, err.Error(), nil)
			return
		}
		ErrorResponse(w, http.StatusInternalServerError, "query failed", err)
		return
	}

	JSONResponse(w, http.StatusOK, response)
}
