package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/haoyusec/threatlens/internal/entity"
	"github.com/haoyusec/threatlens/internal/usecase/intelquery"
)

type MockQueryService struct {
	mock.Mock
}

func (m *MockQueryService) Query(ctx context.Context, value string, queryType entity.QueryType) (*entity.QueryResponse, error) {
	args := m.Called(ctx, value, queryType)
	if resp := args.Get(0); resp != nil {
		return resp.(*entity.QueryResponse), args.Error(1)
	}
	return nil, args.Error(1)
}

func sampleResponse(value string, queryType entity.QueryType) *entity.QueryResponse {
	now := time.Now().UTC()
	return &entity.QueryResponse{
		Type:  queryType,
		Value: value,
		Results: map[string]entity.ProviderResult{
			"VirusTotal": {
				Record: &entity.ThreatRecord{
					ID: value, Type: queryType, Source: "VirusTotal",
					ReputationScore: -40, ThreatLevel: entity.ThreatLevelHigh,
					LastUpdate: &now,
				},
				FromCache: true,
			},
		},
		Status: "success",
	}
}

func TestQueryHandler(t *testing.T) {
	tests := []struct {
		name          string
		body          string
		expectedValue string
		expectedType  entity.QueryType
	}{
		{name: "query field", body: `{"query":"1.2.3.4"}`, expectedValue: "1.2.3.4"},
		{name: "value field alias", body: `{"value":"1.2.3.4"}`, expectedValue: "1.2.3.4"},
		{name: "q field alias", body: `{"q":"1.2.3.4"}`, expectedValue: "1.2.3.4"},
		{name: "bare json string body", body: `"1.2.3.4"`, expectedValue: "1.2.3.4"},
		{name: "explicit type", body: `{"query":"example.com","type":"url"}`, expectedValue: "example.com", expectedType: entity.QueryTypeURL},
		{name: "query wins over aliases", body: `{"query":"1.2.3.4","value":"other","q":"other"}`, expectedValue: "1.2.3.4"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			service := new(MockQueryService)
			service.On("Query", mock.Anything, tt.expectedValue, tt.expectedType).
				Return(sampleResponse(tt.expectedValue, entity.QueryTypeIP), nil)

			handler := NewQueryHandler(service)
			req := httptest.NewRequest("POST", "/api/v1/query", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()

			handler.Query(rec, req)

			require.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

			var resp entity.QueryResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, "success", resp.Status)
			assert.Equal(t, tt.expectedValue, resp.Value)
			assert.Contains(t, resp.Results, "VirusTotal")
			assert.True(t, resp.Results["VirusTotal"].FromCache)

			service.AssertExpectations(t)
		})
	}
}

func TestQueryHandlerErrors(t *testing.T) {
	t.Run("malformed body", func(t *testing.T) {
		handler := NewQueryHandler(new(MockQueryService))
		req := httptest.NewRequest("POST", "/api/v1/query", strings.NewReader(`{invalid`))
		rec := httptest.NewRecorder()

		handler.Query(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)

		var resp map[string]interface{}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "error", resp["status"])
	})

	t.Run("empty query is a 400", func(t *testing.T) {
		service := new(MockQueryService)
		service.On("Query", mock.Anything, "", entity.QueryType("")).
			Return(nil, intelquery.ErrEmptyQuery)

		handler := NewQueryHandler(service)
		req := httptest.NewRequest("POST", "/api/v1/query", strings.NewReader(`{}`))
		rec := httptest.NewRecorder()

		handler.Query(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unsupported type is a 400", func(t *testing.T) {
		service := new(MockQueryService)
		service.On("Query", mock.Anything, "zzz", entity.QueryType("weird")).
			Return(nil, intelquery.ErrUnsupportedType)

		handler := NewQueryHandler(service)
		req := httptest.NewRequest("POST", "/api/v1/query", strings.NewReader(`{"query":"zzz","type":"weird"}`))
		rec := httptest.NewRecorder()

		handler.Query(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("internal failure is a 500", func(t *testing.T) {
		service := new(MockQueryService)
		service.On("Query", mock.Anything, "1.2.3.4", entity.QueryType("")).
			Return(nil, errors.New("clickhouse down"))

		handler := NewQueryHandler(service)
		req := httptest.NewRequest("POST", "/api/v1/query", strings.NewReader(`{"query":"1.2.3.4"}`))
		rec := httptest.NewRecorder()

		handler.Query(rec, req)

		assert.Equal(t, http.StatusInternalServerError, rec.Code)

		var resp map[string]interface{}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "query failed", resp["error"])
		assert.Equal(t, "clickhouse down", resp["details"])
	})
}
