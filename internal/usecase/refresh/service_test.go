package refresh

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/haoyusec/threatlens/internal/domain/freshness"
	"github.com/haoyusec/threatlens/internal/entity"
)

type MockStaleLister struct {
	mock.Mock
}

func (m *MockStaleLister) ListStale(ctx context.Context, queryType entity.QueryType, before time.Time, limit int) ([]entity.ThreatRecord, error) {
	args := m.Called(ctx, queryType, before, limit)
	if recs := args.Get(0); recs != nil {
		return recs.([]entity.ThreatRecord), args.Error(1)
	}
	return nil, args.Error(1)
}

type MockQueryRunner struct {
	mock.Mock
}

func (m *MockQueryRunner) Query(ctx context.Context, value string, queryType entity.QueryType) (*entity.QueryResponse, error) {
	args := m.Called(ctx, value, queryType)
	if resp := args.Get(0); resp != nil {
		return resp.(*entity.QueryResponse), args.Error(1)
	}
	return nil, args.Error(1)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRunOnceSweepsAllTypes(t *testing.T) {
	repo := new(MockStaleLister)
	repo.On("ListStale", mock.Anything, entity.QueryTypeIP, mock.Anything, 50).
		Return([]entity.ThreatRecord{
			{ID: "1.2.3.4", Type: entity.QueryTypeIP, Source: "VirusTotal"},
			{ID: "5.6.7.8", Type: entity.QueryTypeIP, Source: "VirusTotal"},
		}, nil)
	repo.On("ListStale", mock.Anything, entity.QueryTypeURL, mock.Anything, 50).
		Return([]entity.ThreatRecord{
			{ID: "https://example.com", Type: entity.QueryTypeURL, Source: "VirusTotal"},
		}, nil)
	repo.On("ListStale", mock.Anything, entity.QueryTypeFile, mock.Anything, 50).
		Return([]entity.ThreatRecord{}, nil)

	runner := new(MockQueryRunner)
	runner.On("Query", mock.Anything, mock.Anything, mock.Anything).
		Return(&entity.QueryResponse{Status: "success"}, nil)

	service := NewService(repo, runner, freshness.NewChecker(0), 0, testLogger())

	assert.Equal(t, 3, service.RunOnce(context.Background()))

	runner.AssertCalled(t, "Query", mock.Anything, "1.2.3.4", entity.QueryTypeIP)
	runner.AssertCalled(t, "Query", mock.Anything, "5.6.7.8", entity.QueryTypeIP)
	runner.AssertCalled(t, "Query", mock.Anything, "https://example.com", entity.QueryTypeURL)
	repo.AssertExpectations(t)
}

func TestRunOnceSkipsFailures(t *testing.T) {
	repo := new(MockStaleLister)
	repo.On("ListStale", mock.Anything, entity.QueryTypeIP, mock.Anything, 10).
		Return([]entity.ThreatRecord{
			{ID: "1.2.3.4", Type: entity.QueryTypeIP},
			{ID: "5.6.7.8", Type: entity.QueryTypeIP},
		}, nil)
	repo.On("ListStale", mock.Anything, entity.QueryTypeURL, mock.Anything, 10).
		Return(nil, errors.New("clickhouse down"))
	repo.On("ListStale", mock.Anything, entity.QueryTypeFile, mock.Anything, 10).
		Return([]entity.ThreatRecord{}, nil)

	runner := new(MockQueryRunner)
	runner.On("Query", mock.Anything, "1.2.3.4", entity.QueryTypeIP).
		Return(nil, errors.New("validation error"))
	runner.On("Query", mock.Anything, "5.6.7.8", entity.QueryTypeIP).
		Return(&entity.QueryResponse{Status: "success"}, nil)

	service := NewService(repo, runner, freshness.NewChecker(0), 10, testLogger())

	// The url listing error and the first query error are skipped, not fatal
	assert.Equal(t, 1, service.RunOnce(context.Background()))
	repo.AssertExpectations(t)
}

func TestRunOnceStopsOnCancelledContext(t *testing.T) {
	repo := new(MockStaleLister)
	repo.On("ListStale", mock.Anything, entity.QueryTypeIP, mock.Anything, 50).
		Return([]entity.ThreatRecord{
			{ID: "1.2.3.4", Type: entity.QueryTypeIP},
			{ID: "5.6.7.8", Type: entity.QueryTypeIP},
		}, nil)

	runner := new(MockQueryRunner)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	service := NewService(repo, runner, freshness.NewChecker(0), 0, testLogger())

	assert.Equal(t, 0, service.RunOnce(ctx))
	runner.AssertNotCalled(t, "Query")
}

func TestSchedulerStartStop(t *testing.T) {
	repo := new(MockStaleLister)
	repo.On("ListStale", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return([]entity.ThreatRecord{}, nil)

	runner := new(MockQueryRunner)

	service := NewService(repo, runner, freshness.NewChecker(0), 0, testLogger())
	scheduler := NewScheduler(service, 10*time.Millisecond, testLogger())

	scheduler.Start()
	time.Sleep(35 * time.Millisecond)
	scheduler.Stop()

	repo.AssertCalled(t, "ListStale", mock.Anything, entity.QueryTypeIP, mock.Anything, mock.Anything)
}
