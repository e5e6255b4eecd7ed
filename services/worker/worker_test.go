package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dealmungchi/dealcrawler/internal/engine"
	"github.com/dealmungchi/dealcrawler/services/publisher"
)

// MockRunner implements JobRunner for testing
type MockRunner struct {
	mu       sync.Mutex
	requests []engine.CrawlJobRequest
	result   *engine.CrawlJobResult
	err      error
	delay    time.Duration
}

func (m *MockRunner) ExecuteCrawlJob(_ context.Context, req engine.CrawlJobRequest) (*engine.CrawlJobResult, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()
	time.Sleep(m.delay)
	return m.result, m.err
}

func (m *MockRunner) Runs() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// MockPublisher implements the publisher.Publisher interface for testing
type MockPublisher struct {
	trims atomic.Int32
}

var _ publisher.Publisher = (*MockPublisher)(nil)

func (m *MockPublisher) Publish(string, []byte) error { return nil }
func (m *MockPublisher) TrimStreams() error {
	m.trims.Add(1)
	return nil
}
func (m *MockPublisher) Close() error { return nil }

func successResult() *engine.CrawlJobResult {
	return &engine.CrawlJobResult{
		JobID:   "job-1",
		Success: true,
		Stats:   engine.Stats{TotalSaved: 2},
		Errors:  map[string]engine.SourceError{},
	}
}

func TestWorkerRunOnce(t *testing.T) {
	runner := &MockRunner{result: successResult()}
	pub := &MockPublisher{}
	req := engine.CrawlJobRequest{Sources: []string{"clien"}}

	w, err := NewWorker(context.Background(), runner, pub, "*/5 * * * *", req)
	require.NoError(t, err)

	result := w.RunOnce()
	require.NotNil(t, result)
	assert.Equal(t, 2, result.Stats.TotalSaved)
	assert.Equal(t, 1, runner.Runs())
	assert.Equal(t, req, runner.requests[0])
	assert.Equal(t, int32(1), pub.trims.Load())
}

func TestWorkerRejectedJob(t *testing.T) {
	runner := &MockRunner{err: errors.New("unknown source")}
	pub := &MockPublisher{}
	w, err := NewWorker(context.Background(), runner, pub, "@every 1h", engine.CrawlJobRequest{})
	require.NoError(t, err)

	assert.Nil(t, w.RunOnce())
	assert.Equal(t, int32(0), pub.trims.Load())
}

func TestWorkerInvalidSchedule(t *testing.T) {
	_, err := NewWorker(context.Background(), &MockRunner{}, nil, "not a schedule", engine.CrawlJobRequest{})
	assert.Error(t, err)
}

func TestWorkerStartStopsOnCancel(t *testing.T) {
	runner := &MockRunner{result: successResult()}
	ctx, cancel := context.WithCancel(context.Background())

	w, err := NewWorker(ctx, runner, nil, "@every 1h", engine.CrawlJobRequest{Sources: []string{"clien"}})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- w.Start() }()

	require.Eventually(t, func() bool { return runner.Runs() == 1 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
	}
	assert.Nil(t, w.RunOnce())
}
