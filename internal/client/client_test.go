package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hjagadishkumar/alfalfa-yield/internal/api"
	"github.com/hjagadishkumar/alfalfa-yield/internal/ingest"
	"github.com/hjagadishkumar/alfalfa-yield/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type cannedPipeline struct {
	analyze string
	predict string
}

func (p cannedPipeline) Analyze(ctx context.Context, part models.FilePart) ([]byte, error) {
	return []byte(p.analyze), nil
}

func (p cannedPipeline) Predict(ctx context.Context, parts []models.FilePart) ([]byte, error) {
	return []byte(p.predict), nil
}

func newTestClient(url string) *Client {
	return New(Options{BaseURL: url, RequestTimeout: 5 * time.Second, RequestsPerSec: 100})
}

func writeSlotFiles(t *testing.T) map[models.SlotName]string {
	t.Helper()
	dir := t.TempDir()
	sizes := map[models.SlotName]int{
		models.SlotTarget:     10,
		models.SlotBoost:      5,
		models.SlotAllYears:   20,
		models.SlotFinalYear:  8,
		models.SlotTargetYear: 8,
	}
	paths := make(map[models.SlotName]string)
	for slot, size := range sizes {
		path := filepath.Join(dir, string(slot)+".csv")
		require.NoError(t, os.WriteFile(path, make([]byte, size), 0o644))
		paths[slot] = path
	}
	return paths
}

func TestUploadSlotsEndToEnd(t *testing.T) {
	gateway := ingest.NewGateway(cannedPipeline{predict: `{"all_years_data":[{"yield":1.2},{"yield":3.4}],
		"adjusted_predictions":[1.0,2.0],"prediction_timestamps":[2021,2022]}`}, ingest.Options{})
	srv := httptest.NewServer(api.NewServer(gateway))
	defer srv.Close()

	c := newTestClient(srv.URL)
	updates := c.Tracker().Subscribe()

	result, err := c.UploadSlots(context.Background(), writeSlotFiles(t))
	require.NoError(t, err)
	assert.Equal(t, []float64{1.2, 3.4}, result.HistoricalYields)
	assert.Equal(t, []float64{1.0, 2.0}, result.AdjustedPredictions)
	assert.Equal(t, []int64{2021, 2022}, result.Timestamps)

	status := c.Tracker().Status()
	assert.Equal(t, models.StatusCompleted, status.Kind)
	assert.Same(t, result, status.Result)

	last := <-updates
	assert.Equal(t, models.StatusCompleted, last.Kind)
}

func TestUploadFileEndToEnd(t *testing.T) {
	gateway := ingest.NewGateway(cannedPipeline{analyze: `{"result":{"accuracy":0.92}}`}, ingest.Options{})
	srv := httptest.NewServer(api.NewServer(gateway))
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "model.pkl")
	require.NoError(t, os.WriteFile(path, []byte("pickle"), 0o644))

	c := newTestClient(srv.URL)
	metrics, err := c.UploadFile(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, models.Metrics{"accuracy": 0.92}, metrics)
	assert.Equal(t, models.StatusCompleted, c.Tracker().Status().Kind)
}

func TestUploadSlotsRefusesIncompleteSelection(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { hits++ }))
	defer srv.Close()

	paths := writeSlotFiles(t)
	delete(paths, models.SlotBoost)
	paths[models.SlotTargetYear] = ""

	c := newTestClient(srv.URL)
	_, err := c.UploadSlots(context.Background(), paths)
	require.ErrorIs(t, err, models.ErrIncompleteRequest)
	assert.Equal(t, 0, hits)

	status := c.Tracker().Status()
	assert.Equal(t, models.StatusFailed, status.Kind)
	assert.ErrorIs(t, status.Err, models.ErrIncompleteRequest)
}

func TestClientServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	_, err := c.SubmitFile(context.Background(), models.FilePart{Filename: "m.pkl", Payload: []byte("x")})
	require.ErrorIs(t, err, models.ErrServerError)

	var perr *models.Error
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, http.StatusInternalServerError, perr.StatusCode)
}

func TestClientUnexpectedResponseFormat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"done"}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	_, err := c.SubmitFile(context.Background(), models.FilePart{Filename: "m.pkl", Payload: []byte("x")})
	assert.ErrorIs(t, err, models.ErrUnexpectedResponseFormat)

	req := models.NewUploadRequest()
	for _, slot := range models.CanonicalSlots {
		req.Set(models.FilePart{Slot: slot, Filename: "f", Payload: []byte("1")})
	}
	_, err = c.SubmitSlots(context.Background(), req)
	assert.ErrorIs(t, err, models.ErrUnexpectedResponseFormat)
}

func TestClientResponseTooLarge(t *testing.T) {
	old := maxResponseBytes
	maxResponseBytes = 16
	defer func() { maxResponseBytes = old }()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"result":{"accuracy":0.92,"error_rate":0.08}}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	_, err := c.SubmitFile(context.Background(), models.FilePart{Filename: "m.pkl", Payload: []byte("x")})
	assert.ErrorIs(t, err, models.ErrUnexpectedResponseFormat)
	assert.Equal(t, models.StatusFailed, c.Tracker().Status().Kind)
}

func TestClientTimeoutIsTyped(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	c := New(Options{BaseURL: srv.URL, RequestTimeout: 50 * time.Millisecond, RequestsPerSec: 100})
	_, err := c.SubmitFile(context.Background(), models.FilePart{Filename: "m.pkl", Payload: []byte("x")})
	assert.ErrorIs(t, err, models.ErrPipelineTimeout)
}

func TestClientEmptyFile(t *testing.T) {
	c := newTestClient("http://127.0.0.1:1")
	_, err := c.SubmitFile(context.Background(), models.FilePart{Filename: "empty.pkl"})
	assert.ErrorIs(t, err, models.ErrEmptyPayload)
}
