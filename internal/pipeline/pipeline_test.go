package pipeline

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hjagadishkumar/alfalfa-yield/internal/wire"
	"github.com/hjagadishkumar/alfalfa-yield/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPipeline(url string) *HTTPPipeline {
	return NewHTTPPipeline(Options{BaseURL: url + "/", Timeout: 5 * time.Second, RequestsPerSec: 100})
}

func TestPredictForwardsPartsInOrder(t *testing.T) {
	var fields []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, wire.UploadPath, r.URL.Path)
		files, err := wire.Decode(r, 1<<20)
		require.NoError(t, err)
		for _, f := range files {
			fields = append(fields, f.Field)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"adjusted_predictions":[1]}`))
	}))
	defer srv.Close()

	var parts []models.FilePart
	for _, slot := range models.CanonicalSlots {
		parts = append(parts, models.FilePart{Slot: slot, Filename: string(slot) + ".csv", Payload: []byte("1")})
	}

	raw, err := newTestPipeline(srv.URL).Predict(context.Background(), parts)
	require.NoError(t, err)
	assert.JSONEq(t, `{"adjusted_predictions":[1]}`, string(raw))
	assert.Equal(t, []string{"target_file", "boost_file", "all_years_file", "final_year_file", "target_year_file"}, fields)
}

func TestAnalyzeSendsFileField(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		files, err := wire.Decode(r, 1<<20)
		require.NoError(t, err)
		require.Len(t, files, 1)
		assert.Equal(t, "file", files[0].Field)
		assert.Equal(t, "model.pkl", files[0].Filename)
		w.Write([]byte(`{"result":{"accuracy":0.92}}`))
	}))
	defer srv.Close()

	raw, err := newTestPipeline(srv.URL).Analyze(context.Background(),
		models.FilePart{Filename: "model.pkl", Payload: []byte("data")})
	require.NoError(t, err)
	assert.JSONEq(t, `{"result":{"accuracy":0.92}}`, string(raw))
}

func TestPipelineErrorClassification(t *testing.T) {
	tests := []struct {
		name   string
		status int
		single bool
		want   error
	}{
		{name: "server error on predict", status: http.StatusInternalServerError, want: models.ErrServerError},
		{name: "unsupported media on analyze", status: http.StatusUnsupportedMediaType, single: true, want: models.ErrUnsupportedFormat},
		{name: "unprocessable on analyze", status: http.StatusUnprocessableEntity, single: true, want: models.ErrUnsupportedFormat},
		{name: "unsupported media on predict", status: http.StatusUnsupportedMediaType, want: models.ErrServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			p := newTestPipeline(srv.URL)
			part := models.FilePart{Slot: models.SlotTarget, Filename: "x", Payload: []byte("1")}
			var err error
			if tt.single {
				_, err = p.Analyze(context.Background(), part)
			} else {
				_, err = p.Predict(context.Background(), []models.FilePart{part})
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)

			var perr *models.Error
			require.True(t, errors.As(err, &perr))
			assert.Equal(t, tt.want.(*models.Error).Kind, perr.Kind)
		})
	}
}

func TestServerErrorCarriesStatusCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := newTestPipeline(srv.URL).Predict(context.Background(), nil)
	var perr *models.Error
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, http.StatusBadGateway, perr.StatusCode)
}

func TestPredictTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := newTestPipeline(srv.URL).Predict(ctx, nil)
	assert.ErrorIs(t, err, models.ErrPipelineTimeout)
}

func TestPredictSaturatedLimiterTimesOut(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	p := NewHTTPPipeline(Options{BaseURL: srv.URL, Timeout: 5 * time.Second, RequestsPerSec: 1})
	_, err := p.Predict(context.Background(), nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = p.Predict(ctx, nil)
	assert.ErrorIs(t, err, models.ErrPipelineTimeout)
}

func TestWaitReadyProbesHealth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	assert.NoError(t, newTestPipeline(srv.URL).WaitReady(context.Background()))
}
