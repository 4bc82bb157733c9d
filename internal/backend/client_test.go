package backend

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lox/hazardmap/internal/models"
)

type recordingAuditor struct {
	mu   sync.Mutex
	runs []models.FetchRun
}

func (a *recordingAuditor) InsertFetchRun(run models.FetchRun) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.runs = append(a.runs, run)
	return nil
}

func newTestClient(t *testing.T, h http.HandlerFunc, opts ...Option) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, 5*time.Second, opts...)
}

func TestClient_Files(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/files", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"2024-05-01": {"file_name": "2024-05-01T04-46-00_tomorrow.tif", "datetime": "2024-05-01T04:46:00", "time": "04:46:00"},
			"2024-05-02": {"file_name": "2024-05-02T04-51-00_tomorrow.tif", "datetime": "2024-05-02T04:51:00", "time": "04:51:00"}
		}`))
	})

	files, err := c.Files(context.Background())
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, "2024-05-01T04-46-00_tomorrow.tif", files["2024-05-01"].FileName)
	assert.Equal(t, "04:51:00", files["2024-05-02"].Time)
}

func TestClient_Files_RejectsNullEntry(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"2024-05-01": null}`))
	})

	_, err := c.Files(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "2024-05-01")
}

func TestClient_Files_RejectsMissingFileName(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"2024-05-01": {"datetime": "x"}}`))
	})

	_, err := c.Files(context.Background())
	require.Error(t, err)
}

func TestClient_Bounds_Wrapped(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/bounds", r.URL.Path)
		assert.Equal(t, "f1.tif", r.URL.Query().Get("tif"))
		w.Write([]byte(`{"bounds": [10, 45, 12, 47]}`))
	})

	b, err := c.Bounds(context.Background(), "f1.tif")
	require.NoError(t, err)
	assert.Equal(t, models.Bounds{10, 45, 12, 47}, b)
}

func TestClient_Bounds_BareArray(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`[-180, -60, 180, 72]`))
	})

	b, err := c.Bounds(context.Background(), "f1.tif")
	require.NoError(t, err)
	assert.Equal(t, -60.0, b.MinLat())
	assert.Equal(t, 180.0, b.MaxLon())
}

func TestClient_Bounds_WrongLength(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"bounds": [10, 45, 12]}`))
	})

	_, err := c.Bounds(context.Background(), "f1.tif")
	require.Error(t, err)
}

func TestClient_Statistics(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "a b.tif", r.URL.Query().Get("tif"))
		json.NewEncoder(w).Encode(map[string]float64{
			"valid_percent": 31.5, "min": 0, "max": 0.97, "std": 0.12, "percentile_98": 0.61,
		})
	})

	stats, err := c.Statistics(context.Background(), "a b.tif")
	require.NoError(t, err)
	require.NotNil(t, stats.ValidPercent)
	assert.Equal(t, 31.5, *stats.ValidPercent)
	require.NotNil(t, stats.Percentile98)
	assert.Equal(t, 0.61, *stats.Percentile98)
	assert.Nil(t, stats.Mean)
}

func TestClient_NotFound(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"detail":"GeoTIFF file not found"}`, http.StatusNotFound)
	})

	_, err := c.Statistics(context.Background(), "missing.tif")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusNotFound, statusErr.Code)
	assert.Equal(t, "statistics", statusErr.Endpoint)
}

func TestClient_NoRetryByDefault(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := c.Files(context.Background())
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestClient_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{}`))
	}, WithRetries(3))

	files, err := c.Files(context.Background())
	require.NoError(t, err)
	assert.Empty(t, files)
	assert.Equal(t, int32(3), calls.Load())
}

func TestClient_DoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}, WithRetries(3))

	_, err := c.Files(context.Background())
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestClient_ForecastAndCountries(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/countries/":
			w.Write([]byte(`[{"label": "Austria", "code": "AT"}, {"label": "Germany", "code": "DE"}]`))
		case "/forecast/":
			assert.Equal(t, "AT", r.URL.Query().Get("nuts_id"))
			assert.Equal(t, "f1.tif", r.URL.Query().Get("tif"))
			w.Write([]byte(`{"data": [{"type": "heatmap"}], "layout": {"title": "x"}}`))
		default:
			http.NotFound(w, r)
		}
	})

	countries, err := c.Countries(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []models.Country{{Label: "Austria", Code: "AT"}, {Label: "Germany", Code: "DE"}}, countries)

	plot, err := c.Forecast(context.Background(), "AT", "f1.tif")
	require.NoError(t, err)
	assert.JSONEq(t, `[{"type": "heatmap"}]`, string(plot.Data))
	assert.Empty(t, plot.Config)
}

func TestClient_DownloadPosts(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/download/", r.URL.Path)
		w.WriteHeader(http.StatusAccepted)
	})

	require.NoError(t, c.Download(context.Background()))
}

func TestClient_TileAndTemplate(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/tiles/5/17/11.png", r.URL.Path)
		w.Header().Set("Content-Type", "image/png")
		w.Write([]byte("png-bytes"))
	})

	data, contentType, err := c.Tile(context.Background(), "f1.tif", 5, 17, 11)
	require.NoError(t, err)
	assert.Equal(t, "png-bytes", string(data))
	assert.Equal(t, "image/png", contentType)

	assert.Equal(t, "http://x/tiles/{z}/{x}/{y}.png?tif=f1.tif", TileURLTemplate("http://x", "f1.tif"))
	assert.Equal(t, "http://x/tiles/{z}/{x}/{y}.png?tif=a%2Bb+c.tif", TileURLTemplate("http://x", "a+b c.tif"))
}

func TestClient_AuditsCalls(t *testing.T) {
	auditor := &recordingAuditor{}
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/statistics" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`{"message": "Welcome to the LHASA API"}`))
	}, WithAuditor(auditor))

	require.NoError(t, c.Ping(context.Background()))
	_, err := c.Statistics(context.Background(), "f1.tif")
	require.Error(t, err)

	require.Len(t, auditor.runs, 2)
	assert.Equal(t, "root", auditor.runs[0].Endpoint)
	assert.True(t, auditor.runs[0].Success)
	assert.Equal(t, "statistics", auditor.runs[1].Endpoint)
	assert.Equal(t, "f1.tif", auditor.runs[1].RasterFile)
	assert.Equal(t, http.StatusInternalServerError, auditor.runs[1].HTTPStatus)
	assert.False(t, auditor.runs[1].Success)
	assert.Equal(t, 1, auditor.runs[1].Attempts)
}

type recordingArchiver struct {
	payloads map[string]string
}

func (a *recordingArchiver) StoreRawPayload(endpoint string, payload []byte) (int64, error) {
	a.payloads[endpoint] = string(payload)
	return int64(len(a.payloads)), nil
}

func TestClient_ArchivesRegistryPayloads(t *testing.T) {
	archiver := &recordingArchiver{payloads: map[string]string{}}
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/files":
			w.Write([]byte(`{"2024-05-01": {"file_name": "f1.tif"}}`))
		default:
			w.Write([]byte(`{"valid_percent": 12}`))
		}
	}, WithArchiver(archiver))

	_, err := c.Files(context.Background())
	require.NoError(t, err)
	_, err = c.Statistics(context.Background(), "f1.tif")
	require.NoError(t, err)

	assert.Equal(t, map[string]string{"files": `{"2024-05-01": {"file_name": "f1.tif"}}`}, archiver.payloads)
}
