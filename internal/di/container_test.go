package di

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	domain "github.com/spellquest/vocab-api/internal/domain"
	"github.com/spellquest/vocab-api/internal/platform/config"
	"github.com/spellquest/vocab-api/internal/platform/ocr"
	"github.com/spellquest/vocab-api/internal/repositories/postgrest"
)

func testConfig(ocrURL string) config.Config {
	return config.Config{
		Build: config.BuildConfig{Version: "1.2.3", Environment: "test"},
		OCR:   config.OCRConfig{BaseURL: ocrURL, Timeout: time.Second},
		Store: config.StoreConfig{
			Driver:     config.StoreDriverSQLite,
			SQLitePath: ":memory:",
			Timeout:    time.Second,
		},
	}
}

func TestNewContainerWithSQLiteStore(t *testing.T) {
	ocrSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/":
			_, _ = w.Write([]byte(`{"status":"ok"}`))
		case "/ocr/extract-vocab":
			_, _ = w.Write([]byte(`{"vocabulary":[{"english":"Sun","chinese":"太陽"},{"english":"sun"}]}`))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(ocrSrv.Close)

	ctx := context.Background()
	container, err := NewContainer(ctx, testConfig(ocrSrv.URL))
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Close(ctx) })

	result, err := container.Services.Scan.Scan(ctx, ocr.Upload{Data: []byte("jpeg")})
	require.NoError(t, err)
	require.Len(t, result.Saved.Created, 1)
	require.Equal(t, "sun", result.Saved.Created[0].English)
	require.Equal(t, "太陽", result.Saved.Created[0].Chinese)
	require.Len(t, result.Saved.Skipped, 1)

	report, err := container.Services.System.HealthReport(ctx)
	require.NoError(t, err)
	require.Equal(t, domain.HealthStatusOK, report.Status)
	require.Contains(t, report.Checks, "ocr")
	require.Contains(t, report.Checks, "word_store")
	require.Equal(t, "1.2.3", container.Services.System.BuildInfo().Version)
}

func TestNewContainerWithRESTStore(t *testing.T) {
	cfg := testConfig("http://ocr.internal")
	cfg.Store = config.StoreConfig{
		Driver:  config.StoreDriverREST,
		BaseURL: "http://store.internal/rest/v1",
		Headers: map[string]string{"apikey": "anon"},
	}

	container, err := NewContainer(context.Background(), cfg)
	require.NoError(t, err)
	require.IsType(t, &postgrest.WordRepository{}, container.Words)
	require.NotNil(t, container.Idempotency)
}

func TestNewContainerRejectsBadConfig(t *testing.T) {
	cfg := testConfig("")
	_, err := NewContainer(context.Background(), cfg)
	require.Error(t, err)

	cfg = testConfig("http://ocr.internal")
	cfg.Store.Driver = "mongo"
	_, err = NewContainer(context.Background(), cfg)
	require.ErrorContains(t, err, `unsupported word store driver "mongo"`)
}
