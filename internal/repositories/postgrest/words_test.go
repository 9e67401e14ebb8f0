package postgrest

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	domain "github.com/spellquest/vocab-api/internal/domain"
	"github.com/spellquest/vocab-api/internal/repositories"
)

func newTestRepository(t *testing.T, handler http.HandlerFunc, opts ...Option) *WordRepository {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	repo, err := NewWordRepository(srv.URL, srv.Client(), opts...)
	require.NoError(t, err)
	return repo
}

func TestExistsQueriesCaseInsensitiveMatch(t *testing.T) {
	t.Parallel()

	var rawQuery string
	repo := newTestRepository(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		require.Equal(t, "/words", r.URL.Path)
		require.Equal(t, "application/json", r.Header.Get("Accept"))
		require.Equal(t, "anon-key", r.Header.Get("apikey"))
		rawQuery = r.URL.RawQuery
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"id":1,"english":"Ice Cream"}]`))
	}, WithHeaders(map[string]string{" apikey ": "anon-key"}))

	found, err := repo.Exists(context.Background(), "ice cream")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "english=ilike.ice%20cream", rawQuery)
}

func TestExistsNotFoundOnEmptyArray(t *testing.T) {
	t.Parallel()

	repo := newTestRepository(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "ilike.cat", r.URL.Query().Get("english"))
		_, _ = w.Write([]byte(`[]`))
	})

	found, err := repo.Exists(context.Background(), "cat")
	require.NoError(t, err)
	require.False(t, found)
}

func TestExistsEscapesPatternCharacters(t *testing.T) {
	t.Parallel()

	cases := []struct {
		english string
		want    string
	}{
		{english: "100% _sure", want: `ilike.100\% \_sure`},
		{english: `back\slash`, want: `ilike.back\\slash`},
		{english: "a*b", want: "ilike.a_b"},
		{english: "**", want: "ilike.__"},
	}
	for _, tc := range cases {
		t.Run(tc.english, func(t *testing.T) {
			t.Parallel()
			repo := newTestRepository(t, func(w http.ResponseWriter, r *http.Request) {
				require.Equal(t, tc.want, r.URL.Query().Get("english"))
				require.NotContains(t, r.URL.RawQuery, "*")
				_, _ = w.Write([]byte(`[]`))
			})

			_, err := repo.Exists(context.Background(), tc.english)
			require.NoError(t, err)
		})
	}
}

func TestExistsFailures(t *testing.T) {
	t.Parallel()

	t.Run("status", func(t *testing.T) {
		t.Parallel()
		repo := newTestRepository(t, func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "relation words does not exist", http.StatusInternalServerError)
		})
		_, err := repo.Exists(context.Background(), "cat")
		var storeErr *repositories.StoreError
		require.ErrorAs(t, err, &storeErr)
		require.Equal(t, http.StatusInternalServerError, storeErr.Status)
		require.Contains(t, err.Error(), "relation words does not exist")
	})

	t.Run("malformed", func(t *testing.T) {
		t.Parallel()
		repo := newTestRepository(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"english":"cat"}`))
		})
		_, err := repo.Exists(context.Background(), "cat")
		require.ErrorIs(t, err, repositories.ErrMalformedResponse)
	})

	t.Run("transport", func(t *testing.T) {
		t.Parallel()
		srv := httptest.NewServer(http.NotFoundHandler())
		base := srv.URL
		srv.Close()
		repo, err := NewWordRepository(base, nil)
		require.NoError(t, err)
		_, err = repo.Exists(context.Background(), "cat")
		require.Error(t, err)
	})
}

func TestCreatePostsPayloadAndReturnsRepresentation(t *testing.T) {
	t.Parallel()

	repo := newTestRepository(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/words", r.URL.Path)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.Equal(t, "return=representation", r.Header.Get("Prefer"))

		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		var payload map[string]string
		require.NoError(t, json.Unmarshal(body, &payload))
		require.Equal(t, map[string]string{
			"english":  "apple",
			"chinese":  "蘋果",
			"pinyin":   "",
			"category": "ocr",
			"grade":    "P1",
		}, payload)

		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`[{"id":42,"english":"apple","chinese":"蘋果","pinyin":"","category":"ocr","grade":"P1","created_at":"2024-05-01T08:00:00.123456","times_seen":0}]`))
	})

	record, err := repo.Create(context.Background(), domain.NewWord{
		English:  "apple",
		Chinese:  "蘋果",
		Category: domain.WordCategoryOCR,
		Grade:    domain.WordGradeDefault,
	})
	require.NoError(t, err)
	require.Equal(t, "42", record.ID)
	require.Equal(t, "apple", record.English)
	require.Equal(t, "ocr", record.Category)
	require.NotNil(t, record.CreatedAt)
	require.JSONEq(t, `{"id":42,"english":"apple","chinese":"蘋果","pinyin":"","category":"ocr","grade":"P1","created_at":"2024-05-01T08:00:00.123456","times_seen":0}`, string(record.Raw))
}

func TestCreateAcceptsObjectAndEmptyBodies(t *testing.T) {
	t.Parallel()

	t.Run("object", func(t *testing.T) {
		t.Parallel()
		repo := newTestRepository(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"id":"b7c1","english":"dog"}`))
		})
		record, err := repo.Create(context.Background(), domain.NewWord{English: "dog"})
		require.NoError(t, err)
		require.Equal(t, "b7c1", record.ID)
		require.Equal(t, "dog", record.English)
	})

	t.Run("empty", func(t *testing.T) {
		t.Parallel()
		repo := newTestRepository(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusCreated)
		})
		record, err := repo.Create(context.Background(), domain.NewWord{English: "dog", Category: "ocr", Grade: "P1"})
		require.NoError(t, err)
		require.Equal(t, "dog", record.English)
		require.Equal(t, "P1", record.Grade)
		require.Empty(t, record.Raw)
	})
}

func TestCreateFailureCarriesStatus(t *testing.T) {
	t.Parallel()

	repo := newTestRepository(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"code":"23505","message":"duplicate key"}`))
	})

	_, err := repo.Create(context.Background(), domain.NewWord{English: "cat"})
	var storeErr *repositories.StoreError
	require.True(t, errors.As(err, &storeErr))
	require.Equal(t, http.StatusConflict, storeErr.Status)
	require.Equal(t, `insert word: store returned 409: {"code":"23505","message":"duplicate key"}`, err.Error())
}

func TestBaseURLPathIsPreserved(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/rest/v1/words", r.URL.Path)
		require.Equal(t, "1", r.URL.Query().Get("limit"))
		_, _ = w.Write([]byte(`[]`))
	}))
	t.Cleanup(srv.Close)

	repo, err := NewWordRepository(srv.URL+"/rest/v1", srv.Client())
	require.NoError(t, err)
	require.NoError(t, repo.Ping(context.Background()))
}

func TestNewWordRepositoryRejectsRelativeURL(t *testing.T) {
	t.Parallel()

	_, err := NewWordRepository("", nil)
	require.Error(t, err)
	_, err = NewWordRepository("localhost:3001", nil)
	require.Error(t, err)
}
