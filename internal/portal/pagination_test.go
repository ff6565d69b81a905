package portal

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rmacedof/fuelsync/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// pagedServer serves totalItems numbered records in pages of the requested
// size, and counts the requests it saw.
func pagedServer(t *testing.T, totalItems int) (*httptest.Server, *int) {
	t.Helper()
	requests := 0

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++

		var payload struct {
			Pagination models.Pagination `json:"paginacao"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))

		page := payload.Pagination.Page
		size := payload.Pagination.PageSize
		start := (page - 1) * size

		var records []json.RawMessage
		for i := start; i < start+size && i < totalItems; i++ {
			records = append(records, json.RawMessage(fmt.Sprintf(`{"id":%d}`, i)))
		}

		require.NoError(t, json.NewEncoder(w).Encode(map[string]any{
			"registros":  records,
			"totalItems": totalItems,
		}))
	}))

	return srv, &requests
}

func newTestClient(baseURL string) *Client {
	c := NewKeyClient(baseURL, "", "test-key", 5*time.Second, zap.NewNop())
	c.retry.sleep = func(time.Duration) {}
	return c
}

func payloadFor(pageSize int) func(page int) any {
	return func(page int) any {
		return map[string]any{"paginacao": models.Pagination{Page: page, PageSize: pageSize}}
	}
}

func TestFetchAll_ExactUnionAcrossPages(t *testing.T) {
	srv, requests := pagedServer(t, 120)
	defer srv.Close()

	client := newTestClient(srv.URL)
	records, err := client.FetchAll(context.Background(), "/search", 50, payloadFor(50))

	assert.NoError(t, err)
	assert.Len(t, records, 120)
	assert.Equal(t, 3, *requests)

	// Every record exactly once, in page order.
	for i, raw := range records {
		var rec struct {
			ID int `json:"id"`
		}
		require.NoError(t, json.Unmarshal(raw, &rec))
		assert.Equal(t, i, rec.ID)
	}
}

func TestFetchAll_EmptyFirstPageStops(t *testing.T) {
	srv, requests := pagedServer(t, 0)
	defer srv.Close()

	client := newTestClient(srv.URL)
	records, err := client.FetchAll(context.Background(), "/search", 50, payloadFor(50))

	assert.NoError(t, err)
	assert.Empty(t, records)
	assert.Equal(t, 1, *requests)
}

func TestFetchAll_ShortPageStops(t *testing.T) {
	srv, requests := pagedServer(t, 30)
	defer srv.Close()

	client := newTestClient(srv.URL)
	records, err := client.FetchAll(context.Background(), "/search", 50, payloadFor(50))

	assert.NoError(t, err)
	assert.Len(t, records, 30)
	assert.Equal(t, 1, *requests)
}

func TestFetchAll_MidPaginationFailureKeepsPartialResults(t *testing.T) {
	requests := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++

		var payload struct {
			Pagination models.Pagination `json:"paginacao"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))

		if payload.Pagination.Page > 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}

		var records []json.RawMessage
		for i := 0; i < 50; i++ {
			records = append(records, json.RawMessage(fmt.Sprintf(`{"id":%d}`, i)))
		}
		require.NoError(t, json.NewEncoder(w).Encode(map[string]any{
			"registros":  records,
			"totalItems": 120,
		}))
	}))
	defer srv.Close()

	client := newTestClient(srv.URL)
	records, err := client.FetchAll(context.Background(), "/search", 50, payloadFor(50))

	assert.Error(t, err)
	assert.Len(t, records, 50)

	var statusErr *StatusError
	assert.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusBadGateway, statusErr.StatusCode)
}

func TestPostJSON_SendsSessionHeaders(t *testing.T) {
	var gotAuth, gotOrigin string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotOrigin = r.Header.Get("Origin")
		fmt.Fprint(w, `{}`)
	}))
	defer srv.Close()

	client := NewKeyClient(srv.URL, "https://portal.example.com", "abc123", 5*time.Second, zap.NewNop())
	_, err := client.PostJSON(context.Background(), "/search", map[string]any{}, nil)

	assert.NoError(t, err)
	assert.Equal(t, "Bearer abc123", gotAuth)
	assert.Equal(t, "https://portal.example.com", gotOrigin)
}

func TestPostJSON_NonOKReturnsStatusErrorWithHeaders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("renovacao-automatica-jwt", "rotated-key")
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"erro":"token expirado"}`)
	}))
	defer srv.Close()

	client := newTestClient(srv.URL)
	headers, err := client.PostJSON(context.Background(), "/search", map[string]any{}, nil)

	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusUnauthorized, statusErr.StatusCode)
	assert.Contains(t, statusErr.Body, "token expirado")

	// Headers still surface so callers can react to a key rotation even on a
	// failed probe.
	require.NotNil(t, headers)
	assert.Equal(t, "rotated-key", headers.Get("renovacao-automatica-jwt"))
}
