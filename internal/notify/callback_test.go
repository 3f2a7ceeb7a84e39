package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"equity/pkg/exception"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(url string, retries int) (*Client, *[]time.Duration) {
	c := New(Config{URL: url, Account: "acc", Password: "pwd", MaxRetries: retries, Backoff: 1500 * time.Millisecond})
	waits := &[]time.Duration{}
	c.sleep = func(_ context.Context, d time.Duration) error {
		*waits = append(*waits, d)
		return nil
	}
	return c, waits
}

func TestReportStream(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	c, waits := newTestClient(srv.URL, 3)
	require.NoError(t, c.ReportStream(context.Background(), 42))

	assert.Equal(t, map[string]any{"omracc": "acc", "omrpwd": "pwd", "success": "42"}, got)
	assert.Empty(t, *waits)
}

func TestReportFiles(t *testing.T) {
	var got filesPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
	}))
	defer srv.Close()

	c, _ := newTestClient(srv.URL, 3)
	require.NoError(t, c.ReportFiles(context.Background(), []FileCount{
		{Name: "equity", Success: 10, Fail: 2},
		{Name: "relation", Success: 5},
	}))

	assert.Equal(t, "acc", got.Account)
	assert.Equal(t, []fileItem{
		{FileName: "equity", Success: "10", Fail: "2"},
		{FileName: "relation", Success: "5", Fail: "0"},
	}, got.FileList)
}

func TestRetryWithLinearBackoff(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c, waits := newTestClient(srv.URL, 3)
	require.NoError(t, c.ReportStream(context.Background(), 1))
	assert.EqualValues(t, 3, calls.Load())
	assert.Equal(t, []time.Duration{1500 * time.Millisecond, 3000 * time.Millisecond}, *waits)
}

func TestGiveUpAfterRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c, waits := newTestClient(srv.URL, 3)
	err := c.ReportStream(context.Background(), 1)
	assert.True(t, exception.Is(err, exception.ErrCallbackDelivery))
	assert.Contains(t, err.Error(), "status 500")
	assert.EqualValues(t, 3, calls.Load())
	assert.Len(t, *waits, 2)
}

func TestNoURLSkips(t *testing.T) {
	c, _ := newTestClient("", 3)
	assert.NoError(t, c.ReportStream(context.Background(), 1))
}
