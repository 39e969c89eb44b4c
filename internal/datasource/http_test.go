package datasource

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
)

const batchJSON = `[
  {"timestamp": "2026-06-01T12:00:00Z", "boxes": [{"high": 101, "low": 99, "value": 2}, {"high": 98, "low": 95, "value": -1}]},
  {"timestamp": "2026-06-01T12:01:00Z", "boxes": [{"high": 1, "low": 0, "value": 0}, {"high": 1, "low": 0, "value": 0}]},
  {"timestamp": "not a time", "boxes": [{"high": 3, "low": 2, "value": 1}]},
  {"timestamp": "2026-06-01T12:01:30Z", "boxes": [{"high": "NaN", "low": 99, "value": 1}, {"high": 98, "low": 95, "value": -1}]},
  {"timestamp": "2026-06-01T12:02:00.5Z", "boxes": [{"high": 101, "low": 99, "value": -2}, {"high": 98, "low": 95, "value": -1}]}
]`

func TestHTTPFetch(t *testing.T) {
	var gotQuery map[string]string
	var gotID string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/box-slices" {
			http.NotFound(w, r)
			return
		}
		gotQuery = map[string]string{}
		for k := range r.URL.Query() {
			gotQuery[k] = r.URL.Query().Get(k)
		}
		gotID = r.Header.Get("X-Request-ID")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(batchJSON))
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL+"/", time.Second, nil)
	since := time.Date(2026, 6, 1, 11, 0, 0, 0, time.UTC)
	frames, err := c.FetchFrames(context.Background(), "BTC-USD", since, 50)
	if err != nil {
		t.Fatalf("FetchFrames: %v", err)
	}
	if len(frames) != 2 {
		t.Fatalf("got %d frames, want 2 (sentinel, bad timestamp and undecodable frame dropped)", len(frames))
	}
	if frames[1].Timestamp.Nanosecond() != 500_000_000 {
		t.Errorf("fractional seconds lost: %v", frames[1].Timestamp)
	}
	if gotQuery["pair"] != "BTC-USD" || gotQuery["limit"] != "50" || gotQuery["since"] != "2026-06-01T11:00:00Z" {
		t.Errorf("query = %v", gotQuery)
	}
	if _, err := uuid.Parse(gotID); err != nil {
		t.Errorf("X-Request-ID %q is not a uuid: %v", gotID, err)
	}
}

func TestHTTPURLOmitsZeroParams(t *testing.T) {
	c := NewHTTPClient("http://example.test", 0, nil)
	u := c.URL("ETH USD", time.Time{}, 0)
	if u != "http://example.test/api/box-slices?pair=ETH+USD" {
		t.Errorf("URL = %q", u)
	}
}

func TestHTTPErrors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		wantErr string
	}{
		{"status", func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "down", http.StatusBadGateway)
		}, "http 502"},
		{"garbage", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("<html>"))
		}, "decode box slices"},
		{"timeout", func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-r.Context().Done():
			case <-time.After(2 * time.Second):
			}
		}, "fetch box slices"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()
			c := NewHTTPClient(srv.URL, 100*time.Millisecond, nil)
			_, err := c.FetchFrames(context.Background(), "p", time.Time{}, 0)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("err = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestHTTPSingleObject(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"timestamp": "2026-06-01T12:00:00Z", "boxes": [{"high": 5, "low": 4, "value": 1}]}`))
	}))
	defer srv.Close()
	frames, err := NewHTTPClient(srv.URL, time.Second, nil).FetchFrames(context.Background(), "p", time.Time{}, 1)
	if err != nil || len(frames) != 1 {
		t.Fatalf("FetchFrames = %v, %v", frames, err)
	}
}
