package httpsource

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mpapenbr/racestrategy-service-go/pkg/source"
	"github.com/mpapenbr/racestrategy-service-go/pkg/utils/breaker"
)

func TestClient_Fetch(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantLaps []int
	}{
		{
			name:     "plain list",
			body:     `[{"lap":3},{"lap":4}]`,
			wantLaps: []int{3, 4},
		},
		{
			name:     "wrapped",
			body:     `{"data":[{"lap":7,"weather_impact":"low"}]}`,
			wantLaps: []int{7},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotQuery string
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/enriched", r.URL.Path)
				gotQuery = r.URL.Query().Get("limit")
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			got, err := New(srv.URL+"/").Fetch(context.Background(), 10)
			require.NoError(t, err)
			assert.Equal(t, "10", gotQuery)
			laps := []int{}
			for _, r := range got {
				laps = append(laps, r.Lap)
			}
			assert.Equal(t, tt.wantLaps, laps)
		})
	}
}

func TestClient_FailuresAreUnreachable(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := New(srv.URL, WithBreakerOptions(
		breaker.WithConsecutiveFailures(2),
		breaker.WithOpenTimeout(time.Minute)))
	for range 2 {
		_, err := c.Fetch(context.Background(), 5)
		assert.True(t, errors.Is(err, source.ErrUnreachable), "got %v", err)
	}
	// breaker is open now, the server must not be contacted anymore
	_, err := c.Fetch(context.Background(), 5)
	assert.True(t, errors.Is(err, source.ErrUnreachable))
	assert.True(t, breaker.IsOpen(err))
	assert.Equal(t, int32(2), calls.Load())
}

func TestClient_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := New(srv.URL).Fetch(ctx, 5)
	assert.ErrorIs(t, err, source.ErrUnreachable)
}
