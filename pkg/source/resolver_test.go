//nolint:funlen // ok for tests
package source

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mpapenbr/racestrategy-service-go/pkg/model"
)

type countingBuffer struct {
	recs  []model.EnrichedRecord
	calls int
}

func (b *countingBuffer) Snapshot(limit int) []model.EnrichedRecord {
	b.calls++
	if limit > 0 && limit < len(b.recs) {
		return b.recs[len(b.recs)-limit:]
	}
	return b.recs
}

type stubSource struct {
	recs  []model.EnrichedRecord
	err   error
	delay time.Duration
	calls int
}

func (s *stubSource) Fetch(ctx context.Context, _ int) ([]model.EnrichedRecord, error) {
	s.calls++
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, errors.Join(ErrUnreachable, ctx.Err())
		}
	}
	return s.recs, s.err
}

func records(laps ...int) []model.EnrichedRecord {
	ret := make([]model.EnrichedRecord, len(laps))
	for i, l := range laps {
		ret[i] = model.EnrichedRecord{Lap: l}
	}
	return ret
}

func TestResolver_Precedence(t *testing.T) {
	tests := []struct {
		name         string
		explicit     []model.EnrichedRecord
		buffer       []model.EnrichedRecord
		external     *stubSource
		wantOrigin   Origin
		wantLaps     []int
		wantErr      error
		wantBufCalls int
		wantExtCalls int
	}{
		{
			name:         "explicit wins, buffer never consulted",
			explicit:     records(7, 8),
			buffer:       records(1, 2, 3),
			external:     &stubSource{recs: records(4)},
			wantOrigin:   OriginExplicit,
			wantLaps:     []int{7, 8},
			wantBufCalls: 0,
			wantExtCalls: 0,
		},
		{
			name:         "buffer when no explicit telemetry, external never invoked",
			buffer:       records(1, 2, 3),
			external:     &stubSource{recs: records(4)},
			wantOrigin:   OriginBuffer,
			wantLaps:     []int{1, 2, 3},
			wantBufCalls: 1,
			wantExtCalls: 0,
		},
		{
			name:         "external pull when buffer empty, sorted chronologically",
			external:     &stubSource{recs: records(12, 10, 11)},
			wantOrigin:   OriginExternal,
			wantLaps:     []int{10, 11, 12},
			wantBufCalls: 1,
			wantExtCalls: 1,
		},
		{
			name:         "external failure",
			external:     &stubSource{err: ErrUnreachable},
			wantErr:      ErrNoTelemetryAvailable,
			wantBufCalls: 1,
			wantExtCalls: 1,
		},
		{
			name:         "external returns nothing",
			external:     &stubSource{},
			wantErr:      ErrNoTelemetryAvailable,
			wantBufCalls: 1,
			wantExtCalls: 1,
		},
		{
			name:         "external times out",
			external:     &stubSource{recs: records(1), delay: time.Second},
			wantErr:      ErrNoTelemetryAvailable,
			wantBufCalls: 1,
			wantExtCalls: 1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &countingBuffer{recs: tt.buffer}
			r := NewResolver(
				WithBuffer(buf),
				WithExternal(tt.external),
				WithTimeout(20*time.Millisecond))
			got, err := r.Resolve(context.Background(), tt.explicit)
			assert.Equal(t, tt.wantBufCalls, buf.calls, "buffer calls")
			assert.Equal(t, tt.wantExtCalls, tt.external.calls, "external calls")
			if tt.wantErr != nil {
				assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantOrigin, got.Origin)
			gotLaps := []int{}
			for _, r := range got.Records {
				gotLaps = append(gotLaps, r.Lap)
			}
			assert.Equal(t, tt.wantLaps, gotLaps)
		})
	}
}

func TestResolver_NoSources(t *testing.T) {
	_, err := NewResolver().Resolve(context.Background(), nil)
	assert.ErrorIs(t, err, ErrNoTelemetryAvailable)
}

func TestResolver_DoesNotMutateBuffer(t *testing.T) {
	buf := &countingBuffer{recs: records(3, 1, 2)}
	r := NewResolver(WithBuffer(buf), WithLimit(2))
	got, err := r.Resolve(context.Background(), nil)
	require.NoError(t, err)
	assert.Len(t, got.Records, 2)
	assert.Equal(t, records(3, 1, 2), buf.recs)
}
