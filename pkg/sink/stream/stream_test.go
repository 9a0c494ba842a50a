package stream

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mpapenbr/racestrategy-service-go/pkg/pipeline"
)

func next(t *testing.T, ch <-chan *pipeline.Result) *pipeline.Result {
	t.Helper()
	select {
	case res, ok := <-ch:
		require.True(t, ok)
		return res
	case <-time.After(time.Second):
		require.FailNow(t, "no result")
	}
	return nil
}

func TestHub(t *testing.T) {
	h := New()
	defer h.Close()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	all := h.Subscribe(ctx, "")
	monza := h.Subscribe(ctx, "monza")

	require.NoError(t, h.Deliver(ctx, &pipeline.Result{RunID: "1", Session: "spa"}))
	require.NoError(t, h.Deliver(ctx, &pipeline.Result{RunID: "2", Session: "monza"}))

	assert.Equal(t, "1", next(t, all).RunID)
	assert.Equal(t, "2", next(t, all).RunID)
	assert.Equal(t, "2", next(t, monza).RunID)
}

func TestHub_SubscriptionEndsWithContext(t *testing.T) {
	h := New()
	defer h.Close()
	ctx, cancel := context.WithCancel(context.Background())
	sub := h.Subscribe(ctx, "")
	cancel()
	select {
	case _, ok := <-sub:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("subscription not closed")
	}
}

func TestHub_DeliverHonorsContext(t *testing.T) {
	h := New()
	h.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := h.Deliver(ctx, &pipeline.Result{})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
