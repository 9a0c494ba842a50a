package pipeline

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/mpapenbr/racestrategy-service-go/pkg/reasoning"
	"github.com/mpapenbr/racestrategy-service-go/pkg/strategy/parse"
)

func TestBackoff(t *testing.T) {
	tests := []struct {
		attempt int
		class   Class
		want    time.Duration
	}{
		{1, ClassMalformed, 0},
		{2, ClassMalformed, time.Second},
		{3, ClassMalformed, 1500 * time.Millisecond},
		{1, ClassTimeout, 5 * time.Second},
		{2, ClassTimeout, 10 * time.Second},
		{1, ClassServiceError, 2 * time.Second},
		{3, ClassServiceError, 6 * time.Second},
		{7, ClassTimeout, 30 * time.Second},
		{1, ClassSuccess, 0},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s-%d", tt.class, tt.attempt), func(t *testing.T) {
			assert.Equal(t, tt.want, Backoff(tt.attempt, tt.class))
		})
	}
}

func TestBackoffPolicy_Scaled(t *testing.T) {
	p := BackoffPolicy{Scale: 0.5}
	assert.Equal(t, 2500*time.Millisecond, p.Delay(1, ClassTimeout))
	assert.Equal(t, time.Second, BackoffPolicy{Scale: 1, Cap: time.Second}.Delay(1, ClassTimeout))
}

func TestClassify(t *testing.T) {
	assert.Equal(t, ClassSuccess, classify(nil))
	assert.Equal(t, ClassMalformed, classify(fmt.Errorf("%w: x", parse.ErrMalformed)))
	assert.Equal(t, ClassTimeout, classify(fmt.Errorf("%w: x", reasoning.ErrTimeout)))
	assert.Equal(t, ClassTimeout, classify(context.DeadlineExceeded))
	assert.Equal(t, ClassServiceError, classify(reasoning.ErrService))
	assert.Equal(t, ClassServiceError, classify(errors.New("other")))
}

func TestSleepCtx(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, sleepCtx(ctx, time.Hour), context.Canceled)
	assert.NoError(t, sleepCtx(context.Background(), time.Millisecond))
}
