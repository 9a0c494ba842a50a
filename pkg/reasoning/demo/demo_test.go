package demo

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mpapenbr/racestrategy-service-go/pkg/reasoning"
	"github.com/mpapenbr/racestrategy-service-go/testsupport/fakereasoner"
)

func TestCached(t *testing.T) {
	fake := fakereasoner.New(fakereasoner.Reply("first"), fakereasoner.Reply("second"),
		fakereasoner.Reply("third"))
	c := New(fake)
	ctx := context.Background()

	got, err := c.Generate(ctx, reasoning.Request{Prompt: "p", Temperature: 0.9})
	require.NoError(t, err)
	assert.Equal(t, "first", got)

	got, _ = c.Generate(ctx, reasoning.Request{Prompt: "p", Temperature: 0.9})
	assert.Equal(t, "first", got, "served from cache")
	assert.Equal(t, 1, fake.Calls())

	got, _ = c.Generate(ctx, reasoning.Request{Prompt: "p", Temperature: 0.3})
	assert.Equal(t, "second", got, "temperature is part of the key")

	long := strings.Repeat("x", 100)
	_, _ = c.Generate(ctx, reasoning.Request{Prompt: long + "A", Temperature: 0.3})
	got, _ = c.Generate(ctx, reasoning.Request{Prompt: long + "B", Temperature: 0.3})
	assert.Equal(t, "third", got, "only the prompt prefix is part of the key")
	assert.Equal(t, 3, fake.Calls())
}

func TestCached_ErrorsAreNotCached(t *testing.T) {
	fake := fakereasoner.New(fakereasoner.Fail(reasoning.ErrTimeout), fakereasoner.Reply("ok"))
	c := New(fake)
	_, err := c.Generate(context.Background(), reasoning.Request{Prompt: "p"})
	assert.ErrorIs(t, err, reasoning.ErrTimeout)
	got, err := c.Generate(context.Background(), reasoning.Request{Prompt: "p"})
	require.NoError(t, err)
	assert.Equal(t, "ok", got)
}
