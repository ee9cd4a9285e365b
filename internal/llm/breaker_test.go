package llm_test

import (
	"context"
	"testing"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xaenox/recipebot/internal/llm"
	"github.com/xaenox/recipebot/internal/llm/llmtest"
	"github.com/xaenox/recipebot/pkg/config"
	"go.uber.org/zap"
)

func breakerConfig() config.BreakerConfig {
	return config.BreakerConfig{
		Enabled:      true,
		MaxRequests:  1,
		Interval:     time.Minute,
		Timeout:      time.Minute,
		MinRequests:  2,
		FailureRatio: 0.5,
	}
}

func TestBreakerInference_PassesThrough(t *testing.T) {
	stub := llmtest.Sequence(llmtest.Reply{Text: "yes"})
	b := llm.NewBreakerInference(stub, breakerConfig(), zap.NewNop())

	out, err := b.Infer(context.Background(), llm.Request{Messages: llm.UserPrompt("hi")})
	require.NoError(t, err)
	assert.Equal(t, "yes", out)
	assert.Equal(t, gobreaker.StateClosed, b.State())
}

func TestBreakerInference_OpensAfterFailures(t *testing.T) {
	stub := llmtest.Func(func(llm.Request) (string, error) {
		return "", llmtest.ErrScripted
	})
	b := llm.NewBreakerInference(stub, breakerConfig(), zap.NewNop())

	for i := 0; i < 2; i++ {
		_, err := b.Infer(context.Background(), llm.Request{})
		assert.ErrorIs(t, err, llmtest.ErrScripted)
	}
	assert.Equal(t, gobreaker.StateOpen, b.State())

	_, err := b.Infer(context.Background(), llm.Request{})
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Len(t, stub.Calls(), 2, "open breaker must not reach the provider")
}

func TestBreakerInference_CancellationDoesNotTrip(t *testing.T) {
	stub := llmtest.Sequence()
	b := llm.NewBreakerInference(stub, breakerConfig(), zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	for i := 0; i < 3; i++ {
		_, err := b.Infer(ctx, llm.Request{})
		assert.ErrorIs(t, err, context.Canceled)
	}
	assert.Equal(t, gobreaker.StateClosed, b.State())
}

func TestBreakerInference_TurnDeadlineDoesNotTrip(t *testing.T) {
	stub := llmtest.Sequence()
	b := llm.NewBreakerInference(stub, breakerConfig(), zap.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	<-ctx.Done()

	for i := 0; i < 3; i++ {
		_, err := b.Infer(ctx, llm.Request{})
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	}
	assert.Equal(t, gobreaker.StateClosed, b.State())
	assert.Len(t, stub.Calls(), 3)
}

func TestBreakerInference_ProviderTimeoutTrips(t *testing.T) {
	stub := llmtest.Func(func(llm.Request) (string, error) {
		return "", context.DeadlineExceeded
	})
	b := llm.NewBreakerInference(stub, breakerConfig(), zap.NewNop())

	for i := 0; i < 2; i++ {
		_, err := b.Infer(context.Background(), llm.Request{})
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	}
	assert.Equal(t, gobreaker.StateOpen, b.State())
}
