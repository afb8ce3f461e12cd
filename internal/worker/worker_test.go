package worker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBotLabelFormatsID(t *testing.T) {
	assert.Equal(t, "1", botLabel(1))
	assert.Equal(t, "-1", botLabel(-1))
	assert.Equal(t, "32000", botLabel(32000))
}

func TestSleepOrDoneReturnsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan struct{})
	go func() {
		sleepOrDone(ctx, time.Minute)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sleepOrDone did not return promptly on cancellation")
	}
}

func TestSleepOrDoneReturnsOnTimer(t *testing.T) {
	start := time.Now()
	sleepOrDone(context.Background(), 10*time.Millisecond)
	assert.GreaterOrEqual(t, time.Since(start), 10*time.Millisecond)
}
