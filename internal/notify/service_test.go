package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	kit "sanbot/internal/transport"
	logx "sanbot/pkg/logx"
)

type fakeAdapter struct {
	mu       sync.Mutex
	sent     []string
	failLeft int
}

func (f *fakeAdapter) Start(context.Context, chan<- kit.Update) error { return nil }
func (f *fakeAdapter) Stop(context.Context) error                    { return nil }

func (f *fakeAdapter) SendText(_ context.Context, _ int64, text string, _ *kit.SendOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failLeft > 0 {
		f.failLeft--
		return errors.New("flood wait")
	}
	f.sent = append(f.sent, text)
	return nil
}

func (f *fakeAdapter) sentTexts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

func TestDeliver(t *testing.T) {
	t.Parallel()
	ad := &fakeAdapter{}
	svc := New(Config{Workers: 1, RatePerSec: 1000}, ad, logx.Nop())
	svc.Start(context.Background())

	require.NoError(t, svc.Enqueue(Notification{ChatID: 1, Text: "привет"}))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	svc.Stop(ctx)

	assert.Equal(t, []string{"привет"}, ad.sentTexts())
}

func TestRetryThenSucceed(t *testing.T) {
	t.Parallel()
	ad := &fakeAdapter{failLeft: 2}
	svc := New(Config{
		Workers:    1,
		RatePerSec: 1000,
		RetryMax:   3,
		RetryBase:  time.Millisecond,
	}, ad, logx.Nop())
	svc.Start(context.Background())

	require.NoError(t, svc.Enqueue(Notification{ChatID: 1, Text: "x"}))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	svc.Stop(ctx)

	assert.Equal(t, []string{"x"}, ad.sentTexts())
}

func TestEnqueueAfterStop(t *testing.T) {
	t.Parallel()
	svc := New(Config{}, &fakeAdapter{}, logx.Nop())
	svc.Start(context.Background())
	svc.Stop(context.Background())

	assert.ErrorIs(t, svc.Enqueue(Notification{ChatID: 1, Text: "x"}), ErrStopped)
}

func TestEnqueueBeforeStart(t *testing.T) {
	t.Parallel()
	svc := New(Config{QueueSize: 1}, &fakeAdapter{}, logx.Nop())
	assert.ErrorIs(t, svc.Enqueue(Notification{ChatID: 1, Text: "x"}), ErrStopped)
}
