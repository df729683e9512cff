package market

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSweeper struct {
	mu        sync.Mutex
	abandoned []SweptOrder
	expired   []SweptOrder

	abandonedCutoff time.Time
	expiredCutoff   time.Time
}

func (f *fakeSweeper) SweepAbandoned(_ context.Context, cutoff time.Time) ([]SweptOrder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.abandonedCutoff = cutoff
	out := f.abandoned
	f.abandoned = nil
	return out, nil
}

func (f *fakeSweeper) SweepExpiredPayments(_ context.Context, cutoff time.Time) ([]SweptOrder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.expiredCutoff = cutoff
	out := f.expired
	f.expired = nil
	return out, nil
}

func TestReaperSweepReportsCancellations(t *testing.T) {
	fs := &fakeSweeper{
		abandoned: []SweptOrder{{OrderID: 7, UserID: "u-1"}, {OrderID: 8, UserID: "u-2"}},
		expired:   []SweptOrder{{OrderID: 9, UserID: "u-3"}},
	}

	var mu sync.Mutex
	got := map[int64]string{}
	r := &Reaper{
		Store:          fs,
		AbandonAfter:   30 * time.Minute,
		PaymentTimeout: 15 * time.Minute,
		Log:            logrus.New(),
		OnCancelled: func(o SweptOrder, reason string) {
			mu.Lock()
			got[o.OrderID] = reason
			mu.Unlock()
		},
	}
	r.sweep(context.Background())

	require.Len(t, got, 3)
	assert.Equal(t, "ABANDONED", got[7])
	assert.Equal(t, "ABANDONED", got[8])
	assert.Equal(t, "PAYMENT_TIMEOUT", got[9])
}

func TestReaperCutoffWindows(t *testing.T) {
	fs := &fakeSweeper{}
	r := &Reaper{
		Store:          fs,
		AbandonAfter:   30 * time.Minute,
		PaymentTimeout: 15 * time.Minute,
		Log:            logrus.New(),
	}

	before := time.Now()
	r.sweep(context.Background())

	// cutoff = now - window, within test slack
	assert.WithinDuration(t, before.Add(-30*time.Minute), fs.abandonedCutoff, time.Second)
	assert.WithinDuration(t, before.Add(-15*time.Minute), fs.expiredCutoff, time.Second)
}

func TestReaperRunStopsOnContextCancel(t *testing.T) {
	fs := &fakeSweeper{}
	r := &Reaper{
		Store:          fs,
		Interval:       5 * time.Millisecond,
		AbandonAfter:   time.Minute,
		PaymentTimeout: time.Minute,
		Log:            logrus.New(),
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("reaper did not stop after cancel")
	}
}
