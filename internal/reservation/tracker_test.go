package reservation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"timeplanner/internal/metrics"
	"timeplanner/internal/model"
)

type answer struct {
	ok  bool
	err error
}

// gatedOracle answers each queue number only when the test releases it and
// ignores cancellation, like a slow backend that replies anyway.
type gatedOracle struct {
	mu    sync.Mutex
	gates map[int]chan answer
}

func newGatedOracle() *gatedOracle {
	return &gatedOracle{gates: make(map[int]chan answer)}
}

func (o *gatedOracle) gate(queue int) chan answer {
	o.mu.Lock()
	defer o.mu.Unlock()
	g, ok := o.gates[queue]
	if !ok {
		g = make(chan answer, 1)
		o.gates[queue] = g
	}
	return g
}

func (o *gatedOracle) release(queue int, ok bool, err error) {
	o.gate(queue) <- answer{ok: ok, err: err}
}

func (o *gatedOracle) CheckQueueAvailability(_ context.Context, _ int, queue int) (bool, error) {
	a := <-o.gate(queue)
	return a.ok, a.err
}

// blockingOracle returns only when its context is cancelled.
type blockingOracle struct{}

func (blockingOracle) CheckQueueAvailability(ctx context.Context, _, _ int) (bool, error) {
	<-ctx.Done()
	return false, ctx.Err()
}

func waitIdle(t *testing.T, tr *Tracker) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, tr.Wait(ctx))
}

func newTestTracker(t *testing.T, oracle Oracle, opts ...Option) *Tracker {
	t.Helper()
	logger := zerolog.Nop()
	return NewTracker(oracle, &logger, opts...)
}

func TestFSMTransitions(t *testing.T) {
	fsm := NewFSM()

	tests := []struct {
		name        string
		from        Status
		to          Status
		shouldAllow bool
	}{
		{"idle to pending", StatusIdle, StatusPending, true},
		{"pending superseded", StatusPending, StatusPending, true},
		{"pending to available", StatusPending, StatusAvailable, true},
		{"pending to unavailable", StatusPending, StatusUnavailable, true},
		{"available reselected", StatusAvailable, StatusPending, true},
		{"unavailable reselected", StatusUnavailable, StatusPending, true},
		{"available cleared", StatusAvailable, StatusIdle, true},
		{"pending cleared", StatusPending, StatusIdle, true},
		{"idle to available", StatusIdle, StatusAvailable, false},
		{"available to unavailable", StatusAvailable, StatusUnavailable, false},
		{"unknown state", Status("bogus"), StatusIdle, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.shouldAllow, fsm.CanTransition(tt.from, tt.to))
		})
	}
}

func TestTracker_SelectResolves(t *testing.T) {
	tests := []struct {
		name string
		ok   bool
		err  error
		want Status
	}{
		{name: "available", ok: true, want: StatusAvailable},
		{name: "taken", ok: false, want: StatusUnavailable},
		{name: "oracle error", err: errors.New("connection refused"), want: StatusUnavailable},
		{name: "error wins over ok", ok: true, err: errors.New("bad gateway"), want: StatusUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			oracle := newGatedOracle()
			tr := newTestTracker(t, oracle)

			r, err := tr.Select(context.Background(), 1, 3)
			require.NoError(t, err)
			assert.Equal(t, StatusPending, r.Status)
			assert.Equal(t, 3, r.QueueNumber)

			oracle.release(3, tt.ok, tt.err)
			waitIdle(t, tr)

			got, err := tr.Get(1)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Status)
			assert.Equal(t, 3, got.QueueNumber)
		})
	}
}

func TestTracker_StaleResponseIsDiscarded(t *testing.T) {
	t.Run("first request resolves last", func(t *testing.T) {
		oracle := newGatedOracle()
		m := metrics.NewMetrics(prometheus.NewRegistry())
		tr := newTestTracker(t, oracle, WithMetrics(m))

		_, err := tr.Select(context.Background(), 2, 1)
		require.NoError(t, err)
		_, err = tr.Select(context.Background(), 2, 2)
		require.NoError(t, err)

		oracle.release(2, false, nil)
		assert.Eventually(t, func() bool {
			r, _ := tr.Get(2)
			return r.Status == StatusUnavailable
		}, 2*time.Second, 5*time.Millisecond)

		oracle.release(1, true, nil)
		waitIdle(t, tr)

		r, err := tr.Get(2)
		require.NoError(t, err)
		assert.Equal(t, StatusUnavailable, r.Status)
		assert.Equal(t, 2, r.QueueNumber)
		assert.Equal(t, 1.0, testutil.ToFloat64(m.QueueChecks.WithLabelValues("stale")))
	})

	t.Run("first request resolves first", func(t *testing.T) {
		oracle := newGatedOracle()
		tr := newTestTracker(t, oracle)

		_, err := tr.Select(context.Background(), 2, 1)
		require.NoError(t, err)
		_, err = tr.Select(context.Background(), 2, 2)
		require.NoError(t, err)

		oracle.release(1, true, nil)
		time.Sleep(20 * time.Millisecond)
		r, _ := tr.Get(2)
		assert.Equal(t, StatusPending, r.Status, "superseded answer must not move the state")

		oracle.release(2, true, nil)
		waitIdle(t, tr)

		r, _ = tr.Get(2)
		assert.Equal(t, StatusAvailable, r.Status)
		assert.Equal(t, 2, r.QueueNumber)
	})
}

func TestTracker_OtherDaysAreIndependent(t *testing.T) {
	oracle := newGatedOracle()
	tr := newTestTracker(t, oracle)

	_, err := tr.Select(context.Background(), 0, 1)
	require.NoError(t, err)
	_, err = tr.Select(context.Background(), 4, 2)
	require.NoError(t, err)

	oracle.release(1, true, nil)
	oracle.release(2, false, nil)
	waitIdle(t, tr)

	snap := tr.Snapshot()
	require.Len(t, snap, model.DaysInWeek)
	assert.Equal(t, StatusAvailable, snap[0].Status)
	assert.Equal(t, StatusUnavailable, snap[4].Status)
	assert.Equal(t, StatusIdle, snap[1].Status)
}

func TestTracker_ClearInvalidatesInFlight(t *testing.T) {
	oracle := newGatedOracle()
	tr := newTestTracker(t, oracle)

	_, err := tr.Select(context.Background(), 5, 4)
	require.NoError(t, err)
	require.NoError(t, tr.Clear(5))

	oracle.release(4, true, nil)
	waitIdle(t, tr)

	r, err := tr.Get(5)
	require.NoError(t, err)
	assert.Equal(t, StatusIdle, r.Status)
	assert.Equal(t, 0, r.QueueNumber)
}

func TestTracker_SelectZeroClears(t *testing.T) {
	oracle := newGatedOracle()
	tr := newTestTracker(t, oracle)

	_, err := tr.Select(context.Background(), 3, 2)
	require.NoError(t, err)
	r, err := tr.Select(context.Background(), 3, 0)
	require.NoError(t, err)
	assert.Equal(t, StatusIdle, r.Status)

	oracle.release(2, true, nil)
	waitIdle(t, tr)
	r, _ = tr.Get(3)
	assert.Equal(t, StatusIdle, r.Status)
}

func TestTracker_SupersededRequestIsCancelled(t *testing.T) {
	m := metrics.NewMetrics(prometheus.NewRegistry())
	tr := newTestTracker(t, blockingOracle{}, WithMetrics(m))

	_, err := tr.Select(context.Background(), 0, 1)
	require.NoError(t, err)
	_, err = tr.Select(context.Background(), 0, 2)
	require.NoError(t, err)
	require.NoError(t, tr.Clear(0))

	waitIdle(t, tr)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.QueueChecks.WithLabelValues("stale")))
	r, _ := tr.Get(0)
	assert.Equal(t, StatusIdle, r.Status)
}

func TestTracker_CallerCancellationDoesNotAbortCheck(t *testing.T) {
	oracle := newGatedOracle()
	tr := newTestTracker(t, oracle)

	ctx, cancel := context.WithCancel(context.Background())
	_, err := tr.Select(ctx, 6, 1)
	require.NoError(t, err)
	cancel()

	oracle.release(1, true, nil)
	waitIdle(t, tr)
	r, _ := tr.Get(6)
	assert.Equal(t, StatusAvailable, r.Status)
}

func TestTracker_OnChange(t *testing.T) {
	oracle := newGatedOracle()

	var mu sync.Mutex
	var seen []Status
	tr := newTestTracker(t, oracle, WithOnChange(func(r Reservation) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, r.Status)
	}))

	require.NoError(t, tr.Clear(0), "clearing an idle day is silent")
	_, err := tr.Select(context.Background(), 0, 1)
	require.NoError(t, err)
	oracle.release(1, true, nil)
	waitIdle(t, tr)
	require.NoError(t, tr.Clear(0))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []Status{StatusPending, StatusAvailable, StatusIdle}, seen)
}

// instantOracle answers immediately, so results race with new selections.
type instantOracle struct{}

func (instantOracle) CheckQueueAvailability(_ context.Context, _, queue int) (bool, error) {
	return queue%2 == 1, nil
}

func TestTracker_OnChangeArrivesInVersionOrder(t *testing.T) {
	var mu sync.Mutex
	seen := make(map[int][]Reservation)
	tr := newTestTracker(t, instantOracle{}, WithOnChange(func(r Reservation) {
		mu.Lock()
		defer mu.Unlock()
		seen[r.DayIndex] = append(seen[r.DayIndex], r)
	}))

	var wg sync.WaitGroup
	for day := 0; day < 3; day++ {
		wg.Add(1)
		go func(day int) {
			defer wg.Done()
			for i := 1; i <= 200; i++ {
				_, err := tr.Select(context.Background(), day, i%4+1)
				assert.NoError(t, err)
				if i%25 == 0 {
					assert.NoError(t, tr.Clear(day))
				}
			}
		}(day)
	}
	wg.Wait()
	waitIdle(t, tr)

	mu.Lock()
	defer mu.Unlock()
	for day := 0; day < 3; day++ {
		changes := seen[day]
		require.NotEmpty(t, changes, "day %d", day)
		for i := 1; i < len(changes); i++ {
			prev, cur := changes[i-1], changes[i]
			require.GreaterOrEqual(t, cur.Version, prev.Version, "day %d change %d", day, i)
			if cur.Version == prev.Version {
				assert.Equal(t, StatusPending, prev.Status, "day %d change %d", day, i)
			}
		}
		last, err := tr.Get(day)
		require.NoError(t, err)
		assert.Equal(t, last, changes[len(changes)-1], "day %d", day)
	}
}

func TestTracker_InvalidInput(t *testing.T) {
	tr := newTestTracker(t, newGatedOracle())

	_, err := tr.Select(context.Background(), 7, 1)
	assert.ErrorIs(t, err, model.ErrIndexOutOfRange)
	assert.ErrorIs(t, tr.Clear(-1), model.ErrIndexOutOfRange)
	_, err = tr.Get(10)
	assert.ErrorIs(t, err, model.ErrIndexOutOfRange)

	_, err = tr.Select(context.Background(), 0, -2)
	assert.Error(t, err)
}

func TestTracker_VersionIncreases(t *testing.T) {
	oracle := newGatedOracle()
	tr := newTestTracker(t, oracle)

	r1, err := tr.Select(context.Background(), 1, 1)
	require.NoError(t, err)
	r2, err := tr.Select(context.Background(), 1, 2)
	require.NoError(t, err)
	assert.Greater(t, r2.Version, r1.Version)

	oracle.release(1, true, nil)
	oracle.release(2, true, nil)
	waitIdle(t, tr)
}

func TestTracker_Close(t *testing.T) {
	tr := newTestTracker(t, blockingOracle{})
	_, err := tr.Select(context.Background(), 0, 1)
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		tr.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("close did not return")
	}

	_, err = tr.Select(context.Background(), 0, 2)
	assert.ErrorIs(t, err, ErrClosed)
	r, err := tr.Get(0)
	require.NoError(t, err)
	assert.Equal(t, 1, r.QueueNumber)
}
