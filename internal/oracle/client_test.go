package oracle

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"timeplanner/internal/metrics"
	"timeplanner/internal/model"
)

func newBackend(t *testing.T, hits *int32, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(hits, 1)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestClient_CheckQueueAvailability(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		want    bool
		wantErr bool
	}{
		{name: "available", status: http.StatusOK, body: `{"available":true}`, want: true},
		{name: "taken", status: http.StatusOK, body: `{"available":false}`, want: false},
		{name: "server error", status: http.StatusInternalServerError, body: `{}`, wantErr: true},
		{name: "garbage", status: http.StatusOK, body: `not json`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var hits int32
			srv := newBackend(t, &hits, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/api/v1/queues/2/3/availability", r.URL.Path)
				assert.Equal(t, "secret", r.Header.Get("x-api-key"))
				assert.NotEmpty(t, r.Header.Get("x-request-id"))
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			c := NewClient(srv.URL+"/", "secret", time.Second)
			got, err := c.CheckQueueAvailability(context.Background(), 2, 3)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestClient_RejectsBadInput(t *testing.T) {
	var hits int32
	srv := newBackend(t, &hits, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"available":true}`))
	})
	c := NewClient(srv.URL, "", time.Second)

	_, err := c.CheckQueueAvailability(context.Background(), 7, 1)
	assert.ErrorIs(t, err, model.ErrIndexOutOfRange)
	_, err = c.CheckQueueAvailability(context.Background(), 0, 0)
	assert.Error(t, err)
	assert.Zero(t, atomic.LoadInt32(&hits))
}

func TestClient_RedisCache(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	var hits int32
	srv := newBackend(t, &hits, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"available":true}`))
	})

	m := metrics.NewMetrics(prometheus.NewRegistry())
	c := NewClient(srv.URL, "", time.Second)
	c.UseRedisCache(rdb, time.Minute)
	c.UseMetrics(m)

	for i := 0; i < 3; i++ {
		ok, err := c.CheckQueueAvailability(context.Background(), 1, 2)
		require.NoError(t, err)
		assert.True(t, ok)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.OracleCacheHits))
	assert.True(t, mr.Exists(CacheKey(1, 2)))

	mr.FastForward(2 * time.Minute)
	_, err := c.CheckQueueAvailability(context.Background(), 1, 2)
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&hits))
}

func TestClient_ErrorsAreNotCached(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	var hits int32
	srv := newBackend(t, &hits, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	c := NewClient(srv.URL, "", time.Second)
	c.UseRedisCache(rdb, time.Minute)

	_, err := c.CheckQueueAvailability(context.Background(), 0, 1)
	require.Error(t, err)
	assert.False(t, mr.Exists(CacheKey(0, 1)))
}

func TestClient_RateLimitHonoursContext(t *testing.T) {
	var hits int32
	srv := newBackend(t, &hits, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"available":true}`))
	})
	c := NewClient(srv.URL, "", time.Second)
	c.UseRateLimit(0.001, 1)

	_, err := c.CheckQueueAvailability(context.Background(), 0, 1)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = c.CheckQueueAvailability(ctx, 0, 2)
	assert.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}

func TestClient_HealthCheck(t *testing.T) {
	var hits int32
	var healthy atomic.Bool
	healthy.Store(true)
	srv := newBackend(t, &hits, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/healthz", r.URL.Path)
		if !healthy.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
	})
	c := NewClient(srv.URL, "", time.Second)

	assert.NoError(t, c.HealthCheck(context.Background()))
	healthy.Store(false)
	assert.Error(t, c.HealthCheck(context.Background()))
}

func TestOffline(t *testing.T) {
	ok, err := Offline{}.CheckQueueAvailability(context.Background(), 4, 9)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = Offline{}.CheckQueueAvailability(context.Background(), -1, 1)
	assert.ErrorIs(t, err, model.ErrIndexOutOfRange)
}
