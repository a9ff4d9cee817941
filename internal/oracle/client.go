// Package oracle implements the queue availability lookup over HTTP.
package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"timeplanner/internal/metrics"
	"timeplanner/internal/model"
)

// Client calls the booking backend's queue availability API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter

	redis    *redis.Client
	cacheTTL time.Duration

	metrics *metrics.Metrics
}

// AvailabilityResponse represents the response from availability API.
type AvailabilityResponse struct {
	Available bool `json:"available"`
}

// NewClient constructs a client with baseURL and API key.
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// UseRedisCache configures optional Redis caching of availability answers.
func (c *Client) UseRedisCache(redisClient *redis.Client, ttl time.Duration) {
	c.redis = redisClient
	c.cacheTTL = ttl
}

// UseRateLimit caps outgoing requests at rps with the given burst.
func (c *Client) UseRateLimit(rps float64, burst int) {
	if rps <= 0 {
		c.limiter = nil
		return
	}
	if burst <= 0 {
		burst = 1
	}
	c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
}

func (c *Client) UseMetrics(m *metrics.Metrics) {
	c.metrics = m
}

// CheckQueueAvailability asks whether queueNumber is free on dayIndex.
func (c *Client) CheckQueueAvailability(ctx context.Context, dayIndex, queueNumber int) (bool, error) {
	if err := model.CheckIndex(dayIndex); err != nil {
		return false, err
	}
	if queueNumber <= 0 {
		return false, fmt.Errorf("queue number %d: must be positive", queueNumber)
	}

	endpoint := fmt.Sprintf("%s/api/v1/queues/%d/%d/availability", c.baseURL, dayIndex, queueNumber)
	cacheKey := CacheKey(dayIndex, queueNumber)
	var resp AvailabilityResponse

	if c.readCache(ctx, cacheKey, &resp) {
		c.metrics.IncCacheHit()
		return resp.Available, nil
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return false, fmt.Errorf("rate limiter: %w", err)
		}
	}

	if err := c.doGet(ctx, endpoint, &resp); err != nil {
		return false, fmt.Errorf("check queue %d on day %d: %w", queueNumber, dayIndex, err)
	}
	c.writeCache(ctx, cacheKey, resp)
	return resp.Available, nil
}

// CacheKey is the Redis key of one availability answer.
func CacheKey(dayIndex, queueNumber int) string {
	return fmt.Sprintf("queue_availability:%d:%d", dayIndex, queueNumber)
}

func (c *Client) readCache(ctx context.Context, key string, out any) bool {
	if c.redis == nil || c.cacheTTL <= 0 {
		return false
	}
	val, err := c.redis.Get(ctx, key).Result()
	if err != nil {
		return false
	}
	if err := json.Unmarshal([]byte(val), out); err != nil {
		return false
	}
	return true
}

func (c *Client) writeCache(ctx context.Context, key string, val any) {
	if c.redis == nil || c.cacheTTL <= 0 {
		return
	}
	data, err := json.Marshal(val)
	if err != nil {
		return
	}
	_ = c.redis.Set(ctx, key, data, c.cacheTTL).Err()
}

func (c *Client) doGet(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return err
	}
	c.addHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("http %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) addHeaders(req *http.Request) {
	req.Header.Set("Accept", "application/json")
	req.Header.Set("x-request-id", uuid.NewString())
	if c.apiKey != "" {
		req.Header.Set("x-api-key", c.apiKey)
	}
}

// HealthCheck checks if the backend API is reachable.
func (c *Client) HealthCheck(ctx context.Context) error {
	endpoint := fmt.Sprintf("%s/healthz", c.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check failed: %d", resp.StatusCode)
	}
	return nil
}

// Offline answers every check with "available". It stands in for the
// backend when no base URL is configured.
type Offline struct{}

func (Offline) CheckQueueAvailability(_ context.Context, dayIndex, _ int) (bool, error) {
	if err := model.CheckIndex(dayIndex); err != nil {
		return false, err
	}
	return true, nil
}
