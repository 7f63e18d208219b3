// Package controllerclient is the caching, best-effort HTTP client
// endpoints and the proxy use to talk to the controller service: fetch
// live config values and post per-counter deltas, without ever
// blocking the hot path on an unreachable controller.
package controllerclient

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	// CacheLife is how long a successful /config fetch is trusted
	// before the next call re-fetches.
	CacheLife = time.Second

	// RetryDelay is the cooldown after a failed /config fetch before
	// trying again; GetConfig returns the caller's default during
	// the cooldown.
	RetryDelay = 30 * time.Second
)

// Client is a caching, non-blocking collaborator for one controller
// endpoint. Safe for concurrent use: a proxy's poll goroutine and its
// bridge worker may both read config through the same Client.
type Client struct {
	endpoint string
	http     *http.Client
	log      *logrus.Entry

	mu        sync.Mutex
	cache     map[string]float64
	nextReq   time.Time
	retryTime time.Time
}

// New builds a Client against endpoint (e.g. "http://127.0.0.1:5000").
// log may be nil to suppress diagnostics.
func New(endpoint string, log *logrus.Entry) *Client {
	return &Client{
		endpoint: endpoint,
		http:     &http.Client{Timeout: 5 * time.Second},
		log:      log,
		cache:    make(map[string]float64),
	}
}

func (c *Client) logf(format string, args ...interface{}) {
	if c.log != nil {
		c.log.Errorf(format, args...)
	}
}

// GetConfig returns the cached value for key, refreshing from
// GET /config when the cache has expired, and falling back to
// defaultValue whenever the controller is unreachable or mid-cooldown.
// Never blocks longer than the HTTP client's timeout, and never fails
// the caller's hot path.
func (c *Client) GetConfig(key string, defaultValue float64) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	if now.Before(c.nextReq) {
		if v, ok := c.cache[key]; ok {
			return v
		}
		return defaultValue
	}

	if now.Before(c.retryTime) {
		return defaultValue
	}

	resp, err := c.http.Get(mustJoin(c.endpoint, "/config"))
	if err != nil {
		c.logf("controllerclient: unreachable fetching /config, retrying in %s: %v", RetryDelay, err)
		c.retryTime = time.Now().Add(RetryDelay)
		return defaultValue
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.logf("controllerclient: /config returned status %d, retrying in %s", resp.StatusCode, RetryDelay)
		c.retryTime = time.Now().Add(RetryDelay)
		return defaultValue
	}

	var payload map[string]float64
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		c.logf("controllerclient: malformed /config body, retrying in %s: %v", RetryDelay, err)
		c.retryTime = time.Now().Add(RetryDelay)
		return defaultValue
	}

	c.cache = payload
	c.nextReq = time.Now().Add(CacheLife)

	if v, ok := c.cache[key]; ok {
		return v
	}
	return defaultValue
}

// PostDelta posts a +1 delta for key to /statistics. Best-effort: a
// failure is logged once and otherwise ignored, satisfying
// mutator.CounterSink.
func (c *Client) PostDelta(key string) {
	body, _ := json.Marshal(map[string]int{key: 1})

	resp, err := c.http.Post(mustJoin(c.endpoint, "/statistics"), "application/json", bytes.NewReader(body))
	if err != nil {
		c.logf("controllerclient: error posting statistics: %v", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.logf("controllerclient: error posting statistics, status %d", resp.StatusCode)
	}
}

func mustJoin(endpoint, path string) string {
	u, err := url.Parse(endpoint)
	if err != nil {
		return endpoint + path
	}
	return u.JoinPath(path).String()
}
