package discovery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/bl4ck0w1/forkhound/pkg/utils"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const DefaultRegistryURL = "https://api.llama.fi"

var ErrRateLimited = errors.New("registry rate limit reached")

type ClientConfig struct {
	BaseURL          string        `yaml:"base_url" json:"base_url" mapstructure:"base_url"`
	Timeout          time.Duration `yaml:"timeout" json:"timeout" mapstructure:"timeout"`
	RequestInterval  time.Duration `yaml:"request_interval" json:"request_interval" mapstructure:"request_interval"`
	HourlyBudget     int           `yaml:"hourly_budget" json:"hourly_budget" mapstructure:"hourly_budget"`
	Retries          int           `yaml:"retries" json:"retries" mapstructure:"retries"`
	RetryDelay       time.Duration `yaml:"retry_delay" json:"retry_delay" mapstructure:"retry_delay"`
	RateLimitBackoff time.Duration `yaml:"rate_limit_backoff" json:"rate_limit_backoff" mapstructure:"rate_limit_backoff"`
	UserAgent        string        `yaml:"user_agent" json:"user_agent" mapstructure:"user_agent"`
}

func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		BaseURL:          DefaultRegistryURL,
		Timeout:          30 * time.Second,
		RequestInterval:  2 * time.Second,
		HourlyBudget:     4500,
		Retries:          3,
		RetryDelay:       5 * time.Second,
		RateLimitBackoff: time.Minute,
		UserAgent:        "forkhound/1.0",
	}
}

// Client talks to the DeFi Llama protocol registry. Requests are spaced by a
// token bucket and capped by a rolling hourly budget.
type Client struct {
	config     ClientConfig
	httpClient *http.Client
	limiter    *rate.Limiter
	budget     *hourlyBudget
	logger     *logrus.Logger
}

func NewClient(config ClientConfig, logger *logrus.Logger) *Client {
	if logger == nil {
		logger = logrus.New()
	}
	def := DefaultClientConfig()
	if config.BaseURL == "" {
		config.BaseURL = def.BaseURL
	}
	if config.Timeout <= 0 {
		config.Timeout = def.Timeout
	}
	if config.HourlyBudget <= 0 {
		config.HourlyBudget = def.HourlyBudget
	}
	if config.Retries < 0 {
		config.Retries = 0
	}
	if config.UserAgent == "" {
		config.UserAgent = def.UserAgent
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")

	limit := rate.Inf
	if config.RequestInterval > 0 {
		limit = rate.Every(config.RequestInterval)
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   15 * time.Second,
			KeepAlive: 60 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2: true,
		MaxIdleConns:      20,
		IdleConnTimeout:   90 * time.Second,
	}

	return &Client{
		config:     config,
		httpClient: &http.Client{Transport: transport, Timeout: config.Timeout},
		limiter:    rate.NewLimiter(limit, 1),
		budget:     newHourlyBudget(config.HourlyBudget, time.Now),
		logger:     logger,
	}
}

// FetchProtocols returns every protocol record listed by the registry as
// loosely typed maps.
func (c *Client) FetchProtocols(ctx context.Context) ([]map[string]interface{}, error) {
	var records []map[string]interface{}
	if err := c.getJSON(ctx, "/protocols", &records); err != nil {
		return nil, err
	}
	c.logger.Infof("Fetched %d protocols from registry", len(records))
	return records, nil
}

func (c *Client) FetchProtocol(ctx context.Context, slug string) (map[string]interface{}, error) {
	var record map[string]interface{}
	if err := c.getJSON(ctx, "/protocol/"+slug, &record); err != nil {
		return nil, err
	}
	return record, nil
}

func (c *Client) getJSON(ctx context.Context, path string, v interface{}) error {
	url := c.config.BaseURL + path
	return utils.RetryWithContext(ctx, c.config.Retries+1, c.config.RetryDelay, func() error {
		if err := c.budget.wait(ctx, c.logger); err != nil {
			return utils.Permanent(err)
		}
		if err := c.limiter.Wait(ctx); err != nil {
			return utils.Permanent(err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return utils.Permanent(err)
		}
		req.Header.Set("User-Agent", c.config.UserAgent)
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			c.logger.Warnf("Registry request to %s failed: %v", url, err)
			return err
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusTooManyRequests:
			_, _ = io.Copy(io.Discard, resp.Body)
			c.logger.Warnf("Registry rate limit hit, backing off %s", c.config.RateLimitBackoff)
			return &utils.RetryAfterError{Wait: c.config.RateLimitBackoff, Err: ErrRateLimited}
		case resp.StatusCode >= 500:
			_, _ = io.Copy(io.Discard, resp.Body)
			return fmt.Errorf("registry %s: status %d", path, resp.StatusCode)
		case resp.StatusCode != http.StatusOK:
			_, _ = io.Copy(io.Discard, resp.Body)
			return utils.Permanent(fmt.Errorf("registry %s: status %d", path, resp.StatusCode))
		}

		if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
			return utils.Permanent(fmt.Errorf("decode registry response: %w", err))
		}
		return nil
	})
}

func (c *Client) RequestsThisHour() int { return c.budget.used() }

// hourlyBudget blocks callers once limit requests were made within the
// current hour window.
type hourlyBudget struct {
	mu     sync.Mutex
	limit  int
	count  int
	window time.Time
	now    func() time.Time
}

func newHourlyBudget(limit int, now func() time.Time) *hourlyBudget {
	return &hourlyBudget{limit: limit, window: now(), now: now}
}

func (b *hourlyBudget) wait(ctx context.Context, logger *logrus.Logger) error {
	for {
		b.mu.Lock()
		now := b.now()
		if now.Sub(b.window) >= time.Hour {
			b.window, b.count = now, 0
		}
		if b.count < b.limit {
			b.count++
			b.mu.Unlock()
			return nil
		}
		pause := b.window.Add(time.Hour).Sub(now)
		b.mu.Unlock()

		logger.Warnf("Hourly request budget of %d exhausted, pausing %s", b.limit, pause.Round(time.Second))
		select {
		case <-time.After(pause):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (b *hourlyBudget) used() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}
