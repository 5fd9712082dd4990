package loadgen

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

type Config struct {
	BaseURL     string
	Profile     string
	Duration    time.Duration
	RPS         int
	Concurrency int
	Seed        int64
	Password    string
}

type Result struct {
	TotalRequests int64
	Failures      int64
	Status2xx     int64
	Status4xx     int64
	Status429     int64
	Status5xx     int64
	MaxLatency    time.Duration
}

type counters struct {
	total, failures, s2xx, s4xx, s429, s5xx atomic.Int64
	maxLatency                               atomic.Int64
}

func (c *counters) observe(status int, latency time.Duration) {
	c.total.Add(1)
	switch {
	case status >= 200 && status < 300:
		c.s2xx.Add(1)
	case status == http.StatusTooManyRequests:
		c.s4xx.Add(1)
		c.s429.Add(1)
	case status >= 400 && status < 500:
		c.s4xx.Add(1)
	case status >= 500:
		c.s5xx.Add(1)
	}
	for {
		cur := c.maxLatency.Load()
		if int64(latency) <= cur || c.maxLatency.CompareAndSwap(cur, int64(latency)) {
			return
		}
	}
}

func (c *counters) result() Result {
	return Result{
		TotalRequests: c.total.Load(),
		Failures:      c.failures.Load(),
		Status2xx:     c.s2xx.Load(),
		Status4xx:     c.s4xx.Load(),
		Status429:     c.s429.Load(),
		Status5xx:     c.s5xx.Load(),
		MaxLatency:    time.Duration(c.maxLatency.Load()),
	}
}

// Run drives the selected profile against a running API until Duration
// elapses. Requests are paced by a single ticker and executed by Concurrency
// workers, each holding its own employee identity.
func Run(ctx context.Context, cfg Config) (Result, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:8080"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Duration <= 0 {
		cfg.Duration = 10 * time.Second
	}
	if cfg.RPS <= 0 {
		cfg.RPS = 15
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 5
	}
	if cfg.Password == "" {
		cfg.Password = "loadgen-Passw0rd"
	}
	if !knownProfile(cfg.Profile) {
		return Result{}, fmt.Errorf("unknown profile: %s", cfg.Profile)
	}

	client := &http.Client{Timeout: 5 * time.Second}
	ctx, cancel := context.WithTimeout(ctx, cfg.Duration)
	defer cancel()

	var stats counters
	jobs := make(chan struct{}, cfg.Concurrency*2)
	g, gctx := errgroup.WithContext(ctx)

	for i := range cfg.Concurrency {
		w := newWorker(cfg, i)
		g.Go(func() error {
			for range jobs {
				w.step(gctx, client, &stats)
			}
			return nil
		})
	}

	g.Go(func() error {
		defer close(jobs)
		ticker := time.NewTicker(time.Second / time.Duration(cfg.RPS))
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				select {
				case jobs <- struct{}{}:
				default:
					// every worker is busy; drop the tick
				}
			}
		}
	})

	if err := g.Wait(); err != nil {
		return stats.result(), err
	}
	return stats.result(), nil
}

func knownProfile(p string) bool {
	switch strings.ToLower(p) {
	case "", "auth", "protected", "error-heavy":
		return true
	default:
		return false
	}
}

type request struct {
	method string
	path   string
	body   string
	bearer string
}

type worker struct {
	profile    string
	code       string
	name       string
	password   string
	baseURL    string
	registered bool
	token      string
	n          int
}

func newWorker(cfg Config, idx int) *worker {
	return &worker{
		profile:  strings.ToLower(cfg.Profile),
		code:     fmt.Sprintf("LG-%d-%03d", cfg.Seed, idx),
		name:     fmt.Sprintf("Load Worker %d", idx),
		password: cfg.Password,
		baseURL:  cfg.BaseURL,
	}
}

func (w *worker) next() request {
	defer func() { w.n++ }()
	switch w.profile {
	case "protected":
		if !w.registered {
			return w.register()
		}
		if w.token == "" {
			return w.login(w.password)
		}
		return request{method: http.MethodGet, path: "/protected", bearer: w.token}
	case "error-heavy":
		switch w.n % 4 {
		case 0:
			return w.login("wrong-password")
		case 1:
			return request{method: http.MethodGet, path: "/protected"}
		case 2:
			return request{method: http.MethodGet, path: "/protected", bearer: "not.a.token"}
		default:
			return request{method: http.MethodPost, path: "/register-user", body: "{"}
		}
	default:
		if !w.registered {
			return w.register()
		}
		return w.login(w.password)
	}
}

func (w *worker) register() request {
	body, _ := json.Marshal(map[string]string{
		"employeeCode": w.code,
		"displayName":  w.name,
		"password":     w.password,
	})
	return request{method: http.MethodPost, path: "/register-user", body: string(body)}
}

func (w *worker) login(password string) request {
	body, _ := json.Marshal(map[string]string{"employeeCode": w.code, "password": password})
	return request{method: http.MethodPost, path: "/login-user", body: string(body)}
}

func (w *worker) step(ctx context.Context, client *http.Client, stats *counters) {
	r := w.next()
	var body io.Reader
	if r.body != "" {
		body = strings.NewReader(r.body)
	}
	req, err := http.NewRequestWithContext(ctx, r.method, w.baseURL+r.path, body)
	if err != nil {
		stats.failures.Add(1)
		return
	}
	if r.body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if r.bearer != "" {
		req.Header.Set("Authorization", "Bearer "+r.bearer)
	}
	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		stats.failures.Add(1)
		return
	}
	defer resp.Body.Close()
	stats.observe(resp.StatusCode, time.Since(start))
	w.absorb(r, resp)
}

func (w *worker) absorb(r request, resp *http.Response) {
	switch {
	case r.path == "/register-user" && (resp.StatusCode == http.StatusCreated || resp.StatusCode == http.StatusConflict):
		w.registered = true
	case r.path == "/login-user" && resp.StatusCode == http.StatusOK && w.profile == "protected":
		var payload struct {
			Token string `json:"token"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&payload); err == nil {
			w.token = payload.Token
		}
	case r.path == "/protected" && resp.StatusCode == http.StatusUnauthorized && r.bearer != "" && w.profile == "protected":
		w.token = ""
	}
	_, _ = io.Copy(io.Discard, resp.Body)
}
