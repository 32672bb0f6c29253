// File: internal/proxy/pool.go
// Description: Round-robin pool of upstream proxies with failure accounting.
// An endpoint that fails repeatedly is benched for a cooldown period instead
// of being removed, so transient upstream trouble heals on its own.

package proxy

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/veriform/veriform-cli/internal/config"
)

const healthDialTimeout = 5 * time.Second

// ErrNoEndpoints signals that every configured upstream is cooling down.
var ErrNoEndpoints = fmt.Errorf("no proxy endpoints available")

type endpoint struct {
	url       *url.URL
	failures  int
	coolUntil time.Time
}

// Pool hands out upstream proxies round-robin and tracks their health.
type Pool struct {
	mu        sync.Mutex
	endpoints []*endpoint
	next      int

	maxFailures int
	cooldown    time.Duration
	logger      *zap.Logger
	now         func() time.Time
}

// NewPool parses the configured endpoints into a pool.
func NewPool(cfg config.ProxyConfig, logger *zap.Logger) (*Pool, error) {
	if len(cfg.Endpoints) == 0 {
		return nil, fmt.Errorf("proxy pool requires at least one endpoint")
	}

	endpoints := make([]*endpoint, 0, len(cfg.Endpoints))
	for _, raw := range cfg.Endpoints {
		u, err := url.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy endpoint %q: %w", raw, err)
		}
		if u.Scheme == "" || u.Host == "" {
			return nil, fmt.Errorf("proxy endpoint %q must include a scheme and host", raw)
		}
		endpoints = append(endpoints, &endpoint{url: u})
	}

	maxFailures := cfg.MaxFailures
	if maxFailures <= 0 {
		maxFailures = 3
	}

	return &Pool{
		endpoints:   endpoints,
		maxFailures: maxFailures,
		cooldown:    cfg.Cooldown,
		logger:      logger.Named("proxy_pool"),
		now:         time.Now,
	}, nil
}

// Next returns the next available upstream. Endpoints in cooldown are
// skipped; when all are benched, ErrNoEndpoints is returned.
func (p *Pool) Next() (*url.URL, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	for i := 0; i < len(p.endpoints); i++ {
		ep := p.endpoints[p.next%len(p.endpoints)]
		p.next++
		if now.Before(ep.coolUntil) {
			continue
		}
		return ep.url, nil
	}
	return nil, ErrNoEndpoints
}

// Report records the outcome of using an upstream. Reaching the failure
// threshold benches the endpoint for the cooldown period and resets its
// counter.
func (p *Pool) Report(u *url.URL, ok bool) {
	if u == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, ep := range p.endpoints {
		if ep.url.String() != u.String() {
			continue
		}
		if ok {
			ep.failures = 0
			return
		}
		ep.failures++
		if ep.failures >= p.maxFailures {
			ep.coolUntil = p.now().Add(p.cooldown)
			ep.failures = 0
			p.logger.Warn("Proxy endpoint benched",
				zap.String("endpoint", ep.url.Host),
				zap.Time("until", ep.coolUntil))
		}
		return
	}
}

// Active returns how many endpoints are currently usable.
func (p *Pool) Active() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	active := 0
	for _, ep := range p.endpoints {
		if !now.Before(ep.coolUntil) {
			active++
		}
	}
	return active
}

// HealthCheck dials every endpoint concurrently and benches the unreachable
// ones. The first dial error is returned for reporting; the pool stays usable
// either way.
func (p *Pool) HealthCheck(ctx context.Context) error {
	p.mu.Lock()
	targets := make([]*url.URL, 0, len(p.endpoints))
	for _, ep := range p.endpoints {
		targets = append(targets, ep.url)
	}
	p.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	for _, target := range targets {
		g.Go(func() error {
			dialer := &net.Dialer{Timeout: healthDialTimeout}
			conn, err := dialer.DialContext(gctx, "tcp", target.Host)
			if err != nil {
				p.logger.Warn("Proxy endpoint unreachable",
					zap.String("endpoint", target.Host), zap.Error(err))
				p.Report(target, false)
				return fmt.Errorf("endpoint %s unreachable: %w", target.Host, err)
			}
			conn.Close()
			p.Report(target, true)
			return nil
		})
	}
	return g.Wait()
}
