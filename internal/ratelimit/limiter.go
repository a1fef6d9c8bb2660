// Package ratelimit paces browser navigation per destination host so that a
// check run never hammers the sites it audits.
package ratelimit

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Config defines the pacing configuration.
type Config struct {
	RPS             float64       // Navigations per second per host
	Burst           int           // Burst size per host
	CleanupInterval time.Duration // How often to drop idle host limiters
	// Exempt hosts are never paced. Matching ignores case and port.
	Exempt []string
}

// DefaultConfig paces each host to two navigations a second.
var DefaultConfig = Config{
	RPS:             2,
	Burst:           4,
	CleanupInterval: 10 * time.Minute,
}

type hostEntry struct {
	limiter  *rate.Limiter
	lastUsed time.Time
}

// Pacer manages one rate limiter per host.
type Pacer struct {
	limiters map[string]*hostEntry
	exempt   map[string]bool
	mu       sync.RWMutex
	config   Config

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewPacer creates a pacer with the given configuration.
// It starts a background goroutine for cleanup.
func NewPacer(config Config) *Pacer {
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = DefaultConfig.CleanupInterval
	}
	p := &Pacer{
		limiters: make(map[string]*hostEntry),
		exempt:   make(map[string]bool, len(config.Exempt)),
		config:   config,
		stopCh:   make(chan struct{}),
	}
	for _, h := range config.Exempt {
		p.exempt[HostKey(h)] = true
	}

	p.wg.Add(1)
	go p.cleanupLoop()

	return p
}

// HostKey normalizes a host or URL to the key limiters are stored under.
func HostKey(hostOrURL string) string {
	s := strings.TrimSpace(hostOrURL)
	if s == "" {
		return ""
	}
	if !strings.Contains(s, "://") {
		s = "//" + s
	}
	u, err := url.Parse(s)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

// Wait blocks until a navigation to rawURL is allowed or ctx is done.
// URLs without a host, such as about:blank, are never paced.
func (p *Pacer) Wait(ctx context.Context, rawURL string) error {
	limiter := p.Limiter(rawURL)
	if limiter == nil {
		return nil
	}
	return limiter.Wait(ctx)
}

// Limiter returns the limiter for a host, creating one if necessary.
// It returns nil for exempt or empty hosts.
func (p *Pacer) Limiter(hostOrURL string) *rate.Limiter {
	host := HostKey(hostOrURL)
	if host == "" || p.exempt[host] {
		return nil
	}

	// Fast path: check if limiter exists with read lock
	p.mu.RLock()
	entry, exists := p.limiters[host]
	p.mu.RUnlock()
	if exists {
		p.touch(entry)
		return entry.limiter
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	// Double-check after acquiring write lock
	if entry, exists = p.limiters[host]; exists {
		entry.lastUsed = time.Now()
		return entry.limiter
	}

	limiter := rate.NewLimiter(rate.Limit(p.config.RPS), p.config.Burst)
	p.limiters[host] = &hostEntry{limiter: limiter, lastUsed: time.Now()}
	return limiter
}

func (p *Pacer) touch(entry *hostEntry) {
	p.mu.Lock()
	entry.lastUsed = time.Now()
	p.mu.Unlock()
}

// Cleanup removes limiters that have been idle for longer than the cleanup interval.
func (p *Pacer) Cleanup() {
	p.mu.Lock()
	defer p.mu.Unlock()

	cutoff := time.Now().Add(-p.config.CleanupInterval)
	for host, entry := range p.limiters {
		if entry.lastUsed.Before(cutoff) {
			delete(p.limiters, host)
		}
	}
}

func (p *Pacer) cleanupLoop() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.Cleanup()
		case <-p.stopCh:
			return
		}
	}
}

// Stop stops the cleanup goroutine and waits for it to finish. It is safe to
// call more than once.
func (p *Pacer) Stop() {
	p.stopOnce.Do(func() { close(p.stopCh) })
	p.wg.Wait()
}

// Len returns the number of active host limiters.
func (p *Pacer) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.limiters)
}
