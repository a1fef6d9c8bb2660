package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"pgregory.net/rapid"
)

// allow takes a token for hostOrURL without waiting.
func allow(p *Pacer, hostOrURL string) bool {
	l := p.Limiter(hostOrURL)
	return l == nil || l.Allow()
}

// hostGenerator generates plausible landing-page hosts
func hostGenerator() *rapid.Generator[string] {
	return rapid.StringMatching(`[a-z]{3,12}\.(jp|co\.jp|com)`)
}

// =============================================================================
// Property: Navigations within burst succeed
// =============================================================================

func testPacer_WithinBurst(t *rapid.T) {
	p := NewPacer(Config{RPS: 100, Burst: 50, CleanupInterval: time.Hour})
	defer p.Stop()

	host := hostGenerator().Draw(t, "host")
	n := rapid.IntRange(1, 50).Draw(t, "n")
	for i := 0; i < n; i++ {
		if !allow(p, host) {
			t.Fatalf("navigation %d of %d should have been allowed", i+1, n)
		}
	}
}

func TestPacer_WithinBurst(t *testing.T) {
	rapid.Check(t, testPacer_WithinBurst)
}

// =============================================================================
// Property: Hosts are paced independently, keyed case- and port-insensitively
// =============================================================================

func testPacer_HostIndependence(t *rapid.T) {
	p := NewPacer(Config{RPS: 0.001, Burst: 3, CleanupInterval: time.Hour})
	defer p.Stop()

	host1 := hostGenerator().Draw(t, "host1")
	host2 := hostGenerator().Filter(func(s string) bool { return s != host1 }).Draw(t, "host2")

	for i := 0; i < 3; i++ {
		allow(p, "https://" + host1 + "/tour/")
	}
	if allow(p, "HTTPS://" + host1 + ":443/other") {
		t.Fatal("host1 should be blocked after exhausting burst")
	}
	if !allow(p, host2) {
		t.Fatal("host2 should still be allowed")
	}
}

func TestPacer_HostIndependence(t *testing.T) {
	rapid.Check(t, testPacer_HostIndependence)
}

func TestPacer_ExemptHostsAreNeverPaced(t *testing.T) {
	p := NewPacer(Config{RPS: 0.001, Burst: 1, CleanupInterval: time.Hour, Exempt: []string{"127.0.0.1"}})
	defer p.Stop()

	for i := 0; i < 10; i++ {
		if !allow(p, "http://127.0.0.1:41234/lp") {
			t.Fatalf("exempt host blocked on attempt %d", i+1)
		}
	}
	if p.Len() != 0 {
		t.Fatalf("exempt host should not allocate a limiter, got %d", p.Len())
	}
}

func TestPacer_WaitIgnoresHostlessURLs(t *testing.T) {
	p := NewPacer(Config{RPS: 0.001, Burst: 1, CleanupInterval: time.Hour})
	defer p.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	for i := 0; i < 3; i++ {
		if err := p.Wait(ctx, "about:blank"); err != nil {
			t.Fatalf("about:blank should not be paced: %v", err)
		}
	}
}

func TestPacer_WaitHonorsContext(t *testing.T) {
	p := NewPacer(Config{RPS: 0.001, Burst: 1, CleanupInterval: time.Hour})
	defer p.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := p.Wait(ctx, "https://turkish.jp/"); err != nil {
		t.Fatalf("first navigation should pass: %v", err)
	}
	if err := p.Wait(ctx, "https://turkish.jp/tour/"); err == nil {
		t.Fatal("second navigation should fail once the context cannot cover the delay")
	}
}

func TestHostKey(t *testing.T) {
	cases := map[string]string{
		"https://Turkish.JP/tour/?a=1": "turkish.jp",
		"turkish.jp:8443":              "turkish.jp",
		"[::1]:8080":                   "::1",
		"":                             "",
		"about:blank":                  "",
	}
	for in, want := range cases {
		if got := HostKey(in); got != want {
			t.Fatalf("HostKey(%q) = %q, want %q", in, got, want)
		}
	}
}

// =============================================================================
// Property: Idle limiters get cleaned up after CleanupInterval
// =============================================================================

func testPacer_IdleCleanup(t *rapid.T) {
	interval := 10 * time.Millisecond
	p := NewPacer(Config{RPS: 100, Burst: 200, CleanupInterval: interval})
	defer p.Stop()

	n := rapid.IntRange(2, 10).Draw(t, "n")
	for i := 0; i < n; i++ {
		allow(p, hostGenerator().Draw(t, "host"))
	}
	if p.Len() == 0 {
		t.Fatal("expected some limiters to be created")
	}

	time.Sleep(interval + 5*time.Millisecond)
	p.Cleanup()

	if p.Len() != 0 {
		t.Fatalf("expected all idle limiters to be cleaned up, got %d remaining", p.Len())
	}
}

func TestPacer_IdleCleanup(t *testing.T) {
	rapid.Check(t, testPacer_IdleCleanup)
}

// =============================================================================
// Property: Pacer is thread-safe
// =============================================================================

func testPacer_ConcurrentAccess(t *rapid.T) {
	p := NewPacer(Config{RPS: 1000, Burst: 2000, CleanupInterval: time.Hour})
	defer p.Stop()

	numHosts := rapid.IntRange(2, 8).Draw(t, "numHosts")
	hosts := make([]string, numHosts)
	for i := range hosts {
		hosts[i] = hostGenerator().Draw(t, "host")
	}
	workers := rapid.IntRange(2, 10).Draw(t, "workers")

	var wg sync.WaitGroup
	var allowed atomic.Int64
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for r := 0; r < 20; r++ {
				if allow(p, hosts[(id+r)%numHosts]) {
					allowed.Add(1)
				}
			}
		}(w)
	}
	wg.Wait()

	if allowed.Load() != int64(workers*20) {
		t.Fatalf("expected every navigation within burst to pass, got %d of %d", allowed.Load(), workers*20)
	}
	if p.Len() > numHosts {
		t.Fatalf("more limiters (%d) than hosts (%d)", p.Len(), numHosts)
	}
}

func TestPacer_ConcurrentAccess(t *testing.T) {
	rapid.Check(t, testPacer_ConcurrentAccess)
}

func TestPacer_StopIsIdempotent(t *testing.T) {
	p := NewPacer(DefaultConfig)
	p.Stop()
	p.Stop()
}
