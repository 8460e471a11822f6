// Package circuitbreaker stops a remote executor from sending to an address
// whose recent sends keep failing.
//
// Closed ──(failure rate ≥ threshold)──► Open ──(OpenFor elapsed)──► HalfOpen
//
//	▲                                                           │
//	└──────────────────(all probes succeed)─────────────────────┘
//	                    (any probe fails) ─────────────────────► Open
//
// Only transport-level failures count. An error raised by the task itself
// reached the execution side and came back, so it is a success here.
package circuitbreaker

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// ErrOpen is returned by Allow while the breaker rejects sends.
var ErrOpen = errors.New("circuit open")

// State is the breaker state.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// Config sets when a breaker trips. The zero Config disables breaking.
type Config struct {
	FailurePct     float64       // failure percentage that trips the breaker (0-100)
	MinRequests    int           // sends in the window before the rate is trusted
	Window         time.Duration // sliding window for the failure rate
	OpenFor        time.Duration // how long an open breaker rejects sends
	HalfOpenProbes int           // sends let through while half open
}

// Enabled reports whether c describes a usable breaker.
func (c Config) Enabled() bool {
	return c.FailurePct > 0 && c.Window > 0 && c.OpenFor > 0
}

// Breaker guards one address.
type Breaker struct {
	mu        sync.Mutex
	cfg       Config
	state     State
	successes []time.Time
	failures  []time.Time
	openedAt  time.Time
	probes    int
	probesOK  int
}

func New(cfg Config) *Breaker {
	if cfg.HalfOpenProbes <= 0 {
		cfg.HalfOpenProbes = 1
	}
	if cfg.MinRequests <= 0 {
		cfg.MinRequests = 1
	}
	return &Breaker{cfg: cfg}
}

// Allow returns ErrOpen when a send must not be attempted.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.advance(time.Now())
	switch b.state {
	case StateOpen:
		return ErrOpen
	case StateHalfOpen:
		if b.probes >= b.cfg.HalfOpenProbes {
			return ErrOpen
		}
		b.probes++
	}
	return nil
}

// Record feeds the outcome of an allowed send back into the breaker.
func (b *Breaker) Record(ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	switch b.state {
	case StateClosed:
		if ok {
			b.successes = append(b.successes, now)
		} else {
			b.failures = append(b.failures, now)
		}
		b.trim(now)
		if !ok {
			b.checkThreshold(now)
		}
	case StateHalfOpen:
		if !ok {
			b.trip(now)
			return
		}
		b.probesOK++
		if b.probesOK >= b.cfg.HalfOpenProbes {
			b.state = StateClosed
			b.successes = b.successes[:0]
			b.failures = b.failures[:0]
		}
	}
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.advance(time.Now())
	return b.state
}

// advance moves an expired open breaker to half open. Must hold mu.
func (b *Breaker) advance(now time.Time) {
	if b.state == StateOpen && now.Sub(b.openedAt) >= b.cfg.OpenFor {
		b.state = StateHalfOpen
		b.probes = 0
		b.probesOK = 0
	}
}

func (b *Breaker) trip(now time.Time) {
	b.state = StateOpen
	b.openedAt = now
}

// maxWindowEntries caps each window slice.
const maxWindowEntries = 10000

func (b *Breaker) trim(now time.Time) {
	cutoff := now.Add(-b.cfg.Window)
	b.successes = trimBefore(b.successes, cutoff)
	b.failures = trimBefore(b.failures, cutoff)
	if len(b.successes) > maxWindowEntries {
		b.successes = b.successes[len(b.successes)-maxWindowEntries:]
	}
	if len(b.failures) > maxWindowEntries {
		b.failures = b.failures[len(b.failures)-maxWindowEntries:]
	}
}

func (b *Breaker) checkThreshold(now time.Time) {
	total := len(b.successes) + len(b.failures)
	if total < b.cfg.MinRequests {
		return
	}
	if float64(len(b.failures))/float64(total)*100 >= b.cfg.FailurePct {
		b.trip(now)
	}
}

func trimBefore(times []time.Time, cutoff time.Time) []time.Time {
	i := sort.Search(len(times), func(i int) bool { return !times[i].Before(cutoff) })
	if i == 0 {
		return times
	}
	return append(times[:0], times[i:]...)
}

// Registry holds one breaker per address, all sharing a Config.
type Registry struct {
	cfg      Config
	mu       sync.RWMutex
	breakers map[string]*Breaker
}

// NewRegistry returns nil when cfg is not enabled; a nil Registry allows
// every send.
func NewRegistry(cfg Config) *Registry {
	if !cfg.Enabled() {
		return nil
	}
	return &Registry{cfg: cfg, breakers: make(map[string]*Breaker)}
}

// For returns the breaker for address, creating it on first use.
func (r *Registry) For(address string) *Breaker {
	r.mu.RLock()
	b, ok := r.breakers[address]
	r.mu.RUnlock()
	if ok {
		return b
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.breakers[address]; ok {
		return b
	}
	b = New(r.cfg)
	r.breakers[address] = b
	return b
}

// Allow checks the breaker for address.
func (r *Registry) Allow(address string) error {
	if r == nil {
		return nil
	}
	if err := r.For(address).Allow(); err != nil {
		return fmt.Errorf("%w for %s", err, address)
	}
	return nil
}

// Record reports a send outcome for address.
func (r *Registry) Record(address string, ok bool) {
	if r == nil {
		return
	}
	r.For(address).Record(ok)
}

// Snapshot maps each address to its breaker state.
func (r *Registry) Snapshot() map[string]string {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]string, len(r.breakers))
	for a, b := range r.breakers {
		out[a] = b.State().String()
	}
	return out
}
