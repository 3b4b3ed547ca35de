package resilience

import (
	"errors"
	"sync"
	"time"
)

// ErrCircuitOpen is returned without invoking the protected operation
// while the breaker is shedding load.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// ErrTooManyRequests is returned in half-open state once the probe
// budget for the current window is spent.
var ErrTooManyRequests = errors.New("too many requests")

// State is the breaker's position in the Closed/Open/Half-Open cycle
type State int

const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half-open"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// Counts tracks outcomes within the current window
type Counts struct {
	Requests             uint32
	Successes            uint32
	Failures             uint32
	ConsecutiveSuccesses uint32
	ConsecutiveFailures  uint32
}

// Settings configures a breaker. Zero values take defaults tuned for
// the storage write path: trace saves are small, frequent and local,
// so the breaker tolerates a short burst of failures, opens after a
// sustained run of them, and probes again within seconds rather than
// waiting out a long remote-service backoff.
type Settings struct {
	// MaxRequests is the probe budget in half-open state
	MaxRequests uint32
	// Interval is the closed-state window after which counts reset
	Interval time.Duration
	// Timeout is how long the breaker stays open before probing
	Timeout time.Duration
	// ReadyToTrip decides, on each closed-state failure, whether to open
	ReadyToTrip func(counts Counts) bool
	// OnStateChange observes transitions, for logging
	OnStateChange func(from, to State)
}

const (
	defaultMaxRequests = 2
	defaultInterval    = 30 * time.Second
	defaultTimeout     = 5 * time.Second
	defaultTripAfter   = 6
)

// Breaker is a three-state circuit breaker. Safe for concurrent use.
type Breaker struct {
	settings Settings

	mu         sync.Mutex
	state      State
	generation uint64
	counts     Counts
	expiry     time.Time
}

// New creates a breaker, filling zero settings with write-path defaults
func New(settings Settings) *Breaker {
	if settings.MaxRequests == 0 {
		settings.MaxRequests = defaultMaxRequests
	}
	if settings.Interval == 0 {
		settings.Interval = defaultInterval
	}
	if settings.Timeout == 0 {
		settings.Timeout = defaultTimeout
	}
	if settings.ReadyToTrip == nil {
		settings.ReadyToTrip = func(counts Counts) bool {
			return counts.ConsecutiveFailures >= defaultTripAfter
		}
	}

	return &Breaker{
		settings: settings,
		state:    StateClosed,
		expiry:   time.Now().Add(settings.Interval),
	}
}

// State returns the breaker's current state
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	state, _ := b.current(time.Now())
	return state
}

// Execute runs fn unless the breaker rejects it, and feeds the outcome
// back into the state machine. The error from fn passes through
// unchanged; rejections surface as ErrCircuitOpen or
// ErrTooManyRequests.
func (b *Breaker) Execute(fn func() error) error {
	generation, err := b.admit()
	if err != nil {
		return err
	}

	err = fn()
	b.record(generation, err == nil)
	return err
}

func (b *Breaker) admit() (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	state, generation := b.current(now)

	switch {
	case state == StateOpen:
		return generation, ErrCircuitOpen
	case state == StateHalfOpen && b.counts.Requests >= b.settings.MaxRequests:
		return generation, ErrTooManyRequests
	}

	b.counts.Requests++
	return generation, nil
}

// record applies an outcome, unless the breaker has already moved to a
// new generation (state change or window rollover) since admission.
func (b *Breaker) record(generation uint64, success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	state, current := b.current(now)
	if current != generation {
		return
	}

	if success {
		b.counts.Successes++
		b.counts.ConsecutiveSuccesses++
		b.counts.ConsecutiveFailures = 0
		if state == StateHalfOpen && b.counts.ConsecutiveSuccesses >= b.settings.MaxRequests {
			b.transition(StateClosed, now)
		}
		return
	}

	b.counts.Failures++
	b.counts.ConsecutiveFailures++
	b.counts.ConsecutiveSuccesses = 0
	switch state {
	case StateClosed:
		if b.settings.ReadyToTrip(b.counts) {
			b.transition(StateOpen, now)
		}
	case StateHalfOpen:
		b.transition(StateOpen, now)
	}
}

// current resolves time-driven transitions: closed-state windows roll
// over, and an expired open state moves to half-open.
func (b *Breaker) current(now time.Time) (State, uint64) {
	switch b.state {
	case StateClosed:
		if b.expiry.Before(now) {
			b.generation++
			b.counts = Counts{}
			b.expiry = now.Add(b.settings.Interval)
		}
	case StateOpen:
		if b.expiry.Before(now) {
			b.transition(StateHalfOpen, now)
		}
	}
	return b.state, b.generation
}

func (b *Breaker) transition(to State, now time.Time) {
	if b.state == to {
		return
	}
	from := b.state
	b.state = to
	b.generation++
	b.counts = Counts{}

	switch to {
	case StateClosed:
		b.expiry = now.Add(b.settings.Interval)
	case StateOpen:
		b.expiry = now.Add(b.settings.Timeout)
	case StateHalfOpen:
		b.expiry = time.Time{}
	}

	if b.settings.OnStateChange != nil {
		b.settings.OnStateChange(from, to)
	}
}
