package resilience

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

// ErrOpenCircuit is returned when the circuit breaker refuses a request.
var ErrOpenCircuit = errors.New("resilience: circuit breaker open")

// State represents the current breaker state.
type State int

const (
	// Closed accepts all requests and tracks failures.
	Closed State = iota
	// Open rejects requests until the cool-off period expires.
	Open
	// HalfOpen allows a single probe to determine recovery.
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// gauge is the value exported on the breaker_state metric.
func (s State) gauge() float64 {
	switch s {
	case Closed:
		return 0
	case Open:
		return 1
	case HalfOpen:
		return 2
	default:
		return -1
	}
}

// outcomes is a fixed-size ring of recent call results.
type outcomes struct {
	failed []bool
	next   int
	filled int
	fails  int
}

func newOutcomes(size int) outcomes {
	return outcomes{failed: make([]bool, size)}
}

func (o *outcomes) add(failed bool) {
	if o.filled == len(o.failed) {
		if o.failed[o.next] {
			o.fails--
		}
	} else {
		o.filled++
	}
	o.failed[o.next] = failed
	if failed {
		o.fails++
	}
	o.next = (o.next + 1) % len(o.failed)
}

func (o *outcomes) reset() {
	for i := range o.failed {
		o.failed[i] = false
	}
	o.next, o.filled, o.fails = 0, 0, 0
}

// Breaker guards one upstream dependency. While closed it keeps the results
// of the most recent calls and opens once at least minRequests are recorded
// and the failing share reaches failureRatio. After openFor it lets a single
// probe through; the probe's result closes or reopens it.
type Breaker struct {
	mu           sync.Mutex
	state        State
	recent       outcomes
	minRequests  int
	failureRatio float64
	openFor      time.Duration
	openedAt     time.Time
	probing      bool
	target       string
	logger       zerolog.Logger
	now          func() time.Time
}

// NewBreaker constructs a closed breaker. The outcome window holds four
// times minRequests, and never fewer than eight calls.
func NewBreaker(minRequests int, failureRatio float64, openFor time.Duration) *Breaker {
	if minRequests <= 0 {
		minRequests = 1
	}
	if failureRatio <= 0 || failureRatio > 1 {
		failureRatio = 0.5
	}
	if openFor <= 0 {
		openFor = 30 * time.Second
	}
	size := minRequests * 4
	if size < 8 {
		size = 8
	}
	return &Breaker{
		recent:       newOutcomes(size),
		minRequests:  minRequests,
		failureRatio: failureRatio,
		openFor:      openFor,
		target:       "default",
		logger:       zerolog.Nop(),
		now:          time.Now,
	}
}

// WithClock replaces the time source. Intended for tests.
func (b *Breaker) WithClock(now func() time.Time) *Breaker {
	b.mu.Lock()
	defer b.mu.Unlock()
	if now != nil {
		b.now = now
	}
	return b
}

// WithTarget names the guarded dependency in metrics and logs.
func (b *Breaker) WithTarget(target string) *Breaker {
	b.mu.Lock()
	defer b.mu.Unlock()
	if target = strings.TrimSpace(target); target != "" {
		b.target = target
	}
	if BreakerState != nil {
		BreakerState.WithLabelValues(b.target).Set(b.state.gauge())
	}
	return b
}

// WithLogger sets the fallback logger for transition events.
func (b *Breaker) WithLogger(logger zerolog.Logger) *Breaker {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.logger = logger
	return b
}

// State returns the current breaker state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Allow reports whether a call may proceed. Refusals are counted on
// breaker_rejected_total.
func (b *Breaker) Allow(ctx context.Context) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	ok := true
	switch b.state {
	case Open:
		ok = b.now().Sub(b.openedAt) >= b.openFor
		if ok {
			b.moveLocked(ctx, HalfOpen)
			b.probing = true
		}
	case HalfOpen:
		ok = !b.probing
		b.probing = true
	}
	if !ok && BreakerRejectedTotal != nil {
		BreakerRejectedTotal.WithLabelValues(b.target).Inc()
	}
	return ok
}

// Report records the result of a call that Allow admitted.
func (b *Breaker) Report(ctx context.Context, success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Open:
	case HalfOpen:
		b.probing = false
		if success {
			b.moveLocked(ctx, Closed)
		} else {
			b.moveLocked(ctx, Open)
		}
	default:
		b.recent.add(!success)
		if b.recent.filled >= b.minRequests &&
			float64(b.recent.fails)/float64(b.recent.filled) >= b.failureRatio {
			b.moveLocked(ctx, Open)
		}
	}
}

// Do runs fn when the breaker allows it and reports the outcome. Errors for
// which countable returns false are returned without counting as failures;
// a nil countable counts every error.
func (b *Breaker) Do(ctx context.Context, countable func(error) bool, fn func(context.Context) error) error {
	if !b.Allow(ctx) {
		return ErrOpenCircuit
	}
	err := fn(ctx)
	b.Report(ctx, err == nil || (countable != nil && !countable(err)))
	return err
}

func (b *Breaker) moveLocked(ctx context.Context, next State) {
	prev := b.state
	if prev == next {
		return
	}
	b.state = next
	if next == Open {
		b.openedAt = b.now()
	}
	b.recent.reset()

	if BreakerState != nil {
		BreakerState.WithLabelValues(b.target).Set(next.gauge())
	}
	if BreakerTransitions != nil {
		BreakerTransitions.WithLabelValues(b.target, prev.String(), next.String()).Inc()
	}
	logger := b.loggerFor(ctx)
	evt := logger.Warn()
	if next == Closed {
		evt = logger.Info()
	}
	evt = evt.Str("target", b.target).Str("from_state", prev.String()).Str("to_state", next.String())
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		evt = evt.Str("trace_id", sc.TraceID().String())
	}
	evt.Msg("breaker_transition")
}

func (b *Breaker) loggerFor(ctx context.Context) *zerolog.Logger {
	if l := zerolog.Ctx(ctx); l.GetLevel() != zerolog.Disabled {
		return l
	}
	return &b.logger
}
