package circuit_breaker

import (
	"errors"
	"sync"
	"time"
)

type State uint8

const (
	Closed State = iota + 1
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	}
	return "unknown"
}

var ErrOpen = errors.New("circuit breaker is open")

type Config struct {
	// Window is the number of most recent calls tracked while closed.
	Window int `envconfig:"CB_WINDOW" default:"10"`
	// FailureRatio of the window that trips the breaker.
	FailureRatio float64 `envconfig:"CB_FAILURE_RATIO" default:"0.5"`
	// Cooldown before a tripped breaker lets probe calls through.
	Cooldown time.Duration `envconfig:"CB_COOLDOWN" default:"30s"`
	// Recovery is the number of consecutive successful probes needed to close.
	Recovery int `envconfig:"CB_RECOVERY" default:"2"`
}

type Breaker struct {
	mu  sync.Mutex
	cfg Config
	now func() time.Time

	state    State
	openedAt time.Time
	results  []bool
	pos      int
	probes   int
}

func New(cfg Config) *Breaker {
	if cfg.Window <= 0 {
		cfg.Window = 10
	}
	if cfg.FailureRatio <= 0 || cfg.FailureRatio > 1 {
		cfg.FailureRatio = 0.5
	}
	if cfg.Recovery <= 0 {
		cfg.Recovery = 1
	}
	return &Breaker{
		cfg:     cfg,
		now:     time.Now,
		state:   Closed,
		results: make([]bool, cfg.Window),
	}
}

func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Call runs fn unless the breaker is open; fn's error is returned as is.
func (b *Breaker) Call(fn func() error) error {
	b.mu.Lock()
	if b.state == Open {
		if b.now().Sub(b.openedAt) < b.cfg.Cooldown {
			b.mu.Unlock()
			return ErrOpen
		}
		b.state = HalfOpen
		b.probes = 0
	}
	b.mu.Unlock()

	err := fn()

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == HalfOpen {
		if err != nil {
			b.trip()
			return err
		}
		b.probes++
		if b.probes >= b.cfg.Recovery {
			b.reset()
		}
		return err
	}

	b.results[b.pos] = err != nil
	b.pos = (b.pos + 1) % len(b.results)

	failures := 0
	for _, failed := range b.results {
		if failed {
			failures++
		}
	}
	if float64(failures)/float64(len(b.results)) >= b.cfg.FailureRatio {
		b.trip()
	}
	return err
}

func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.reset()
}

func (b *Breaker) trip() {
	b.state = Open
	b.openedAt = b.now()
	b.probes = 0
}

func (b *Breaker) reset() {
	for i := range b.results {
		b.results[i] = false
	}
	b.pos = 0
	b.probes = 0
	b.state = Closed
}
