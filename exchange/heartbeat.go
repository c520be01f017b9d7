package exchange

import (
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"k8s.io/utils/clock"

	"github.com/c360/exchangegate/errors"
)

// DefaultHeartbeatInterval is used when a route enables heartbeats without an interval.
const DefaultHeartbeatInterval = 20 * time.Second

// PreferProcessing is the Prefer preference a client sends to announce it
// accepts interim 102 responses. It replaces the "Expect: 102-processing"
// convention: net/http answers every Expect other than 100-continue with
// 417 before any handler runs.
const PreferProcessing = "processing"

// WantsInterim reports whether r announced that it tolerates interim
// "processing" responses. Preference parameters and values are ignored.
func WantsInterim(r *http.Request) bool {
	for _, value := range r.Header.Values("Prefer") {
		for _, pref := range strings.Split(value, ",") {
			name, _, _ := strings.Cut(pref, ";")
			name, _, _ = strings.Cut(name, "=")
			if strings.EqualFold(strings.TrimSpace(name), PreferProcessing) {
				return true
			}
		}
	}
	return false
}

// Heartbeat periodically writes 102 Processing to an open exchange so that
// clients with short read timeouts keep the connection.
//
// A Heartbeat is single use. It stops on Cancel, on the first tick after
// the response was committed, or when the client is gone.
type Heartbeat struct {
	clock  clock.WithTicker
	logger *slog.Logger

	beats    atomic.Int64
	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
	started  atomic.Bool
}

// HeartbeatOption configures a Heartbeat
type HeartbeatOption func(*Heartbeat)

// WithHeartbeatLogger sets the logger used for heartbeat events
func WithHeartbeatLogger(logger *slog.Logger) HeartbeatOption {
	return func(h *Heartbeat) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// NewHeartbeat creates an idle heartbeat driven by clk.
func NewHeartbeat(clk clock.WithTicker, opts ...HeartbeatOption) *Heartbeat {
	if clk == nil {
		clk = clock.RealClock{}
	}
	h := &Heartbeat{
		clock:  clk,
		logger: slog.Default().With("component", "heartbeat"),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Start begins emitting interim responses to s every interval.
// Calling Start twice, or after Cancel, does nothing.
func (h *Heartbeat) Start(s *State, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultHeartbeatInterval
	}
	select {
	case <-h.stop:
		return
	default:
	}
	if !h.started.CompareAndSwap(false, true) {
		return
	}

	// Created before the goroutine so a fake clock sees the waiter immediately.
	ticker := h.clock.NewTicker(interval)
	go h.run(s, ticker)
}

func (h *Heartbeat) run(s *State, ticker clock.Ticker) {
	defer close(h.done)
	defer ticker.Stop()

	for {
		select {
		case <-h.stop:
			return
		case <-ticker.C():
			err := s.Interim(http.StatusProcessing)
			switch {
			case err == nil:
				h.beats.Add(1)
				h.logger.Debug("Heartbeat sent", "exchange", s.ID(), "beats", h.beats.Load())
			case errors.IsClientGone(err):
				h.logger.Debug("Heartbeat stopped, client gone", "exchange", s.ID())
				return
			default:
				return
			}
		}
	}
}

// Cancel stops the heartbeat and waits until no further interim write can
// happen. It is safe to call more than once and on a heartbeat that never
// started.
func (h *Heartbeat) Cancel() {
	h.stopOnce.Do(func() { close(h.stop) })
	if h.started.Load() {
		<-h.done
	}
}

// Beats returns the number of interim responses written.
func (h *Heartbeat) Beats() int64 {
	return h.beats.Load()
}
