package message

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/c360/exchangegate/exchange"
)

// Unit is the unit of work handed to a workflow. It carries metadata, a
// payload, and optionally the HTTP exchange it must eventually answer.
//
// Units are shared between the dispatcher goroutine, interceptors and pool
// workers, so every accessor is safe for concurrent use.
type Unit struct {
	id        string
	createdAt time.Time
	source    string

	mu       sync.RWMutex
	metadata map[string]string
	payload  []byte
	exchange *exchange.State
	skip     bool
	parked   bool
	err      error
}

// Option is a functional option for configuring Unit construction.
type Option func(*Unit)

// WithID uses id instead of a generated UUID.
func WithID(id string) Option {
	return func(u *Unit) {
		if id != "" {
			u.id = id
		}
	}
}

// WithPayload sets the initial payload.
func WithPayload(payload []byte) Option {
	return func(u *Unit) {
		u.payload = payload
	}
}

// WithMetadata copies md into the unit's metadata.
func WithMetadata(md map[string]string) Option {
	return func(u *Unit) {
		for k, v := range md {
			u.metadata[k] = v
		}
	}
}

// WithTime sets a specific creation timestamp instead of using time.Now().
func WithTime(createdAt time.Time) Option {
	return func(u *Unit) {
		u.createdAt = createdAt
	}
}

// WithExchange attaches an exchange at construction time.
func WithExchange(state *exchange.State) Option {
	return func(u *Unit) {
		u.exchange = state
	}
}

// NewUnit creates a unit originating from source.
//
//	unit := message.NewUnit("http-gateway",
//	    message.WithID(requestID),
//	    message.WithPayload(body),
//	    message.WithExchange(state))
func NewUnit(source string, opts ...Option) *Unit {
	u := &Unit{
		id:        uuid.New().String(),
		createdAt: time.Now(),
		source:    source,
		metadata:  make(map[string]string),
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// ID returns the unique identifier of this unit.
func (u *Unit) ID() string { return u.id }

// CreatedAt returns when the unit was created.
func (u *Unit) CreatedAt() time.Time { return u.createdAt }

// Source returns the component that created the unit.
func (u *Unit) Source() string { return u.source }

// Get returns the metadata value for key, or "".
func (u *Unit) Get(key string) string {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.metadata[key]
}

// Lookup returns the metadata value for key and whether it was present.
func (u *Unit) Lookup(key string) (string, bool) {
	u.mu.RLock()
	defer u.mu.RUnlock()
	v, ok := u.metadata[key]
	return v, ok
}

// Has reports whether key is present in the metadata.
func (u *Unit) Has(key string) bool {
	_, ok := u.Lookup(key)
	return ok
}

// Set stores a metadata value.
func (u *Unit) Set(key, value string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.metadata[key] = value
}

// Delete removes a metadata value.
func (u *Unit) Delete(key string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	delete(u.metadata, key)
}

// Keys returns the metadata keys in sorted order.
func (u *Unit) Keys() []string {
	u.mu.RLock()
	defer u.mu.RUnlock()
	keys := make([]string, 0, len(u.metadata))
	for k := range u.metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Metadata returns a copy of all metadata.
func (u *Unit) Metadata() map[string]string {
	u.mu.RLock()
	defer u.mu.RUnlock()
	out := make(map[string]string, len(u.metadata))
	for k, v := range u.metadata {
		out[k] = v
	}
	return out
}

// Payload returns the payload.
func (u *Unit) Payload() []byte {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.payload
}

// SetPayload replaces the payload.
func (u *Unit) SetPayload(payload []byte) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.payload = payload
}

// Exchange returns the attached exchange, or nil.
func (u *Unit) Exchange() *exchange.State {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.exchange
}

// AttachExchange binds state to the unit, replacing any previous one.
func (u *Unit) AttachExchange(state *exchange.State) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.exchange = state
}

// DetachExchange removes and returns the attached exchange.
func (u *Unit) DetachExchange() *exchange.State {
	u.mu.Lock()
	defer u.mu.Unlock()
	state := u.exchange
	u.exchange = nil
	return state
}

// MarkSkipProduction tells downstream services not to produce a response.
func (u *Unit) MarkSkipProduction() {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.skip = true
}

// SkipProduction reports whether production should be skipped.
func (u *Unit) SkipProduction() bool {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.skip
}

// MarkParked records that the exchange was stored for a later pipeline.
// A parked unit does not complete its exchange when its own workflow ends.
func (u *Unit) MarkParked() {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.parked = true
}

// Unpark clears the parked marker.
func (u *Unit) Unpark() {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.parked = false
}

// Parked reports whether the exchange is parked in the correlation cache.
func (u *Unit) Parked() bool {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.parked
}

// SetError records the error that ended processing.
func (u *Unit) SetError(err error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.err = err
}

// Err returns the recorded processing error.
func (u *Unit) Err() error {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.err
}
