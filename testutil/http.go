package testutil

import (
	"bytes"
	"net/http"
	"sync"
)

// Recorder is a thread-safe http.ResponseWriter that keeps interim 1xx
// responses separate from the final one. httptest.ResponseRecorder treats the
// first WriteHeader as final, which hides heartbeat behaviour.
type Recorder struct {
	mu       sync.Mutex
	header   http.Header
	interim  []int
	code     int
	body     bytes.Buffer
	flushed  int
	final    bool
	finalHdr http.Header
	writeErr error
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{header: make(http.Header)}
}

// Header returns the mutable header map.
func (r *Recorder) Header() http.Header {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.header
}

// WriteHeader records interim statuses and the first final status.
func (r *Recorder) WriteHeader(code int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if code >= 100 && code < 200 {
		r.interim = append(r.interim, code)
		return
	}
	if r.final {
		return
	}
	r.final = true
	r.code = code
	r.finalHdr = r.header.Clone()
}

// Write records body bytes, implying a 200 when no status was written.
func (r *Recorder) Write(p []byte) (int, error) {
	r.mu.Lock()
	if !r.final {
		r.final = true
		r.code = http.StatusOK
		r.finalHdr = r.header.Clone()
	}
	err := r.writeErr
	r.mu.Unlock()
	if err != nil {
		return 0, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.body.Write(p)
}

// Flush counts flushes.
func (r *Recorder) Flush() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.flushed++
}

// FailWrites makes every subsequent Write return err.
func (r *Recorder) FailWrites(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.writeErr = err
}

// Interim returns the interim statuses written so far.
func (r *Recorder) Interim() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]int, len(r.interim))
	copy(out, r.interim)
	return out
}

// Code returns the final status, or 0 when none was written.
func (r *Recorder) Code() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.code
}

// Written reports whether a final response was written.
func (r *Recorder) Written() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.final
}

// Body returns a copy of the body written so far.
func (r *Recorder) Body() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]byte(nil), r.body.Bytes()...)
}

// FinalHeader returns the headers as they were when the final status was written.
func (r *Recorder) FinalHeader() http.Header {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.finalHdr == nil {
		return http.Header{}
	}
	return r.finalHdr.Clone()
}

// Flushes returns how often Flush was called.
func (r *Recorder) Flushes() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.flushed
}
