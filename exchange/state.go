package exchange

import (
	"encoding/json"
	stderrors "errors"
	"net/http"
	"strconv"
	"sync"

	"github.com/c360/exchangegate/errors"
)

// ResponseState tracks who, if anyone, has finished an exchange's response.
type ResponseState int32

const (
	// Open means nobody has written a terminal response yet.
	Open ResponseState = iota
	// Committed means a terminal response was written.
	Committed
	// Abandoned means the exchange is finished and any late pipeline output
	// must be discarded without being produced.
	Abandoned
)

// String returns the string representation of ResponseState
func (rs ResponseState) String() string {
	switch rs {
	case Open:
		return "open"
	case Committed:
		return "committed"
	case Abandoned:
		return "abandoned"
	default:
		return "unknown"
	}
}

// State is one inbound HTTP request paired with its eventual response.
// It is the value parked in the correlation cache and the only path through
// which anything writes to the client.
//
// Every terminal writer (the response producer, the timeout handler, the
// admission controller, the error responder) goes through Commit. The first
// one wins; the rest get errors.ErrAlreadyCommitted and must treat it as a no-op.
type State struct {
	id      string
	request *http.Request
	monitor *Monitor

	mu       sync.Mutex
	response http.ResponseWriter // nil once the state leaves Open
	state    ResponseState
	status   int
}

// NewState binds a request/response pair to a fresh monitor.
func NewState(id string, w http.ResponseWriter, r *http.Request, monitor *Monitor) *State {
	return &State{
		id:       id,
		request:  r,
		response: w,
		monitor:  monitor,
	}
}

// ID returns the exchange identifier, normally the request id.
func (s *State) ID() string { return s.id }

// Request returns the inbound request. It must be treated as read-only.
func (s *State) Request() *http.Request { return s.request }

// Monitor returns the completion monitor owned by this exchange.
func (s *State) Monitor() *Monitor { return s.monitor }

// ResponseState returns the current response state.
func (s *State) ResponseState() ResponseState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// IsOpen reports whether no terminal response has been written yet.
func (s *State) IsOpen() bool { return s.ResponseState() == Open }

// Abandoned reports whether late pipeline output should be suppressed.
func (s *State) Abandoned() bool { return s.ResponseState() == Abandoned }

// Status returns the status code of the committed response, or 0.
func (s *State) Status() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Commit runs fn against the response writer if the exchange is still open
// and moves it to Committed. fn must write the complete response.
func (s *State) Commit(fn func(w http.ResponseWriter) (int, error)) error {
	return s.commitAs(Committed, fn)
}

// CommitAbandoned is Commit but leaves the exchange Abandoned, so a pipeline
// that finishes later skips production.
func (s *State) CommitAbandoned(fn func(w http.ResponseWriter) (int, error)) error {
	return s.commitAs(Abandoned, fn)
}

func (s *State) commitAs(next ResponseState, fn func(w http.ResponseWriter) (int, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != Open {
		return errors.ErrAlreadyCommitted
	}
	if err := s.request.Context().Err(); err != nil {
		s.state = Abandoned
		s.response = nil
		return errors.WrapTransient(errors.ErrClientGone, "State", "Commit", "check client")
	}

	status, err := fn(s.response)
	s.state = next
	s.status = status
	s.response = nil
	if err != nil {
		return errors.WrapTransient(stderrors.Join(errors.ErrClientGone, err), "State", "Commit", "write response")
	}
	return nil
}

// Abandon marks an open exchange as finished without writing anything.
// It reports whether this call made the transition.
func (s *State) Abandon() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Open {
		return false
	}
	s.state = Abandoned
	s.response = nil
	return true
}

// Interim writes a non-terminal 1xx status while the exchange is open.
// It returns errors.ErrAlreadyCommitted once a terminal response exists and a
// client-gone error when the caller has disconnected.
func (s *State) Interim(code int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != Open {
		return errors.ErrAlreadyCommitted
	}
	if err := s.request.Context().Err(); err != nil {
		return errors.WrapTransient(errors.ErrClientGone, "State", "Interim", "check client")
	}
	// 1xx headers are flushed by net/http as soon as they are written.
	// Flushing here would commit an implicit 200.
	s.response.WriteHeader(code)
	return nil
}

// Respond commits a complete response.
func (s *State) Respond(status int, header http.Header, body []byte) error {
	return s.Commit(func(w http.ResponseWriter) (int, error) {
		return status, WriteResponse(w, status, header, body)
	})
}

// RespondError commits a JSON error body of the form {"error": msg, "status": code}.
func (s *State) RespondError(status int, message string) error {
	return s.Commit(func(w http.ResponseWriter) (int, error) {
		return status, WriteError(w, status, message)
	})
}

// WriteResponse writes status, headers and body, then flushes if the writer supports it.
func WriteResponse(w http.ResponseWriter, status int, header http.Header, body []byte) error {
	for k, values := range header {
		for _, v := range values {
			w.Header().Add(k, v)
		}
	}
	if len(body) > 0 && w.Header().Get("Content-Length") == "" {
		w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	}
	w.WriteHeader(status)
	if len(body) > 0 {
		if _, err := w.Write(body); err != nil {
			return err
		}
	}
	return flush(w)
}

// WriteError writes the gateway's JSON error envelope.
func WriteError(w http.ResponseWriter, status int, message string) error {
	data, err := json.Marshal(map[string]interface{}{
		"error":  message,
		"status": status,
	})
	if err != nil {
		return err
	}
	header := http.Header{}
	header.Set("Content-Type", "application/json")
	return WriteResponse(w, status, header, data)
}

func flush(w http.ResponseWriter) error {
	err := http.NewResponseController(w).Flush()
	if err != nil && stderrors.Is(err, http.ErrNotSupported) {
		return nil
	}
	return err
}
