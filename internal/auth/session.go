package auth

import "sync"

// SessionExpiredReason explains why the session was terminated
type SessionExpiredReason string

const (
	ReasonNoRefreshToken      SessionExpiredReason = "no_refresh_token"
	ReasonRefreshTokenExpired SessionExpiredReason = "refresh_token_expired"
	ReasonRefreshTokenInvalid SessionExpiredReason = "refresh_token_invalid"
	ReasonInvalidResponse     SessionExpiredReason = "invalid_response"
	ReasonRefreshError        SessionExpiredReason = "refresh_error"
)

// SessionEvents is a typed session-expiry broadcast. The UI layer
// subscribes to force a re-login prompt when credentials become
// unrecoverable.
type SessionEvents struct {
	mu   sync.Mutex
	subs map[chan SessionExpiredReason]struct{}
}

// NewSessionEvents creates an empty subscriber registry
func NewSessionEvents() *SessionEvents {
	return &SessionEvents{subs: make(map[chan SessionExpiredReason]struct{})}
}

// Subscribe registers a listener. The returned channel is buffered; a
// subscriber that has fallen behind misses the event rather than blocking
// the emitter.
func (e *SessionEvents) Subscribe() chan SessionExpiredReason {
	ch := make(chan SessionExpiredReason, 1)
	e.mu.Lock()
	e.subs[ch] = struct{}{}
	e.mu.Unlock()
	return ch
}

// Unsubscribe removes a listener and closes its channel
func (e *SessionEvents) Unsubscribe(ch chan SessionExpiredReason) {
	e.mu.Lock()
	if _, ok := e.subs[ch]; ok {
		delete(e.subs, ch)
		close(ch)
	}
	e.mu.Unlock()
}

// Emit broadcasts a session-expired event to all subscribers without
// blocking on any of them
func (e *SessionEvents) Emit(reason SessionExpiredReason) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for ch := range e.subs {
		select {
		case ch <- reason:
		default:
		}
	}
}
