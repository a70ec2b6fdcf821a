package whatsapp

import "sync"

// State describes where the engine connection currently is. The gateway
// never gates requests on it; it only reports and streams it.
type State string

const (
	StateDisconnected  State = "disconnected"
	StateConnecting    State = "connecting"
	StateQR            State = "qr"
	StateAuthenticated State = "authenticated"
	StateReady         State = "ready"
)

// SessionInfo is a read-only snapshot of the authenticated session.
type SessionInfo struct {
	ID          string `json:"id"`
	Platform    string `json:"platform"`
	DisplayName string `json:"displayName"`
}

// StatusUpdate is published to subscribers on every state change.
type StatusUpdate struct {
	State  State  `json:"state"`
	Ready  bool   `json:"ready"`
	QRCode string `json:"qrCode,omitempty"`
	Error  string `json:"error,omitempty"`
}

// stateTracker holds the observable connection state updated by engine
// event callbacks and read synchronously by the status endpoint.
type stateTracker struct {
	mu          sync.RWMutex
	state       State
	qrCode      string
	lastError   string
	subscribers map[int]chan StatusUpdate
	nextID      int
}

func newStateTracker() *stateTracker {
	return &stateTracker{
		state:       StateDisconnected,
		subscribers: make(map[int]chan StatusUpdate),
	}
}

func (st *stateTracker) set(state State, errText string) {
	st.transition(state, "", errText)
}

func (st *stateTracker) setQR(code string) {
	st.transition(StateQR, code, "")
}

func (st *stateTracker) transition(state State, qrCode, errText string) {
	st.mu.Lock()
	st.state = state
	st.qrCode = qrCode
	st.lastError = errText
	update := st.snapshotLocked()
	subs := make([]chan StatusUpdate, 0, len(st.subscribers))
	for _, ch := range st.subscribers {
		subs = append(subs, ch)
	}
	st.mu.Unlock()

	for _, ch := range subs {
		// Slow subscribers miss updates instead of blocking the engine callback.
		select {
		case ch <- update:
		default:
		}
	}
}

func (st *stateTracker) snapshot() StatusUpdate {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.snapshotLocked()
}

func (st *stateTracker) snapshotLocked() StatusUpdate {
	update := StatusUpdate{
		State: st.state,
		Ready: st.state == StateReady,
		Error: st.lastError,
	}
	if st.state == StateQR {
		update.QRCode = st.qrCode
	}
	return update
}

// subscribe returns a buffered update channel and a cancel func that
// must be called exactly once when the subscriber goes away.
func (st *stateTracker) subscribe() (<-chan StatusUpdate, func()) {
	st.mu.Lock()
	id := st.nextID
	st.nextID++
	ch := make(chan StatusUpdate, 8)
	st.subscribers[id] = ch
	st.mu.Unlock()

	cancel := func() {
		st.mu.Lock()
		delete(st.subscribers, id)
		st.mu.Unlock()
	}
	return ch, cancel
}
