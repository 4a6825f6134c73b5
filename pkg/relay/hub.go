package relay

import (
	"sync"
	"time"

	"github.com/openeq/pixelstream/pkg/api"
	"github.com/openeq/pixelstream/pkg/com"
	"github.com/openeq/pixelstream/pkg/config"
	"github.com/openeq/pixelstream/pkg/logger"
	"github.com/openeq/pixelstream/pkg/supervisor"
)

// Hub is the session registry: it owns the session store, the single
// streamer slot, and the viewer set. All role mutations happen here,
// so every other component reads a consistent view.
type Hub struct {
	conf config.Relay
	log  *logger.Logger
	sup  *supervisor.Supervisor

	sessions com.Map[com.Uid, *Session]

	// mu guards the role collections below
	mu       sync.Mutex
	streamer *Session
	viewers  map[com.Uid]*Session

	metrics *Metrics
}

func NewHub(conf config.Relay, sup *supervisor.Supervisor, log *logger.Logger) *Hub {
	return &Hub{
		conf:     conf,
		log:      log,
		sup:      sup,
		sessions: com.NewMap[com.Uid, *Session](),
		viewers:  make(map[com.Uid]*Session, 10),
		metrics:  newMetrics(),
	}
}

// HasCapacity tells whether a new session may be admitted.
// Checked at connection-accept time, before Register.
func (h *Hub) HasCapacity() bool { return h.sessions.Len() < h.conf.Session.Max }

// Register creates an unassigned session for the connection. Never fails.
func (h *Hub) Register(conn Transport, addr string) *Session {
	h.mu.Lock()
	s := h.registerLocked(conn, addr)
	h.mu.Unlock()
	h.metrics.sessions.Inc()
	s.log.Info().Msgf("New session from %v", addr)
	return s
}

// TryRegister admits the connection only when capacity allows. The check
// and the insertion happen under one lock, so concurrent handshakes
// cannot oversubscribe the last slot.
func (h *Hub) TryRegister(conn Transport, addr string) (*Session, bool) {
	h.mu.Lock()
	if h.sessions.Len() >= h.conf.Session.Max {
		h.mu.Unlock()
		return nil, false
	}
	s := h.registerLocked(conn, addr)
	h.mu.Unlock()
	h.metrics.sessions.Inc()
	s.log.Info().Msgf("New session from %v", addr)
	return s, true
}

func (h *Hub) registerLocked(conn Transport, addr string) *Session {
	s := &Session{
		id:      com.NewUid(),
		conn:    conn,
		addr:    addr,
		created: time.Now(),
	}
	s.log = h.log.Extend(h.log.With().Str("sid", s.id.Short()))
	s.Touch()
	h.sessions.Put(s.id, s)
	return s
}

// AssignRole moves the session into a role collection. A session sits in
// at most one collection: switching roles removes it from the old one
// first. The last-registered streamer wins; the previous holder is only
// flagged as displaced, not closed. A role message that races removal
// is dropped: a removed session must never re-enter the collections.
func (h *Hub) AssignRole(s *Session, role Role) {
	h.mu.Lock()
	if s.removed {
		h.mu.Unlock()
		s.log.Debug().Msgf("Role %v ignored for a removed session", role)
		return
	}
	h.detachLocked(s)
	s.role = role
	switch role {
	case RoleStreamer:
		prev := h.streamer
		if prev != nil && prev != s {
			prev.displaced = true
		}
		h.streamer = s
		h.mu.Unlock()
		if prev != nil && prev != s {
			prev.log.Info().Msg("Streamer displaced by a newer registration")
			prev.Notify(api.ErrorPacket("displaced by a newer streamer"))
		}
		s.log.Info().Msg("Streamer connected")
	case RoleViewer:
		h.viewers[s.id] = s
		hasStreamer := h.streamer != nil
		viewers := len(h.viewers)
		h.mu.Unlock()
		h.metrics.viewers.Set(float64(viewers))
		s.log.Info().Msgf("Viewer connected, total viewers: %d", viewers)
		if hasStreamer {
			s.Notify(api.StreamerAvailablePacket())
		}
	default:
		h.mu.Unlock()
	}
}

// Remove drops the session from every collection, notifies viewers on a
// streamer loss, tears down any attached game process, and closes the
// connection. Idempotent: removing a removed session is a no-op.
func (h *Hub) Remove(s *Session) {
	if _, ok := h.sessions.Pop(s.id); !ok {
		return
	}
	h.mu.Lock()
	s.removed = true
	wasStreamer := h.streamer == s
	if wasStreamer {
		h.streamer = nil
	}
	delete(h.viewers, s.id)
	var viewers []*Session
	if wasStreamer {
		for _, v := range h.viewers {
			viewers = append(viewers, v)
		}
	}
	left := len(h.viewers)
	h.mu.Unlock()

	h.metrics.sessions.Dec()
	h.metrics.viewers.Set(float64(left))

	if wasStreamer {
		s.log.Info().Msg("Streamer disconnected")
		for _, v := range viewers {
			v.Notify(api.StreamerDisconnectedPacket())
		}
	}
	h.sup.OnSessionRemoved(s.id.String())
	s.Close()
	s.log.Info().Msg("Session removed")
}

// SweepIdle removes every session idle past the configured timeout.
func (h *Hub) SweepIdle() {
	cutoff := time.Now().Add(-h.conf.Session.Timeout)
	var expired []*Session
	h.sessions.ForEach(func(s *Session) {
		if s.LastSeen().Before(cutoff) {
			expired = append(expired, s)
		}
	})
	for _, s := range expired {
		s.log.Info().Msg("Session timeout")
		h.Remove(s)
	}
}

// Streamer returns the current streamer session or nil.
func (h *Hub) Streamer() *Session {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.streamer
}

func (h *Hub) StreamerConnected() bool { return h.Streamer() != nil }

func (h *Hub) ViewerCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.viewers)
}

func (h *Hub) SessionCount() int { return h.sessions.Len() }

// ForEachViewer calls fn over a snapshot of the viewer set.
func (h *Hub) ForEachViewer(fn func(v *Session)) {
	h.mu.Lock()
	viewers := make([]*Session, 0, len(h.viewers))
	for _, v := range h.viewers {
		viewers = append(viewers, v)
	}
	h.mu.Unlock()
	for _, v := range viewers {
		fn(v)
	}
}

// Shutdown removes every session (closing connections and processes).
func (h *Hub) Shutdown() {
	var all []*Session
	h.sessions.ForEach(func(s *Session) { all = append(all, s) })
	for _, s := range all {
		h.Remove(s)
	}
}

// detachLocked removes the session from its current role collection.
func (h *Hub) detachLocked(s *Session) {
	if h.streamer == s {
		h.streamer = nil
	}
	delete(h.viewers, s.id)
}
