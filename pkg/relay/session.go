package relay

import (
	"sync/atomic"
	"time"

	"github.com/openeq/pixelstream/pkg/api"
	"github.com/openeq/pixelstream/pkg/com"
	"github.com/openeq/pixelstream/pkg/logger"
)

type Role uint8

const (
	Unassigned Role = iota
	RoleStreamer
	RoleViewer
)

func (r Role) String() string {
	switch r {
	case RoleStreamer:
		return "streamer"
	case RoleViewer:
		return "viewer"
	}
	return "unassigned"
}

// Transport is the duplex connection handle exclusively owned
// by a session and closed when the session ends.
type Transport interface {
	Write(data []byte)
	Close()
}

// Session is the server-side record of one connection: its identity,
// role, and activity. Role changes go through the Hub only.
type Session struct {
	id      com.Uid
	conn    Transport
	addr    string
	created time.Time

	// role, displaced and removed are guarded by the Hub mutex
	role      Role
	displaced bool
	removed   bool

	lastSeen atomic.Int64 // unix nanos

	log *logger.Logger
}

func (s *Session) Id() com.Uid   { return s.id }
func (s *Session) Addr() string  { return s.addr }
func (s *Session) Close()        { s.conn.Close() }
func (s *Session) Touch()        { s.lastSeen.Store(time.Now().UnixNano()) }
func (s *Session) LastSeen() time.Time { return time.Unix(0, s.lastSeen.Load()) }

// Notify sends a server packet to the session's client.
func (s *Session) Notify(out api.Out) { s.conn.Write(out.Encode()) }

// Send forwards raw bytes verbatim.
func (s *Session) Send(raw []byte) { s.conn.Write(raw) }
