package relay

import (
	"fmt"
	"testing"
	"time"

	"github.com/openeq/pixelstream/pkg/api"
	"github.com/openeq/pixelstream/pkg/config"
	"github.com/openeq/pixelstream/pkg/logger"
	"github.com/openeq/pixelstream/pkg/supervisor"
)

type rig struct {
	hub    *Hub
	router *Router
	sup    *supervisor.Supervisor
}

func testRig() *rig {
	conf := config.Relay{Session: config.Session{Max: 10, Timeout: time.Minute}}
	sup := supervisor.New(
		config.Game{StopTimeout: 10 * time.Millisecond, MockInterval: time.Hour},
		"localhost:0", logger.Default(),
	)
	hub := NewHub(conf, sup, logger.Default())
	return &rig{hub: hub, router: NewRouter(hub, sup, logger.Default()), sup: sup}
}

func (r *rig) connect(t *testing.T) (*Session, *fakeConn) {
	t.Helper()
	c := &fakeConn{}
	return r.hub.Register(c, "1.1.1.1:1"), c
}

func (r *rig) route(t *testing.T, s *Session, raw string) {
	t.Helper()
	in, err := api.Parse([]byte(raw))
	if err != nil {
		t.Fatalf("bad test message %q: %v", raw, err)
	}
	r.router.Route(s, in)
}

func TestRouteStreamerRegistration(t *testing.T) {
	r := testRig()
	s, c := r.connect(t)
	r.route(t, s, `{"type":"streamer"}`)

	if r.hub.Streamer() != s {
		t.Fatalf("expected the session to become the streamer")
	}
	if !c.has(api.StreamerConnected) {
		t.Fatalf("expected a streamerConnected ack, got %v", c.types())
	}
}

func TestRouteOfferForwardedVerbatim(t *testing.T) {
	r := testRig()
	st, sc := r.connect(t)
	r.route(t, st, `{"type":"streamer"}`)
	v, _ := r.connect(t)
	r.route(t, v, `{"type":"viewer"}`)

	raw := `{"type":"offer","target":"streamer","offer":{"sdp":"v=0 fake","type":"offer"}}`
	r.route(t, v, raw)

	if got := string(sc.last()); got != raw {
		t.Fatalf("payload altered in transit:\n got %s\nwant %s", got, raw)
	}
}

func TestRouteOfferDroppedWithoutStreamer(t *testing.T) {
	r := testRig()
	v, vc := r.connect(t)
	r.route(t, v, `{"type":"viewer"}`)

	n := vc.count()
	r.route(t, v, `{"type":"offer","target":"streamer","offer":{}}`)
	if vc.count() != n {
		t.Fatalf("drop should be silent for the sender, got %v", vc.types())
	}
}

func TestRouteAnswerBroadcastSkipsSender(t *testing.T) {
	r := testRig()
	st, _ := r.connect(t)
	r.route(t, st, `{"type":"streamer"}`)

	v1, c1 := r.connect(t)
	r.route(t, v1, `{"type":"viewer"}`)
	v2, c2 := r.connect(t)
	r.route(t, v2, `{"type":"viewer"}`)

	raw := `{"type":"answer","target":"viewer","answer":{"sdp":"v=0"}}`
	r.route(t, st, raw)

	for i, c := range []*fakeConn{c1, c2} {
		if got := string(c.last()); got != raw {
			t.Fatalf("viewer %d missed the answer: %v", i, c.types())
		}
	}

	// a viewer-sent candidate must not come back to its sender
	n1 := c1.count()
	r.route(t, v1, `{"type":"iceCandidate","target":"viewer","candidate":{}}`)
	if c1.count() != n1 {
		t.Fatalf("sender received its own broadcast")
	}
	if got := string(c2.last()); got == raw {
		t.Fatalf("second viewer missed the candidate")
	}
}

func TestRouteGameInputToStreamer(t *testing.T) {
	r := testRig()
	st, sc := r.connect(t)
	r.route(t, st, `{"type":"streamer"}`)
	v, _ := r.connect(t)
	r.route(t, v, `{"type":"viewer"}`)

	raw := `{"type":"gameInput","data":{"key":"w"}}`
	r.route(t, v, raw)
	if got := string(sc.last()); got != raw {
		t.Fatalf("input not delivered to the streamer, got %v", sc.types())
	}
}

func TestRouteStartGameMockLifecycle(t *testing.T) {
	r := testRig()
	s, c := r.connect(t)
	r.route(t, s, `{"type":"start_game"}`)

	if !r.sup.Running(s.Id().String()) {
		t.Fatalf("expected a supervised instance")
	}
	if !c.has(api.GameStarted) {
		t.Fatalf("expected game_started in mock mode, got %v", c.types())
	}

	r.route(t, s, `{"type":"start_game"}`)
	if !c.has(api.Error) {
		t.Fatalf("expected an error on a duplicate start, got %v", c.types())
	}

	r.route(t, s, `{"type":"stop_game"}`)
	if r.sup.Running(s.Id().String()) {
		t.Fatalf("expected the instance to be gone after stop")
	}
	if !c.has(api.GameStopped) {
		t.Fatalf("expected game_stopped, got %v", c.types())
	}
}

func TestRouteUnknownTypeIgnored(t *testing.T) {
	r := testRig()
	s, c := r.connect(t)
	n := c.count()
	r.route(t, s, `{"type":"selfdestruct"}`)
	if c.count() != n {
		t.Fatalf("unknown types must be dropped silently, got %v", c.types())
	}
}

func TestRouteSessionRemovalStopsGame(t *testing.T) {
	r := testRig()
	s, c := r.connect(t)
	r.route(t, s, `{"type":"start_game"}`)
	id := s.Id().String()

	r.hub.Remove(s)
	if r.sup.Running(id) {
		t.Fatalf("game must not outlive its session")
	}
	// teardown on disconnect is silent, the client is gone
	for _, typ := range c.types() {
		if typ == api.GameStopped {
			t.Fatalf("unexpected game_stopped after disconnect: %v", c.types())
		}
	}
}

func TestRouteManyViewers(t *testing.T) {
	r := testRig()
	st, _ := r.connect(t)
	r.route(t, st, `{"type":"streamer"}`)

	conns := make([]*fakeConn, 5)
	for i := range conns {
		v, c := r.connect(t)
		r.route(t, v, fmt.Sprintf(`{"type":"viewer","n":%d}`, i))
		conns[i] = c
	}

	raw := `{"type":"answer","target":"viewer","answer":{}}`
	r.route(t, st, raw)
	for i, c := range conns {
		if got := string(c.last()); got != raw {
			t.Fatalf("viewer %d did not get the broadcast", i)
		}
	}
}
