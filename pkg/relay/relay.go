// Package relay implements the signaling relay: session registry,
// message router, game supervision hooks, and the public HTTP surface.
package relay

import (
	"context"
	"net/http"
	"strings"

	"github.com/openeq/pixelstream/pkg/api"
	"github.com/openeq/pixelstream/pkg/config"
	"github.com/openeq/pixelstream/pkg/logger"
	"github.com/openeq/pixelstream/pkg/network/httpx"
	"github.com/openeq/pixelstream/pkg/network/websocket"
	"github.com/openeq/pixelstream/pkg/supervisor"
)

type Relay struct {
	conf   config.Config
	hub    *Hub
	router *Router
	sup    *supervisor.Supervisor

	signaling *httpx.Server
	web       *httpx.Server
	sweeper   *Sweeper

	log *logger.Logger
}

func New(conf config.Config, log *logger.Logger) (*Relay, error) {
	sup := supervisor.New(conf.Game, signalingAddr(conf.Relay.Signaling), log)
	hub := NewHub(conf.Relay, sup, log)
	re := &Relay{
		conf:   conf,
		hub:    hub,
		router: NewRouter(hub, sup, log),
		sup:    sup,
		log:    log,
	}

	signaling, err := httpx.NewServer(
		conf.Relay.Signaling.GetAddr(),
		func(*httpx.Server) http.Handler {
			mux := http.NewServeMux()
			mux.HandleFunc("/", re.handleSignaling)
			return mux
		},
		httpx.WithServerConfig(conf.Relay.Signaling),
		httpx.WithLogger(log),
	)
	if err != nil {
		return nil, err
	}
	re.signaling = signaling

	web, err := NewWebServer(conf, hub, sup, log)
	if err != nil {
		return nil, err
	}
	re.web = web
	re.sweeper = NewSweeper(hub, conf.Relay.Session.SweepInterval, log)

	if conf.Monitoring.MetricEnabled {
		hub.metrics.register(func() float64 { return float64(sup.RunningCount()) })
	}
	return re, nil
}

func (re *Relay) Run() {
	re.sup.Run()
	re.sweeper.Run()
	re.signaling.Run()
	re.web.Run()
}

func (re *Relay) Shutdown(ctx context.Context) error {
	re.hub.Shutdown()
	_ = re.sweeper.Shutdown(ctx)
	if err := re.signaling.Shutdown(ctx); err != nil {
		re.log.Error().Err(err).Msg("signaling server shutdown")
	}
	if err := re.web.Shutdown(ctx); err != nil {
		re.log.Error().Err(err).Msg("web server shutdown")
	}
	return re.sup.Shutdown(ctx)
}

func (re *Relay) String() string { return "relay" }

// handleSignaling admits a new websocket connection: capacity check,
// session registration, welcome with the relay limits, then the
// message loop until the connection drops.
func (re *Relay) handleSignaling(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.NewServer(w, r)
	if err != nil {
		re.log.Error().Err(err).Msg("websocket upgrade failed")
		return
	}
	session, ok := re.hub.TryRegister(conn, r.RemoteAddr)
	if !ok {
		re.log.Warn().Msgf("Connection from %v rejected, server is full", r.RemoteAddr)
		_ = conn.WriteNow(api.ErrorPacket("server is at capacity, try again later").Encode())
		conn.Close()
		return
	}
	session.Notify(api.WelcomePacket(session.Id().String(), api.ConfigEcho{
		MaxBitrate: re.conf.Game.Bitrate.Max,
		MinBitrate: re.conf.Game.Bitrate.Min,
	}))

	conn.OnMessage = func(message []byte) {
		session.Touch()
		in, err := api.Parse(message)
		if err != nil {
			session.log.Warn().Err(err).Msg("Malformed message dropped")
			return
		}
		re.router.Route(session, in)
	}
	conn.Listen()

	go func() {
		<-conn.Done
		re.hub.Remove(session)
	}()
}

// signalingAddr derives the host:port the spawned game
// process should stream to.
func signalingAddr(conf config.Server) string {
	addr := conf.GetAddr()
	if strings.HasPrefix(addr, ":") {
		addr = "localhost" + addr
	}
	return addr
}
