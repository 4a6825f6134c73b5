package config

import (
	"time"

	flag "github.com/spf13/pflag"
)

type Config struct {
	Relay      Relay
	Game       Game
	Monitoring Monitoring
}

// Relay groups the signaling and web endpoints with
// the session admission policy.
type Relay struct {
	Debug     bool
	Signaling Server
	Web       Web
	Session   Session
}

type Server struct {
	Address string
	Https   bool
	Tls     struct {
		Address   string
		Domain    string
		HttpsKey  string
		HttpsCert string
	}
}

type Web struct {
	Server Server
	// Roots lists directories the asset server is allowed to read from.
	Roots []string `fig:"roots" default:"[web]"`
	Index string   `fig:"index" default:"web/index.html"`
}

type Session struct {
	Max int `fig:"max" default:"10"`
	// Timeout removes sessions without any inbound traffic for that long.
	Timeout       time.Duration `fig:"timeout" default:"5m"`
	SweepInterval time.Duration `fig:"sweepinterval" default:"1m"`
}

// Game describes the external rendering process.
type Game struct {
	Executable string
	Display    Display
	Bitrate    Bitrate
	// Warmup is the virtual display boot delay before the game spawns.
	Warmup time.Duration `fig:"warmup" default:"2s"`
	// StopTimeout bounds graceful termination before a forceful kill.
	StopTimeout  time.Duration `fig:"stoptimeout" default:"5s"`
	MockInterval time.Duration `fig:"mockinterval" default:"5s"`
	// WatchExecutable enables a filesystem watch that notices the game
	// binary appearing or disappearing at runtime.
	WatchExecutable bool
	LockDir         string
}

type Display struct {
	Width  int    `fig:"width" default:"1920"`
	Height int    `fig:"height" default:"1080"`
	Number string `fig:"number" default:":99"`
}

type Bitrate struct {
	Min int `fig:"min" default:"1000000"`
	Max int `fig:"max" default:"20000000"`
}

type Monitoring struct {
	Port             int    `fig:"port" default:"6601"`
	URLPrefix        string `fig:"urlprefix"`
	MetricEnabled    bool   `fig:"metricenabled"`
	ProfilingEnabled bool   `fig:"profilingenabled"`
}

func (m *Monitoring) IsEnabled() bool { return m.MetricEnabled || m.ProfilingEnabled }

func (s *Server) GetAddr() string {
	if s.Https {
		return s.Tls.Address
	}
	return s.Address
}

// allows custom config path
var configPath string

func NewConfig() (conf Config) {
	if err := LoadConfig(&conf, configPath); err != nil {
		panic(err)
	}
	if conf.Relay.Signaling.Address == "" {
		conf.Relay.Signaling.Address = ":8888"
	}
	if conf.Relay.Web.Server.Address == "" {
		conf.Relay.Web.Server.Address = ":9070"
	}
	return
}

func (c *Config) ParseFlags() {
	flag.BoolVar(&c.Relay.Debug, "debug", c.Relay.Debug, "Enable debug logging")
	flag.StringVar(&c.Relay.Signaling.Address, "signaling", c.Relay.Signaling.Address, "Signaling server address (host:port)")
	flag.StringVar(&c.Relay.Web.Server.Address, "web", c.Relay.Web.Server.Address, "Web server address (host:port)")
	flag.StringVar(&c.Game.Executable, "game", c.Game.Executable, "Game executable path")
	flag.IntVar(&c.Relay.Session.Max, "sessions", c.Relay.Session.Max, "Max concurrent sessions")
	flag.IntVar(&c.Monitoring.Port, "monitoring.port", c.Monitoring.Port, "Monitoring server port")
	flag.StringVar(&configPath, "conf", configPath, "Set custom configuration file path")
	flag.Parse()
}
