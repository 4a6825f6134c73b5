package relay

import (
	"errors"

	"github.com/openeq/pixelstream/pkg/api"
	"github.com/openeq/pixelstream/pkg/logger"
	"github.com/openeq/pixelstream/pkg/supervisor"
)

// Router dispatches inbound messages by type: role registrations go to
// the Hub, signaling payloads are forwarded verbatim by target, and
// game lifecycle commands go to the supervisor.
type Router struct {
	hub *Hub
	sup *supervisor.Supervisor
	log *logger.Logger
}

func NewRouter(hub *Hub, sup *supervisor.Supervisor, log *logger.Logger) *Router {
	return &Router{hub: hub, sup: sup, log: log}
}

func (r *Router) Route(s *Session, in api.In) {
	switch in.T {
	case api.RegisterStreamer:
		r.hub.AssignRole(s, RoleStreamer)
		s.Notify(api.StreamerConnectedPacket())
	case api.RegisterViewer:
		r.hub.AssignRole(s, RoleViewer)
	case api.Offer, api.Answer, api.IceCandidate:
		r.forward(s, in)
	case api.GameInput:
		// input always goes to the streamer, whatever the target says
		if st := r.hub.Streamer(); st != nil {
			st.Send(in.Raw)
		} else {
			s.log.Debug().Msg("Input dropped, no streamer")
		}
	case api.StartGame:
		if err := r.sup.Start(s.Id().String(), s); err != nil {
			if errors.Is(err, supervisor.ErrAlreadyRunning) {
				s.Notify(api.ErrorPacket("game already running for this session"))
				return
			}
			s.log.Error().Err(err).Msg("Game start failed")
			s.Notify(api.ErrorPacket("failed to start game session"))
		}
	case api.StopGame:
		r.sup.Stop(s.Id().String())
	default:
		s.log.Warn().Msgf("Unknown message type [%v]", in.T)
	}
}

func (r *Router) forward(from *Session, in api.In) {
	switch in.Target {
	case api.TargetStreamer:
		if st := r.hub.Streamer(); st != nil {
			st.Send(in.Raw)
		} else {
			from.log.Debug().Msgf("Drop [%v], no streamer", in.T)
		}
	case api.TargetViewer:
		// Single-stream topology: the streamer cannot address one viewer,
		// so its signaling goes to every viewer except the sender.
		n := 0
		r.hub.ForEachViewer(func(v *Session) {
			if v != from {
				v.Send(in.Raw)
				n++
			}
		})
		if n == 0 {
			from.log.Debug().Msgf("Drop [%v], no viewers", in.T)
		}
	default:
		from.log.Debug().Msgf("Drop [%v], unknown target [%v]", in.T, in.Target)
	}
}
