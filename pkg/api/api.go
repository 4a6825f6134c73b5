// Package api defines the wire protocol of the signaling relay.
//
// Every message is a JSON object with a required "type" field drawn from a
// closed vocabulary. Signaling payloads (SDP offers/answers, ICE candidates)
// are never inspected by the relay: inbound messages keep their raw bytes so
// they can be forwarded to the counterpart verbatim.
//
// Example:
//
//	{"type":"offer","target":"streamer","offer":{...opaque SDP...}}
package api

import (
	"errors"
	"time"

	"github.com/goccy/go-json"
)

type Type string

// Message vocabulary. Unknown types are logged and dropped, never fatal.
const (
	// client -> server
	RegisterStreamer Type = "streamer"
	RegisterViewer   Type = "viewer"
	Offer            Type = "offer"
	Answer           Type = "answer"
	IceCandidate     Type = "iceCandidate"
	GameInput        Type = "gameInput"
	StartGame        Type = "start_game"
	StopGame         Type = "stop_game"

	// server -> client
	StreamerConnected    Type = "streamerConnected"
	StreamerAvailable    Type = "streamerAvailable"
	StreamerDisconnected Type = "streamerDisconnected"
	GameStarting         Type = "game_starting"
	GameStarted          Type = "game_started"
	GameStopped          Type = "game_stopped"
	GameUpdate           Type = "game_update"
	Welcome              Type = "welcome"
	Error                Type = "error"
)

// Routing targets of the signaling messages.
const (
	TargetStreamer = "streamer"
	TargetViewer   = "viewer"
)

var ErrMalformed = errors.New("malformed")

// In is the parsed header of an inbound message.
// Raw keeps the original bytes for verbatim forwarding.
type In struct {
	T      Type   `json:"type"`
	Target string `json:"target,omitempty"`
	Raw    []byte `json:"-"`
}

func Parse(data []byte) (In, error) {
	var in In
	if err := json.Unmarshal(data, &in); err != nil {
		return in, err
	}
	if in.T == "" {
		return in, ErrMalformed
	}
	in.Raw = data
	return in, nil
}

// Out is a server -> client message.
type Out struct {
	T         Type        `json:"type"`
	SessionId string      `json:"sessionId,omitempty"`
	Message   string      `json:"message,omitempty"`
	Reason    string      `json:"reason,omitempty"`
	Config    *ConfigEcho `json:"config,omitempty"`
	Data      any         `json:"data,omitempty"`
}

// ConfigEcho carries the relay limits echoed to a new session.
type ConfigEcho struct {
	MaxBitrate int `json:"maxBitrate"`
	MinBitrate int `json:"minBitrate"`
}

// GameUpdateData is the synthetic state snapshot of the mock renderer.
type GameUpdateData struct {
	Timestamp     int64  `json:"timestamp"`
	PlayersOnline int    `json:"players_online"`
	ZonesLoaded   int    `json:"zones_loaded"`
	ServerStatus  string `json:"server_status"`
}

func (o Out) Encode() []byte {
	data, err := json.Marshal(o)
	if err != nil {
		// all Out payloads are marshallable by construction
		return []byte(`{"type":"error","message":"encode failure"}`)
	}
	return data
}

func ErrorPacket(message string) Out { return Out{T: Error, Message: message} }

func WelcomePacket(sessionId string, conf ConfigEcho) Out {
	return Out{T: Welcome, SessionId: sessionId, Config: &conf}
}

func StreamerConnectedPacket() Out    { return Out{T: StreamerConnected} }
func StreamerAvailablePacket() Out    { return Out{T: StreamerAvailable} }
func StreamerDisconnectedPacket() Out { return Out{T: StreamerDisconnected} }

func GameStartingPacket(message string) Out { return Out{T: GameStarting, Message: message} }
func GameStartedPacket(message string) Out  { return Out{T: GameStarted, Message: message} }
func GameStoppedPacket(reason string) Out   { return Out{T: GameStopped, Reason: reason} }

func GameUpdatePacket(players int, zones int) Out {
	return Out{T: GameUpdate, Data: GameUpdateData{
		Timestamp:     time.Now().UnixMilli(),
		PlayersOnline: players,
		ZonesLoaded:   zones,
		ServerStatus:  "running",
	}}
}

// Unwrap decodes a message payload into a concrete type.
func Unwrap[T any](data []byte) *T {
	out := new(T)
	if err := json.Unmarshal(data, out); err != nil {
		return nil
	}
	return out
}
