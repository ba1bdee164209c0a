package ws

import (
	"time"

	"github.com/voxhall/telesuite/internal/call"
)

// Client→server message types.
const (
	msgConfigure     = "configure"
	msgStart         = "start"
	msgText          = "text"
	msgPlaybackEnded = "playback_ended"
	msgEnd           = "end"
	msgReset         = "reset"
)

// Server→client message types. Agent audio itself travels as a binary frame
// containing a complete WAV file; everything else is a JSON text frame.
const (
	evtState        = "state"
	evtTurn         = "turn"
	evtTurnUpdate   = "turn_update"
	evtPlaybackStop = "playback_stop"
	evtError        = "error"
)

// clientMessage is the JSON envelope for text frames sent by the client.
type clientMessage struct {
	Type string `json:"type"`

	// Agent selects the configured agent persona (configure only).
	Agent string `json:"agent,omitempty"`

	// UserName is the customer's name for this call (configure only).
	UserName string `json:"user_name,omitempty"`

	// Text is a typed user utterance (text only).
	Text string `json:"text,omitempty"`
}

// serverMessage is the JSON envelope for text frames sent to the client.
type serverMessage struct {
	Type string `json:"type"`

	// State is the call state name (state events).
	State string `json:"state,omitempty"`

	// Turn carries the transcript turn (turn and turn_update events).
	Turn *turnPayload `json:"turn,omitempty"`

	// Error is a human-readable failure description (error events).
	Error string `json:"error,omitempty"`
}

// turnPayload is the wire shape of one conversation turn.
type turnPayload struct {
	ID           string `json:"id"`
	Speaker      string `json:"speaker"`
	Text         string `json:"text"`
	Timestamp    string `json:"timestamp"`
	AudioDataURI string `json:"audio_data_uri,omitempty"`
	IsError      bool   `json:"is_error,omitempty"`
}

// newTurnPayload converts a call.Turn for the wire.
func newTurnPayload(t call.Turn) *turnPayload {
	return &turnPayload{
		ID:           t.ID,
		Speaker:      string(t.Speaker),
		Text:         t.Text,
		Timestamp:    t.Timestamp.Format(time.RFC3339Nano),
		AudioDataURI: t.AudioDataURI,
		IsError:      t.IsError,
	}
}
