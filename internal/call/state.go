package call

import (
	"time"

	"github.com/google/uuid"
)

// State is the call lifecycle state. Exactly one value holds at a time; all
// transitions happen inside the controller's event loop.
type State int

const (
	// StateConfiguring is the pre-call state: voice and participants are
	// being selected, no audio resources are held.
	StateConfiguring State = iota

	// StateListening means capture is armed and the caller has the floor.
	StateListening

	// StateProcessing means a gateway request for the caller's last turn is
	// in flight.
	StateProcessing

	// StateAISpeaking means synthesized agent audio is playing.
	StateAISpeaking

	// StateEnded is terminal for one call instance. Reset returns the
	// controller to StateConfiguring.
	StateEnded

	// StateError is entered on an unrecoverable gateway failure. The call is
	// not auto-terminated; End and Reset remain available.
	StateError
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case StateConfiguring:
		return "CONFIGURING"
	case StateListening:
		return "LISTENING"
	case StateProcessing:
		return "PROCESSING"
	case StateAISpeaking:
		return "AI_SPEAKING"
	case StateEnded:
		return "ENDED"
	case StateError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Speaker identifies which side of the call produced a turn.
type Speaker string

const (
	SpeakerAI   Speaker = "AI"
	SpeakerUser Speaker = "User"
)

// Turn is one contiguous utterance by either party. Immutable once appended;
// the conversation is an append-only ordered sequence owned by the controller.
type Turn struct {
	ID        string
	Speaker   Speaker
	Text      string
	Timestamp time.Time

	// AudioDataURI holds the synthesized audio for agent turns, empty for
	// user turns and for text-only degraded agent turns.
	AudioDataURI string

	// IsError marks the turn as a surfaced gateway failure.
	IsError bool
}

func newTurn(speaker Speaker, text string) Turn {
	return Turn{
		ID:        uuid.NewString(),
		Speaker:   speaker,
		Text:      text,
		Timestamp: time.Now(),
	}
}
