package protocol

// MessageType defines the type of WebSocket message
type MessageType string

const (
	// TypeStatus carries an engine status snapshot.
	TypeStatus MessageType = "status"

	// TypeKeyboardToggle is broadcast when the keyboard toggle gesture fires.
	// The on-screen keyboard panel listens for it.
	TypeKeyboardToggle MessageType = "keyboard_toggle"

	// TypePause is sent by a client to pause or resume tracking.
	TypePause MessageType = "pause"

	// TypePing can be used for application-level heartbeats if needed
	TypePing MessageType = "ping"
)

// Message is the generic container for all WebSocket messages
type Message struct {
	Type    MessageType `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

// PausePayload is the payload for TypePause
type PausePayload struct {
	Paused bool `json:"paused"`
}

// KeyboardTogglePayload is the payload for TypeKeyboardToggle
type KeyboardTogglePayload struct {
	Session string `json:"session,omitempty"`
	Count   uint64 `json:"count"`
}
