// internal/race/events.go
package race

// EventType names an outbound event.
type EventType string

const (
	EventGameID          EventType = "game_id"
	EventAllowedToJoin   EventType = "allowed_to_join"
	EventGameAvailable   EventType = "game_available"
	EventGameUnavailable EventType = "game_unavailable"
	EventUserConnect     EventType = "user_connect"
	EventCreatedGameText EventType = "created_game_text"
	EventAppStateChange  EventType = "app_state_change"
	EventCountdownChange EventType = "countdown_change"
	EventStartGame       EventType = "start_game"
	EventCharacterChange EventType = "character_change"
	EventMissingGameText EventType = "missing_game_text"
	EventError           EventType = "error"
)

// Inbound message types.
const (
	MsgCreate                = "create"
	MsgJoin                  = "join"
	MsgGenerateGameText      = "generate_game_text"
	MsgStartGame             = "start_game"
	MsgPushCharacter         = "push_character"
	MsgPopCharacter          = "pop_character"
	MsgLeaveGame             = "leave_game"
	MsgPlayAgain             = "play_again"
	MsgCheckGameAvailability = "check_game_availability"
)

// Event is one outbound message. Data is marshaled as-is.
type Event struct {
	Type EventType   `json:"type"`
	Data interface{} `json:"data,omitempty"`
}

// ClientMessage is an inbound message. Fields that do not apply to a type are ignored.
type ClientMessage struct {
	Type string `json:"type"`
	Name string `json:"name,omitempty"`
	Room string `json:"room,omitempty"`
	Char string `json:"char,omitempty"`
}

// GameIDPayload answers "create" with the new room id.
type GameIDPayload struct {
	ID string `json:"id"`
}

// CountdownPayload carries the seconds left before the race starts.
type CountdownPayload struct {
	SecondsRemaining int `json:"seconds_remaining"`
}

// StateChangePayload announces a new game state.
type StateChangePayload struct {
	State GameState `json:"state"`
}

// StartGamePayload carries the target text.
type StartGamePayload struct {
	Text string `json:"text"`
}

// CharacterChangePayload reports a participant's new correct length.
type CharacterChangePayload struct {
	ConnID        string `json:"conn_id"`
	NewCorrectLen int    `json:"new_correct_len"`
}

// ErrorPayload describes a rejected message.
type ErrorPayload struct {
	Message string `json:"message"`
}

// Broadcaster delivers events. Groups are keyed by room id; a connection belongs to at
// most the groups it was joined to.
type Broadcaster interface {
	// Emit sends ev to a single connection.
	Emit(connID string, ev Event)
	// Broadcast sends ev to every connection in the room's group except those excluded.
	Broadcast(roomID string, ev Event, exclude ...string)
	JoinGroup(roomID, connID string)
	LeaveGroup(roomID, connID string)
}
