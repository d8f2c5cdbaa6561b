// internal/race/room.go
package race

import (
	"context"
	"fmt"
	"sync"
)

// GameState is the phase of one round in a room.
type GameState int

const (
	StateLobby GameState = iota
	StateGameCountdown
	StateGame
	StateEnding
)

var gameStateNames = [...]string{"Lobby", "GameCountdown", "Game", "Ending"}

func (s GameState) String() string {
	if s >= 0 && int(s) < len(gameStateNames) {
		return gameStateNames[s]
	}
	return fmt.Sprintf("GameState(%d)", int(s))
}

// MarshalText encodes the state by name.
func (s GameState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Progress is one participant's typing state in a room.
type Progress struct {
	Name       string
	Typed      []byte
	CorrectLen int
	Color      Color
}

// Room is one race instance. All fields are guarded by Mu; the session holds Mu for the
// whole processing of an event addressed at the room.
type Room struct {
	ID string
	Mu sync.Mutex

	text         string
	state        GameState
	participants map[string]*Progress
	colors       *ColorPool

	startedGeneratingText  bool
	finishedGeneratingText bool
	followupID             string

	// finisher is the first participant to type the whole text this round.
	finisher string

	ctx     context.Context
	cancel  context.CancelFunc
	deleted bool
}

func newRoom(id string) *Room {
	ctx, cancel := context.WithCancel(context.Background())
	return &Room{
		ID:           id,
		state:        StateLobby,
		participants: make(map[string]*Progress),
		colors:       NewColorPool(),
		ctx:          ctx,
		cancel:       cancel,
	}
}

// Context is cancelled when the room is deleted. Background work for the room (countdown,
// text generation) should stop when it is done.
func (r *Room) Context() context.Context {
	return r.ctx
}

// Deleted reports whether the room was removed from its store. Assumes lock is held.
func (r *Room) Deleted() bool {
	return r.deleted
}

// State returns the current game state. Assumes lock is held.
func (r *Room) State() GameState {
	return r.state
}

// Text returns the target passage. Assumes lock is held.
func (r *Room) Text() string {
	return r.text
}

// Len returns the number of participants. Assumes lock is held.
func (r *Room) Len() int {
	return len(r.participants)
}

// Participant returns a copy of one participant's progress. Assumes lock is held.
func (r *Room) Participant(connID string) (Progress, bool) {
	p, ok := r.participants[connID]
	if !ok {
		return Progress{}, false
	}
	cp := *p
	cp.Typed = append([]byte(nil), p.Typed...)
	return cp, true
}

// Finisher is the connection that completed the text first this round, if any.
// Assumes lock is held.
func (r *Room) Finisher() string {
	return r.finisher
}

func (r *Room) mustParticipant(connID string) *Progress {
	p, ok := r.participants[connID]
	if !ok {
		panic(fmt.Errorf("race: %w: %s in room %s", ErrNotParticipant, connID, r.ID))
	}
	return p
}

// Snapshot is the room view broadcast to clients as "user_connect".
type Snapshot struct {
	Users                  map[string]string `json:"user_map"`
	CorrectLens            map[string]int    `json:"correct_len_map"`
	State                  GameState         `json:"game_state"`
	Colors                 map[string]Color  `json:"color_map"`
	FinishedGeneratingText bool              `json:"finished_generating_text"`
}

func (r *Room) snapshot() Snapshot {
	snap := Snapshot{
		Users:                  make(map[string]string, len(r.participants)),
		CorrectLens:            make(map[string]int, len(r.participants)),
		State:                  r.state,
		Colors:                 make(map[string]Color, len(r.participants)),
		FinishedGeneratingText: r.finishedGeneratingText,
	}
	for id, p := range r.participants {
		snap.Users[id] = p.Name
		snap.CorrectLens[id] = p.CorrectLen
		snap.Colors[id] = p.Color
	}
	return snap
}
