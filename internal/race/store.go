// internal/race/store.go
package race

import (
	"errors"
	"fmt"
	"sync"
)

var (
	ErrRoomNotFound   = errors.New("room not found")
	ErrNotParticipant = errors.New("not a participant")
)

// Store owns every active Room.
//
// The room map is guarded by a short-lived store mutex. Each room carries its own mutex
// (Room.Mu) which callers hold across all Store calls that make up one event; methods
// documented with "Assumes room lock is held" rely on that. Lock order is room before
// store: the store mutex is never held while waiting on a room.
type Store struct {
	mu    sync.Mutex
	rooms map[string]*Room
}

// NewStore initializes and returns an empty Store.
func NewStore() *Store {
	return &Store{
		rooms: make(map[string]*Room),
	}
}

// CreateIfAbsent creates an empty Lobby room with a freshly shuffled color pool unless one
// already exists under roomID. Returns true if the room was created.
func (s *Store) CreateIfAbsent(roomID string) bool {
	_, created := s.getOrCreate(roomID)
	return created
}

func (s *Store) getOrCreate(roomID string) (*Room, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.rooms[roomID]; ok {
		return r, false
	}
	r := newRoom(roomID)
	s.rooms[roomID] = r
	return r, true
}

func (s *Store) get(roomID string) (*Room, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[roomID]
	return r, ok
}

// Acquire locks and returns the room. The caller must unlock Room.Mu.
func (s *Store) Acquire(roomID string) (*Room, bool) {
	for {
		r, ok := s.get(roomID)
		if !ok {
			return nil, false
		}
		r.Mu.Lock()
		if !r.deleted {
			return r, true
		}
		// deleted between lookup and lock; a new room may have taken the id since
		r.Mu.Unlock()
	}
}

// AcquireOrCreate locks and returns the room, creating it first if needed. created is true
// if this call made the room. The caller must unlock Room.Mu.
func (s *Store) AcquireOrCreate(roomID string) (r *Room, created bool) {
	for {
		r, created = s.getOrCreate(roomID)
		r.Mu.Lock()
		if !r.deleted {
			return r, created
		}
		r.Mu.Unlock()
	}
}

// Exists reports whether a room is registered under roomID.
func (s *Store) Exists(roomID string) bool {
	_, ok := s.get(roomID)
	return ok
}

// Len returns the number of active rooms.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rooms)
}

// mustRoom looks up a room the caller has locked. A missing room means the caller broke
// the protocol, so it panics.
func (s *Store) mustRoom(roomID string) *Room {
	r, ok := s.get(roomID)
	if !ok {
		panic(fmt.Errorf("race: %w: %s", ErrRoomNotFound, roomID))
	}
	return r
}

// AddParticipant inserts connID with an empty buffer and the next color from the pool.
// Assumes room lock is held. Panics if the room does not exist.
func (s *Store) AddParticipant(roomID, connID, name string) {
	r := s.mustRoom(roomID)
	if old, ok := r.participants[connID]; ok {
		r.colors.Release(old.Color)
	}
	r.participants[connID] = &Progress{
		Name:  name,
		Color: r.colors.Take(),
	}
}

// RemoveParticipant removes connID and returns its color to the pool. If the room is left
// empty it is deleted, its context cancelled, and true is returned.
// Assumes room lock is held.
func (s *Store) RemoveParticipant(roomID, connID string) bool {
	r, ok := s.get(roomID)
	if !ok {
		return false
	}
	p, ok := r.participants[connID]
	if !ok {
		return false
	}
	delete(r.participants, connID)
	r.colors.Release(p.Color)

	if len(r.participants) > 0 {
		return false
	}

	s.mu.Lock()
	if s.rooms[roomID] == r {
		delete(s.rooms, roomID)
	}
	s.mu.Unlock()
	r.deleted = true
	r.cancel()
	return true
}

// IsPrintableASCII reports whether ch can be typed into a race buffer.
func IsPrintableASCII(ch rune) bool {
	return ch >= 0x20 && ch <= 0x7E
}

// PushCharacter appends ch to the participant's buffer. It returns the new correct length
// and true only when the character was typed right at the end of the validated prefix and
// matches the text there. Non-printable characters and appends to a full buffer are
// rejected without mutation. Assumes room lock is held.
func (s *Store) PushCharacter(roomID, connID string, ch rune) (int, bool) {
	if !IsPrintableASCII(ch) {
		return 0, false
	}
	r := s.mustRoom(roomID)
	p := r.mustParticipant(connID)

	if len(p.Typed) >= len(r.text) {
		return 0, false
	}

	pos := len(p.Typed)
	p.Typed = append(p.Typed, byte(ch))
	if pos == p.CorrectLen && r.text[pos] == byte(ch) {
		p.CorrectLen++
		return p.CorrectLen, true
	}
	return 0, false
}

// PopCharacter drops the last character of the participant's buffer. If that cuts into
// the validated prefix the correct length shrinks by one and is returned with true.
// Assumes room lock is held.
func (s *Store) PopCharacter(roomID, connID string) (int, bool) {
	r := s.mustRoom(roomID)
	p := r.mustParticipant(connID)

	if len(p.Typed) == 0 {
		return 0, false
	}
	p.Typed = p.Typed[:len(p.Typed)-1]
	if len(p.Typed) < p.CorrectLen {
		p.CorrectLen--
		return p.CorrectLen, true
	}
	return 0, false
}

// CheckEnding moves the room to Ending if connID has typed the whole text.
// Assumes room lock is held.
func (s *Store) CheckEnding(roomID, connID string) bool {
	r := s.mustRoom(roomID)
	p := r.mustParticipant(connID)

	if r.text == "" || p.CorrectLen < len(r.text) {
		return false
	}
	if r.finisher == "" {
		r.finisher = connID
	}
	r.state = StateEnding
	return true
}

// StartCountdown sets the room to GameCountdown. The caller validates the transition.
// Assumes room lock is held.
func (s *Store) StartCountdown(roomID string) {
	s.mustRoom(roomID).state = StateGameCountdown
}

// StartRound sets the room to Game. The caller validates the transition.
// Assumes room lock is held.
func (s *Store) StartRound(roomID string) {
	s.mustRoom(roomID).state = StateGame
}

// IsJoinable reports whether the room exists and has not ended. It locks the room itself,
// so the caller must not hold that room's lock.
func (s *Store) IsJoinable(roomID string) bool {
	r, ok := s.Acquire(roomID)
	if !ok {
		return false
	}
	defer r.Mu.Unlock()
	return r.state != StateEnding
}

// Snapshot returns the broadcast view of the room. Assumes room lock is held.
func (s *Store) Snapshot(roomID string) Snapshot {
	return s.mustRoom(roomID).snapshot()
}

// GameText returns the room's target text. Assumes room lock is held.
func (s *Store) GameText(roomID string) string {
	return s.mustRoom(roomID).text
}

// TryBeginGeneration claims the right to generate the room's text. Only the first call
// per room returns true. Assumes room lock is held.
func (s *Store) TryBeginGeneration(roomID string) bool {
	r := s.mustRoom(roomID)
	if r.startedGeneratingText {
		return false
	}
	r.startedGeneratingText = true
	return true
}

// FinishedGeneratingText reports whether the room's text has been committed.
// Assumes room lock is held.
func (s *Store) FinishedGeneratingText(roomID string) bool {
	return s.mustRoom(roomID).finishedGeneratingText
}

// CommitText stores the generated text. Assumes room lock is held.
func (s *Store) CommitText(roomID, text string) {
	r := s.mustRoom(roomID)
	r.text = text
	r.finishedGeneratingText = true
}

// FollowupID returns the id recorded for "play again", or "". Assumes room lock is held.
func (s *Store) FollowupID(roomID string) string {
	return s.mustRoom(roomID).followupID
}

// SetFollowupID records the id of the room created for "play again".
// Assumes room lock is held.
func (s *Store) SetFollowupID(roomID, followupID string) {
	s.mustRoom(roomID).followupID = followupID
}
