// internal/race/session.go
package race

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/jason-s-yu/typerace/internal/cache"
	"github.com/jason-s-yu/typerace/internal/text"
	"github.com/sirupsen/logrus"
)

const (
	DefaultCountdownSeconds = 5
	maxGenerationBackoff    = 30 * time.Second
)

// Session translates client messages into Store and Directory operations and emits the
// resulting events. It is created once at startup and shared by every connection.
//
// Messages from one connection must be handled sequentially (one read loop per
// connection); messages from different connections may be handled concurrently.
type Session struct {
	Store     *Store
	Directory *Directory
	Out       Broadcaster
	Source    text.Source
	Logger    *logrus.Logger

	// RecordFn receives race events for the event log. If nil, nothing is recorded.
	RecordFn func(rec cache.RaceEventRecord)

	MinTextLength     int
	CountdownSeconds  int
	Tick              time.Duration
	GenerationBackoff time.Duration

	// NewID mints room ids.
	NewID func() string
}

// NewSession returns a Session with default timings over a fresh Store and Directory.
func NewSession(out Broadcaster, src text.Source, logger *logrus.Logger) *Session {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Session{
		Store:             NewStore(),
		Directory:         NewDirectory(),
		Out:               out,
		Source:            src,
		Logger:            logger,
		MinTextLength:     text.DefaultMinLength,
		CountdownSeconds:  DefaultCountdownSeconds,
		Tick:              time.Second,
		GenerationBackoff: time.Second,
		NewID:             uuid.NewString,
	}
}

// HandleMessage dispatches one inbound message from connID. A panic inside a handler
// aborts that message only; it is logged and the connection keeps going.
func (s *Session) HandleMessage(connID string, msg ClientMessage) {
	defer s.recoverHandler(connID, msg.Type)

	switch msg.Type {
	case MsgCreate:
		s.handleCreate(connID, msg)
	case MsgJoin:
		s.handleJoin(connID, msg.Name, msg.Room)
	case MsgGenerateGameText:
		s.handleGenerateGameText(connID, msg)
	case MsgStartGame:
		s.handleStartGame(connID, msg)
	case MsgPushCharacter:
		s.handlePushCharacter(connID, msg)
	case MsgPopCharacter:
		s.handlePopCharacter(connID)
	case MsgLeaveGame:
		s.leave(connID)
	case MsgPlayAgain:
		s.handlePlayAgain(connID, msg)
	case MsgCheckGameAvailability:
		s.handleCheckAvailability(connID, msg)
	default:
		s.Logger.WithField("conn", connID).Warnf("unknown message type %q", msg.Type)
		s.emitError(connID, fmt.Sprintf("Unknown message type: %s", msg.Type))
	}
}

// HandleDisconnect removes the connection from its room, as if it had left.
func (s *Session) HandleDisconnect(connID string) {
	defer s.recoverHandler(connID, "disconnect")
	s.leave(connID)
}

func (s *Session) recoverHandler(connID, event string) {
	if r := recover(); r != nil {
		s.Logger.WithFields(logrus.Fields{
			"conn":  connID,
			"event": event,
		}).Errorf("handler aborted: %v\n%s", r, debug.Stack())
	}
}

func (s *Session) emitError(connID, message string) {
	s.Out.Emit(connID, Event{Type: EventError, Data: ErrorPayload{Message: message}})
}

func (s *Session) record(roomID, connID, action string, payload map[string]interface{}) {
	if s.RecordFn == nil {
		return
	}
	s.RecordFn(cache.RaceEventRecord{
		RoomID:     roomID,
		ConnID:     connID,
		ActionType: action,
		Payload:    payload,
		Timestamp:  time.Now().UnixMilli(),
	})
}

// roomFor resolves the room a message refers to: the explicit room if given, otherwise
// the room the connection is registered in.
func (s *Session) roomFor(connID, explicit string) string {
	if explicit != "" {
		return explicit
	}
	if m, ok := s.Directory.Get(connID); ok {
		return m.Room
	}
	return ""
}

func (s *Session) broadcastSnapshot(roomID string) {
	s.Out.Broadcast(roomID, Event{Type: EventUserConnect, Data: s.Store.Snapshot(roomID)})
}

func (s *Session) handleCreate(connID string, msg ClientMessage) {
	name := strings.TrimSpace(msg.Name)
	if name == "" {
		s.emitError(connID, "A name is required")
		return
	}
	if s.Directory.Contains(connID) {
		s.Logger.WithField("conn", connID).Warn("create from a connection already in a room")
		s.emitError(connID, "Already in a game")
		return
	}

	roomID := s.NewID()
	r, _ := s.Store.AcquireOrCreate(roomID)
	defer r.Mu.Unlock()

	s.admitUnsafe(connID, name, roomID)
	s.Out.Emit(connID, Event{Type: EventGameID, Data: GameIDPayload{ID: roomID}})
	s.Logger.WithFields(logrus.Fields{"room": roomID, "conn": connID}).Infof("%s created the room", name)
}

// handleJoin admits connID into roomID, creating the room if it does not exist. A
// connection already in another room leaves it first.
func (s *Session) handleJoin(connID, name, roomID string) {
	name = strings.TrimSpace(name)
	if name == "" || roomID == "" {
		s.emitError(connID, "A name and a room are required")
		return
	}
	if m, ok := s.Directory.Get(connID); ok {
		if m.Room == roomID {
			return
		}
		if s.roomEnded(roomID) {
			s.Out.Emit(connID, Event{Type: EventGameUnavailable})
			return
		}
		s.leave(connID)
	}

	r, created := s.Store.AcquireOrCreate(roomID)
	defer r.Mu.Unlock()

	// The room may have ended after the check above; the caller has then left its old
	// room and stays unregistered.
	if !created && r.State() == StateEnding {
		s.Out.Emit(connID, Event{Type: EventGameUnavailable})
		return
	}

	s.Out.Emit(connID, Event{Type: EventAllowedToJoin})
	if r.State() == StateGame {
		s.Out.Emit(connID, Event{Type: EventStartGame, Data: StartGamePayload{Text: s.Store.GameText(roomID)}})
	}
	s.admitUnsafe(connID, name, roomID)
	s.Logger.WithFields(logrus.Fields{"room": roomID, "conn": connID}).Infof("%s joined the room", name)
}

// roomEnded reports whether roomID exists and is in Ending. The caller must not hold that
// room's lock.
func (s *Session) roomEnded(roomID string) bool {
	r, ok := s.Store.Acquire(roomID)
	if !ok {
		return false
	}
	defer r.Mu.Unlock()
	return r.State() == StateEnding
}

// admitUnsafe registers connID in the room and broadcasts the new roster.
// Assumes room lock is held.
func (s *Session) admitUnsafe(connID, name, roomID string) {
	s.Directory.Add(connID, Member{Name: name, Room: roomID})
	s.Store.AddParticipant(roomID, connID, name)
	s.Out.JoinGroup(roomID, connID)
	s.broadcastSnapshot(roomID)
	s.record(roomID, connID, cache.ActionJoin, map[string]interface{}{"name": name})
}

func (s *Session) leave(connID string) {
	m, ok := s.Directory.Remove(connID)
	if !ok {
		return
	}
	s.Out.LeaveGroup(m.Room, connID)

	r, ok := s.Store.Acquire(m.Room)
	if !ok {
		return
	}
	defer r.Mu.Unlock()

	deleted := s.Store.RemoveParticipant(m.Room, connID)
	s.record(m.Room, connID, cache.ActionLeave, map[string]interface{}{"room_deleted": deleted})
	if deleted {
		s.Logger.WithField("room", m.Room).Info("room is empty and was deleted")
		return
	}
	s.broadcastSnapshot(m.Room)
}

func (s *Session) handleCheckAvailability(connID string, msg ClientMessage) {
	if msg.Room != "" && s.Store.IsJoinable(msg.Room) {
		s.Out.Emit(connID, Event{Type: EventGameAvailable})
		return
	}
	s.Out.Emit(connID, Event{Type: EventGameUnavailable})
}

func (s *Session) handleGenerateGameText(connID string, msg ClientMessage) {
	roomID := s.roomFor(connID, msg.Room)
	r, ok := s.Store.Acquire(roomID)
	if !ok {
		s.Logger.WithFields(logrus.Fields{"room": roomID, "conn": connID}).Warn("text requested for unknown room")
		return
	}
	won, finished := s.claimGeneration(r)

	if !won {
		s.Out.Emit(connID, Event{Type: EventCreatedGameText, Data: finished})
		return
	}
	go s.generateText(r)
}

// claimGeneration tests and sets the room's generation guard and releases the lock
// Acquire took.
func (s *Session) claimGeneration(r *Room) (won, finished bool) {
	defer r.Mu.Unlock()
	return s.Store.TryBeginGeneration(r.ID), s.Store.FinishedGeneratingText(r.ID)
}

// generateText runs the acquisition loop for r without holding its lock, retrying after
// fetch errors until it succeeds or the room is deleted, then commits the text.
func (s *Session) generateText(r *Room) {
	defer s.recoverHandler("", MsgGenerateGameText)

	ctx := r.Context()
	log := s.Logger.WithField("room", r.ID)
	backoff := s.GenerationBackoff

	var passage string
	for {
		var err error
		passage, err = text.Acquire(ctx, s.Source, s.MinTextLength)
		if err == nil {
			break
		}
		if ctx.Err() != nil {
			log.Info("room deleted while generating text")
			return
		}
		log.Warnf("text fetch failed, retrying in %s: %v", backoff, err)
		if !sleepCtx(ctx, backoff) {
			return
		}
		backoff *= 2
		if backoff > maxGenerationBackoff {
			backoff = maxGenerationBackoff
		}
	}

	r.Mu.Lock()
	defer r.Mu.Unlock()
	if r.Deleted() {
		return
	}
	s.Store.CommitText(r.ID, passage)
	s.Out.Broadcast(r.ID, Event{Type: EventCreatedGameText, Data: true})
	log.Infof("generated a %d character text", len(passage))
}

func (s *Session) handleStartGame(connID string, msg ClientMessage) {
	roomID := s.roomFor(connID, msg.Room)
	r, ok := s.Store.Acquire(roomID)
	if !ok {
		return
	}
	defer r.Mu.Unlock()

	if r.State() != StateLobby {
		s.Logger.WithFields(logrus.Fields{"room": roomID, "conn": connID}).Debugf("start ignored in state %s", r.State())
		return
	}
	if s.Store.GameText(roomID) == "" {
		s.Out.Broadcast(roomID, Event{Type: EventMissingGameText})
		return
	}

	s.Store.StartCountdown(roomID)
	s.Out.Broadcast(roomID, Event{Type: EventAppStateChange, Data: StateChangePayload{State: StateGameCountdown}})
	s.record(roomID, connID, cache.ActionStart, map[string]interface{}{
		"participants": r.Len(),
		"text_length":  len(s.Store.GameText(roomID)),
	})
	s.Logger.WithField("room", roomID).Info("countdown started")

	go s.countdown(r)
}

// countdown broadcasts the remaining seconds once per tick, then starts the round. It
// takes the room lock only to emit; it stops if the room is deleted.
func (s *Session) countdown(r *Room) {
	defer s.recoverHandler("", "countdown")

	ctx := r.Context()
	for sec := s.CountdownSeconds; sec > 0; sec-- {
		if !s.emitCountdown(r, sec) {
			return
		}
		if !sleepCtx(ctx, s.Tick) {
			return
		}
	}

	r.Mu.Lock()
	defer r.Mu.Unlock()
	if r.Deleted() || r.State() != StateGameCountdown {
		return
	}
	s.Out.Broadcast(r.ID, Event{Type: EventCountdownChange, Data: CountdownPayload{SecondsRemaining: 0}})
	s.Store.StartRound(r.ID)
	s.Out.Broadcast(r.ID, Event{Type: EventAppStateChange, Data: StateChangePayload{State: StateGame}})
	s.Out.Broadcast(r.ID, Event{Type: EventStartGame, Data: StartGamePayload{Text: s.Store.GameText(r.ID)}})
	s.Logger.WithField("room", r.ID).Info("race started")
}

func (s *Session) emitCountdown(r *Room, sec int) bool {
	r.Mu.Lock()
	defer r.Mu.Unlock()
	if r.Deleted() || r.State() != StateGameCountdown {
		return false
	}
	s.Out.Broadcast(r.ID, Event{Type: EventCountdownChange, Data: CountdownPayload{SecondsRemaining: sec}})
	return true
}

func (s *Session) handlePushCharacter(connID string, msg ClientMessage) {
	ch, size := utf8.DecodeRuneInString(msg.Char)
	if size == 0 || size != len(msg.Char) {
		return
	}
	m, ok := s.Directory.Get(connID)
	if !ok {
		return
	}
	r, ok := s.Store.Acquire(m.Room)
	if !ok {
		return
	}
	defer r.Mu.Unlock()

	if r.State() != StateGame {
		return
	}
	correctLen, ok := s.Store.PushCharacter(m.Room, connID, ch)
	if !ok {
		return
	}
	s.Out.Broadcast(m.Room, Event{
		Type: EventCharacterChange,
		Data: CharacterChangePayload{ConnID: connID, NewCorrectLen: correctLen},
	}, connID)

	if correctLen == len(s.Store.GameText(m.Room)) && s.Store.CheckEnding(m.Room, connID) {
		s.Out.Broadcast(m.Room, Event{Type: EventAppStateChange, Data: StateChangePayload{State: StateEnding}})
		s.recordFinishUnsafe(r, connID)
		s.Logger.WithFields(logrus.Fields{"room": m.Room, "conn": connID}).Infof("%s finished the race", m.Name)
	}
}

func (s *Session) recordFinishUnsafe(r *Room, connID string) {
	if s.RecordFn == nil {
		return
	}
	results := make([]cache.ParticipantResult, 0, len(r.participants))
	for id, p := range r.participants {
		results = append(results, cache.ParticipantResult{ConnID: id, Name: p.Name, CorrectLen: p.CorrectLen})
	}
	s.record(r.ID, connID, cache.ActionFinish, map[string]interface{}{
		"text_length": len(r.text),
		"results":     results,
	})
}

func (s *Session) handlePopCharacter(connID string) {
	m, ok := s.Directory.Get(connID)
	if !ok {
		return
	}
	r, ok := s.Store.Acquire(m.Room)
	if !ok {
		return
	}
	defer r.Mu.Unlock()

	if r.State() != StateGame {
		return
	}
	correctLen, ok := s.Store.PopCharacter(m.Room, connID)
	if !ok {
		return
	}
	s.Out.Broadcast(m.Room, Event{
		Type: EventCharacterChange,
		Data: CharacterChangePayload{ConnID: connID, NewCorrectLen: correctLen},
	}, connID)
}

// handlePlayAgain moves the caller from an ended room into its followup room, minting and
// recording the followup id if there is none yet or the recorded one has ended too.
func (s *Session) handlePlayAgain(connID string, msg ClientMessage) {
	roomID := s.roomFor(connID, msg.Room)
	name := strings.TrimSpace(msg.Name)
	if name == "" {
		if m, ok := s.Directory.Get(connID); ok {
			name = m.Name
		}
	}

	followupID, ok := s.resolveFollowup(roomID)
	if !ok {
		return
	}
	s.handleJoin(connID, name, followupID)
}

func (s *Session) resolveFollowup(roomID string) (string, bool) {
	r, ok := s.Store.Acquire(roomID)
	if !ok {
		return "", false
	}
	defer r.Mu.Unlock()

	if r.State() != StateEnding {
		return "", false
	}
	followupID := s.Store.FollowupID(roomID)
	if followupID == "" || !s.followupUsable(followupID) {
		followupID = s.NewID()
		s.Store.SetFollowupID(roomID, followupID)
	}
	return followupID, true
}

// followupUsable reports whether a recorded followup room is still joinable. A followup
// that was deleted is not; the ended room then gets a fresh id so that two races never
// share one. Called with the ended room locked; a room only ever locks its own followup,
// never the reverse.
func (s *Session) followupUsable(roomID string) bool {
	r, ok := s.Store.Acquire(roomID)
	if !ok {
		return false
	}
	defer r.Mu.Unlock()
	return r.State() != StateEnding
}

// sleepCtx waits for d or until ctx is done. It reports whether the full wait elapsed.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
