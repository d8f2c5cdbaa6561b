package race

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupRoom creates roomID with the given participants and target text.
func setupRoom(t *testing.T, s *Store, roomID, text string, conns ...string) {
	t.Helper()
	r, created := s.AcquireOrCreate(roomID)
	defer r.Mu.Unlock()
	require.True(t, created, "room should be new")
	for _, c := range conns {
		s.AddParticipant(roomID, c, "name-"+c)
	}
	if text != "" {
		s.CommitText(roomID, text)
	}
}

func progress(t *testing.T, s *Store, roomID, connID string) Progress {
	t.Helper()
	r, ok := s.Acquire(roomID)
	require.True(t, ok, "room %s should exist", roomID)
	defer r.Mu.Unlock()
	p, ok := r.Participant(connID)
	require.True(t, ok, "participant %s should exist", connID)
	return p
}

func TestCreateIfAbsent(t *testing.T) {
	s := NewStore()
	assert.True(t, s.CreateIfAbsent("r1"))
	assert.False(t, s.CreateIfAbsent("r1"))

	r, ok := s.Acquire("r1")
	require.True(t, ok)
	defer r.Mu.Unlock()
	assert.Equal(t, StateLobby, r.State())
	assert.Empty(t, r.Text())
	assert.Equal(t, NumColors, r.colors.Len())
}

func TestCreateIfAbsentConcurrent(t *testing.T) {
	s := NewStore()
	var wg sync.WaitGroup
	var mu sync.Mutex
	created := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if s.CreateIfAbsent("same") {
				mu.Lock()
				created++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, created)
	assert.Equal(t, 1, s.Len())
}

func TestPushCharacterCorrectSequence(t *testing.T) {
	s := NewStore()
	const text = "hello world"
	setupRoom(t, s, "r", text, "a")

	r, _ := s.Acquire("r")
	for i := 0; i < len(text); i++ {
		n, ok := s.PushCharacter("r", "a", rune(text[i]))
		require.True(t, ok, "push %d should be credited", i)
		assert.Equal(t, i+1, n)
	}
	// buffer is full now
	_, ok := s.PushCharacter("r", "a", 'x')
	assert.False(t, ok)
	r.Mu.Unlock()

	p := progress(t, s, "r", "a")
	assert.Equal(t, len(text), p.CorrectLen)
	assert.Equal(t, text, string(p.Typed))
}

func TestPushCharacterMistakeBlocksCredit(t *testing.T) {
	s := NewStore()
	setupRoom(t, s, "r", "abcd", "a")

	r, _ := s.Acquire("r")
	n, ok := s.PushCharacter("r", "a", 'a')
	require.True(t, ok)
	assert.Equal(t, 1, n)

	// mismatch: buffer grows, no credit
	_, ok = s.PushCharacter("r", "a", 'x')
	assert.False(t, ok)
	// correct character for index 2, but a mistake sits before it
	_, ok = s.PushCharacter("r", "a", 'c')
	assert.False(t, ok)
	r.Mu.Unlock()

	p := progress(t, s, "r", "a")
	assert.Equal(t, 1, p.CorrectLen)
	assert.Equal(t, "axc", string(p.Typed))

	// trim back to the validated prefix, then retype
	r, _ = s.Acquire("r")
	_, ok = s.PopCharacter("r", "a")
	assert.False(t, ok)
	_, ok = s.PopCharacter("r", "a")
	assert.False(t, ok)
	n, ok = s.PushCharacter("r", "a", 'b')
	require.True(t, ok)
	assert.Equal(t, 2, n)
	r.Mu.Unlock()
}

func TestPushCharacterRejectsNonPrintable(t *testing.T) {
	s := NewStore()
	setupRoom(t, s, "r", "abc", "a")

	r, _ := s.Acquire("r")
	for _, ch := range []rune{'é', '\n', '\t', 0x7F, '世'} {
		_, ok := s.PushCharacter("r", "a", ch)
		assert.False(t, ok, "rune %q", ch)
	}
	r.Mu.Unlock()

	assert.Empty(t, progress(t, s, "r", "a").Typed)
}

func TestPushCharacterEmptyTextIsFull(t *testing.T) {
	s := NewStore()
	setupRoom(t, s, "r", "", "a")

	r, _ := s.Acquire("r")
	_, ok := s.PushCharacter("r", "a", 'a')
	r.Mu.Unlock()
	assert.False(t, ok)
	assert.Empty(t, progress(t, s, "r", "a").Typed)
}

func TestPopCharacter(t *testing.T) {
	s := NewStore()
	setupRoom(t, s, "r", "abc", "a")

	r, _ := s.Acquire("r")
	_, ok := s.PopCharacter("r", "a")
	assert.False(t, ok, "pop on empty buffer is a no-op")

	s.PushCharacter("r", "a", 'a')
	s.PushCharacter("r", "a", 'b')
	n, ok := s.PopCharacter("r", "a")
	require.True(t, ok)
	assert.Equal(t, 1, n)
	n, ok = s.PopCharacter("r", "a")
	require.True(t, ok)
	assert.Equal(t, 0, n)
	r.Mu.Unlock()
}

func TestMissingParticipantPanics(t *testing.T) {
	s := NewStore()
	setupRoom(t, s, "r", "abc", "a")

	r, _ := s.Acquire("r")
	defer r.Mu.Unlock()
	assert.Panics(t, func() { s.PushCharacter("r", "ghost", 'a') })
	assert.Panics(t, func() { s.PopCharacter("r", "ghost") })
	assert.Panics(t, func() { s.AddParticipant("nope", "a", "x") })
}

func TestCheckEnding(t *testing.T) {
	s := NewStore()
	setupRoom(t, s, "r", "ab", "a", "b")

	r, _ := s.Acquire("r")
	defer r.Mu.Unlock()
	s.StartRound("r")
	s.PushCharacter("r", "a", 'a')
	assert.False(t, s.CheckEnding("r", "a"))
	s.PushCharacter("r", "a", 'b')
	assert.True(t, s.CheckEnding("r", "a"))
	assert.Equal(t, StateEnding, r.State())
	assert.Equal(t, "a", r.Finisher())
	// idempotent
	assert.True(t, s.CheckEnding("r", "a"))
	assert.False(t, s.CheckEnding("r", "b"))
}

func TestRemoveParticipantDeletesEmptyRoom(t *testing.T) {
	s := NewStore()
	setupRoom(t, s, "r", "abc", "a", "b")

	r, _ := s.Acquire("r")
	ctx := r.Context()
	assert.False(t, s.RemoveParticipant("r", "a"))
	assert.Equal(t, NumColors-1, r.colors.Len())
	assert.True(t, s.RemoveParticipant("r", "b"))
	assert.True(t, r.Deleted())
	r.Mu.Unlock()

	assert.False(t, s.Exists("r"))
	assert.Error(t, ctx.Err(), "room context should be cancelled")
	_, ok := s.Acquire("r")
	assert.False(t, ok)

	// the id can be reused for a fresh room
	setupRoom(t, s, "r", "", "c")
	r, _ = s.Acquire("r")
	defer r.Mu.Unlock()
	assert.Equal(t, StateLobby, r.State())
	assert.Empty(t, r.Text())
	assert.Equal(t, 1, r.Len())
}

func TestIsJoinable(t *testing.T) {
	s := NewStore()
	assert.False(t, s.IsJoinable("missing"))

	setupRoom(t, s, "r", "a", "a")
	assert.True(t, s.IsJoinable("r"))

	r, _ := s.Acquire("r")
	s.StartRound("r")
	s.PushCharacter("r", "a", 'a')
	s.CheckEnding("r", "a")
	r.Mu.Unlock()
	assert.False(t, s.IsJoinable("r"))
}

func TestTryBeginGenerationOnce(t *testing.T) {
	s := NewStore()
	setupRoom(t, s, "r", "", "a")

	var wg sync.WaitGroup
	var mu sync.Mutex
	winners := 0
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r, ok := s.Acquire("r")
			if !ok {
				return
			}
			defer r.Mu.Unlock()
			if s.TryBeginGeneration("r") {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, winners)

	r, _ := s.Acquire("r")
	defer r.Mu.Unlock()
	assert.False(t, s.FinishedGeneratingText("r"))
	s.CommitText("r", "done")
	assert.True(t, s.FinishedGeneratingText("r"))
	assert.Equal(t, "done", s.GameText("r"))
}

func TestSnapshot(t *testing.T) {
	s := NewStore()
	setupRoom(t, s, "r", "ab", "a", "b")

	r, _ := s.Acquire("r")
	defer r.Mu.Unlock()
	s.StartRound("r")
	s.PushCharacter("r", "a", 'a')

	snap := s.Snapshot("r")
	assert.Equal(t, map[string]string{"a": "name-a", "b": "name-b"}, snap.Users)
	assert.Equal(t, map[string]int{"a": 1, "b": 0}, snap.CorrectLens)
	assert.Equal(t, StateGame, snap.State)
	assert.True(t, snap.FinishedGeneratingText)
	assert.NotEqual(t, snap.Colors["a"], snap.Colors["b"])
}

func TestColorsReplenishAfterPaletteExhausted(t *testing.T) {
	s := NewStore()
	r, _ := s.AcquireOrCreate("r")
	defer r.Mu.Unlock()

	seen := make(map[Color]bool)
	for i := 0; i < NumColors; i++ {
		id := string(rune('A' + i%26)) + string(rune('0'+i/26))
		s.AddParticipant("r", id, id)
		p, _ := r.Participant(id)
		assert.False(t, seen[p.Color], "color %s handed out twice in one cycle", p.Color)
		seen[p.Color] = true
	}
	assert.Equal(t, 0, r.colors.Len())

	assert.NotPanics(t, func() { s.AddParticipant("r", "extra", "extra") })
	assert.Equal(t, NumColors-1, r.colors.Len())
	assert.Equal(t, NumColors+1, r.Len())
}

func TestMissingRoomPanicWrapsSentinel(t *testing.T) {
	s := NewStore()
	defer func() {
		err, ok := recover().(error)
		require.True(t, ok)
		assert.True(t, errors.Is(err, ErrRoomNotFound))
	}()
	s.GameText("nope")
}
