package socket

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeMember records pushed frames and can be made to fail.
type fakeMember struct {
	id string

	mu     sync.Mutex
	frames [][]byte
	err    error
}

func newFakeMember(id string) *fakeMember {
	return &fakeMember{id: id}
}

func (m *fakeMember) ID() string { return m.id }

func (m *fakeMember) Push(frame []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.frames = append(m.frames, frame)
	return nil
}

func (m *fakeMember) failWith(err error) {
	m.mu.Lock()
	m.err = err
	m.mu.Unlock()
}

func (m *fakeMember) received() []WSMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]WSMessage, 0, len(m.frames))
	for _, f := range m.frames {
		var msg WSMessage
		if err := json.Unmarshal(f, &msg); err == nil {
			out = append(out, msg)
		}
	}
	return out
}

func memberIDs(members []Member) []string {
	ids := make([]string, 0, len(members))
	for _, m := range members {
		ids = append(ids, m.ID())
	}
	return ids
}

func TestJoinThenLeave(t *testing.T) {
	reg := NewRegistry()
	a := newFakeMember("a")

	require.NoError(t, reg.Join(a, "b1"))
	assert.ElementsMatch(t, []string{"a"}, memberIDs(reg.MembersOf("b1")))

	reg.Leave("a", "b1")
	assert.NotContains(t, memberIDs(reg.MembersOf("b1")), "a")
	assert.Equal(t, 0, reg.RoomCount(), "empty rooms are unlinked")
}

func TestJoinIsIdempotent(t *testing.T) {
	reg := NewRegistry()
	a := newFakeMember("a")

	require.NoError(t, reg.Join(a, "b1"))
	require.NoError(t, reg.Join(a, "b1"))

	assert.Len(t, reg.MembersOf("b1"), 1)
	assert.Equal(t, []string{"b1"}, reg.BoardsOf("a"))
}

func TestLeaveAbsentIsNoop(t *testing.T) {
	reg := NewRegistry()
	b := newFakeMember("b")
	require.NoError(t, reg.Join(b, "b1"))

	reg.Leave("ghost", "b1")
	reg.Leave("b", "other")

	assert.ElementsMatch(t, []string{"b"}, memberIDs(reg.MembersOf("b1")))
}

func TestPurgeRemovesEveryMembership(t *testing.T) {
	reg := NewRegistry()
	a := newFakeMember("a")
	b := newFakeMember("b")

	for _, board := range []string{"b1", "b2", "b3"} {
		require.NoError(t, reg.Join(a, board))
	}
	require.NoError(t, reg.Join(b, "b2"))

	left := reg.Purge("a")
	assert.ElementsMatch(t, []string{"b1", "b2", "b3"}, left)

	assert.Empty(t, reg.MembersOf("b1"))
	assert.ElementsMatch(t, []string{"b"}, memberIDs(reg.MembersOf("b2")))
	assert.Empty(t, reg.MembersOf("b3"))
	assert.Empty(t, reg.BoardsOf("a"))

	assert.Nil(t, reg.Purge("a"), "second purge is a no-op")
}

func TestMembersOfIsASnapshot(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Join(newFakeMember("a"), "b1"))

	snapshot := reg.MembersOf("b1")
	require.NoError(t, reg.Join(newFakeMember("b"), "b1"))
	reg.Leave("a", "b1")

	assert.Equal(t, []string{"a"}, memberIDs(snapshot))
	assert.Equal(t, []string{"b"}, memberIDs(reg.MembersOf("b1")))
}

func TestDropBoard(t *testing.T) {
	reg := NewRegistry()
	a := newFakeMember("a")
	require.NoError(t, reg.Join(a, "b1"))
	require.NoError(t, reg.Join(a, "b2"))

	evicted := reg.DropBoard("b1")
	assert.Equal(t, []string{"a"}, memberIDs(evicted))
	assert.Empty(t, reg.MembersOf("b1"))
	assert.Equal(t, []string{"b2"}, reg.BoardsOf("a"))

	require.NoError(t, reg.Join(a, "b1"), "board room can be recreated")
	assert.Len(t, reg.MembersOf("b1"), 1)
}

func TestConcurrentMembershipChanges(t *testing.T) {
	reg := NewRegistry()
	const sessions = 50
	boards := []string{"b1", "b2", "b3", "b4"}

	var wg sync.WaitGroup
	for i := 0; i < sessions; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			m := newFakeMember(fmt.Sprintf("s%d", i))
			for round := 0; round < 20; round++ {
				for _, b := range boards {
					_ = reg.Join(m, b)
					_ = reg.MembersOf(b)
				}
				reg.Leave(m.ID(), boards[round%len(boards)])
			}
			reg.Purge(m.ID())
		}(i)
	}
	wg.Wait()

	for _, b := range boards {
		assert.Empty(t, reg.MembersOf(b), "board %s", b)
	}
	assert.Equal(t, 0, reg.RoomCount())
}

func TestJoinAfterPurgeRaceIsRejected(t *testing.T) {
	reg := NewRegistry()
	a := newFakeMember("a")
	require.NoError(t, reg.Join(a, "b1"))

	ms := reg.membershipOf("a")
	reg.Purge("a")

	ms.mu.Lock()
	purged := ms.purged
	ms.mu.Unlock()
	assert.True(t, purged)

	// A join that raced with the purge and still holds the old entry must not resurrect membership.
	reg.sessions.Store("a", ms)
	err := reg.Join(a, "b1")
	assert.True(t, errors.Is(err, ErrSessionClosed))
	assert.Empty(t, reg.MembersOf("b1"))
}
