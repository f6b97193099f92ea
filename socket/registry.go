package socket

import (
	"sync"
)

// Member is anything that can sit in a room and receive frames.
type Member interface {
	ID() string
	Push(frame []byte) error
}

type room struct {
	mu      sync.RWMutex
	members map[string]Member
	// dead is set once the room has been unlinked from the registry; joiners must retry.
	dead bool
}

type membership struct {
	mu     sync.Mutex
	boards map[string]struct{}
	purged bool
}

// Registry maps board ids to the sessions currently joined to them.
// Each board's member set has its own lock; the rooms map lock is only held to find or unlink a room.
// Lock order is membership -> room, never the reverse.
type Registry struct {
	mu    sync.RWMutex
	rooms map[string]*room

	sessions sync.Map // session id -> *membership
}

func NewRegistry() *Registry {
	return &Registry{rooms: make(map[string]*room)}
}

// Join adds m to the board's room. Joining twice is a no-op.
func (r *Registry) Join(m Member, boardID string) error {
	ms := r.membershipOf(m.ID())
	ms.mu.Lock()
	defer ms.mu.Unlock()
	if ms.purged {
		return ErrSessionClosed
	}

	for {
		rm := r.roomFor(boardID, true)
		rm.mu.Lock()
		if rm.dead {
			rm.mu.Unlock()
			r.unlink(boardID, rm)
			continue
		}
		rm.members[m.ID()] = m
		rm.mu.Unlock()
		break
	}
	ms.boards[boardID] = struct{}{}
	return nil
}

// Leave removes the session from the board's room. Absent sessions are ignored.
func (r *Registry) Leave(sessionID, boardID string) {
	v, ok := r.sessions.Load(sessionID)
	if !ok {
		return
	}
	ms := v.(*membership)
	ms.mu.Lock()
	defer ms.mu.Unlock()

	delete(ms.boards, boardID)
	r.removeFromRoom(sessionID, boardID)
}

// Purge removes the session from every room it joined. Safe to call more than once.
func (r *Registry) Purge(sessionID string) []string {
	v, ok := r.sessions.LoadAndDelete(sessionID)
	if !ok {
		return nil
	}
	ms := v.(*membership)
	ms.mu.Lock()
	defer ms.mu.Unlock()

	ms.purged = true
	left := make([]string, 0, len(ms.boards))
	for boardID := range ms.boards {
		r.removeFromRoom(sessionID, boardID)
		left = append(left, boardID)
	}
	ms.boards = nil
	return left
}

// MembersOf returns a snapshot of the board's members.
func (r *Registry) MembersOf(boardID string) []Member {
	rm := r.roomFor(boardID, false)
	if rm == nil {
		return nil
	}
	rm.mu.RLock()
	defer rm.mu.RUnlock()

	out := make([]Member, 0, len(rm.members))
	for _, m := range rm.members {
		out = append(out, m)
	}
	return out
}

// BoardsOf returns the boards the session is currently joined to.
func (r *Registry) BoardsOf(sessionID string) []string {
	v, ok := r.sessions.Load(sessionID)
	if !ok {
		return nil
	}
	ms := v.(*membership)
	ms.mu.Lock()
	defer ms.mu.Unlock()

	out := make([]string, 0, len(ms.boards))
	for boardID := range ms.boards {
		out = append(out, boardID)
	}
	return out
}

// DropBoard empties the board's room, e.g. after the board was deleted. Returns the evicted members.
func (r *Registry) DropBoard(boardID string) []Member {
	r.mu.Lock()
	rm, ok := r.rooms[boardID]
	if ok {
		delete(r.rooms, boardID)
	}
	r.mu.Unlock()
	if !ok {
		return nil
	}

	rm.mu.Lock()
	rm.dead = true
	evicted := make([]Member, 0, len(rm.members))
	for _, m := range rm.members {
		evicted = append(evicted, m)
	}
	rm.members = nil
	rm.mu.Unlock()

	for _, m := range evicted {
		if v, ok := r.sessions.Load(m.ID()); ok {
			ms := v.(*membership)
			ms.mu.Lock()
			delete(ms.boards, boardID)
			ms.mu.Unlock()
		}
	}
	return evicted
}

// RoomCount returns the number of non-empty rooms.
func (r *Registry) RoomCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}

func (r *Registry) membershipOf(sessionID string) *membership {
	v, _ := r.sessions.LoadOrStore(sessionID, &membership{boards: make(map[string]struct{})})
	return v.(*membership)
}

func (r *Registry) roomFor(boardID string, create bool) *room {
	r.mu.RLock()
	rm, ok := r.rooms[boardID]
	r.mu.RUnlock()
	if ok || !create {
		return rm
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if rm, ok = r.rooms[boardID]; ok {
		return rm
	}
	rm = &room{members: make(map[string]Member)}
	r.rooms[boardID] = rm
	return rm
}

// removeFromRoom deletes the session from the room and unlinks the room once it is empty.
func (r *Registry) removeFromRoom(sessionID, boardID string) {
	rm := r.roomFor(boardID, false)
	if rm == nil {
		return
	}
	rm.mu.Lock()
	delete(rm.members, sessionID)
	empty := len(rm.members) == 0 && !rm.dead
	if empty {
		rm.dead = true
	}
	rm.mu.Unlock()

	if empty {
		r.unlink(boardID, rm)
	}
}

func (r *Registry) unlink(boardID string, rm *room) {
	r.mu.Lock()
	if r.rooms[boardID] == rm {
		delete(r.rooms, boardID)
	}
	r.mu.Unlock()
}
