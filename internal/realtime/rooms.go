package realtime

import (
	"errors"
	"sort"
	"sync"
)

var (
	ErrNotMember       = errors.New("realtime: not a member of room")
	ErrUnknownTarget   = errors.New("realtime: target not in room")
	ErrInvalidRoomName = errors.New("realtime: room id required")
)

// Peer is one connection that can sit in rooms.
type Peer interface {
	ID() string
	UserID() string
	Send(frame []byte) error
}

type member struct {
	peer Peer
	mode string
}

// RoomRegistry tracks which peers are in which room. A room exists while it
// has at least one member.
type RoomRegistry struct {
	mu    sync.RWMutex
	rooms map[string]map[string]member

	onCreate  func(room string)
	onDestroy func(room string)
}

func NewRoomRegistry() *RoomRegistry {
	return &RoomRegistry{rooms: map[string]map[string]member{}}
}

// Hooks registers callbacks for room creation and destruction. Either may be nil.
func (r *RoomRegistry) Hooks(onCreate, onDestroy func(room string)) {
	r.mu.Lock()
	r.onCreate, r.onDestroy = onCreate, onDestroy
	r.mu.Unlock()
}

// Join adds p to room and returns the members that were already there.
// Joining twice updates the mode only.
func (r *RoomRegistry) Join(room string, p Peer, mode string) ([]Participant, error) {
	if room == "" {
		return nil, ErrInvalidRoomName
	}
	r.mu.Lock()
	members, ok := r.rooms[room]
	if !ok {
		members = map[string]member{}
		r.rooms[room] = members
	}
	others := participantsLocked(members, p.ID())
	members[p.ID()] = member{peer: p, mode: mode}
	hook := r.onCreate
	r.mu.Unlock()

	if !ok && hook != nil {
		hook(room)
	}
	return others, nil
}

// Leave removes p from room. It reports whether p was a member.
func (r *RoomRegistry) Leave(room, peerID string) bool {
	r.mu.Lock()
	members, ok := r.rooms[room]
	if !ok {
		r.mu.Unlock()
		return false
	}
	if _, in := members[peerID]; !in {
		r.mu.Unlock()
		return false
	}
	delete(members, peerID)
	destroyed := len(members) == 0
	if destroyed {
		delete(r.rooms, room)
	}
	hook := r.onDestroy
	r.mu.Unlock()

	if destroyed && hook != nil {
		hook(room)
	}
	return true
}

// LeaveAll removes peerID from every room and returns the rooms it left.
func (r *RoomRegistry) LeaveAll(peerID string) []string {
	r.mu.RLock()
	var joined []string
	for room, members := range r.rooms {
		if _, ok := members[peerID]; ok {
			joined = append(joined, room)
		}
	}
	r.mu.RUnlock()

	sort.Strings(joined)
	left := joined[:0]
	for _, room := range joined {
		if r.Leave(room, peerID) {
			left = append(left, room)
		}
	}
	return left
}

func (r *RoomRegistry) IsMember(room, peerID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.rooms[room][peerID]
	return ok
}

// Broadcast sends frame to every member of room except the sender and
// returns how many peers accepted it.
func (r *RoomRegistry) Broadcast(room, fromID string, frame []byte) int {
	sent := 0
	for _, p := range r.peers(room) {
		if p.ID() == fromID {
			continue
		}
		if p.Send(frame) == nil {
			sent++
		}
	}
	return sent
}

// Unicast sends frame to one member of room.
func (r *RoomRegistry) Unicast(room, targetID string, frame []byte) error {
	r.mu.RLock()
	m, ok := r.rooms[room][targetID]
	r.mu.RUnlock()
	if !ok {
		return ErrUnknownTarget
	}
	return m.peer.Send(frame)
}

// Members lists the participants of room sorted by id.
func (r *RoomRegistry) Members(room string) []Participant {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return participantsLocked(r.rooms[room], "")
}

// Count returns the number of live rooms.
func (r *RoomRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}

// Snapshot maps each live room to its member count.
func (r *RoomRegistry) Snapshot() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]int, len(r.rooms))
	for room, members := range r.rooms {
		out[room] = len(members)
	}
	return out
}

func (r *RoomRegistry) peers(room string) []Peer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	members := r.rooms[room]
	out := make([]Peer, 0, len(members))
	for _, m := range members {
		out = append(out, m.peer)
	}
	return out
}

func participantsLocked(members map[string]member, skip string) []Participant {
	out := make([]Participant, 0, len(members))
	for id, m := range members {
		if id == skip {
			continue
		}
		out = append(out, Participant{ID: id, UserID: m.peer.UserID(), Mode: m.mode})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
