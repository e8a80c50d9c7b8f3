package realtime

import (
	"errors"
	"sync"
	"testing"
)

type fakePeer struct {
	id, user string

	mu     sync.Mutex
	frames [][]byte
	err    error
}

func (p *fakePeer) ID() string     { return p.id }
func (p *fakePeer) UserID() string { return p.user }

func (p *fakePeer) Send(frame []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.frames = append(p.frames, frame)
	return nil
}

func (p *fakePeer) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.frames)
}

func TestRoomLifecycleHooks(t *testing.T) {
	r := NewRoomRegistry()
	var created, destroyed []string
	r.Hooks(func(room string) { created = append(created, room) }, func(room string) { destroyed = append(destroyed, room) })

	a := &fakePeer{id: "a", user: "u1"}
	b := &fakePeer{id: "b", user: "u2"}

	others, err := r.Join("s1", a, "live")
	if err != nil || len(others) != 0 {
		t.Fatalf("first join: others=%v err=%v", others, err)
	}
	others, _ = r.Join("s1", b, "")
	if len(others) != 1 || others[0].ID != "a" || others[0].Mode != "live" {
		t.Fatalf("second join others = %#v", others)
	}
	if len(created) != 1 {
		t.Fatalf("onCreate called %d times, want 1", len(created))
	}

	r.Leave("s1", "a")
	if r.Count() != 1 {
		t.Fatalf("room destroyed while still occupied")
	}
	r.Leave("s1", "b")
	if r.Count() != 0 || len(destroyed) != 1 {
		t.Fatalf("empty room not destroyed: count=%d destroyed=%v", r.Count(), destroyed)
	}
	if r.Leave("s1", "b") {
		t.Fatal("Leave on missing room should report false")
	}
}

func TestRoomJoinRequiresName(t *testing.T) {
	r := NewRoomRegistry()
	if _, err := r.Join("", &fakePeer{id: "a"}, ""); !errors.Is(err, ErrInvalidRoomName) {
		t.Fatalf("err = %v", err)
	}
}

func TestRoomBroadcastSkipsSender(t *testing.T) {
	r := NewRoomRegistry()
	a, b, c := &fakePeer{id: "a"}, &fakePeer{id: "b"}, &fakePeer{id: "c"}
	for _, p := range []*fakePeer{a, b, c} {
		_, _ = r.Join("s1", p, "")
	}
	c.err = errors.New("gone")

	if n := r.Broadcast("s1", "a", []byte("x")); n != 1 {
		t.Fatalf("Broadcast delivered to %d, want 1", n)
	}
	if a.count() != 0 || b.count() != 1 {
		t.Fatalf("a=%d b=%d", a.count(), b.count())
	}
}

func TestRoomUnicast(t *testing.T) {
	r := NewRoomRegistry()
	a, b := &fakePeer{id: "a"}, &fakePeer{id: "b"}
	_, _ = r.Join("s1", a, "")
	_, _ = r.Join("s1", b, "")

	if err := r.Unicast("s1", "b", []byte("offer")); err != nil {
		t.Fatal(err)
	}
	if err := r.Unicast("s1", "zzz", []byte("offer")); !errors.Is(err, ErrUnknownTarget) {
		t.Fatalf("err = %v", err)
	}
	if b.count() != 1 || a.count() != 0 {
		t.Fatalf("a=%d b=%d", a.count(), b.count())
	}
}

func TestRoomLeaveAll(t *testing.T) {
	r := NewRoomRegistry()
	a, b := &fakePeer{id: "a"}, &fakePeer{id: "b"}
	_, _ = r.Join("s2", a, "")
	_, _ = r.Join("s1", a, "")
	_, _ = r.Join("s1", b, "")

	left := r.LeaveAll("a")
	if len(left) != 2 || left[0] != "s1" || left[1] != "s2" {
		t.Fatalf("LeaveAll = %v", left)
	}
	snap := r.Snapshot()
	if len(snap) != 1 || snap["s1"] != 1 {
		t.Fatalf("snapshot = %v", snap)
	}
	if m := r.Members("s1"); len(m) != 1 || m[0].ID != "b" {
		t.Fatalf("members = %#v", m)
	}
}
