package realtime

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/PaulBabatuyi/chatsync/internal/presence"
)

type fakeConn struct {
	id string

	mu     sync.Mutex
	frames [][]byte
	fail   bool
	closed bool
	code   int
	reason string
}

func newFakeConn(id string) *fakeConn { return &fakeConn{id: id} }

func (c *fakeConn) ID() string { return c.id }

func (c *fakeConn) Send(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail || c.closed {
		return errors.New("send failed")
	}
	c.frames = append(c.frames, payload)
	return nil
}

func (c *fakeConn) Close(code int, reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.code = code
	c.reason = reason
}

func (c *fakeConn) envelopes(t *testing.T) []Envelope {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Envelope, 0, len(c.frames))
	for _, f := range c.frames {
		var env Envelope
		if err := json.Unmarshal(f, &env); err != nil {
			t.Fatalf("bad frame %q: %v", f, err)
		}
		out = append(out, env)
	}
	return out
}

func (c *fakeConn) events(t *testing.T, event string) []Envelope {
	t.Helper()
	var out []Envelope
	for _, env := range c.envelopes(t) {
		if env.Event == event {
			out = append(out, env)
		}
	}
	return out
}

func TestPushToOfflineIsSilentDrop(t *testing.T) {
	r := NewRouter(presence.NewDirectory(), nil)
	if r.Push(KindMessage, "nobody@x.io", map[string]string{"text": "hi"}) {
		t.Fatal("push to offline user reported delivery")
	}
}

func TestPushDeliversToRegisteredConnection(t *testing.T) {
	dir := presence.NewDirectory()
	r := NewRouter(dir, nil)
	bob := newFakeConn("b1")
	dir.Register("bob@x.io", bob)

	if !r.Push(KindMessage, "BOB@x.io", map[string]string{"text": "hi"}) {
		t.Fatal("expected delivery")
	}
	got := bob.events(t, string(KindMessage))
	if len(got) != 1 {
		t.Fatalf("got %d message frames, want 1", len(got))
	}
	var body map[string]string
	if err := json.Unmarshal(got[0].Data, &body); err != nil {
		t.Fatal(err)
	}
	if body["text"] != "hi" {
		t.Errorf("payload = %v", body)
	}
}

func TestPushGoesToLatestConnection(t *testing.T) {
	dir := presence.NewDirectory()
	r := NewRouter(dir, nil)
	old, cur := newFakeConn("b1"), newFakeConn("b2")
	dir.Register("bob@x.io", old)
	dir.Register("bob@x.io", cur)

	r.Push(KindMessage, "bob@x.io", "x")
	if len(old.events(t, string(KindMessage))) != 0 {
		t.Error("superseded connection received a push")
	}
	if len(cur.events(t, string(KindMessage))) != 1 {
		t.Error("current connection missed the push")
	}
}

func TestPushSendFailureNotReported(t *testing.T) {
	dir := presence.NewDirectory()
	r := NewRouter(dir, nil)
	bob := newFakeConn("b1")
	bob.fail = true
	dir.Register("bob@x.io", bob)

	if r.Push(KindMessage, "bob@x.io", "x") {
		t.Fatal("failed send reported as delivered")
	}
}

func TestPushTypingKinds(t *testing.T) {
	dir := presence.NewDirectory()
	r := NewRouter(dir, nil)
	bob := newFakeConn("b1")
	dir.Register("bob@x.io", bob)

	r.PushTyping("bob@x.io", Typing{ChatID: "c1", Typing: true, From: "alice@x.io"})
	r.PushTyping("bob@x.io", Typing{ChatID: "c1", Typing: false, From: "alice@x.io"})

	starts := bob.events(t, string(KindTypingStart))
	stops := bob.events(t, string(KindTypingStop))
	if len(starts) != 1 || len(stops) != 1 {
		t.Fatalf("starts=%d stops=%d", len(starts), len(stops))
	}
	var ty Typing
	if err := json.Unmarshal(starts[0].Data, &ty); err != nil {
		t.Fatal(err)
	}
	if ty.ChatID != "c1" || !ty.Typing || ty.From != "alice@x.io" {
		t.Errorf("typing payload = %+v", ty)
	}
}

func TestBroadcastPresenceReachesEveryone(t *testing.T) {
	dir := presence.NewDirectory()
	r := NewRouter(dir, nil)
	a, b := newFakeConn("a1"), newFakeConn("b1")
	dir.Register("alice@x.io", a)
	dir.Register("bob@x.io", b)

	if n := r.BroadcastPresence(); n != 2 {
		t.Fatalf("delivered = %d, want 2", n)
	}
	for _, c := range []*fakeConn{a, b} {
		got := c.events(t, string(KindPresence))
		var p Presence
		if err := json.Unmarshal(got[len(got)-1].Data, &p); err != nil {
			t.Fatal(err)
		}
		if len(p.Online) != 2 || p.Online[0] != "alice@x.io" || p.Online[1] != "bob@x.io" {
			t.Errorf("online = %v", p.Online)
		}
	}
}
