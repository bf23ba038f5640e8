// Package presence tracks which users currently hold a live connection.
package presence

import (
	"sort"
	"sync"

	"github.com/PaulBabatuyi/chatsync/internal/normalize"
)

// Conn is a live connection handle. Two handles are the same connection when
// their IDs are equal.
type Conn interface {
	ID() string
	Send(payload []byte) error
}

// Directory maps each email to at most one connection; a newer connection
// for the same email replaces the older one.
//
// All methods are safe for concurrent use. The change hook runs after the
// lock is released, so it may call back into the directory.
type Directory struct {
	mu       sync.RWMutex
	entries  map[string]Conn
	onChange func()
}

// NewDirectory returns an empty directory.
func NewDirectory() *Directory {
	return &Directory{entries: make(map[string]Conn)}
}

// OnChange installs fn to run after every successful Register or Unregister.
// It must be set before the directory is shared.
func (d *Directory) OnChange(fn func()) {
	d.onChange = fn
}

// Register binds email to c unconditionally and returns the connection it
// replaced, if any.
func (d *Directory) Register(email string, c Conn) (replaced Conn) {
	email = normalize.Email(email)
	if email == "" || c == nil {
		return nil
	}

	d.mu.Lock()
	if prev, ok := d.entries[email]; ok && prev.ID() != c.ID() {
		replaced = prev
	}
	d.entries[email] = c
	d.mu.Unlock()

	d.changed()
	return replaced
}

// Unregister removes email only while it is still bound to c. A disconnect
// from a superseded connection therefore never evicts the newer one, and a
// second unregister for the same connection is a no-op. It reports whether
// an entry was removed.
func (d *Directory) Unregister(email string, c Conn) bool {
	email = normalize.Email(email)
	if c == nil {
		return false
	}

	d.mu.Lock()
	cur, ok := d.entries[email]
	if !ok || cur.ID() != c.ID() {
		d.mu.Unlock()
		return false
	}
	delete(d.entries, email)
	d.mu.Unlock()

	d.changed()
	return true
}

// Lookup returns the connection bound to email.
func (d *Directory) Lookup(email string) (Conn, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	c, ok := d.entries[normalize.Email(email)]
	return c, ok
}

// Snapshot returns the registered emails in sorted order.
func (d *Directory) Snapshot() []string {
	d.mu.RLock()
	out := make([]string, 0, len(d.entries))
	for e := range d.entries {
		out = append(out, e)
	}
	d.mu.RUnlock()
	sort.Strings(out)
	return out
}

func (d *Directory) changed() {
	if d.onChange != nil {
		d.onChange()
	}
}
