// internal/race/directory.go
package race

import "sync"

// Member is what the directory knows about one connection.
type Member struct {
	Name string `json:"name"`
	Room string `json:"room"`
}

// Directory maps connection ids to their display name and current room. It is kept apart
// from the rooms so a connection can be looked up before it is admitted and after it left.
type Directory struct {
	mu      sync.RWMutex
	members map[string]Member
}

// NewDirectory initializes and returns an empty Directory.
func NewDirectory() *Directory {
	return &Directory{
		members: make(map[string]Member),
	}
}

// Add registers (or replaces) the entry for connID.
func (d *Directory) Add(connID string, m Member) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.members[connID] = m
}

// Get returns the entry for connID.
func (d *Directory) Get(connID string) (Member, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	m, ok := d.members[connID]
	return m, ok
}

// Contains reports whether connID is registered.
func (d *Directory) Contains(connID string) bool {
	_, ok := d.Get(connID)
	return ok
}

// Remove deletes and returns the entry for connID.
func (d *Directory) Remove(connID string) (Member, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	m, ok := d.members[connID]
	if ok {
		delete(d.members, connID)
	}
	return m, ok
}

// Len returns the number of registered connections.
func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.members)
}
