package chat

import (
	"fmt"
	"sync"
)

// Directory indexes logged sessions in both directions: username to the set
// of its connections, and connection to its single username. Both indices are
// guarded by one RWMutex and are always mutated together.
//
// Directory methods never perform connection I/O.
type Directory struct {
	mu    sync.RWMutex
	users map[string]map[*Connection]struct{}
	conns map[*Connection]string
}

// NewDirectory creates an empty Directory.
func NewDirectory() *Directory {
	return &Directory{
		users: make(map[string]map[*Connection]struct{}),
		conns: make(map[*Connection]string),
	}
}

// TryLogin associates conn with username. It fails if conn already holds any
// username, even the same one.
func (d *Directory) TryLogin(username string, conn *Connection) bool {
	ok, _ := d.login(username, conn)
	return ok
}

// TryLogout removes the session of conn, provided conn is currently associated
// with exactly username.
func (d *Directory) TryLogout(username string, conn *Connection) bool {
	ok, _ := d.logout(username, conn)
	return ok
}

// OnConnectionClosed drops the session held by conn, if any. It is safe to
// call more than once.
func (d *Directory) OnConnectionClosed(conn *Connection) {
	d.closed(conn)
}

// login reports whether the session was created and whether it is the first
// concurrent session for username.
func (d *Directory) login(username string, conn *Connection) (ok, first bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.conns[conn]; exists {
		return false, false
	}

	set, exists := d.users[username]
	if !exists {
		set = make(map[*Connection]struct{})
		d.users[username] = set
	}
	set[conn] = struct{}{}
	d.conns[conn] = username

	return true, !exists
}

// logout reports whether the session was removed and whether it was the last
// one for username.
func (d *Directory) logout(username string, conn *Connection) (ok, last bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if current, exists := d.conns[conn]; !exists || current != username {
		return false, false
	}

	set, exists := d.users[username]
	if _, member := set[conn]; !exists || !member {
		panic(fmt.Sprintf("chat: directory out of sync for %q and %s", username, conn))
	}

	delete(d.conns, conn)
	delete(set, conn)
	if len(set) == 0 {
		delete(d.users, username)
		return true, true
	}
	return true, false
}

// closed logs conn out of whatever username it holds. A read lock is enough to
// find the username; a concurrent logout between the two steps simply makes
// the second step fail.
func (d *Directory) closed(conn *Connection) (username string, last bool) {
	username, ok := d.Username(conn)
	if !ok {
		return "", false
	}
	removed, last := d.logout(username, conn)
	if !removed {
		return "", false
	}
	return username, last
}

// Username returns the username conn is logged in as.
func (d *Directory) Username(conn *Connection) (string, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	username, ok := d.conns[conn]
	return username, ok
}

// Lookup returns a snapshot of the connections logged in as username.
// The result is empty when the user is not logged in.
func (d *Directory) Lookup(username string) []*Connection {
	d.mu.RLock()
	defer d.mu.RUnlock()

	set := d.users[username]
	conns := make([]*Connection, 0, len(set))
	for conn := range set {
		conns = append(conns, conn)
	}
	return conns
}

// Connections returns a snapshot of every logged connection whose username is
// not except.
func (d *Directory) Connections(except string) []*Connection {
	d.mu.RLock()
	defer d.mu.RUnlock()

	conns := make([]*Connection, 0, len(d.conns))
	for conn, username := range d.conns {
		if username != except {
			conns = append(conns, conn)
		}
	}
	return conns
}

// Counts returns the number of logged users and logged connections, read
// under a single lock acquisition.
func (d *Directory) Counts() (users, connections int) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.users), len(d.conns)
}
