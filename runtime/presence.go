package runtime

import (
	"channel-chat/domain"
	"sort"
	"sync"
)

// Presence counts live sessions per user. A user is online while the count
// is positive.
type Presence struct {
	mu      sync.Mutex
	counts  map[domain.UserID]int
	names   map[domain.UserID]string
	changes chan struct{}
}

func NewPresence() *Presence {
	return &Presence{
		counts:  make(map[domain.UserID]int),
		names:   make(map[domain.UserID]string),
		changes: make(chan struct{}, 1),
	}
}

// Connect registers one more session for the user and reports whether the
// online set changed.
func (p *Presence) Connect(userID domain.UserID, name string) bool {
	p.mu.Lock()
	p.counts[userID]++
	p.names[userID] = name
	changed := p.counts[userID] == 1
	p.mu.Unlock()
	if changed {
		p.notify()
	}
	return changed
}

// Disconnect releases one session. The count never goes below zero, so a
// duplicate disconnect is a no-op.
func (p *Presence) Disconnect(userID domain.UserID) bool {
	p.mu.Lock()
	count, ok := p.counts[userID]
	if !ok {
		p.mu.Unlock()
		return false
	}
	changed := count <= 1
	if changed {
		delete(p.counts, userID)
		delete(p.names, userID)
	} else {
		p.counts[userID] = count - 1
	}
	p.mu.Unlock()
	if changed {
		p.notify()
	}
	return changed
}

func (p *Presence) Count(userID domain.UserID) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.counts[userID]
}

func (p *Presence) OnlineCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.counts)
}

// Snapshot lists online users ordered by name then id.
func (p *Presence) Snapshot() []domain.OnlineUser {
	p.mu.Lock()
	users := make([]domain.OnlineUser, 0, len(p.counts))
	for id, count := range p.counts {
		users = append(users, domain.OnlineUser{UserID: id, Name: p.names[id], Sessions: count})
	}
	p.mu.Unlock()
	sort.Slice(users, func(i, j int) bool {
		if users[i].Name != users[j].Name {
			return users[i].Name < users[j].Name
		}
		return users[i].UserID < users[j].UserID
	})
	return users
}

// Changes signals that the online set changed. Signals coalesce: a reader
// must always read the current Snapshot rather than count signals.
func (p *Presence) Changes() <-chan struct{} {
	return p.changes
}

func (p *Presence) notify() {
	select {
	case p.changes <- struct{}{}:
	default:
	}
}
