package readtrack

import (
	"sort"
	"sync"

	"github.com/trezcool/wazazi/core"
)

// Registry holds the live session of every signed-in parent, keyed by uid.
type Registry struct {
	agg *Aggregator
	log core.Logger

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewRegistry(agg *Aggregator, log core.Logger) *Registry {
	return &Registry{
		agg:      agg,
		log:      log,
		sessions: make(map[string]*Session),
	}
}

// Get returns the session of uid, if one is live.
func (r *Registry) Get(uid string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[uid]
	return s, ok
}

// Open returns the session of id.UID, creating it if needed.
// A live session whose linked students changed is reset to the new identity.
func (r *Registry) Open(id Identity) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sessions[id.UID]; ok {
		if !sameStudents(s.Identity(), id) || s.Identity().Email != id.Email {
			s.SetIdentity(id)
		}
		return s
	}
	s := NewSession(r.agg, r.log, id)
	r.sessions[id.UID] = s
	return s
}

// Drop closes and forgets the session of uid.
func (r *Registry) Drop(uid string) {
	r.mu.Lock()
	s, ok := r.sessions[uid]
	delete(r.sessions, uid)
	r.mu.Unlock()

	if ok {
		s.Close()
	}
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

func sameStudents(a, b Identity) bool {
	as, bs := core.UniqueStrings(a.StudentIDs), core.UniqueStrings(b.StudentIDs)
	if len(as) != len(bs) {
		return false
	}
	sort.Strings(as)
	sort.Strings(bs)
	for i := range as {
		if as[i] != bs[i] {
			return false
		}
	}
	return true
}
