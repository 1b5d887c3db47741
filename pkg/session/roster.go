package session

import "sync"

// Roster is the ordered set of current session participants, Host first.
// The Host inserts/removes client entries as they attach/detach; a Client
// replaces its local copy wholesale on every clientList broadcast.
type Roster struct {
	mu       sync.RWMutex
	host     ParticipantInfo
	order    []string // client ids, join order
	byID     map[string]ParticipantInfo
}

// NewRoster creates a roster with host as its permanent first element.
func NewRoster(host ParticipantInfo) *Roster {
	return &Roster{
		host: host,
		byID: make(map[string]ParticipantInfo),
	}
}

// Upsert adds p to the roster, or overwrites the existing entry for the
// same id in place (join order is preserved on overwrite), per the
// "overwriting any stale entry with the same id" contract.
func (r *Roster) Upsert(p ParticipantInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byID[p.ID]; !exists {
		r.order = append(r.order, p.ID)
	}
	r.byID[p.ID] = p
}

// Remove drops a client from the roster.
func (r *Roster) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byID[id]; !ok {
		return
	}
	delete(r.byID, id)

	for i, oid := range r.order {
		if oid == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

// Full returns the complete roster, host first, in join order — the
// payload of a clientList broadcast.
func (r *Roster) Full() []ParticipantInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]ParticipantInfo, 0, len(r.order)+1)
	out = append(out, r.host)
	for _, id := range r.order {
		out = append(out, r.byID[id])
	}
	return out
}

// Clients returns every participant excluding the host, in join order —
// what a Host facade exposes as its own roster view, and the shape a
// Client replaces wholesale from an incoming clientList (self-excluded).
func (r *Roster) Clients() []ParticipantInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]ParticipantInfo, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.byID[id])
	}
	return out
}

func (r *Roster) Get(id string) (ParticipantInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if id == r.host.ID {
		return r.host, true
	}
	p, ok := r.byID[id]
	return p, ok
}

// Replace discards the current client list and adopts clients wholesale,
// excluding any entry whose id equals selfID — used by the Client peer on
// every clientList broadcast (spec §4.5.2).
func (r *Roster) Replace(clients []ParticipantInfo, selfID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.order = r.order[:0]
	r.byID = make(map[string]ParticipantInfo, len(clients))

	for _, p := range clients {
		if p.ID == selfID {
			continue
		}
		if p.IsHost {
			r.host = p
			continue
		}
		r.order = append(r.order, p.ID)
		r.byID[p.ID] = p
	}
}
