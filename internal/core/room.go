package core

import (
	"slices"
	"sync"
	"time"

	"github.com/stagioo/Call-sub001/internal/domain"
)

// Room is the in-memory state of one call session.
// Every method except ID and CreatedAt requires the caller to hold the lock;
// app.Rooms.Do is the only place that takes it.
// It never closes adapter-owned resources.
type Room struct {
	mu sync.Mutex

	id        domain.RoomID
	createdAt time.Time
	capacity  int

	creator domain.UserID
	host    domain.ConnectionID
	mode    domain.AccessMode
	closed  bool
	evicted bool
	seq     uint64

	participants map[domain.ConnectionID]*domain.Participant
	requests     map[domain.UserID]*domain.JoinRequest
	grants       map[domain.UserID]time.Time
	// producers is the media coordinator's view; it dies with the room.
	producers map[domain.ProducerID]domain.Producer
	sightings map[domain.ProducerID]*sighting
}

// sighting is what reconciliation learned about one producer: whether the
// engine ever reported it and for how many consecutive passes it has not.
type sighting struct {
	seen   bool
	misses int
}

// RemovalOutcome describes a participant removal.
type RemovalOutcome struct {
	Removed   domain.Participant
	WasHost   bool
	Remaining int
	// Producers owned by the removed connection, dropped in the same step.
	Producers []domain.Producer
}

func NewRoom(id domain.RoomID, capacity int, now time.Time) *Room {
	return &Room{
		id:           id,
		createdAt:    now,
		capacity:     capacity,
		mode:         domain.AccessApprovalRequired,
		participants: make(map[domain.ConnectionID]*domain.Participant),
		requests:     make(map[domain.UserID]*domain.JoinRequest),
		grants:       make(map[domain.UserID]time.Time),
		producers:    make(map[domain.ProducerID]domain.Producer),
		sightings:    make(map[domain.ProducerID]*sighting),
	}
}

func (r *Room) Lock()   { r.mu.Lock() }
func (r *Room) Unlock() { r.mu.Unlock() }

func (r *Room) ID() domain.RoomID           { return r.id }
func (r *Room) CreatedAt() time.Time        { return r.createdAt }
func (r *Room) Evicted() bool               { return r.evicted }
func (r *Room) MarkEvicted()                { r.evicted = true }
func (r *Room) Len() int                    { return len(r.participants) }
func (r *Room) Mode() domain.AccessMode     { return r.mode }
func (r *Room) Closed() bool                { return r.closed }
func (r *Room) Close()                      { r.closed = true }
func (r *Room) Creator() domain.UserID      { return r.creator }
func (r *Room) HostID() domain.ConnectionID { return r.host }

func (r *Room) SetMode(m domain.AccessMode) {
	if m.Valid() {
		r.mode = m
	}
}

// SetCreator records the creator once; later calls are ignored.
func (r *Room) SetCreator(u domain.UserID) {
	if r.creator == "" {
		r.creator = u
	}
}

// Idle reports a room nobody uses: no participants, live requests or grants.
func (r *Room) Idle() bool {
	return len(r.participants) == 0 && len(r.requests) == 0 && len(r.grants) == 0
}

func (r *Room) Participant(conn domain.ConnectionID) (domain.Participant, bool) {
	p, ok := r.participants[conn]
	if !ok {
		return domain.Participant{}, false
	}
	return r.view(p), true
}

// HasUser reports whether user holds a live participant in the room.
func (r *Room) HasUser(user domain.UserID) bool {
	if user == "" {
		return false
	}
	for _, p := range r.participants {
		if p.UserID == user {
			return true
		}
	}
	return false
}

// IsHostUser reports whether user owns the current host connection.
func (r *Room) IsHostUser(user domain.UserID) bool {
	if r.host == "" || user == "" {
		return false
	}
	p, ok := r.participants[r.host]
	return ok && p.Identity() == user
}

func (r *Room) Host() (domain.Participant, bool) {
	if r.host == "" {
		return domain.Participant{}, false
	}
	return r.Participant(r.host)
}

// Full reports whether Admit would refuse any newcomer.
func (r *Room) Full() bool {
	return r.closed || r.evicted || (r.capacity > 0 && len(r.participants) >= r.capacity)
}

// Admit inserts a participant. The first participant of an empty room, or
// an asHost participant while no host exists, becomes host.
func (r *Room) Admit(conn domain.ConnectionID, user domain.User, asHost bool, now time.Time) (domain.Participant, error) {
	if r.closed || r.evicted {
		return domain.Participant{}, domain.ErrRoomFullOrClosed
	}
	if _, ok := r.participants[conn]; ok {
		return domain.Participant{}, domain.ErrAlreadyMember
	}
	if r.capacity > 0 && len(r.participants) >= r.capacity {
		return domain.Participant{}, domain.ErrRoomFullOrClosed
	}
	r.seq++
	p := &domain.Participant{
		ConnectionID: conn,
		UserID:       user.ID,
		DisplayName:  user.DisplayName,
		Role:         domain.RoleGuest,
		AdmittedAt:   now,
	}
	p.SetSeq(r.seq)
	if len(r.participants) == 0 || (asHost && r.host == "") {
		p.Role = domain.RoleHost
		r.host = conn
	}
	r.participants[conn] = p
	return r.view(p), nil
}

// Remove deletes a participant together with every producer it owns.
func (r *Room) Remove(conn domain.ConnectionID) (RemovalOutcome, bool) {
	p, ok := r.participants[conn]
	if !ok {
		return RemovalOutcome{Remaining: len(r.participants)}, false
	}
	out := RemovalOutcome{Removed: r.view(p), WasHost: r.host == conn}
	delete(r.participants, conn)
	if out.WasHost {
		r.host = ""
	}
	for id, prod := range r.producers {
		if prod.Owner == conn {
			out.Producers = append(out.Producers, prod)
			delete(r.producers, id)
			delete(r.sightings, id)
		}
	}
	slices.SortFunc(out.Producers, func(a, b domain.Producer) int {
		return compareIDs(a.ID, b.ID)
	})
	out.Remaining = len(r.participants)
	return out, true
}

// PromoteEarliest makes the earliest admitted participant host when the
// room has none.
func (r *Room) PromoteEarliest() (domain.Participant, bool) {
	if r.host != "" {
		return domain.Participant{}, false
	}
	var next *domain.Participant
	for _, p := range r.participants {
		if next == nil || p.AdmittedBefore(next) {
			next = p
		}
	}
	if next == nil {
		return domain.Participant{}, false
	}
	next.Role = domain.RoleHost
	r.host = next.ConnectionID
	return r.view(next), true
}

// Others returns every participant except exclude, in admission order.
func (r *Room) Others(exclude domain.ConnectionID) []domain.Participant {
	out := make([]domain.Participant, 0, len(r.participants))
	for conn, p := range r.participants {
		if conn == exclude {
			continue
		}
		out = append(out, r.view(p))
	}
	slices.SortFunc(out, func(a, b domain.Participant) int {
		switch {
		case a.AdmittedBefore(&b):
			return -1
		case b.AdmittedBefore(&a):
			return 1
		}
		return 0
	})
	return out
}

func (r *Room) Participants() []domain.Participant { return r.Others("") }

func (r *Room) view(p *domain.Participant) domain.Participant {
	v := *p
	v.Producers = r.ProducersOf(p.ConnectionID)
	return v
}

func (r *Room) Request(user domain.UserID) (*domain.JoinRequest, bool) {
	req, ok := r.requests[user]
	return req, ok
}

func (r *Room) PutRequest(req *domain.JoinRequest) { r.requests[req.RequesterID] = req }

func (r *Room) DeleteRequest(user domain.UserID) { delete(r.requests, user) }

// Requests returns requests with the given status, oldest first.
func (r *Room) Requests(status domain.RequestStatus) []domain.JoinRequest {
	out := make([]domain.JoinRequest, 0, len(r.requests))
	for _, req := range r.requests {
		if req.Status == status {
			out = append(out, *req)
		}
	}
	slices.SortFunc(out, func(a, b domain.JoinRequest) int { return a.CreatedAt.Compare(b.CreatedAt) })
	return out
}

// PurgeExpired drops requests older than ttl and reports how many.
func (r *Room) PurgeExpired(now time.Time, ttl time.Duration) int {
	n := 0
	for user, req := range r.requests {
		if req.Expired(now, ttl) {
			delete(r.requests, user)
			n++
		}
	}
	return n
}

func (r *Room) Grant(user domain.UserID, now time.Time) { r.grants[user] = now }

func (r *Room) HasGrant(user domain.UserID) bool {
	_, ok := r.grants[user]
	return ok
}

func (r *Room) Producer(id domain.ProducerID) (domain.Producer, bool) {
	p, ok := r.producers[id]
	return p, ok
}

func (r *Room) PutProducer(p domain.Producer) {
	if _, ok := r.producers[p.ID]; !ok {
		delete(r.sightings, p.ID)
	}
	r.producers[p.ID] = p
}

func (r *Room) DeleteProducer(id domain.ProducerID) (domain.Producer, bool) {
	p, ok := r.producers[id]
	if ok {
		delete(r.producers, id)
		delete(r.sightings, id)
	}
	return p, ok
}

// ObserveProducer records one reconciliation result for producer id and
// returns how many consecutive passes it has been missing since the engine
// last reported it. A producer the engine never reported always yields 0.
func (r *Room) ObserveProducer(id domain.ProducerID, live bool) int {
	if _, ok := r.producers[id]; !ok {
		return 0
	}
	s := r.sightings[id]
	if s == nil {
		s = &sighting{}
		r.sightings[id] = s
	}
	if live {
		s.seen = true
		s.misses = 0
		return 0
	}
	if !s.seen {
		return 0
	}
	s.misses++
	return s.misses
}

// ProducersExcept lists producers not owned by exclude.
func (r *Room) ProducersExcept(exclude domain.ConnectionID) []domain.Producer {
	return r.filterProducers(func(p domain.Producer) bool { return p.Owner != exclude })
}

func (r *Room) ProducersOf(owner domain.ConnectionID) []domain.Producer {
	return r.filterProducers(func(p domain.Producer) bool { return p.Owner == owner })
}

func (r *Room) filterProducers(keep func(domain.Producer) bool) []domain.Producer {
	var out []domain.Producer
	for _, p := range r.producers {
		if keep(p) {
			out = append(out, p)
		}
	}
	slices.SortFunc(out, func(a, b domain.Producer) int { return compareIDs(a.ID, b.ID) })
	return out
}

func (r *Room) Info() RoomInfo {
	return RoomInfo{
		ID:           r.id,
		Participants: len(r.participants),
		Pending:      len(r.Requests(domain.RequestPending)),
		Host:         r.host,
		Creator:      r.creator,
		Mode:         r.mode,
		CreatedAt:    r.createdAt,
	}
}

func compareIDs(a, b domain.ProducerID) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
