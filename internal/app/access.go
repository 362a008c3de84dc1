package app

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/stagioo/Call-sub001/internal/core"
	"github.com/stagioo/Call-sub001/internal/domain"
)

// DecideResult is the outcome of a decision. Stale marks a decision on a
// request that had already resolved; nothing changed.
type DecideResult struct {
	Request domain.JoinRequest `json:"request"`
	Stale   bool               `json:"stale"`
}

// Access runs the join-request workflow
// (none -> pending -> approved | rejected) for every (room, user).
type Access struct {
	rooms    *Rooms
	creators core.CreatorStore
	notifier core.Notifier
	policy   AccessPolicy

	group singleflight.Group
	now   func() time.Time
}

func NewAccess(rooms *Rooms, creators core.CreatorStore, notifier core.Notifier, policy AccessPolicy) *Access {
	return &Access{
		rooms:    rooms,
		creators: creators,
		notifier: notifier,
		policy:   policy,
		now:      time.Now,
	}
}

func (a *Access) Policy() AccessPolicy { return a.policy }

// Creator returns the creator of record for room.
func (a *Access) Creator(ctx context.Context, room domain.RoomID) (domain.UserID, bool, error) {
	creator, err := a.resolveCreator(ctx, room)
	if err != nil {
		return "", false, err
	}
	return creator, creator != "", nil
}

// resolveCreator reads the creator cached on the live room, falling back to
// the store. Concurrent lookups for the same room share one store call.
// Never called with a room lock held.
func (a *Access) resolveCreator(ctx context.Context, room domain.RoomID) (domain.UserID, error) {
	var cached domain.UserID
	a.rooms.Peek(room, func(r *core.Room) { cached = r.Creator() })
	if cached != "" || a.creators == nil {
		return cached, nil
	}
	v, err, _ := a.group.Do(string(room), func() (any, error) {
		u, ok, err := a.creators.CreatorOf(ctx, room)
		if err != nil {
			return domain.UserID(""), fmt.Errorf("%w: %v", domain.ErrCreatorStoreError, err)
		}
		if !ok {
			return domain.UserID(""), nil
		}
		return u, nil
	})
	if err != nil {
		return "", err
	}
	creator := v.(domain.UserID)
	if creator != "" {
		a.rooms.CacheCreator(room, creator)
	}
	return creator, nil
}

// Claim resolves the creator of room and, when the room has none and the
// policy allows it, records user as creator. It returns the effective creator.
func (a *Access) Claim(ctx context.Context, room domain.RoomID, user domain.UserID) (domain.UserID, error) {
	creator, err := a.resolveCreator(ctx, room)
	if err != nil || creator != "" || user == "" || !a.policy.ClaimUnowned || a.creators == nil {
		return creator, err
	}
	creator, err = a.creators.ClaimCreator(ctx, room, user)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrCreatorStoreError, err)
	}
	if creator == user {
		log.Info().Str("module", "app.access").Str("room_id", string(room)).Str("user_id", string(user)).Msg("claimed unowned room")
	}
	return creator, nil
}

// CheckAccess reports whether user may join room right now. It never
// mutates state, so repeated calls without a decision in between agree.
func (a *Access) CheckAccess(ctx context.Context, room domain.RoomID, user domain.UserID) (core.AccessResult, error) {
	creator, err := a.resolveCreator(ctx, room)
	if err != nil {
		return core.AccessResult{}, err
	}
	var res core.AccessResult
	if !a.rooms.Peek(room, func(r *core.Room) { res = a.Evaluate(r, creator, user) }) {
		res = a.Evaluate(nil, creator, user)
	}
	return res, nil
}

// Evaluate computes access for user against r, which must be locked. A nil
// room stands for a room with no live state.
func (a *Access) Evaluate(r *core.Room, creator, user domain.UserID) core.AccessResult {
	if r != nil && creator == "" {
		creator = r.Creator()
	}
	res := core.AccessResult{IsCreator: user != "" && user == creator}
	if res.IsCreator {
		res.HasAccess = true
		return res
	}
	if r == nil {
		// Unowned and empty: the first arrival founds the room.
		res.HasAccess = creator == ""
		return res
	}
	switch {
	case creator == "" && r.Len() == 0:
		res.HasAccess = true
	case r.Mode() == domain.AccessOpen:
		res.HasAccess = true
	case r.HasUser(user), r.HasGrant(user):
		res.HasAccess = true
	default:
		req, ok := r.Request(user)
		res.HasAccess = ok && req.Status == domain.RequestApproved && !req.Expired(a.now(), a.policy.RequestTTL)
	}
	return res
}

// Consume spends the approval that admitted user. With RequireReapproval
// off the approval turns into a grant for the life of the room.
func (a *Access) Consume(r *core.Room, user domain.UserID) {
	req, ok := r.Request(user)
	if !ok || req.Status != domain.RequestApproved {
		return
	}
	r.DeleteRequest(user)
	if !a.policy.RequireReapproval {
		r.Grant(user, a.now())
	}
}

// RequestJoin records a pending request for user, or refreshes the one
// already pending. A user who already has access gets an approved request
// back and nothing is stored.
func (a *Access) RequestJoin(ctx context.Context, room domain.RoomID, user domain.UserID) (domain.JoinRequest, error) {
	if user == "" {
		return domain.JoinRequest{}, domain.ErrInvalidMessage
	}
	creator, err := a.resolveCreator(ctx, room)
	if err != nil {
		return domain.JoinRequest{}, err
	}

	var (
		req      domain.JoinRequest
		notified bool
	)
	now := a.now()
	err = a.rooms.Do(room, true, func(r *core.Room, out *core.Outbox) error {
		if creator != "" {
			r.SetCreator(creator)
		}
		if r.HasUser(user) {
			return domain.ErrAlreadyMember
		}
		if a.Evaluate(r, creator, user).HasAccess {
			req = domain.JoinRequest{RoomID: room, RequesterID: user, Status: domain.RequestApproved, CreatedAt: now}
			return nil
		}
		if cur, ok := r.Request(user); ok && cur.Status == domain.RequestPending && !cur.Expired(now, a.policy.RequestTTL) {
			cur.CreatedAt = now
			req = *cur
		} else {
			req = domain.JoinRequest{RoomID: room, RequesterID: user, Status: domain.RequestPending, CreatedAt: now}
			r.PutRequest(&req)
		}
		notified = true
		out.Send(r.HostID(), JoinRequestEvent{Type: EventJoinRequest, RoomID: room, RequesterID: user, CreatedAt: now})
		return nil
	})
	if err != nil {
		return domain.JoinRequest{}, err
	}
	if notified {
		log.Info().Str("module", "app.access").Str("room_id", string(room)).Str("user_id", string(user)).Msg("join requested")
		a.notify(ctx, core.Notification{Type: core.NotifyJoinRequested, RoomID: room, Recipient: creator, Requester: user, At: now})
	}
	return req, nil
}

// Decide resolves the request of requester. Only the creator or the current
// host may decide.
func (a *Access) Decide(ctx context.Context, room domain.RoomID, requester domain.UserID, d domain.Decision, by domain.UserID) (DecideResult, error) {
	if !d.Valid() || requester == "" {
		return DecideResult{}, domain.ErrInvalidMessage
	}
	creator, err := a.resolveCreator(ctx, room)
	if err != nil {
		return DecideResult{}, err
	}

	var res DecideResult
	now := a.now()
	err = a.rooms.Do(room, false, func(r *core.Room, out *core.Outbox) error {
		if !canDecide(r, creator, by) {
			return domain.ErrNotAuthorized
		}
		req, ok := r.Request(requester)
		if !ok || req.Expired(now, a.policy.RequestTTL) {
			return domain.ErrRequestNotFound
		}
		if req.Status.Terminal() {
			res = DecideResult{Request: *req, Stale: true}
			return nil
		}
		ev := JoinDecisionEvent{Type: EventRejectJoin, RoomID: room, PeerID: requester, DecidedBy: by}
		req.Status = domain.RequestRejected
		if d == domain.DecisionApprove {
			req.Status = domain.RequestApproved
			ev.Type = EventAcceptJoin
		}
		req.DecidedAt = now
		req.DecidedBy = by
		res = DecideResult{Request: *req}
		out.SendUser(requester, room, ev)
		return nil
	})
	if err != nil {
		return DecideResult{}, err
	}
	if res.Stale {
		log.Debug().Str("module", "app.access").Str("room_id", string(room)).Str("user_id", string(requester)).Msg("stale decision ignored")
		return res, nil
	}
	log.Info().Str("module", "app.access").Str("room_id", string(room)).Str("user_id", string(requester)).
		Str("decision", string(d)).Str("by", string(by)).Msg("join request decided")
	kind := core.NotifyJoinRejected
	if d == domain.DecisionApprove {
		kind = core.NotifyJoinApproved
	}
	a.notify(ctx, core.Notification{Type: kind, RoomID: room, Recipient: requester, At: now})
	return res, nil
}

// Pending lists the live pending requests of room, oldest first.
func (a *Access) Pending(ctx context.Context, room domain.RoomID, by domain.UserID) ([]domain.JoinRequest, error) {
	creator, err := a.resolveCreator(ctx, room)
	if err != nil {
		return nil, err
	}
	var (
		out        []domain.JoinRequest
		authorized bool
	)
	found := a.rooms.Peek(room, func(r *core.Room) {
		if authorized = canDecide(r, creator, by); !authorized {
			return
		}
		now := a.now()
		for _, req := range r.Requests(domain.RequestPending) {
			if !req.Expired(now, a.policy.RequestTTL) {
				out = append(out, req)
			}
		}
	})
	if !found {
		authorized = by != "" && by == creator
	}
	if !authorized {
		return nil, domain.ErrNotAuthorized
	}
	if out == nil {
		out = []domain.JoinRequest{}
	}
	return out, nil
}

// SetMode switches a live room between open and approval-required.
func (a *Access) SetMode(ctx context.Context, room domain.RoomID, mode domain.AccessMode, by domain.UserID) error {
	if !mode.Valid() {
		return domain.ErrInvalidMessage
	}
	creator, err := a.resolveCreator(ctx, room)
	if err != nil {
		return err
	}
	return a.rooms.Do(room, false, func(r *core.Room, _ *core.Outbox) error {
		if !canDecide(r, creator, by) {
			return domain.ErrNotAuthorized
		}
		r.SetMode(mode)
		return nil
	})
}

// CreateCall allocates a fresh room id with creator as creator of record.
func (a *Access) CreateCall(ctx context.Context, creator domain.UserID) (domain.RoomID, error) {
	if creator == "" {
		return "", domain.ErrNotAuthorized
	}
	if a.creators == nil {
		return "", domain.ErrCreatorStoreError
	}
	id := domain.NewRoomID()
	if _, err := a.creators.ClaimCreator(ctx, id, creator); err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrCreatorStoreError, err)
	}
	log.Info().Str("module", "app.access").Str("room_id", string(id)).Str("user_id", string(creator)).Msg("call created")
	return id, nil
}

func (a *Access) notify(ctx context.Context, n core.Notification) {
	if a.notifier == nil || n.Recipient == "" {
		return
	}
	if err := a.notifier.Notify(ctx, n); err != nil {
		log.Warn().Err(err).Str("module", "app.access").Str("room_id", string(n.RoomID)).Str("type", n.Type).Msg("notify failed")
	}
}

func canDecide(r *core.Room, creator, by domain.UserID) bool {
	if by == "" {
		return false
	}
	if creator == "" {
		creator = r.Creator()
	}
	return by == creator || r.IsHostUser(by)
}
