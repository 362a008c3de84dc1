package orch

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/stagioo/Call-sub001/internal/app"
	"github.com/stagioo/Call-sub001/internal/core"
	"github.com/stagioo/Call-sub001/internal/domain"
)

type RoomParticipantsReply struct {
	Reply
	RoomID       domain.RoomID        `json:"roomId"`
	Self         domain.Participant   `json:"self"`
	HostID       domain.ConnectionID  `json:"hostId"`
	Participants []domain.Participant `json:"participants"`
	Producers    []domain.Producer    `json:"producers"`
}

type RequestReply struct {
	Reply
	RoomID    domain.RoomID        `json:"roomId"`
	Status    domain.RequestStatus `json:"status"`
	CreatedAt time.Time            `json:"createdAt"`
}

type DecisionReply struct {
	Reply
	RoomID      domain.RoomID        `json:"roomId"`
	RequesterID domain.UserID        `json:"requesterId"`
	Status      domain.RequestStatus `json:"status"`
	Stale       bool                 `json:"stale,omitempty"`
}

type WhoAmIReply struct {
	Reply
	ConnectionID domain.ConnectionID `json:"connectionId"`
	UserID       domain.UserID       `json:"userId,omitempty"`
	DisplayName  string              `json:"displayName,omitempty"`
	RoomID       domain.RoomID       `json:"roomId,omitempty"`
}

type LeftReply struct {
	Reply
	RoomID domain.RoomID `json:"roomId"`
}

func (o *Orchestrator) handleJoin(ctx context.Context, conn domain.ConnectionID, req request) (any, error) {
	var m struct {
		RoomID      domain.RoomID `json:"roomId"`
		UserID      domain.UserID `json:"userId"`
		DisplayName string        `json:"displayName"`
	}
	if err := req.decode(&m); err != nil {
		return nil, err
	}
	if m.RoomID == "" {
		return nil, domain.ErrInvalidMessage
	}
	user, err := o.identify(conn, m.UserID, m.DisplayName)
	if err != nil {
		return nil, err
	}
	cur, inRoom := o.Sessions.RoomOf(conn)
	if inRoom && cur == m.RoomID {
		return nil, domain.ErrAlreadyMember
	}

	identity := app.Identity(conn, user)
	creator, err := o.Access.Claim(ctx, m.RoomID, user.ID)
	if err != nil {
		return nil, err
	}
	if inRoom {
		// A refused switch keeps the caller where it is.
		if err := o.precheckJoin(ctx, m.RoomID, identity); err != nil {
			return nil, err
		}
		if _, err := o.Presence.Leave(ctx, cur, conn); err != nil {
			log.Debug().Err(err).Str("module", "orch").Str("conn_id", string(conn)).Str("room_id", string(cur)).Msg("leave previous room")
		}
	}

	var self domain.Participant
	err = o.Rooms.Do(m.RoomID, true, func(r *core.Room, out *core.Outbox) error {
		// A channel that closed while we were resolving the creator must
		// not be admitted.
		if !o.Sessions.Alive(conn) {
			return domain.ErrConnectionClosed
		}
		if creator != "" {
			r.SetCreator(creator)
		}
		res := o.Access.Evaluate(r, creator, identity)
		if !res.HasAccess {
			return domain.ErrAccessDenied
		}
		p, err := r.Admit(conn, user, res.IsCreator, o.now())
		if err != nil {
			return err
		}
		if !o.Sessions.UpdateRoom(conn, m.RoomID) {
			r.Remove(conn)
			r.PromoteEarliest()
			return domain.ErrConnectionClosed
		}
		o.Access.Consume(r, identity)
		self = p

		out.Send(conn, RoomParticipantsReply{
			Reply:        req.reply("room-participants"),
			RoomID:       m.RoomID,
			Self:         p,
			HostID:       r.HostID(),
			Participants: r.Others(conn),
			Producers:    r.ProducersExcept(conn),
		})
		out.Broadcast(r, conn, app.ParticipantEvent{Type: app.EventUserJoined, RoomID: m.RoomID, Participant: p})
		return nil
	})
	if err != nil {
		return nil, err
	}
	log.Info().Str("module", "orch").Str("conn_id", string(conn)).Str("room_id", string(m.RoomID)).
		Str("user_id", string(user.ID)).Str("role", string(self.Role)).Msg("joined")
	return nil, nil
}

// precheckJoin runs the access and capacity checks of a join without
// admitting anyone.
func (o *Orchestrator) precheckJoin(ctx context.Context, room domain.RoomID, user domain.UserID) error {
	res, err := o.Access.CheckAccess(ctx, room, user)
	if err != nil {
		return err
	}
	if !res.HasAccess {
		return domain.ErrAccessDenied
	}
	full := false
	o.Rooms.Peek(room, func(r *core.Room) { full = r.Full() })
	if full {
		return domain.ErrRoomFullOrClosed
	}
	return nil
}

func (o *Orchestrator) handleLeave(ctx context.Context, conn domain.ConnectionID, req request) (any, error) {
	room, err := o.roomOf(conn)
	if err != nil {
		return nil, err
	}
	if _, err := o.Presence.Leave(ctx, room, conn); err != nil {
		return nil, err
	}
	return LeftReply{Reply: req.reply("left"), RoomID: room}, nil
}

func (o *Orchestrator) handleRequestJoin(ctx context.Context, conn domain.ConnectionID, req request) (any, error) {
	var m struct {
		RoomID      domain.RoomID `json:"roomId"`
		UserID      domain.UserID `json:"userId"`
		DisplayName string        `json:"displayName"`
	}
	if err := req.decode(&m); err != nil {
		return nil, err
	}
	if m.RoomID == "" {
		return nil, domain.ErrInvalidMessage
	}
	user, err := o.identify(conn, m.UserID, m.DisplayName)
	if err != nil {
		return nil, err
	}
	identity := app.Identity(conn, user)
	if o.Limiter != nil && !o.Limiter.Allow(identity) {
		return nil, domain.ErrRateLimited
	}

	// Register before the request exists so a fast decision still finds us.
	o.Sessions.Wait(conn, m.RoomID)
	jr, err := o.Access.RequestJoin(ctx, m.RoomID, identity)
	if err != nil {
		return nil, err
	}
	return RequestReply{
		Reply:     req.reply("join-request-pending"),
		RoomID:    m.RoomID,
		Status:    jr.Status,
		CreatedAt: jr.CreatedAt,
	}, nil
}

// rawField decodes m[key] into v when present.
func rawField(m map[string]json.RawMessage, key string, v any) error {
	raw, ok := m[key]
	if !ok {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: %s: %v", domain.ErrInvalidMessage, key, err)
	}
	return nil
}

// decideHandler builds the handler for one decision message. field names the
// JSON key carrying the requester.
func (o *Orchestrator) decideHandler(d domain.Decision, field string) handlerFunc {
	return func(ctx context.Context, conn domain.ConnectionID, req request) (any, error) {
		var m map[string]json.RawMessage
		if err := req.decode(&m); err != nil {
			return nil, err
		}
		var room domain.RoomID
		var requester domain.UserID
		if err := rawField(m, "roomId", &room); err != nil {
			return nil, err
		}
		if err := rawField(m, field, &requester); err != nil {
			return nil, err
		}
		if room == "" {
			room, _ = o.Sessions.RoomOf(conn)
		}
		if room == "" || requester == "" {
			return nil, domain.ErrInvalidMessage
		}
		user, ok := o.Sessions.User(conn)
		if !ok {
			return nil, domain.ErrConnectionClosed
		}
		res, err := o.Access.Decide(ctx, room, requester, d, app.Identity(conn, user))
		if err != nil {
			return nil, err
		}
		return DecisionReply{
			Reply:       req.reply(""),
			RoomID:      room,
			RequesterID: requester,
			Status:      res.Request.Status,
			Stale:       res.Stale,
		}, nil
	}
}

func (o *Orchestrator) handleSetMode(ctx context.Context, conn domain.ConnectionID, req request) (any, error) {
	var m struct {
		RoomID domain.RoomID     `json:"roomId"`
		Mode   domain.AccessMode `json:"mode"`
	}
	if err := req.decode(&m); err != nil {
		return nil, err
	}
	if m.RoomID == "" {
		m.RoomID, _ = o.Sessions.RoomOf(conn)
	}
	user, ok := o.Sessions.User(conn)
	if !ok {
		return nil, domain.ErrConnectionClosed
	}
	if err := o.Access.SetMode(ctx, m.RoomID, m.Mode, app.Identity(conn, user)); err != nil {
		return nil, err
	}
	return struct {
		Reply
		RoomID domain.RoomID     `json:"roomId"`
		Mode   domain.AccessMode `json:"mode"`
	}{req.reply(""), m.RoomID, m.Mode}, nil
}

// handleRelay forwards offer, answer and ice-candidate verbatim to a peer in
// the same room, with from set to the sender.
func (o *Orchestrator) handleRelay(_ context.Context, conn domain.ConnectionID, req request) (any, error) {
	var m map[string]json.RawMessage
	if err := req.decode(&m); err != nil {
		return nil, err
	}
	var to domain.ConnectionID
	if err := rawField(m, "to", &to); err != nil {
		return nil, err
	}
	if to == "" || to == conn {
		return nil, domain.ErrInvalidMessage
	}
	room, err := o.roomOf(conn)
	if err != nil {
		return nil, err
	}
	if peerRoom, ok := o.Sessions.RoomOf(to); !ok || peerRoom != room {
		return nil, domain.ErrUnknownPeer
	}
	from, _ := json.Marshal(conn)
	m["from"] = from
	if err := o.Sessions.Deliver(to, m); err != nil {
		return nil, domain.ErrUnknownPeer
	}
	return nil, nil
}

func (o *Orchestrator) handlePing(_ context.Context, _ domain.ConnectionID, req request) (any, error) {
	return req.reply("pong"), nil
}

func (o *Orchestrator) handleWhoAmI(_ context.Context, conn domain.ConnectionID, req request) (any, error) {
	user, ok := o.Sessions.User(conn)
	if !ok {
		return nil, domain.ErrConnectionClosed
	}
	room, _ := o.Sessions.RoomOf(conn)
	return WhoAmIReply{
		Reply:        req.reply(""),
		ConnectionID: conn,
		UserID:       user.ID,
		DisplayName:  user.DisplayName,
		RoomID:       room,
	}, nil
}
