package orch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/stagioo/Call-sub001/internal/app"
	"github.com/stagioo/Call-sub001/internal/core"
	"github.com/stagioo/Call-sub001/internal/domain"
)

// Limiter throttles join requests per user.
type Limiter interface {
	Allow(uid domain.UserID) bool
}

// Orchestrator is the signaling dispatcher: it decodes inbound frames,
// runs them against the app services and answers on the same channel.
type Orchestrator struct {
	Rooms    *app.Rooms
	Sessions *app.Sessions
	Access   *app.Access
	Media    *app.Media
	Presence *app.Presence
	Engine   core.MediaEngine
	Limiter  Limiter

	// TrustClientIDs accepts a userId sent by the client when the channel
	// has no upstream identity.
	TrustClientIDs bool

	handlers map[string]handlerFunc
	now      func() time.Time
}

type handlerFunc func(ctx context.Context, conn domain.ConnectionID, req request) (any, error)

// Reply heads every message sent back to the originating channel.
type Reply struct {
	Type  string `json:"type"`
	ReqID string `json:"reqId,omitempty"`
}

type ErrorReply struct {
	Reply
	Error string `json:"error"`
	Code  string `json:"code"`
}

type request struct {
	Type  string `json:"type"`
	ReqID string `json:"reqId,omitempty"`

	raw []byte
}

func (r request) decode(v any) error {
	if err := json.Unmarshal(r.raw, v); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidMessage, err)
	}
	return nil
}

func (r request) reply(typ string) Reply {
	if typ == "" {
		typ = r.Type
	}
	return Reply{Type: typ, ReqID: r.ReqID}
}

func New(o Orchestrator) *Orchestrator {
	out := &o
	out.now = time.Now
	out.handlers = map[string]handlerFunc{
		"join":            out.handleJoin,
		"leave":           out.handleLeave,
		"request-join":    out.handleRequestJoin,
		"approve-join":    out.decideHandler(domain.DecisionApprove, "requesterId"),
		"reject-join":     out.decideHandler(domain.DecisionReject, "requesterId"),
		"acceptJoin":      out.decideHandler(domain.DecisionApprove, "peerId"),
		"rejectJoin":      out.decideHandler(domain.DecisionReject, "peerId"),
		"set-access-mode": out.handleSetMode,
		"offer":           out.handleRelay,
		"answer":          out.handleRelay,
		"ice-candidate":   out.handleRelay,
		"ping":            out.handlePing,
		"whoami":          out.handleWhoAmI,

		"createWebRtcTransport":  out.handleCreateTransport,
		"connectWebRtcTransport": out.handleConnectTransport,
		"transportCandidate":     out.handleTransportCandidate,
		"newProducer":            out.handleNewProducer,
		"producerClosed":         out.handleProducerClosed,
		"producerMuted":          out.handleProducerMuted,
		"getProducers":           out.handleGetProducers,
		"consume":                out.handleConsume,
		"consumerAnswer":         out.handleConsumerAnswer,
	}
	if out.Engine != nil {
		out.Engine.SetObserver(out)
	}
	return out
}

// Handle processes one inbound frame from conn. It never closes the channel.
func (o *Orchestrator) Handle(ctx context.Context, conn domain.ConnectionID, data []byte) {
	var req request
	if err := json.Unmarshal(data, &req); err != nil {
		log.Debug().Err(err).Str("module", "orch").Str("conn_id", string(conn)).Msg("bad json")
		o.send(conn, struct {
			Error string `json:"error"`
		}{Error: "Invalid JSON"})
		return
	}
	req.raw = data

	h, ok := o.handlers[req.Type]
	if !ok {
		log.Debug().Str("module", "orch").Str("conn_id", string(conn)).Str("type", req.Type).Msg("unknown signal")
		o.send(conn, req.reply("ack"))
		return
	}
	resp, err := h(ctx, conn, req)
	if err != nil {
		o.sendError(conn, req, err)
		return
	}
	if resp != nil {
		o.send(conn, resp)
	}
}

func (o *Orchestrator) sendError(conn domain.ConnectionID, req request, err error) {
	code := domain.Code(err)
	ev := log.Debug()
	if code == "Internal" || code == "MediaEngineFailure" || code == "StoreFailure" {
		ev = log.Warn()
	}
	ev.Err(err).Str("module", "orch").Str("conn_id", string(conn)).Str("type", req.Type).Str("code", code).Msg("request failed")
	o.send(conn, ErrorReply{Reply: req.reply("error"), Error: err.Error(), Code: code})
}

func (o *Orchestrator) send(conn domain.ConnectionID, v any) {
	if err := o.Sessions.Deliver(conn, v); err != nil && !errors.Is(err, domain.ErrConnectionClosed) {
		log.Debug().Err(err).Str("module", "orch").Str("conn_id", string(conn)).Msg("send")
	}
}

// identify resolves the user behind conn, folding in what the client sent.
func (o *Orchestrator) identify(conn domain.ConnectionID, clientID domain.UserID, displayName string) (domain.User, error) {
	user, ok := o.Sessions.User(conn)
	if !ok {
		return domain.User{}, domain.ErrConnectionClosed
	}
	if clientID != "" && clientID != user.ID {
		if user.ID != "" || !o.TrustClientIDs {
			return domain.User{}, domain.ErrNotAuthorized
		}
		u, err := domain.NewUser(string(clientID), user.DisplayName)
		if err != nil {
			return domain.User{}, fmt.Errorf("%w: %v", domain.ErrInvalidMessage, err)
		}
		user.ID = u.ID
	}
	if displayName != "" {
		if err := user.SetDisplayName(displayName); err != nil {
			return domain.User{}, fmt.Errorf("%w: %v", domain.ErrInvalidMessage, err)
		}
	}
	o.Sessions.UpdateUser(conn, user)
	return user, nil
}

// roomOf returns the room conn currently sits in.
func (o *Orchestrator) roomOf(conn domain.ConnectionID) (domain.RoomID, error) {
	room, ok := o.Sessions.RoomOf(conn)
	if !ok {
		return "", domain.ErrNotMember
	}
	return room, nil
}
