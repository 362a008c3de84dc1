package core

import (
	"github.com/rs/zerolog/log"

	"github.com/stagioo/Call-sub001/internal/domain"
)

type outbound struct {
	to   domain.ConnectionID
	user domain.UserID
	room domain.RoomID
	msg  any
}

// Outbox collects the messages produced by one room step. It is flushed
// before the room lock is released, so fan-out order matches mutation order.
type Outbox struct {
	items []outbound
}

func (o *Outbox) Send(to domain.ConnectionID, msg any) {
	if to == "" {
		return
	}
	o.items = append(o.items, outbound{to: to, msg: msg})
}

// SendUser targets the channels of a user waiting on room (not yet admitted).
func (o *Outbox) SendUser(user domain.UserID, room domain.RoomID, msg any) {
	o.items = append(o.items, outbound{user: user, room: room, msg: msg})
}

// Broadcast sends msg to every participant of r except one.
func (o *Outbox) Broadcast(r *Room, except domain.ConnectionID, msg any) {
	for _, p := range r.Others(except) {
		o.Send(p.ConnectionID, msg)
	}
}

func (o *Outbox) Len() int { return len(o.items) }

// Flush delivers everything queued. Delivery failures are best effort and
// only logged.
func (o *Outbox) Flush(d Deliverer) {
	if d == nil {
		o.items = o.items[:0]
		return
	}
	for _, it := range o.items {
		if it.to == "" {
			d.DeliverToUser(it.user, it.room, it.msg)
			continue
		}
		if err := d.Deliver(it.to, it.msg); err != nil {
			log.Debug().Err(err).Str("module", "core.outbox").Str("conn_id", string(it.to)).Msg("deliver failed")
		}
	}
	o.items = o.items[:0]
}
