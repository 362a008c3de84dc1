// Package notify fans out-of-band notifications to external surfaces.
package notify

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/stagioo/Call-sub001/internal/core"
)

// LogNotifier writes notifications to the process log. It is the fallback
// when no broker is configured.
type LogNotifier struct{}

func (LogNotifier) Notify(_ context.Context, n core.Notification) error {
	log.Info().
		Str("module", "notify").
		Str("type", n.Type).
		Str("room_id", string(n.RoomID)).
		Str("user_id", string(n.Recipient)).
		Str("requester", string(n.Requester)).
		Msg("notification")
	return nil
}

// Multi sends to every notifier and returns the first error.
type Multi []core.Notifier

func (m Multi) Notify(ctx context.Context, n core.Notification) error {
	var first error
	for _, x := range m {
		if err := x.Notify(ctx, n); err != nil && first == nil {
			first = err
		}
	}
	return first
}
