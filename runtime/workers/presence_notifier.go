package workers

import (
	"channel-chat/contract"
	"channel-chat/domain/event"
	"context"
	"log/slog"
)

// PresenceNotifier broadcasts the current presence snapshot every time the
// online set changes. Signals coalesce, so a burst of changes results in a
// single broadcast carrying the latest state.
type PresenceNotifier struct {
	log         *slog.Logger
	presence    contract.IPresence
	broadcaster contract.IBroadcaster
}

func NewPresenceNotifier(log *slog.Logger, presence contract.IPresence, broadcaster contract.IBroadcaster) *PresenceNotifier {
	return &PresenceNotifier{log: log, presence: presence, broadcaster: broadcaster}
}

func (w *PresenceNotifier) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.presence.Changes():
			snapshot := event.OnlineUsers{Users: w.presence.Snapshot()}
			delivered := w.broadcaster.Broadcast(ctx, snapshot)
			w.log.Debug("Presence broadcast", "online", snapshot.Count(), "delivered", delivered)
		}
	}
}
