package notifier

import "context"

// RecordPublisher publishes a stored record id, e.g. over Postgres NOTIFY.
type RecordPublisher interface {
	NotifyRecord(ctx context.Context, id string) error
}

// Store notifies through the recorder's own channel.
type Store struct {
	Publisher RecordPublisher
}

func (s Store) Notify(ctx context.Context, n Notification) error {
	return s.Publisher.NotifyRecord(ctx, n.RecordID)
}
