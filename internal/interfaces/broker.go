package interfaces

import "context"

// BrokerClient reports authoritative queue statistics from the message broker.
// Implementations must return the broker's live view, not a cached estimate.
type BrokerClient interface {
	// QueueStats returns (ready, unacknowledged) message counts for the
	// named queue. Counts are non-negative.
	QueueStats(ctx context.Context, queue string) (ready int, unacked int, err error)
}
