package device

import (
	"context"
	"time"
)

// JournalEntry is one recorded counter mutation.
type JournalEntry struct {
	// ID is the auto-incremented primary key for the journal row.
	ID int64 `json:"id"`

	// DeviceID is the device instance that committed the mutation.
	DeviceID string `json:"device_id"`

	// Seq is the mutation's sequence number within the device instance.
	Seq uint64 `json:"seq"`

	// Kind is the mutation applied (increment, reset).
	Kind JobKind `json:"kind"`

	// Source is the context that requested it (irq, monitor).
	Source Source `json:"source"`

	// Value is the counter value after the mutation.
	Value int `json:"value"`

	// CreatedAt is when the mutation was committed (UTC).
	CreatedAt time.Time `json:"created_at"`
}

// Journal stores an audit trail of counter mutations.
//
// The journal is write-mostly: it is never read back to restore the counter.
// Implementations must be thread-safe and use UTC timestamps.
type Journal interface {
	// Record appends a mutation for a device.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeout
	//   - deviceID: Device instance identifier
	//   - m: Committed mutation
	//
	// Returns:
	//   - error: nil on success, otherwise the underlying persistence error
	Record(ctx context.Context, deviceID string, m Mutation) error

	// History returns recent mutations for a device.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeout
	//   - deviceID: Device instance identifier
	//   - limit: Maximum entries to return (implementation may clamp bounds)
	//
	// Returns:
	//   - []JournalEntry: Ordered newest-first entries (may be empty)
	//   - error: nil on success, otherwise the underlying query error
	History(ctx context.Context, deviceID string, limit int) ([]JournalEntry, error)
}

// DefaultJournalTimeout bounds a single journal write made by JournalObserver.
const DefaultJournalTimeout = 2 * time.Second

// JournalObserver records every mutation of one device into a Journal.
type JournalObserver struct {
	journal  Journal
	deviceID string
	logger   Logger
	timeout  time.Duration
}

// NewJournalObserver creates an observer writing to j on behalf of deviceID.
func NewJournalObserver(j Journal, deviceID string, logger Logger) *JournalObserver {
	return &JournalObserver{
		journal:  j,
		deviceID: deviceID,
		logger:   orNoop(logger),
		timeout:  DefaultJournalTimeout,
	}
}

// ObserveMutation implements Observer.
func (o *JournalObserver) ObserveMutation(m Mutation) {
	ctx, cancel := context.WithTimeout(context.Background(), o.timeout)
	defer cancel()

	if err := o.journal.Record(ctx, o.deviceID, m); err != nil {
		o.logger.Warn("recording counter mutation failed", "device_id", o.deviceID, "seq", m.Seq, "error", err)
	}
}
