package lease

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"frontier/internal/frontier"
	"frontier/internal/logging"
	"frontier/internal/metrics"
	"frontier/internal/partition"
)

// ClaimResult is the answer to a claim attempt.
type ClaimResult int

const (
	// Claimed means the caller now owns the item (or already did).
	Claimed ClaimResult = iota
	// AlreadyOwnedByOther means another live node holds an unexpired claim.
	AlreadyOwnedByOther
	// AlreadyDone means the item is completed or failed.
	AlreadyDone
	// NotAssigned means the partitioner routes the item to another node.
	NotAssigned
)

func (r ClaimResult) String() string {
	switch r {
	case Claimed:
		return "claimed"
	case AlreadyOwnedByOther:
		return "already_owned_by_other"
	case AlreadyDone:
		return "already_done"
	case NotAssigned:
		return "not_assigned"
	default:
		return "unknown"
	}
}

// Release reasons shared with the heartbeat monitor.
const (
	ReasonOwnerDead    = "owner_dead"
	ReasonLeaseExpired = "lease_expired"
)

// ErrEmptyIdentifier is returned for blank identifiers.
var ErrEmptyIdentifier = errors.New("identifier is empty")

// Manager applies the claim policy against the frontier store.
type Manager struct {
	store       *frontier.Store
	settings    Settings
	partitioner partition.Partitioner
	logger      *slog.Logger
	metrics     *metrics.Collectors
}

// Option customizes a Manager.
type Option func(*Manager)

// WithLogger sets the logger used for takeover warnings.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

// WithMetrics attaches Prometheus collectors.
func WithMetrics(c *metrics.Collectors) Option {
	return func(m *Manager) { m.metrics = c }
}

// NewManager constructs a Manager for settings.NodeID.
func NewManager(store *frontier.Store, settings Settings, opts ...Option) *Manager {
	m := &Manager{
		store:       store,
		settings:    settings,
		partitioner: partition.New(settings.TotalNodes),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = logging.NewComponentLogger(m.logger, "lease").With(logging.NodeID(settings.NodeID))
	return m
}

// Settings returns the manager's claim policy.
func (m *Manager) Settings() Settings {
	return m.settings
}

type takeover struct {
	previousOwner int
	reason        string
	age           time.Duration
}

// Claim attempts to make nodeID the owner of identifier. Unknown
// identifiers are registered as pending first.
func (m *Manager) Claim(ctx context.Context, identifier string, nodeID int) (ClaimResult, error) {
	if identifier == "" {
		return 0, ErrEmptyIdentifier
	}

	var (
		result ClaimResult
		taken  *takeover
	)
	err := m.store.Update(ctx, func(tx *frontier.Tx) error {
		result, taken = AlreadyOwnedByOther, nil
		now := tx.Now()

		item, ok, err := tx.Item(ctx, identifier)
		if err != nil {
			return err
		}
		if !ok {
			if _, err := tx.InsertItem(ctx, identifier, frontier.ItemMeta{}); err != nil {
				return err
			}
			item = frontier.Item{Identifier: identifier, Status: frontier.StatusPending}
		}

		switch item.Status {
		case frontier.StatusCompleted, frontier.StatusFailed:
			result = AlreadyDone
			return nil
		case frontier.StatusClaimed:
			if item.OwnerNode == nodeID {
				// Resuming our own claim keeps the original start time.
				result = Claimed
				return nil
			}
			age := item.ClaimAge(now)
			switch {
			case age > m.settings.LeaseTimeout:
				taken = &takeover{previousOwner: item.OwnerNode, reason: ReasonLeaseExpired, age: age}
			default:
				dead, err := m.ownerDead(ctx, tx, item.OwnerNode, now)
				if err != nil {
					return err
				}
				if !dead {
					return nil
				}
				taken = &takeover{previousOwner: item.OwnerNode, reason: ReasonOwnerDead, age: age}
			}
		}

		if err := tx.Claim(ctx, identifier, nodeID); err != nil {
			return err
		}
		result = Claimed
		return nil
	})
	if err != nil {
		return 0, err
	}

	m.metrics.ObserveClaim(result.String())
	if taken != nil {
		m.metrics.ObserveReclaim(taken.reason)
		logging.WarnWithContext(m.logger, "stale claim taken over", "stale_claim_recovered",
			logging.Identifier(identifier),
			logging.Int("previous_owner", taken.previousOwner),
			logging.String("reason", taken.reason),
			logging.Duration("claim_age", taken.age),
			logging.String(logging.FieldErrorHint, "previous owner stopped heartbeating or exceeded the lease timeout"),
			logging.String(logging.FieldImpact, "item will be fetched again by this node"),
		)
	}
	return result, nil
}

// TryClaim claims identifier for this node when the partitioner assigns it
// here, and reports NotAssigned otherwise.
func (m *Manager) TryClaim(ctx context.Context, identifier string) (ClaimResult, error) {
	if identifier == "" {
		return 0, ErrEmptyIdentifier
	}
	if !m.partitioner.Owns(identifier, m.settings.NodeID) {
		m.metrics.ObserveClaim(NotAssigned.String())
		return NotAssigned, nil
	}
	return m.Claim(ctx, identifier, m.settings.NodeID)
}

func (m *Manager) ownerDead(ctx context.Context, tx *frontier.Tx, owner int, now time.Time) (bool, error) {
	rec, ok, err := tx.Node(ctx, owner)
	if err != nil || !ok {
		return false, err
	}
	return rec.LastActive.Before(now.Add(-m.settings.DeadAfter())), nil
}
