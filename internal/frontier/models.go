package frontier

import "time"

// Status is the lifecycle position of a work item.
type Status string

const (
	StatusPending   Status = "pending"
	StatusClaimed   Status = "claimed"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Statuses lists every item status in lifecycle order.
var Statuses = []Status{StatusPending, StatusClaimed, StatusCompleted, StatusFailed}

// Terminal reports whether no further transition is expected.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// ItemMeta is the descriptive data attached to an item at discovery.
type ItemMeta struct {
	Source     string            `json:"source,omitempty"`
	Title      string            `json:"title,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// Item is one persisted work item.
type Item struct {
	Identifier    string
	Seq           int64
	Meta          ItemMeta
	Status        Status
	OwnerNode     int
	ClaimStart    time.Time
	FailureReason string
	OutputPath    string
	OutputBytes   int64
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// ClaimAge returns how long the current claim has been held at now.
func (i Item) ClaimAge(now time.Time) time.Duration {
	if i.Status != StatusClaimed {
		return 0
	}
	return now.Sub(i.ClaimStart)
}

// Completion carries the outcome details recorded when an item finishes.
type Completion struct {
	Status      Status
	Reason      string
	OutputPath  string
	OutputBytes int64
}

// NodeRecord is the liveness row for one node id.
type NodeRecord struct {
	NodeID     int
	LastActive time.Time
	InstanceID string
}

// SessionRecord is a node's persisted discovery session header.
type SessionRecord struct {
	NodeID      int
	SessionID   string
	Fingerprint string
	Sources     []string
	StartedAt   time.Time
}

// SessionEntry is one identifier in a session's discovery-ordered list.
type SessionEntry struct {
	Position int
	Source   string
	Item     Item
}

// Counts aggregates item statuses for progress reporting.
type Counts struct {
	Pending   int
	Claimed   int
	Completed int
	Failed    int
}

// Total is the number of known items.
func (c Counts) Total() int {
	return c.Pending + c.Claimed + c.Completed + c.Failed
}
