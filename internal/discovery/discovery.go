package discovery

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"frontier/internal/frontier"
	"frontier/internal/logging"
)

// ErrNoSession is returned when an operation needs an active session and the
// node has none.
var ErrNoSession = errors.New("no active discovery session")

// Metadata is the descriptive data a discoverer attaches to an identifier.
type Metadata struct {
	Source     string
	Title      string
	Attributes map[string]string
}

func (m Metadata) itemMeta() frontier.ItemMeta {
	return frontier.ItemMeta{Source: m.Source, Title: m.Title, Attributes: m.Attributes}
}

// Session is a node's discovery session.
type Session struct {
	ID          string
	NodeID      int
	Fingerprint string
	Sources     []string
	StartedAt   time.Time
	// Resumed is true when the persisted session matched the requested sources.
	Resumed bool
	// Items is the discovered identifier list in discovery order.
	Items []string
}

// Entry is one discovered identifier joined with its current item state.
type Entry struct {
	Position   int               `json:"position"`
	Identifier string            `json:"identifier"`
	Source     string            `json:"source,omitempty"`
	Title      string            `json:"title,omitempty"`
	Status     frontier.Status   `json:"status"`
	OwnerNode  int               `json:"owner_node,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// Service ingests discoveries for one node.
type Service struct {
	store  *frontier.Store
	nodeID int
	logger *slog.Logger
}

// NewService builds a Service for nodeID.
func NewService(store *frontier.Store, nodeID int, logger *slog.Logger) *Service {
	return &Service{
		store:  store,
		nodeID: nodeID,
		logger: logging.NewComponentLogger(logger, "discovery").With(logging.NodeID(nodeID)),
	}
}

// BeginSession resumes this node's session when its fingerprint matches
// sources, and otherwise replaces it with an empty one.
func (s *Service) BeginSession(ctx context.Context, sources []string) (Session, error) {
	canonical := CanonicalSources(sources)
	fingerprint := Fingerprint(canonical)

	var session Session
	err := s.store.Update(ctx, func(tx *frontier.Tx) error {
		existing, ok, err := tx.Session(ctx, s.nodeID)
		if err != nil {
			return err
		}
		if ok && existing.Fingerprint == fingerprint {
			entries, err := tx.SessionEntries(ctx, s.nodeID)
			if err != nil {
				return err
			}
			session = fromRecord(existing)
			session.Resumed = true
			session.Items = make([]string, 0, len(entries))
			for _, entry := range entries {
				session.Items = append(session.Items, entry.Item.Identifier)
			}
			return nil
		}

		rec := frontier.SessionRecord{
			NodeID:      s.nodeID,
			SessionID:   uuid.NewString(),
			Fingerprint: fingerprint,
			Sources:     canonical,
		}
		if err := tx.ReplaceSession(ctx, rec); err != nil {
			return err
		}
		rec.StartedAt = tx.Now()
		session = fromRecord(rec)
		session.Items = []string{}
		return nil
	})
	if err != nil {
		return Session{}, err
	}

	if session.Resumed {
		s.logger.Info("discovery session resumed",
			logging.String("session_id", session.ID),
			logging.Int("discovered", len(session.Items)),
		)
	} else {
		s.logger.Info("discovery session started",
			logging.String("session_id", session.ID),
			logging.String("fingerprint", session.Fingerprint),
			logging.Int("sources", len(session.Sources)),
		)
	}
	return session, nil
}

// Current returns the node's persisted session header without items.
func (s *Service) Current(ctx context.Context) (Session, bool, error) {
	var (
		session Session
		found   bool
	)
	err := s.store.View(ctx, func(tx *frontier.Tx) error {
		rec, ok, err := tx.Session(ctx, s.nodeID)
		if err != nil || !ok {
			found = false
			return err
		}
		session, found = fromRecord(rec), true
		return nil
	})
	return session, found, err
}

// Ingest registers identifier in the frontier and appends it to the active
// session list. isNew reports whether the frontier had never seen it.
func (s *Service) Ingest(ctx context.Context, identifier string, meta Metadata) (bool, error) {
	canonical, err := Canonicalize(identifier)
	if err != nil {
		return false, err
	}

	var isNew bool
	err = s.store.Update(ctx, func(tx *frontier.Tx) error {
		if _, ok, err := tx.Session(ctx, s.nodeID); err != nil {
			return err
		} else if !ok {
			return ErrNoSession
		}
		inserted, err := tx.InsertItem(ctx, canonical, meta.itemMeta())
		if err != nil {
			return err
		}
		isNew = inserted
		_, err = tx.AppendSessionItem(ctx, s.nodeID, canonical, meta.Source)
		return err
	})
	if err != nil {
		return false, err
	}
	if isNew {
		s.logger.Debug("item discovered", logging.Identifier(canonical), logging.String("source", meta.Source))
	}
	return isNew, nil
}

// Register adds identifier to the frontier without touching any session.
func (s *Service) Register(ctx context.Context, identifier string, meta Metadata) (bool, error) {
	canonical, err := Canonicalize(identifier)
	if err != nil {
		return false, err
	}
	var isNew bool
	err = s.store.Update(ctx, func(tx *frontier.Tx) error {
		var err error
		isNew, err = tx.InsertItem(ctx, canonical, meta.itemMeta())
		return err
	})
	return isNew, err
}

// SourceCount returns how many identifiers the active session has already
// discovered from source.
func (s *Service) SourceCount(ctx context.Context, source string) (int, error) {
	var n int
	err := s.store.View(ctx, func(tx *frontier.Tx) error {
		var err error
		n, err = tx.SessionSourceCount(ctx, s.nodeID, source)
		return err
	})
	return n, err
}

// Items returns the active session list in discovery order.
func (s *Service) Items(ctx context.Context) ([]Entry, error) {
	var entries []Entry
	err := s.store.View(ctx, func(tx *frontier.Tx) error {
		if _, ok, err := tx.Session(ctx, s.nodeID); err != nil {
			return err
		} else if !ok {
			return ErrNoSession
		}
		rows, err := tx.SessionEntries(ctx, s.nodeID)
		if err != nil {
			return err
		}
		entries = make([]Entry, 0, len(rows))
		for _, row := range rows {
			entries = append(entries, Entry{
				Position:   row.Position,
				Identifier: row.Item.Identifier,
				Source:     row.Source,
				Title:      row.Item.Meta.Title,
				Status:     row.Item.Status,
				OwnerNode:  row.Item.OwnerNode,
				Attributes: row.Item.Meta.Attributes,
			})
		}
		return nil
	})
	return entries, err
}

func fromRecord(rec frontier.SessionRecord) Session {
	return Session{
		ID:          rec.SessionID,
		NodeID:      rec.NodeID,
		Fingerprint: rec.Fingerprint,
		Sources:     rec.Sources,
		StartedAt:   rec.StartedAt,
	}
}
