package node

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"frontier/internal/config"
	"frontier/internal/discovery"
	"frontier/internal/frontier"
	"frontier/internal/heartbeat"
	"frontier/internal/lease"
	"frontier/internal/logging"
	"frontier/internal/metrics"
	"frontier/internal/partition"
	"frontier/internal/progress"
)

// ErrNodeRunning is returned by Start when another process already runs
// the same node id against the same store.
var ErrNodeRunning = errors.New("node already running")

// Node is one participant in the shared frontier.
type Node struct {
	cfg        *config.Config
	store      *frontier.Store
	logger     *slog.Logger
	metrics    *metrics.Collectors
	instanceID string

	partitioner partition.Partitioner
	leases      *lease.Manager
	discovery   *discovery.Service
	monitor     *heartbeat.Monitor
	reporter    *progress.Reporter

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// Option customizes a Node.
type Option func(*Node)

// WithMetrics attaches Prometheus collectors to every component.
func WithMetrics(c *metrics.Collectors) Option {
	return func(n *Node) { n.metrics = c }
}

// WithInstanceID overrides the generated instance id.
func WithInstanceID(id string) Option {
	return func(n *Node) { n.instanceID = id }
}

// New constructs a node over store. The node takes ownership of store and
// closes it in Close.
func New(cfg *config.Config, store *frontier.Store, logger *slog.Logger, opts ...Option) (*Node, error) {
	if cfg == nil || store == nil {
		return nil, errors.New("node requires config and store")
	}
	n := &Node{cfg: cfg, store: store, partitioner: partition.New(cfg.Node.TotalNodes)}
	for _, opt := range opts {
		opt(n)
	}
	if n.instanceID == "" {
		n.instanceID = uuid.NewString()
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	n.logger = logging.NewComponentLogger(logger, "node").With(logging.NodeID(cfg.Node.ID))

	n.leases = lease.NewManager(store, lease.SettingsFromConfig(cfg),
		lease.WithLogger(logger), lease.WithMetrics(n.metrics))
	n.discovery = discovery.NewService(store, cfg.Node.ID, logger)
	n.monitor = heartbeat.NewMonitor(store, heartbeat.SettingsFromConfig(cfg, n.instanceID),
		heartbeat.WithLogger(logger), heartbeat.WithMetrics(n.metrics))
	n.reporter = progress.NewReporter(store, cfg.HeartbeatInterval(), n.metrics)

	n.lockPath = fmt.Sprintf("%s.node-%d.lock", store.Path(), cfg.Node.ID)
	n.lock = flock.New(n.lockPath)
	return n, nil
}

// ID returns the configured node id.
func (n *Node) ID() int {
	return n.cfg.Node.ID
}

// InstanceID identifies this process incarnation of the node.
func (n *Node) InstanceID() string {
	return n.instanceID
}

// Store exposes the underlying frontier store.
func (n *Node) Store() *frontier.Store {
	return n.store
}

// Start acquires the node lock, records a first heartbeat and launches the
// heartbeat loop.
func (n *Node) Start(ctx context.Context) error {
	if n.running.Load() {
		return errors.New("node already started")
	}

	ok, err := n.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire node lock: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: node %d (%s)", ErrNodeRunning, n.cfg.Node.ID, n.lockPath)
	}

	if _, err := n.monitor.Beat(ctx); err != nil {
		_ = n.lock.Unlock()
		return fmt.Errorf("initial heartbeat: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	n.cancel = cancel
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		if err := n.monitor.Run(runCtx); err != nil {
			n.logger.Error("heartbeat loop stopped", logging.Error(err))
		}
	}()

	n.running.Store(true)
	n.logger.Info("node started",
		logging.String("instance_id", n.instanceID),
		logging.Int("total_nodes", n.cfg.Node.TotalNodes),
		logging.String("store", n.store.Path()),
	)
	return nil
}

// Stop halts the heartbeat loop and releases the node lock. Claims held by
// this node are recovered by peers once its heartbeat goes stale.
func (n *Node) Stop() {
	if !n.running.Load() {
		return
	}
	if n.cancel != nil {
		n.cancel()
		n.cancel = nil
	}
	n.wg.Wait()
	if err := n.lock.Unlock(); err != nil {
		n.logger.Warn("failed to release node lock", logging.Error(err))
	}
	n.running.Store(false)
	n.logger.Info("node stopped")
}

// Close stops the node and closes its store.
func (n *Node) Close() error {
	n.Stop()
	return n.store.Close()
}

// TotalNodes returns the number of cooperating nodes.
func (n *Node) TotalNodes() int {
	return n.partitioner.Total()
}

// AssignedSources canonicalizes sources and returns the ones this node
// walks during discovery. Every node given the same list receives a
// disjoint share, and together the shares cover the whole list.
func (n *Node) AssignedSources(sources []string) []string {
	return n.partitioner.Sources(discovery.CanonicalSources(sources), n.cfg.Node.ID)
}

// PendingByNode counts pending items per owning node. Every node id in
// [1, TotalNodes] is present.
func (n *Node) PendingByNode(ctx context.Context) (map[int]int, error) {
	var counts map[int]int
	err := n.store.View(ctx, func(tx *frontier.Tx) error {
		items, err := tx.ItemsByStatus(ctx, frontier.StatusPending)
		if err != nil {
			return err
		}
		ids := make([]string, 0, len(items))
		for _, item := range items {
			ids = append(ids, item.Identifier)
		}
		counts = n.partitioner.Distribution(ids)
		return nil
	})
	return counts, err
}

// BeginSession begins or resumes this node's discovery session.
func (n *Node) BeginSession(ctx context.Context, sources []string) (discovery.Session, error) {
	return n.discovery.BeginSession(ctx, sources)
}

// Ingest records a discovered identifier in the frontier and the active
// session. It reports whether the identifier was new to the frontier.
func (n *Node) Ingest(ctx context.Context, identifier string, meta discovery.Metadata) (bool, error) {
	return n.discovery.Ingest(ctx, identifier, meta)
}

// Register records an identifier without an active session.
func (n *Node) Register(ctx context.Context, identifier string, meta discovery.Metadata) (bool, error) {
	return n.discovery.Register(ctx, identifier, meta)
}

// SourceCount reports how many identifiers the session already found under
// source.
func (n *Node) SourceCount(ctx context.Context, source string) (int, error) {
	return n.discovery.SourceCount(ctx, source)
}

// Items returns the active session list in discovery order.
func (n *Node) Items(ctx context.Context) ([]discovery.Entry, error) {
	return n.discovery.Items(ctx)
}

// TryClaim claims identifier for this node when the partitioner assigns it
// here.
func (n *Node) TryClaim(ctx context.Context, identifier string) (lease.ClaimResult, error) {
	canonical, err := discovery.Canonicalize(identifier)
	if err != nil {
		return 0, err
	}
	return n.leases.TryClaim(ctx, canonical)
}

// ReportOutcome records the worker result for an item.
func (n *Node) ReportOutcome(ctx context.Context, result lease.Result) error {
	canonical, err := discovery.Canonicalize(result.Identifier)
	if err != nil {
		return err
	}
	result.Identifier = canonical
	return n.leases.ReportOutcome(ctx, result)
}

// Requeue moves failed items back to pending. With no identifiers every
// failed item is requeued.
func (n *Node) Requeue(ctx context.Context, identifiers ...string) (int64, error) {
	canonical := make([]string, 0, len(identifiers))
	for _, id := range identifiers {
		c, err := discovery.Canonicalize(id)
		if err != nil {
			return 0, err
		}
		canonical = append(canonical, c)
	}
	return n.leases.Requeue(ctx, canonical...)
}

// Sweep runs a single heartbeat cycle outside the loop.
func (n *Node) Sweep(ctx context.Context) (heartbeat.Report, error) {
	return n.monitor.Beat(ctx)
}

// Progress summarizes the whole frontier.
func (n *Node) Progress(ctx context.Context) (progress.Summary, error) {
	return n.reporter.Report(ctx)
}

// State returns the persisted frontier in its logical layout.
func (n *Node) State(ctx context.Context) (frontier.State, error) {
	return n.store.Snapshot(ctx)
}
