// Package node binds one rule registry, detector, protection engine and
// event store into a self-contained security node. Nodes are
// independent; there is no cross-node coordination.
package node

import (
	"context"
	"errors"
	"log/slog"

	"github.com/lcalzada-xor/edgewatch/internal/core/domain"
	"github.com/lcalzada-xor/edgewatch/internal/core/ports"
	"github.com/lcalzada-xor/edgewatch/internal/core/services/detection"
	"github.com/lcalzada-xor/edgewatch/internal/core/services/protection"
	"github.com/lcalzada-xor/edgewatch/internal/queue"
)

// SecurityNode is the composition root of the pipeline. Its lifecycle
// cascades to the children in a fixed order: the protection consumer
// starts before the detector produces, and stops after it.
type SecurityNode struct {
	detector  *detection.Detector
	engine    *protection.Engine
	store     ports.EventStore
	queue     *queue.ThreatQueue
	blocklist *protection.Blocklist
	logger    *slog.Logger
}

type Status struct {
	Detector      detection.State  `json:"detector"`
	Protection    protection.State `json:"protection"`
	Queue         queue.Metrics    `json:"queue"`
	BlockedCount  int              `json:"blocked_count"`
	Blocked       []string         `json:"blocked,omitempty"`
	WhitelistSize int              `json:"whitelist_size"`
}

func New(detector *detection.Detector, engine *protection.Engine, store ports.EventStore, q *queue.ThreatQueue, blocklist *protection.Blocklist, logger *slog.Logger) *SecurityNode {
	if logger == nil {
		logger = slog.Default()
	}
	return &SecurityNode{
		detector:  detector,
		engine:    engine,
		store:     store,
		queue:     q,
		blocklist: blocklist,
		logger:    logger,
	}
}

// Start brings the pipeline up: protection engine first, detector
// second. Safe to call when children are already partially started.
func (n *SecurityNode) Start(ctx context.Context) error {
	if err := n.engine.Start(ctx); err != nil {
		return err
	}
	if err := n.detector.Start(ctx); err != nil {
		// Roll the consumer back down so we never leave a half-running node.
		if stopErr := n.engine.Stop(); stopErr != nil {
			n.logger.Warn("engine rollback failed", "error", stopErr)
		}
		return err
	}
	n.logger.Info("security node started")
	return nil
}

// Stop tears the pipeline down: detector first so no new threats are
// produced, then the protection engine. Lifecycle errors from both
// children are joined rather than masking one another.
func (n *SecurityNode) Stop() error {
	detErr := n.detector.Stop()
	engErr := n.engine.Stop()
	if detErr != nil || engErr != nil {
		return errors.Join(detErr, engErr)
	}
	n.logger.Info("security node stopped")
	return nil
}

// RegisterThreatCallback subscribes an external collaborator to every
// published threat. Invocation is best-effort, per-observer isolated.
func (n *SecurityNode) RegisterThreatCallback(cb ports.ThreatObserver) {
	n.detector.RegisterObserver(cb)
}

// RegisterProtectionCallback subscribes to protection outcomes.
func (n *SecurityNode) RegisterProtectionCallback(cb ports.ProtectionObserver) {
	n.engine.RegisterObserver(cb)
}

// Whitelist exposes the engine's live whitelist.
func (n *SecurityNode) Whitelist() *domain.Whitelist {
	return n.engine.Whitelist()
}

// Store exposes the event store for query surfaces.
func (n *SecurityNode) Store() ports.EventStore {
	return n.store
}

// Status reports a point-in-time snapshot of the node.
func (n *SecurityNode) Status() Status {
	s := Status{
		Detector:      n.detector.CurrentState(),
		Protection:    n.engine.CurrentState(),
		Queue:         n.queue.Snapshot(),
		WhitelistSize: n.engine.Whitelist().Len(),
	}
	if n.blocklist != nil {
		s.Blocked = n.blocklist.Snapshot()
		s.BlockedCount = len(s.Blocked)
	}
	return s
}
