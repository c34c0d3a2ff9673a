package engine

import (
	"context"
	"fmt"
	"log/slog"
)

// Host feeds notifications to a Manager from any goroutine. Run applies them
// one at a time, in arrival order, on a single goroutine, so the Manager
// never sees concurrent calls.
type Host struct {
	manager *Manager
	queue   *notificationQueue
	logger  *slog.Logger

	// afterApply, if set, runs on the Run goroutine after each notification.
	afterApply func(Notification, *Manager)
}

// HostOption configures a Host.
type HostOption func(*Host)

// WithHostLogger sets the host logger. Default: the manager's logger.
func WithHostLogger(l *slog.Logger) HostOption {
	return func(h *Host) {
		if l != nil {
			h.logger = l
		}
	}
}

// WithAfterApply registers a callback that observes the manager after each
// applied notification.
func WithAfterApply(fn func(Notification, *Manager)) HostOption {
	return func(h *Host) {
		h.afterApply = fn
	}
}

// NewHost wraps m.
func NewHost(m *Manager, opts ...HostOption) *Host {
	h := &Host{
		manager: m,
		queue:   newNotificationQueue(),
		logger:  m.logger,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Notify queues n. Returns false after Stop.
func (h *Host) Notify(n Notification) bool {
	return h.queue.Enqueue(n)
}

// Pending returns the number of queued notifications.
func (h *Host) Pending() int {
	return h.queue.Len()
}

// Run applies queued notifications until ctx is cancelled or Stop is called
// and the queue drains. A malformed notification is logged and skipped.
func (h *Host) Run(ctx context.Context) error {
	h.logger.Info("host starting", "composition", h.manager.CompositionID())
	for {
		if n, ok := h.queue.TryDequeue(); ok {
			if err := h.apply(n); err != nil {
				h.logger.Error("notification rejected", "kind", n.Kind.String(), "error", err)
			}
			continue
		}

		select {
		case <-ctx.Done():
			h.logger.Info("host stopping: context cancelled")
			h.queue.Close()
			return ctx.Err()
		case <-h.queue.Wait():
			if h.queue.Drained() {
				h.logger.Info("host stopping: queue closed")
				return nil
			}
		}
	}
}

// Stop closes the queue. Run returns once what is queued has been applied.
func (h *Host) Stop() {
	h.queue.Close()
}

func (h *Host) apply(n Notification) error {
	m := h.manager
	switch n.Kind {
	case NotifyFrame:
		m.OnFrameIndexChanged(n.FrameIndex)
	case NotifyProperties:
		m.OnPropertyIDsChanged(n.PropertyIDs)
	case NotifyNodeState:
		if n.NodeID == "" {
			return fmt.Errorf("node_state notification missing node id")
		}
		m.OnNodeStateChange(n.NodeID)
	case NotifyExpression:
		if n.NodeID == "" {
			return fmt.Errorf("expression notification missing node id")
		}
		m.OnNodeExpressionChange(n.NodeID)
	case NotifyStructure:
		if n.Snapshot == nil {
			return fmt.Errorf("structure notification missing snapshot")
		}
		m.UpdateStructure(n.Snapshot)
	default:
		return fmt.Errorf("unknown notification kind: %d", n.Kind)
	}
	if h.afterApply != nil {
		h.afterApply(n, m)
	}
	return nil
}
