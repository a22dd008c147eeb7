package audit

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Olowonjaye/MediSecure-Chain/internal/access"
	"github.com/Olowonjaye/MediSecure-Chain/internal/ledger"
	"github.com/Olowonjaye/MediSecure-Chain/pkg/config"
	"github.com/Olowonjaye/MediSecure-Chain/pkg/logger"
	"github.com/Olowonjaye/MediSecure-Chain/pkg/monitoring"
	"github.com/Olowonjaye/MediSecure-Chain/pkg/store"
	"github.com/Olowonjaye/MediSecure-Chain/pkg/types"
)

// MirrorState is the mirror's connection lifecycle state.
type MirrorState string

const (
	StateDisabled     MirrorState = "DISABLED"
	StateConnecting   MirrorState = "CONNECTING"
	StateListening    MirrorState = "LISTENING"
	StateDisconnected MirrorState = "DISCONNECTED"
)

const eventBufferSize = 256

// Mirror subscribes to registry events and replays them into the local audit
// trail and grant-event tables. Every write is idempotent on the canonical
// event key, so replays and races with the synchronous command path collapse
// into a single row.
type Mirror struct {
	store   store.Store
	ledger  ledger.Client
	cache   *access.DecisionCache
	logger  *logger.Logger
	metrics *monitoring.MetricsCollector

	enabled      bool
	pollInterval time.Duration
	batchSize    int
	maxBackoff   time.Duration

	mu    sync.RWMutex
	state MirrorState
}

// NewMirror creates an audit mirror. cache may be nil.
func NewMirror(cfg *config.LedgerConfig, st store.Store, lc ledger.Client, cache *access.DecisionCache, log *logger.Logger, metrics *monitoring.MetricsCollector) *Mirror {
	pollInterval := time.Duration(cfg.PollInterval) * time.Second
	if pollInterval <= 0 {
		pollInterval = 5 * time.Second
	}
	maxBackoff := time.Duration(cfg.MaxBackoff) * time.Second
	if maxBackoff < pollInterval {
		maxBackoff = 60 * time.Second
	}
	batchSize := cfg.PollBatchSize
	if batchSize <= 0 {
		batchSize = 100
	}

	return &Mirror{
		store:        st,
		ledger:       lc,
		cache:        cache,
		logger:       log,
		metrics:      metrics,
		enabled:      cfg.EventsEnabled && cfg.Endpoint != "",
		pollInterval: pollInterval,
		batchSize:    batchSize,
		maxBackoff:   maxBackoff,
		state:        StateDisabled,
	}
}

// State returns the current lifecycle state.
func (m *Mirror) State() MirrorState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

func (m *Mirror) setState(s MirrorState) {
	m.mu.Lock()
	if m.state != s {
		m.logger.WithComponent("audit_mirror").WithField("state", s).Info("Mirror state changed")
	}
	m.state = s
	m.mu.Unlock()
}

// Run drives the mirror until the context is cancelled. When no endpoint is
// configured or events are disabled, the mirror stays DISABLED and returns
// immediately; everything else about the service works without it.
func (m *Mirror) Run(ctx context.Context) {
	log := m.logger.WithComponent("audit_mirror")

	if !m.enabled {
		m.setState(StateDisabled)
		log.Info("Mirror disabled, running without event replication")
		return
	}

	events := make(chan *types.LedgerEvent, eventBufferSize)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		m.applyLoop(ctx, events)
	}()

	m.pollLoop(ctx, events)
	close(events)
	wg.Wait()
}

// pollLoop pulls event batches from the bridge and feeds the apply loop.
// Transport errors back off with doubling delay up to the cap, then resume
// from the persisted cursor.
func (m *Mirror) pollLoop(ctx context.Context, events chan<- *types.LedgerEvent) {
	log := m.logger.WithComponent("audit_mirror")

	m.setState(StateConnecting)

	cursor, err := m.store.LedgerCursor(ctx)
	if err != nil {
		log.WithError(err).Error("Failed to load mirror cursor, starting from zero")
	}
	backoff := m.pollInterval

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		batch, err := m.ledger.FetchEvents(ctx, cursor+1, m.batchSize)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			m.setState(StateDisconnected)
			log.WithError(err).WithField("retry_in", backoff.String()).Warn("Event fetch failed")

			if !sleepCtx(ctx, backoff) {
				return
			}
			backoff *= 2
			if backoff > m.maxBackoff {
				backoff = m.maxBackoff
			}
			m.setState(StateConnecting)

			// The apply loop may have advanced the durable cursor past our
			// local copy before the outage.
			if persisted, err := m.store.LedgerCursor(ctx); err == nil && persisted > cursor {
				cursor = persisted
			}
			continue
		}

		m.setState(StateListening)
		backoff = m.pollInterval

		for _, event := range batch {
			select {
			case events <- event:
				cursor = event.LogIndex
			case <-ctx.Done():
				return
			}
		}

		if len(batch) < m.batchSize {
			if !sleepCtx(ctx, m.pollInterval) {
				return
			}
		}
	}
}

// applyLoop drains the event channel. A failed persist is logged and skipped;
// the cursor still advances so one poisoned event cannot wedge the stream.
func (m *Mirror) applyLoop(ctx context.Context, events <-chan *types.LedgerEvent) {
	log := m.logger.WithComponent("audit_mirror")

	for event := range events {
		status := m.applyEvent(ctx, event)
		if m.metrics != nil {
			m.metrics.RecordMirrorEvent(string(event.Kind), status)
		}

		if err := m.store.SetLedgerCursor(ctx, event.LogIndex); err != nil {
			log.WithError(err).WithField("log_index", event.LogIndex).Error("Failed to persist mirror cursor")
		}
	}
}

// auditTypeFor maps a ledger event kind to its trail entry type.
func auditTypeFor(kind types.EventKind) string {
	switch kind {
	case types.EventRegistered:
		return types.AuditRecordCreate
	case types.EventGranted:
		return types.AuditAccessGrant
	case types.EventRevoked:
		return types.AuditAccessRevoke
	case types.EventFetched:
		return types.AuditRecordFetch
	default:
		return string(kind)
	}
}

// applyEvent converts one ledger event into local rows. Returns a metric
// status of applied, duplicate or error.
func (m *Mirror) applyEvent(ctx context.Context, event *types.LedgerEvent) string {
	log := m.logger.WithComponent("audit_mirror")

	timestamp := event.Timestamp
	if timestamp.IsZero() {
		timestamp = time.Now().UTC()
	}

	entry := &types.AuditEntry{
		ID:        uuid.New().String(),
		Actor:     event.Actor,
		Timestamp: timestamp,
		Type:      auditTypeFor(event.Kind),
		Message:   "Ledger event " + string(event.Kind),
		Meta: map[string]interface{}{
			"resource_id": event.ResourceID,
			"grantee":     event.Grantee,
			"tx_ref":      event.TxRef,
			"log_index":   event.LogIndex,
		},
		EventKey: event.Key(),
	}

	written, err := m.store.AddAuditEntry(ctx, entry)
	if err != nil {
		log.WithError(err).WithFields(map[string]interface{}{
			"kind":   event.Kind,
			"tx_ref": event.TxRef,
		}).Error("Failed to mirror event into audit trail")
		return "error"
	}

	if event.Kind == types.EventGranted || event.Kind == types.EventRevoked {
		if err := m.applyGrantEvent(ctx, event, timestamp); err != nil {
			log.WithError(err).WithField("tx_ref", event.TxRef).Error("Failed to mirror grant transition")
			return "error"
		}
	}

	if !written {
		return "duplicate"
	}
	return "applied"
}

// applyGrantEvent upserts the authorization transition, using the same event
// key the command path derives.
func (m *Mirror) applyGrantEvent(ctx context.Context, event *types.LedgerEvent, timestamp time.Time) error {
	kind := types.GrantKindGrant
	if event.Kind == types.EventRevoked {
		kind = types.GrantKindRevoke
	}

	written, err := m.store.RecordGrantEvent(ctx, &types.AccessGrantEvent{
		ID:         uuid.New().String(),
		ResourceID: event.ResourceID,
		Grantee:    event.Grantee,
		Actor:      event.Actor,
		Kind:       kind,
		TxRef:      event.TxRef,
		EventKey:   event.Key(),
		CreatedAt:  timestamp,
	})
	if err != nil {
		return err
	}

	if written {
		m.cache.Invalidate(ctx, event.ResourceID, event.Grantee)
	}
	return nil
}

// sleepCtx sleeps for d, returning false if the context was cancelled first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
