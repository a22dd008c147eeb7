package records

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/Olowonjaye/MediSecure-Chain/internal/ledger"
	"github.com/Olowonjaye/MediSecure-Chain/pkg/logger"
	"github.com/Olowonjaye/MediSecure-Chain/pkg/monitoring"
	"github.com/Olowonjaye/MediSecure-Chain/pkg/store"
	"github.com/Olowonjaye/MediSecure-Chain/pkg/types"
)

// Decider answers whether a requester may read a resource.
type Decider interface {
	CanAccess(ctx context.Context, resource *types.Resource, requesterID string, requesterRole types.Role) (bool, error)
}

// Service handles record ingestion and retrieval.
type Service struct {
	store   store.Store
	ledger  ledger.Client
	decider Decider
	logger  *logger.Logger
	metrics *monitoring.MetricsCollector
}

// NewService creates a record service.
func NewService(st store.Store, lc ledger.Client, decider Decider, log *logger.Logger, metrics *monitoring.MetricsCollector) *Service {
	return &Service{
		store:   st,
		ledger:  lc,
		decider: decider,
		logger:  log,
		metrics: metrics,
	}
}

// cipherDigest is the hex digest of the encrypted payload, 0x-prefixed.
func cipherDigest(payload []byte) string {
	sum := sha256.Sum256(payload)
	return "0x" + hex.EncodeToString(sum[:])
}

// deriveResourceID derives a fresh identifier from the owner, the content
// address and a random nonce. Resubmitting the same payload yields a distinct
// resource because the nonce differs.
func deriveResourceID(ownerID, contentAddress string) (string, error) {
	nonce := make([]byte, 16)
	if _, err := rand.Read(nonce); err != nil {
		return "", types.NewInternalError(types.ErrCodeInternalError, "failed to generate nonce", err)
	}

	h := sha256.New()
	h.Write([]byte(ownerID))
	h.Write([]byte(contentAddress))
	h.Write(nonce)
	return "0x" + hex.EncodeToString(h.Sum(nil)), nil
}

// Ingest validates and persists a record, then anchors it on the ledger. A
// ledger failure after the local row is written is not fatal: the resource is
// returned flagged pending, with its transaction reference left empty.
func (s *Service) Ingest(ctx context.Context, req *types.IngestRequest, actorRole types.Role) (*types.IngestResult, error) {
	if req.OwnerID == "" || len(req.Payload) == 0 {
		return nil, types.NewValidationError(types.ErrCodeInvalidInput, "owner and payload are required",
			map[string]interface{}{
				"owner_present":   req.OwnerID != "",
				"payload_present": len(req.Payload) > 0,
			})
	}
	if !types.RoleIn(actorRole, types.RecordCreatorRoles) {
		return nil, types.NewAuthError(types.ErrCodeForbidden, "Role is not permitted to register records")
	}

	resourceID, err := deriveResourceID(req.OwnerID, req.ContentAddress)
	if err != nil {
		return nil, err
	}

	resource := &types.Resource{
		ResourceID:     resourceID,
		OwnerID:        req.OwnerID,
		ContentAddress: req.ContentAddress,
		CipherDigest:   cipherDigest(req.Payload),
		Metadata:       req.Metadata,
		CreatedAt:      time.Now().UTC(),
	}

	if err := s.store.CreateResource(ctx, resource); err != nil {
		return nil, err
	}

	metadataJSON := ""
	if len(req.Metadata) > 0 {
		if data, err := json.Marshal(req.Metadata); err == nil {
			metadataJSON = string(data)
		}
	}

	txRef, err := s.ledger.Register(ctx, resourceID, req.ContentAddress, resource.CipherDigest, metadataJSON)
	if err != nil {
		s.logger.WithError(err).WithField("resource_id", resourceID).
			Warn("Ledger registration failed, record kept pending")
		s.writeAudit(ctx, req.OwnerID, types.AuditRecordCreate, "Record registered (ledger pending)", resourceID, "")
		return &types.IngestResult{Resource: resource, Pending: true}, nil
	}

	if err := s.store.UpdateResourceLedgerRef(ctx, resourceID, txRef); err != nil {
		s.logger.WithError(err).WithField("resource_id", resourceID).
			Error("Failed to persist ledger confirmation")
	} else {
		resource.TxRef = txRef
	}

	s.writeAudit(ctx, req.OwnerID, types.AuditRecordCreate, "Record registered", resourceID,
		types.EventKey(types.EventRegistered, txRef))

	return &types.IngestResult{Resource: resource, TxRef: txRef}, nil
}

// Get retrieves a resource after consulting the access decision engine.
func (s *Service) Get(ctx context.Context, resourceID, requesterID string, requesterRole types.Role) (*types.Resource, error) {
	resource, err := s.store.FindResource(ctx, resourceID)
	if err != nil {
		return nil, err
	}
	if resource == nil {
		return nil, types.NewNotFoundError(types.ErrCodeNotFound, "Record not found")
	}

	allowed, err := s.decider.CanAccess(ctx, resource, requesterID, requesterRole)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, types.NewAuthError(types.ErrCodeForbidden, "Access to this record is denied")
	}

	s.writeAudit(ctx, requesterID, types.AuditRecordFetch, "Record fetched", resourceID, "")
	return resource, nil
}

// writeAudit appends a trail entry. Audit failures never affect the caller.
func (s *Service) writeAudit(ctx context.Context, actor, entryType, message, resourceID, eventKey string) {
	entry := &types.AuditEntry{
		ID:        uuid.New().String(),
		Actor:     actor,
		Timestamp: time.Now().UTC(),
		Type:      entryType,
		Message:   message,
		Meta:      map[string]interface{}{"resource_id": resourceID},
		EventKey:  eventKey,
	}

	_, err := s.store.AddAuditEntry(ctx, entry)
	if s.metrics != nil {
		s.metrics.RecordAuditWrite(entryType, err == nil)
	}
	if err != nil {
		s.logger.WithError(err).WithFields(map[string]interface{}{
			"type":        entryType,
			"resource_id": resourceID,
		}).Error("Audit write failed")
	}
}
