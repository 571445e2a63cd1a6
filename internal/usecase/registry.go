package usecase

import (
	"crypto/rand"
	"log/slog"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"grist-assistant/internal/domain"
)

// ConfirmationRegistry stores pending confirmation requests until the caller
// approves or rejects them. Entries expire after a TTL; expiry is enforced
// lazily on access, so the registry stays correct even if nothing sweeps it.
type ConfirmationRegistry struct {
	mu      sync.Mutex
	pending map[string]*domain.ConfirmationRequest
	ttl     time.Duration
	logger  *slog.Logger
}

// NewConfirmationRegistry creates a registry with the given TTL. A zero or
// negative TTL makes every entry expire immediately.
func NewConfirmationRegistry(ttl time.Duration, logger *slog.Logger) *ConfirmationRegistry {
	return &ConfirmationRegistry{
		pending: make(map[string]*domain.ConfirmationRequest),
		ttl:     ttl,
		logger:  logger,
	}
}

// Create registers a new pending confirmation and returns it with its id
// and timestamps filled in.
func (r *ConfirmationRegistry) Create(toolName string, toolArgs map[string]any, opType domain.OperationType, preview *domain.OperationPreview) *domain.ConfirmationRequest {
	now := time.Now().UTC()
	req := &domain.ConfirmationRequest{
		ID:            "conf_" + ulid.MustNew(ulid.Timestamp(now), rand.Reader).String(),
		ToolName:      toolName,
		ToolArgs:      toolArgs,
		OperationType: opType,
		Preview:       *preview,
		CreatedAt:     now,
		ExpiresAt:     now.Add(r.ttl),
	}

	r.mu.Lock()
	r.pending[req.ID] = req
	r.mu.Unlock()

	r.logger.Info("confirmation created",
		"confirmation_id", req.ID,
		"tool", toolName,
		"operation", string(opType),
		"expires_at", req.ExpiresAt)
	return req
}

// Get returns a pending confirmation if it exists and has not expired.
// Expired entries are removed on access.
func (r *ConfirmationRegistry) Get(id string) (*domain.ConfirmationRequest, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	req, ok := r.pending[id]
	if !ok {
		return nil, false
	}
	if !time.Now().Before(req.ExpiresAt) {
		delete(r.pending, id)
		return nil, false
	}
	return req, true
}

// Approve removes and returns a pending confirmation. At most one caller can
// approve a given id; later calls see it as absent.
func (r *ConfirmationRegistry) Approve(id string) (*domain.ConfirmationRequest, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	req, ok := r.pending[id]
	if !ok {
		return nil, false
	}
	delete(r.pending, id)
	if !time.Now().Before(req.ExpiresAt) {
		return nil, false
	}
	return req, true
}

// Reject discards a pending confirmation. Returns false if it was absent
// or already expired.
func (r *ConfirmationRegistry) Reject(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	req, ok := r.pending[id]
	if !ok {
		return false
	}
	delete(r.pending, id)
	return time.Now().Before(req.ExpiresAt)
}

// CleanupExpired drops every expired entry and reports how many were removed.
func (r *ConfirmationRegistry) CleanupExpired() int {
	now := time.Now()

	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for id, req := range r.pending {
		if !now.Before(req.ExpiresAt) {
			delete(r.pending, id)
			removed++
		}
	}
	if removed > 0 {
		r.logger.Debug("expired confirmations removed", "count", removed)
	}
	return removed
}

// PendingCount returns the number of stored entries, expired ones included.
func (r *ConfirmationRegistry) PendingCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

// Clear drops all entries.
func (r *ConfirmationRegistry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending = make(map[string]*domain.ConfirmationRequest)
}
