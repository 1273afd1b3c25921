package repository

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/opencoder/opencoder/backend/go-services/internal/draft"
)

// MemoryRepo is a mutex-guarded in-memory repository used by unit tests and
// as a fallback when MongoDB is not configured. It implements the same
// status-conditioned update semantics as the Mongo repository.
type MemoryRepo struct {
	mu    sync.RWMutex
	store map[string]*draft.Draft
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{store: make(map[string]*draft.Draft)}
}

func (m *MemoryRepo) Create(ctx context.Context, d *draft.Draft) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	d.CreatedAt = now
	d.UpdatedAt = now
	cp := *d
	m.store[d.ID] = &cp
	return nil
}

// find returns the stored draft after the ownership check. Callers must hold
// the lock.
func (m *MemoryRepo) find(id, ownerID string) (*draft.Draft, error) {
	d, ok := m.store[id]
	if !ok {
		return nil, draft.ErrNotFound
	}
	if ownerID != "" && d.OwnerID != ownerID {
		return nil, draft.ErrForbidden
	}
	return d, nil
}

func (m *MemoryRepo) Get(ctx context.Context, id, ownerID string) (*draft.Draft, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, err := m.find(id, ownerID)
	if err != nil {
		return nil, err
	}
	cp := *d
	return &cp, nil
}

func (m *MemoryRepo) ListByAssignment(ctx context.Context, assignmentID, ownerID string) ([]*draft.Draft, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []*draft.Draft{}
	for _, d := range m.store {
		if d.AssignmentID == assignmentID && d.OwnerID == ownerID {
			cp := *d
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *MemoryRepo) UpdateContent(ctx context.Context, id, ownerID, content, feedback string) (*draft.Draft, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, err := m.find(id, ownerID)
	if err != nil {
		return nil, err
	}
	if !d.Editable() {
		return nil, draft.ErrInvalidState
	}
	d.Content = content
	d.Feedback = feedback
	d.UpdatedAt = time.Now().UTC()
	cp := *d
	return &cp, nil
}

func (m *MemoryRepo) CompleteGeneration(ctx context.Context, id, content string) (*draft.Draft, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.store[id]
	if !ok {
		return nil, draft.ErrNotFound
	}
	if d.Status != draft.StatusGenerating {
		return nil, draft.ErrInvalidState
	}
	d.Status = draft.StatusDraft
	d.Content = content
	d.FailureReason = ""
	d.UpdatedAt = time.Now().UTC()
	cp := *d
	return &cp, nil
}

func (m *MemoryRepo) FailGeneration(ctx context.Context, id, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.store[id]
	if !ok {
		return draft.ErrNotFound
	}
	if d.Status != draft.StatusGenerating {
		return draft.ErrInvalidState
	}
	d.Status = draft.StatusFailed
	d.FailureReason = reason
	d.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *MemoryRepo) ResetForRetry(ctx context.Context, id, ownerID string) (*draft.Draft, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, err := m.find(id, ownerID)
	if err != nil {
		return nil, err
	}
	if d.Status != draft.StatusFailed {
		return nil, draft.ErrInvalidState
	}
	d.Status = draft.StatusGenerating
	d.FailureReason = ""
	d.UpdatedAt = time.Now().UTC()
	cp := *d
	return &cp, nil
}

func (m *MemoryRepo) ClaimSubmit(ctx context.Context, id, ownerID string) (*draft.Draft, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, err := m.find(id, ownerID)
	if err != nil {
		return nil, err
	}
	if d.Status != draft.StatusDraft {
		return nil, draft.ErrInvalidState
	}
	d.Status = draft.StatusSubmitting
	d.UpdatedAt = time.Now().UTC()
	cp := *d
	return &cp, nil
}

func (m *MemoryRepo) AbortSubmit(ctx context.Context, id, ownerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, err := m.find(id, ownerID)
	if err != nil {
		return err
	}
	if d.Status != draft.StatusSubmitting {
		return draft.ErrInvalidState
	}
	d.Status = draft.StatusDraft
	d.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *MemoryRepo) MarkSubmitted(ctx context.Context, id, ownerID string, at time.Time) (*draft.Draft, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, err := m.find(id, ownerID)
	if err != nil {
		return nil, err
	}
	if d.Status != draft.StatusSubmitting {
		return nil, draft.ErrInvalidState
	}
	d.Status = draft.StatusSubmitted
	d.SubmissionDate = &at
	d.UpdatedAt = at
	cp := *d
	return &cp, nil
}

func (m *MemoryRepo) FailStale(ctx context.Context, cutoff time.Time, reason string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, d := range m.store {
		if d.Status == draft.StatusGenerating && d.UpdatedAt.Before(cutoff) {
			d.Status = draft.StatusFailed
			d.FailureReason = reason
			d.UpdatedAt = time.Now().UTC()
			n++
		}
	}
	return n, nil
}
