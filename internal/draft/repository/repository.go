package repository

import (
	"context"
	"time"

	"github.com/opencoder/opencoder/backend/go-services/internal/draft"
)

// Repository provides draft persistence. Every mutating operation is a single
// atomic read-modify-write conditioned on the draft's current status, so
// concurrent save/submit calls on the same draft cannot lose updates: the
// racer whose expected status no longer matches gets draft.ErrInvalidState.
type Repository interface {
	Create(ctx context.Context, d *draft.Draft) error
	Get(ctx context.Context, id, ownerID string) (*draft.Draft, error)
	ListByAssignment(ctx context.Context, assignmentID, ownerID string) ([]*draft.Draft, error)

	// UpdateContent replaces content and feedback while the draft is still
	// editable (draft.Editable). Only updatedAt changes besides the replaced
	// fields.
	UpdateContent(ctx context.Context, id, ownerID, content, feedback string) (*draft.Draft, error)

	// CompleteGeneration moves generating -> draft and stores the result.
	CompleteGeneration(ctx context.Context, id, content string) (*draft.Draft, error)
	// FailGeneration moves generating -> failed and records the reason.
	FailGeneration(ctx context.Context, id, reason string) error
	// ResetForRetry moves failed -> generating so generation can run again.
	ResetForRetry(ctx context.Context, id, ownerID string) (*draft.Draft, error)

	// ClaimSubmit moves draft -> submitting, reserving the draft for one
	// submit attempt before anything is uploaded. Exactly one of two racing
	// calls succeeds; the other gets draft.ErrInvalidState.
	ClaimSubmit(ctx context.Context, id, ownerID string) (*draft.Draft, error)
	// AbortSubmit rolls submitting back to draft after a failed upload.
	AbortSubmit(ctx context.Context, id, ownerID string) error
	// MarkSubmitted moves submitting -> submitted and sets submissionDate.
	MarkSubmitted(ctx context.Context, id, ownerID string, at time.Time) (*draft.Draft, error)

	// FailStale marks generating drafts untouched since the cutoff as failed.
	// Returns the number of drafts swept.
	FailStale(ctx context.Context, cutoff time.Time, reason string) (int64, error)
}
