package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/opencoder/opencoder/backend/go-services/internal/classroom"
	"github.com/opencoder/opencoder/backend/go-services/internal/draft"
	"github.com/opencoder/opencoder/backend/go-services/internal/draft/notify"
	"github.com/opencoder/opencoder/backend/go-services/internal/draft/repository"
	"github.com/opencoder/opencoder/backend/go-services/internal/generation"
	"github.com/opencoder/opencoder/backend/go-services/internal/render"
	"github.com/opencoder/opencoder/backend/go-services/internal/storage"
	"github.com/opencoder/opencoder/backend/go-services/internal/submission"
	"github.com/opencoder/opencoder/backend/go-services/pkg/logger"
	"github.com/opencoder/opencoder/backend/go-services/pkg/metrics"
)

// Actor identifies the authenticated caller. The Google access token comes
// from the caller's session and is passed explicitly into every operation
// that reaches the classroom provider; the service keeps no ambient
// credential state.
type Actor struct {
	UserID      string
	Name        string
	GoogleToken string
}

// ClassroomGateway is the slice of the classroom service the lifecycle needs.
type ClassroomGateway interface {
	AssignmentContext(ctx context.Context, assignmentID, ownerID string) (*classroom.AssignmentContext, error)
	Submit(ctx context.Context, token string, ac *classroom.AssignmentContext, filename string, file []byte) (*classroom.Submission, error)
}

// Archive stores copies of submitted PDFs. Satisfied by storage.MinIOStorage.
type Archive interface {
	UploadFile(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error
	GetPresignedURL(ctx context.Context, key string, expires time.Duration) (string, error)
}

// SubmitResult is returned by Submit after a confirmed upload.
type SubmitResult struct {
	Draft        *draft.Draft
	SubmissionID string
	DriveFileID  string
}

// Export is the rendered document returned by the export operation.
type Export struct {
	Data        []byte
	Filename    string
	ContentType string
}

// Service is the draft lifecycle controller. It enforces the legal status
// transitions, delegates atomicity to the repository's status-conditioned
// updates, and coordinates the generation, render and classroom providers.
type Service struct {
	repo      repository.Repository
	classroom ClassroomGateway
	gen       generation.Provider
	renderer  render.Renderer
	notifier  notify.Notifier
	receipts  *submission.Store
	archive   Archive

	genTimeout    time.Duration
	sweepInterval time.Duration
}

// Option configures optional collaborators.
type Option func(*Service)

func WithNotifier(n notify.Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

func WithReceipts(st *submission.Store) Option {
	return func(s *Service) { s.receipts = st }
}

func WithArchive(a Archive) Option {
	return func(s *Service) { s.archive = a }
}

func WithGenerationTimeout(d time.Duration) Option {
	return func(s *Service) { s.genTimeout = d }
}

func WithSweepInterval(d time.Duration) Option {
	return func(s *Service) { s.sweepInterval = d }
}

func NewService(repo repository.Repository, cg ClassroomGateway, gen generation.Provider, r render.Renderer, opts ...Option) *Service {
	s := &Service{
		repo:          repo,
		classroom:     cg,
		gen:           gen,
		renderer:      r,
		notifier:      notify.NopNotifier{},
		genTimeout:    2 * time.Minute,
		sweepInterval: time.Minute,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Service) publish(ctx context.Context, d *draft.Draft, reason string) {
	s.notifier.Publish(ctx, notify.Event{
		DraftID:      d.ID,
		AssignmentID: d.AssignmentID,
		OwnerID:      d.OwnerID,
		Status:       d.Status,
		Reason:       reason,
		At:           d.UpdatedAt,
	})
}

// StartGeneration creates a draft in the generating state, returns it
// immediately, and runs the provider call in the background so the caller can
// poll (or subscribe) for completion.
func (s *Service) StartGeneration(ctx context.Context, actor Actor, assignmentID string, params draft.GenerationParams) (*draft.Draft, error) {
	ac, err := s.classroom.AssignmentContext(ctx, assignmentID, actor.UserID)
	if err != nil {
		if errors.Is(err, classroom.ErrNotFound) {
			return nil, fmt.Errorf("assignment %s: %w", assignmentID, draft.ErrNotFound)
		}
		return nil, err
	}

	d := &draft.Draft{
		AssignmentID: assignmentID,
		OwnerID:      actor.UserID,
		Status:       draft.StatusGenerating,
		Params:       params,
	}
	if err := s.repo.Create(ctx, d); err != nil {
		return nil, fmt.Errorf("create draft: %w", err)
	}
	logger.Infof("draft %s: generation started (assignment=%s owner=%s)", d.ID, assignmentID, actor.UserID)
	s.publish(ctx, d, "")

	go s.runGeneration(d.ID, d.AssignmentID, d.OwnerID, ac, params)
	return d, nil
}

// Retry moves a failed draft back to generating and runs generation again
// with the parameters the draft was originally requested with.
func (s *Service) Retry(ctx context.Context, actor Actor, draftID string) (*draft.Draft, error) {
	d, err := s.repo.ResetForRetry(ctx, draftID, actor.UserID)
	if err != nil {
		logger.Warnf("draft %s: retry rejected: %v", draftID, err)
		return nil, err
	}
	ac, err := s.classroom.AssignmentContext(ctx, d.AssignmentID, actor.UserID)
	if err != nil {
		// put the draft back into failed rather than leaving it stuck
		_ = s.repo.FailGeneration(ctx, d.ID, "assignment context unavailable: "+err.Error())
		return nil, fmt.Errorf("assignment context: %w", draft.ErrGenerationFailed)
	}
	s.publish(ctx, d, "")
	go s.runGeneration(d.ID, d.AssignmentID, d.OwnerID, ac, d.Params)
	return d, nil
}

// runGeneration is the background half of StartGeneration/Retry. It is
// detached from the request context and bounded by the generation timeout, so
// a hung provider can never leave the draft silently stuck in generating.
func (s *Service) runGeneration(draftID, assignmentID, ownerID string, ac *classroom.AssignmentContext, params draft.GenerationParams) {
	ctx, cancel := context.WithTimeout(context.Background(), s.genTimeout)
	defer cancel()

	content, err := s.gen.Generate(ctx, generation.Request{
		AssignmentTitle:       ac.Title,
		AssignmentDescription: ac.Description,
		CourseName:            ac.CourseName,
		Materials:             ac.Materials,
		Tone:                  params.Tone,
		Length:                params.Length,
		Rigor:                 params.Rigor,
	})
	if err != nil {
		logger.Errorf("draft %s: generation failed: %v", draftID, err)
		metrics.DraftGenerations.WithLabelValues("failure").Inc()
		if ferr := s.repo.FailGeneration(context.Background(), draftID, err.Error()); ferr != nil {
			// the sweeper may have raced us; either way the draft is no
			// longer stuck in generating
			logger.Warnf("draft %s: could not record generation failure: %v", draftID, ferr)
			return
		}
		s.notifier.Publish(context.Background(), notify.Event{
			DraftID: draftID, AssignmentID: assignmentID, OwnerID: ownerID,
			Status: draft.StatusFailed, Reason: err.Error(), At: time.Now().UTC(),
		})
		return
	}

	updated, err := s.repo.CompleteGeneration(context.Background(), draftID, content)
	if err != nil {
		logger.Warnf("draft %s: could not store generation result: %v", draftID, err)
		return
	}
	logger.Infof("draft %s: generation complete (%d bytes)", draftID, len(content))
	metrics.DraftGenerations.WithLabelValues("success").Inc()
	s.publish(context.Background(), updated, "")
}

func (s *Service) Get(ctx context.Context, actor Actor, draftID string) (*draft.Draft, error) {
	return s.repo.Get(ctx, draftID, actor.UserID)
}

func (s *Service) ListByAssignment(ctx context.Context, actor Actor, assignmentID string) ([]*draft.Draft, error) {
	return s.repo.ListByAssignment(ctx, assignmentID, actor.UserID)
}

// Save replaces content and feedback. Rejected with ErrInvalidState once the
// draft is submitted. Saving identical content is allowed and only bumps
// updatedAt.
func (s *Service) Save(ctx context.Context, actor Actor, draftID, content, feedback string) (*draft.Draft, error) {
	d, err := s.repo.UpdateContent(ctx, draftID, actor.UserID, content, feedback)
	if err != nil {
		logger.Warnf("draft %s: save rejected: %v", draftID, err)
		return nil, err
	}
	return d, nil
}

// ExportPDF renders the draft's current content to a PDF without mutating the
// draft. Concurrent edits race benignly: the render uses the content snapshot
// read at call time.
func (s *Service) ExportPDF(ctx context.Context, actor Actor, draftID string) (*Export, error) {
	d, err := s.repo.Get(ctx, draftID, actor.UserID)
	if err != nil {
		return nil, err
	}
	ac, err := s.classroom.AssignmentContext(ctx, d.AssignmentID, actor.UserID)
	if err != nil {
		if errors.Is(err, classroom.ErrNotFound) {
			return nil, fmt.Errorf("assignment %s: %w", d.AssignmentID, draft.ErrNotFound)
		}
		return nil, err
	}
	data, contentType, err := s.renderer.Render(ctx, d.Content, render.Metadata{
		Title:  ac.Title,
		Author: actor.Name,
		Course: ac.CourseName,
		Date:   time.Now().UTC(),
	})
	if err != nil {
		logger.Errorf("draft %s: export render failed: %v", draftID, err)
		return nil, fmt.Errorf("%w: %v", draft.ErrRenderFailed, err)
	}
	metrics.DraftExports.Inc()
	return &Export{Data: data, Filename: exportFilename(ac.Title, ""), ContentType: contentType}, nil
}

// Submit claims the draft for submission, renders it, uploads it to the
// classroom provider and, only after the upload is confirmed, marks the draft
// submitted. The claim moves the draft into submitting before anything leaves
// the process, so of two racing submits exactly one reaches the provider; the
// other observes ErrInvalidState without uploading. A failed render or upload
// releases the claim and the draft is back in draft for the caller to retry.
func (s *Service) Submit(ctx context.Context, actor Actor, draftID string) (*SubmitResult, error) {
	d, err := s.repo.ClaimSubmit(ctx, draftID, actor.UserID)
	if err != nil {
		logger.Warnf("draft %s: submit rejected: %v", draftID, err)
		return nil, err
	}
	ac, err := s.classroom.AssignmentContext(ctx, d.AssignmentID, actor.UserID)
	if err != nil {
		s.releaseClaim(draftID, actor.UserID)
		if errors.Is(err, classroom.ErrNotFound) {
			return nil, fmt.Errorf("assignment %s: %w", d.AssignmentID, draft.ErrNotFound)
		}
		return nil, err
	}

	data, _, err := s.renderer.Render(ctx, d.Content, render.Metadata{
		Title:  ac.Title,
		Author: actor.Name,
		Course: ac.CourseName,
		Date:   time.Now().UTC(),
	})
	if err != nil {
		s.releaseClaim(draftID, actor.UserID)
		logger.Errorf("draft %s: submit render failed: %v", draftID, err)
		metrics.DraftSubmissions.WithLabelValues("render_failed").Inc()
		return nil, fmt.Errorf("%w: %v", draft.ErrRenderFailed, err)
	}

	filename := exportFilename(ac.Title, "_submission")
	sub, err := s.classroom.Submit(ctx, actor.GoogleToken, ac, filename, data)
	if err != nil {
		// no partial state: the claim is released and the caller retries
		s.releaseClaim(draftID, actor.UserID)
		logger.Errorf("draft %s: classroom upload failed: %v", draftID, err)
		metrics.DraftSubmissions.WithLabelValues("upload_failed").Inc()
		return nil, fmt.Errorf("%w: %v", draft.ErrUploadFailed, err)
	}

	now := time.Now().UTC()
	updated, err := s.repo.MarkSubmitted(ctx, draftID, actor.UserID, now)
	if err != nil {
		// we hold the claim, so only a lost record can land here
		logger.Errorf("draft %s: uploaded but could not record submission: %v", draftID, err)
		return nil, err
	}
	logger.Infof("draft %s: submitted (submission=%s)", draftID, sub.ID)
	metrics.DraftSubmissions.WithLabelValues("success").Inc()
	s.publish(ctx, updated, "")

	archiveKey := ""
	if s.archive != nil {
		archiveKey = storage.SubmissionKey(actor.UserID, draftID)
		if err := s.archive.UploadFile(ctx, archiveKey, bytes.NewReader(data), int64(len(data)), "application/pdf"); err != nil {
			logger.Warnf("draft %s: archive upload failed: %v", draftID, err)
			archiveKey = ""
		}
	}
	if err := s.receipts.Save(ctx, &submission.Receipt{
		DraftID:      draftID,
		OwnerID:      actor.UserID,
		AssignmentID: d.AssignmentID,
		SubmissionID: sub.ID,
		DriveFileID:  sub.DriveFileID,
		ArchiveKey:   archiveKey,
		SubmittedAt:  now,
	}); err != nil {
		logger.Warnf("draft %s: receipt save failed: %v", draftID, err)
	}

	return &SubmitResult{Draft: updated, SubmissionID: sub.ID, DriveFileID: sub.DriveFileID}, nil
}

// releaseClaim rolls a submit claim back to draft. Detached from the request
// context so a canceled request cannot strand the draft in submitting.
func (s *Service) releaseClaim(draftID, ownerID string) {
	if err := s.repo.AbortSubmit(context.Background(), draftID, ownerID); err != nil {
		logger.Warnf("draft %s: could not release submit claim: %v", draftID, err)
	}
}

// SubmissionReceipt returns the stored receipt for a submitted draft plus a
// short-lived download link for the archived PDF when one exists.
func (s *Service) SubmissionReceipt(ctx context.Context, actor Actor, draftID string) (*submission.Receipt, string, error) {
	d, err := s.repo.Get(ctx, draftID, actor.UserID)
	if err != nil {
		return nil, "", err
	}
	if d.Status != draft.StatusSubmitted {
		return nil, "", draft.ErrInvalidState
	}
	r, err := s.receipts.Load(ctx, draftID)
	if err != nil {
		return nil, "", err
	}
	if r == nil {
		return nil, "", fmt.Errorf("receipt for draft %s: %w", draftID, draft.ErrNotFound)
	}
	url := ""
	if s.archive != nil && r.ArchiveKey != "" {
		u, err := s.archive.GetPresignedURL(ctx, r.ArchiveKey, 15*time.Minute)
		if err != nil {
			logger.Warnf("draft %s: presigning archive failed: %v", draftID, err)
		} else {
			url = u
		}
	}
	return r, url, nil
}

// RunSweeper periodically fails drafts stuck in generating past the timeout,
// so a crashed worker can never leave a record in generating forever. Blocks
// until ctx is canceled.
func (s *Service) RunSweeper(ctx context.Context) {
	t := time.NewTicker(s.sweepInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			cutoff := time.Now().UTC().Add(-s.genTimeout)
			n, err := s.repo.FailStale(ctx, cutoff, "generation timed out")
			if err != nil {
				logger.Warnf("sweeper: %v", err)
				continue
			}
			if n > 0 {
				logger.Infof("sweeper: failed %d stale generating drafts", n)
				metrics.DraftGenerations.WithLabelValues("timeout").Add(float64(n))
			}
		}
	}
}

func exportFilename(title, suffix string) string {
	t := strings.TrimSpace(title)
	if t == "" {
		t = "draft"
	}
	t = strings.ReplaceAll(t, " ", "_")
	// strip characters that are awkward in Content-Disposition filenames
	t = strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', '"', ':', '*', '?', '<', '>', '|':
			return -1
		}
		return r
	}, t)
	return t + suffix + ".pdf"
}
