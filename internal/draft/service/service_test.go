package service

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencoder/opencoder/backend/go-services/internal/classroom"
	"github.com/opencoder/opencoder/backend/go-services/internal/draft"
	"github.com/opencoder/opencoder/backend/go-services/internal/draft/notify"
	"github.com/opencoder/opencoder/backend/go-services/internal/draft/repository"
	"github.com/opencoder/opencoder/backend/go-services/internal/generation"
	"github.com/opencoder/opencoder/backend/go-services/internal/render"
)

type fakeGateway struct {
	mu        sync.Mutex
	ac        *classroom.AssignmentContext
	acErr     error
	submitErr error
	gate      chan struct{} // when set, Submit blocks on it before uploading
	uploads   []string      // filenames, in order
}

func (f *fakeGateway) AssignmentContext(ctx context.Context, assignmentID, ownerID string) (*classroom.AssignmentContext, error) {
	if f.acErr != nil {
		return nil, f.acErr
	}
	return f.ac, nil
}

func (f *fakeGateway) Submit(ctx context.Context, token string, ac *classroom.AssignmentContext, filename string, file []byte) (*classroom.Submission, error) {
	if f.gate != nil {
		<-f.gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	f.uploads = append(f.uploads, filename)
	return &classroom.Submission{ID: "sub-1", DriveFileID: "file-1", State: "TURNED_IN"}, nil
}

func (f *fakeGateway) uploadCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.uploads)
}

type fakeGenerator struct {
	fn func(ctx context.Context, req generation.Request) (string, error)
}

func (f *fakeGenerator) Generate(ctx context.Context, req generation.Request) (string, error) {
	return f.fn(ctx, req)
}

type fakeRenderer struct {
	err error
}

func (f *fakeRenderer) Render(ctx context.Context, content string, meta render.Metadata) ([]byte, string, error) {
	if f.err != nil {
		return nil, "", f.err
	}
	return append([]byte("%PDF-1.4 "), content...), "application/pdf", nil
}

// chanNotifier funnels events into a channel so tests can wait for the
// background generation to settle without polling.
type chanNotifier struct {
	events chan notify.Event
}

func newChanNotifier() *chanNotifier {
	return &chanNotifier{events: make(chan notify.Event, 16)}
}

func (n *chanNotifier) Publish(ctx context.Context, ev notify.Event) {
	n.events <- ev
}

func (n *chanNotifier) wait(t *testing.T, status draft.Status) notify.Event {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-n.events:
			if ev.Status == status {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s event", status)
		}
	}
}

type recordingArchive struct {
	mu   sync.Mutex
	keys []string
}

func (a *recordingArchive) UploadFile(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.keys = append(a.keys, key)
	return nil
}

func (a *recordingArchive) GetPresignedURL(ctx context.Context, key string, expires time.Duration) (string, error) {
	return "https://archive.test/" + key, nil
}

func testContext() *classroom.AssignmentContext {
	return &classroom.AssignmentContext{
		GoogleCourseID:     "gc-1",
		GoogleAssignmentID: "gw-1",
		CourseName:         "Algorithms",
		Title:              "Problem Set 3",
		Description:        "Prove the bound.",
		Materials:          []string{"lecture-notes.pdf"},
	}
}

func newTestService(t *testing.T, gw *fakeGateway, gen generation.Provider, opts ...Option) (*Service, *repository.MemoryRepo, *chanNotifier) {
	t.Helper()
	repo := repository.NewMemoryRepo()
	n := newChanNotifier()
	opts = append([]Option{WithNotifier(n)}, opts...)
	svc := NewService(repo, gw, gen, &fakeRenderer{}, opts...)
	return svc, repo, n
}

func seedDraft(t *testing.T, repo *repository.MemoryRepo, status draft.Status, content string) *draft.Draft {
	t.Helper()
	d := &draft.Draft{
		AssignmentID: "a-1",
		OwnerID:      "user-1",
		Status:       status,
		Content:      content,
	}
	require.NoError(t, repo.Create(context.Background(), d))
	return d
}

var actor = Actor{UserID: "user-1", Name: "Ada Lovelace", GoogleToken: "tok"}

func TestStartGenerationCompletes(t *testing.T) {
	gw := &fakeGateway{ac: testContext()}
	var gotReq generation.Request
	gen := &fakeGenerator{fn: func(ctx context.Context, req generation.Request) (string, error) {
		gotReq = req
		return "Generated answer.", nil
	}}
	svc, repo, n := newTestService(t, gw, gen)

	d, err := svc.StartGeneration(context.Background(), actor, "a-1", draft.GenerationParams{Tone: "formal"})
	require.NoError(t, err)
	assert.Equal(t, draft.StatusGenerating, d.Status)
	assert.NotEmpty(t, d.ID)

	n.wait(t, draft.StatusDraft)

	stored, err := repo.Get(context.Background(), d.ID, "user-1")
	require.NoError(t, err)
	assert.Equal(t, draft.StatusDraft, stored.Status)
	assert.Equal(t, "Generated answer.", stored.Content)
	assert.Equal(t, "Problem Set 3", gotReq.AssignmentTitle)
	assert.Equal(t, "formal", gotReq.Tone)
}

func TestStartGenerationFailureAndRetry(t *testing.T) {
	gw := &fakeGateway{ac: testContext()}
	var fail = true
	gen := &fakeGenerator{fn: func(ctx context.Context, req generation.Request) (string, error) {
		if fail {
			return "", errors.New("provider unavailable")
		}
		return "Second attempt.", nil
	}}
	svc, repo, n := newTestService(t, gw, gen)

	d, err := svc.StartGeneration(context.Background(), actor, "a-1", draft.GenerationParams{})
	require.NoError(t, err)
	ev := n.wait(t, draft.StatusFailed)
	assert.Contains(t, ev.Reason, "provider unavailable")

	stored, err := repo.Get(context.Background(), d.ID, "user-1")
	require.NoError(t, err)
	assert.Equal(t, draft.StatusFailed, stored.Status)
	assert.Equal(t, "provider unavailable", stored.FailureReason)

	fail = false
	retried, err := svc.Retry(context.Background(), actor, d.ID)
	require.NoError(t, err)
	assert.Equal(t, draft.StatusGenerating, retried.Status)

	n.wait(t, draft.StatusDraft)
	stored, err = repo.Get(context.Background(), d.ID, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "Second attempt.", stored.Content)
	assert.Empty(t, stored.FailureReason)
}

func TestRetryReusesGenerationParams(t *testing.T) {
	gw := &fakeGateway{ac: testContext()}
	var reqs []generation.Request
	var fail = true
	gen := &fakeGenerator{fn: func(ctx context.Context, req generation.Request) (string, error) {
		reqs = append(reqs, req)
		if fail {
			return "", errors.New("provider unavailable")
		}
		return "Second attempt.", nil
	}}
	svc, _, n := newTestService(t, gw, gen)

	params := draft.GenerationParams{Tone: "formal", Length: "short", Rigor: "high"}
	d, err := svc.StartGeneration(context.Background(), actor, "a-1", params)
	require.NoError(t, err)
	n.wait(t, draft.StatusFailed)

	fail = false
	_, err = svc.Retry(context.Background(), actor, d.ID)
	require.NoError(t, err)
	n.wait(t, draft.StatusDraft)

	require.Len(t, reqs, 2)
	assert.Equal(t, "formal", reqs[1].Tone)
	assert.Equal(t, "short", reqs[1].Length)
	assert.Equal(t, "high", reqs[1].Rigor)
}

func TestRetryOnlyFromFailed(t *testing.T) {
	gw := &fakeGateway{ac: testContext()}
	svc, repo, _ := newTestService(t, gw, &fakeGenerator{fn: func(context.Context, generation.Request) (string, error) {
		return "x", nil
	}})
	d := seedDraft(t, repo, draft.StatusDraft, "content")

	_, err := svc.Retry(context.Background(), actor, d.ID)
	assert.ErrorIs(t, err, draft.ErrInvalidState)
}

func TestStartGenerationUnknownAssignment(t *testing.T) {
	gw := &fakeGateway{acErr: classroom.ErrNotFound}
	svc, _, _ := newTestService(t, gw, &fakeGenerator{})

	_, err := svc.StartGeneration(context.Background(), actor, "missing", draft.GenerationParams{})
	assert.ErrorIs(t, err, draft.ErrNotFound)
}

func TestSaveIsIdempotent(t *testing.T) {
	gw := &fakeGateway{ac: testContext()}
	svc, repo, _ := newTestService(t, gw, &fakeGenerator{})
	d := seedDraft(t, repo, draft.StatusDraft, "v1")

	first, err := svc.Save(context.Background(), actor, d.ID, "v2", "tighten intro")
	require.NoError(t, err)
	second, err := svc.Save(context.Background(), actor, d.ID, "v2", "tighten intro")
	require.NoError(t, err)

	assert.Equal(t, first.Content, second.Content)
	assert.Equal(t, first.Status, second.Status)
	assert.Equal(t, "tighten intro", second.Feedback)
	assert.False(t, second.UpdatedAt.Before(first.UpdatedAt))
}

func TestSaveRejectedAfterSubmit(t *testing.T) {
	gw := &fakeGateway{ac: testContext()}
	svc, repo, _ := newTestService(t, gw, &fakeGenerator{})
	d := seedDraft(t, repo, draft.StatusSubmitted, "final")

	_, err := svc.Save(context.Background(), actor, d.ID, "edited", "")
	assert.ErrorIs(t, err, draft.ErrInvalidState)
}

func TestOwnershipScoping(t *testing.T) {
	gw := &fakeGateway{ac: testContext()}
	svc, repo, _ := newTestService(t, gw, &fakeGenerator{})
	d := seedDraft(t, repo, draft.StatusDraft, "content")

	stranger := Actor{UserID: "user-2"}
	_, err := svc.Get(context.Background(), stranger, d.ID)
	assert.ErrorIs(t, err, draft.ErrForbidden)
	_, err = svc.Save(context.Background(), stranger, d.ID, "x", "")
	assert.ErrorIs(t, err, draft.ErrForbidden)
	_, err = svc.Get(context.Background(), actor, "no-such-draft")
	assert.ErrorIs(t, err, draft.ErrNotFound)
}

func TestExportDoesNotMutate(t *testing.T) {
	gw := &fakeGateway{ac: testContext()}
	svc, repo, _ := newTestService(t, gw, &fakeGenerator{})
	d := seedDraft(t, repo, draft.StatusDraft, "essay body")
	before, err := repo.Get(context.Background(), d.ID, "user-1")
	require.NoError(t, err)

	out, err := svc.ExportPDF(context.Background(), actor, d.ID)
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", out.ContentType)
	assert.True(t, bytes.HasPrefix(out.Data, []byte("%PDF")))
	assert.Equal(t, "Problem_Set_3.pdf", out.Filename)

	after, err := repo.Get(context.Background(), d.ID, "user-1")
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestSubmitHappyPath(t *testing.T) {
	gw := &fakeGateway{ac: testContext()}
	archive := &recordingArchive{}
	svc, repo, n := newTestService(t, gw, &fakeGenerator{}, WithArchive(archive))
	d := seedDraft(t, repo, draft.StatusDraft, "final answer")

	res, err := svc.Submit(context.Background(), actor, d.ID)
	require.NoError(t, err)
	assert.Equal(t, draft.StatusSubmitted, res.Draft.Status)
	require.NotNil(t, res.Draft.SubmissionDate)
	assert.Equal(t, "sub-1", res.SubmissionID)
	assert.Equal(t, "file-1", res.DriveFileID)
	assert.Equal(t, []string{"Problem_Set_3_submission.pdf"}, gw.uploads)
	assert.Equal(t, []string{"submissions/user-1/" + d.ID + ".pdf"}, archive.keys)
	n.wait(t, draft.StatusSubmitted)

	// second submit sees the draft already submitted
	_, err = svc.Submit(context.Background(), actor, d.ID)
	assert.ErrorIs(t, err, draft.ErrInvalidState)
	assert.Equal(t, 1, gw.uploadCount())
}

func TestSubmissionReceiptRequiresSubmittedDraft(t *testing.T) {
	gw := &fakeGateway{ac: testContext()}
	svc, repo, _ := newTestService(t, gw, &fakeGenerator{})
	d := seedDraft(t, repo, draft.StatusDraft, "final answer")

	// not submitted yet
	_, _, err := svc.SubmissionReceipt(context.Background(), actor, d.ID)
	assert.ErrorIs(t, err, draft.ErrInvalidState)

	// submitted, but no receipt store is configured
	_, err = svc.Submit(context.Background(), actor, d.ID)
	require.NoError(t, err)
	_, _, err = svc.SubmissionReceipt(context.Background(), actor, d.ID)
	assert.ErrorIs(t, err, draft.ErrNotFound)
}

func TestSubmitUploadFailureLeavesDraftIntact(t *testing.T) {
	gw := &fakeGateway{ac: testContext(), submitErr: errors.New("503 from classroom")}
	svc, repo, _ := newTestService(t, gw, &fakeGenerator{})
	d := seedDraft(t, repo, draft.StatusDraft, "final answer")

	_, err := svc.Submit(context.Background(), actor, d.ID)
	assert.ErrorIs(t, err, draft.ErrUploadFailed)

	stored, err := repo.Get(context.Background(), d.ID, "user-1")
	require.NoError(t, err)
	assert.Equal(t, draft.StatusDraft, stored.Status)
	assert.Nil(t, stored.SubmissionDate)

	gw.submitErr = nil
	_, err = svc.Submit(context.Background(), actor, d.ID)
	require.NoError(t, err)
}

func TestSubmitRenderFailure(t *testing.T) {
	repo := repository.NewMemoryRepo()
	gw := &fakeGateway{ac: testContext()}
	svc := NewService(repo, gw, &fakeGenerator{}, &fakeRenderer{err: errors.New("bad glyph")})
	d := seedDraft(t, repo, draft.StatusDraft, "final answer")

	_, err := svc.Submit(context.Background(), actor, d.ID)
	assert.ErrorIs(t, err, draft.ErrRenderFailed)
	assert.Zero(t, gw.uploadCount())

	// the claim was released, the draft is editable again
	stored, err := repo.Get(context.Background(), d.ID, "user-1")
	require.NoError(t, err)
	assert.Equal(t, draft.StatusDraft, stored.Status)
}

func TestConcurrentSubmitExactlyOneWins(t *testing.T) {
	gw := &fakeGateway{ac: testContext()}
	svc, repo, _ := newTestService(t, gw, &fakeGenerator{})
	d := seedDraft(t, repo, draft.StatusDraft, "final answer")

	errs := make(chan error, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Submit(context.Background(), actor, d.ID)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	var ok, invalid int
	for err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, draft.ErrInvalidState):
			invalid++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, invalid)
	assert.Equal(t, 1, gw.uploadCount())

	stored, err := repo.Get(context.Background(), d.ID, "user-1")
	require.NoError(t, err)
	assert.Equal(t, draft.StatusSubmitted, stored.Status)
}

func TestConcurrentSubmitLoserNeverUploads(t *testing.T) {
	gate := make(chan struct{})
	gw := &fakeGateway{ac: testContext(), gate: gate}
	svc, repo, _ := newTestService(t, gw, &fakeGenerator{})
	d := seedDraft(t, repo, draft.StatusDraft, "final answer")

	done := make(chan error, 1)
	go func() {
		_, err := svc.Submit(context.Background(), actor, d.ID)
		done <- err
	}()

	// wait until the first submit holds the claim and is inside the provider call
	require.Eventually(t, func() bool {
		stored, err := repo.Get(context.Background(), d.ID, "user-1")
		return err == nil && stored.Status == draft.StatusSubmitting
	}, 2*time.Second, time.Millisecond)

	// the second submit loses the claim before anything reaches the provider
	_, err := svc.Submit(context.Background(), actor, d.ID)
	assert.ErrorIs(t, err, draft.ErrInvalidState)
	assert.Zero(t, gw.uploadCount())

	close(gate)
	require.NoError(t, <-done)
	assert.Equal(t, 1, gw.uploadCount())

	stored, err := repo.Get(context.Background(), d.ID, "user-1")
	require.NoError(t, err)
	assert.Equal(t, draft.StatusSubmitted, stored.Status)
}

func TestSweeperFailsStaleGeneration(t *testing.T) {
	gw := &fakeGateway{ac: testContext()}
	svc, repo, _ := newTestService(t, gw, &fakeGenerator{},
		WithGenerationTimeout(0), WithSweepInterval(5*time.Millisecond))
	d := seedDraft(t, repo, draft.StatusGenerating, "")
	time.Sleep(time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go svc.RunSweeper(ctx)

	require.Eventually(t, func() bool {
		stored, err := repo.Get(context.Background(), d.ID, "user-1")
		return err == nil && stored.Status == draft.StatusFailed
	}, 2*time.Second, 10*time.Millisecond)

	stored, err := repo.Get(context.Background(), d.ID, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "generation timed out", stored.FailureReason)
}
