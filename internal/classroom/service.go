package classroom

import (
	"context"
	"fmt"

	"github.com/opencoder/opencoder/backend/go-services/pkg/logger"
)

// Service syncs the remote classroom state into the local cache and resolves
// assignment context for draft generation and submission.
type Service struct {
	provider Provider
	repo     Repository
}

func NewService(p Provider, r Repository) *Service {
	return &Service{provider: p, repo: r}
}

// SyncCourses lists the user's remote courses and upserts them into the
// cache, returning the cached records.
func (s *Service) SyncCourses(ctx context.Context, ownerID, token string) ([]*Course, error) {
	remote, err := s.provider.ListCourses(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("list courses: %w", err)
	}
	out := make([]*Course, 0, len(remote))
	for _, rc := range remote {
		c, err := s.repo.UpsertCourse(ctx, &Course{
			GoogleID:    rc.ID,
			OwnerID:     ownerID,
			Name:        rc.Name,
			Section:     rc.Section,
			Description: rc.Description,
			Room:        rc.Room,
		})
		if err != nil {
			return nil, fmt.Errorf("cache course %s: %w", rc.ID, err)
		}
		out = append(out, c)
	}
	return out, nil
}

// SyncAssignments lists remote coursework for a cached course and upserts it.
func (s *Service) SyncAssignments(ctx context.Context, ownerID, token, courseID string) ([]*Assignment, error) {
	course, err := s.repo.GetCourse(ctx, courseID, ownerID)
	if err != nil {
		return nil, err
	}
	remote, err := s.provider.ListCourseWork(ctx, token, course.GoogleID)
	if err != nil {
		return nil, fmt.Errorf("list coursework: %w", err)
	}
	out := make([]*Assignment, 0, len(remote))
	for i := range remote {
		cw := &remote[i]
		a, err := s.repo.UpsertAssignment(ctx, &Assignment{
			GoogleID:    cw.ID,
			CourseID:    course.ID,
			OwnerID:     ownerID,
			Title:       cw.Title,
			Description: cw.Description,
			Materials:   cw.MaterialTitles(),
			DueDate:     cw.Due(),
		})
		if err != nil {
			return nil, fmt.Errorf("cache assignment %s: %w", cw.ID, err)
		}
		out = append(out, a)
	}
	return out, nil
}

func (s *Service) ListCourses(ctx context.Context, ownerID string) ([]*Course, error) {
	return s.repo.ListCourses(ctx, ownerID)
}

func (s *Service) GetCourse(ctx context.Context, id, ownerID string) (*Course, error) {
	return s.repo.GetCourse(ctx, id, ownerID)
}

func (s *Service) ListAssignments(ctx context.Context, courseID, ownerID string) ([]*Assignment, error) {
	return s.repo.ListAssignments(ctx, courseID, ownerID)
}

func (s *Service) GetAssignment(ctx context.Context, id, ownerID string) (*Assignment, error) {
	return s.repo.GetAssignment(ctx, id, ownerID)
}

// AssignmentContext resolves a cached assignment plus its course into the
// context object the draft lifecycle hands to the generation provider and
// the renderer.
func (s *Service) AssignmentContext(ctx context.Context, id, ownerID string) (*AssignmentContext, error) {
	a, err := s.repo.GetAssignment(ctx, id, ownerID)
	if err != nil {
		return nil, err
	}
	ac := &AssignmentContext{
		GoogleAssignmentID: a.GoogleID,
		Title:              a.Title,
		Description:        a.Description,
		Materials:          a.Materials,
	}
	course, err := s.repo.GetCourse(ctx, a.CourseID, ownerID)
	if err != nil {
		// assignment without a resolvable course still has enough context to
		// generate; submission will fail later with a clear error
		logger.Warnf("assignment %s: course %s not in cache: %v", id, a.CourseID, err)
		return ac, nil
	}
	ac.GoogleCourseID = course.GoogleID
	ac.CourseName = course.Name
	return ac, nil
}

// Submit turns the rendered file in for the assignment's coursework entry.
func (s *Service) Submit(ctx context.Context, token string, ac *AssignmentContext, filename string, file []byte) (*Submission, error) {
	if ac.GoogleCourseID == "" || ac.GoogleAssignmentID == "" {
		return nil, fmt.Errorf("assignment is missing classroom coursework reference")
	}
	return s.provider.SubmitCourseWork(ctx, token, ac.GoogleCourseID, ac.GoogleAssignmentID, filename, file)
}
