package draft

import "time"

// Status values a draft moves through. The lifecycle is
// generating -> draft -> submitting -> submitted, with failed as the error
// branch of generation (retriable back to generating). submitting is the
// transient claim one submit call holds while the upload is in flight; it
// rolls back to draft when the upload fails. submitted is terminal.
type Status string

const (
	StatusGenerating Status = "generating"
	StatusDraft      Status = "draft"
	StatusSubmitting Status = "submitting"
	StatusSubmitted  Status = "submitted"
	StatusFailed     Status = "failed"
)

// Draft is the persistent record of one AI-assisted answer for one
// coursework assignment, owned by one user.
type Draft struct {
	ID             string           `json:"id" bson:"id"`
	AssignmentID   string           `json:"assignmentId" bson:"assignmentId"`
	OwnerID        string           `json:"ownerId" bson:"ownerId"`
	Content        string           `json:"content" bson:"content"`
	Status         Status           `json:"status" bson:"status"`
	Feedback       string           `json:"feedback,omitempty" bson:"feedback,omitempty"`
	FailureReason  string           `json:"failureReason,omitempty" bson:"failureReason,omitempty"`
	Params         GenerationParams `json:"params,omitempty" bson:"params,omitempty"`
	CreatedAt      time.Time        `json:"createdAt" bson:"createdAt"`
	UpdatedAt      time.Time        `json:"updatedAt" bson:"updatedAt"`
	SubmissionDate *time.Time       `json:"submissionDate,omitempty" bson:"submissionDate,omitempty"`
}

// Editable reports whether content/feedback may still be replaced.
func (d *Draft) Editable() bool {
	return d.Status == StatusDraft || d.Status == StatusFailed
}

// GenerationParams control tone and depth of the generated answer.
// They are passed through to the generation provider verbatim.
type GenerationParams struct {
	Tone   string `json:"tone,omitempty"`
	Length string `json:"length,omitempty"`
	Rigor  string `json:"rigor,omitempty"`
}
