package generation

import (
	"context"
	"errors"
)

// Request carries the assignment context the prompt is built from plus the
// user-chosen generation parameters.
type Request struct {
	AssignmentTitle       string
	AssignmentDescription string
	CourseName            string
	Materials             []string

	// Tone/Length/Rigor are free-form hints ("academic", "concise", ...).
	Tone   string
	Length string
	Rigor  string
}

// Provider generates draft text for an assignment. Implementations must be
// safe for concurrent use and must respect ctx cancellation; the lifecycle
// service calls Generate from a background goroutine with a bounded deadline.
type Provider interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// Disabled is the Provider used when no API key is configured. Every call
// fails, which parks the draft in the failed state where the user can retry
// once generation has been configured.
type Disabled struct{}

func (Disabled) Generate(ctx context.Context, req Request) (string, error) {
	return "", errors.New("generation is not configured")
}
