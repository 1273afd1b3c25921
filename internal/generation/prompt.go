package generation

import (
	"fmt"
	"strings"
)

const systemPrompt = "You are an expert academic assistant helping a student draft an assignment answer. Write a well-structured response that directly addresses the assignment requirements."

// buildPrompt assembles the user message sent to the model from the
// assignment context. Material summaries are included as a bullet list.
func buildPrompt(req Request) string {
	var b strings.Builder

	title := req.AssignmentTitle
	if title == "" {
		title = "Assignment"
	}
	fmt.Fprintf(&b, "ASSIGNMENT TITLE: %s\n\n", title)
	if req.CourseName != "" {
		fmt.Fprintf(&b, "COURSE: %s\n\n", req.CourseName)
	}
	if req.AssignmentDescription != "" {
		fmt.Fprintf(&b, "ASSIGNMENT DESCRIPTION:\n%s\n\n", req.AssignmentDescription)
	}

	if len(req.Materials) > 0 {
		b.WriteString("MATERIALS AND RESOURCES:\n")
		for _, m := range req.Materials {
			if s := strings.TrimSpace(m); s != "" {
				fmt.Fprintf(&b, "- %s\n", s)
			}
		}
		b.WriteString("\n")
	}

	tone := req.Tone
	if tone == "" {
		tone = "academic"
	}
	length := req.Length
	if length == "" {
		length = "standard"
	}
	fmt.Fprintf(&b, "Write a %s response of %s length", tone, length)
	if req.Rigor != "" {
		fmt.Fprintf(&b, " with %s rigor", req.Rigor)
	}
	b.WriteString(", in clear, coherent prose with markdown headings.")
	return b.String()
}
