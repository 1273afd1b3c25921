package render

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderProducesPDF(t *testing.T) {
	r := NewPDFRenderer()
	content := "# Introduction\n\nThis is the opening paragraph.\n\n## Method\n\nDetails follow here."

	data, contentType, err := r.Render(context.Background(), content, Metadata{
		Title:  "Problem Set 3",
		Author: "Ada Lovelace",
		Course: "Algorithms",
		Date:   time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", contentType)
	assert.True(t, bytes.HasPrefix(data, []byte("%PDF-")))
	assert.Greater(t, len(data), 500)
}

func TestRenderEmptyContent(t *testing.T) {
	r := NewPDFRenderer()

	data, _, err := r.Render(context.Background(), "", Metadata{})
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("%PDF-")))
}

func TestRenderLongContentPaginates(t *testing.T) {
	r := NewPDFRenderer()
	content := strings.Repeat("A paragraph of draft text that fills space on the page.\n\n", 200)

	data, _, err := r.Render(context.Background(), content, Metadata{Title: "Long"})
	require.NoError(t, err)
	// more than one page object
	assert.Greater(t, bytes.Count(data, []byte("/Page")), 1)
}
