package classroom

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListCourses(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/courses", r.URL.Path)
		require.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"courses": []map[string]string{
				{"id": "c1", "name": "Algorithms", "section": "A"},
				{"id": "c2", "name": "Databases"},
			},
		})
	}))
	defer srv.Close()

	c := NewClient(ClientConfig{ClassroomBaseURL: srv.URL})
	courses, err := c.ListCourses(context.Background(), "tok")
	require.NoError(t, err)
	require.Len(t, courses, 2)
	assert.Equal(t, "Algorithms", courses[0].Name)
	assert.Equal(t, "A", courses[0].Section)
}

func TestListCourseWorkParsesMaterialsAndDue(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/courses/c1/courseWork", r.URL.Path)
		_, _ = w.Write([]byte(`{"courseWork":[{
			"id":"w1","title":"PS3","description":"prove it",
			"dueDate":{"year":2026,"month":9,"day":15},
			"dueTime":{"hours":23,"minutes":59},
			"materials":[
				{"driveFile":{"driveFile":{"title":"notes.pdf"}}},
				{"link":{"title":"Paper","url":"https://example.org/p"}},
				{"youtubeVideo":{"title":"Lecture 7"}}
			]}]}`))
	}))
	defer srv.Close()

	c := NewClient(ClientConfig{ClassroomBaseURL: srv.URL})
	work, err := c.ListCourseWork(context.Background(), "tok", "c1")
	require.NoError(t, err)
	require.Len(t, work, 1)

	cw := work[0]
	assert.Equal(t, []string{"notes.pdf", "Paper (https://example.org/p)", "Lecture 7"}, cw.MaterialTitles())
	due := cw.Due()
	require.NotNil(t, due)
	assert.Equal(t, "2026-09-15T23:59:00Z", due.UTC().Format("2006-01-02T15:04:05Z"))
}

func TestListCoursesErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"invalid_grant"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewClient(ClientConfig{ClassroomBaseURL: srv.URL})
	_, err := c.ListCourses(context.Background(), "expired")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}

func TestSubmitCourseWorkFlow(t *testing.T) {
	var calls []string

	drive := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls = append(calls, "drive")
		require.True(t, strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/related"))
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "drive-file-1"})
	}))
	defer drive.Close()

	classroom := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/v1/courses/c1/courseWork/w1/studentSubmissions":
			calls = append(calls, "create")
			_ = json.NewEncoder(w).Encode(map[string]string{"id": "s1"})
		case strings.HasSuffix(r.URL.Path, "s1:modifyAttachments"):
			calls = append(calls, "attach")
			var body struct {
				AddAttachments []struct {
					DriveFile struct {
						ID string `json:"id"`
					} `json:"driveFile"`
				} `json:"addAttachments"`
			}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			require.Len(t, body.AddAttachments, 1)
			require.Equal(t, "drive-file-1", body.AddAttachments[0].DriveFile.ID)
			_, _ = w.Write([]byte(`{}`))
		case strings.HasSuffix(r.URL.Path, "s1:turnIn"):
			calls = append(calls, "turnIn")
			_ = json.NewEncoder(w).Encode(map[string]string{"id": "s1", "state": "TURNED_IN"})
		default:
			t.Fatalf("unexpected classroom call: %s", r.URL.Path)
		}
	}))
	defer classroom.Close()

	c := NewClient(ClientConfig{ClassroomBaseURL: classroom.URL, DriveUploadURL: drive.URL})
	sub, err := c.SubmitCourseWork(context.Background(), "tok", "c1", "w1", "ps3.pdf", []byte("%PDF-1.4"))
	require.NoError(t, err)

	assert.Equal(t, []string{"drive", "create", "attach", "turnIn"}, calls)
	assert.Equal(t, "s1", sub.ID)
	assert.Equal(t, "drive-file-1", sub.DriveFileID)
	assert.Equal(t, "TURNED_IN", sub.State)
}

func TestSubmitCourseWorkTurnInFailure(t *testing.T) {
	drive := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "drive-file-1"})
	}))
	defer drive.Close()

	classroom := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, ":turnIn") {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "s1"})
	}))
	defer classroom.Close()

	c := NewClient(ClientConfig{ClassroomBaseURL: classroom.URL, DriveUploadURL: drive.URL})
	_, err := c.SubmitCourseWork(context.Background(), "tok", "c1", "w1", "ps3.pdf", []byte("%PDF-1.4"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "turn in submission")
}
