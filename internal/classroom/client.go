package classroom

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"
)

// Provider is the consumed surface of the external classroom service: course
// and coursework listing plus turning in a rendered document. The OAuth
// access token comes from the caller's session on every call; the client
// holds no ambient credential state.
type Provider interface {
	ListCourses(ctx context.Context, token string) ([]RemoteCourse, error)
	ListCourseWork(ctx context.Context, token, courseID string) ([]RemoteCourseWork, error)
	GetCourseWork(ctx context.Context, token, courseID, courseWorkID string) (*RemoteCourseWork, error)
	SubmitCourseWork(ctx context.Context, token, courseID, courseWorkID, filename string, file []byte) (*Submission, error)
}

// RemoteCourse mirrors the Classroom API course resource fields we consume.
type RemoteCourse struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Section     string `json:"section"`
	Description string `json:"description"`
	Room        string `json:"room"`
}

// RemoteCourseWork mirrors the Classroom API courseWork resource.
type RemoteCourseWork struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	DueDate     *struct {
		Year  int `json:"year"`
		Month int `json:"month"`
		Day   int `json:"day"`
	} `json:"dueDate,omitempty"`
	DueTime *struct {
		Hours   int `json:"hours"`
		Minutes int `json:"minutes"`
	} `json:"dueTime,omitempty"`
	Materials []struct {
		DriveFile *struct {
			DriveFile struct {
				Title string `json:"title"`
			} `json:"driveFile"`
		} `json:"driveFile,omitempty"`
		Link *struct {
			Title string `json:"title"`
			URL   string `json:"url"`
		} `json:"link,omitempty"`
		YoutubeVideo *struct {
			Title string `json:"title"`
		} `json:"youtubeVideo,omitempty"`
	} `json:"materials,omitempty"`
}

// MaterialTitles flattens the coursework material union types into the plain
// strings the prompt builder consumes.
func (cw *RemoteCourseWork) MaterialTitles() []string {
	out := []string{}
	for _, m := range cw.Materials {
		switch {
		case m.DriveFile != nil:
			out = append(out, m.DriveFile.DriveFile.Title)
		case m.Link != nil:
			if m.Link.Title != "" {
				out = append(out, m.Link.Title+" ("+m.Link.URL+")")
			} else {
				out = append(out, m.Link.URL)
			}
		case m.YoutubeVideo != nil:
			out = append(out, m.YoutubeVideo.Title)
		}
	}
	return out
}

// Due converts the API's split date/time fields into a time.Time.
func (cw *RemoteCourseWork) Due() *time.Time {
	if cw.DueDate == nil {
		return nil
	}
	h, m := 0, 0
	if cw.DueTime != nil {
		h, m = cw.DueTime.Hours, cw.DueTime.Minutes
	}
	t := time.Date(cw.DueDate.Year, time.Month(cw.DueDate.Month), cw.DueDate.Day, h, m, 0, 0, time.UTC)
	return &t
}

// ClientConfig holds base URLs for the Classroom and Drive endpoints. Tests
// point these at httptest servers.
type ClientConfig struct {
	ClassroomBaseURL string
	DriveUploadURL   string
	Timeout          time.Duration
}

// Client implements Provider against the Google Classroom and Drive REST
// APIs over plain net/http.
type Client struct {
	cfg        ClientConfig
	httpClient *http.Client
}

func NewClient(cfg ClientConfig) *Client {
	if cfg.ClassroomBaseURL == "" {
		cfg.ClassroomBaseURL = "https://classroom.googleapis.com"
	}
	if cfg.DriveUploadURL == "" {
		cfg.DriveUploadURL = "https://www.googleapis.com/upload/drive/v3/files?uploadType=multipart"
	}
	cfg.ClassroomBaseURL = strings.TrimRight(cfg.ClassroomBaseURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{cfg: cfg, httpClient: &http.Client{Timeout: cfg.Timeout}}
}

func (c *Client) getJSON(ctx context.Context, token, url string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("classroom endpoint returned %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) postJSON(ctx context.Context, token, url string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("classroom endpoint returned %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) ListCourses(ctx context.Context, token string) ([]RemoteCourse, error) {
	var res struct {
		Courses []RemoteCourse `json:"courses"`
	}
	url := c.cfg.ClassroomBaseURL + "/v1/courses?pageSize=100"
	if err := c.getJSON(ctx, token, url, &res); err != nil {
		return nil, err
	}
	return res.Courses, nil
}

func (c *Client) ListCourseWork(ctx context.Context, token, courseID string) ([]RemoteCourseWork, error) {
	var res struct {
		CourseWork []RemoteCourseWork `json:"courseWork"`
	}
	url := fmt.Sprintf("%s/v1/courses/%s/courseWork?pageSize=100", c.cfg.ClassroomBaseURL, courseID)
	if err := c.getJSON(ctx, token, url, &res); err != nil {
		return nil, err
	}
	return res.CourseWork, nil
}

func (c *Client) GetCourseWork(ctx context.Context, token, courseID, courseWorkID string) (*RemoteCourseWork, error) {
	var cw RemoteCourseWork
	url := fmt.Sprintf("%s/v1/courses/%s/courseWork/%s", c.cfg.ClassroomBaseURL, courseID, courseWorkID)
	if err := c.getJSON(ctx, token, url, &cw); err != nil {
		return nil, err
	}
	return &cw, nil
}

// uploadToDrive performs a multipart Drive upload and returns the file id.
func (c *Client) uploadToDrive(ctx context.Context, token, filename string, file []byte) (string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	metaHdr := textproto.MIMEHeader{}
	metaHdr.Set("Content-Type", "application/json; charset=UTF-8")
	metaPart, err := w.CreatePart(metaHdr)
	if err != nil {
		return "", err
	}
	meta := map[string]string{"name": filename, "mimeType": "application/pdf"}
	if err := json.NewEncoder(metaPart).Encode(meta); err != nil {
		return "", err
	}

	fileHdr := textproto.MIMEHeader{}
	fileHdr.Set("Content-Type", "application/pdf")
	filePart, err := w.CreatePart(fileHdr)
	if err != nil {
		return "", err
	}
	if _, err := filePart.Write(file); err != nil {
		return "", err
	}
	if err := w.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.DriveUploadURL, &buf)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "multipart/related; boundary="+w.Boundary())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("drive upload returned %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	var created struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return "", err
	}
	if created.ID == "" {
		return "", fmt.Errorf("drive upload returned no file id")
	}
	return created.ID, nil
}

// SubmitCourseWork uploads the file to Drive, creates a student submission,
// attaches the Drive file and turns the submission in. The draft only becomes
// `submitted` once the final turnIn call has succeeded.
func (c *Client) SubmitCourseWork(ctx context.Context, token, courseID, courseWorkID, filename string, file []byte) (*Submission, error) {
	fileID, err := c.uploadToDrive(ctx, token, filename, file)
	if err != nil {
		return nil, fmt.Errorf("upload submission file: %w", err)
	}

	base := fmt.Sprintf("%s/v1/courses/%s/courseWork/%s/studentSubmissions", c.cfg.ClassroomBaseURL, courseID, courseWorkID)

	var created struct {
		ID string `json:"id"`
	}
	if err := c.postJSON(ctx, token, base, map[string]any{}, &created); err != nil {
		return nil, fmt.Errorf("create submission: %w", err)
	}
	if created.ID == "" {
		return nil, fmt.Errorf("create submission: no id returned")
	}

	attach := map[string]any{
		"addAttachments": []map[string]any{
			{"driveFile": map[string]string{"id": fileID}},
		},
	}
	if err := c.postJSON(ctx, token, base+"/"+created.ID+":modifyAttachments", attach, nil); err != nil {
		return nil, fmt.Errorf("attach submission file: %w", err)
	}

	var turned struct {
		ID    string `json:"id"`
		State string `json:"state"`
	}
	if err := c.postJSON(ctx, token, base+"/"+created.ID+":turnIn", map[string]any{}, &turned); err != nil {
		return nil, fmt.Errorf("turn in submission: %w", err)
	}
	if turned.ID == "" {
		turned.ID = created.ID
	}
	return &Submission{ID: turned.ID, DriveFileID: fileID, State: turned.State}, nil
}
