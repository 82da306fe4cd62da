package school

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"rollcall/internal/attendance"
	"rollcall/internal/metrics"
)

// ErrNotFound is returned when the backend answers 404.
var ErrNotFound = errors.New("not found")

// Client calls the school-management REST backend.
type Client struct {
	BaseURL string
	Token   string
	HTTP    *http.Client
}

// New creates a client. A zero timeout leaves requests bounded only by their context.
func New(baseURL, token string, timeout time.Duration) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		HTTP:    &http.Client{Timeout: timeout},
	}
}

// TeacherByUsername looks up the teacher profile behind a login name.
func (c *Client) TeacherByUsername(ctx context.Context, username string) (attendance.Teacher, error) {
	if username == "" {
		return attendance.Teacher{}, fmt.Errorf("username required")
	}
	var out attendance.Teacher
	path := "/api/teachers/by-username/" + url.PathEscape(username)
	if err := c.do(ctx, "teacher_by_username", http.MethodGet, path, nil, &out); err != nil {
		return attendance.Teacher{}, err
	}
	return out, nil
}

// StudentsByClass returns the roster of a class.
func (c *Client) StudentsByClass(ctx context.Context, classID int64) ([]attendance.Student, error) {
	var out []attendance.Student
	path := "/api/classes/" + strconv.FormatInt(classID, 10) + "/students"
	if err := c.do(ctx, "students_by_class", http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// AttendanceRecords returns every attendance record the backend holds. The
// backend offers no class/date filter.
func (c *Client) AttendanceRecords(ctx context.Context) ([]attendance.Record, error) {
	var out []attendance.Record
	if err := c.do(ctx, "attendance_list", http.MethodGet, "/api/attendances", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// SubmitAttendance upserts a batch of records.
func (c *Client) SubmitAttendance(ctx context.Context, batch []attendance.Record) error {
	return c.do(ctx, "attendance_batch", http.MethodPost, "/api/attendances/batch", batch, nil)
}

// Health checks if the backend is reachable.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, "health", http.MethodGet, "/healthz", nil, nil)
}

func (c *Client) do(ctx context.Context, endpoint, method, path string, in, out any) error {
	start := time.Now()
	status := "error"
	defer func() {
		metrics.SchoolRequests.WithLabelValues(endpoint, status).Observe(time.Since(start).Seconds())
	}()

	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("school: encode request: %w", err)
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return fmt.Errorf("school: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("school: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	status = strconv.Itoa(resp.StatusCode)

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("school: %s %s: %w", method, path, ErrNotFound)
	}
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("school: %s %s failed (%d): %s", method, path, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("school: decode %s response: %w", endpoint, err)
	}
	return nil
}
