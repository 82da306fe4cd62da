package schoolapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"cdr.dev/slog/v3/sloggers/slogtest"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rollcall/internal/attendance"
	"rollcall/internal/queue"
	"rollcall/internal/schoolstore"
)

type memStore struct {
	mu       sync.Mutex
	teachers map[string]attendance.Teacher
	classes  map[int64][]attendance.Student
	records  map[attendance.RecordKey]attendance.Record
	order    []attendance.RecordKey
	failList error
}

func newMemStore() *memStore {
	return &memStore{
		teachers: map[string]attendance.Teacher{"mrs.k": {ID: 7, Username: "mrs.k", Name: "Mrs K"}},
		classes: map[int64][]attendance.Student{
			5: {{ID: 1, Name: "Ada"}, {ID: 2, Name: "Alan"}},
			6: nil,
		},
		records: map[attendance.RecordKey]attendance.Record{},
	}
}

func (m *memStore) TeacherByUsername(_ context.Context, username string) (attendance.Teacher, error) {
	t, ok := m.teachers[username]
	if !ok {
		return attendance.Teacher{}, schoolstore.ErrNotFound
	}
	return t, nil
}

func (m *memStore) StudentsByClass(_ context.Context, classID int64) ([]attendance.Student, error) {
	st, ok := m.classes[classID]
	if !ok {
		return nil, schoolstore.ErrNotFound
	}
	return st, nil
}

func (m *memStore) AllAttendance(context.Context) ([]attendance.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failList != nil {
		return nil, m.failList
	}
	out := make([]attendance.Record, 0, len(m.order))
	for _, k := range m.order {
		out = append(out, m.records[k])
	}
	return out, nil
}

func (m *memStore) UpsertAttendance(_ context.Context, records []attendance.Record) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rec := range records {
		if _, ok := m.classes[rec.SchoolClassID]; !ok {
			return 0, schoolstore.ErrUnknownReference
		}
	}
	for _, rec := range records {
		if _, ok := m.records[rec.Key()]; !ok {
			m.order = append(m.order, rec.Key())
		}
		m.records[rec.Key()] = rec
	}
	return len(records), nil
}

func newTestRouter(t *testing.T, store Store, events Publisher, token string) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequireToken(token))
	h := New(store, events, slogtest.Make(t, &slogtest.Options{IgnoreErrors: true}))
	h.now = func() time.Time { return time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC) }
	h.Register(r)
	return r
}

func do(r http.Handler, method, path, body, token string) *httptest.ResponseRecorder {
	var buf *bytes.Reader
	if body == "" {
		buf = bytes.NewReader(nil)
	} else {
		buf = bytes.NewReader([]byte(body))
	}
	req := httptest.NewRequest(method, path, buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestLookups(t *testing.T) {
	r := newTestRouter(t, newMemStore(), nil, "")

	tests := []struct {
		name     string
		path     string
		wantCode int
		wantBody string
	}{
		{name: "teacher", path: "/api/teachers/by-username/mrs.k", wantCode: http.StatusOK, wantBody: `{"id":7,"username":"mrs.k","name":"Mrs K"}`},
		{name: "unknown teacher", path: "/api/teachers/by-username/nobody", wantCode: http.StatusNotFound},
		{name: "roster", path: "/api/classes/5/students", wantCode: http.StatusOK, wantBody: `[{"id":1,"name":"Ada","email":""},{"id":2,"name":"Alan","email":""}]`},
		{name: "empty roster", path: "/api/classes/6/students", wantCode: http.StatusOK, wantBody: `[]`},
		{name: "unknown class", path: "/api/classes/99/students", wantCode: http.StatusNotFound},
		{name: "bad class", path: "/api/classes/abc/students", wantCode: http.StatusBadRequest},
		{name: "no records yet", path: "/api/attendances", wantCode: http.StatusOK, wantBody: `[]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(r, http.MethodGet, tt.path, "", "")
			assert.Equal(t, tt.wantCode, rec.Code)
			if tt.wantBody != "" {
				assert.JSONEq(t, tt.wantBody, rec.Body.String())
			}
		})
	}
}

func TestSaveBatch(t *testing.T) {
	store := newMemStore()
	events := queue.NewInMemory(8)
	r := newTestRouter(t, store, events, "")

	body := `[
		{"teacherId":7,"studentId":1,"schoolClassId":5,"date":"2024-03-01","present":true},
		{"teacherId":7,"studentId":2,"schoolClassId":5,"date":"2024-03-01","present":false}
	]`
	rec := do(r, http.MethodPost, "/api/attendances/batch", body, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"saved":2}`, rec.Body.String())

	// resubmitting with a changed value replaces instead of duplicating
	body2 := `[{"teacherId":7,"studentId":2,"schoolClassId":5,"date":"2024-03-01","present":true}]`
	rec = do(r, http.MethodPost, "/api/attendances/batch", body2, "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(r, http.MethodGet, "/api/attendances", "", "")
	var all []attendance.Record
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &all))
	require.Len(t, all, 2)
	assert.True(t, all[1].Present)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch, err := events.Consume(ctx)
	require.NoError(t, err)
	msg := <-ch
	assert.Equal(t, queue.TypeBatchSaved, msg.Type)
	var evt BatchSaved
	require.NoError(t, msg.Decode(&evt))
	assert.Equal(t, 2, evt.Saved)
	assert.NotEmpty(t, evt.BatchID)
	assert.Equal(t, []SessionSummary{{TeacherID: 7, ClassID: 5, Date: "2024-03-01", Present: 1, Total: 2}}, evt.Sessions)
}

func TestSaveBatchRejects(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantCode int
	}{
		{name: "not json", body: `{`, wantCode: http.StatusBadRequest},
		{name: "empty", body: `[]`, wantCode: http.StatusUnprocessableEntity},
		{name: "missing present", body: `[{"teacherId":7,"studentId":1,"schoolClassId":5,"date":"2024-03-01"}]`, wantCode: http.StatusUnprocessableEntity},
		{name: "bad date", body: `[{"teacherId":7,"studentId":1,"schoolClassId":5,"date":"01/03/2024","present":true}]`, wantCode: http.StatusUnprocessableEntity},
		{name: "zero teacher", body: `[{"teacherId":0,"studentId":1,"schoolClassId":5,"date":"2024-03-01","present":true}]`, wantCode: http.StatusUnprocessableEntity},
		{name: "unknown class", body: `[{"teacherId":7,"studentId":1,"schoolClassId":42,"date":"2024-03-01","present":true}]`, wantCode: http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMemStore()
			r := newTestRouter(t, store, nil, "")
			rec := do(r, http.MethodPost, "/api/attendances/batch", tt.body, "")
			assert.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
			assert.Empty(t, store.records)
		})
	}
}

func TestStoreFailure(t *testing.T) {
	store := newMemStore()
	store.failList = errors.New("connection reset")
	r := newTestRouter(t, store, nil, "")
	rec := do(r, http.MethodGet, "/api/attendances", "", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "connection reset")
}

func TestRequireToken(t *testing.T) {
	r := newTestRouter(t, newMemStore(), nil, "s3cret")
	assert.Equal(t, http.StatusUnauthorized, do(r, http.MethodGet, "/api/attendances", "", "").Code)
	assert.Equal(t, http.StatusUnauthorized, do(r, http.MethodGet, "/api/attendances", "", "wrong").Code)
	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "/api/attendances", "", "s3cret").Code)
}

func TestSummarize(t *testing.T) {
	got := Summarize([]attendance.Record{
		{TeacherID: 7, StudentID: 1, SchoolClassID: 6, Date: "2024-03-02", Present: true},
		{TeacherID: 7, StudentID: 1, SchoolClassID: 5, Date: "2024-03-02"},
		{TeacherID: 7, StudentID: 2, SchoolClassID: 6, Date: "2024-03-02", Present: true},
		{TeacherID: 7, StudentID: 1, SchoolClassID: 5, Date: "2024-03-01", Present: true},
	})
	assert.Equal(t, []SessionSummary{
		{TeacherID: 7, ClassID: 5, Date: "2024-03-01", Present: 1, Total: 1},
		{TeacherID: 7, ClassID: 5, Date: "2024-03-02", Present: 0, Total: 1},
		{TeacherID: 7, ClassID: 6, Date: "2024-03-02", Present: 2, Total: 2},
	}, got)
}
