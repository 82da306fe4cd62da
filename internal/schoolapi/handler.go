package schoolapi

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"cdr.dev/slog/v3"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"rollcall/internal/attendance"
	"rollcall/internal/metrics"
	"rollcall/internal/queue"
	"rollcall/internal/schoolstore"
)

// Store is the persistence the school API serves from.
type Store interface {
	TeacherByUsername(ctx context.Context, username string) (attendance.Teacher, error)
	StudentsByClass(ctx context.Context, classID int64) ([]attendance.Student, error)
	AllAttendance(ctx context.Context) ([]attendance.Record, error)
	UpsertAttendance(ctx context.Context, records []attendance.Record) (int, error)
}

// Publisher receives an event after every saved batch.
type Publisher interface {
	Publish(ctx context.Context, msg queue.Message) error
}

// SessionSummary describes the part of a batch that belongs to one
// (teacher, class, date) session.
type SessionSummary struct {
	TeacherID int64  `json:"teacher_id"`
	ClassID   int64  `json:"class_id"`
	Date      string `json:"date"`
	Present   int    `json:"present"`
	Total     int    `json:"total"`
}

// BatchSaved is the body of a queue.TypeBatchSaved message.
type BatchSaved struct {
	BatchID  string           `json:"batch_id"`
	Saved    int              `json:"saved"`
	Sessions []SessionSummary `json:"sessions"`
	SavedAt  time.Time        `json:"saved_at"`
}

type recordInput struct {
	TeacherID     int64  `json:"teacherId" validate:"gt=0"`
	StudentID     int64  `json:"studentId" validate:"gt=0"`
	SchoolClassID int64  `json:"schoolClassId" validate:"gt=0"`
	Date          string `json:"date" validate:"required,datetime=2006-01-02"`
	Present       *bool  `json:"present" validate:"required"`
}

// Handler serves the school REST API.
type Handler struct {
	store    Store
	events   Publisher
	log      slog.Logger
	validate *validator.Validate
	now      func() time.Time
}

// New creates a handler. events may be nil.
func New(store Store, events Publisher, log slog.Logger) *Handler {
	return &Handler{
		store:    store,
		events:   events,
		log:      log.Named("schoolapi"),
		validate: validator.New(),
		now:      time.Now,
	}
}

// Register mounts the API routes on r.
func (h *Handler) Register(r gin.IRouter) {
	api := r.Group("/api")
	api.GET("/teachers/by-username/:username", h.teacherByUsername)
	api.GET("/classes/:classId/students", h.studentsByClass)
	api.GET("/attendances", h.listAttendance)
	api.POST("/attendances/batch", h.saveBatch)
}

// RequireToken enforces a static bearer token. An empty token disables the check.
func RequireToken(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token == "" {
			c.Next()
			return
		}
		authz := c.GetHeader("Authorization")
		given := strings.TrimSpace(strings.TrimPrefix(authz, "Bearer "))
		if authz == "" || subtle.ConstantTimeCompare([]byte(given), []byte(token)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid api token"})
			return
		}
		c.Next()
	}
}

func (h *Handler) teacherByUsername(c *gin.Context) {
	t, err := h.store.TeacherByUsername(c.Request.Context(), c.Param("username"))
	if err != nil {
		h.fail(c, "teacher lookup", err)
		return
	}
	c.JSON(http.StatusOK, t)
}

func (h *Handler) studentsByClass(c *gin.Context) {
	classID, err := strconv.ParseInt(c.Param("classId"), 10, 64)
	if err != nil || classID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid class id"})
		return
	}
	students, err := h.store.StudentsByClass(c.Request.Context(), classID)
	if err != nil {
		h.fail(c, "roster lookup", err)
		return
	}
	if students == nil {
		students = []attendance.Student{}
	}
	c.JSON(http.StatusOK, students)
}

func (h *Handler) listAttendance(c *gin.Context) {
	records, err := h.store.AllAttendance(c.Request.Context())
	if err != nil {
		h.fail(c, "attendance list", err)
		return
	}
	if records == nil {
		records = []attendance.Record{}
	}
	c.JSON(http.StatusOK, records)
}

func (h *Handler) saveBatch(c *gin.Context) {
	var in []recordInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	records, err := h.decodeBatch(in)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	saved, err := h.store.UpsertAttendance(ctx, records)
	if err != nil {
		h.fail(c, "attendance upsert", err)
		return
	}
	metrics.BatchesSaved.Inc()
	metrics.RecordsSaved.Add(float64(saved))
	h.publish(ctx, records, saved)
	c.JSON(http.StatusOK, gin.H{"saved": saved})
}

func (h *Handler) decodeBatch(in []recordInput) ([]attendance.Record, error) {
	if len(in) == 0 {
		return nil, errors.New("batch must contain at least one record")
	}
	out := make([]attendance.Record, 0, len(in))
	for i, rec := range in {
		if err := h.validate.Struct(rec); err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		out = append(out, attendance.Record{
			TeacherID:     rec.TeacherID,
			StudentID:     rec.StudentID,
			SchoolClassID: rec.SchoolClassID,
			Date:          rec.Date,
			Present:       *rec.Present,
		})
	}
	return out, nil
}

// publish emits a batch event. The batch is already stored, so failures are
// only logged.
func (h *Handler) publish(ctx context.Context, records []attendance.Record, saved int) {
	if h.events == nil {
		return
	}
	evt := BatchSaved{
		BatchID:  uuid.NewString(),
		Saved:    saved,
		Sessions: Summarize(records),
		SavedAt:  h.now().UTC(),
	}
	msg, err := queue.NewMessage(queue.TypeBatchSaved, evt)
	if err == nil {
		err = h.events.Publish(ctx, msg)
	}
	if err != nil {
		h.log.Warn(ctx, "publish batch event failed", slog.F("batch_id", evt.BatchID), slog.Error(err))
	}
}

// Summarize groups records by session, ordered by date, class and teacher.
func Summarize(records []attendance.Record) []SessionSummary {
	idx := map[SessionSummary]int{}
	var out []SessionSummary
	for _, rec := range records {
		key := SessionSummary{TeacherID: rec.TeacherID, ClassID: rec.SchoolClassID, Date: rec.Date}
		i, ok := idx[key]
		if !ok {
			i = len(out)
			idx[key] = i
			out = append(out, key)
		}
		out[i].Total++
		if rec.Present {
			out[i].Present++
		}
	}
	sort.Slice(out, func(a, b int) bool {
		if out[a].Date != out[b].Date {
			return out[a].Date < out[b].Date
		}
		if out[a].ClassID != out[b].ClassID {
			return out[a].ClassID < out[b].ClassID
		}
		return out[a].TeacherID < out[b].TeacherID
	})
	return out
}

func (h *Handler) fail(c *gin.Context, op string, err error) {
	switch {
	case errors.Is(err, schoolstore.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, schoolstore.ErrUnknownReference):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	default:
		h.log.Error(c.Request.Context(), op+" failed", slog.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": op + " failed"})
	}
}
