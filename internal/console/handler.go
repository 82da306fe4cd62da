package console

import (
	"errors"
	"net/http"
	"strconv"

	"cdr.dev/slog/v3"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"rollcall/internal/attendance"
)

// RequestIDHeader carries the id of a console request.
const RequestIDHeader = "X-Request-ID"

// Response is what every console endpoint returns.
type Response struct {
	attendance.View
	Notifications []attendance.Notification `json:"notifications"`
}

type errorResponse struct {
	Error string    `json:"error"`
	View  *Response `json:"view,omitempty"`
}

// API exposes a teacher's recording session over HTTP.
type API struct {
	sessions *Registry
	log      slog.Logger
}

// NewAPI creates the console API.
func NewAPI(sessions *Registry, log slog.Logger) *API {
	return &API{sessions: sessions, log: log.Named("console")}
}

// Register mounts the attendance routes on r. Authentication is left to the
// caller's middleware.
func (a *API) Register(r gin.IRouter) {
	g := r.Group("/attendance")
	g.GET("", a.view)
	g.PUT("/class", a.selectClass)
	g.PUT("/date", a.selectDate)
	g.PUT("/students", a.setAllPresence)
	g.PUT("/students/:id", a.setPresence)
	g.POST("/submit", a.submit)
}

// RequestID tags every request with an id, reusing the caller's when present.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}

func (a *API) view(c *gin.Context) {
	sess, ok := a.session(c)
	if !ok {
		return
	}
	a.respond(c, sess, nil)
}

func (a *API) selectClass(c *gin.Context) {
	var req struct {
		ClassID int64 `json:"class_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	sess, ok := a.session(c)
	if !ok {
		return
	}
	a.respond(c, sess, sess.SelectClass(c.Request.Context(), req.ClassID))
}

func (a *API) selectDate(c *gin.Context) {
	var req struct {
		Date string `json:"date" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	sess, ok := a.session(c)
	if !ok {
		return
	}
	a.respond(c, sess, sess.SelectDate(c.Request.Context(), req.Date))
}

type presenceRequest struct {
	Present *bool `json:"present" binding:"required"`
}

func (a *API) setPresence(c *gin.Context) {
	studentID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid student id"})
		return
	}
	var req presenceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	sess, ok := a.session(c)
	if !ok {
		return
	}
	a.respond(c, sess, sess.SetPresence(c.Request.Context(), studentID, *req.Present))
}

func (a *API) setAllPresence(c *gin.Context) {
	var req presenceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	sess, ok := a.session(c)
	if !ok {
		return
	}
	a.respond(c, sess, sess.SetAllPresence(c.Request.Context(), *req.Present))
}

func (a *API) submit(c *gin.Context) {
	sess, ok := a.session(c)
	if !ok {
		return
	}
	a.respond(c, sess, sess.Submit(c.Request.Context()))
}

func (a *API) session(c *gin.Context) (*Session, bool) {
	sess, err := a.sessions.Session(c.Request.Context())
	if err != nil {
		c.JSON(StatusFor(err), errorResponse{Error: err.Error()})
		return nil, false
	}
	return sess, true
}

func (a *API) respond(c *gin.Context, sess *Session, err error) {
	res := &Response{View: sess.View(), Notifications: sess.Inbox.Drain()}
	if err == nil {
		c.JSON(http.StatusOK, res)
		return
	}
	status := StatusFor(err)
	if status >= http.StatusInternalServerError {
		a.log.Warn(c.Request.Context(), "attendance action failed",
			slog.F("request_id", c.GetString("request_id")),
			slog.F("path", c.FullPath()),
			slog.Error(err),
		)
	}
	c.JSON(status, errorResponse{Error: err.Error(), View: res})
}

// StatusFor maps session errors to HTTP status codes.
func StatusFor(err error) int {
	var (
		idErr     *attendance.IdentityResolutionError
		valErr    *attendance.ValidationError
		rosterErr *attendance.RosterLoadError
		fetchErr  *attendance.RecordFetchError
		submitErr *attendance.SubmitError
	)
	switch {
	case errors.As(err, &idErr):
		return http.StatusForbidden
	case errors.Is(err, attendance.ErrLocked),
		errors.Is(err, attendance.ErrSubmitInFlight),
		errors.Is(err, attendance.ErrSelectionPending):
		return http.StatusConflict
	case errors.As(err, &valErr),
		errors.Is(err, attendance.ErrUnknownStudent),
		errors.Is(err, attendance.ErrNoSelection),
		errors.Is(err, attendance.ErrInvalidClass):
		return http.StatusUnprocessableEntity
	case errors.As(err, &rosterErr), errors.As(err, &fetchErr), errors.As(err, &submitErr):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}
