package attendance

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"cdr.dev/slog/v3"
	"golang.org/x/sync/errgroup"

	"rollcall/internal/metrics"
)

// Identity is the signed-in user as reported by the session subsystem.
type Identity struct {
	Username string
	Role     string
}

// IdentityProvider supplies the acting user.
type IdentityProvider interface {
	CurrentIdentity(ctx context.Context) (Identity, error)
}

// TeacherDirectory resolves a username to the backend teacher profile.
type TeacherDirectory interface {
	TeacherByUsername(ctx context.Context, username string) (Teacher, error)
}

// RosterLoader resolves the students of a class.
type RosterLoader interface {
	Load(ctx context.Context, classID int64) ([]Student, error)
}

// RosterInvalidator is implemented by roster loaders that cache. The session
// drops the cached roster before the reload that follows a submission.
type RosterInvalidator interface {
	Invalidate(ctx context.Context, classID int64) error
}

// RecordStore is the remote attendance collection. AttendanceRecords returns
// every record the backend holds; SubmitAttendance upserts a batch.
type RecordStore interface {
	AttendanceRecords(ctx context.Context) ([]Record, error)
	SubmitAttendance(ctx context.Context, batch []Record) error
}

type Level string

const (
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Notification is a message meant for the user.
type Notification struct {
	Level   Level  `json:"level"`
	Message string `json:"message"`
}

// Notifier delivers notifications to whatever presents them.
type Notifier interface {
	Notify(ctx context.Context, n Notification)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, n Notification)

func (f NotifierFunc) Notify(ctx context.Context, n Notification) { f(ctx, n) }

// Options wires a Recorder to its collaborators. Notifier may be nil.
type Options struct {
	Identity IdentityProvider
	Teachers TeacherDirectory
	Rosters  RosterLoader
	Records  RecordStore
	Notifier Notifier
	Logger   slog.Logger
}

// View is the read-only view model handed to the UI.
type View struct {
	Teacher   Teacher   `json:"teacher"`
	Selection Selection `json:"selection"`
	Loaded    Selection `json:"loaded"`
	Roster    []Student `json:"roster"`
	Draft     Draft     `json:"draft"`
	Lock      LockState `json:"lock"`
	Loading   bool      `json:"loading"`
	Saving    bool      `json:"saving"`
	Error     string    `json:"error,omitempty"`
}

// Recorder is one teacher's attendance recording session.
type Recorder struct {
	teacher  Teacher
	rosters  RosterLoader
	records  RecordStore
	notifier Notifier
	log      slog.Logger

	mu    sync.Mutex
	state State
}

// Open resolves the acting teacher and returns a session for them. Without a
// teacher profile there is nothing to record against, so any failure here is
// an IdentityResolutionError.
func Open(ctx context.Context, opts Options) (*Recorder, error) {
	if opts.Identity == nil || opts.Teachers == nil {
		return nil, &IdentityResolutionError{Err: errors.New("identity provider not configured")}
	}
	if opts.Rosters == nil || opts.Records == nil {
		return nil, errors.New("attendance: roster loader and record store are required")
	}
	id, err := opts.Identity.CurrentIdentity(ctx)
	if err != nil {
		return nil, &IdentityResolutionError{Err: err}
	}
	if id.Username == "" {
		return nil, &IdentityResolutionError{Err: errors.New("no signed-in user")}
	}
	teacher, err := opts.Teachers.TeacherByUsername(ctx, id.Username)
	if err != nil {
		return nil, &IdentityResolutionError{Username: id.Username, Err: err}
	}
	if teacher.ID <= 0 {
		return nil, &IdentityResolutionError{Username: id.Username, Err: errors.New("teacher profile has no id")}
	}

	notifier := opts.Notifier
	if notifier == nil {
		notifier = NotifierFunc(func(context.Context, Notification) {})
	}
	return &Recorder{
		teacher:  teacher,
		rosters:  opts.Rosters,
		records:  opts.Records,
		notifier: notifier,
		log:      opts.Logger.Named("recorder").With(slog.F("teacher", teacher.Username)),
	}, nil
}

// Teacher returns the resolved teacher profile.
func (r *Recorder) Teacher() Teacher { return r.teacher }

// View returns a snapshot of the session.
func (r *Recorder) View() View {
	r.mu.Lock()
	s := r.state
	r.mu.Unlock()

	v := View{
		Teacher:   r.teacher,
		Selection: s.Target,
		Loaded:    s.Selection,
		Roster:    append([]Student(nil), s.Roster...),
		Lock:      s.Lock,
		Loading:   s.Loading(),
		Saving:    s.Saving,
	}
	if s.Draft != nil {
		v.Draft = s.Draft.Clone()
	}
	if s.Err != nil {
		v.Error = s.Err.Error()
	}
	return v
}

// SelectClass switches the session to classID and, once a date is selected,
// loads and reconciles it. An invalid class leaves the session untouched.
func (r *Recorder) SelectClass(ctx context.Context, classID int64) error {
	if classID <= 0 {
		err := &RosterLoadError{ClassID: classID, Err: ErrInvalidClass}
		r.notify(ctx, LevelError, err.Error())
		return err
	}
	return r.selectTarget(ctx, func(sel Selection) Selection {
		sel.ClassID = classID
		return sel
	})
}

// SelectDate switches the session to date (YYYY-MM-DD).
func (r *Recorder) SelectDate(ctx context.Context, date string) error {
	day, err := ParseDate(date)
	if err != nil {
		r.notify(ctx, LevelError, err.Error())
		return err
	}
	return r.selectTarget(ctx, func(sel Selection) Selection {
		sel.Date = day
		return sel
	})
}

// SetPresence marks a single student. Rejected while the session is locked.
func (r *Recorder) SetPresence(ctx context.Context, studentID int64, present bool) error {
	_, err := r.dispatch(PresenceToggled{StudentID: studentID, Present: present})
	if err != nil {
		r.notify(ctx, LevelWarning, err.Error())
	}
	return err
}

// SetAllPresence marks every roster student in one step.
func (r *Recorder) SetAllPresence(ctx context.Context, present bool) error {
	_, err := r.dispatch(AllPresenceSet{Present: present})
	if err != nil {
		r.notify(ctx, LevelWarning, err.Error())
	}
	return err
}

// Submit posts one record per roster student as a single batch and reloads
// the session afterwards so the lock state reflects what was saved. On failure
// the draft is kept and Submit can simply be called again.
func (r *Recorder) Submit(ctx context.Context) error {
	snap, err := r.dispatch(SubmitStarted{})
	if err != nil {
		metrics.Submissions.WithLabelValues("rejected").Inc()
		r.notify(ctx, LevelWarning, err.Error())
		return err
	}

	batch := BuildBatch(r.teacher.ID, snap.Selection, snap.Roster, snap.Draft)
	if err := r.records.SubmitAttendance(ctx, batch); err != nil {
		serr := &SubmitError{Selection: snap.Selection, Err: err}
		_, _ = r.dispatch(SubmitFailed{Err: serr})
		metrics.Submissions.WithLabelValues("failed").Inc()
		r.log.Warn(ctx, "submit attendance failed", slog.F("selection", snap.Selection.String()), slog.Error(err))
		r.notify(ctx, LevelError, serr.Error())
		return serr
	}
	// The reload starts in the same step as the success so no edit or submit
	// can slip in before the lock is derived again.
	r.mu.Lock()
	r.state, _ = Apply(r.state, SubmitSucceeded{})
	reload := r.state.Target == snap.Selection
	var t Ticket
	if reload {
		t = r.state.NextTicket(snap.Selection)
		r.state, _ = Apply(r.state, SelectionChanged{Ticket: t})
	}
	r.mu.Unlock()
	metrics.Submissions.WithLabelValues("ok").Inc()
	r.log.Info(ctx, "attendance submitted",
		slog.F("selection", snap.Selection.String()),
		slog.F("records", len(batch)),
	)
	r.notify(ctx, LevelInfo, fmt.Sprintf("Attendance saved for %d students.", len(batch)))

	if reload {
		if inv, ok := r.rosters.(RosterInvalidator); ok {
			if err := inv.Invalidate(ctx, snap.Selection.ClassID); err != nil {
				r.log.Warn(ctx, "roster cache invalidation failed", slog.F("class_id", snap.Selection.ClassID), slog.Error(err))
			}
		}
		// The batch is saved; a failed refresh is already reported in the view.
		_ = r.load(ctx, t)
	}
	return nil
}

func (r *Recorder) selectTarget(ctx context.Context, update func(Selection) Selection) error {
	r.mu.Lock()
	sel := update(r.state.Target)
	t := r.state.NextTicket(sel)
	r.state, _ = Apply(r.state, SelectionChanged{Ticket: t})
	r.mu.Unlock()

	if !sel.Complete() {
		return nil
	}
	return r.load(ctx, t)
}

// load fetches the roster and the full record collection concurrently. The
// reducer only reconciles once both results of the same ticket are in.
func (r *Recorder) load(ctx context.Context, t Ticket) error {
	var (
		eg         errgroup.Group
		rosterErr  error
		recordsErr error
	)
	eg.Go(func() error {
		roster, err := r.rosters.Load(ctx, t.Selection.ClassID)
		if err != nil {
			rosterErr = rosterLoadError(t.Selection.ClassID, err)
			_, _ = r.dispatch(RosterFailed{Ticket: t, Err: rosterErr})
			return nil
		}
		_, _ = r.dispatch(RosterLoaded{Ticket: t, Roster: roster})
		return nil
	})
	eg.Go(func() error {
		all, err := r.records.AttendanceRecords(ctx)
		if err != nil {
			recordsErr = &RecordFetchError{Err: err}
			_, _ = r.dispatch(RecordsFailed{Ticket: t, Err: recordsErr})
			return nil
		}
		_, _ = r.dispatch(RecordsLoaded{Ticket: t, Records: all})
		return nil
	})
	_ = eg.Wait()

	r.mu.Lock()
	s := r.state
	r.mu.Unlock()
	if !s.Current(t) {
		r.log.Debug(ctx, "selection changed while loading; results dropped", slog.F("selection", t.Selection.String()))
		return nil
	}

	switch {
	case rosterErr != nil:
		r.log.Warn(ctx, "roster load failed", slog.F("selection", t.Selection.String()), slog.Error(rosterErr))
		r.notify(ctx, LevelError, rosterErr.Error())
		return rosterErr
	case recordsErr != nil:
		metrics.Reconciliations.WithLabelValues(metrics.Outcome(false, "", true)).Inc()
		r.log.Warn(ctx, "attendance fetch failed; lock state unknown", slog.F("selection", t.Selection.String()), slog.Error(recordsErr))
		r.notify(ctx, LevelError, recordsErr.Error())
		return recordsErr
	}

	metrics.Reconciliations.WithLabelValues(metrics.Outcome(s.Lock.Locked, s.Lock.Notice, false)).Inc()
	r.log.Debug(ctx, "attendance reconciled",
		slog.F("selection", t.Selection.String()),
		slog.F("roster", len(s.Roster)),
		slog.F("locked", s.Lock.Locked),
	)
	switch {
	case s.Lock.Locked:
		r.notify(ctx, LevelInfo, s.Lock.Reason)
	case s.Lock.Notice != "":
		r.notify(ctx, LevelInfo, s.Lock.Notice)
	}
	return nil
}

func (r *Recorder) dispatch(ev Event) (State, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	next, err := Apply(r.state, ev)
	if errors.Is(err, errStale) {
		metrics.StaleResponses.Inc()
	}
	r.state = next
	return next, err
}

func (r *Recorder) notify(ctx context.Context, level Level, msg string) {
	r.notifier.Notify(ctx, Notification{Level: level, Message: msg})
}
