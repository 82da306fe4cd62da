package console

import (
	"context"
	"sync"

	"cdr.dev/slog/v3"
	"golang.org/x/sync/singleflight"

	"rollcall/internal/attendance"
)

// Backend bundles the remote collaborators every session shares.
type Backend struct {
	Teachers attendance.TeacherDirectory
	Rosters  attendance.RosterLoader
	Records  attendance.RecordStore
}

// Inbox keeps the most recent notifications of a session until the UI reads them.
type Inbox struct {
	mu    sync.Mutex
	limit int
	items []attendance.Notification
}

// NewInbox keeps at most limit notifications. Older ones are dropped first.
func NewInbox(limit int) *Inbox {
	if limit <= 0 {
		limit = 20
	}
	return &Inbox{limit: limit}
}

func (in *Inbox) Notify(_ context.Context, n attendance.Notification) {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.items = append(in.items, n)
	if over := len(in.items) - in.limit; over > 0 {
		in.items = append([]attendance.Notification(nil), in.items[over:]...)
	}
}

// Drain returns the pending notifications and empties the inbox.
func (in *Inbox) Drain() []attendance.Notification {
	in.mu.Lock()
	defer in.mu.Unlock()
	out := in.items
	in.items = nil
	if out == nil {
		out = []attendance.Notification{}
	}
	return out
}

// Session is one teacher's recorder plus their notifications.
type Session struct {
	*attendance.Recorder
	Inbox *Inbox
}

// Registry holds one Session per teacher username. Sessions whose identity
// could not be resolved are not kept, so the next request tries again.
type Registry struct {
	identity attendance.IdentityProvider
	backend  Backend
	log      slog.Logger
	inboxMax int

	open singleflight.Group

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewRegistry creates an empty registry.
func NewRegistry(identity attendance.IdentityProvider, backend Backend, log slog.Logger) *Registry {
	return &Registry{
		identity: identity,
		backend:  backend,
		log:      log.Named("sessions"),
		inboxMax: 20,
		sessions: make(map[string]*Session),
	}
}

// Session returns the caller's session, opening it on first use.
func (reg *Registry) Session(ctx context.Context) (*Session, error) {
	id, err := reg.identity.CurrentIdentity(ctx)
	if err != nil {
		return nil, &attendance.IdentityResolutionError{Err: err}
	}

	reg.mu.RLock()
	sess, ok := reg.sessions[id.Username]
	reg.mu.RUnlock()
	if ok {
		return sess, nil
	}

	v, err, _ := reg.open.Do(id.Username, func() (any, error) {
		reg.mu.RLock()
		existing, ok := reg.sessions[id.Username]
		reg.mu.RUnlock()
		if ok {
			return existing, nil
		}

		// Concurrent callers share this open, so it must outlive the
		// request that happened to start it.
		inbox := NewInbox(reg.inboxMax)
		rec, err := attendance.Open(context.WithoutCancel(ctx), attendance.Options{
			Identity: reg.identity,
			Teachers: reg.backend.Teachers,
			Rosters:  reg.backend.Rosters,
			Records:  reg.backend.Records,
			Notifier: inbox,
			Logger:   reg.log,
		})
		if err != nil {
			reg.log.Warn(ctx, "open session failed", slog.F("username", id.Username), slog.Error(err))
			return nil, err
		}
		sess := &Session{Recorder: rec, Inbox: inbox}
		reg.mu.Lock()
		reg.sessions[id.Username] = sess
		reg.mu.Unlock()
		reg.log.Info(ctx, "session opened", slog.F("username", id.Username), slog.F("teacher_id", rec.Teacher().ID))
		return sess, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Session), nil
}

// Len reports the number of open sessions.
func (reg *Registry) Len() int {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	return len(reg.sessions)
}
