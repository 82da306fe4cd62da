package attendance

// Ticket tags a load with the selection that triggered it. Only the ticket
// with the newest Seq may change the state; results of older loads are dropped.
type Ticket struct {
	Seq       uint64
	Selection Selection
}

// Event is an input to Apply.
type Event interface {
	isEvent()
}

type (
	// SelectionChanged starts a new load for the ticket's selection.
	SelectionChanged struct{ Ticket Ticket }
	RosterLoaded     struct {
		Ticket Ticket
		Roster []Student
	}
	RosterFailed struct {
		Ticket Ticket
		Err    error
	}
	// RecordsLoaded carries the whole, unfiltered remote collection.
	RecordsLoaded struct {
		Ticket  Ticket
		Records []Record
	}
	RecordsFailed struct {
		Ticket Ticket
		Err    error
	}
	PresenceToggled struct {
		StudentID int64
		Present   bool
	}
	AllPresenceSet  struct{ Present bool }
	SubmitStarted   struct{}
	SubmitSucceeded struct{}
	SubmitFailed    struct{ Err error }
)

func (SelectionChanged) isEvent() {}
func (RosterLoaded) isEvent()     {}
func (RosterFailed) isEvent()     {}
func (RecordsLoaded) isEvent()    {}
func (RecordsFailed) isEvent()    {}
func (PresenceToggled) isEvent()  {}
func (AllPresenceSet) isEvent()   {}
func (SubmitStarted) isEvent()    {}
func (SubmitSucceeded) isEvent()  {}
func (SubmitFailed) isEvent()     {}

type pendingLoad struct {
	ticket Ticket

	rosterDone bool
	roster     []Student
	rosterErr  error

	recordsDone bool
	records     []Record
	recordsErr  error
}

// State is the whole recording session. It is a value: Apply never mutates
// the State it is given, so snapshots handed out stay consistent.
type State struct {
	// Target is what the user selected last.
	Target Selection
	// Selection is the selection Roster, Draft and Lock belong to.
	Selection Selection
	Roster    []Student
	Records   []Record
	Draft     Draft
	Lock      LockState
	Saving    bool
	Err       error

	seq     uint64
	pending *pendingLoad
}

// Loading reports whether a load is outstanding.
func (s State) Loading() bool { return s.pending != nil }

// settled reports whether the committed view belongs to the current target.
func (s State) settled() bool { return s.pending == nil && s.Target == s.Selection }

// NextTicket returns the ticket for a new load of sel.
func (s State) NextTicket(sel Selection) Ticket {
	return Ticket{Seq: s.seq + 1, Selection: sel}
}

// Current reports whether t belongs to the newest load.
func (s State) Current(t Ticket) bool { return t.Seq == s.seq }

// Apply is the only way the session state changes. Rejected events return the
// unchanged state with an error; stale load results return errStale.
func Apply(s State, ev Event) (State, error) {
	switch ev := ev.(type) {
	case SelectionChanged:
		if ev.Ticket.Seq <= s.seq {
			return s, errStale
		}
		s.seq = ev.Ticket.Seq
		s.Target = ev.Ticket.Selection
		s.Err = nil
		if !s.Target.Complete() {
			s.pending = nil
			s.Selection = s.Target
			s.Roster, s.Records, s.Draft, s.Lock = nil, nil, nil, LockState{}
			return s, nil
		}
		s.pending = &pendingLoad{ticket: ev.Ticket}
		return s, nil

	case RosterLoaded:
		return s.withLoadResult(ev.Ticket, func(p *pendingLoad) {
			p.rosterDone, p.roster = true, ev.Roster
		})
	case RosterFailed:
		return s.withLoadResult(ev.Ticket, func(p *pendingLoad) {
			p.rosterDone, p.rosterErr = true, ev.Err
		})
	case RecordsLoaded:
		return s.withLoadResult(ev.Ticket, func(p *pendingLoad) {
			p.recordsDone, p.records = true, ev.Records
		})
	case RecordsFailed:
		return s.withLoadResult(ev.Ticket, func(p *pendingLoad) {
			p.recordsDone, p.recordsErr = true, ev.Err
		})

	case PresenceToggled:
		if !s.settled() {
			return s, ErrSelectionPending
		}
		if s.Draft == nil {
			return s, ErrNoSelection
		}
		if s.Lock.Locked {
			return s, ErrLocked
		}
		if _, ok := s.Draft[ev.StudentID]; !ok {
			return s, ErrUnknownStudent
		}
		draft := s.Draft.Clone()
		draft[ev.StudentID] = ev.Present
		s.Draft = draft
		return s, nil

	case AllPresenceSet:
		if !s.settled() {
			return s, ErrSelectionPending
		}
		if s.Draft == nil {
			return s, ErrNoSelection
		}
		if s.Lock.Locked {
			return s, ErrLocked
		}
		s.Draft = s.Draft.withAll(ev.Present)
		return s, nil

	case SubmitStarted:
		if err := CheckSubmittable(s); err != nil {
			return s, err
		}
		s.Saving = true
		s.Err = nil
		return s, nil
	case SubmitSucceeded:
		s.Saving = false
		return s, nil
	case SubmitFailed:
		s.Saving = false
		s.Err = ev.Err
		return s, nil
	}
	return s, nil
}

func (s State) withLoadResult(t Ticket, fill func(*pendingLoad)) (State, error) {
	if s.pending == nil || s.pending.ticket.Seq != t.Seq {
		return s, errStale
	}
	p := *s.pending
	fill(&p)
	s.pending = &p
	if !p.rosterDone || !p.recordsDone {
		return s, nil
	}
	return s.settle(), nil
}

// settle commits a load once both halves are in. A failed roster keeps the
// previous view. A failed record fetch still commits the roster, unlocked,
// since a lock cannot be proven without records.
func (s State) settle() State {
	p := s.pending
	s.pending = nil
	switch {
	case p.rosterErr != nil:
		s.Err = p.rosterErr
	case p.recordsErr != nil:
		s.Selection = p.ticket.Selection
		s.Roster = p.roster
		s.Records = nil
		s.Draft = NewDraft(p.roster)
		s.Lock = LockState{}
		s.Err = p.recordsErr
	default:
		rec := Reconcile(p.roster, p.records, p.ticket.Selection)
		s.Selection = p.ticket.Selection
		s.Roster = p.roster
		s.Records = rec.Records
		s.Draft = rec.Draft
		s.Lock = rec.Lock
		s.Err = nil
	}
	return s
}
