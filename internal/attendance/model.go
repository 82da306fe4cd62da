package attendance

import (
	"fmt"
	"time"
)

// DateLayout is the calendar-date format used by the school backend.
const DateLayout = "2006-01-02"

// Student is a roster member as served by the school backend.
type Student struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Teacher is the backend profile of the acting user.
type Teacher struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Name     string `json:"name,omitempty"`
	Email    string `json:"email,omitempty"`
}

// Record is one persisted attendance fact.
type Record struct {
	TeacherID     int64  `json:"teacherId"`
	StudentID     int64  `json:"studentId"`
	SchoolClassID int64  `json:"schoolClassId"`
	Date          string `json:"date"`
	Present       bool   `json:"present"`
}

// RecordKey identifies a record for upserts. Two records with the same key
// describe the same fact and the later one wins.
type RecordKey struct {
	TeacherID     int64
	StudentID     int64
	SchoolClassID int64
	Date          string
}

// Key returns the idempotency key of the record.
func (r Record) Key() RecordKey {
	return RecordKey{
		TeacherID:     r.TeacherID,
		StudentID:     r.StudentID,
		SchoolClassID: r.SchoolClassID,
		Date:          r.Date,
	}
}

// Selection is the (class, date) pair a recording session works on.
type Selection struct {
	ClassID int64  `json:"class_id"`
	Date    string `json:"date"`
}

// Complete reports whether both halves of the selection are set.
func (s Selection) Complete() bool {
	return s.ClassID > 0 && s.Date != ""
}

func (s Selection) String() string {
	return fmt.Sprintf("class=%d date=%s", s.ClassID, s.Date)
}

// ParseDate validates a calendar date and returns it in DateLayout.
func ParseDate(s string) (string, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return "", &ValidationError{Field: "date", Reason: "must be a calendar date (YYYY-MM-DD)"}
	}
	return t.Format(DateLayout), nil
}

// Draft maps student ids to presence for the current roster.
type Draft map[int64]bool

// NewDraft marks every roster student absent.
func NewDraft(roster []Student) Draft {
	d := make(Draft, len(roster))
	for _, st := range roster {
		d[st.ID] = false
	}
	return d
}

// Clone returns an independent copy. A nil draft stays nil.
func (d Draft) Clone() Draft {
	if d == nil {
		return nil
	}
	out := make(Draft, len(d))
	for id, present := range d {
		out[id] = present
	}
	return out
}

func (d Draft) withAll(present bool) Draft {
	out := make(Draft, len(d))
	for id := range d {
		out[id] = present
	}
	return out
}

// LockState is derived from the relevant record set and never set directly.
type LockState struct {
	Locked bool   `json:"locked"`
	Reason string `json:"reason,omitempty"`
	// Notice is set when a session was started but not completed.
	Notice string `json:"notice,omitempty"`
}
