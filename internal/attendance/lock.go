package attendance

import "fmt"

// DeriveLock decides whether a class/date session is closed. The backend has no
// finalize flag, so a session counts as complete when the number of relevant
// records equals the roster size. An empty roster never locks.
//
// relevant must already be filtered to the selected class and date; only its
// length and a representative date are used.
func DeriveLock(rosterSize int, relevant []Record) LockState {
	count := len(relevant)
	switch {
	case rosterSize > 0 && count == rosterSize:
		return LockState{
			Locked: true,
			Reason: fmt.Sprintf("Attendance for %s has already been taken and can no longer be edited.", relevant[0].Date),
		}
	case count > 0:
		return LockState{
			Notice: fmt.Sprintf("Attendance for %s was already started but is not complete yet.", relevant[0].Date),
		}
	}
	return LockState{}
}
