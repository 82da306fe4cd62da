package attendance

// Reconciliation is the outcome of merging the remote collection into a fresh draft.
type Reconciliation struct {
	Records []Record
	Draft   Draft
	Lock    LockState
}

// FilterRecords keeps the records of the selected class on the selected date.
// The remote collection is unfiltered, so this walks all of it.
func FilterRecords(all []Record, sel Selection) []Record {
	var out []Record
	for _, rec := range all {
		if rec.SchoolClassID == sel.ClassID && rec.Date == sel.Date {
			out = append(out, rec)
		}
	}
	return out
}

// Reconcile builds the draft for roster from the records relevant to sel and
// derives the lock state. The draft always covers exactly the roster: records
// of students outside it are skipped for drafting but still count towards the lock.
func Reconcile(roster []Student, all []Record, sel Selection) Reconciliation {
	relevant := FilterRecords(all, sel)
	draft := NewDraft(roster)
	for _, rec := range relevant {
		if _, ok := draft[rec.StudentID]; ok {
			draft[rec.StudentID] = rec.Present
		}
	}
	return Reconciliation{
		Records: relevant,
		Draft:   draft,
		Lock:    DeriveLock(len(roster), relevant),
	}
}
