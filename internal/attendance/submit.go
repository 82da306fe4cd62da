package attendance

// CheckSubmittable validates the submission preconditions against s. It never
// touches the network.
func CheckSubmittable(s State) error {
	switch {
	case s.Saving:
		return ErrSubmitInFlight
	case !s.settled():
		return ErrSelectionPending
	case s.Lock.Locked:
		return ErrLocked
	case s.Selection.ClassID <= 0:
		return &ValidationError{Field: "class", Reason: "must be selected"}
	case s.Selection.Date == "":
		return &ValidationError{Field: "date", Reason: "must be selected"}
	case len(s.Roster) == 0:
		return &ValidationError{Field: "roster", Reason: "must not be empty"}
	}
	return nil
}

// BuildBatch returns one record per roster student, absent students included.
// Students missing from the draft are submitted as absent.
func BuildBatch(teacherID int64, sel Selection, roster []Student, draft Draft) []Record {
	batch := make([]Record, 0, len(roster))
	for _, st := range roster {
		batch = append(batch, Record{
			TeacherID:     teacherID,
			StudentID:     st.ID,
			SchoolClassID: sel.ClassID,
			Date:          sel.Date,
			Present:       draft[st.ID],
		})
	}
	return batch
}
