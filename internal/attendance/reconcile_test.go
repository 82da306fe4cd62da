package attendance

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	s1 = Student{ID: 1, Name: "Ada", Email: "ada@school.test"}
	s2 = Student{ID: 2, Name: "Ben", Email: "ben@school.test"}
	s3 = Student{ID: 3, Name: "Cy", Email: "cy@school.test"}
)

func TestFilterRecords(t *testing.T) {
	sel := Selection{ClassID: 5, Date: "2024-03-01"}
	all := []Record{
		{StudentID: 1, SchoolClassID: 5, Date: "2024-03-01", Present: true},
		{StudentID: 1, SchoolClassID: 5, Date: "2024-03-02", Present: true},
		{StudentID: 1, SchoolClassID: 6, Date: "2024-03-01", Present: true},
		{StudentID: 2, SchoolClassID: 5, Date: "2024-03-01"},
	}
	got := FilterRecords(all, sel)
	require.Len(t, got, 2)
	for _, rec := range got {
		assert.Equal(t, int64(5), rec.SchoolClassID)
		assert.Equal(t, "2024-03-01", rec.Date)
	}
	assert.Empty(t, FilterRecords(nil, sel))
}

func TestReconcile(t *testing.T) {
	sel := Selection{ClassID: 5, Date: "2024-03-01"}
	tests := []struct {
		name       string
		roster     []Student
		all        []Record
		wantDraft  Draft
		wantLocked bool
		wantNotice bool
	}{
		{
			name:      "no existing records",
			roster:    []Student{s1, s2, s3},
			wantDraft: Draft{1: false, 2: false, 3: false},
		},
		{
			name:   "complete session",
			roster: []Student{s1, s2},
			all: []Record{
				{TeacherID: 9, StudentID: 1, SchoolClassID: 5, Date: "2024-03-01", Present: true},
				{TeacherID: 9, StudentID: 2, SchoolClassID: 5, Date: "2024-03-01", Present: false},
			},
			wantDraft:  Draft{1: true, 2: false},
			wantLocked: true,
		},
		{
			name:   "partial session",
			roster: []Student{s1, s2},
			all: []Record{
				{TeacherID: 9, StudentID: 1, SchoolClassID: 5, Date: "2024-03-01", Present: true},
			},
			wantDraft:  Draft{1: true, 2: false},
			wantNotice: true,
		},
		{
			name:   "irrelevant records only",
			roster: []Student{s1, s2},
			all: []Record{
				{StudentID: 1, SchoolClassID: 5, Date: "2024-02-29", Present: true},
				{StudentID: 2, SchoolClassID: 7, Date: "2024-03-01", Present: true},
			},
			wantDraft: Draft{1: false, 2: false},
		},
		{
			name:   "record for student outside roster counts towards lock only",
			roster: []Student{s1, s2},
			all: []Record{
				{StudentID: 1, SchoolClassID: 5, Date: "2024-03-01", Present: true},
				{StudentID: 42, SchoolClassID: 5, Date: "2024-03-01", Present: true},
			},
			wantDraft:  Draft{1: true, 2: false},
			wantLocked: true,
		},
		{
			name:      "empty roster",
			all:       []Record{{StudentID: 1, SchoolClassID: 5, Date: "2024-03-01", Present: true}},
			wantDraft: Draft{},
			// a stray record still produces the partial notice
			wantNotice: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Reconcile(tt.roster, tt.all, sel)
			assert.Equal(t, tt.wantDraft, got.Draft)
			assert.Equal(t, tt.wantLocked, got.Lock.Locked)
			assert.Equal(t, tt.wantNotice, got.Lock.Notice != "")
		})
	}
}

func TestReconcileDraftCoversRoster(t *testing.T) {
	sel := Selection{ClassID: 5, Date: "2024-03-01"}
	roster := []Student{s1, s2, s3}
	var all []Record
	for i := int64(0); i < 500; i++ {
		all = append(all, Record{StudentID: i % 50, SchoolClassID: 5 + i%3, Date: "2024-03-01", Present: i%2 == 0})
	}

	got := Reconcile(roster, all, sel)
	require.Len(t, got.Draft, len(roster))
	for _, st := range roster {
		_, ok := got.Draft[st.ID]
		assert.True(t, ok, "student %d missing from draft", st.ID)
	}
}
