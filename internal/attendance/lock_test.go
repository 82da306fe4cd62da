package attendance

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
)

func records(n int, date string) []Record {
	out := make([]Record, n)
	for i := range out {
		out[i] = Record{TeacherID: 1, StudentID: int64(i + 1), SchoolClassID: 5, Date: date}
	}
	return out
}

func TestDeriveLock(t *testing.T) {
	tests := []struct {
		name       string
		rosterSize int
		count      int
		wantLocked bool
		wantNotice bool
	}{
		{name: "empty roster, no records", rosterSize: 0, count: 0},
		{name: "empty roster, stray records", rosterSize: 0, count: 3, wantNotice: true},
		{name: "no records", rosterSize: 3, count: 0},
		{name: "partial", rosterSize: 3, count: 1, wantNotice: true},
		{name: "partial, one missing", rosterSize: 3, count: 2, wantNotice: true},
		{name: "complete", rosterSize: 3, count: 3, wantLocked: true},
		{name: "more records than roster", rosterSize: 2, count: 3, wantNotice: true},
		{name: "single student complete", rosterSize: 1, count: 1, wantLocked: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DeriveLock(tt.rosterSize, records(tt.count, "2024-03-01"))
			assert.Equal(t, tt.wantLocked, got.Locked)
			assert.Equal(t, tt.wantNotice, got.Notice != "")
			if tt.wantLocked {
				assert.Contains(t, got.Reason, "2024-03-01")
			} else {
				assert.Empty(t, got.Reason)
			}
		})
	}
}

func TestDeriveLockProperties(t *testing.T) {
	for size := 0; size <= 12; size++ {
		for count := 0; count <= 14; count++ {
			got := DeriveLock(size, records(count, "2024-03-01"))
			switch {
			case size == 0:
				assert.False(t, got.Locked, "empty roster must never lock (count %d)", count)
			case count == size:
				assert.True(t, got.Locked, "complete session must lock (size %d)", size)
			case count > 0 && count < size:
				assert.False(t, got.Locked, "partial session must not lock (%d/%d)", count, size)
			default:
				assert.False(t, got.Locked)
			}
		}
	}
}

func TestDeriveLockReasonHidesCounts(t *testing.T) {
	got := DeriveLock(7, records(7, "2024-03-01"))
	assert.True(t, got.Locked)
	assert.NotContains(t, got.Reason, strconv.Itoa(7)+" ")
	assert.NotContains(t, got.Reason, "7/")
}
