package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCourseRef(t *testing.T) {
	ref, ok := ParseCourseRef("cs101 - Data Structures")
	require.True(t, ok)
	assert.Equal(t, CourseRef{Code: "CS101", Name: "Data Structures"}, ref)

	ref, ok = ParseCourseRef("LAW200 - Torts - Part II")
	require.True(t, ok)
	assert.Equal(t, "Torts - Part II", ref.Name)

	for _, bad := range []string{"", "CS101", " - Name", "CS101 - ", "CS101-Name"} {
		_, ok := ParseCourseRef(bad)
		assert.False(t, ok, bad)
	}
}

func TestStartOfDay(t *testing.T) {
	loc := time.FixedZone("EAT", 3*60*60)
	at := time.Date(2026, 3, 1, 22, 30, 0, 0, time.UTC) // 01:30 next day in EAT

	got := StartOfDay(at, loc)
	assert.Equal(t, time.Date(2026, 3, 2, 0, 0, 0, 0, loc), got)
	assert.True(t, !got.After(at))
}
