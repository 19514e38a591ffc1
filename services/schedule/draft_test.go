package schedule

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"showplan/models"
)

// recordingSink captures committed intervals and fails on demand per title.
type recordingSink struct {
	inserted   []models.ScheduledInterval
	failTitles map[string]bool
}

func (s *recordingSink) InsertInterval(_ context.Context, interval *models.ScheduledInterval) error {
	if s.failTitles[interval.Title] {
		return errors.New("database is locked")
	}
	s.inserted = append(s.inserted, *interval)
	return nil
}

func TestOverlay_Stage(t *testing.T) {
	ov := NewOverlay()

	placement, err := ov.Stage(candidate("Show A", 30), at(20, 0), nil)
	require.NoError(t, err)

	assert.NotEmpty(t, placement.LocalKey)
	assert.Equal(t, "Show A", placement.Title)
	assert.True(t, placement.StartInstant.Equal(at(20, 0)))
	assert.Equal(t, 30, placement.DurationMinutes)
	assert.Equal(t, at(20, 0).Format("-07:00"), placement.TZOffset)

	require.Equal(t, 1, ov.Len())
	assert.Equal(t, placement.LocalKey, ov.List()[0].LocalKey)
}

func TestOverlay_StageConflictStartsInside(t *testing.T) {
	ov := NewOverlay()
	existing := []models.ScheduledInterval{persisted("Show A", 20, 0, 30)}

	_, err := ov.Stage(candidate("Show B", 30), at(20, 15), existing)

	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "occupied by 'Show A' starting at 8:00 PM", conflict.Error())
	assert.Equal(t, "Show A", conflict.BlockingTitle)
	assert.True(t, conflict.BlockingStart.Equal(at(20, 0)))
	assert.True(t, conflict.BlockingEnd.Equal(at(20, 30)))

	assert.Equal(t, 0, ov.Len())
}

func TestOverlay_StageConflictEndsInside(t *testing.T) {
	ov := NewOverlay()
	existing := []models.ScheduledInterval{persisted("Show A", 20, 30, 30)}

	_, err := ov.Stage(candidate("Show B", 45), at(20, 0), existing)

	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "occupied by 'Show A' ending at 9:00 PM", conflict.Error())
}

func TestOverlay_StageConflictSpansBlocking(t *testing.T) {
	ov := NewOverlay()
	existing := []models.ScheduledInterval{persisted("Show A", 20, 15, 15)}

	_, err := ov.Stage(candidate("Show B", 60), at(20, 0), existing)

	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "occupied by 'Show A' between 8:15 PM and 8:30 PM", conflict.Error())
}

func TestOverlay_StageTouchingBoundary(t *testing.T) {
	ov := NewOverlay()
	existing := []models.ScheduledInterval{persisted("Show A", 20, 0, 30)}

	_, err := ov.Stage(candidate("Show B", 30), at(20, 30), existing)
	assert.NoError(t, err)

	_, err = ov.Stage(candidate("Show C", 30), at(19, 30), existing)
	assert.NoError(t, err)
}

func TestOverlay_StagedItemsBlockEachOther(t *testing.T) {
	ov := NewOverlay()

	_, err := ov.Stage(candidate("Show A", 30), at(20, 0), nil)
	require.NoError(t, err)

	_, err = ov.Stage(candidate("Show B", 30), at(20, 15), nil)

	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "Show A", conflict.BlockingTitle)
}

func TestOverlay_UnstageFreesTheSlot(t *testing.T) {
	ov := NewOverlay()

	placement, err := ov.Stage(candidate("Show A", 30), at(20, 0), nil)
	require.NoError(t, err)

	_, err = ov.Stage(candidate("Show B", 30), at(20, 0), nil)
	require.Error(t, err)

	require.True(t, ov.Unstage(placement.LocalKey))
	assert.Equal(t, 0, ov.Len())

	_, err = ov.Stage(candidate("Show B", 30), at(20, 0), nil)
	assert.NoError(t, err)
}

func TestOverlay_UnstageUnknownKey(t *testing.T) {
	ov := NewOverlay()
	assert.False(t, ov.Unstage("no-such-key"))
}

func TestOverlay_StageValidation(t *testing.T) {
	ov := NewOverlay()

	var dateErr *InvalidDateError
	_, err := ov.Stage(candidate("Show A", 30), time.Time{}, nil)
	assert.True(t, errors.As(err, &dateErr))

	var durErr *InvalidDurationError
	_, err = ov.Stage(candidate("Show A", 0), at(20, 0), nil)
	assert.True(t, errors.As(err, &durErr))
}

func TestOverlay_CommitAll(t *testing.T) {
	ov := NewOverlay()
	for _, title := range []string{"First", "Second", "Third"} {
		_, err := ov.Stage(candidate(title, 30), at(20, 0).Add(hoursOf(title)), nil)
		require.NoError(t, err)
	}

	sink := &recordingSink{}
	outcome := ov.CommitAll(context.Background(), sink)

	require.Len(t, outcome.Committed, 3)
	assert.Empty(t, outcome.Failed)
	assert.Equal(t, 0, ov.Len())

	// Writes happen in staging order.
	titles := make([]string, 0, len(sink.inserted))
	for _, iv := range sink.inserted {
		assert.NotEmpty(t, iv.ID)
		titles = append(titles, iv.Title)
	}
	assert.Equal(t, []string{"First", "Second", "Third"}, titles)
}

func TestOverlay_CommitAllPartialFailure(t *testing.T) {
	ov := NewOverlay()
	keys := make(map[string]string)
	for _, title := range []string{"First", "Second", "Third"} {
		placement, err := ov.Stage(candidate(title, 30), at(20, 0).Add(hoursOf(title)), nil)
		require.NoError(t, err)
		keys[title] = placement.LocalKey
	}

	sink := &recordingSink{failTitles: map[string]bool{"Second": true}}
	outcome := ov.CommitAll(context.Background(), sink)

	require.Len(t, outcome.Committed, 2)
	require.Len(t, outcome.Failed, 1)
	assert.Equal(t, "Second", outcome.Failed[0].Placement.Title)
	assert.Contains(t, outcome.Failed[0].Error, "database is locked")

	// The failed item stays staged under its original key for a retry.
	require.Equal(t, 1, ov.Len())
	assert.Equal(t, keys["Second"], ov.List()[0].LocalKey)
}

func TestOverlay_CommitAllEmpty(t *testing.T) {
	ov := NewOverlay()

	outcome := ov.CommitAll(context.Background(), &recordingSink{})
	assert.NotNil(t, outcome.Committed)
	assert.NotNil(t, outcome.Failed)
	assert.Empty(t, outcome.Committed)
	assert.Empty(t, outcome.Failed)
}

// hoursOf spreads staged titles across distinct hours so they never collide.
func hoursOf(title string) time.Duration {
	switch title {
	case "Second":
		return time.Hour
	case "Third":
		return 2 * time.Hour
	}
	return 0
}
