package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"showplan/models"
)

// ErrNotFound is returned by delete operations when no row matched.
var ErrNotFound = errors.New("interval not found")

// Repository provides access to persisted schedule intervals. All methods are
// safe for concurrent use; sqlite serializes the writes underneath.
type Repository struct {
	conn *sql.DB
}

// NewRepository creates a repository over an open connection.
func NewRepository(conn *sql.DB) *Repository {
	return &Repository{conn: conn}
}

const intervalColumns = `id, user_id, content_id, season, episode, start_instant, duration_minutes, title, tz_offset, created_at`

// InsertInterval persists one interval. A missing ID is generated and a
// missing CreatedAt is stamped; both are written back to the value.
func (r *Repository) InsertInterval(ctx context.Context, interval *models.ScheduledInterval) error {
	return r.insert(ctx, r.conn, interval)
}

// InsertIntervals persists a batch inside a single transaction; either every
// interval is stored or none are.
func (r *Repository) InsertIntervals(ctx context.Context, intervals []*models.ScheduledInterval) error {
	if len(intervals) == 0 {
		return nil
	}

	tx, err := r.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, interval := range intervals {
		if err := r.insert(ctx, tx, interval); err != nil {
			return err
		}
	}
	return tx.Commit()
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (r *Repository) insert(ctx context.Context, ex execer, interval *models.ScheduledInterval) error {
	if interval.UserID == "" {
		return fmt.Errorf("interval user id is required")
	}
	if interval.DurationMinutes <= 0 {
		return fmt.Errorf("interval duration must be positive, got %d", interval.DurationMinutes)
	}
	if interval.ID == "" {
		interval.ID = uuid.NewString()
	}
	if interval.CreatedAt.IsZero() {
		interval.CreatedAt = time.Now().UTC()
	}

	_, err := ex.ExecContext(ctx, `
		INSERT INTO schedule_intervals (id, user_id, content_id, season, episode, schedule_date, start_instant, duration_minutes, title, tz_offset, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		interval.ID,
		interval.UserID,
		interval.ContentID,
		nullableInt(interval.Season),
		nullableInt(interval.Episode),
		interval.Date().String(),
		interval.StartInstant,
		interval.DurationMinutes,
		interval.Title,
		interval.TZOffset,
		interval.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert interval %s: %w", interval.ID, err)
	}
	return nil
}

// GetInterval returns one interval by id, or nil when it does not exist.
func (r *Repository) GetInterval(ctx context.Context, userID, intervalID string) (*models.ScheduledInterval, error) {
	row := r.conn.QueryRowContext(ctx, `
		SELECT `+intervalColumns+` FROM schedule_intervals
		WHERE user_id = ? AND id = ?`,
		userID, intervalID)

	interval, err := scanInterval(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get interval %s: %w", intervalID, err)
	}
	return interval, nil
}

// ListIntervalsForDate returns the user's intervals on one calendar date
// ordered by start time.
func (r *Repository) ListIntervalsForDate(ctx context.Context, userID string, date models.CalendarDate) ([]models.ScheduledInterval, error) {
	rows, err := r.conn.QueryContext(ctx, `
		SELECT `+intervalColumns+` FROM schedule_intervals
		WHERE user_id = ? AND schedule_date = ?
		ORDER BY start_instant`,
		userID, date.String())
	if err != nil {
		return nil, fmt.Errorf("list intervals for %s: %w", date, err)
	}
	defer rows.Close()

	return collectIntervals(rows)
}

// ListIntervalsForRange returns the user's intervals with dates in [from, to]
// inclusive, ordered by start time.
func (r *Repository) ListIntervalsForRange(ctx context.Context, userID string, from, to models.CalendarDate) ([]models.ScheduledInterval, error) {
	rows, err := r.conn.QueryContext(ctx, `
		SELECT `+intervalColumns+` FROM schedule_intervals
		WHERE user_id = ? AND schedule_date >= ? AND schedule_date <= ?
		ORDER BY start_instant`,
		userID, from.String(), to.String())
	if err != nil {
		return nil, fmt.Errorf("list intervals %s to %s: %w", from, to, err)
	}
	defer rows.Close()

	return collectIntervals(rows)
}

// DeleteInterval removes one interval. Returns ErrNotFound when the user has
// no interval with that id.
func (r *Repository) DeleteInterval(ctx context.Context, userID, intervalID string) error {
	result, err := r.conn.ExecContext(ctx, `
		DELETE FROM schedule_intervals WHERE user_id = ? AND id = ?`,
		userID, intervalID)
	if err != nil {
		return fmt.Errorf("delete interval %s: %w", intervalID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete interval %s: %w", intervalID, err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteIntervalsForDate removes every interval the user has on the given
// date and returns how many were removed. Clearing an empty day is not an
// error.
func (r *Repository) DeleteIntervalsForDate(ctx context.Context, userID string, date models.CalendarDate) (int64, error) {
	result, err := r.conn.ExecContext(ctx, `
		DELETE FROM schedule_intervals WHERE user_id = ? AND schedule_date = ?`,
		userID, date.String())
	if err != nil {
		return 0, fmt.Errorf("clear intervals for %s: %w", date, err)
	}
	return result.RowsAffected()
}

// DeleteIntervalsForUser removes all schedule data belonging to one user,
// used when a profile is deleted.
func (r *Repository) DeleteIntervalsForUser(ctx context.Context, userID string) (int64, error) {
	result, err := r.conn.ExecContext(ctx, `
		DELETE FROM schedule_intervals WHERE user_id = ?`, userID)
	if err != nil {
		return 0, fmt.Errorf("clear intervals for user %s: %w", userID, err)
	}
	return result.RowsAffected()
}

// CountIntervals returns the total stored intervals for a user.
func (r *Repository) CountIntervals(ctx context.Context, userID string) (int64, error) {
	var count int64
	err := r.conn.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM schedule_intervals WHERE user_id = ?`, userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count intervals: %w", err)
	}
	return count, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanInterval(row rowScanner) (*models.ScheduledInterval, error) {
	var (
		interval models.ScheduledInterval
		season   sql.NullInt64
		episode  sql.NullInt64
	)

	err := row.Scan(
		&interval.ID,
		&interval.UserID,
		&interval.ContentID,
		&season,
		&episode,
		&interval.StartInstant,
		&interval.DurationMinutes,
		&interval.Title,
		&interval.TZOffset,
		&interval.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	interval.Season = intFromNull(season)
	interval.Episode = intFromNull(episode)
	return &interval, nil
}

func collectIntervals(rows *sql.Rows) ([]models.ScheduledInterval, error) {
	intervals := []models.ScheduledInterval{}
	for rows.Next() {
		interval, err := scanInterval(rows)
		if err != nil {
			return nil, fmt.Errorf("scan interval: %w", err)
		}
		intervals = append(intervals, *interval)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate intervals: %w", err)
	}
	return intervals, nil
}

func nullableInt(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

func intFromNull(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	n := int(v.Int64)
	return &n
}
