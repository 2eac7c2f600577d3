package db

import (
	"context"
	"errors"
	"log/slog"

	"github.com/jackc/pgx/v5"

	"collegeplan/internal/types"
)

// CollegeRepo provides data access for a user's college list.
// Every statement is scoped by user_id; a user can never read, update or
// delete another user's row.
type CollegeRepo struct {
	db     DBTX
	logger *slog.Logger
}

// NewCollegeRepo creates a new CollegeRepo backed by the given database
// connection (pool or transaction).
func NewCollegeRepo(db DBTX, logger *slog.Logger) *CollegeRepo {
	if logger == nil {
		logger = slog.Default()
	}
	return &CollegeRepo{db: db, logger: logger}
}

const collegeColumns = `id, user_id, name, priority, deadline, major,
	application_cost, attendance_cost, application_type, status,
	created_at, updated_at`

// ListByUser returns the user's colleges ordered by id.
func (r *CollegeRepo) ListByUser(ctx context.Context, userID string) ([]types.College, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+collegeColumns+`
		 FROM colleges
		 WHERE user_id = $1
		 ORDER BY id ASC`,
		userID,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list colleges", err)
	}
	defer rows.Close()

	colleges := []types.College{}
	for rows.Next() {
		c, err := scanCollege(rows)
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan college row", err)
		}
		colleges = append(colleges, c)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating college rows", err)
	}

	return colleges, nil
}

// UpsertMany stamps userID on every college and writes them in order.
// Colleges without an id are inserted and get one from the sequence.
// Colleges with an id update the stored row only when it exists and belongs
// to userID; client-chosen ids are never inserted, so the id sequence stays
// ahead of every stored row. Unmatched ids are skipped and logged. It
// returns the rows as stored.
func (r *CollegeRepo) UpsertMany(ctx context.Context, userID string, colleges []types.College) ([]types.College, error) {
	saved := make([]types.College, 0, len(colleges))
	for _, c := range colleges {
		c.UserID = userID

		var row pgx.Row
		if c.ID == nil {
			row = r.db.QueryRow(ctx,
				`INSERT INTO colleges (
					user_id, name, priority, deadline, major,
					application_cost, attendance_cost, application_type, status,
					created_at, updated_at
				 ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW(), NOW())
				 RETURNING `+collegeColumns,
				c.UserID, c.Name, c.Priority, c.Deadline, c.Major,
				c.ApplicationCost, c.AttendanceCost, c.ApplicationType, c.Status,
			)
		} else {
			row = r.db.QueryRow(ctx,
				`UPDATE colleges SET
					name = $3,
					priority = $4,
					deadline = $5,
					major = $6,
					application_cost = $7,
					attendance_cost = $8,
					application_type = $9,
					status = $10,
					updated_at = NOW()
				 WHERE id = $1 AND user_id = $2
				 RETURNING `+collegeColumns,
				*c.ID, c.UserID, c.Name, c.Priority, c.Deadline, c.Major,
				c.ApplicationCost, c.AttendanceCost, c.ApplicationType, c.Status,
			)
		}

		stored, err := scanCollege(row)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				r.logger.WarnContext(ctx, "college update skipped: id missing or owned by another user",
					slog.String("user_id", userID),
					slog.Int64("college_id", *c.ID),
				)
				continue
			}
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to save college", err)
		}
		saved = append(saved, stored)
	}
	return saved, nil
}

// Delete removes the college with id if it belongs to userID. Deleting a
// missing or foreign id is a no-op.
func (r *CollegeRepo) Delete(ctx context.Context, userID string, id int64) error {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM colleges WHERE id = $1 AND user_id = $2`,
		id,
		userID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to delete college", err)
	}
	if tag.RowsAffected() == 0 {
		r.logger.DebugContext(ctx, "college delete matched no rows",
			slog.String("user_id", userID),
			slog.Int64("college_id", id),
		)
	}
	return nil
}

// rowScanner is satisfied by both pgx.Row and pgx.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanCollege(s rowScanner) (types.College, error) {
	var (
		c        types.College
		id       int64
		nullable [8]*string
	)
	err := s.Scan(
		&id, &c.UserID,
		&nullable[0], &nullable[1], &nullable[2], &nullable[3],
		&nullable[4], &nullable[5], &nullable[6], &nullable[7],
		&c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return types.College{}, err
	}
	c.ID = &id
	c.Name = derefString(nullable[0])
	c.Priority = derefString(nullable[1])
	c.Deadline = derefString(nullable[2])
	c.Major = derefString(nullable[3])
	c.ApplicationCost = derefString(nullable[4])
	c.AttendanceCost = derefString(nullable[5])
	c.ApplicationType = derefString(nullable[6])
	c.Status = derefString(nullable[7])
	return c, nil
}
