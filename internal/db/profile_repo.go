package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"collegeplan/internal/types"
)

// ProfileRepo reads the user-editable profile rows.
type ProfileRepo struct {
	db DBTX
}

// NewProfileRepo creates a new ProfileRepo backed by the given database
// connection (pool or transaction).
func NewProfileRepo(db DBTX) *ProfileRepo {
	return &ProfileRepo{db: db}
}

// GetByID returns the profile of userID. Null columns read as empty strings.
func (r *ProfileRepo) GetByID(ctx context.Context, userID string) (*types.Profile, error) {
	var fullName, website, companyName, avatarURL *string
	p := types.Profile{}
	err := r.db.QueryRow(ctx,
		`SELECT id, full_name, website, company_name, avatar_url
		 FROM profiles
		 WHERE id = $1`,
		userID,
	).Scan(&p.ID, &fullName, &website, &companyName, &avatarURL)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundProfile, "profile not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to read profile", err)
	}

	p.FullName = derefString(fullName)
	p.Website = derefString(website)
	p.CompanyName = derefString(companyName)
	p.AvatarURL = derefString(avatarURL)
	return &p, nil
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
