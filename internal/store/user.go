package store

import (
	"context"
	"database/sql"

	"github.com/profilehub/apiserver/types"
)

// UserRepository handles persistence for identity records. The users table
// is append-only: mutation is insertion of a new record under the same
// email with a newer version stamp, except for the profile-image column,
// which is updated in place against an exact (email, version_stamp) pair.
type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

// History returns every record for the email, newest stamp first. An
// unknown email yields an empty slice, not ErrNotFound; callers decide
// whether absence is an error.
func (r *UserRepository) History(ctx context.Context, email string) ([]types.User, error) {
	const query = `
		SELECT email, version_stamp, name, password_hash, COALESCE(profile_image, ''), created_at
		FROM users
		WHERE email = $1
		ORDER BY version_stamp DESC`
	rows, err := r.db.QueryContext(ctx, query, email)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var history []types.User
	for rows.Next() {
		var user types.User
		if err := rows.Scan(
			&user.Email,
			&user.VersionStamp,
			&user.Name,
			&user.PasswordHash,
			&user.ProfileImageURL,
			&user.CreatedAt,
		); err != nil {
			return nil, err
		}
		history = append(history, user)
	}
	return history, rows.Err()
}

// Put inserts a new identity record. The composite primary key rejects a
// duplicate (email, version_stamp) pair.
func (r *UserRepository) Put(ctx context.Context, user types.User) error {
	const query = `
		INSERT INTO users (email, version_stamp, name, password_hash, profile_image, created_at)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6)`
	_, err := r.db.ExecContext(
		ctx,
		query,
		user.Email,
		user.VersionStamp,
		user.Name,
		user.PasswordHash,
		user.ProfileImageURL,
		user.CreatedAt,
	)
	return err
}

// SetProfileImage updates the image reference of the exact record the
// caller authenticated against. A version stamp that no longer names an
// existing record returns ErrNotFound, so a stale token cannot overwrite a
// newer record it never saw.
func (r *UserRepository) SetProfileImage(ctx context.Context, email, versionStamp, imageURL string) error {
	const query = `
		UPDATE users
		SET profile_image = $1
		WHERE email = $2 AND version_stamp = $3`
	result, err := r.db.ExecContext(ctx, query, imageURL, email, versionStamp)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
