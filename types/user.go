package types

import "time"

// VersionStampLayout is the fixed-width UTC timestamp layout used for
// identity record version stamps. Unlike time.RFC3339Nano it never trims
// trailing zeros, so lexicographic order equals chronological order and the
// greatest stamp is always the current record.
const VersionStampLayout = "2006-01-02T15:04:05.000000000Z"

// NewVersionStamp returns a version stamp for the given instant.
func NewVersionStamp(t time.Time) string {
	return t.UTC().Format(VersionStampLayout)
}

// User represents one identity record. Records for the same email form an
// append-only history ordered by version stamp; "the user" is the record
// with the greatest stamp.
type User struct {
	// Email is the unique natural key of the identity. Case-sensitive,
	// validated but never canonicalized.
	Email string `json:"email" db:"email"`

	// VersionStamp distinguishes successive records for the same email and
	// doubles as the optimistic-concurrency token carried in session tokens.
	VersionStamp string `json:"version_stamp" db:"version_stamp"`

	// Name is the user's display name.
	Name string `json:"name" db:"name"`

	// PasswordHash stores the bcrypt hash of the user's password.
	// This field is never exposed in API responses.
	PasswordHash string `json:"-" db:"password_hash"`

	// ProfileImageURL references the stored profile image, if any.
	ProfileImageURL string `json:"profile_image,omitempty" db:"profile_image"`

	// CreatedAt is the timestamp when this record was written.
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// PublicUser is the identity view returned by the API. It never carries
// the password hash or the version stamp.
type PublicUser struct {
	Email        string `json:"email"`
	Name         string `json:"name"`
	ProfileImage string `json:"profile_image,omitempty"`
}

// Public projects the record into its API view.
func (u User) Public() PublicUser {
	return PublicUser{
		Email:        u.Email,
		Name:         u.Name,
		ProfileImage: u.ProfileImageURL,
	}
}
