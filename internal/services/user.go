package services

import (
	"context"
	"errors"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/profilehub/apiserver/internal/auth"
	"github.com/profilehub/apiserver/internal/store"
	"github.com/profilehub/apiserver/types"
)

var emailPattern = regexp.MustCompile(`^\S+@\S+\.\S+$`)

const minPasswordLength = 8

// maxPasswordLength is the bcrypt input limit. Longer passwords must be a
// validation failure, not a hashing fault.
const maxPasswordLength = 72

const minNameLength = 2

// UserRepository defines persistence operations for identity records.
type UserRepository interface {
	History(ctx context.Context, email string) ([]types.User, error)
	Put(ctx context.Context, user types.User) error
	SetProfileImage(ctx context.Context, email, versionStamp, imageURL string) error
}

// UserService orchestrates signup, login, and profile operations against
// the record store using the credential hasher and token codec.
type UserService struct {
	repo   UserRepository
	hasher *auth.Hasher
	codec  *auth.Codec
	images *ImageService
	logger *slog.Logger
}

func NewUserService(repo UserRepository, hasher *auth.Hasher, codec *auth.Codec, images *ImageService, logger *slog.Logger) *UserService {
	if logger == nil {
		logger = slog.Default()
	}
	return &UserService{
		repo:   repo,
		hasher: hasher,
		codec:  codec,
		images: images,
		logger: logger,
	}
}

// Signup registers a new identity. One record is written per successful
// attempt; an email with any existing history conflicts.
func (s *UserService) Signup(ctx context.Context, email, password, name, profileImage string) (types.PublicUser, error) {
	if err := validateSignup(email, password, name); err != nil {
		return types.PublicUser{}, err
	}

	history, err := s.repo.History(ctx, email)
	if err != nil {
		return types.PublicUser{}, err
	}
	if len(history) > 0 {
		return types.PublicUser{}, ErrUserExists
	}

	hashed, err := s.hasher.HashPassword(password)
	if err != nil {
		return types.PublicUser{}, err
	}

	var imageURL string
	if profileImage != "" {
		imageURL, err = s.images.Store(ctx, profileImage, email)
		if err != nil {
			return types.PublicUser{}, err
		}
	}

	now := time.Now()
	user := types.User{
		Email:           email,
		VersionStamp:    types.NewVersionStamp(now),
		Name:            name,
		PasswordHash:    hashed,
		ProfileImageURL: imageURL,
		CreatedAt:       now,
	}
	if err := s.repo.Put(ctx, user); err != nil {
		return types.PublicUser{}, err
	}
	return user.Public(), nil
}

// Login verifies credentials against the current record and issues a
// session token bound to that record's identity and version stamp. Unknown
// email and wrong password are indistinguishable to the caller.
func (s *UserService) Login(ctx context.Context, email, password string) (string, types.PublicUser, error) {
	if email == "" || password == "" {
		return "", types.PublicUser{}, ErrInvalidCredentials
	}

	history, err := s.repo.History(ctx, email)
	if err != nil {
		return "", types.PublicUser{}, err
	}
	if len(history) == 0 {
		return "", types.PublicUser{}, ErrInvalidCredentials
	}
	current := history[0]

	match, err := s.hasher.VerifyPassword(password, current.PasswordHash)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidInput) {
			// A record without a stored hash is a data fault, not a
			// credential mismatch. Surface it server-side only.
			s.logger.Error("identity record has no password hash", "email", email)
		}
		return "", types.PublicUser{}, err
	}
	if !match {
		return "", types.PublicUser{}, ErrInvalidCredentials
	}

	token, err := s.codec.IssueToken(auth.Identity{
		Email:        current.Email,
		Name:         current.Name,
		VersionStamp: current.VersionStamp,
	})
	if err != nil {
		return "", types.PublicUser{}, err
	}
	return token, current.Public(), nil
}

// Profile returns the public view of the caller's current record.
func (s *UserService) Profile(ctx context.Context, email string) (types.PublicUser, error) {
	history, err := s.repo.History(ctx, email)
	if err != nil {
		return types.PublicUser{}, err
	}
	if len(history) == 0 {
		return types.PublicUser{}, store.ErrNotFound
	}
	return history[0].Public(), nil
}

// UpdateProfileImage ingests a new image and persists it against the exact
// record the caller authenticated with. The identity comes from the route
// gate and is never re-derived here.
func (s *UserService) UpdateProfileImage(ctx context.Context, identity auth.Identity, profileImage string) (string, error) {
	imageURL, err := s.images.Store(ctx, profileImage, identity.Email)
	if err != nil {
		return "", err
	}
	if err := s.setImage(ctx, identity, imageURL); err != nil {
		return "", err
	}
	return imageURL, nil
}

// CreateUploadGrant returns a presigned upload slot for the caller.
func (s *UserService) CreateUploadGrant(ctx context.Context, identity auth.Identity, mimeType string) (UploadGrant, error) {
	return s.images.CreateUploadGrant(ctx, identity.Email, mimeType)
}

// CommitProfileURL records a previously granted upload as the caller's
// profile image and returns its public URL.
func (s *UserService) CommitProfileURL(ctx context.Context, identity auth.Identity, objectKey string) (string, error) {
	imageURL, err := s.images.CommitReference(ctx, objectKey, identity.Email)
	if err != nil {
		return "", err
	}
	if err := s.setImage(ctx, identity, imageURL); err != nil {
		return "", err
	}
	return imageURL, nil
}

// setImage targets the version stamp embedded in the caller's token. A
// token issued against a superseded record cannot overwrite the newer one.
func (s *UserService) setImage(ctx context.Context, identity auth.Identity, imageURL string) error {
	err := s.repo.SetProfileImage(ctx, identity.Email, identity.VersionStamp, imageURL)
	if errors.Is(err, store.ErrNotFound) {
		return ErrStaleProfile
	}
	return err
}

func validateSignup(email, password, name string) error {
	fields := map[string]string{}

	if email == "" {
		fields["email"] = "Email is required"
	} else if !emailPattern.MatchString(email) {
		fields["email"] = "Email is invalid"
	}

	if password == "" {
		fields["password"] = "Password is required"
	} else if len(password) < minPasswordLength {
		fields["password"] = "Password must be at least 8 characters"
	} else if len(password) > maxPasswordLength {
		fields["password"] = "Password must be at most 72 bytes"
	}

	if name == "" {
		fields["name"] = "Name is required"
	} else if len(strings.TrimSpace(name)) < minNameLength {
		fields["name"] = "Name must be at least 2 characters"
	}

	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}
