package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/profilehub/apiserver/internal/auth"
	"github.com/profilehub/apiserver/internal/services"
	"github.com/profilehub/apiserver/internal/storage"
	"github.com/profilehub/apiserver/internal/store"
	"github.com/profilehub/apiserver/types"
	"golang.org/x/crypto/bcrypt"
)

const testImage = "data:image/png;base64,aGVsbG8gd29ybGQ="

type memoryRepo struct {
	mu      sync.Mutex
	records []types.User
	puts    int
}

func (r *memoryRepo) History(_ context.Context, email string) ([]types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var history []types.User
	for _, rec := range r.records {
		if rec.Email == email {
			history = append(history, rec)
		}
	}
	sort.Slice(history, func(i, j int) bool {
		return history[i].VersionStamp > history[j].VersionStamp
	})
	return history, nil
}

func (r *memoryRepo) Put(_ context.Context, user types.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, user)
	r.puts++
	return nil
}

func (r *memoryRepo) SetProfileImage(_ context.Context, email, versionStamp, imageURL string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, rec := range r.records {
		if rec.Email == email && rec.VersionStamp == versionStamp {
			r.records[i].ProfileImageURL = imageURL
			return nil
		}
	}
	return store.ErrNotFound
}

type memoryObjects struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (f *memoryObjects) EnsureBucket(context.Context) error { return nil }

func (f *memoryObjects) Put(_ context.Context, key string, r io.Reader, _ int64, _ string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.objects == nil {
		f.objects = map[string][]byte{}
	}
	f.objects[key] = data
	return nil
}

func (f *memoryObjects) Get(_ context.Context, key string) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[key]
	if !ok {
		return nil, store.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (f *memoryObjects) Delete(_ context.Context, key string) error { return nil }

func (f *memoryObjects) PresignPut(_ context.Context, key, _ string, _ time.Duration) (string, error) {
	return "https://upload.test/" + key, nil
}

func (f *memoryObjects) PublicURL(key string) string { return "https://cdn.test/" + key }

func (f *memoryObjects) Bucket() string { return "profile-images" }

func newTestRouter(t *testing.T) (*chi.Mux, *memoryRepo) {
	t.Helper()

	repo := &memoryRepo{}
	hasher := auth.NewHasher(bcrypt.MinCost)
	codec := auth.NewCodec("test-secret", time.Hour)
	images := services.NewImageService(storage.NewStorage(&memoryObjects{}, ""), nil, "", nil)
	users := services.NewUserService(repo, hasher, codec, images, nil)

	router := chi.NewRouter()
	AuthRouter(router, users, codec, nil)
	return router, repo
}

func doJSON(t *testing.T, router http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", token)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func signupAndLogin(t *testing.T, router http.Handler) string {
	t.Helper()

	rec := doJSON(t, router, http.MethodPost, "/signup", "", SignupRequest{
		Email:    "a@b.com",
		Password: "longenough1",
		Name:     "Ann",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("signup status = %d, body %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, router, http.MethodPost, "/login", "", LoginRequest{
		Email:    "a@b.com",
		Password: "longenough1",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("login status = %d, body %s", rec.Code, rec.Body.String())
	}
	var resp LoginResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode login response: %v", err)
	}
	return resp.Token
}

func TestSignupFlow(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/signup", "", SignupRequest{
		Email:    "a@b.com",
		Password: "longenough1",
		Name:     "Ann",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	user, ok := resp["user"].(map[string]any)
	if !ok {
		t.Fatalf("missing user in response: %v", resp)
	}
	if user["email"] != "a@b.com" {
		t.Fatalf("unexpected user email: %v", user["email"])
	}
	if _, present := user["password"]; present {
		t.Fatal("response must not contain a password field")
	}
	if strings.Contains(rec.Body.String(), "password") {
		t.Fatal("response must not mention the password at all")
	}

	// Immediate repeat signup conflicts.
	rec = doJSON(t, router, http.MethodPost, "/signup", "", SignupRequest{
		Email:    "a@b.com",
		Password: "longenough1",
		Name:     "Ann",
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("repeat signup status = %d", rec.Code)
	}
}

func TestSignupValidationResponse(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/signup", "", SignupRequest{
		Email:    "not-an-email",
		Password: "short",
		Name:     "A",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}

	var resp MessageResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	for _, field := range []string{"email", "password", "name"} {
		if resp.Errors[field] == "" {
			t.Fatalf("expected a message for field %q, got %v", field, resp.Errors)
		}
	}
}

func TestSignupRejectsOverlongPassword(t *testing.T) {
	router, _ := newTestRouter(t)

	// Beyond the bcrypt input limit the caller gets a field-level validation
	// failure, never a hashing fault.
	rec := doJSON(t, router, http.MethodPost, "/signup", "", SignupRequest{
		Email:    "a@b.com",
		Password: strings.Repeat("x", 100),
		Name:     "Ann",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	var resp MessageResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Errors["password"] == "" {
		t.Fatalf("expected a password message, got %v", resp.Errors)
	}
}

func TestLoginFailuresAreIdentical(t *testing.T) {
	router, _ := newTestRouter(t)
	signupAndLogin(t, router)

	unknown := doJSON(t, router, http.MethodPost, "/login", "", LoginRequest{
		Email:    "nobody@b.com",
		Password: "longenough1",
	})
	wrong := doJSON(t, router, http.MethodPost, "/login", "", LoginRequest{
		Email:    "a@b.com",
		Password: "wrongpassword",
	})

	if unknown.Code != http.StatusUnauthorized || wrong.Code != http.StatusUnauthorized {
		t.Fatalf("statuses = %d, %d", unknown.Code, wrong.Code)
	}
	if unknown.Body.String() != wrong.Body.String() {
		t.Fatalf("bodies differ: %q vs %q", unknown.Body.String(), wrong.Body.String())
	}
	if !strings.Contains(unknown.Body.String(), "Invalid credentials") {
		t.Fatalf("unexpected body: %s", unknown.Body.String())
	}
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	router, repo := newTestRouter(t)
	token := signupAndLogin(t, router)

	putsBefore := repo.puts
	cases := []struct {
		name  string
		token string
	}{
		{"no header", ""},
		{"wrong scheme", "Basic " + token},
		{"bare token without scheme", token},
		{"garbled token", "Bearer garbled"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := doJSON(t, router, http.MethodPut, "/profile-image", tc.token, UpdateImageRequest{
				ProfileImage: testImage,
			})
			if rec.Code != http.StatusUnauthorized {
				t.Fatalf("status = %d", rec.Code)
			}
			if !strings.Contains(rec.Body.String(), "Unauthorized") {
				t.Fatalf("unexpected body: %s", rec.Body.String())
			}
		})
	}
	if repo.puts != putsBefore {
		t.Fatal("handler must not run when the gate denies")
	}
}

func TestExpiredTokenIsDenied(t *testing.T) {
	router, _ := newTestRouter(t)
	signupAndLogin(t, router)

	expiredCodec := auth.NewCodec("test-secret", -time.Minute)
	expired, err := expiredCodec.IssueToken(auth.Identity{Email: "a@b.com", Name: "Ann", VersionStamp: "x"})
	if err != nil {
		t.Fatalf("issue expired token: %v", err)
	}

	rec := doJSON(t, router, http.MethodPut, "/profile-image", "Bearer "+expired, UpdateImageRequest{
		ProfileImage: testImage,
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestUpdateProfileImageFlow(t *testing.T) {
	router, _ := newTestRouter(t)
	token := signupAndLogin(t, router)

	rec := doJSON(t, router, http.MethodPut, "/profile-image", "Bearer "+token, UpdateImageRequest{
		ProfileImage: testImage,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	var resp ImageResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !strings.HasPrefix(resp.ProfileImage, "https://cdn.test/profile-images/") {
		t.Fatalf("unexpected image URL: %q", resp.ProfileImage)
	}

	// The profile view reflects the update.
	rec = doJSON(t, router, http.MethodGet, "/profile", "Bearer "+token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("profile status = %d", rec.Code)
	}
	var user types.PublicUser
	if err := json.Unmarshal(rec.Body.Bytes(), &user); err != nil {
		t.Fatalf("decode profile: %v", err)
	}
	if user.ProfileImage != resp.ProfileImage {
		t.Fatalf("profile image not persisted: %q vs %q", user.ProfileImage, resp.ProfileImage)
	}
}

func TestUpdateProfileImageRejectsGarbagePayload(t *testing.T) {
	router, _ := newTestRouter(t)
	token := signupAndLogin(t, router)

	rec := doJSON(t, router, http.MethodPut, "/profile-image", "Bearer "+token, UpdateImageRequest{
		ProfileImage: "not-an-image",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
}

func TestUploadGrantAndCommitFlow(t *testing.T) {
	router, _ := newTestRouter(t)
	token := signupAndLogin(t, router)

	rec := doJSON(t, router, http.MethodGet, "/upload-url?content_type=image/png", "Bearer "+token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("upload-url status = %d, body %s", rec.Code, rec.Body.String())
	}
	var grant services.UploadGrant
	if err := json.Unmarshal(rec.Body.Bytes(), &grant); err != nil {
		t.Fatalf("decode grant: %v", err)
	}
	if grant.UploadURL == "" || !strings.HasPrefix(grant.ObjectKey, "profile-images/") {
		t.Fatalf("unexpected grant: %+v", grant)
	}

	rec = doJSON(t, router, http.MethodPut, "/profile-url", "Bearer "+token, CommitURLRequest{
		ObjectKey: grant.ObjectKey,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("profile-url status = %d, body %s", rec.Code, rec.Body.String())
	}
	var resp ImageResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.ProfileImage != "https://cdn.test/"+grant.ObjectKey {
		t.Fatalf("unexpected committed URL: %q", resp.ProfileImage)
	}
}

func TestAuthorizeEndpoint(t *testing.T) {
	router, _ := newTestRouter(t)
	token := signupAndLogin(t, router)

	rec := doJSON(t, router, http.MethodPost, "/authorize", "", AuthorizeRequest{
		Token:    "Bearer " + token,
		Resource: "arn:resource/profile-image",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var policy auth.Policy
	if err := json.Unmarshal(rec.Body.Bytes(), &policy); err != nil {
		t.Fatalf("decode policy: %v", err)
	}
	if policy.Effect != auth.EffectAllow || policy.PrincipalID != "a@b.com" {
		t.Fatalf("unexpected policy: %+v", policy)
	}

	rec = doJSON(t, router, http.MethodPost, "/authorize", "", AuthorizeRequest{
		Token:    "Bearer garbage",
		Resource: "arn:resource/profile-image",
	})
	policy = auth.Policy{}
	if err := json.Unmarshal(rec.Body.Bytes(), &policy); err != nil {
		t.Fatalf("decode policy: %v", err)
	}
	if policy.Effect != auth.EffectDeny || policy.PrincipalID != auth.AnonymousPrincipal || policy.Context != nil {
		t.Fatalf("unexpected deny policy: %+v", policy)
	}
}
