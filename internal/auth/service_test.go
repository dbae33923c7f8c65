package auth

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/driftlabs/storefront-backend/internal/users"
	pkgauth "github.com/driftlabs/storefront-backend/pkg/auth"
	"github.com/driftlabs/storefront-backend/pkg/auth/session"
	"github.com/driftlabs/storefront-backend/pkg/config"
	"github.com/driftlabs/storefront-backend/pkg/db/models"
	"github.com/driftlabs/storefront-backend/pkg/enums"
	pkgerrors "github.com/driftlabs/storefront-backend/pkg/errors"
	"github.com/driftlabs/storefront-backend/pkg/security"
)

var testJWTConfig = config.JWTConfig{
	Secret:            "auth-service-test-secret",
	Issuer:            "storefront",
	ExpirationMinutes: 15,
}

type stubUserRepo struct {
	byEmail map[string]*models.User
	byID    map[uuid.UUID]*models.User

	createErr      error
	lastLoginCalls int
}

func newStubUserRepo() *stubUserRepo {
	return &stubUserRepo{
		byEmail: map[string]*models.User{},
		byID:    map[uuid.UUID]*models.User{},
	}
}

func (s *stubUserRepo) add(user *models.User) {
	s.byEmail[user.Email] = user
	s.byID[user.ID] = user
}

func (s *stubUserRepo) Create(ctx context.Context, dto users.CreateUserDTO) (*models.User, error) {
	if s.createErr != nil {
		return nil, s.createErr
	}
	user := dto.ToModel()
	user.ID = uuid.New()
	s.add(user)
	return user, nil
}

func (s *stubUserRepo) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	if user, ok := s.byEmail[email]; ok {
		return user, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *stubUserRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	if user, ok := s.byID[id]; ok {
		return user, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *stubUserRepo) UpdateLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	s.lastLoginCalls++
	return nil
}

type stubSessionManager struct {
	generated []string
	revoked   []string

	rotateOldID string
	rotateErr   error
}

func (s *stubSessionManager) Generate(ctx context.Context, accessID string) (string, error) {
	s.generated = append(s.generated, accessID)
	return "refresh-" + accessID, nil
}

func (s *stubSessionManager) Rotate(ctx context.Context, oldAccessID, provided string) (string, string, error) {
	if s.rotateErr != nil {
		return "", "", s.rotateErr
	}
	s.rotateOldID = oldAccessID
	newID := session.NewAccessID()
	return newID, "refresh-" + newID, nil
}

func (s *stubSessionManager) Revoke(ctx context.Context, accessID string) error {
	s.revoked = append(s.revoked, accessID)
	return nil
}

func newTestService(t *testing.T, repo *stubUserRepo, sessions *stubSessionManager) Service {
	t.Helper()
	svc, err := NewService(ServiceParams{
		UserRepo:       repo,
		SessionManager: sessions,
		JWTConfig:      testJWTConfig,
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

func addActiveUser(t *testing.T, repo *stubUserRepo, email, password string) *models.User {
	t.Helper()
	hash, err := security.HashPassword(password, config.PasswordConfig{})
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	user := &models.User{
		ID:           uuid.New(),
		Email:        email,
		PasswordHash: hash,
		Name:         "Test User",
		Role:         enums.UserRoleUser,
		IsActive:     true,
	}
	repo.add(user)
	return user
}

func TestRegisterIssuesSession(t *testing.T) {
	repo := newStubUserRepo()
	sessions := &stubSessionManager{}
	svc := newTestService(t, repo, sessions)

	resp, err := svc.Register(context.Background(), RegisterRequest{
		Email:    " Buyer@Example.COM ",
		Password: "s3cret-password",
		Name:     "Buyer",
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	if resp.User == nil || resp.User.Email != "buyer@example.com" {
		t.Fatalf("expected normalized email, got %+v", resp.User)
	}
	if resp.AccessToken == "" || resp.RefreshToken == "" {
		t.Fatal("expected a token pair")
	}

	claims, err := pkgauth.ParseAccessToken(testJWTConfig, resp.AccessToken)
	if err != nil {
		t.Fatalf("parse access token: %v", err)
	}
	if len(sessions.generated) != 1 || sessions.generated[0] != claims.ID {
		t.Fatalf("refresh session must be keyed by the jti, generated=%v jti=%s", sessions.generated, claims.ID)
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	repo := newStubUserRepo()
	repo.createErr = &duplicateErr{}
	svc := newTestService(t, repo, &stubSessionManager{})

	_, err := svc.Register(context.Background(), RegisterRequest{
		Email:    "buyer@example.com",
		Password: "s3cret-password",
		Name:     "Buyer",
	})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeConflict {
		t.Fatalf("expected conflict, got %v", err)
	}
}

type duplicateErr struct{}

func (duplicateErr) Error() string {
	return `duplicate key value violates unique constraint "users_email_key"`
}

func TestLoginSuccess(t *testing.T) {
	repo := newStubUserRepo()
	user := addActiveUser(t, repo, "buyer@example.com", "s3cret-password")
	sessions := &stubSessionManager{}
	svc := newTestService(t, repo, sessions)

	resp, err := svc.Login(context.Background(), LoginRequest{Email: "Buyer@Example.com", Password: "s3cret-password"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if resp.User.ID != user.ID {
		t.Fatalf("unexpected user %s", resp.User.ID)
	}
	if repo.lastLoginCalls != 1 {
		t.Fatalf("expected last login recorded once, got %d", repo.lastLoginCalls)
	}

	claims, err := pkgauth.ParseAccessToken(testJWTConfig, resp.AccessToken)
	if err != nil {
		t.Fatalf("parse access token: %v", err)
	}
	if claims.UserID != user.ID || claims.Role != enums.UserRoleUser {
		t.Fatalf("unexpected claims %+v", claims)
	}
}

func TestLoginRejections(t *testing.T) {
	repo := newStubUserRepo()
	addActiveUser(t, repo, "buyer@example.com", "s3cret-password")
	inactive := addActiveUser(t, repo, "gone@example.com", "s3cret-password")
	inactive.IsActive = false
	svc := newTestService(t, repo, &stubSessionManager{})

	cases := []struct {
		name string
		req  LoginRequest
	}{
		{name: "unknown email", req: LoginRequest{Email: "nobody@example.com", Password: "s3cret-password"}},
		{name: "wrong password", req: LoginRequest{Email: "buyer@example.com", Password: "wrong"}},
		{name: "inactive account", req: LoginRequest{Email: "gone@example.com", Password: "s3cret-password"}},
		{name: "empty email", req: LoginRequest{Password: "s3cret-password"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Login(context.Background(), tc.req)
			typed := pkgerrors.As(err)
			if typed == nil || typed.Code() != pkgerrors.CodeUnauthorized {
				t.Fatalf("expected unauthorized, got %v", err)
			}
			if typed.Message() != invalidCredentialsMessage {
				t.Fatalf("rejections must not leak detail, got %q", typed.Message())
			}
		})
	}
}

func TestRefreshRotatesSession(t *testing.T) {
	repo := newStubUserRepo()
	user := addActiveUser(t, repo, "buyer@example.com", "s3cret-password")
	sessions := &stubSessionManager{}
	svc := newTestService(t, repo, sessions)

	oldAccessID := session.NewAccessID()
	// An already-expired access token is fine for refresh.
	expired, err := pkgauth.MintAccessToken(testJWTConfig, time.Now().Add(-time.Hour), pkgauth.AccessTokenPayload{
		UserID: user.ID,
		Email:  user.Email,
		Role:   user.Role,
		JTI:    oldAccessID,
	})
	if err != nil {
		t.Fatalf("mint expired token: %v", err)
	}

	resp, err := svc.Refresh(context.Background(), RefreshRequest{
		AccessToken:  expired,
		RefreshToken: "refresh-" + oldAccessID,
	})
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if sessions.rotateOldID != oldAccessID {
		t.Fatalf("rotate must target the old jti, got %q", sessions.rotateOldID)
	}

	claims, err := pkgauth.ParseAccessToken(testJWTConfig, resp.AccessToken)
	if err != nil {
		t.Fatalf("parse new access token: %v", err)
	}
	if claims.ID == oldAccessID {
		t.Fatal("refresh must issue a new jti")
	}
	if resp.RefreshToken != "refresh-"+claims.ID {
		t.Fatalf("refresh token must pair with the new jti, got %q", resp.RefreshToken)
	}
}

func TestRefreshInvalidToken(t *testing.T) {
	repo := newStubUserRepo()
	user := addActiveUser(t, repo, "buyer@example.com", "s3cret-password")
	sessions := &stubSessionManager{rotateErr: session.ErrInvalidRefreshToken}
	svc := newTestService(t, repo, sessions)

	token, err := pkgauth.MintAccessToken(testJWTConfig, time.Now(), pkgauth.AccessTokenPayload{
		UserID: user.ID,
		Email:  user.Email,
		Role:   user.Role,
	})
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}

	_, err = svc.Refresh(context.Background(), RefreshRequest{AccessToken: token, RefreshToken: "stolen"})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeUnauthorized {
		t.Fatalf("expected unauthorized, got %v", err)
	}
}

func TestRefreshGarbageAccessToken(t *testing.T) {
	svc := newTestService(t, newStubUserRepo(), &stubSessionManager{})

	_, err := svc.Refresh(context.Background(), RefreshRequest{AccessToken: "not-a-jwt", RefreshToken: "x"})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeUnauthorized {
		t.Fatalf("expected unauthorized, got %v", err)
	}
}

func TestLogoutRevokesSession(t *testing.T) {
	sessions := &stubSessionManager{}
	svc := newTestService(t, newStubUserRepo(), sessions)

	if err := svc.Logout(context.Background(), "jti-1"); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if len(sessions.revoked) != 1 || sessions.revoked[0] != "jti-1" {
		t.Fatalf("expected one revoked session, got %v", sessions.revoked)
	}

	err := svc.Logout(context.Background(), " ")
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeUnauthorized {
		t.Fatalf("expected unauthorized, got %v", err)
	}
}
