package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/tipline/tipline/internal/events"
	"github.com/tipline/tipline/internal/models"
	"github.com/tipline/tipline/internal/repo"
	"github.com/tipline/tipline/pkg/hash"
	"github.com/tipline/tipline/pkg/logging"
	"github.com/tipline/tipline/pkg/tokens"
)

type EventPublisher interface {
	PublishEvent(ctx context.Context, topic, key string, event any) error
}

type AuthService struct {
	Repo       *repo.GormRepo
	Issuer     *tokens.Issuer
	RefreshTTL time.Duration
	Producer   EventPublisher
}

type LoginResult struct {
	User         *models.User
	AccessToken  string
	AccessExp    time.Time
	RefreshToken string
	RefreshExp   time.Time
}

func (s *AuthService) Register(ctx context.Context, email, username, password string) (*models.User, error) {
	l := logging.FromContext(ctx).With("svc", "auth.register")

	if email == "" || username == "" || len(password) < 8 {
		return nil, ErrValidation
	}

	pwHash, err := hash.HashPassword(password)
	if err != nil {
		l.Error("register_error", "status", 500, "reason", "cannot hash the password", "error", err)
		return nil, err
	}

	user := &models.User{
		ID:           uuid.New(),
		Email:        email,
		Username:     username,
		PasswordHash: pwHash,
		Role:         models.RoleUser,
	}

	if err := s.Repo.CreateUserIfNotExists(ctx, user); err != nil {
		if errors.Is(err, repo.ErrUserAlreadyExists) {
			l.Warn("register_error", "status", 409, "reason", "user already exists")
			return nil, ErrConflict
		}
		l.Error("register_error", "status", 500, "error", err)
		return nil, err
	}

	s.publish(ctx, events.TopicAuthEvents, user.ID.String(), map[string]any{
		"type":    "user_registered",
		"user_id": user.ID,
	})

	return user, nil
}

// Login verifies credentials and opens a new session. Unknown email and
// wrong password produce the same error after the same bcrypt work.
func (s *AuthService) Login(ctx context.Context, email, password string, device repo.DeviceInfo) (*LoginResult, error) {
	l := logging.FromContext(ctx).With("svc", "auth.login")

	if email == "" || password == "" {
		return nil, ErrValidation
	}

	user, err := s.Repo.GetUserByEmail(ctx, email)
	if err != nil {
		l.Error("login_error", "status", 500, "error", err)
		return nil, err
	}
	if user == nil {
		hash.CheckDummy(password)
		l.Warn("login_failed", "status", 401, "reason", "unknown email")
		return nil, ErrInvalidCredentials
	}

	if !hash.CheckPassword(user.PasswordHash, password) {
		l.Warn("login_failed", "status", 401, "reason", "wrong password", "user_id", user.ID)
		return nil, ErrInvalidCredentials
	}

	if user.Banned {
		l.Warn("login_failed", "status", 403, "reason", "account banned", "user_id", user.ID)
		return nil, ErrAccountBanned
	}

	res, err := s.openSession(ctx, user, device)
	if err != nil {
		l.Error("login_error", "status", 500, "error", err)
		return nil, err
	}

	s.publish(ctx, events.TopicAuthEvents, user.ID.String(), map[string]any{
		"type":    "user_logged_in",
		"user_id": user.ID,
	})
	l.Info("login_successful", "user_id", user.ID)

	return res, nil
}

// Refresh runs the rotation state machine. A presented value is either
// unknown, expired, already consumed (the reuse signal), or active; only the
// last case yields a new pair, and only for one concurrent caller.
func (s *AuthService) Refresh(ctx context.Context, rawRefresh string, device repo.DeviceInfo) (*LoginResult, error) {
	l := logging.FromContext(ctx).With("svc", "auth.refresh")

	if rawRefresh == "" {
		return nil, ErrRefreshTokenInvalid
	}

	now := time.Now()
	oldHash := tokens.Sha256Hex(rawRefresh)

	rec, err := s.Repo.FindRefreshByHash(ctx, oldHash)
	if err != nil {
		l.Error("refresh_error", "status", 500, "error", err)
		return nil, err
	}
	if rec == nil {
		l.Warn("refresh_failed", "status", 401, "reason", "unknown token")
		return nil, ErrRefreshTokenInvalid
	}

	// Expiry wins over the revoked flag: a naturally dead token is not a
	// compromise indicator, whatever happened to it since.
	if rec.ExpiresAt.Before(now) {
		l.Warn("refresh_failed", "status", 401, "reason", "token expired", "user_id", rec.UserID)
		return nil, ErrRefreshTokenExpired
	}

	if rec.Revoked {
		revoked, revErr := s.Repo.RevokeAllForUser(ctx, rec.UserID)
		if revErr != nil {
			l.Error("refresh_error", "status", 500, "reason", "mass revocation failed", "error", revErr)
			return nil, revErr
		}
		l.Warn("refresh_reuse_detected", "status", 401, "user_id", rec.UserID, "sessions_revoked", revoked)
		s.publish(ctx, events.TopicAuthEvents, rec.UserID.String(), map[string]any{
			"type":             "refresh_reuse_detected",
			"user_id":          rec.UserID,
			"sessions_revoked": revoked,
		})
		return nil, ErrRefreshTokenReuse
	}

	user, err := s.Repo.GetUserByID(ctx, rec.UserID)
	if err != nil {
		l.Error("refresh_error", "status", 500, "error", err)
		return nil, err
	}
	if user == nil {
		return nil, ErrRefreshTokenInvalid
	}
	if user.Banned {
		if _, err := s.Repo.RevokeAllForUser(ctx, user.ID); err != nil {
			l.Error("refresh_error", "status", 500, "error", err)
			return nil, err
		}
		l.Warn("refresh_failed", "status", 403, "reason", "account banned", "user_id", user.ID)
		return nil, ErrAccountBanned
	}

	newRaw, err := tokens.NewRefreshValue()
	if err != nil {
		return nil, err
	}
	refreshExp := now.Add(s.RefreshTTL)

	_, won, err := s.Repo.RotateRefreshToken(ctx, oldHash, tokens.Sha256Hex(newRaw), user.ID, refreshExp, device, now)
	if err != nil {
		l.Error("refresh_error", "status", 500, "error", err)
		return nil, err
	}
	if !won {
		// A concurrent request consumed this token between our read and the
		// conditional update. The winner's session stays alive; this caller
		// just failed the race.
		l.Warn("refresh_failed", "status", 401, "reason", "lost rotation race", "user_id", user.ID)
		return nil, ErrRefreshTokenReuse
	}

	accessToken, accessExp, err := s.Issuer.IssueAccessToken(user.ID, user.Role.String())
	if err != nil {
		l.Error("refresh_error", "status", 500, "error", err)
		return nil, err
	}

	l.Info("refresh_successful", "user_id", user.ID)
	return &LoginResult{
		User:         user,
		AccessToken:  accessToken,
		AccessExp:    accessExp,
		RefreshToken: newRaw,
		RefreshExp:   refreshExp,
	}, nil
}

// LogOut revokes the presented session. Idempotent: an unknown or already
// revoked value is not an error.
func (s *AuthService) LogOut(ctx context.Context, rawRefresh string) error {
	if rawRefresh == "" {
		return nil
	}
	l := logging.FromContext(ctx).With("svc", "auth.logout")

	if err := s.Repo.RevokeRefreshToken(ctx, tokens.Sha256Hex(rawRefresh)); err != nil {
		l.Error("logout_error", "status", 500, "error", err)
		return err
	}
	l.Info("logout_successful")
	return nil
}

// LogOutAll revokes every session of the identity (password change, "log out
// everywhere", admin ban).
func (s *AuthService) LogOutAll(ctx context.Context, userID uuid.UUID) error {
	l := logging.FromContext(ctx).With("svc", "auth.logout_all")

	revoked, err := s.Repo.RevokeAllForUser(ctx, userID)
	if err != nil {
		l.Error("logout_all_error", "status", 500, "error", err)
		return err
	}

	s.publish(ctx, events.TopicAuthEvents, userID.String(), map[string]any{
		"type":             "user_logged_out_everywhere",
		"user_id":          userID,
		"sessions_revoked": revoked,
	})
	l.Info("logout_all_successful", "sessions_revoked", revoked)
	return nil
}

func (s *AuthService) Sessions(ctx context.Context, userID uuid.UUID) ([]models.RefreshToken, error) {
	return s.Repo.ListSessionsForUser(ctx, userID, time.Now())
}

func (s *AuthService) PurgeExpired(ctx context.Context) (int64, error) {
	return s.Repo.PurgeExpired(ctx, time.Now())
}

func (s *AuthService) openSession(ctx context.Context, user *models.User, device repo.DeviceInfo) (*LoginResult, error) {
	accessToken, accessExp, err := s.Issuer.IssueAccessToken(user.ID, user.Role.String())
	if err != nil {
		return nil, err
	}

	rawRefresh, err := tokens.NewRefreshValue()
	if err != nil {
		return nil, err
	}
	refreshExp := time.Now().Add(s.RefreshTTL)

	if _, err := s.Repo.SaveRefreshToken(ctx, tokens.Sha256Hex(rawRefresh), user.ID, refreshExp, device); err != nil {
		return nil, err
	}

	return &LoginResult{
		User:         user,
		AccessToken:  accessToken,
		AccessExp:    accessExp,
		RefreshToken: rawRefresh,
		RefreshExp:   refreshExp,
	}, nil
}

// publish is best-effort: event delivery never fails an auth request.
func (s *AuthService) publish(ctx context.Context, topic, key string, event any) {
	if s.Producer == nil {
		return
	}
	if err := s.Producer.PublishEvent(ctx, topic, key, event); err != nil {
		logging.FromContext(ctx).Warn("event_publish_failed", "topic", topic, "error", err)
	}
}
