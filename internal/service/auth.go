package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/creatify/internal/config"
	"github.com/creatify/internal/logger"
	"github.com/creatify/internal/model"
	"github.com/creatify/internal/repository"
	"github.com/creatify/internal/storage"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrEmailTaken         = errors.New("email already in use")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrNotVerified        = errors.New("account not verified")
	ErrInvalidCode        = errors.New("invalid verification code")
	ErrRateLimited        = errors.New("too many code requests")
	ErrInvalidToken       = errors.New("invalid token")
)

// dummyHash keeps Login timing flat when the email is unknown.
const dummyHash = "$2a$10$7EqJtq98hPqEX7fNZaFWoOHi6VbU5h6K9v8u5rO0m3j0h6dX5r8e"

const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
const codeLength = 4

// Users is the user persistence the auth flow needs.
type Users interface {
	Create(ctx context.Context, u *model.User) error
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	SetVerified(ctx context.Context, id int64) error
	SetVerificationCode(ctx context.Context, id int64, codeHash string) error
	SetPassword(ctx context.Context, id int64, passwordHash string) error
}

// Mailer delivers verification codes.
type Mailer interface {
	SendVerificationCode(ctx context.Context, to, code string) error
}

// AuthService implements registration with emailed verification codes,
// login with JWT issuance, and the password reset flow.
type AuthService struct {
	users  Users
	store  storage.Store
	mailer Mailer
	jwt    config.JWTConfig
}

func NewAuthService(users Users, store storage.Store, mailer Mailer, jwtCfg config.JWTConfig) *AuthService {
	return &AuthService{users: users, store: store, mailer: mailer, jwt: jwtCfg}
}

// Register creates an unverified account and emails a verification code.
func (s *AuthService) Register(ctx context.Context, name, email, password string) (*model.User, error) {
	defer logger.DeferLogDuration("auth.Register", time.Now())()
	email = normalizeEmail(email)

	if _, err := s.users.GetByEmail(ctx, email); err == nil {
		return nil, ErrEmailTaken
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("auth.Register lookup: %w", err)
	}

	if err := s.checkRateLimit(ctx, email); err != nil {
		return nil, err
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("auth.Register hash password: %w", err)
	}

	code, codeHash, err := newVerificationCode()
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	u := &model.User{
		Name:             name,
		Email:            email,
		PasswordHash:     string(passwordHash),
		VerificationCode: &codeHash,
		Verified:         false,
		LastSeen:         now,
		CreatedAt:        now,
	}
	if err := s.users.Create(ctx, u); err != nil {
		return nil, fmt.Errorf("auth.Register create: %w", err)
	}

	if err := s.mailer.SendVerificationCode(ctx, email, code); err != nil {
		return nil, fmt.Errorf("auth.Register send code: %w", err)
	}
	return u, nil
}

// Verify checks the emailed code and marks the account verified.
func (s *AuthService) Verify(ctx context.Context, email, code string) error {
	defer logger.DeferLogDuration("auth.Verify", time.Now())()
	u, err := s.users.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrInvalidCode
		}
		return fmt.Errorf("auth.Verify lookup: %w", err)
	}
	if err := s.compareCode(u, code); err != nil {
		return err
	}
	if err := s.users.SetVerified(ctx, u.ID); err != nil {
		return fmt.Errorf("auth.Verify: %w", err)
	}
	return nil
}

// Login authenticates a verified account and returns access and refresh
// tokens.
func (s *AuthService) Login(ctx context.Context, email, password string) (accessToken, refreshToken string, user *model.User, err error) {
	defer logger.DeferLogDuration("auth.Login", time.Now())()
	u, err := s.users.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		// Unknown email: dummy compare keeps the timing flat.
		bcrypt.CompareHashAndPassword([]byte(dummyHash), []byte(password))
		return "", "", nil, ErrInvalidCredentials
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return "", "", nil, ErrInvalidCredentials
	}
	if !u.Verified {
		return "", "", nil, ErrNotVerified
	}

	accessToken, err = s.signToken(u.ID, "access", s.jwt.AccessTTL)
	if err != nil {
		return "", "", nil, fmt.Errorf("auth.Login access token: %w", err)
	}
	refreshToken, err = s.signToken(u.ID, "refresh", s.jwt.RefreshTTL)
	if err != nil {
		return "", "", nil, fmt.Errorf("auth.Login refresh token: %w", err)
	}
	return accessToken, refreshToken, u, nil
}

// ForgotPassword issues a fresh verification code and flips the account
// back to unverified until the reset completes.
func (s *AuthService) ForgotPassword(ctx context.Context, email string) error {
	defer logger.DeferLogDuration("auth.ForgotPassword", time.Now())()
	email = normalizeEmail(email)
	u, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// Do not reveal whether the email exists.
			return nil
		}
		return fmt.Errorf("auth.ForgotPassword lookup: %w", err)
	}

	if err := s.checkRateLimit(ctx, email); err != nil {
		return err
	}

	code, codeHash, err := newVerificationCode()
	if err != nil {
		return err
	}
	if err := s.users.SetVerificationCode(ctx, u.ID, codeHash); err != nil {
		return fmt.Errorf("auth.ForgotPassword: %w", err)
	}
	if err := s.mailer.SendVerificationCode(ctx, email, code); err != nil {
		return fmt.Errorf("auth.ForgotPassword send code: %w", err)
	}
	return nil
}

// ResetPassword checks the reset code, stores the new password and
// re-verifies the account.
func (s *AuthService) ResetPassword(ctx context.Context, email, code, newPassword string) error {
	defer logger.DeferLogDuration("auth.ResetPassword", time.Now())()
	u, err := s.users.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrInvalidCode
		}
		return fmt.Errorf("auth.ResetPassword lookup: %w", err)
	}
	if err := s.compareCode(u, code); err != nil {
		return err
	}
	passwordHash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("auth.ResetPassword hash: %w", err)
	}
	if err := s.users.SetPassword(ctx, u.ID, string(passwordHash)); err != nil {
		return fmt.Errorf("auth.ResetPassword: %w", err)
	}
	if err := s.users.SetVerified(ctx, u.ID); err != nil {
		return fmt.Errorf("auth.ResetPassword verify: %w", err)
	}
	return nil
}

// ParseToken validates an access token and returns the user id it carries.
func (s *AuthService) ParseToken(tokenString string) (int64, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return []byte(s.jwt.Secret), nil
	})
	if err != nil || !token.Valid {
		return 0, ErrInvalidToken
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return 0, ErrInvalidToken
	}
	id, ok := claims["user_id"].(float64)
	if !ok {
		return 0, ErrInvalidToken
	}
	return int64(id), nil
}

func (s *AuthService) signToken(userID int64, tokenType string, ttl time.Duration) (string, error) {
	claims := jwt.MapClaims{
		"user_id": userID,
		"type":    tokenType,
		"exp":     time.Now().Add(ttl).Unix(),
		"iat":     time.Now().Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.jwt.Secret))
}

func (s *AuthService) checkRateLimit(ctx context.Context, email string) error {
	allowed, err := s.store.CheckRateLimit(ctx, email)
	if err != nil {
		return fmt.Errorf("auth rate limit: %w", err)
	}
	if !allowed {
		return ErrRateLimited
	}
	return nil
}

func (s *AuthService) compareCode(u *model.User, code string) error {
	if u.VerificationCode == nil {
		return ErrInvalidCode
	}
	code = strings.ToUpper(strings.TrimSpace(code))
	if bcrypt.CompareHashAndPassword([]byte(*u.VerificationCode), []byte(code)) != nil {
		return ErrInvalidCode
	}
	return nil
}

// newVerificationCode returns the plain code for the email and its bcrypt
// hash for storage.
func newVerificationCode() (code, hash string, err error) {
	buf := make([]byte, codeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", "", fmt.Errorf("auth generate code: %w", err)
	}
	chars := make([]byte, codeLength)
	for i, b := range buf {
		chars[i] = codeAlphabet[int(b)%len(codeAlphabet)]
	}
	code = string(chars)
	h, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
	if err != nil {
		return "", "", fmt.Errorf("auth hash code: %w", err)
	}
	return code, string(h), nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
