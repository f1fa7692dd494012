package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/creatify/internal/config"
	"github.com/creatify/internal/model"
	"github.com/creatify/internal/repository"
	"github.com/creatify/internal/storage/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type fakeUsers struct {
	byEmail map[string]*model.User
	nextID  int64
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{byEmail: make(map[string]*model.User)}
}

func (f *fakeUsers) Create(ctx context.Context, u *model.User) error {
	f.nextID++
	u.ID = f.nextID
	cp := *u
	f.byEmail[u.Email] = &cp
	return nil
}

func (f *fakeUsers) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	u, ok := f.byEmail[email]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (f *fakeUsers) find(id int64) *model.User {
	for _, u := range f.byEmail {
		if u.ID == id {
			return u
		}
	}
	return nil
}

func (f *fakeUsers) SetVerified(ctx context.Context, id int64) error {
	u := f.find(id)
	if u == nil {
		return repository.ErrNotFound
	}
	u.Verified = true
	u.VerificationCode = nil
	return nil
}

func (f *fakeUsers) SetVerificationCode(ctx context.Context, id int64, codeHash string) error {
	u := f.find(id)
	if u == nil {
		return repository.ErrNotFound
	}
	u.VerificationCode = &codeHash
	u.Verified = false
	return nil
}

func (f *fakeUsers) SetPassword(ctx context.Context, id int64, passwordHash string) error {
	u := f.find(id)
	if u == nil {
		return repository.ErrNotFound
	}
	u.PasswordHash = passwordHash
	return nil
}

type fakeMailer struct {
	sent    []string // codes, in order
	to      []string
	sendErr error
}

func (f *fakeMailer) SendVerificationCode(ctx context.Context, to, code string) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.to = append(f.to, to)
	f.sent = append(f.sent, code)
	return nil
}

func newTestAuth() (*AuthService, *fakeUsers, *fakeMailer) {
	users := newFakeUsers()
	mailer := &fakeMailer{}
	svc := NewAuthService(users, memory.New(), mailer, config.JWTConfig{
		Secret:     "test-secret",
		AccessTTL:  time.Hour,
		RefreshTTL: time.Hour,
	})
	return svc, users, mailer
}

func TestRegisterCreatesUnverifiedUserAndEmailsCode(t *testing.T) {
	svc, users, mailer := newTestAuth()
	ctx := context.Background()

	u, err := svc.Register(ctx, "Ada", "Ada@Example.com", "s3cret")
	require.NoError(t, err)
	assert.False(t, u.Verified)
	assert.Equal(t, "ada@example.com", u.Email)

	stored := users.byEmail["ada@example.com"]
	require.NotNil(t, stored)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(stored.PasswordHash), []byte("s3cret")))

	require.Len(t, mailer.sent, 1)
	assert.Equal(t, []string{"ada@example.com"}, mailer.to)
	code := mailer.sent[0]
	assert.Len(t, code, codeLength)
	require.NotNil(t, stored.VerificationCode)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(*stored.VerificationCode), []byte(code)))
}

func TestRegisterDuplicateEmail(t *testing.T) {
	svc, _, _ := newTestAuth()
	ctx := context.Background()

	_, err := svc.Register(ctx, "Ada", "ada@example.com", "s3cret")
	require.NoError(t, err)
	_, err = svc.Register(ctx, "Eve", "ada@example.com", "other")
	assert.ErrorIs(t, err, ErrEmailTaken)
}

func TestVerify(t *testing.T) {
	svc, users, mailer := newTestAuth()
	ctx := context.Background()
	_, err := svc.Register(ctx, "Ada", "ada@example.com", "s3cret")
	require.NoError(t, err)
	code := mailer.sent[0]

	assert.ErrorIs(t, svc.Verify(ctx, "ada@example.com", "XXXX"), ErrInvalidCode)
	assert.ErrorIs(t, svc.Verify(ctx, "nobody@example.com", code), ErrInvalidCode)

	require.NoError(t, svc.Verify(ctx, "ada@example.com", code))
	stored := users.byEmail["ada@example.com"]
	assert.True(t, stored.Verified)
	assert.Nil(t, stored.VerificationCode, "code is cleared so it cannot be replayed")

	// The code is single-use.
	assert.ErrorIs(t, svc.Verify(ctx, "ada@example.com", code), ErrInvalidCode)
}

func TestLogin(t *testing.T) {
	svc, _, mailer := newTestAuth()
	ctx := context.Background()
	_, err := svc.Register(ctx, "Ada", "ada@example.com", "s3cret")
	require.NoError(t, err)

	_, _, _, err = svc.Login(ctx, "ada@example.com", "s3cret")
	assert.ErrorIs(t, err, ErrNotVerified)

	require.NoError(t, svc.Verify(ctx, "ada@example.com", mailer.sent[0]))

	_, _, _, err = svc.Login(ctx, "ada@example.com", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, _, _, err = svc.Login(ctx, "nobody@example.com", "s3cret")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	access, refresh, u, err := svc.Login(ctx, "ada@example.com", "s3cret")
	require.NoError(t, err)
	assert.NotEmpty(t, refresh)
	assert.NotEqual(t, access, refresh)

	userID, err := svc.ParseToken(access)
	require.NoError(t, err)
	assert.Equal(t, u.ID, userID)
}

func TestParseTokenRejectsGarbage(t *testing.T) {
	svc, _, _ := newTestAuth()
	_, err := svc.ParseToken("not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestForgotPasswordUnknownEmailIsSilent(t *testing.T) {
	svc, _, mailer := newTestAuth()
	err := svc.ForgotPassword(context.Background(), "nobody@example.com")
	assert.NoError(t, err)
	assert.Empty(t, mailer.sent)
}

func TestPasswordResetFlow(t *testing.T) {
	svc, users, mailer := newTestAuth()
	ctx := context.Background()
	_, err := svc.Register(ctx, "Ada", "ada@example.com", "s3cret")
	require.NoError(t, err)
	require.NoError(t, svc.Verify(ctx, "ada@example.com", mailer.sent[0]))

	require.NoError(t, svc.ForgotPassword(ctx, "ada@example.com"))
	require.Len(t, mailer.sent, 2)
	stored := users.byEmail["ada@example.com"]
	assert.False(t, stored.Verified, "account is unverified until the reset completes")

	resetCode := mailer.sent[1]
	assert.ErrorIs(t, svc.ResetPassword(ctx, "ada@example.com", "XXXX", "newpass"), ErrInvalidCode)
	require.NoError(t, svc.ResetPassword(ctx, "ada@example.com", resetCode, "newpass"))

	assert.True(t, stored.Verified)
	_, _, _, err = svc.Login(ctx, "ada@example.com", "s3cret")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, _, _, err = svc.Login(ctx, "ada@example.com", "newpass")
	assert.NoError(t, err)
}

func TestCodeRequestsAreRateLimited(t *testing.T) {
	svc, _, mailer := newTestAuth()
	ctx := context.Background()
	_, err := svc.Register(ctx, "Ada", "ada@example.com", "s3cret")
	require.NoError(t, err)

	var limited bool
	for i := 0; i < 15; i++ {
		err := svc.ForgotPassword(ctx, "ada@example.com")
		if errors.Is(err, ErrRateLimited) {
			limited = true
			break
		}
		require.NoError(t, err)
	}
	assert.True(t, limited)
	assert.Less(t, len(mailer.sent), 12)
}
