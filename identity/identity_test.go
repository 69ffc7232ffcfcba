package identity

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"multiblog-api/apperr"
	"multiblog-api/models"
	"multiblog-api/repository/memory"
)

const secret = "test-secret"

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func newService(store UserStore, opts ...Option) *Service {
	opts = append([]Option{WithBcryptCost(bcrypt.MinCost)}, opts...)
	return New(store, secret, time.Hour, quietLogger(), opts...)
}

func TestRegister(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	svc := newService(store)

	resp, err := svc.Register(ctx, models.RegisterReq{Username: " alice ", Email: "Alice@Example.com", Password: "Password123!"})
	require.NoError(t, err)
	assert.Equal(t, "alice", resp.User.Username)
	assert.Equal(t, "alice@example.com", resp.User.Email)
	assert.NotEmpty(t, resp.Token)

	stored, err := store.GetUserByEmail(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.NotEqual(t, "Password123!", stored.PasswordHash, "plaintext is never stored")
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(stored.PasswordHash), []byte("Password123!")))

	user, err := svc.VerifyToken(ctx, resp.Token)
	require.NoError(t, err)
	assert.Equal(t, resp.User.ID, user.ID)
}

func TestRegister_SameEmailTwice(t *testing.T) {
	ctx := context.Background()
	svc := newService(memory.New())

	_, err := svc.Register(ctx, models.RegisterReq{Username: "alice", Email: "alice@example.com", Password: "pw"})
	require.NoError(t, err)

	_, err = svc.Register(ctx, models.RegisterReq{Username: "alice2", Email: "ALICE@example.com", Password: "pw"})
	assert.True(t, apperr.Is(err, apperr.KindConflict))

	_, err = svc.Register(ctx, models.RegisterReq{Username: "alice", Email: "new@example.com", Password: "pw"})
	assert.True(t, apperr.Is(err, apperr.KindConflict))
}

func TestRegister_Validation(t *testing.T) {
	svc := newService(memory.New())
	cases := map[string]models.RegisterReq{
		"empty username":     {Username: "", Email: "a@example.com", Password: "pw"},
		"blank username":     {Username: "   ", Email: "a@example.com", Password: "pw"},
		"spaced username":    {Username: "a b", Email: "a@example.com", Password: "pw"},
		"empty email":        {Username: "a", Email: "", Password: "pw"},
		"malformed email":    {Username: "a", Email: "not-an-email", Password: "pw"},
		"empty password":     {Username: "a", Email: "a@example.com", Password: ""},
		"oversize password":  {Username: "a", Email: "a@example.com", Password: strings.Repeat("p", 73)},
		"multibyte password": {Username: "a", Email: "a@example.com", Password: strings.Repeat("é", 40)},
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.Register(context.Background(), req)
			assert.True(t, apperr.Is(err, apperr.KindValidation), "got %v", err)
		})
	}
}

func TestRegister_PasswordAtByteLimit(t *testing.T) {
	svc := newService(memory.New())
	// 36 two-byte runes is exactly 72 bytes
	_, err := svc.Register(context.Background(), models.RegisterReq{Username: "a", Email: "a@example.com", Password: strings.Repeat("é", 36)})
	require.NoError(t, err)

	_, err = svc.Register(context.Background(), models.RegisterReq{Username: "b", Email: "b@example.com", Password: strings.Repeat("é", 37)})
	assert.Equal(t, "password is too long", apperr.Message(err))
}

func TestAuthenticate(t *testing.T) {
	ctx := context.Background()
	svc := newService(memory.New())
	_, err := svc.Register(ctx, models.RegisterReq{Username: "alice", Email: "alice@example.com", Password: "pw"})
	require.NoError(t, err)

	resp, err := svc.Authenticate(ctx, models.LoginReq{Email: "ALICE@example.com", Password: "pw"})
	require.NoError(t, err)
	assert.Equal(t, "alice", resp.User.Username)

	_, wrongPw := svc.Authenticate(ctx, models.LoginReq{Email: "alice@example.com", Password: "nope"})
	_, unknown := svc.Authenticate(ctx, models.LoginReq{Email: "bob@example.com", Password: "pw"})
	require.Error(t, wrongPw)
	require.Error(t, unknown)
	assert.True(t, apperr.Is(wrongPw, apperr.KindAuthentication))
	assert.Equal(t, wrongPw.Error(), unknown.Error(), "unknown email and wrong password look the same")
}

func TestVerifyToken_Rejects(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	svc := newService(store)
	resp, err := svc.Register(ctx, models.RegisterReq{Username: "alice", Email: "alice@example.com", Password: "pw"})
	require.NoError(t, err)

	past := func() time.Time { return time.Now().Add(-3 * time.Hour) }
	expired, err := newService(store, WithClock(past)).issue(resp.User)
	require.NoError(t, err)

	otherKey, err := New(store, "other-secret", time.Hour, quietLogger(), WithBcryptCost(bcrypt.MinCost)).issue(resp.User)
	require.NoError(t, err)

	noneAlg, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{UserID: resp.User.ID}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	cases := map[string]string{
		"empty":     "",
		"garbage":   "not.a.token",
		"expired":   expired.Token,
		"wrong key": otherKey.Token,
		"unsigned":  noneAlg,
		"tampered":  tamper(resp.Token),
	}
	for name, tok := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.VerifyToken(ctx, tok)
			assert.True(t, apperr.Is(err, apperr.KindAuthentication), "got %v", err)
		})
	}
}

// tamper flips one character inside the signature segment.
func tamper(token string) string {
	i := strings.LastIndex(token, ".") + 3
	b := []byte(token)
	if b[i] == 'A' {
		b[i] = 'B'
	} else {
		b[i] = 'A'
	}
	return string(b)
}

type vanishedUsers struct {
	*memory.Store
}

func (vanishedUsers) GetUserByID(context.Context, int64) (models.User, error) {
	return models.User{}, apperr.NotFound("user not found")
}

func TestVerifyToken_UserGone(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	resp, err := newService(store).Register(ctx, models.RegisterReq{Username: "alice", Email: "alice@example.com", Password: "pw"})
	require.NoError(t, err)

	_, err = newService(vanishedUsers{store}).VerifyToken(ctx, resp.Token)
	assert.True(t, apperr.Is(err, apperr.KindAuthentication))
}
