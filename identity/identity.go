// Package identity owns user accounts, credential checks and the signed
// bearer tokens every other component trusts for caller identity.
package identity

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"multiblog-api/apperr"
	"multiblog-api/models"
)

type UserStore interface {
	CreateUser(ctx context.Context, u models.User) (models.User, error)
	GetUserByID(ctx context.Context, id int64) (models.User, error)
	GetUserByEmail(ctx context.Context, email string) (models.User, error)
}

// Claims is the payload of a session token.
type Claims struct {
	UserID int64 `json:"uid"`
	jwt.RegisteredClaims
}

type Service struct {
	store    UserStore
	secret   []byte
	ttl      time.Duration
	cost     int
	validate *validator.Validate
	log      *logrus.Logger
	now      func() time.Time
	// compared against when the email is unknown so both failure paths
	// cost one bcrypt comparison
	dummyHash []byte
}

type Option func(*Service)

// WithBcryptCost lowers the hashing cost, e.g. bcrypt.MinCost in tests.
func WithBcryptCost(cost int) Option { return func(s *Service) { s.cost = cost } }

// WithClock overrides the time source used for token issue and expiry.
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

func New(store UserStore, secret string, ttl time.Duration, log *logrus.Logger, opts ...Option) *Service {
	s := &Service{
		store:    store,
		secret:   []byte(secret),
		ttl:      ttl,
		cost:     bcrypt.DefaultCost,
		validate: validator.New(),
		log:      log,
		now:      time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	s.dummyHash, _ = bcrypt.GenerateFromPassword([]byte("not-a-real-password"), s.cost)
	return s
}

// bcrypt rejects passwords longer than this many bytes.
const maxPasswordBytes = 72

type registration struct {
	Username string `validate:"required,max=50"`
	Email    string `validate:"required,email,max=254"`
	Password string `validate:"required"`
}

func (s *Service) Register(ctx context.Context, req models.RegisterReq) (models.AuthResp, error) {
	in := registration{
		Username: strings.TrimSpace(req.Username),
		Email:    strings.ToLower(strings.TrimSpace(req.Email)),
		Password: req.Password,
	}
	if err := s.validate.Struct(in); err != nil {
		return models.AuthResp{}, apperr.Validation(validationMessage(err))
	}
	if strings.ContainsAny(in.Username, " \t\r\n") {
		return models.AuthResp{}, apperr.Validation("username must not contain whitespace")
	}
	if len(in.Password) > maxPasswordBytes {
		return models.AuthResp{}, apperr.Validation("password is too long")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.cost)
	if err != nil {
		return models.AuthResp{}, apperr.Internal("hash password", err)
	}
	user, err := s.store.CreateUser(ctx, models.User{
		Username:     in.Username,
		Email:        in.Email,
		PasswordHash: string(hash),
	})
	if err != nil {
		return models.AuthResp{}, err
	}
	s.log.WithFields(logrus.Fields{"user_id": user.ID, "username": user.Username}).Info("user registered")
	return s.issue(user)
}

// Authenticate fails with the same error for unknown email and wrong
// password.
func (s *Service) Authenticate(ctx context.Context, req models.LoginReq) (models.AuthResp, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || req.Password == "" {
		return models.AuthResp{}, apperr.Authentication("invalid credentials")
	}
	user, err := s.store.GetUserByEmail(ctx, email)
	if apperr.Is(err, apperr.KindNotFound) {
		_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(req.Password))
		return models.AuthResp{}, apperr.Authentication("invalid credentials")
	}
	if err != nil {
		return models.AuthResp{}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return models.AuthResp{}, apperr.Authentication("invalid credentials")
	}
	return s.issue(user)
}

// VerifyToken checks signature and expiry and resolves the user, who must
// still exist.
func (s *Service) VerifyToken(ctx context.Context, token string) (models.User, error) {
	if token == "" {
		return models.User{}, apperr.Authentication("no token, authorization denied")
	}
	var claims Claims
	parsed, err := jwt.ParseWithClaims(token, &claims,
		func(t *jwt.Token) (any, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || !parsed.Valid || claims.UserID == 0 {
		return models.User{}, apperr.Authentication("token is not valid")
	}
	user, err := s.store.GetUserByID(ctx, claims.UserID)
	if apperr.Is(err, apperr.KindNotFound) {
		return models.User{}, apperr.Authentication("token is not valid")
	}
	if err != nil {
		return models.User{}, err
	}
	return user, nil
}

func (s *Service) issue(user models.User) (models.AuthResp, error) {
	now := s.now()
	claims := Claims{
		UserID: user.ID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(user.ID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return models.AuthResp{}, apperr.Internal("sign token", err)
	}
	return models.AuthResp{User: user, Token: signed}, nil
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "invalid input"
	}
	fe := verrs[0]
	field := strings.ToLower(fe.Field())
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "email":
		return "email is not valid"
	case "max":
		return field + " is too long"
	}
	return field + " is invalid"
}
