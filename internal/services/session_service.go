package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gorm.io/gorm"

	"github.com/tbourn/smsbridge-chat/internal/domain"
	"github.com/tbourn/smsbridge-chat/internal/repo"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// SessionService turns a phone number into an explicit, signed session.
// Identity is the phone number alone; admin is the profile whose number
// matches the configured admin phone.
type SessionService struct {
	DB         *gorm.DB
	AdminPhone string
	Secret     []byte
	TTL        time.Duration
	Now        func() time.Time
}

// Claims is the JWT body backing a domain.Session.
type Claims struct {
	ProfileID string `json:"profile_id"`
	Phone     string `json:"phone"`
	Admin     bool   `json:"admin"`
	jwt.RegisteredClaims
}

// Login is the result of Register/Login.
type Login struct {
	Profile *domain.Profile `json:"profile"`
	Session domain.Session  `json:"session"`
	Token   string          `json:"token"`
}

// Register creates a profile for phone, or returns the existing one.
func (s *SessionService) Register(ctx context.Context, phone, name string) (*Login, error) {
	tr := otel.Tracer("services/SessionService")
	ctx, span := tr.Start(ctx, "Register")
	defer span.End()

	norm, ok := domain.NormalizePhone(phone)
	if !ok {
		return nil, validationErr("Register", "invalid phone number")
	}
	p, err := repo.EnsureProfile(ctx, s.DB, norm, normalizeName(name))
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("profile.id", p.ID))
	return s.issue(p)
}

// Login looks a phone number up; unknown numbers are NotFound.
func (s *SessionService) Login(ctx context.Context, phone string) (*Login, error) {
	tr := otel.Tracer("services/SessionService")
	ctx, span := tr.Start(ctx, "Login")
	defer span.End()

	norm, ok := domain.NormalizePhone(phone)
	if !ok {
		return nil, validationErr("Login", "invalid phone number")
	}
	p, err := repo.GetProfileByPhone(ctx, s.DB, norm)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, notFoundErr("Login", "no account for this phone number")
	}
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("profile.id", p.ID), attribute.Bool("admin", s.IsAdminPhone(p.PhoneNumber)))
	return s.issue(p)
}

// EnsureAdmin creates the admin profile if missing.
func (s *SessionService) EnsureAdmin(ctx context.Context) (*domain.Profile, error) {
	norm, ok := domain.NormalizePhone(s.AdminPhone)
	if !ok {
		return nil, validationErr("EnsureAdmin", "invalid admin phone number")
	}
	return repo.EnsureProfile(ctx, s.DB, norm, "Hilbert")
}

// IsAdminPhone compares normalized numbers.
func (s *SessionService) IsAdminPhone(phone string) bool {
	a, okA := domain.NormalizePhone(s.AdminPhone)
	b, okB := domain.NormalizePhone(phone)
	return okA && okB && a == b
}

// Verify is the single entry point that turns a token into a session.
func (s *SessionService) Verify(ctx context.Context, token string) (domain.Session, error) {
	_, span := otel.Tracer("services/SessionService").Start(ctx, "Verify", trace.WithSpanKind(trace.SpanKindInternal))
	defer span.End()

	token = strings.TrimSpace(token)
	if token == "" {
		return domain.Session{}, &Error{Kind: ErrUnauthorized, Op: "Verify", Reason: "missing session token"}
	}
	var c Claims
	parsed, err := jwt.ParseWithClaims(token, &c, func(t *jwt.Token) (any, error) {
		return s.Secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || !parsed.Valid || c.ProfileID == "" {
		return domain.Session{}, &Error{Kind: ErrUnauthorized, Op: "Verify", Reason: "invalid or expired session", Err: err}
	}

	sess := domain.Session{
		ID:          c.ID,
		ProfileID:   c.ProfileID,
		PhoneNumber: c.Phone,
		// Re-derive from configuration so a changed admin phone revokes admin tokens.
		IsAdmin: c.Admin && s.IsAdminPhone(c.Phone),
	}
	if c.ExpiresAt != nil {
		sess.ExpiresAt = c.ExpiresAt.Time
	}
	return sess, nil
}

func (s *SessionService) issue(p *domain.Profile) (*Login, error) {
	now := s.now()
	ttl := s.TTL
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	sess := domain.Session{
		ID:          uuid.NewString(),
		ProfileID:   p.ID,
		PhoneNumber: p.PhoneNumber,
		IsAdmin:     s.IsAdminPhone(p.PhoneNumber),
		ExpiresAt:   now.Add(ttl).Truncate(time.Second),
	}
	claims := Claims{
		ProfileID: sess.ProfileID,
		Phone:     sess.PhoneNumber,
		Admin:     sess.IsAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        sess.ID,
			Subject:   p.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(sess.ExpiresAt),
		},
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.Secret)
	if err != nil {
		return nil, err
	}
	return &Login{Profile: p, Session: sess, Token: tok}, nil
}

func (s *SessionService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func normalizeName(name string) string {
	name = strings.Join(strings.Fields(name), " ")
	if name == "" {
		return ""
	}
	// Casers carry state; one per call.
	return cases.Title(language.Und).String(name)
}
