// Package auth gates the API behind email and password accounts. Sessions
// are HS256 tokens whose ID names a server-side record, so signing out
// revokes a token before it expires.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/time/rate"

	"github.com/mamadbah2/equiptrack/internal/config"
	"github.com/mamadbah2/equiptrack/internal/domain/models"
	"github.com/mamadbah2/equiptrack/internal/repository"
	"github.com/mamadbah2/equiptrack/internal/repository/sessions"
)

const issuer = "equiptrack"

type claims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// Listener receives session change events.
type Listener func(models.SessionEvent)

// Service implements sign up, sign in and session resolution.
type Service struct {
	users      repository.UserStore
	sessions   sessions.Store
	secret     []byte
	ttl        time.Duration
	perMinute  int
	minLength  int
	bcryptCost int
	now        func() time.Time
	logger     *zap.Logger

	limitMu   sync.Mutex
	limiters  map[string]*attemptLimiter
	lastSweep time.Time

	listenMu  sync.RWMutex
	listeners map[int]Listener
	nextID    int
	closed    bool
}

// NewService wires the auth service.
func NewService(users repository.UserStore, store sessions.Store, cfg config.AuthConfig, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 24 * time.Hour
	}
	if cfg.SignInPerMinute <= 0 {
		cfg.SignInPerMinute = 5
	}
	if cfg.MinPasswordLength <= 0 {
		cfg.MinPasswordLength = 6
	}
	return &Service{
		users:      users,
		sessions:   store,
		secret:     []byte(cfg.JWTSecret),
		ttl:        cfg.SessionTTL,
		perMinute:  cfg.SignInPerMinute,
		minLength:  cfg.MinPasswordLength,
		bcryptCost: bcrypt.DefaultCost,
		now:        time.Now,
		logger:     logger,
		limiters:   make(map[string]*attemptLimiter),
		listeners:  make(map[int]Listener),
	}
}

// SignUp creates an account and signs it in.
func (s *Service) SignUp(ctx context.Context, email, password string) (models.Session, error) {
	email, err := s.validateCredentials(email, password)
	if err != nil {
		return models.Session{}, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return models.Session{}, fmt.Errorf("hash password: %w", err)
	}
	user := models.User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: string(hash),
		CreatedAt:    s.now(),
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		return models.Session{}, fmt.Errorf("sign up %s: %w", email, err)
	}

	session, err := s.issue(ctx, user)
	if err != nil {
		return models.Session{}, err
	}
	s.logger.Info("account created", zap.String("user_id", user.ID))
	s.emit(models.SessionSignedUp, session)
	return session, nil
}

// SignIn checks the credentials and opens a session. Attempts are throttled
// per email address.
func (s *Service) SignIn(ctx context.Context, email, password string) (models.Session, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return models.Session{}, models.NewValidationError("credentials", "email and password are required")
	}
	if !s.allowSignIn(email) {
		s.logger.Warn("sign in throttled", zap.String("email", email))
		return models.Session{}, fmt.Errorf("sign in %s: %w", email, models.ErrRateLimited)
	}

	user, err := s.users.GetUserByEmail(ctx, email)
	if errors.Is(err, models.ErrNotFound) {
		return models.Session{}, fmt.Errorf("sign in %s: %w", email, models.ErrUnauthorized)
	}
	if err != nil {
		return models.Session{}, fmt.Errorf("load account %s: %w", email, err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return models.Session{}, fmt.Errorf("sign in %s: %w", email, models.ErrUnauthorized)
	}

	if err := s.users.TouchUserSignIn(ctx, user.ID, s.now()); err != nil {
		s.logger.Warn("record sign in", zap.String("user_id", user.ID), zap.Error(err))
	}
	session, err := s.issue(ctx, user)
	if err != nil {
		return models.Session{}, err
	}
	s.emit(models.SessionSignedIn, session)
	return session, nil
}

// SignOut revokes the session behind token.
func (s *Service) SignOut(ctx context.Context, token string) error {
	session, err := s.CurrentSession(ctx, token)
	if err != nil {
		return err
	}
	if err := s.sessions.Delete(ctx, session.ID); err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	s.emit(models.SessionSignedOut, session)
	return nil
}

// SignOutEverywhere revokes every session of the account behind token.
func (s *Service) SignOutEverywhere(ctx context.Context, token string) error {
	session, err := s.CurrentSession(ctx, token)
	if err != nil {
		return err
	}
	if err := s.sessions.RevokeAllForUser(ctx, session.UserID); err != nil {
		return fmt.Errorf("revoke sessions of %s: %w", session.UserID, err)
	}
	s.logger.Info("all sessions revoked", zap.String("user_id", session.UserID))
	s.emit(models.SessionSignedOut, session)
	return nil
}

// CurrentSession resolves a token to its live session.
func (s *Service) CurrentSession(ctx context.Context, token string) (models.Session, error) {
	if strings.TrimSpace(token) == "" {
		return models.Session{}, models.ErrUnauthorized
	}

	var c claims
	_, err := jwt.ParseWithClaims(token, &c, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return models.Session{}, fmt.Errorf("parse token: %w: %w", models.ErrUnauthorized, err)
	}

	session, err := s.sessions.Get(ctx, c.ID)
	if errors.Is(err, sessions.ErrSessionNotFound) {
		return models.Session{}, fmt.Errorf("session %s: %w", c.ID, models.ErrUnauthorized)
	}
	if err != nil {
		return models.Session{}, fmt.Errorf("load session: %w", err)
	}
	if session.UserID != c.Subject {
		return models.Session{}, fmt.Errorf("session %s subject mismatch: %w", c.ID, models.ErrUnauthorized)
	}
	return session, nil
}

// OnSessionChange registers fn for session events and returns a function
// that unregisters it.
func (s *Service) OnSessionChange(fn Listener) func() {
	s.listenMu.Lock()
	defer s.listenMu.Unlock()
	if s.closed {
		return func() {}
	}
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			s.listenMu.Lock()
			delete(s.listeners, id)
			s.listenMu.Unlock()
		})
	}
}

// Close releases every listener. Later registrations are ignored.
func (s *Service) Close() {
	s.listenMu.Lock()
	defer s.listenMu.Unlock()
	s.closed = true
	s.listeners = make(map[int]Listener)
}

func (s *Service) emit(kind models.SessionEventType, session models.Session) {
	event := models.SessionEvent{Type: kind, Session: session, At: s.now()}
	event.Session.Token = ""

	s.listenMu.RLock()
	targets := make([]Listener, 0, len(s.listeners))
	for _, fn := range s.listeners {
		targets = append(targets, fn)
	}
	s.listenMu.RUnlock()

	for _, fn := range targets {
		fn(event)
	}
}

func (s *Service) issue(ctx context.Context, user models.User) (models.Session, error) {
	now := s.now()
	session := models.Session{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		Email:     user.Email,
		IssuedAt:  now,
		ExpiresAt: now.Add(s.ttl),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Email: user.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        session.ID,
			Subject:   user.ID,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(session.IssuedAt),
			ExpiresAt: jwt.NewNumericDate(session.ExpiresAt),
		},
	})
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return models.Session{}, fmt.Errorf("sign session: %w", err)
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return models.Session{}, fmt.Errorf("store session: %w", err)
	}
	session.Token = signed
	return session, nil
}

// limiterIdle is how long an untouched limiter takes to refill its whole
// burst, after which dropping it changes nothing.
const limiterIdle = time.Minute

type attemptLimiter struct {
	*rate.Limiter
	lastSeen time.Time
}

// allowSignIn spends one sign in attempt of email. Limiters idle for
// limiterIdle are swept at most once per limiterIdle, so the map only holds
// emails seen in the last couple of minutes.
func (s *Service) allowSignIn(email string) bool {
	now := s.now()
	s.limitMu.Lock()
	defer s.limitMu.Unlock()

	if now.Sub(s.lastSweep) >= limiterIdle {
		for key, l := range s.limiters {
			if now.Sub(l.lastSeen) >= limiterIdle {
				delete(s.limiters, key)
			}
		}
		s.lastSweep = now
	}

	l, ok := s.limiters[email]
	if !ok {
		l = &attemptLimiter{Limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(s.perMinute)), s.perMinute)}
		s.limiters[email] = l
	}
	l.lastSeen = now
	return l.AllowN(now, 1)
}

func (s *Service) validateCredentials(email, password string) (string, error) {
	email = normalizeEmail(email)
	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		return "", models.NewValidationError("email", "is not a valid address")
	}
	if len(password) < s.minLength {
		return "", models.NewValidationError("password", fmt.Sprintf("must be at least %d characters", s.minLength))
	}
	return email, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
