package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/vibast-solutions/ms-go-credentials/app/entity"
	"github.com/vibast-solutions/ms-go-credentials/app/repository"
	"github.com/vibast-solutions/ms-go-credentials/app/service"
	"github.com/vibast-solutions/ms-go-credentials/app/token"
	"github.com/vibast-solutions/ms-go-credentials/config"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"golang.org/x/crypto/bcrypt"
)

type fakeUsers struct {
	mu      sync.Mutex
	byID    map[uuid.UUID]entity.User
	failErr error
	updates int
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{byID: make(map[uuid.UUID]entity.User)}
}

func (r *fakeUsers) Create(_ context.Context, user *entity.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failErr != nil {
		return r.failErr
	}
	for _, u := range r.byID {
		if u.Email == user.Email {
			return repository.ErrDuplicate
		}
	}
	r.byID[user.ID] = *user
	return nil
}

func (r *fakeUsers) FindByID(_ context.Context, id uuid.UUID) (*entity.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failErr != nil {
		return nil, r.failErr
	}
	u, ok := r.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &u, nil
}

func (r *fakeUsers) FindByEmail(_ context.Context, email string) (*entity.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failErr != nil {
		return nil, r.failErr
	}
	for _, u := range r.byID {
		if u.Email == email {
			return &u, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *fakeUsers) Update(_ context.Context, user *entity.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failErr != nil {
		return r.failErr
	}
	if _, ok := r.byID[user.ID]; !ok {
		return repository.ErrNotFound
	}
	r.updates++
	user.UpdatedAt = time.Now()
	r.byID[user.ID] = *user
	return nil
}

type fakeBans struct {
	mu      sync.Mutex
	jtis    map[string]struct{}
	failErr error
}

func newFakeBans() *fakeBans {
	return &fakeBans{jtis: make(map[string]struct{})}
}

func (r *fakeBans) Ban(_ context.Context, jti string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failErr != nil {
		return false, r.failErr
	}
	if _, ok := r.jtis[jti]; ok {
		return false, nil
	}
	r.jtis[jti] = struct{}{}
	return true, nil
}

func (r *fakeBans) IsBanned(_ context.Context, jti string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failErr != nil {
		return false, r.failErr
	}
	_, ok := r.jtis[jti]
	return ok, nil
}

type fakeVerifications struct {
	mu      sync.Mutex
	byEmail map[string]entity.EmailVerification
	nextID  uint64
}

func newFakeVerifications() *fakeVerifications {
	return &fakeVerifications{byEmail: make(map[string]entity.EmailVerification)}
}

func (r *fakeVerifications) FindByEmail(_ context.Context, email string) (*entity.EmailVerification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.byEmail[email]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &v, nil
}

func (r *fakeVerifications) Create(_ context.Context, v *entity.EmailVerification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byEmail[v.Email]; ok {
		return repository.ErrDuplicate
	}
	r.nextID++
	v.ID = r.nextID
	r.byEmail[v.Email] = *v
	return nil
}

func (r *fakeVerifications) DeleteByEmail(_ context.Context, email string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byEmail, email)
	return nil
}

type fakePublisher struct {
	mu   sync.Mutex
	sent []entity.EmailMessage
	err  error
}

func (p *fakePublisher) SendEmail(_ context.Context, msg entity.EmailMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.sent = append(p.sent, msg)
	return nil
}

func (p *fakePublisher) messages() []entity.EmailMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]entity.EmailMessage(nil), p.sent...)
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type harness struct {
	cfg           *config.Config
	clock         *clock
	users         *fakeUsers
	bans          *fakeBans
	verifications *fakeVerifications
	publisher     *fakePublisher
	sessions      *service.SessionManager
	activation    *service.ActivationWorkflow
	mail          *service.MailService
	logs          *test.Hook
}

var errStorage = errors.New("storage unavailable")

func testConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{ServerURL: "https://auth.example.com"},
		JWT: config.JWTConfig{
			Secret:          "test-secret",
			Algorithm:       "HS256",
			AccessTokenTTL:  15 * time.Minute,
			RefreshTokenTTL: 7 * 24 * time.Hour,
		},
		Verification: config.VerificationConfig{CodeTTL: time.Hour},
		Password: config.PasswordConfig{
			Policy: config.PasswordPolicy{
				MinLength:        8,
				RequireUppercase: true,
				RequireLowercase: true,
				RequireNumber:    true,
			},
		},
	}
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	h := &harness{
		cfg:           testConfig(),
		clock:         &clock{now: time.Now()},
		users:         newFakeUsers(),
		bans:          newFakeBans(),
		verifications: newFakeVerifications(),
		publisher:     &fakePublisher{},
	}

	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	h.logs = hook

	codec, err := token.NewCodec(h.cfg.JWT.Secret, h.cfg.JWT.Algorithm, token.WithClock(h.clock.Now))
	if err != nil {
		t.Fatalf("failed to build codec: %v", err)
	}

	h.sessions = service.NewSessionManager(h.users, h.bans, codec, h.cfg,
		service.WithPasswordCost(bcrypt.MinCost),
		service.WithSessionLogger(logger),
	)
	h.mail = service.NewMailService(h.publisher, h.cfg.App.ServerURL, logger)
	h.activation = service.NewActivationWorkflow(h.users, h.verifications, h.mail, h.cfg,
		service.WithActivationClock(h.clock.Now),
		service.WithActivationLogger(logger),
	)
	return h
}
