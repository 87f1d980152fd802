package usecase

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bazarhub/auth-service/internal/core/domain"
	"github.com/bazarhub/auth-service/internal/core/port"
	"github.com/bazarhub/auth-service/internal/repository"
)

// stubUserRepo keeps users in a map keyed by id.
type stubUserRepo struct {
	mu    sync.Mutex
	users map[string]domain.User
}

func newStubUserRepo(users ...domain.User) *stubUserRepo {
	repo := &stubUserRepo{users: make(map[string]domain.User)}
	for _, user := range users {
		repo.users[user.ID] = user
	}
	return repo
}

func (r *stubUserRepo) Create(_ context.Context, user domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[user.ID]; ok {
		return repository.ErrConflict
	}
	r.users[user.ID] = user
	return nil
}

func (r *stubUserRepo) GetByID(_ context.Context, id string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if user, ok := r.users[id]; ok {
		copied := user
		return &copied, nil
	}
	return nil, repository.ErrNotFound
}

func (r *stubUserRepo) findBy(match func(domain.User) bool) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, user := range r.users {
		if match(user) {
			copied := user
			return &copied, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *stubUserRepo) GetByIdentifier(_ context.Context, identifier string) (*domain.User, error) {
	return r.findBy(func(u domain.User) bool {
		return u.Username == identifier || u.Email == identifier || (u.Phone != nil && *u.Phone == identifier)
	})
}

func (r *stubUserRepo) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	return r.findBy(func(u domain.User) bool { return u.Email == email })
}

func (r *stubUserRepo) GetByPhone(_ context.Context, phone string) (*domain.User, error) {
	return r.findBy(func(u domain.User) bool { return u.Phone != nil && *u.Phone == phone })
}

func (r *stubUserRepo) update(id string, mutate func(*domain.User)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	mutate(&user)
	r.users[id] = user
	return nil
}

func (r *stubUserRepo) UpdatePassword(_ context.Context, id, passwordHash, passwordAlgo string, changedAt time.Time) error {
	return r.update(id, func(u *domain.User) {
		u.PasswordHash = passwordHash
		u.PasswordAlgo = passwordAlgo
		u.LastPasswordChange = changedAt
	})
}

func (r *stubUserRepo) RecordLoginSuccess(_ context.Context, id string, at time.Time, ip *string) error {
	return r.update(id, func(u *domain.User) {
		u.FailedLoginAttempts = 0
		u.LockedUntil = nil
		u.LastLogin = &at
		u.LastLoginIP = ip
	})
}

func (r *stubUserRepo) RecordLoginFailure(_ context.Context, id string, threshold int, lockUntil time.Time) (int, bool, error) {
	var attempts int
	var locked bool
	err := r.update(id, func(u *domain.User) {
		u.FailedLoginAttempts++
		attempts = u.FailedLoginAttempts
		if attempts >= threshold {
			u.LockedUntil = &lockUntil
			locked = true
		}
	})
	return attempts, locked, err
}

func (r *stubUserRepo) ResetFailedAttempts(_ context.Context, id string) error {
	return r.update(id, func(u *domain.User) { u.FailedLoginAttempts = 0 })
}

func (r *stubUserRepo) Lock(_ context.Context, id string, until time.Time) error {
	return r.update(id, func(u *domain.User) { u.LockedUntil = &until })
}

func (r *stubUserRepo) Unlock(_ context.Context, id string) error {
	return r.update(id, func(u *domain.User) {
		u.FailedLoginAttempts = 0
		u.LockedUntil = nil
	})
}

func (r *stubUserRepo) SetEmailVerified(_ context.Context, id, email string) error {
	return r.update(id, func(u *domain.User) {
		u.Email = email
		u.EmailVerified = true
	})
}

func (r *stubUserRepo) SetPhoneVerified(_ context.Context, id string) error {
	return r.update(id, func(u *domain.User) { u.PhoneVerified = true })
}

var _ port.UserRepository = (*stubUserRepo)(nil)

// stubOTPRepo stores codes in insertion order.
type stubOTPRepo struct {
	mu    sync.Mutex
	codes []domain.OTPCode
}

func (r *stubOTPRepo) Create(_ context.Context, code domain.OTPCode) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.codes = append(r.codes, code)
	return nil
}

func (r *stubOTPRepo) LatestActive(_ context.Context, contact string, purpose domain.OTPPurpose) (*domain.OTPCode, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.codes) - 1; i >= 0; i-- {
		code := r.codes[i]
		if code.Contact == contact && code.Purpose == purpose && !code.Used {
			copied := code
			return &copied, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *stubOTPRepo) InvalidateActive(_ context.Context, contact string, purpose domain.OTPPurpose) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for i := range r.codes {
		if r.codes[i].Contact == contact && r.codes[i].Purpose == purpose && !r.codes[i].Used {
			r.codes[i].Used = true
			count++
		}
	}
	return count, nil
}

func (r *stubOTPRepo) MarkUsed(_ context.Context, id string, usedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.codes {
		if r.codes[i].ID == id && !r.codes[i].Used {
			r.codes[i].Used = true
			r.codes[i].UsedAt = &usedAt
			return nil
		}
	}
	return repository.ErrNotFound
}

func (r *stubOTPRepo) IncrementAttempts(_ context.Context, id string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.codes {
		if r.codes[i].ID == id {
			r.codes[i].Attempts++
			return r.codes[i].Attempts, nil
		}
	}
	return 0, repository.ErrNotFound
}

func (r *stubOTPRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.codes {
		if r.codes[i].ID == id {
			r.codes = append(r.codes[:i], r.codes[i+1:]...)
			return nil
		}
	}
	return repository.ErrNotFound
}

func (r *stubOTPRepo) DeleteExpired(_ context.Context, before time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.codes[:0]
	var removed int64
	for _, code := range r.codes {
		if code.ExpiresAt.Before(before) {
			removed++
			continue
		}
		kept = append(kept, code)
	}
	r.codes = kept
	return removed, nil
}

var _ port.OTPRepository = (*stubOTPRepo)(nil)

// stubTokenRepo stores reset and verification tokens.
type stubTokenRepo struct {
	mu            sync.Mutex
	resets        []domain.PasswordResetToken
	verifications []domain.EmailVerificationToken
}

func (r *stubTokenRepo) CreatePasswordReset(_ context.Context, token domain.PasswordResetToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resets = append(r.resets, token)
	return nil
}

func (r *stubTokenRepo) GetPasswordResetByHash(_ context.Context, hash string) (*domain.PasswordResetToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, token := range r.resets {
		if token.TokenHash == hash {
			copied := token
			return &copied, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *stubTokenRepo) ConsumePasswordReset(_ context.Context, id string, usedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.resets {
		if r.resets[i].ID == id && r.resets[i].UsedAt == nil && r.resets[i].RevokedAt == nil {
			r.resets[i].UsedAt = &usedAt
			return nil
		}
	}
	return repository.ErrNotFound
}

func (r *stubTokenRepo) RevokeActivePasswordResets(_ context.Context, userID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	count := 0
	for i := range r.resets {
		if r.resets[i].UserID == userID && r.resets[i].UsedAt == nil && r.resets[i].RevokedAt == nil {
			r.resets[i].RevokedAt = &now
			count++
		}
	}
	return count, nil
}

func (r *stubTokenRepo) CreateEmailVerification(_ context.Context, token domain.EmailVerificationToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.verifications = append(r.verifications, token)
	return nil
}

func (r *stubTokenRepo) GetEmailVerification(_ context.Context, token string) (*domain.EmailVerificationToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, record := range r.verifications {
		if record.Token == token {
			copied := record
			return &copied, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *stubTokenRepo) ConsumeEmailVerification(_ context.Context, id string, usedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.verifications {
		if r.verifications[i].ID == id {
			r.verifications[i].UsedAt = &usedAt
			return nil
		}
	}
	return repository.ErrNotFound
}

func (r *stubTokenRepo) InvalidateEmailVerifications(_ context.Context, userID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	count := 0
	for i := range r.verifications {
		if r.verifications[i].UserID == userID && r.verifications[i].UsedAt == nil {
			r.verifications[i].UsedAt = &now
			count++
		}
	}
	return count, nil
}

func (r *stubTokenRepo) DeleteEmailVerification(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.verifications {
		if r.verifications[i].ID == id {
			r.verifications = append(r.verifications[:i], r.verifications[i+1:]...)
			return nil
		}
	}
	return repository.ErrNotFound
}

func (r *stubTokenRepo) DeleteExpired(_ context.Context, before time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var removed int64
	keptResets := r.resets[:0]
	for _, token := range r.resets {
		if token.ExpiresAt.Before(before) {
			removed++
			continue
		}
		keptResets = append(keptResets, token)
	}
	r.resets = keptResets
	return removed, nil
}

var _ port.TokenRepository = (*stubTokenRepo)(nil)

// stubSessionRepo stores sessions keyed by (user, session key).
type stubSessionRepo struct {
	mu       sync.Mutex
	sessions []domain.UserSession
}

func (r *stubSessionRepo) Upsert(_ context.Context, session domain.UserSession) (*domain.UserSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.sessions {
		if r.sessions[i].UserID == session.UserID && r.sessions[i].SessionKey == session.SessionKey {
			created := r.sessions[i].CreatedAt
			id := r.sessions[i].ID
			r.sessions[i] = session
			r.sessions[i].ID = id
			r.sessions[i].CreatedAt = created
			r.sessions[i].IsActive = true
			r.sessions[i].LastActivity = session.CreatedAt
			copied := r.sessions[i]
			return &copied, nil
		}
	}
	session.IsActive = true
	session.LastActivity = session.CreatedAt
	r.sessions = append(r.sessions, session)
	copied := session
	return &copied, nil
}

func (r *stubSessionRepo) GetByID(_ context.Context, userID, sessionID string) (*domain.UserSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, session := range r.sessions {
		if session.UserID == userID && session.ID == sessionID {
			copied := session
			return &copied, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *stubSessionRepo) GetByKey(_ context.Context, userID, sessionKey string) (*domain.UserSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, session := range r.sessions {
		if session.UserID == userID && session.SessionKey == sessionKey {
			copied := session
			return &copied, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *stubSessionRepo) ListActiveByUser(_ context.Context, userID string) ([]domain.UserSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var active []domain.UserSession
	for _, session := range r.sessions {
		if session.UserID == userID && session.IsActive {
			active = append(active, session)
		}
	}
	sort.Slice(active, func(i, j int) bool {
		return active[i].LastActivity.After(active[j].LastActivity)
	})
	return active, nil
}

func (r *stubSessionRepo) Touch(_ context.Context, sessionKey string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.sessions {
		if r.sessions[i].SessionKey == sessionKey && r.sessions[i].IsActive {
			r.sessions[i].LastActivity = at
		}
	}
	return nil
}

func (r *stubSessionRepo) Terminate(_ context.Context, userID, sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.sessions {
		if r.sessions[i].UserID == userID && r.sessions[i].ID == sessionID && r.sessions[i].IsActive {
			r.sessions[i].IsActive = false
			return nil
		}
	}
	return repository.ErrNotFound
}

func (r *stubSessionRepo) TerminateByKey(_ context.Context, userID, sessionKey string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.sessions {
		if r.sessions[i].UserID == userID && r.sessions[i].SessionKey == sessionKey && r.sessions[i].IsActive {
			r.sessions[i].IsActive = false
			return nil
		}
	}
	return repository.ErrNotFound
}

func (r *stubSessionRepo) TerminateAllExcept(_ context.Context, userID, keepSessionKey string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for i := range r.sessions {
		if r.sessions[i].UserID == userID && r.sessions[i].IsActive && r.sessions[i].SessionKey != keepSessionKey {
			r.sessions[i].IsActive = false
			count++
		}
	}
	return count, nil
}

func (r *stubSessionRepo) DeleteInactiveBefore(_ context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.sessions[:0]
	var removed int64
	for _, session := range r.sessions {
		if !session.IsActive && session.LastActivity.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, session)
	}
	r.sessions = kept
	return removed, nil
}

var _ port.SessionRepository = (*stubSessionRepo)(nil)

// stubSecurityLogRepo appends entries and supports a simple summary.
type stubSecurityLogRepo struct {
	mu        sync.Mutex
	entries   []domain.SecurityLog
	insertErr error
}

func (r *stubSecurityLogRepo) Insert(_ context.Context, entry domain.SecurityLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.insertErr != nil {
		return r.insertErr
	}
	r.entries = append(r.entries, entry)
	return nil
}

func (r *stubSecurityLogRepo) ListByUser(_ context.Context, userID string, since time.Time, limit int) ([]domain.SecurityLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.SecurityLog
	for i := len(r.entries) - 1; i >= 0 && len(out) < limit; i-- {
		entry := r.entries[i]
		if entry.UserID != nil && *entry.UserID == userID && !entry.CreatedAt.Before(since) {
			out = append(out, entry)
		}
	}
	return out, nil
}

func (r *stubSecurityLogRepo) Summarize(_ context.Context, userID string, since time.Time) (*domain.SecuritySummary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	summary := &domain.SecuritySummary{}
	ips := map[string]struct{}{}
	for _, entry := range r.entries {
		if entry.UserID == nil || *entry.UserID != userID || entry.CreatedAt.Before(since) {
			continue
		}
		summary.TotalEvents++
		switch entry.EventType {
		case domain.EventLoginFailed:
			summary.FailedLogins++
		case domain.EventLoginSuccess:
			summary.SuccessfulLogins++
		case domain.EventOTPFailed:
			summary.OTPFailures++
		case domain.EventLoginLocked:
			summary.AccountLocks++
		}
		if entry.Severity == domain.SeverityHigh || entry.Severity == domain.SeverityCritical {
			summary.HighSeverityEvents++
		}
		if entry.IP != nil {
			ips[*entry.IP] = struct{}{}
		}
	}
	summary.UniqueIPs = len(ips)
	return summary, nil
}

func (r *stubSecurityLogRepo) CountFailuresByIP(_ context.Context, ip string, since time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, entry := range r.entries {
		if entry.EventType == domain.EventLoginFailed && entry.IP != nil && *entry.IP == ip && !entry.CreatedAt.Before(since) {
			count++
		}
	}
	return count, nil
}

func (r *stubSecurityLogRepo) CountLocksByUser(_ context.Context, userID string, since time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, entry := range r.entries {
		if entry.EventType == domain.EventLoginLocked && entry.UserID != nil && *entry.UserID == userID && !entry.CreatedAt.Before(since) {
			count++
		}
	}
	return count, nil
}

func (r *stubSecurityLogRepo) DeleteOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.entries[:0]
	var removed int64
	for _, entry := range r.entries {
		if entry.CreatedAt.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, entry)
	}
	r.entries = kept
	return removed, nil
}

func (r *stubSecurityLogRepo) hasEvent(eventType domain.SecurityEventType) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, entry := range r.entries {
		if entry.EventType == eventType {
			return true
		}
	}
	return false
}

var _ port.SecurityLogRepository = (*stubSecurityLogRepo)(nil)

// stubCounterCache keeps counters and flags in maps. Setting failAll makes
// every call error, for fail-open tests.
type stubCounterCache struct {
	mu      sync.Mutex
	counts  map[string]int
	ttls    map[string]time.Duration
	flags   map[string]bool
	failAll bool
}

func newStubCounterCache() *stubCounterCache {
	return &stubCounterCache{
		counts: map[string]int{},
		ttls:   map[string]time.Duration{},
		flags:  map[string]bool{},
	}
}

func (c *stubCounterCache) GetCount(_ context.Context, key string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failAll {
		return 0, errors.New("cache unavailable")
	}
	return c.counts[key], nil
}

func (c *stubCounterCache) SetCount(_ context.Context, key string, value int, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failAll {
		return errors.New("cache unavailable")
	}
	c.counts[key] = value
	c.ttls[key] = ttl
	return nil
}

func (c *stubCounterCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failAll {
		return errors.New("cache unavailable")
	}
	delete(c.counts, key)
	delete(c.flags, key)
	return nil
}

func (c *stubCounterCache) SetFlag(_ context.Context, key string, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failAll {
		return errors.New("cache unavailable")
	}
	c.flags[key] = true
	c.ttls[key] = ttl
	return nil
}

func (c *stubCounterCache) HasFlag(_ context.Context, key string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failAll {
		return false, errors.New("cache unavailable")
	}
	return c.flags[key], nil
}

var _ port.CounterCache = (*stubCounterCache)(nil)

// stubSMS records dispatched codes; failing makes dispatch error.
type stubSMS struct {
	mu      sync.Mutex
	sent    []string
	codes   []string
	failing bool
}

func (s *stubSMS) SendOTP(_ context.Context, phone, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing {
		return errors.New("sms gateway down")
	}
	s.sent = append(s.sent, phone)
	s.codes = append(s.codes, code)
	return nil
}

func (s *stubSMS) lastCode() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.codes) == 0 {
		return ""
	}
	return s.codes[len(s.codes)-1]
}

var _ port.SMSSender = (*stubSMS)(nil)

// stubEmail records dispatched mail; failing makes dispatch error.
type stubEmail struct {
	mu      sync.Mutex
	otps    map[string]string
	links   map[string]string
	alerts  []string
	failing bool
}

func newStubEmail() *stubEmail {
	return &stubEmail{otps: map[string]string{}, links: map[string]string{}}
}

func (s *stubEmail) SendOTP(_ context.Context, email, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing {
		return errors.New("smtp down")
	}
	s.otps[email] = code
	return nil
}

func (s *stubEmail) SendVerificationLink(_ context.Context, email, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing {
		return errors.New("smtp down")
	}
	s.links[email] = token
	return nil
}

func (s *stubEmail) SendSecurityAlert(_ context.Context, email, subject, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing {
		return errors.New("smtp down")
	}
	s.alerts = append(s.alerts, email+": "+subject)
	return nil
}

func (s *stubEmail) alertCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.alerts)
}

var _ port.EmailSender = (*stubEmail)(nil)

// stubPublisher counts published events per kind.
type stubPublisher struct {
	mu         sync.Mutex
	registered int
	security   int
	locked     int
	password   int
}

func (p *stubPublisher) PublishUserRegistered(context.Context, domain.UserRegisteredEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.registered++
	return nil
}

func (p *stubPublisher) PublishSecurityEvent(context.Context, domain.SecurityEventRecorded) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.security++
	return nil
}

func (p *stubPublisher) PublishAccountLocked(context.Context, domain.AccountLockedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.locked++
	return nil
}

func (p *stubPublisher) PublishPasswordChanged(context.Context, domain.PasswordChangedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.password++
	return nil
}

var _ port.EventPublisher = (*stubPublisher)(nil)

// stubGeo resolves from a fixed table.
type stubGeo struct {
	labels map[string]string
}

func (g *stubGeo) Locate(_ context.Context, ip string) (string, error) {
	if g == nil {
		return "", nil
	}
	return g.labels[ip], nil
}

var _ port.GeoResolver = (*stubGeo)(nil)

// stubStrength accepts everything except passwords containing "weak".
type stubStrength struct{}

func (stubStrength) Validate(password string, _ ...string) error {
	if strings.Contains(password, "weak") {
		return errors.New("password too weak")
	}
	return nil
}

var _ port.PasswordStrengthValidator = (stubStrength{})
