package auth

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Authenticator verifies credentials.
type Authenticator interface {
	Authenticate(ctx context.Context, email, password string) (*Account, error)
}

// LocalProvider is an in-process IdentityProvider backed by an Authenticator.
// It holds a single current session and notifies subscribers synchronously.
type LocalProvider struct {
	auth Authenticator
	ttl  time.Duration
	now  func() time.Time

	mu          sync.Mutex
	current     *Session
	subscribers map[uint64]func(Event, *Session)
	nextID      uint64
}

// NewLocalProvider constructs a LocalProvider. Sessions live for ttl.
func NewLocalProvider(auth Authenticator, ttl time.Duration) *LocalProvider {
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &LocalProvider{
		auth:        auth,
		ttl:         ttl,
		now:         time.Now,
		subscribers: make(map[uint64]func(Event, *Session)),
	}
}

// CurrentSession returns the active session, or nil once it expired.
func (p *LocalProvider) CurrentSession(ctx context.Context) (*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == nil || !p.current.ExpiresAt.After(p.now()) {
		p.current = nil
		return nil, nil
	}
	sess := *p.current
	return &sess, nil
}

// SubscribeToAuthChanges registers fn for sign-in and sign-out events.
func (p *LocalProvider) SubscribeToAuthChanges(fn func(Event, *Session)) func() {
	p.mu.Lock()
	p.nextID++
	id := p.nextID
	p.subscribers[id] = fn
	p.mu.Unlock()
	return func() {
		p.mu.Lock()
		delete(p.subscribers, id)
		p.mu.Unlock()
	}
}

// SignInWithPassword authenticates and replaces the current session.
func (p *LocalProvider) SignInWithPassword(ctx context.Context, email, password string) (*Session, error) {
	account, err := p.auth.Authenticate(ctx, email, password)
	if err != nil {
		return nil, err
	}
	sess := &Session{
		AccessToken: uuid.NewString(),
		User:        User{ID: account.ID, Email: account.Email},
		ExpiresAt:   p.now().Add(p.ttl),
	}
	p.mu.Lock()
	p.current = sess
	p.mu.Unlock()

	copied := *sess
	p.emit(EventSignedIn, &copied)
	return sess, nil
}

// SignOut clears the current session.
func (p *LocalProvider) SignOut(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	p.current = nil
	p.mu.Unlock()
	p.emit(EventSignedOut, nil)
	return nil
}

func (p *LocalProvider) emit(event Event, sess *Session) {
	p.mu.Lock()
	subscribers := make([]func(Event, *Session), 0, len(p.subscribers))
	for _, fn := range p.subscribers {
		subscribers = append(subscribers, fn)
	}
	p.mu.Unlock()
	for _, fn := range subscribers {
		fn(event, sess)
	}
}

var _ IdentityProvider = (*LocalProvider)(nil)
