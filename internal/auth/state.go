package auth

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/odyssey-erp/ledger-authz/internal/rbac"
)

// Phase is the lifecycle position of a State.
type Phase string

// State phases.
const (
	PhaseUninitialized   Phase = "uninitialized"
	PhaseCheckingSession Phase = "checking_session"
	PhaseAuthenticated   Phase = "authenticated"
	PhaseAnonymous       Phase = "anonymous"
)

// Default timeouts for identity and data source calls.
const (
	DefaultSessionCheckTimeout = 5 * time.Second
	DefaultRoleLoadTimeout     = 10 * time.Second
)

// View is an immutable copy of the authentication state.
type View struct {
	// Seq increases with every state change.
	Seq          uint64
	Phase        Phase
	User         *User
	Profile      *Profile
	Loading      bool
	RolesPending bool
	Roles        []rbac.Role
	// Permissions is nil until roles are resolved or restored from a snapshot.
	Permissions *rbac.ResolvedRole
	SuperAdmin  bool
	// Provisional marks permissions restored from a snapshot.
	Provisional bool
}

// Listener receives state changes.
type Listener func(View)

// StateOptions tunes a State.
type StateOptions struct {
	Logger              *slog.Logger
	Snapshots           SnapshotStore
	SessionCheckTimeout time.Duration
	RoleLoadTimeout     time.Duration
}

type listenerEntry struct {
	id uint64
	fn Listener
}

// State is the process authentication service: it tracks the current
// identity, loads its roles, and answers guard checks. Create it once in the
// composition root, call Init, and Dispose on shutdown.
type State struct {
	provider  IdentityProvider
	loader    *Loader
	guard     *Guard
	snapshots SnapshotStore
	logger    *slog.Logger
	opts      StateOptions

	mu       sync.RWMutex
	view     View
	token    uint64
	disposed bool

	listenersMu  sync.Mutex
	listeners    []listenerEntry
	nextListener uint64
	delivered    atomic.Uint64

	initOnce    sync.Once
	disposeOnce sync.Once
	unsubscribe func()
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
}

// NewState constructs a State in the uninitialized phase.
func NewState(provider IdentityProvider, loader *Loader, guard *Guard, opts StateOptions) *State {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.SessionCheckTimeout <= 0 {
		opts.SessionCheckTimeout = DefaultSessionCheckTimeout
	}
	if opts.RoleLoadTimeout <= 0 {
		opts.RoleLoadTimeout = DefaultRoleLoadTimeout
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &State{
		provider:  provider,
		loader:    loader,
		guard:     guard,
		snapshots: opts.Snapshots,
		logger:    opts.Logger,
		opts:      opts,
		view:      View{Phase: PhaseUninitialized, Loading: true},
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Init subscribes to identity changes and checks for an existing session.
// It returns once the check resolved or timed out; role loading continues in
// the background. Subsequent calls are no-ops.
func (s *State) Init(ctx context.Context) {
	s.initOnce.Do(func() { s.init(ctx) })
}

func (s *State) init(ctx context.Context) {
	s.mu.Lock()
	s.token++
	token := s.token
	s.view = View{Seq: s.view.Seq + 1, Phase: PhaseCheckingSession, Loading: true}
	s.mu.Unlock()
	s.publish()

	s.unsubscribe = s.provider.SubscribeToAuthChanges(s.handleAuthEvent)

	checkCtx, cancel := context.WithTimeout(ctx, s.opts.SessionCheckTimeout)
	defer cancel()

	type result struct {
		sess *Session
		err  error
	}
	resultChan := make(chan result, 1)
	go func() {
		sess, err := s.provider.CurrentSession(checkCtx)
		resultChan <- result{sess: sess, err: err}
	}()

	var sess *Session
	select {
	case res := <-resultChan:
		if res.err != nil {
			s.logger.Warn("initial session check", slog.Any("error", res.err))
		}
		sess = res.sess
	case <-checkCtx.Done():
		s.logger.Warn("initial session check timed out", slog.Duration("timeout", s.opts.SessionCheckTimeout))
	}

	s.mu.RLock()
	superseded := s.token != token
	s.mu.RUnlock()
	if superseded {
		return
	}
	if sess == nil {
		s.reset()
		return
	}
	s.beginLoad(sess.User)
}

// Dispose unsubscribes from the provider, drops all listeners, invalidates
// in-flight loads and waits for them to finish. The view returns to anonymous
// and later events never start a load.
func (s *State) Dispose() {
	s.disposeOnce.Do(func() {
		if s.unsubscribe != nil {
			s.unsubscribe()
		}
		s.listenersMu.Lock()
		s.listeners = nil
		s.listenersMu.Unlock()

		s.mu.Lock()
		s.disposed = true
		s.token++
		s.view = View{Seq: s.view.Seq + 1, Phase: PhaseAnonymous}
		s.guard.Update(Grant{})
		s.mu.Unlock()

		s.cancel()
		s.wg.Wait()
	})
}

// Current returns the current view.
func (s *State) Current() View {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.view
}

// Subscribe registers a listener and returns a function removing it. It is
// safe to unsubscribe from within a notification.
func (s *State) Subscribe(fn Listener) (unsubscribe func()) {
	s.listenersMu.Lock()
	s.nextListener++
	id := s.nextListener
	next := make([]listenerEntry, 0, len(s.listeners)+1)
	next = append(next, s.listeners...)
	s.listeners = append(next, listenerEntry{id: id, fn: fn})
	s.listenersMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.listenersMu.Lock()
			defer s.listenersMu.Unlock()
			next := make([]listenerEntry, 0, len(s.listeners))
			for _, entry := range s.listeners {
				if entry.id != id {
					next = append(next, entry)
				}
			}
			s.listeners = next
		})
	}
}

// SignIn authenticates through the identity provider. The provider's
// sign-in event drives the role load.
func (s *State) SignIn(ctx context.Context, email, password string) error {
	_, err := s.provider.SignInWithPassword(ctx, email, password)
	return err
}

// SignOut ends the provider session and resets the state immediately.
func (s *State) SignOut(ctx context.Context) error {
	if err := s.provider.SignOut(ctx); err != nil {
		return err
	}
	s.reset()
	return nil
}

// Reload re-runs the role load for the current user.
func (s *State) Reload() {
	s.mu.RLock()
	user := s.view.User
	s.mu.RUnlock()
	if user == nil {
		return
	}
	s.beginLoad(*user)
}

// HasRouteAccess reports whether the current identity may visit pathname.
func (s *State) HasRouteAccess(pathname string) bool {
	return s.guard.HasRouteAccess(pathname)
}

// HasActionAccess reports whether the current identity holds action.
func (s *State) HasActionAccess(action string) bool {
	return s.guard.HasActionAccess(action)
}

func (s *State) handleAuthEvent(event Event, sess *Session) {
	switch event {
	case EventSignedOut:
		s.reset()
	case EventSignedIn, EventTokenRefreshed:
		if sess == nil {
			s.reset()
			return
		}
		if event == EventTokenRefreshed && s.isCurrentUser(sess.User.ID) {
			return
		}
		s.beginLoad(sess.User)
	default:
		s.logger.Debug("ignored auth event", slog.String("event", string(event)))
	}
}

func (s *State) isCurrentUser(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.view.User != nil && s.view.User.ID == id
}

// reset moves to the anonymous phase and invalidates in-flight loads.
func (s *State) reset() {
	s.mu.Lock()
	s.token++
	if s.disposed || s.view.Phase == PhaseAnonymous {
		s.mu.Unlock()
		return
	}
	s.view = View{Seq: s.view.Seq + 1, Phase: PhaseAnonymous}
	s.guard.Update(Grant{})
	s.mu.Unlock()

	s.publish()
}

// beginLoad publishes the authenticated, roles-pending state and starts an
// asynchronous role load tagged with a fresh token.
func (s *State) beginLoad(user User) {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return
	}
	s.token++
	token := s.token
	s.view = View{
		Seq:          s.view.Seq + 1,
		Phase:        PhaseAuthenticated,
		User:         &user,
		RolesPending: true,
	}
	s.guard.Update(Grant{Authenticated: true})
	s.wg.Add(1)
	s.mu.Unlock()

	s.publish()

	go s.load(token, user)
}

func (s *State) load(token uint64, user User) {
	defer s.wg.Done()
	ctx, cancel := context.WithTimeout(s.ctx, s.opts.RoleLoadTimeout)
	defer cancel()

	s.restoreSnapshot(ctx, token, user)

	data := s.loader.Load(ctx, user)

	s.mu.Lock()
	if token != s.token {
		s.mu.Unlock()
		s.logger.Debug("stale role load discarded", slog.String("user_id", user.ID))
		return
	}
	permissions := data.Permissions
	s.view = View{
		Seq:         s.view.Seq + 1,
		Phase:       PhaseAuthenticated,
		User:        &user,
		Profile:     data.Profile,
		Roles:       data.Roles,
		Permissions: &permissions,
		SuperAdmin:  data.SuperAdmin,
	}
	s.guard.Update(Grant{Authenticated: true, SuperAdmin: data.SuperAdmin, Permissions: &permissions})
	s.mu.Unlock()
	s.publish()

	if s.snapshots != nil && !data.Degraded && !data.Fallback {
		snapshot := s.loader.Resolver().BuildSnapshot(data.Roles)
		if err := s.snapshots.SaveSnapshot(ctx, user.ID, snapshot); err != nil {
			s.logger.Warn("save permission snapshot", slog.String("user_id", user.ID), slog.Any("error", err))
		}
	}
}

// restoreSnapshot publishes provisional permissions from a stored snapshot
// while the authoritative load is running.
func (s *State) restoreSnapshot(ctx context.Context, token uint64, user User) {
	if s.snapshots == nil {
		return
	}
	snapshot, err := s.snapshots.LoadSnapshot(ctx, user.ID)
	if err != nil {
		s.logger.Warn("load permission snapshot", slog.String("user_id", user.ID), slog.Any("error", err))
		return
	}
	resolved, ok := rbac.HydrateSnapshot(snapshot)
	if !ok {
		return
	}
	superAdmin := false
	for _, role := range snapshot.Roles {
		if role == rbac.RoleSuperAdmin {
			superAdmin = true
		}
	}

	s.mu.Lock()
	if token != s.token || !s.view.RolesPending {
		s.mu.Unlock()
		return
	}
	view := s.view
	view.Seq++
	view.Roles = snapshot.Roles
	view.Permissions = &resolved
	view.SuperAdmin = superAdmin
	view.Provisional = true
	s.view = view
	s.guard.Update(Grant{Authenticated: true, SuperAdmin: superAdmin, Permissions: &resolved})
	s.mu.Unlock()
	s.publish()
}

// publish delivers the current view to a snapshot of the listeners. A view
// older than one already delivered is dropped.
func (s *State) publish() {
	view := s.Current()
	for {
		last := s.delivered.Load()
		if view.Seq <= last {
			return
		}
		if s.delivered.CompareAndSwap(last, view.Seq) {
			break
		}
	}
	s.listenersMu.Lock()
	listeners := s.listeners
	s.listenersMu.Unlock()
	for _, entry := range listeners {
		entry.fn(view)
	}
}
