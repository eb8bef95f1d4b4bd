package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/youme-api/internal/domain"
	"github.com/youme-api/internal/pkg/id"
	"github.com/youme-api/internal/pkg/validate"
	"go.uber.org/zap"
)

// Profile document fields written by the orchestrator.
const (
	fieldDisplayName     = "display_name"
	fieldIsEmailVerified = "is_email_verified"
)

// User-facing messages.
const (
	msgSignedUp          = "Account created! Please check your email for verification."
	msgWelcomeBack       = "Welcome back!"
	msgResetSent         = "Password reset email sent. Please check your inbox."
	msgVerificationSent  = "Verification email sent. Please check your inbox."
	msgPasswordChanged   = "Password updated successfully."
	msgProfileUpdated    = "Profile updated successfully."
	msgAccountDeleted    = "Account deleted successfully"
	msgEmailVerified     = "Email verified"
	msgVerifyBeforeLogin = "Please verify your email before signing in"
	msgResetNeedsEmail   = "Please enter your email address"
	msgDeleteNeedsLogin  = "Please sign in again to delete your account"
	msgNoUser            = "No authenticated user."
	msgVerifyToContinue  = "Please verify your email to continue"
	msgNotVerifiedYet    = "Email not verified yet"
	msgInternal          = "Something went wrong. Please try again."
)

// tokenSkew is how long before its expiry an ID token is refreshed.
const tokenSkew = 5 * time.Minute

type credentialGateway interface {
	CreateAccount(ctx context.Context, email, password string) (*domain.Identity, error)
	SignIn(ctx context.Context, email, password string) (*domain.Identity, error)
	SendVerificationEmail(ctx context.Context, id *domain.Identity) error
	Reload(ctx context.Context, id *domain.Identity) (*domain.Identity, error)
	SendPasswordReset(ctx context.Context, email string) error
	Reauthenticate(ctx context.Context, id *domain.Identity, password string) (*domain.Identity, error)
	UpdatePassword(ctx context.Context, id *domain.Identity, newPassword string) (*domain.Identity, error)
	UpdateDisplayName(ctx context.Context, id *domain.Identity, name string) error
	DeleteIdentity(ctx context.Context, id *domain.Identity) error
	Refresh(ctx context.Context, id *domain.Identity) (*domain.Identity, error)
}

type profileStore interface {
	Put(ctx context.Context, p *domain.UserProfile) error
	Get(ctx context.Context, userID string) (*domain.UserProfile, error)
	Update(ctx context.Context, userID string, updates map[string]interface{}) error
}

type accountRemover interface {
	DeleteProfile(ctx context.Context, userID, partnerID string) error
}

type codeCleaner interface {
	DeleteByUser(ctx context.Context, userID string) (int, error)
}

type orphanReporter interface {
	Report(ctx context.Context, r domain.OrphanReport) (string, error)
}

type eventPublisher interface {
	Publish(ctx context.Context, evt domain.Event) error
}

// Prefs is the local key-value store behind the remember-me flag.
type Prefs interface {
	RememberMe(ctx context.Context) (bool, error)
	SetRememberMe(ctx context.Context, remember bool) error
	ClearRememberMe(ctx context.Context) error
}

type Deps struct {
	Gateway  credentialGateway
	Profiles profileStore
	Accounts accountRemover
	Codes    codeCleaner    // optional
	Ledger   orphanReporter // optional
	Events   eventPublisher // optional
	Logger   *zap.Logger
	Now      func() time.Time
}

type listener struct {
	id int
	fn func(domain.AuthState)
}

// Orchestrator drives the auth state machine for one Session. Operations
// return nil on success; on failure the error is also reflected in State as
// an Error with a user-facing message.
type Orchestrator struct {
	gateway  credentialGateway
	profiles profileStore
	accounts accountRemover
	codes    codeCleaner
	ledger   orphanReporter
	events   eventPublisher
	log      *zap.Logger
	now      func() time.Time

	sess  *Session
	prefs Prefs

	emitMu    sync.Mutex // serialises transitions so listeners see them in order
	mu        sync.Mutex
	state     domain.AuthState
	listeners []listener
	nextID    int
}

func NewOrchestrator(deps Deps, sess *Session, prefs Prefs) *Orchestrator {
	o := &Orchestrator{
		gateway:  deps.Gateway,
		profiles: deps.Profiles,
		accounts: deps.Accounts,
		codes:    deps.Codes,
		ledger:   deps.Ledger,
		events:   deps.Events,
		log:      deps.Logger,
		now:      deps.Now,
		sess:     sess,
		prefs:    prefs,
		state:    domain.InitialState(),
	}
	if o.log == nil {
		o.log = zap.NewNop()
	}
	if o.now == nil {
		o.now = time.Now
	}
	if o.sess == nil {
		o.sess = New(nil)
	}
	return o
}

// Session returns the session the orchestrator is bound to.
func (o *Orchestrator) Session() *Session { return o.sess }

func (o *Orchestrator) State() domain.AuthState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Subscribe registers fn for every later transition. Listeners run
// synchronously on the transitioning goroutine and must not start another
// operation on the same orchestrator.
func (o *Orchestrator) Subscribe(fn func(domain.AuthState)) (unsubscribe func()) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.nextID++
	lid := o.nextID
	o.listeners = append(o.listeners, listener{id: lid, fn: fn})
	return func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		for i, l := range o.listeners {
			if l.id == lid {
				o.listeners = append(o.listeners[:i:i], o.listeners[i+1:]...)
				return
			}
		}
	}
}

func (o *Orchestrator) transition(st domain.AuthState) {
	o.emitMu.Lock()
	defer o.emitMu.Unlock()

	o.mu.Lock()
	o.state = st
	ls := make([]listener, len(o.listeners))
	copy(ls, o.listeners)
	o.mu.Unlock()

	for _, l := range ls {
		l.fn(st)
	}
}

func (o *Orchestrator) succeed(msg string) error {
	o.transition(domain.SuccessState(msg))
	return nil
}

// fail publishes err as an Error state and returns it. Storage failures
// are shown as a fixed message.
func (o *Orchestrator) fail(err error) error {
	msg := err.Error()
	if errors.Is(err, domain.ErrStore) || errors.Is(err, domain.ErrPermissionDenied) {
		o.log.Error("session operation failed", zap.Error(err))
		msg = msgInternal
	}
	o.transition(domain.ErrorState(FormatErrorMessage(msg)))
	return err
}

// withToken runs call with an identity whose ID token is current. A token
// that is near expiry is refreshed first; a provider rejection of a stale
// token triggers one refresh and retry. The identity used is kept on the
// session.
func (o *Orchestrator) withToken(ctx context.Context, ident *domain.Identity, call func(*domain.Identity) error) (*domain.Identity, error) {
	if ident.RefreshToken != "" && (ident.TokenExpiry.IsZero() || o.now().Add(tokenSkew).After(ident.TokenExpiry)) {
		fresh, err := o.refresh(ctx, ident)
		if err != nil {
			return ident, err
		}
		ident = fresh
	}
	err := call(ident)
	if errors.Is(err, domain.ErrTokenExpired) && ident.RefreshToken != "" {
		fresh, rerr := o.refresh(ctx, ident)
		if rerr != nil {
			return ident, rerr
		}
		ident = fresh
		err = call(ident)
	}
	return ident, err
}

func (o *Orchestrator) refresh(ctx context.Context, ident *domain.Identity) (*domain.Identity, error) {
	fresh, err := o.gateway.Refresh(ctx, ident)
	if err != nil {
		return nil, err
	}
	o.log.Debug("id token refreshed", zap.String("user_id", fresh.UserID))
	o.sess.set(fresh)
	return fresh, nil
}

// reject publishes a fixed message and returns it wrapped in kind.
func (o *Orchestrator) reject(msg string, kind error) error {
	o.transition(domain.ErrorState(msg))
	return &stateError{msg: msg, kind: kind}
}

type stateError struct {
	msg  string
	kind error
}

func (e *stateError) Error() string { return e.msg }

func (e *stateError) Unwrap() error { return e.kind }

func (o *Orchestrator) SignUp(ctx context.Context, req domain.SignUpRequest) error {
	if err := validate.Credentials(req.Email, req.Password); err != nil {
		return o.fail(err)
	}
	o.transition(domain.LoadingState())

	ident, err := o.gateway.CreateAccount(ctx, strings.TrimSpace(req.Email), req.Password)
	if err != nil {
		return o.fail(err)
	}
	o.sess.set(ident)
	if err := o.gateway.SendVerificationEmail(ctx, ident); err != nil {
		o.reportOrphan(ctx, domain.OrphanProfileMissing, ident, err)
		return o.fail(err)
	}

	email := ident.Email
	if email == "" {
		email = strings.TrimSpace(req.Email)
	}
	p := &domain.UserProfile{
		UserID:           ident.UserID,
		Email:            email,
		DisplayName:      req.DisplayName,
		PhoneNumber:      req.PhoneNumber,
		IsEmailVerified:  ident.EmailVerified,
		ProfileCreatedAt: o.now().UnixMilli(),
	}
	if err := o.profiles.Put(ctx, p); err != nil {
		o.reportOrphan(ctx, domain.OrphanProfileMissing, ident, err)
		return o.fail(err)
	}

	o.log.Info("account created", zap.String("user_id", ident.UserID))
	o.publish(ctx, domain.Event{Type: domain.EventAccountCreated, UserID: ident.UserID})
	return o.succeed(msgSignedUp)
}

// SignIn completes only for verified accounts; an unverified credential is
// rejected and leaves the session empty.
func (o *Orchestrator) SignIn(ctx context.Context, req domain.SignInRequest) error {
	if err := validate.Credentials(req.Email, req.Password); err != nil {
		return o.fail(err)
	}
	o.transition(domain.LoadingState())

	ident, err := o.gateway.SignIn(ctx, strings.TrimSpace(req.Email), req.Password)
	if err != nil {
		return o.fail(err)
	}
	if !ident.EmailVerified {
		return o.reject(msgVerifyBeforeLogin, domain.ErrForbidden)
	}

	o.markVerified(ctx, ident.UserID)
	if err := o.SaveRememberMe(ctx, req.RememberMe); err != nil {
		o.log.Warn("save remember-me failed", zap.String("user_id", ident.UserID), zap.Error(err))
	}
	o.sess.set(ident)
	return o.succeed(msgWelcomeBack)
}

// markVerified brings a stale is_email_verified flag in line with the
// identity. Failures are logged only.
func (o *Orchestrator) markVerified(ctx context.Context, userID string) {
	p, err := o.profiles.Get(ctx, userID)
	if err != nil {
		o.log.Warn("load profile for verification sync failed", zap.String("user_id", userID), zap.Error(err))
		return
	}
	if p.IsEmailVerified {
		return
	}
	if err := o.profiles.Update(ctx, userID, map[string]interface{}{fieldIsEmailVerified: true}); err != nil {
		o.log.Warn("verification sync failed", zap.String("user_id", userID), zap.Error(err))
	}
}

func (o *Orchestrator) ResetPassword(ctx context.Context, email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return o.reject(msgResetNeedsEmail, domain.ErrInvalidInput)
	}
	o.transition(domain.LoadingState())
	if err := o.gateway.SendPasswordReset(ctx, email); err != nil {
		return o.fail(err)
	}
	return o.succeed(msgResetSent)
}

func (o *Orchestrator) ResendVerification(ctx context.Context) error {
	ident := o.sess.Current()
	if ident == nil {
		return o.reject(msgNoUser, domain.ErrUnauthorized)
	}
	o.transition(domain.LoadingState())
	_, err := o.withToken(ctx, ident, func(id *domain.Identity) error {
		return o.gateway.SendVerificationEmail(ctx, id)
	})
	if err != nil {
		return o.fail(err)
	}
	return o.succeed(msgVerificationSent)
}

// CheckEmailVerified reloads the identity and, once it is verified, records
// that on the profile.
func (o *Orchestrator) CheckEmailVerified(ctx context.Context) error {
	ident := o.sess.Current()
	if ident == nil {
		return o.reject(msgNoUser, domain.ErrUnauthorized)
	}
	o.transition(domain.LoadingState())

	fresh, err := o.reload(ctx, ident)
	if err != nil {
		return o.fail(err)
	}
	o.sess.set(fresh)
	if !fresh.EmailVerified {
		return o.reject(msgNotVerifiedYet, domain.ErrForbidden)
	}
	if err := o.profiles.Update(ctx, fresh.UserID, map[string]interface{}{fieldIsEmailVerified: true}); err != nil {
		return o.fail(err)
	}
	return o.succeed(msgEmailVerified)
}

func (o *Orchestrator) Reauthenticate(ctx context.Context, password string) error {
	ident := o.sess.Current()
	if ident == nil {
		return o.reject(msgNoUser, domain.ErrUnauthorized)
	}
	o.transition(domain.LoadingState())
	fresh, err := o.gateway.Reauthenticate(ctx, ident, password)
	if err != nil {
		return o.fail(err)
	}
	o.sess.set(fresh)
	return o.succeed("")
}

// ChangePassword proves the current password before rotating it. The new
// password is never sent when the proof fails.
func (o *Orchestrator) ChangePassword(ctx context.Context, req domain.ChangePasswordRequest) error {
	ident := o.sess.Current()
	if ident == nil || ident.Email == "" {
		return o.reject(msgNoUser, domain.ErrUnauthorized)
	}
	if err := validate.Password(req.NewPassword); err != nil {
		return o.fail(err)
	}
	o.transition(domain.LoadingState())

	fresh, err := o.gateway.Reauthenticate(ctx, ident, req.CurrentPassword)
	if err != nil {
		return o.fail(err)
	}
	rotated, err := o.gateway.UpdatePassword(ctx, fresh, req.NewPassword)
	if err != nil {
		return o.fail(err)
	}
	o.sess.set(rotated)
	return o.succeed(msgPasswordChanged)
}

// UpdateProfile renames the user on the identity first, then on the profile.
func (o *Orchestrator) UpdateProfile(ctx context.Context, req domain.UpdateProfileRequest) error {
	ident := o.sess.Current()
	if ident == nil {
		return o.reject(msgNoUser, domain.ErrUnauthorized)
	}
	if err := validate.Struct(req); err != nil {
		return o.fail(err)
	}
	o.transition(domain.LoadingState())

	ident, err := o.withToken(ctx, ident, func(id *domain.Identity) error {
		return o.gateway.UpdateDisplayName(ctx, id, req.DisplayName)
	})
	if err != nil {
		return o.fail(err)
	}
	if err := o.profiles.Update(ctx, ident.UserID, map[string]interface{}{fieldDisplayName: req.DisplayName}); err != nil {
		return o.fail(err)
	}
	renamed := *ident
	renamed.DisplayName = req.DisplayName
	o.sess.set(&renamed)
	return o.succeed(msgProfileUpdated)
}

// GetProfile reads the signed-in user's profile without touching State.
func (o *Orchestrator) GetProfile(ctx context.Context) (*domain.UserProfile, error) {
	ident := o.sess.Current()
	if ident == nil {
		return nil, &stateError{msg: msgNoUser, kind: domain.ErrUnauthorized}
	}
	return o.profiles.Get(ctx, ident.UserID)
}

// DeleteAccount removes the profile and then the identity. The identity is
// checked with the provider first so an unusable credential stops the
// operation before any data is removed. A failure after the profile is gone
// leaves an orphaned identity; it is recorded in the reconciliation ledger
// and reported as an error, never rolled back.
func (o *Orchestrator) DeleteAccount(ctx context.Context) error {
	o.transition(domain.LoadingState())
	ident := o.sess.Current()
	if ident == nil {
		return o.reject(msgDeleteNeedsLogin, domain.ErrUnauthorized)
	}
	ident, err := o.reload(ctx, ident)
	if err != nil {
		return o.fail(err)
	}
	o.sess.set(ident)

	var partnerID string
	switch p, err := o.profiles.Get(ctx, ident.UserID); {
	case err == nil:
		if p.Linked() {
			partnerID = *p.PartnerID
		}
	case errors.Is(err, domain.ErrProfileNotFound):
		o.log.Warn("deleting account without a profile", zap.String("user_id", ident.UserID))
	default:
		return o.fail(err)
	}
	if err := o.accounts.DeleteProfile(ctx, ident.UserID, partnerID); err != nil {
		return o.fail(err)
	}

	_, err = o.withToken(ctx, ident, func(id *domain.Identity) error {
		return o.gateway.DeleteIdentity(ctx, id)
	})
	if err != nil {
		o.reportOrphan(ctx, domain.OrphanIdentityRetained, ident, err)
		return o.fail(err)
	}

	if o.codes != nil {
		if _, err := o.codes.DeleteByUser(ctx, ident.UserID); err != nil {
			o.log.Warn("delete codes of removed account failed", zap.String("user_id", ident.UserID), zap.Error(err))
		}
	}
	o.log.Info("account deleted", zap.String("user_id", ident.UserID))
	o.publish(ctx, domain.Event{Type: domain.EventAccountDeleted, UserID: ident.UserID, PartnerID: partnerID})
	o.transition(domain.SuccessState(msgAccountDeleted))
	o.teardown(ctx)
	return nil
}

// SignOut returns the machine to Initial and forgets the identity and the
// remember-me preference.
func (o *Orchestrator) SignOut(ctx context.Context) {
	o.teardown(ctx)
	o.transition(domain.InitialState())
}

func (o *Orchestrator) teardown(ctx context.Context) {
	o.sess.Clear()
	if err := o.ClearRememberMe(ctx); err != nil {
		o.log.Warn("clear remember-me failed", zap.Error(err))
	}
}

func (o *Orchestrator) CheckRememberMe(ctx context.Context) (bool, error) {
	if o.prefs == nil {
		return false, nil
	}
	return o.prefs.RememberMe(ctx)
}

func (o *Orchestrator) SaveRememberMe(ctx context.Context, remember bool) error {
	if o.prefs == nil {
		return nil
	}
	return o.prefs.SetRememberMe(ctx, remember)
}

func (o *Orchestrator) ClearRememberMe(ctx context.Context) error {
	if o.prefs == nil {
		return nil
	}
	return o.prefs.ClearRememberMe(ctx)
}

// Restore applies the start-up policy to an existing session: without a
// remembered preference the session is untrusted and signed out; otherwise
// the state reflects whether the email is verified.
func (o *Orchestrator) Restore(ctx context.Context) error {
	ident := o.sess.Current()
	if ident == nil {
		return nil
	}
	remember, err := o.CheckRememberMe(ctx)
	if err != nil {
		o.log.Warn("read remember-me failed", zap.String("user_id", ident.UserID), zap.Error(err))
	}
	if !remember {
		o.SignOut(ctx)
		return nil
	}

	if fresh, err := o.reload(ctx, ident); err != nil {
		o.log.Warn("reload on restore failed, using cached identity", zap.String("user_id", ident.UserID), zap.Error(err))
	} else {
		ident = fresh
		o.sess.set(fresh)
	}
	if !ident.EmailVerified {
		return o.reject(msgVerifyToContinue, domain.ErrForbidden)
	}
	return o.succeed(msgWelcomeBack)
}

// reload fetches the current account flags, refreshing the ID token when
// needed. The returned identity carries the tokens that were used.
func (o *Orchestrator) reload(ctx context.Context, ident *domain.Identity) (*domain.Identity, error) {
	var fresh *domain.Identity
	_, err := o.withToken(ctx, ident, func(id *domain.Identity) error {
		var err error
		fresh, err = o.gateway.Reload(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return fresh, nil
}

// ReportConnectionError surfaces a connectivity failure as an Error state.
func (o *Orchestrator) ReportConnectionError(msg string) {
	o.transition(domain.ErrorState("Network error: " + msg))
}

func (o *Orchestrator) reportOrphan(ctx context.Context, kind string, ident *domain.Identity, cause error) {
	o.log.Error("identity and profile out of step",
		zap.String("kind", kind), zap.String("user_id", ident.UserID), zap.Error(cause))
	if o.ledger == nil {
		return
	}
	now := o.now()
	report := domain.OrphanReport{
		ReportID:   id.NewAt(now),
		Kind:       kind,
		UserID:     ident.UserID,
		Email:      ident.Email,
		Reason:     cause.Error(),
		DetectedAt: now.UTC(),
	}
	if _, err := o.ledger.Report(ctx, report); err != nil {
		o.log.Warn("orphan report failed", zap.String("user_id", ident.UserID), zap.Error(err))
	}
}

func (o *Orchestrator) publish(ctx context.Context, evt domain.Event) {
	if o.events == nil {
		return
	}
	now := o.now()
	evt.EventID = id.NewAt(now)
	evt.OccurredAt = now.UTC()
	if err := o.events.Publish(ctx, evt); err != nil {
		o.log.Warn("event publish failed", zap.String("type", evt.Type), zap.Error(err))
	}
}
