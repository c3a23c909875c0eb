package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/koor-fr/security-component/internal/domain"
	"github.com/koor-fr/security-component/internal/lock"
	"github.com/koor-fr/security-component/internal/metrics"
	"github.com/koor-fr/security-component/internal/repository"
)

// Verifier checks a login/secret pair.
type Verifier interface {
	// Verify returns the authenticated user with its roles, or an error
	// matching exactly ErrBadCredentials or ErrAccountDisabled.
	Verify(ctx context.Context, login, secret string) (*domain.User, error)
}

// RoleLoader resolves the roles granted to a user.
type RoleLoader interface {
	ListByUser(ctx context.Context, userID int64) ([]domain.Role, error)
}

// Outcome is the result class of one verification.
type Outcome int

const (
	OutcomeAccepted Outcome = iota + 1
	OutcomeBadCredentials
	OutcomeAccountDisabled
)

// String returns the metrics label of the outcome.
func (o Outcome) String() string {
	switch o {
	case OutcomeAccepted:
		return metrics.OutcomeAccepted
	case OutcomeBadCredentials:
		return metrics.OutcomeBadCredentials
	case OutcomeAccountDisabled:
		return metrics.OutcomeAccountDisabled
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Verdict is the tagged result of a verification.
// User is set only when Outcome is OutcomeAccepted. Cause keeps the store
// failure that was collapsed into OutcomeBadCredentials, if any.
type Verdict struct {
	Outcome Outcome
	User    *domain.User
	Cause   error
}

// Err converts the verdict into the public error.
func (v Verdict) Err() error {
	switch v.Outcome {
	case OutcomeAccepted:
		return nil
	case OutcomeAccountDisabled:
		return ErrAccountDisabled
	default:
		return ErrBadCredentials
	}
}

// VerifierConfig holds the lockout policy.
type VerifierConfig struct {
	// LockoutThreshold is compared with the error count read before a failure
	// is recorded. With 2, the third consecutive failure disables the account.
	LockoutThreshold int

	Lock LockPolicy
}

// DefaultVerifierConfig returns the default lockout policy.
func DefaultVerifierConfig() VerifierConfig {
	return VerifierConfig{
		LockoutThreshold: 2,
		Lock:             DefaultLockPolicy(),
	}
}

// CredentialVerifier implements Verifier on the account store.
type CredentialVerifier struct {
	users   repository.UserRepository
	roles   RoleLoader
	encoder domain.PasswordEncoder
	locks   loginLocker
	metrics *metrics.Metrics
	cfg     VerifierConfig
	now     func() time.Time
	logger  zerolog.Logger
}

// NewCredentialVerifier creates a new CredentialVerifier.
func NewCredentialVerifier(
	users repository.UserRepository,
	roles RoleLoader,
	encoder domain.PasswordEncoder,
	locker lock.Locker,
	m *metrics.Metrics,
	cfg VerifierConfig,
	logger zerolog.Logger,
) *CredentialVerifier {
	if m == nil {
		m = metrics.Nop()
	}
	logger = logger.With().Str("service", "verifier").Logger()
	return &CredentialVerifier{
		users:   users,
		roles:   roles,
		encoder: encoder,
		locks:   loginLocker{locker: locker, policy: cfg.Lock, logger: logger},
		metrics: m,
		cfg:     cfg,
		now:     time.Now,
		logger:  logger,
	}
}

// Verify checks the credentials and applies the lockout policy.
func (v *CredentialVerifier) Verify(ctx context.Context, login, secret string) (*domain.User, error) {
	start := time.Now()
	verdict := v.Evaluate(ctx, login, secret)
	v.metrics.ObserveOutcome(verdict.Outcome.String(), time.Since(start).Seconds())
	return verdict.User, verdict.Err()
}

// Evaluate runs one verification and returns its verdict.
func (v *CredentialVerifier) Evaluate(ctx context.Context, login, secret string) Verdict {
	encoded, err := v.encoder.Encode(secret)
	if err != nil {
		return v.fault(login, "encode", err)
	}

	release, err := v.locks.acquire(ctx, login)
	if err != nil {
		return v.fault(login, "lock", err)
	}
	defer release()

	user, err := v.users.GetByCredentials(ctx, login, encoded)
	switch {
	case err == nil:
		return v.accept(ctx, user)
	case errors.Is(err, domain.ErrNotFound):
		return v.reject(ctx, login)
	default:
		return v.fault(login, "lookup_credentials", err)
	}
}

// accept handles a login/secret match.
func (v *CredentialVerifier) accept(ctx context.Context, user *domain.User) Verdict {
	if !user.CanAuthenticate() {
		v.logger.Debug().Str("login", user.Login).Msg("disabled account presented valid credentials")
		return Verdict{Outcome: OutcomeAccountDisabled}
	}

	now := v.now().UTC().Truncate(time.Microsecond)
	count, err := v.users.RecordConnection(ctx, user.ID, now)
	if err != nil {
		if errors.Is(err, domain.ErrAccountDisabled) {
			v.logger.Debug().Str("login", user.Login).Msg("account disabled during verification")
			return Verdict{Outcome: OutcomeAccountDisabled}
		}
		return v.fault(user.Login, "record_connection", err)
	}
	user.ConnectionCount = count
	user.LastConnectionAt = now

	if user.ConsecutiveErrors != 0 {
		if err := v.users.ResetConsecutiveErrors(ctx, user.ID); err != nil {
			return v.fault(user.Login, "reset_errors", err)
		}
		user.ConsecutiveErrors = 0
	}

	roles, err := v.roles.ListByUser(ctx, user.ID)
	if err != nil {
		return v.fault(user.Login, "load_roles", err)
	}
	user.Roles = make([]domain.Role, 0, len(roles))
	for _, role := range roles {
		user.AddRole(role)
	}

	v.logger.Info().
		Int64("user_id", user.ID).
		Str("login", user.Login).
		Int64("connection_count", user.ConnectionCount).
		Msg("user authenticated")

	return Verdict{Outcome: OutcomeAccepted, User: user}
}

// reject handles a failed match: unknown login or wrong secret.
func (v *CredentialVerifier) reject(ctx context.Context, login string) Verdict {
	user, err := v.users.GetByLogin(ctx, login)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			v.logger.Debug().Str("login", login).Msg("unknown login")
			return Verdict{Outcome: OutcomeBadCredentials}
		}
		return v.fault(login, "lookup_login", err)
	}

	previous, err := v.users.IncrementConsecutiveErrors(ctx, user.ID)
	if err != nil {
		return v.fault(login, "increment_errors", err)
	}

	if previous < v.cfg.LockoutThreshold {
		v.logger.Debug().Str("login", login).Int("consecutive_errors", previous+1).Msg("wrong secret")
		return Verdict{Outcome: OutcomeBadCredentials}
	}

	if err := v.users.SetDisabled(ctx, user.ID, true); err != nil {
		return v.fault(login, "disable", err)
	}
	v.metrics.ObserveLockout()
	v.logger.Warn().
		Int64("user_id", user.ID).
		Str("login", login).
		Int("consecutive_errors", previous+1).
		Msg("account disabled after consecutive failures")

	return Verdict{Outcome: OutcomeAccountDisabled}
}

// fault logs a store failure and collapses it into a rejection.
func (v *CredentialVerifier) fault(login, step string, err error) Verdict {
	v.metrics.ObserveStoreFault(step)
	v.logger.Error().Err(err).Str("login", login).Str("step", step).Msg("verification failed on store error")
	return Verdict{
		Outcome: OutcomeBadCredentials,
		Cause:   fmt.Errorf("%w: %v", ErrInternalError, err),
	}
}

// Ensure CredentialVerifier implements Verifier.
var _ Verifier = (*CredentialVerifier)(nil)
