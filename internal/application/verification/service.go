package verification

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/techservice/notifier/internal/domain"
	"github.com/techservice/notifier/internal/pkg/clock"
	"github.com/techservice/notifier/internal/pkg/id"
	"github.com/techservice/notifier/internal/pkg/validate"
)

// casAttempts bounds how often a read-modify-write is retried after losing
// an optimistic version race.
const casAttempts = 5

// CodeStore persists verification codes. Update must fail with
// domain.ErrConflict when the stored version differs from v.Version.
// LatestByEmailAndType and Reload must read the current stored state.
type CodeStore interface {
	Create(ctx context.Context, v *domain.VerificationCode) error
	LatestByEmailAndType(ctx context.Context, email string, t domain.CodeType) (*domain.VerificationCode, error)
	Reload(ctx context.Context, v *domain.VerificationCode) (*domain.VerificationCode, error)
	Update(ctx context.Context, v *domain.VerificationCode) error
}

// Kind classifies the outcome of a verification attempt.
type Kind string

const (
	KindVerified       Kind = "verified"
	KindNotFound       Kind = "not_found"
	KindExpired        Kind = "expired"
	KindAlreadyUsed    Kind = "already_used"
	KindInvalidCode    Kind = "invalid_code"
	KindRetryExhausted Kind = "retry_exhausted"
)

// Result is the outcome of VerifyCode. Lifecycle failures are reported here,
// not as errors. Exhausted is set whenever no attempts remain, including on
// the InvalidCode result that consumed the last one.
type Result struct {
	Success          bool                     `json:"success"`
	Kind             Kind                     `json:"kind"`
	Message          string                   `json:"message"`
	Exhausted        bool                     `json:"exhausted"`
	RetriesRemaining int                      `json:"retries_remaining"`
	Code             *domain.VerificationCode `json:"-"`
}

type IssueParams struct {
	Email          string          `json:"email" validate:"required,email"`
	Type           domain.CodeType `json:"type" validate:"required"`
	Purpose        string          `json:"purpose"`
	AdditionalData string          `json:"additional_data"`
	ExpiryMinutes  int             `json:"expiry_minutes" validate:"gte=0"`
	MaxRetries     int             `json:"max_retries" validate:"gte=0"`
}

type Service interface {
	IssueCode(ctx context.Context, p IssueParams) (*domain.VerificationCode, error)
	VerifyCode(ctx context.Context, email, code string, t domain.CodeType) (Result, error)
	ResendCode(ctx context.Context, email string, t domain.CodeType) (*domain.VerificationCode, error)
}

// Deps configures a Service. Zero DefaultExpiry and DefaultMaxRetries fall
// back to 15 minutes and domain.DefaultMaxRetries.
type Deps struct {
	Store             CodeStore
	Clock             clock.Clock
	DefaultExpiry     time.Duration
	DefaultMaxRetries int
}

type service struct {
	store             CodeStore
	clock             clock.Clock
	defaultExpiry     time.Duration
	defaultMaxRetries int
}

func NewService(d Deps) Service {
	s := &service{
		store:             d.Store,
		clock:             d.Clock,
		defaultExpiry:     d.DefaultExpiry,
		defaultMaxRetries: d.DefaultMaxRetries,
	}
	if s.clock == nil {
		s.clock = clock.Real()
	}
	if s.defaultExpiry <= 0 {
		s.defaultExpiry = 15 * time.Minute
	}
	if s.defaultMaxRetries <= 0 {
		s.defaultMaxRetries = domain.DefaultMaxRetries
	}
	return s
}

func (s *service) IssueCode(ctx context.Context, p IssueParams) (*domain.VerificationCode, error) {
	p.Email = normalizeEmail(p.Email)
	if err := validate.Struct(p); err != nil {
		return nil, fmt.Errorf("%s: %w", err.Error(), domain.ErrBadRequest)
	}
	if !p.Type.Valid() {
		return nil, fmt.Errorf("unknown code type %q: %w", p.Type, domain.ErrBadRequest)
	}
	expiry := time.Duration(p.ExpiryMinutes) * time.Minute
	if expiry <= 0 {
		expiry = s.defaultExpiry
	}
	maxRetries := p.MaxRetries
	if maxRetries <= 0 {
		maxRetries = s.defaultMaxRetries
	}
	return s.issue(ctx, p, expiry, maxRetries)
}

// issue stores a fresh code before retiring the previous one, so a failed
// write leaves the earlier code redeemable.
func (s *service) issue(ctx context.Context, p IssueParams, expiry time.Duration, maxRetries int) (*domain.VerificationCode, error) {
	prev, err := s.store.LatestByEmailAndType(ctx, p.Email, p.Type)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("load previous verification code: %w", err)
	}
	code, err := generateCode()
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	v := &domain.VerificationCode{
		ID:             id.NewAt(now),
		Email:          p.Email,
		Code:           code,
		Type:           p.Type,
		Purpose:        p.Purpose,
		AdditionalData: p.AdditionalData,
		CreatedAt:      now,
		ExpiresAt:      now.Add(expiry),
		MaxRetries:     maxRetries,
	}
	if err := s.store.Create(ctx, v); err != nil {
		return nil, fmt.Errorf("store verification code: %w", err)
	}
	slog.Info("verification code issued", "code_id", v.ID, "email", v.Email, "type", v.Type, "expires_at", v.ExpiresAt)
	if prev != nil {
		s.supersede(ctx, prev)
	}
	return v, nil
}

// supersede marks prev as replaced if it is still valid. VerifyCode only
// ever reads the newest code for a pair, so a failure here is logged and
// does not fail the issue.
func (s *service) supersede(ctx context.Context, prev *domain.VerificationCode) {
	for attempt := 0; attempt < casAttempts; attempt++ {
		if !prev.IsValid(s.clock.Now()) {
			return
		}
		prev.Superseded = true
		err := s.store.Update(ctx, prev)
		if err == nil {
			slog.Info("verification code superseded", "code_id", prev.ID, "type", prev.Type)
			return
		}
		if !errors.Is(err, domain.ErrConflict) {
			slog.Warn("could not supersede verification code", "code_id", prev.ID, "err", err)
			return
		}
		fresh, err := s.store.Reload(ctx, prev)
		if err != nil {
			slog.Warn("could not reload verification code", "code_id", prev.ID, "err", err)
			return
		}
		prev = fresh
	}
	slog.Warn("could not supersede verification code", "code_id", prev.ID, "err", domain.ErrConflict)
}

func (s *service) VerifyCode(ctx context.Context, email, code string, t domain.CodeType) (Result, error) {
	email = normalizeEmail(email)
	if email == "" || code == "" {
		return Result{}, fmt.Errorf("email and code are required: %w", domain.ErrBadRequest)
	}
	for attempt := 0; attempt < casAttempts; attempt++ {
		v, err := s.store.LatestByEmailAndType(ctx, email, t)
		if errors.Is(err, domain.ErrNotFound) {
			return Result{Kind: KindNotFound, Message: "no verification code was issued for this address"}, nil
		}
		if err != nil {
			return Result{}, fmt.Errorf("load verification code: %w", err)
		}

		now := s.clock.Now()
		if !v.IsValid(now) {
			return terminalResult(v, now), nil
		}

		if subtle.ConstantTimeCompare([]byte(v.Code), []byte(strings.TrimSpace(code))) == 1 {
			v.Used = true
			v.UsedAt = &now
			if err := s.store.Update(ctx, v); err != nil {
				if errors.Is(err, domain.ErrConflict) {
					continue
				}
				return Result{}, fmt.Errorf("mark verification code used: %w", err)
			}
			slog.Info("verification code verified", "code_id", v.ID, "type", t)
			return Result{Success: true, Kind: KindVerified, Message: "code verified", Code: v}, nil
		}

		v.RetryCount++
		if err := s.store.Update(ctx, v); err != nil {
			if errors.Is(err, domain.ErrConflict) {
				continue
			}
			return Result{}, fmt.Errorf("record failed verification attempt: %w", err)
		}
		res := Result{
			Kind:             KindInvalidCode,
			Message:          "the code is incorrect",
			RetriesRemaining: v.RetriesRemaining(),
			Code:             v,
		}
		if v.RetryCount >= v.MaxRetries {
			res.Exhausted = true
			res.Message = "the code is incorrect and no attempts remain; request a new code"
		}
		slog.Info("verification attempt failed", "code_id", v.ID, "type", t, "retry_count", v.RetryCount, "exhausted", res.Exhausted)
		return res, nil
	}
	return Result{}, fmt.Errorf("verify code: %w", domain.ErrConflict)
}

// terminalResult describes why an invalid record cannot be redeemed.
// Used takes precedence over retry exhaustion, which takes precedence over expiry.
func terminalResult(v *domain.VerificationCode, now time.Time) Result {
	res := Result{Code: v, RetriesRemaining: v.RetriesRemaining()}
	switch {
	case v.Used:
		res.Kind, res.Message = KindAlreadyUsed, "the code has already been used"
	case v.Superseded:
		res.Kind, res.Message = KindAlreadyUsed, "the code was replaced by a newer one"
	case v.RetryCount >= v.MaxRetries:
		res.Kind, res.Message, res.Exhausted = KindRetryExhausted, "too many failed attempts; request a new code", true
	case v.IsExpired(now):
		res.Kind, res.Message = KindExpired, "the code has expired; request a new code"
	}
	return res
}

func (s *service) ResendCode(ctx context.Context, email string, t domain.CodeType) (*domain.VerificationCode, error) {
	email = normalizeEmail(email)
	prev, err := s.store.LatestByEmailAndType(ctx, email, t)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("no previous code to resend: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("load previous verification code: %w", err)
	}
	expiry := prev.ExpiresAt.Sub(prev.CreatedAt)
	if expiry <= 0 {
		expiry = s.defaultExpiry
	}
	maxRetries := prev.MaxRetries
	if maxRetries <= 0 {
		maxRetries = s.defaultMaxRetries
	}
	return s.issue(ctx, IssueParams{
		Email:          email,
		Type:           t,
		Purpose:        prev.Purpose,
		AdditionalData: prev.AdditionalData,
	}, expiry, maxRetries)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// generateCode returns six uniformly distributed decimal digits.
func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", fmt.Errorf("generate verification code: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
