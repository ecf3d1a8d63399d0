// Package memory holds in-process implementations of storage ports, used
// for local development (CODE_STORE=memory) and tests.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/techservice/notifier/internal/domain"
)

// CodeRepo is a concurrency-safe in-memory verification code store with
// the same optimistic versioning contract as the DynamoDB repo.
type CodeRepo struct {
	mu     sync.Mutex
	byID   map[string]domain.VerificationCode
	byPair map[string][]string // email_type -> ids in insertion order
}

func NewCodeRepo() *CodeRepo {
	return &CodeRepo{
		byID:   make(map[string]domain.VerificationCode),
		byPair: make(map[string][]string),
	}
}

func (r *CodeRepo) Create(_ context.Context, v *domain.VerificationCode) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byID[v.ID]; exists {
		return fmt.Errorf("verification code %s already exists: %w", v.ID, domain.ErrConflict)
	}
	v.Version = 1
	v.EmailType = domain.EmailTypeKey(v.Email, v.Type)
	r.byID[v.ID] = clone(*v)
	r.byPair[v.EmailType] = append(r.byPair[v.EmailType], v.ID)
	return nil
}

// LatestByEmailAndType returns a copy of the newest record for the pair.
// Equal CreatedAt values resolve to the later insertion.
func (r *CodeRepo) LatestByEmailAndType(_ context.Context, email string, t domain.CodeType) (*domain.VerificationCode, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var latest *domain.VerificationCode
	for _, codeID := range r.byPair[domain.EmailTypeKey(email, t)] {
		v := r.byID[codeID]
		if latest == nil || !v.CreatedAt.Before(latest.CreatedAt) {
			c := clone(v)
			latest = &c
		}
	}
	if latest == nil {
		return nil, fmt.Errorf("verification code not found: %w", domain.ErrNotFound)
	}
	return latest, nil
}

func (r *CodeRepo) Get(_ context.Context, codeID string) (*domain.VerificationCode, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.byID[codeID]
	if !ok {
		return nil, fmt.Errorf("verification code not found: %w", domain.ErrNotFound)
	}
	c := clone(v)
	return &c, nil
}

// Reload returns the stored state of the record v identifies.
func (r *CodeRepo) Reload(ctx context.Context, v *domain.VerificationCode) (*domain.VerificationCode, error) {
	return r.Get(ctx, v.ID)
}

// Update is a compare-and-swap on Version.
func (r *CodeRepo) Update(_ context.Context, v *domain.VerificationCode) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.byID[v.ID]
	if !ok {
		return fmt.Errorf("verification code not found: %w", domain.ErrNotFound)
	}
	if stored.Version != v.Version {
		return fmt.Errorf("verification code %s modified concurrently: %w", v.ID, domain.ErrConflict)
	}
	v.Version++
	r.byID[v.ID] = clone(*v)
	return nil
}

func clone(v domain.VerificationCode) domain.VerificationCode {
	if v.UsedAt != nil {
		t := *v.UsedAt
		v.UsedAt = &t
	}
	return v
}
