package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/techservice/notifier/internal/domain"
)

func newCode(id string, created time.Time) *domain.VerificationCode {
	return &domain.VerificationCode{
		ID:         id,
		Email:      "a@b.com",
		Type:       domain.CodeTypeUserCreation,
		Code:       "123456",
		CreatedAt:  created,
		ExpiresAt:  created.Add(15 * time.Minute),
		MaxRetries: 3,
	}
}

func TestCodeRepo_LatestByEmailAndType(t *testing.T) {
	ctx := context.Background()
	r := NewCodeRepo()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	_, err := r.LatestByEmailAndType(ctx, "a@b.com", domain.CodeTypeUserCreation)
	assert.True(t, errors.Is(err, domain.ErrNotFound))

	require.NoError(t, r.Create(ctx, newCode("old", base)))
	require.NoError(t, r.Create(ctx, newCode("new", base.Add(time.Minute))))
	require.NoError(t, r.Create(ctx, newCode("tie", base.Add(time.Minute))))

	got, err := r.LatestByEmailAndType(ctx, "a@b.com", domain.CodeTypeUserCreation)
	require.NoError(t, err)
	assert.Equal(t, "tie", got.ID)

	_, err = r.LatestByEmailAndType(ctx, "a@b.com", domain.CodeTypePasswordReset)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestCodeRepo_CreateDuplicate(t *testing.T) {
	ctx := context.Background()
	r := NewCodeRepo()
	require.NoError(t, r.Create(ctx, newCode("c1", time.Now())))
	err := r.Create(ctx, newCode("c1", time.Now()))
	assert.True(t, errors.Is(err, domain.ErrConflict))
}

func TestCodeRepo_UpdateRejectsStaleVersion(t *testing.T) {
	ctx := context.Background()
	r := NewCodeRepo()
	require.NoError(t, r.Create(ctx, newCode("c1", time.Now())))

	a, err := r.Get(ctx, "c1")
	require.NoError(t, err)
	b, err := r.Get(ctx, "c1")
	require.NoError(t, err)

	a.RetryCount = 1
	require.NoError(t, r.Update(ctx, a))
	assert.Equal(t, int64(2), a.Version)

	b.RetryCount = 1
	err = r.Update(ctx, b)
	assert.True(t, errors.Is(err, domain.ErrConflict))
}

func TestCodeRepo_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	r := NewCodeRepo()
	require.NoError(t, r.Create(ctx, newCode("c1", time.Now())))

	got, err := r.Get(ctx, "c1")
	require.NoError(t, err)
	got.Used = true

	again, err := r.Get(ctx, "c1")
	require.NoError(t, err)
	assert.False(t, again.Used)
}

func TestCodeRepo_ConcurrentUpdatesExactlyOneWinsPerVersion(t *testing.T) {
	ctx := context.Background()
	r := NewCodeRepo()
	require.NoError(t, r.Create(ctx, newCode("c1", time.Now())))

	const writers = 20
	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v := &domain.VerificationCode{}
			*v = *newCode("c1", time.Now())
			v.Version = 1
			if r.Update(ctx, v) == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}

func TestCodeRepo_ReloadReturnsStoredState(t *testing.T) {
	ctx := context.Background()
	r := NewCodeRepo()
	v := newCode("c1", time.Now())
	require.NoError(t, r.Create(ctx, v))

	stale := *v
	v.RetryCount = 2
	require.NoError(t, r.Update(ctx, v))

	got, err := r.Reload(ctx, &stale)
	require.NoError(t, err)
	assert.Equal(t, 2, got.RetryCount)
	assert.Equal(t, int64(2), got.Version)

	_, err = r.Reload(ctx, newCode("missing", time.Now()))
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}
