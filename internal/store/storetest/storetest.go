// Package storetest holds behaviour checks shared by every store backend.
package storetest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dinsos-bot/internal/domain"
	"dinsos-bot/internal/store"
)

var base = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

// Run exercises the full Store contract against stores built by newStore.
func Run(t *testing.T, newStore func(t *testing.T) store.Store) {
	t.Run("activations", func(t *testing.T) { testActivations(t, newStore(t)) })
	t.Run("rate limits", func(t *testing.T) { RunRateLimits(t, func(t *testing.T) store.RateLimits { return newStore(t) }) })
	t.Run("registrations", func(t *testing.T) { testRegistrations(t, newStore(t)) })
}

// RunRateLimits exercises the RateLimits contract only.
func RunRateLimits(t *testing.T, newStore func(t *testing.T) store.RateLimits) {
	t.Run("missing record", func(t *testing.T) {
		s := newStore(t)
		rec, err := s.GetRateLimit(context.Background(), "nobody")
		require.NoError(t, err)
		assert.Nil(t, rec)
	})

	t.Run("increment within window", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		for i := 1; i <= 3; i++ {
			rec, err := s.IncrementRateLimit(ctx, "s1", base.Add(time.Duration(i)*time.Minute), time.Hour)
			require.NoError(t, err)
			require.Equal(t, i, rec.Count)
			require.True(t, rec.ResetAt.Equal(base.Add(time.Minute+time.Hour)), "window start is the first message")
		}
		got, err := s.GetRateLimit(ctx, "s1")
		require.NoError(t, err)
		require.NotNil(t, got)
		require.Equal(t, 3, got.Count)
	})

	t.Run("expired window restarts at one", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		for i := 0; i < 5; i++ {
			_, err := s.IncrementRateLimit(ctx, "s1", base, time.Hour)
			require.NoError(t, err)
		}
		later := base.Add(time.Hour + time.Second)
		rec, err := s.IncrementRateLimit(ctx, "s1", later, time.Hour)
		require.NoError(t, err)
		require.Equal(t, 1, rec.Count)
		require.True(t, rec.ResetAt.Equal(later.Add(time.Hour)))
	})

	t.Run("upsert overrides", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		_, err := s.IncrementRateLimit(ctx, "s1", base, time.Hour)
		require.NoError(t, err)
		require.NoError(t, s.UpsertRateLimit(ctx, "s1", 0, base.Add(10*time.Minute)))
		rec, err := s.IncrementRateLimit(ctx, "s1", base.Add(time.Minute), time.Hour)
		require.NoError(t, err)
		require.Equal(t, 1, rec.Count)
		require.True(t, rec.ResetAt.Equal(base.Add(10*time.Minute)))
	})

	t.Run("senders are independent", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		_, err := s.IncrementRateLimit(ctx, "a", base, time.Hour)
		require.NoError(t, err)
		rec, err := s.IncrementRateLimit(ctx, "b", base, time.Hour)
		require.NoError(t, err)
		require.Equal(t, 1, rec.Count)
	})

	t.Run("concurrent increments are not lost", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		const n = 25
		var wg sync.WaitGroup
		wg.Add(n)
		for i := 0; i < n; i++ {
			go func() {
				defer wg.Done()
				_, err := s.IncrementRateLimit(ctx, "hot", base, time.Hour)
				assert.NoError(t, err)
			}()
		}
		wg.Wait()
		rec, err := s.GetRateLimit(ctx, "hot")
		require.NoError(t, err)
		require.NotNil(t, rec)
		require.Equal(t, n, rec.Count)
	})
}

func testActivations(t *testing.T, s store.Store) {
	ctx := context.Background()

	rec, err := s.GetActivation(ctx, "s1")
	require.NoError(t, err)
	require.Nil(t, rec)

	require.NoError(t, s.TouchActivation(ctx, "s1", base), "touching a missing record is a no-op")
	rec, err = s.GetActivation(ctx, "s1")
	require.NoError(t, err)
	require.Nil(t, rec)

	require.NoError(t, s.SetActivated(ctx, "s1", base))
	rec, err = s.GetActivation(ctx, "s1")
	require.NoError(t, err)
	require.NotNil(t, rec)
	require.True(t, rec.Activated)
	require.True(t, rec.ActivatedAt.Equal(base))

	later := base.Add(2 * time.Hour)
	require.NoError(t, s.SetActivated(ctx, "s1", later))
	require.NoError(t, s.TouchActivation(ctx, "s1", later.Add(time.Minute)))
	rec, err = s.GetActivation(ctx, "s1")
	require.NoError(t, err)
	require.True(t, rec.ActivatedAt.Equal(base), "activation time is kept")
	require.True(t, rec.LastMessageAt.Equal(later.Add(time.Minute)))

	require.NoError(t, s.SetActivated(ctx, "s2", base))
	n, err := s.CountActivations(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, n)
}

func testRegistrations(t *testing.T, s store.Store) {
	ctx := context.Background()

	n, err := s.CountRegistrations(ctx)
	require.NoError(t, err)
	require.Zero(t, n)

	_, err = s.SaveRegistration(ctx, domain.RegistrationRecord{Program: "PKH"})
	require.Error(t, err, "sender is required")

	var ids []string
	for i, name := range []string{"Ani", "Budi", "Citra"} {
		id, err := s.SaveRegistration(ctx, domain.RegistrationRecord{
			Sender:    "s1",
			Program:   "PKH",
			Name:      name,
			NIK:       "1234567890123456",
			Address:   "Jl. A",
			Phone:     "08123",
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		})
		require.NoError(t, err)
		require.NotEmpty(t, id)
		ids = append(ids, id)
	}
	require.NotEqual(t, ids[0], ids[1])

	n, err = s.CountRegistrations(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, n)

	recent, err := s.ListRecentRegistrations(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	require.Equal(t, "Citra", recent[0].Name)
	require.Equal(t, "Budi", recent[1].Name)
	require.Equal(t, domain.RegistrationStatusPending, recent[0].Status)
	require.Equal(t, "08123", recent[0].Phone)
	require.Equal(t, "s1", recent[0].Sender)
	require.Equal(t, ids[2], recent[0].ID)

	_, err = s.SaveRegistration(ctx, domain.RegistrationRecord{ID: ids[0], Sender: "s1"})
	require.ErrorIs(t, err, store.ErrDuplicateRegistration, "ids are unique")
}
