package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GetwithitMan/gwi-pos-sub001/tips"
	"github.com/GetwithitMan/gwi-pos-sub001/tips/store"
)

func memEntry(id, key string) tips.LedgerEntry {
	at := time.Date(2024, 3, 10, 19, 0, 0, 0, time.UTC)
	return tips.LedgerEntry{
		ID:             tips.EntryID(id),
		EmployeeID:     "emp-1",
		Amount:         tips.MustParseMoney("5.00"),
		Type:           tips.EntryDirectTip,
		IdempotencyKey: key,
		EffectiveAt:    at,
		CreatedAt:      at,
	}
}

func TestMemoryWithTx_RollbackDiscardsUnitWrites(t *testing.T) {
	// GIVEN: A unit that appends an entry and then fails
	mem := store.NewMemory()
	ctx := context.Background()
	boom := errors.New("boom")

	err := mem.WithTx(ctx, func(s tips.Store) error {
		if err := s.AppendEntry(ctx, memEntry("e-1", "k-1")); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	// THEN: Nothing persisted, including the idempotency key
	entries, err := mem.EntriesByEmployee(ctx, "emp-1")
	require.NoError(t, err)
	assert.Empty(t, entries)
	existing, err := mem.EntryByIdempotencyKey(ctx, "k-1")
	require.NoError(t, err)
	assert.Nil(t, existing)
}

func TestMemoryWithTx_RollbackCannotEraseConcurrentAppend(t *testing.T) {
	// GIVEN: A failing unit in flight while another caller appends
	// WHEN: The unit rolls back
	// THEN: The concurrent append commits after the unit and survives it

	mem := store.NewMemory()
	ctx := context.Background()
	boom := errors.New("boom")

	inUnit := make(chan struct{})
	release := make(chan struct{})
	unitDone := make(chan error, 1)
	go func() {
		unitDone <- mem.WithTx(ctx, func(s tips.Store) error {
			if err := s.AppendEntry(ctx, memEntry("e-tx", "k-tx")); err != nil {
				return err
			}
			close(inUnit)
			<-release
			return boom
		})
	}()
	<-inUnit

	appendDone := make(chan error, 1)
	go func() {
		// Blocks until the unit releases the store
		appendDone <- mem.AppendEntry(ctx, memEntry("e-live", "k-live"))
	}()

	close(release)
	require.ErrorIs(t, <-unitDone, boom)
	require.NoError(t, <-appendDone)

	entries, err := mem.EntriesByEmployee(ctx, "emp-1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, tips.EntryID("e-live"), entries[0].ID)

	live, err := mem.EntryByIdempotencyKey(ctx, "k-live")
	require.NoError(t, err)
	require.NotNil(t, live)
	rolled, err := mem.EntryByIdempotencyKey(ctx, "k-tx")
	require.NoError(t, err)
	assert.Nil(t, rolled)
}
