package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steveyegge/medic/internal/storage/storetest"
	"github.com/steveyegge/medic/internal/types"
)

func TestStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) storetest.Store { return New() })
}

func TestStore_CopiesRecords(t *testing.T) {
	ctx := context.Background()
	s := New()
	rec := storetest.Record("c1", types.DatabaseLocked, types.SeverityHigh, "database is locked", []string{"database"}, time.Now())
	require.NoError(t, s.Insert(ctx, rec))

	rec.Keywords[0] = "mutated"
	got, err := s.Get(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, []string{"database"}, got.Keywords)

	got.Status = types.StatusFixed
	again, err := s.Get(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, types.StatusAnalyzed, again.Status)
}

func TestStore_ClosedRejectsInsert(t *testing.T) {
	s := New()
	require.NoError(t, s.Close())
	err := s.Insert(context.Background(), storetest.Record("x", types.Unknown, types.SeverityLow, "x", nil, time.Now()))
	assert.Error(t, err)
}
