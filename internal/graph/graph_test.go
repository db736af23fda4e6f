package graph

import (
	"context"
	"testing"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/d60-Lab/social-feed/internal/repository"
	"github.com/d60-Lab/social-feed/internal/testutil"
)

func TestSQLReader(t *testing.T) {
	db := testutil.NewDB(t)
	follows := repository.NewFollowRepository(db)
	fans := repository.NewFanRepository(db)
	ctx := context.Background()

	// 1、2 关注 3
	for _, f := range []int64{1, 2} {
		_, err := follows.Create(ctx, f, 3)
		require.NoError(t, err)
		require.NoError(t, fans.Create(ctx, 3, f))
	}

	r := NewSQLReader(follows, fans)
	followers, err := r.FollowersOf(ctx, 3)
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{1, 2}, followers)

	following, err := r.FollowingOf(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []int64{3}, following)

	following, err = r.FollowingOf(ctx, 3)
	require.NoError(t, err)
	assert.Empty(t, following)
}

func TestIDsFromRecords(t *testing.T) {
	records := []*neo4j.Record{
		{Keys: []string{"id"}, Values: []any{int64(4)}},
		{Keys: []string{"id"}, Values: []any{int64(9)}},
	}
	ids, err := idsFromRecords(records, "id")
	require.NoError(t, err)
	assert.Equal(t, []int64{4, 9}, ids)

	_, err = idsFromRecords([]*neo4j.Record{{Keys: []string{"x"}, Values: []any{int64(1)}}}, "id")
	assert.Error(t, err)

	_, err = idsFromRecords([]*neo4j.Record{{Keys: []string{"id"}, Values: []any{"1"}}}, "id")
	assert.Error(t, err)
}
