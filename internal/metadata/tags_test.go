package metadata

import (
	"context"
	"testing"

	"github.com/petermazzocco/go-image-host/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListTags(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()

	mustSave(t, s,
		newRecord("i1", 0, models.Landscape, "zebra", "cat"),
		newRecord("i2", 1, models.Landscape, "cat"),
	)
	_, err := s.CreateTag(ctx, "empty")
	require.NoError(t, err)

	tags, err := s.ListTags(ctx)
	require.NoError(t, err)
	assert.Equal(t, []TagCount{
		{Name: "cat", Count: 2},
		{Name: "empty", Count: 0},
		{Name: "zebra", Count: 1},
	}, tags)
}

func TestListTags_Empty(t *testing.T) {
	s, _ := newTestService(t)

	tags, err := s.ListTags(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, tags)
	assert.Empty(t, tags)
}

func TestCreateTag_Idempotent(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()

	created, err := s.CreateTag(ctx, "cat")
	require.NoError(t, err)
	assert.True(t, created)

	created, err = s.CreateTag(ctx, " cat ")
	require.NoError(t, err)
	assert.False(t, created)

	// Case-sensitive
	created, err = s.CreateTag(ctx, "Cat")
	require.NoError(t, err)
	assert.True(t, created)

	_, err = s.CreateTag(ctx, "  ")
	assert.ErrorIs(t, err, ErrInvalidTag)

	tags, err := s.ListTags(ctx)
	require.NoError(t, err)
	assert.Len(t, tags, 2)
}

func TestRenameTag(t *testing.T) {
	s, gdb := newTestService(t)
	ctx := context.Background()

	mustSave(t, s, newRecord("img1", 0, models.Landscape, "cat", "orange"))

	count, err := s.RenameTag(ctx, "cat", "feline")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	got, err := s.GetImage(ctx, "img1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"feline", "orange"}, got.Tags)
	assert.NotContains(t, got.Tags, "cat")
	assert.Equal(t, int64(2), linkCount(t, gdb))
}

func TestRenameTag_EdgeCases(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()

	mustSave(t, s, newRecord("img1", 0, models.Landscape, "cat", "dog"))

	count, err := s.RenameTag(ctx, "missing", "other")
	require.NoError(t, err)
	assert.Zero(t, count)

	count, err = s.RenameTag(ctx, "cat", "cat")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	// Renaming onto an existing name violates uniqueness
	_, err = s.RenameTag(ctx, "cat", "dog")
	assert.Error(t, err)

	_, err = s.RenameTag(ctx, "cat", "")
	assert.ErrorIs(t, err, ErrInvalidTag)

	got, err := s.GetImage(ctx, "img1")
	require.NoError(t, err)
	assert.Equal(t, []string{"cat", "dog"}, got.Tags)
}

func TestDeleteTag(t *testing.T) {
	s, gdb := newTestService(t)
	ctx := context.Background()

	mustSave(t, s,
		newRecord("i1", 0, models.Landscape, "a", "b"),
		newRecord("i2", 1, models.Landscape, "a"),
	)

	count, err := s.DeleteTag(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	i1, err := s.GetImage(ctx, "i1")
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, i1.Tags)

	i2, err := s.GetImage(ctx, "i2")
	require.NoError(t, err)
	assert.Empty(t, i2.Tags)

	assert.Equal(t, int64(1), linkCount(t, gdb))
	assert.Zero(t, danglingLinks(t, gdb))

	count, err = s.DeleteTag(ctx, "a")
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestBatchUpdateTags(t *testing.T) {
	s, gdb := newTestService(t)
	ctx := context.Background()

	mustSave(t, s,
		newRecord("i1", 0, models.Landscape, "old", "keep"),
		newRecord("i2", 1, models.Landscape, "old"),
		newRecord("i3", 2, models.Landscape, "old"),
	)

	n, err := s.BatchUpdateTags(ctx, []string{"i1", "i2", "ghost"}, []string{"new", "keep"}, []string{"old"})
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	i1, err := s.GetImage(ctx, "i1")
	require.NoError(t, err)
	assert.Equal(t, []string{"keep", "new"}, i1.Tags)

	i2, err := s.GetImage(ctx, "i2")
	require.NoError(t, err)
	assert.Equal(t, []string{"keep", "new"}, i2.Tags)

	i3, err := s.GetImage(ctx, "i3")
	require.NoError(t, err)
	assert.Equal(t, []string{"old"}, i3.Tags)

	assert.Zero(t, danglingLinks(t, gdb))
}

func TestBatchUpdateTags_AddWins(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()

	mustSave(t, s,
		newRecord("with", 0, models.Landscape, "x"),
		newRecord("without", 1, models.Landscape),
	)

	n, err := s.BatchUpdateTags(ctx, []string{"with", "without"}, []string{"x"}, []string{"x"})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	for _, id := range []string{"with", "without"} {
		got, err := s.GetImage(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, []string{"x"}, got.Tags, id)
	}
}

func TestBatchUpdateTags_NoImages(t *testing.T) {
	s, _ := newTestService(t)

	n, err := s.BatchUpdateTags(context.Background(), nil, []string{"x"}, nil)
	require.NoError(t, err)
	assert.Zero(t, n)

	tags, err := s.ListTags(context.Background())
	require.NoError(t, err)
	assert.Empty(t, tags)
}
