package dedupe

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cratedig/cratedig/internal/model"
	"github.com/cratedig/cratedig/internal/store"
)

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	s, err := store.NewSQLite(filepath.Join(t.TempDir(), "dedupe.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestResolver_IsDuplicateStaged(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	r := NewResolver(s)

	_, err := s.InsertStagedIfAbsent(ctx, &model.StagedRecord{
		Provider:   "youtube",
		SourceURL:  "https://youtube.com/watch?v=abc123",
		ExternalID: "abc123",
		RawTitle:   "Lane 8 - Spring Mix",
	})
	require.NoError(t, err)

	t.Run("same url", func(t *testing.T) {
		dup, err := r.IsDuplicateStaged(ctx, &model.StagedRecord{
			Provider:  "youtube",
			SourceURL: "https://youtube.com/watch?v=abc123",
		})
		require.NoError(t, err)
		assert.True(t, dup)
	})

	t.Run("same external id via different url", func(t *testing.T) {
		dup, err := r.IsDuplicateStaged(ctx, &model.StagedRecord{
			Provider:   "youtube",
			SourceURL:  "https://youtu.be/abc123",
			ExternalID: "abc123",
		})
		require.NoError(t, err)
		assert.True(t, dup)
	})

	t.Run("same id on another provider is not a duplicate", func(t *testing.T) {
		dup, err := r.IsDuplicateStaged(ctx, &model.StagedRecord{
			Provider:   "soundcloud",
			SourceURL:  "https://soundcloud.com/lane8/abc123",
			ExternalID: "abc123",
		})
		require.NoError(t, err)
		assert.False(t, dup)
	})

	t.Run("fresh record", func(t *testing.T) {
		dup, err := r.IsDuplicateStaged(ctx, &model.StagedRecord{
			Provider:   "youtube",
			SourceURL:  "https://youtube.com/watch?v=zzz999",
			ExternalID: "zzz999",
		})
		require.NoError(t, err)
		assert.False(t, dup)
	})
}

func TestResolver_FindDuplicateCanonical(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	r := NewResolver(s)

	entity := &model.Entity{
		Type:        model.EntityTypeMix,
		Name:        "Lane 8 - Spring Mix 2025",
		ExternalIDs: map[string]string{"youtube": "yt:abc123"},
	}
	require.NoError(t, s.CreateEntity(ctx, entity))

	t.Run("overlap on shared provider key", func(t *testing.T) {
		dup, err := r.FindDuplicateCanonical(ctx, model.EntityTypeMix,
			map[string]string{"youtube": "yt:abc123", "soundcloud": "sc:777"})
		require.NoError(t, err)
		require.NotNil(t, dup)
		assert.Equal(t, entity.ID, dup.EntityID)
		assert.Equal(t, "youtube", dup.MatchedKey)
	})

	t.Run("same provider, different id", func(t *testing.T) {
		dup, err := r.FindDuplicateCanonical(ctx, model.EntityTypeMix,
			map[string]string{"youtube": "yt:zzz999"})
		require.NoError(t, err)
		assert.Nil(t, dup)
	})

	t.Run("no overlap", func(t *testing.T) {
		dup, err := r.FindDuplicateCanonical(ctx, model.EntityTypeMix,
			map[string]string{"soundcloud": "sc:777"})
		require.NoError(t, err)
		assert.Nil(t, dup)
	})

	t.Run("empty set short-circuits", func(t *testing.T) {
		dup, err := r.FindDuplicateCanonical(ctx, model.EntityTypeMix, nil)
		require.NoError(t, err)
		assert.Nil(t, dup)
	})

	t.Run("type scoped", func(t *testing.T) {
		dup, err := r.FindDuplicateCanonical(ctx, model.EntityTypeTrack,
			map[string]string{"youtube": "yt:abc123"})
		require.NoError(t, err)
		assert.Nil(t, dup)
	})
}

func TestMergeStagedIntoEntity_HigherPriorityOverwrites(t *testing.T) {
	e := &model.Entity{
		Type:        model.EntityTypeMix,
		Name:        "spring mix (youtube rip)",
		ExternalIDs: map[string]string{"youtube": "yt:abc123"},
		Metadata:    map[string]string{"source": "youtube", "genre": "house"},
	}
	rec := &model.StagedRecord{
		Provider:   "1001tracklists",
		ExternalID: "tl-555",
		RawTitle:   "Lane 8 - Spring Mix 2025",
		Metadata:   map[string]string{"genre": "progressive house", "event": "Spring Tour"},
	}

	require.NoError(t, MergeStagedIntoEntity(e, rec))

	assert.Equal(t, "Lane 8 - Spring Mix 2025", e.Name)
	assert.Equal(t, "yt:abc123", e.ExternalIDs["youtube"])
	assert.Equal(t, "tl:tl-555", e.ExternalIDs["1001tracklists"])
	assert.Equal(t, "progressive house", e.Metadata["genre"])
	assert.Equal(t, "Spring Tour", e.Metadata["event"])
	assert.Equal(t, "1001tracklists", e.Metadata["source"])
}

func TestMergeStagedIntoEntity_LowerPriorityOnlyFillsGaps(t *testing.T) {
	e := &model.Entity{
		Type:        model.EntityTypeMix,
		Name:        "Lane 8 - Spring Mix 2025",
		ExternalIDs: map[string]string{"1001tracklists": "tl:tl-555"},
		Metadata:    map[string]string{"source": "1001tracklists", "genre": "progressive house"},
	}
	rec := &model.StagedRecord{
		Provider:   "youtube",
		ExternalID: "abc123",
		RawTitle:   "spring mix (youtube rip)",
		Metadata:   map[string]string{"genre": "house", "channel": "Lane 8 Official"},
	}

	require.NoError(t, MergeStagedIntoEntity(e, rec))

	assert.Equal(t, "Lane 8 - Spring Mix 2025", e.Name, "name from higher-priority source kept")
	assert.Equal(t, "progressive house", e.Metadata["genre"], "existing key kept")
	assert.Equal(t, "Lane 8 Official", e.Metadata["channel"], "gap filled")
	assert.Equal(t, "1001tracklists", e.Metadata["source"])
	assert.Equal(t, "yt:abc123", e.ExternalIDs["youtube"], "external id always joins the set")
}

func TestMergeStagedIntoEntity_SameProviderReplacesID(t *testing.T) {
	e := &model.Entity{
		Type:        model.EntityTypeMix,
		Name:        "Lane 8 - Spring Mix 2025",
		ExternalIDs: map[string]string{"youtube": "yt:abc123"},
		Metadata:    map[string]string{"source": "youtube"},
	}
	rec := &model.StagedRecord{
		Provider:   "youtube",
		ExternalID: "reupload456",
		RawTitle:   "Lane 8 - Spring Mix 2025 (Re-upload)",
	}

	require.NoError(t, MergeStagedIntoEntity(e, rec))

	assert.Equal(t, map[string]string{"youtube": "yt:reupload456"}, e.ExternalIDs,
		"one identifier per provider, newest wins")
}

func TestMergeStagedIntoEntity_Idempotent(t *testing.T) {
	e := &model.Entity{
		Type:     model.EntityTypeMix,
		Name:     "Lane 8 - Spring Mix 2025",
		Metadata: map[string]string{},
	}
	rec := &model.StagedRecord{
		Provider:   "soundcloud",
		ExternalID: "sc-42",
		RawTitle:   "Spring Mix 2025",
		Metadata:   map[string]string{"genre": "house"},
	}

	require.NoError(t, MergeStagedIntoEntity(e, rec))
	firstName := e.Name
	firstExt := map[string]string{}
	for k, v := range e.ExternalIDs {
		firstExt[k] = v
	}
	firstMeta := map[string]string{}
	for k, v := range e.Metadata {
		firstMeta[k] = v
	}

	require.NoError(t, MergeStagedIntoEntity(e, rec))
	assert.Equal(t, firstName, e.Name)
	assert.Equal(t, firstExt, e.ExternalIDs)
	assert.Equal(t, firstMeta, e.Metadata)
}

func TestMergeStagedIntoEntity_UnknownProvider(t *testing.T) {
	e := &model.Entity{Type: model.EntityTypeMix}
	err := MergeStagedIntoEntity(e, &model.StagedRecord{Provider: "mixcloud", ExternalID: "x"})
	assert.Error(t, err)
}
