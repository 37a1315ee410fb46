package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cratedig/cratedig/internal/model"
	"github.com/cratedig/cratedig/internal/store"
)

func newTestServer(t *testing.T) (*httptest.Server, *store.SQLiteStore) {
	t.Helper()
	s, err := store.NewSQLite(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { _ = s.Close() })

	srv := httptest.NewServer(NewServer(s).Router())
	t.Cleanup(srv.Close)
	return srv, s
}

func decode(t *testing.T, resp *http.Response, out any) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
}

func seedSuggestion(t *testing.T, s *store.SQLiteStore) model.ContextSuggestion {
	t.Helper()
	ctx := context.Background()
	_, err := s.InsertStagedIfAbsent(ctx, &model.StagedRecord{
		ID:        "rec-1",
		Provider:  "youtube",
		SourceURL: "https://youtube.com/watch?v=abc",
		RawTitle:  "Amelie Lens - Tomorrowland 2025",
	})
	require.NoError(t, err)

	sg := []model.ContextSuggestion{{
		StagedRecordID:   "rec-1",
		RuleID:           "rule-1",
		ContextType:      model.ContextTypeFestival,
		ContextName:      "Tomorrowland",
		Confidence:       0.9,
		RequiresApproval: true,
	}}
	require.NoError(t, s.InsertSuggestions(ctx, sg))
	return sg[0]
}

func TestHealthz(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]string
	decode(t, resp, &body)
	assert.Equal(t, "ok", body["status"])
}

func TestListSuggestions(t *testing.T) {
	srv, s := newTestServer(t)
	seedSuggestion(t, s)

	resp, err := http.Get(srv.URL + "/api/v1/suggestions?status=pending")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Suggestions []model.ContextSuggestion `json:"suggestions"`
	}
	decode(t, resp, &body)
	require.Len(t, body.Suggestions, 1)
	assert.Equal(t, "Tomorrowland", body.Suggestions[0].ContextName)
}

func TestApproveSuggestion(t *testing.T) {
	srv, s := newTestServer(t)
	sg := seedSuggestion(t, s)

	resp, err := http.Post(
		srv.URL+"/api/v1/suggestions/"+sg.ID+"/approve",
		"application/json",
		strings.NewReader(`{"reviewed_by":"ana"}`))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	got, err := s.GetSuggestion(context.Background(), sg.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SuggestionStatusApproved, got.Status)
	assert.Equal(t, "ana", got.ReviewedBy)
}

func TestRejectSuggestion(t *testing.T) {
	srv, s := newTestServer(t)
	sg := seedSuggestion(t, s)

	resp, err := http.Post(
		srv.URL+"/api/v1/suggestions/"+sg.ID+"/reject",
		"application/json",
		strings.NewReader(`{"reviewed_by":"ana"}`))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	got, err := s.GetSuggestion(context.Background(), sg.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SuggestionStatusRejected, got.Status)
}

func TestReviewValidation(t *testing.T) {
	srv, s := newTestServer(t)
	sg := seedSuggestion(t, s)

	t.Run("missing reviewer", func(t *testing.T) {
		resp, err := http.Post(
			srv.URL+"/api/v1/suggestions/"+sg.ID+"/approve",
			"application/json",
			strings.NewReader(`{}`))
		require.NoError(t, err)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		resp.Body.Close()
	})

	t.Run("unknown suggestion", func(t *testing.T) {
		resp, err := http.Post(
			srv.URL+"/api/v1/suggestions/no-such-id/approve",
			"application/json",
			strings.NewReader(`{"reviewed_by":"ana"}`))
		require.NoError(t, err)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		resp.Body.Close()
	})
}

func TestListAmbiguous(t *testing.T) {
	srv, s := newTestServer(t)
	require.NoError(t, s.InsertAmbiguousMatches(context.Background(), []model.AmbiguousMatch{{
		EntityType: model.EntityTypeArtist,
		Query:      "Lane 8",
		Candidate:  "Lane8",
		EntityID:   "ent-1",
		Score:      0.83,
	}}))

	resp, err := http.Get(srv.URL + "/api/v1/ambiguous")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		AmbiguousMatches []model.AmbiguousMatch `json:"ambiguous_matches"`
	}
	decode(t, resp, &body)
	require.Len(t, body.AmbiguousMatches, 1)
	assert.Equal(t, "Lane 8", body.AmbiguousMatches[0].Query)
}

func TestJobStats(t *testing.T) {
	srv, s := newTestServer(t)
	_, err := s.EnqueueJob(context.Background(), model.WorkerTypeCanonicalize, nil, 5)
	require.NoError(t, err)

	resp, err := http.Get(srv.URL + "/api/v1/jobs/stats")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var stats model.JobStats
	decode(t, resp, &stats)
	assert.Equal(t, 1, stats.Pending)
}

func TestSearchEntities(t *testing.T) {
	srv, s := newTestServer(t)
	require.NoError(t, s.CreateEntity(context.Background(), &model.Entity{
		Type: model.EntityTypeArtist,
		Name: "Lane 8",
	}))

	resp, err := http.Get(srv.URL + "/api/v1/entities?type=artist&q=lane")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Entities []model.Entity `json:"entities"`
	}
	decode(t, resp, &body)
	require.Len(t, body.Entities, 1)
	assert.Equal(t, "Lane 8", body.Entities[0].Name)

	resp, err = http.Get(srv.URL + "/api/v1/entities")
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}
