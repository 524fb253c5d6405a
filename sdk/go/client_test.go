package gaplinesdk

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientSendsActorAndDecodes(t *testing.T) {
	var gotPath, gotQuery, gotActor string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		gotActor = r.Header.Get("X-Actor-ID")
		data, _ := io.ReadAll(r.Body)
		if len(data) > 0 {
			_ = json.Unmarshal(data, &gotBody)
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"assessment_id":"as-1","created":2,"actions_seeded":8,"programs":[{"id":"pi-1","code":"P1","wave":"now","status":"active"}]}`)
	}))
	defer srv.Close()

	c := New(srv.URL)
	c.ActorID = "ana"
	res, err := c.Activate(context.Background(), "as-1", RoadmapOptions{MaxPerPhase: 3})
	require.NoError(t, err)
	assert.Equal(t, "/v0/assessments/as-1/activation", gotPath)
	assert.Empty(t, gotQuery)
	assert.Equal(t, "ana", gotActor)
	assert.Equal(t, float64(3), gotBody["max_per_phase"])
	assert.Equal(t, 2, res.Created)
	require.Len(t, res.Programs, 1)
	assert.Equal(t, "active", res.Programs[0].Status)

	_, err = c.Roadmap(context.Background(), "as-1", RoadmapOptions{MaxPerPhase: 2, UseOverrides: true})
	require.NoError(t, err)
	assert.Equal(t, "/v0/assessments/as-1/roadmap", gotPath)
	assert.Equal(t, "max_per_phase=2&use_overrides=true", gotQuery)
}

func TestClientPrefersBearerToken(t *testing.T) {
	var authz, actor string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authz = r.Header.Get("Authorization")
		actor = r.Header.Get("X-Actor-ID")
		io.WriteString(w, `{"items":[]}`)
	}))
	defer srv.Close()

	c := New(srv.URL)
	c.ActorID = "ana"
	c.BearerToken = "tok"
	items, err := c.Events(context.Background(), "as-1", 5)
	require.NoError(t, err)
	assert.Empty(t, items)
	assert.Equal(t, "Bearer tok", authz)
	assert.Empty(t, actor)
}

func TestClientDecodesErrorEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		io.WriteString(w, `{"error":{"code":"bad_request","message":"notes: required when revoking impact validation","details":{"field":"notes"}}}`)
	}))
	defer srv.Close()

	c := New(srv.URL)
	_, err := c.SetImpactValidation(context.Background(), "a-1", false, "")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, "bad_request", apiErr.Code)
	assert.Contains(t, apiErr.Error(), "notes")
}

func TestClientWithoutBasePath(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		io.WriteString(w, `{"items":[]}`)
	}))
	defer srv.Close()

	c := New(srv.URL + "/")
	c.BasePath = ""
	_, err := c.Actions(context.Background(), "as 1", true)
	require.NoError(t, err)
	assert.Equal(t, "/assessments/as 1/actions", gotPath)
}
