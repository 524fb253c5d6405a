package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"gapline/internal/config"
	"gapline/internal/db"
	"gapline/internal/domain"
	"gapline/internal/engine"
	"gapline/internal/migrate"
)

const testSecret = "test-secret"

type testServer struct {
	URL    string
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T) (*testServer, func()) {
	t.Helper()
	workspace := t.TempDir()
	if _, err := db.EnsureWorkspace(workspace); err != nil {
		t.Fatalf("ensure workspace: %v", err)
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if _, err := migrate.Migrate(context.Background(), conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := engine.New(conn, config.Default(), zap.NewNop())
	handler, err := New(Config{
		Engine:   e,
		BasePath: "/v0",
		Auth:     AuthConfig{JWTSecret: testSecret, AllowActorHeader: true},
	})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func programItem(code string, impact, effort int, links ...map[string]any) map[string]any {
	return map[string]any{
		"kind":        "program",
		"code":        code,
		"title":       "Program " + code,
		"impact":      impact,
		"effort":      effort,
		"shortlisted": true,
		"criteria":    links,
	}
}

func criterionLink(code string, weight float64) map[string]any {
	return map[string]any{"criteria_code": code, "map_weight": weight, "pack_weight": 1}
}

func response(code string, asIs, toBe, importance int) map[string]any {
	return map[string]any{"criteria_code": code, "as_is_level": asIs, "to_be_level": toBe, "importance": importance}
}

// seedAssessment imports pack DM and answers assessment as-1 so P1 and P2 land in
// phase A and P3 in phase B.
func seedAssessment(t *testing.T, srv *testServer) {
	t.Helper()
	client := srv.Client()
	res, data := doJSON(t, client, http.MethodPut, srv.URL+"/v0/packs", map[string]any{
		"code":  "DM",
		"title": "Digital maturity",
		"criteria": []map[string]any{
			{"code": "C1"}, {"code": "C2"}, {"code": "C3"}, {"code": "C4"},
		},
		"items": []map[string]any{
			programItem("P1", 5, 2, criterionLink("C1", 1)),
			programItem("P2", 4, 1, criterionLink("C3", 1)),
			programItem("P3", 4, 4, criterionLink("C1", 0.5), criterionLink("C4", 1)),
			programItem("P5", 2, 1, criterionLink("C4", 1)),
		},
	}, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/assessments", map[string]any{
		"id": "as-1", "pack_code": "DM", "name": "first",
	}, nil)
	require.Equal(t, http.StatusCreated, res.StatusCode, string(data))

	res, data = doJSON(t, client, http.MethodPut, srv.URL+"/v0/assessments/as-1/responses", map[string]any{
		"responses": []map[string]any{
			response("C1", 1, 4, 5), response("C2", 3, 3, 4), response("C3", 2, 5, 3), response("C4", 2, 3, 2),
		},
	}, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
}

func activate(t *testing.T, srv *testServer, headers map[string]string) engine.ActivationResult {
	t.Helper()
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/assessments/as-1/activation", map[string]any{}, headers)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var out engine.ActivationResult
	require.NoError(t, json.Unmarshal(data, &out))
	return out
}

func decodeError(t *testing.T, data []byte) apiErrorBody {
	t.Helper()
	var env struct {
		Error apiErrorBody `json:"error"`
	}
	require.NoError(t, json.Unmarshal(data, &env), string(data))
	return env.Error
}

func TestRankingAndRoadmap(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	seedAssessment(t, srv)
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v0/assessments/as-1/ranking", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var ranking engine.Ranking
	require.NoError(t, json.Unmarshal(data, &ranking))
	require.Len(t, ranking.Items, 4)
	assert.False(t, ranking.UsingFallback)
	assert.Equal(t, "P1", ranking.Items[0].Code)
	assert.Equal(t, "TOP", string(ranking.Items[0].Priority))

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/assessments/as-1/roadmap?max_per_phase=2", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var view engine.RoadmapView
	require.NoError(t, json.Unmarshal(data, &view))
	require.Len(t, view.Phases, 3)
	assert.Len(t, view.Phases[0].Items, 2)

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/assessments/as-1/roadmap?max_per_phase=9", nil, nil)
	require.Equal(t, http.StatusBadRequest, res.StatusCode, string(data))
	assert.Equal(t, "max_per_phase", decodeError(t, data).Details["field"])

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/assessments/as-1/criteria", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
}

func TestUnknownAssessmentIsNotFound(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/assessments/missing/ranking", nil, nil)
	require.Equal(t, http.StatusNotFound, res.StatusCode, string(data))
	body := decodeError(t, data)
	assert.Equal(t, "not_found", body.Code)
	assert.Equal(t, "assessment", body.Details["kind"])
}

func TestDuplicateAssessmentIsConflict(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	seedAssessment(t, srv)

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/assessments", map[string]any{
		"id": "as-1", "pack_code": "DM",
	}, nil)
	require.Equal(t, http.StatusConflict, res.StatusCode, string(data))
	body := decodeError(t, data)
	assert.Equal(t, "conflict", body.Code)
	assert.Equal(t, "as-1", body.Details["id"])
	assert.NotContains(t, string(data), "UNIQUE")
}

func TestPackReimportDropsRemovedItems(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	seedAssessment(t, srv)
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPut, srv.URL+"/v0/packs", map[string]any{
		"code":     "DM",
		"criteria": []map[string]any{{"code": "C1"}, {"code": "C2"}, {"code": "C3"}, {"code": "C4"}},
		"items":    []map[string]any{programItem("P2", 4, 1, criterionLink("C3", 1))},
	}, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/assessments/as-1/ranking", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var ranking engine.Ranking
	require.NoError(t, json.Unmarshal(data, &ranking))
	require.Len(t, ranking.Items, 1)
	assert.Equal(t, "P2", ranking.Items[0].Code)
}

func TestActivationAndActionTracking(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	seedAssessment(t, srv)
	client := srv.Client()

	out := activate(t, srv, map[string]string{actorHeader: "ana"})
	assert.Equal(t, 3, out.Created)
	assert.Equal(t, 12, out.ActionsSeeded)

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v0/assessments/as-1/actions?only_top=true", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var tracked TrackedActionList
	require.NoError(t, json.Unmarshal(data, &tracked))
	require.Len(t, tracked.Items, 8)
	first := tracked.Items[0]
	assert.Equal(t, "P1", first.ProgramCode)

	res, data = doJSON(t, client, http.MethodPatch, srv.URL+"/v0/actions/"+first.ID, map[string]any{
		"status": "done",
		"owner":  "ops",
	}, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var updated engine.ActionUpdate
	require.NoError(t, json.Unmarshal(data, &updated))
	assert.Equal(t, domain.ActionDone, updated.Action.Status)
	assert.Equal(t, 25, updated.ProgressPct)
	assert.Equal(t, 1, updated.KPIs.ActionsDone)

	res, data = doJSON(t, client, http.MethodPatch, srv.URL+"/v0/actions/"+first.ID, map[string]any{
		"due_date": "next week",
	}, nil)
	require.Equal(t, http.StatusBadRequest, res.StatusCode, string(data))

	res, data = doJSON(t, client, http.MethodPatch, srv.URL+"/v0/programs/"+first.ProgramInstanceID, map[string]any{
		"status":       "blocked",
		"blocker_note": "budget",
	}, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var program domain.ProgramInstance
	require.NoError(t, json.Unmarshal(data, &program))
	assert.Equal(t, domain.ProgramBlocked, program.Status)

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/assessments/as-1/overview", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var ov engine.Overview
	require.NoError(t, json.Unmarshal(data, &ov))
	assert.Len(t, ov.Programs, 3)
	assert.Equal(t, 12, ov.KPIs.ActionsTotal)

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/events?assessment_id=as-1&type=activation.completed", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var evts EventList
	require.NoError(t, json.Unmarshal(data, &evts))
	require.Len(t, evts.Items, 1)
	assert.Equal(t, "ana", evts.Items[0].ActorID)
}

func TestImpactValidationUsesTokenSubject(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	seedAssessment(t, srv)
	activate(t, srv, nil)
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v0/assessments/as-1/actions", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var tracked TrackedActionList
	require.NoError(t, json.Unmarshal(data, &tracked))
	actionID := tracked.Items[0].ID

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{Subject: "carla"}).SignedString([]byte(testSecret))
	require.NoError(t, err)
	auth := map[string]string{"Authorization": "Bearer " + token}

	res, data = doJSON(t, client, http.MethodPut, srv.URL+"/v0/actions/"+actionID+"/impact-validation", map[string]any{
		"validated": true,
	}, auth)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var out engine.ActionUpdate
	require.NoError(t, json.Unmarshal(data, &out))
	assert.True(t, out.Action.ImpactValidated)
	assert.Equal(t, "carla", out.Action.ImpactValidatedBy)
	assert.Equal(t, 1, out.KPIs.ActionsValidated)

	res, data = doJSON(t, client, http.MethodPut, srv.URL+"/v0/actions/"+actionID+"/impact-validation", map[string]any{
		"validated": false,
	}, auth)
	require.Equal(t, http.StatusBadRequest, res.StatusCode, string(data))
	assert.Equal(t, "notes", decodeError(t, data).Details["field"])

	res, data = doJSON(t, client, http.MethodPut, srv.URL+"/v0/actions/"+actionID+"/impact-validation", map[string]any{
		"validated": false,
		"notes":     "metric regressed",
	}, auth)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	require.NoError(t, json.Unmarshal(data, &out))
	assert.False(t, out.Action.ImpactValidated)
	assert.Equal(t, "metric regressed", out.Action.ImpactValidationNotes)
}

func TestInvalidBearerRejected(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/assessments", nil, map[string]string{"Authorization": "Bearer nope"})
	require.Equal(t, http.StatusUnauthorized, res.StatusCode, string(data))
	assert.Equal(t, "invalid_credentials", decodeError(t, data).Code)

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/health", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
}

func TestPackImportRejectsBadCatalog(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodPut, srv.URL+"/v0/packs", map[string]any{
		"code":     "DM",
		"criteria": []map[string]any{{"code": "C1"}},
		"items": []map[string]any{
			programItem("P1", 3, 2, criterionLink("C9", 1)),
		},
	}, nil)
	require.Equal(t, http.StatusBadRequest, res.StatusCode, string(data))

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/packs/DM", nil, nil)
	require.Equal(t, http.StatusNotFound, res.StatusCode, string(data))
}

func TestOpenAPIDeclaresErrorEnvelopeAndAuth(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/openapi.json", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	var doc struct {
		Components struct {
			SecuritySchemes map[string]any `json:"securitySchemes"`
		} `json:"components"`
		Paths map[string]map[string]struct {
			Responses map[string]struct {
				Content map[string]struct {
					Schema struct {
						Ref string `json:"$ref"`
					} `json:"schema"`
				} `json:"content"`
			} `json:"responses"`
		} `json:"paths"`
	}
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Contains(t, doc.Components.SecuritySchemes, "bearerAuth")
	assert.Contains(t, doc.Components.SecuritySchemes, "actorHeader")

	op, ok := doc.Paths["/v0/assessments"]["post"]
	require.True(t, ok)
	assert.Equal(t, "#/components/schemas/ApiError", op.Responses["default"].Content["application/json"].Schema.Ref)
	assert.Contains(t, op.Responses, "409")
}
