package gaplinesdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Gapline HTTP API client.
type Client struct {
	BaseURL     string
	BasePath    string
	ActorID     string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL:  baseURL,
		BasePath: "/v0",
		Timeout:  10 * time.Second,
	}
}

// Assessment represents an assessment bound to a pack.
type Assessment struct {
	ID        string `json:"id"`
	PackCode  string `json:"pack_code"`
	Name      string `json:"name,omitempty"`
	CreatedAt string `json:"created_at"`
}

// Response is one criterion answer; nil levels are unanswered.
type Response struct {
	CriteriaCode string `json:"criteria_code"`
	AsIsLevel    *int   `json:"as_is_level,omitempty"`
	ToBeLevel    *int   `json:"to_be_level,omitempty"`
	Importance   *int   `json:"importance,omitempty"`
}

// RankedItem represents a ranked program or action (partial).
type RankedItem struct {
	ItemID       string  `json:"item_id"`
	Code         string  `json:"code"`
	Title        string  `json:"title"`
	Rank         int     `json:"rank"`
	WeightedNeed float64 `json:"weighted_need"`
	ItemScore    float64 `json:"item_score"`
	ImpactScore  int     `json:"impact_score"`
	EffortScore  int     `json:"effort_score"`
	Quadrant     string  `json:"quadrant"`
	Priority     string  `json:"priority,omitempty"`
}

// Ranking is the ranked list with its fallback flag.
type Ranking struct {
	AssessmentID  string       `json:"assessment_id"`
	Kind          string       `json:"kind"`
	Profile       string       `json:"profile"`
	Items         []RankedItem `json:"items"`
	UsingFallback bool         `json:"using_fallback"`
	Disclaimer    string       `json:"disclaimer,omitempty"`
}

// Phase is one roadmap bucket.
type Phase struct {
	Phase    string       `json:"phase"`
	Wave     string       `json:"wave"`
	Title    string       `json:"title"`
	Subtitle string       `json:"subtitle"`
	Items    []RankedItem `json:"items"`
}

// Roadmap is the phase allocation preview.
type Roadmap struct {
	AssessmentID  string       `json:"assessment_id"`
	UsingFallback bool         `json:"using_fallback"`
	Disclaimer    string       `json:"disclaimer,omitempty"`
	MaxPerPhase   int          `json:"max_per_phase"`
	Phases        []Phase      `json:"phases"`
	Overflow      []RankedItem `json:"overflow"`
}

// RoadmapOptions tune allocation; zero values use server defaults.
type RoadmapOptions struct {
	MaxPerPhase   int  `json:"max_per_phase,omitempty"`
	OnlyShortlist bool `json:"only_shortlist,omitempty"`
	UseOverrides  bool `json:"use_overrides,omitempty"`
}

// Program represents an activated program instance (partial).
type Program struct {
	ID           string  `json:"id"`
	AssessmentID string  `json:"assessment_id"`
	Code         string  `json:"code"`
	Title        string  `json:"title"`
	Rank         int     `json:"rank"`
	WeightedNeed float64 `json:"weighted_need"`
	Priority     string  `json:"priority,omitempty"`
	Wave         string  `json:"wave"`
	Status       string  `json:"status"`
	OwnerRole    string  `json:"owner_role,omitempty"`
	TargetDate   string  `json:"target_date,omitempty"`
	BlockerNote  string  `json:"blocker_note,omitempty"`
	ProgressPct  int     `json:"progress_pct"`
}

// Activation summarizes a roadmap activation.
type Activation struct {
	AssessmentID    string       `json:"assessment_id"`
	UsingFallback   bool         `json:"using_fallback"`
	Created         int          `json:"created"`
	Refreshed       int          `json:"refreshed"`
	ActionsSeeded   int          `json:"actions_seeded"`
	Programs        []Program    `json:"programs"`
	Overflow        []RankedItem `json:"overflow"`
	ActivatedPhases []string     `json:"activated_phases"`
}

// Action represents a tracked action joined with its program.
type Action struct {
	ID                    string  `json:"id"`
	ProgramInstanceID     string  `json:"program_instance_id"`
	Title                 string  `json:"title"`
	Status                string  `json:"status"`
	Position              int     `json:"position"`
	Owner                 string  `json:"owner,omitempty"`
	StartDate             string  `json:"start_date,omitempty"`
	DueDate               string  `json:"due_date,omitempty"`
	WeightedNeed          float64 `json:"weighted_need"`
	ImpactValidated       bool    `json:"impact_validated"`
	ImpactValidatedAt     string  `json:"impact_validated_at,omitempty"`
	ImpactValidatedBy     string  `json:"impact_validated_by,omitempty"`
	ImpactValidationNotes string  `json:"impact_validation_notes,omitempty"`
	ProgramCode           string  `json:"program_code,omitempty"`
	ProgramRank           int     `json:"program_rank,omitempty"`
}

// KPIs are the execution indicators of an assessment.
type KPIs struct {
	ActionsTotal     int     `json:"actions_total"`
	ActionsDone      int     `json:"actions_done"`
	ActionsValidated int     `json:"actions_validated"`
	NeedTotal        float64 `json:"need_total"`
	NeedUnlocked     float64 `json:"need_unlocked"`
	NeedUnlockedPct  float64 `json:"need_unlocked_pct"`
}

// ActionResult is returned by action writes.
type ActionResult struct {
	Action      Action `json:"action"`
	ProgressPct int    `json:"progress_pct"`
	KPIs        KPIs   `json:"kpis"`
}

// Overview is the execution dashboard.
type Overview struct {
	AssessmentID string    `json:"assessment_id"`
	OnlyTop      bool      `json:"only_top"`
	KPIs         KPIs      `json:"kpis"`
	Programs     []Program `json:"programs"`
}

// ActionPatch updates an action; nil fields are left unchanged.
type ActionPatch struct {
	Status    *string `json:"status,omitempty"`
	Owner     *string `json:"owner,omitempty"`
	StartDate *string `json:"start_date,omitempty"`
	DueDate   *string `json:"due_date,omitempty"`
}

// Event represents a log entry.
type Event struct {
	ID           int64  `json:"id"`
	TS           string `json:"ts"`
	Type         string `json:"type"`
	AssessmentID string `json:"assessment_id"`
	EntityKind   string `json:"entity_kind"`
	EntityID     string `json:"entity_id"`
	ActorID      string `json:"actor_id"`
	Payload      string `json:"payload_json"`
}

// APIError wraps non-2xx responses. Code and Message come from the error envelope
// when the body carries one.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s message=%s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// CreateAssessment creates an assessment for an imported pack. An empty id lets the server pick one.
func (c *Client) CreateAssessment(ctx context.Context, id, packCode, name string) (Assessment, error) {
	body := map[string]any{"id": id, "pack_code": packCode, "name": name}
	var resp Assessment
	err := c.do(ctx, http.MethodPost, "assessments", body, &resp)
	return resp, err
}

// PutResponses upserts criterion answers.
func (c *Client) PutResponses(ctx context.Context, assessmentID string, responses []Response) error {
	body := map[string]any{"responses": responses}
	return c.do(ctx, http.MethodPut, c.assessmentPath(assessmentID, "responses"), body, nil)
}

// Ranking returns ranked programs, or actions when kind is "action".
func (c *Client) Ranking(ctx context.Context, assessmentID, kind string) (Ranking, error) {
	q := url.Values{}
	if kind != "" {
		q.Set("kind", kind)
	}
	var resp Ranking
	err := c.do(ctx, http.MethodGet, withQuery(c.assessmentPath(assessmentID, "ranking"), q), nil, &resp)
	return resp, err
}

// Roadmap previews the phase allocation.
func (c *Client) Roadmap(ctx context.Context, assessmentID string, opts RoadmapOptions) (Roadmap, error) {
	q := url.Values{}
	if opts.MaxPerPhase > 0 {
		q.Set("max_per_phase", fmt.Sprint(opts.MaxPerPhase))
	}
	if opts.OnlyShortlist {
		q.Set("only_shortlist", "true")
	}
	if opts.UseOverrides {
		q.Set("use_overrides", "true")
	}
	var resp Roadmap
	err := c.do(ctx, http.MethodGet, withQuery(c.assessmentPath(assessmentID, "roadmap"), q), nil, &resp)
	return resp, err
}

// Activate persists the roadmap as program instances.
func (c *Client) Activate(ctx context.Context, assessmentID string, opts RoadmapOptions) (Activation, error) {
	var resp Activation
	err := c.do(ctx, http.MethodPost, c.assessmentPath(assessmentID, "activation"), opts, &resp)
	return resp, err
}

// Overview returns KPIs and programs.
func (c *Client) Overview(ctx context.Context, assessmentID string, onlyTop bool) (Overview, error) {
	q := url.Values{}
	if onlyTop {
		q.Set("only_top", "true")
	}
	var resp Overview
	err := c.do(ctx, http.MethodGet, withQuery(c.assessmentPath(assessmentID, "overview"), q), nil, &resp)
	return resp, err
}

// Actions lists tracked actions in program rank order.
func (c *Client) Actions(ctx context.Context, assessmentID string, onlyTop bool) ([]Action, error) {
	q := url.Values{}
	if onlyTop {
		q.Set("only_top", "true")
	}
	var resp struct {
		Items []Action `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, withQuery(c.assessmentPath(assessmentID, "actions"), q), nil, &resp)
	return resp.Items, err
}

// UpdateAction patches an action.
func (c *Client) UpdateAction(ctx context.Context, actionID string, patch ActionPatch) (ActionResult, error) {
	var resp ActionResult
	err := c.do(ctx, http.MethodPatch, "actions/"+url.PathEscape(actionID), patch, &resp)
	return resp, err
}

// SetImpactValidation validates or revokes an action's impact. Revoking needs notes.
func (c *Client) SetImpactValidation(ctx context.Context, actionID string, validated bool, notes string) (ActionResult, error) {
	body := map[string]any{"validated": validated, "notes": notes}
	var resp ActionResult
	err := c.do(ctx, http.MethodPut, "actions/"+url.PathEscape(actionID)+"/impact-validation", body, &resp)
	return resp, err
}

// Events returns recent events for an assessment, newest first.
func (c *Client) Events(ctx context.Context, assessmentID string, limit int) ([]Event, error) {
	q := url.Values{}
	if assessmentID != "" {
		q.Set("assessment_id", assessmentID)
	}
	if limit > 0 {
		q.Set("limit", fmt.Sprint(limit))
	}
	var resp struct {
		Items []Event `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, withQuery("events", q), nil, &resp)
	return resp.Items, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.ActorID != "":
		req.Header.Set("X-Actor-ID", c.ActorID)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var env struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(b, &env) == nil {
			apiErr.Code = env.Error.Code
			apiErr.Message = env.Error.Message
		}
		return apiErr
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) assessmentPath(assessmentID, p string) string {
	return fmt.Sprintf("assessments/%s/%s", url.PathEscape(assessmentID), strings.TrimLeft(p, "/"))
}

func (c *Client) base() string {
	base := strings.TrimRight(c.BaseURL, "/")
	if p := strings.Trim(c.BasePath, "/"); p != "" {
		base += "/" + p
	}
	return base
}

func withQuery(endpoint string, q url.Values) string {
	if len(q) == 0 {
		return endpoint
	}
	return endpoint + "?" + q.Encode()
}
