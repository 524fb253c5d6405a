package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"gapline/internal/config"
	"gapline/internal/domain"
	"gapline/internal/events"
	"gapline/internal/prioritize"
	"gapline/internal/repo"
)

// ResponseSource yields the stored answers of an assessment for the given criteria codes.
type ResponseSource interface {
	ReadResponses(ctx context.Context, assessmentID string, codes []string) ([]domain.CriterionResponse, error)
}

// CatalogSource yields a pack's criteria and its program/action catalog.
type CatalogSource interface {
	ReadPack(ctx context.Context, packCode string) (domain.Pack, error)
	ReadCatalog(ctx context.Context, packCode string) ([]domain.CatalogItem, error)
}

type Engine struct {
	DB        *sql.DB
	Repo      repo.Repo
	Responses ResponseSource
	Catalog   CatalogSource
	Config    *config.Config
	Log       *zap.Logger
	Now       func() time.Time
}

// instanceNamespace seeds the deterministic ids of program and action instances.
var instanceNamespace = uuid.MustParse("6f1c2a52-58a4-4c1e-9d35-0e6d8e3b7a10")

func New(db *sql.DB, cfg *config.Config, log *zap.Logger) Engine {
	if log == nil {
		log = zap.NewNop()
	}
	r := repo.Repo{DB: db}
	return Engine{
		DB:        db,
		Repo:      r,
		Responses: r,
		Catalog:   r,
		Config:    cfg,
		Log:       log,
		Now:       time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) stamp() string {
	return e.now().UTC().Format(time.RFC3339)
}

func (e Engine) events() events.Writer {
	return events.Writer{Now: e.now}
}

func (e Engine) log() *zap.Logger {
	if e.Log == nil {
		return zap.NewNop()
	}
	return e.Log
}

func (e Engine) config() (*config.Config, error) {
	if e.Config == nil {
		return nil, fmt.Errorf("config not loaded")
	}
	return e.Config, nil
}

// CreateAssessment binds a new assessment to an imported pack.
func (e Engine) CreateAssessment(ctx context.Context, id, packCode, name string) (domain.Assessment, error) {
	if strings.TrimSpace(packCode) == "" {
		return domain.Assessment{}, invalid("pack_code", "required")
	}
	if _, err := e.Repo.ReadPack(ctx, packCode); err != nil {
		return domain.Assessment{}, notFound("pack", packCode, err)
	}
	if id == "" {
		id = uuid.NewString()
	}
	a := domain.Assessment{ID: id, PackCode: packCode, Name: name, CreatedAt: e.stamp()}
	if err := e.Repo.InsertAssessment(ctx, a); err != nil {
		if errors.Is(err, repo.ErrConflict) {
			return domain.Assessment{}, &ConflictError{Kind: "assessment", ID: id}
		}
		return domain.Assessment{}, fmt.Errorf("insert assessment: %w", err)
	}
	e.log().Info("assessment created", zap.String("assessment", a.ID), zap.String("pack", packCode))
	return a, nil
}

func (e Engine) assessment(ctx context.Context, id string) (domain.Assessment, error) {
	if strings.TrimSpace(id) == "" {
		return domain.Assessment{}, invalid("assessment_id", "required")
	}
	a, err := e.Repo.GetAssessment(ctx, id)
	if err != nil {
		return a, notFound("assessment", id, err)
	}
	return a, nil
}

// SetResponses upserts answers after checking levels and criteria codes against the pack.
func (e Engine) SetResponses(ctx context.Context, assessmentID string, responses []domain.CriterionResponse) error {
	a, err := e.assessment(ctx, assessmentID)
	if err != nil {
		return err
	}
	pack, err := e.Repo.ReadPack(ctx, a.PackCode)
	if err != nil {
		return notFound("pack", a.PackCode, err)
	}
	known := map[string]bool{}
	for _, c := range pack.Criteria {
		known[c.Code] = true
	}
	for _, r := range responses {
		if !known[r.CriteriaCode] {
			return invalid("criteria_code", "%q is not part of pack %s", r.CriteriaCode, pack.Code)
		}
		for field, v := range map[string]*int{"as_is_level": r.AsIsLevel, "to_be_level": r.ToBeLevel, "importance": r.Importance} {
			if v != nil && (*v < 1 || *v > 5) {
				return invalid(field, "%s: %d outside [1,5]", r.CriteriaCode, *v)
			}
		}
	}
	return e.Repo.UpsertResponses(ctx, assessmentID, responses)
}

// SetOverride replaces the catalog impact/effort of one item for one assessment.
func (e Engine) SetOverride(ctx context.Context, o domain.Override) error {
	a, err := e.assessment(ctx, o.AssessmentID)
	if err != nil {
		return err
	}
	if o.ImpactScore < 1 || o.ImpactScore > 5 {
		return invalid("impact_score", "%d outside [1,5]", o.ImpactScore)
	}
	if o.EffortScore < 1 || o.EffortScore > 5 {
		return invalid("effort_score", "%d outside [1,5]", o.EffortScore)
	}
	item, err := e.Repo.GetCatalogItem(ctx, o.ItemID)
	if err != nil {
		return notFound("catalog item", o.ItemID, err)
	}
	if item.PackCode != a.PackCode {
		return invalid("item_id", "%s belongs to pack %s, not %s", item.ID, item.PackCode, a.PackCode)
	}
	return e.Repo.UpsertOverride(ctx, o)
}

// RankOptions select which catalog items are ranked and how they are classified.
type RankOptions struct {
	AssessmentID  string
	Kind          string
	Profile       string
	OnlyShortlist bool
	UseOverrides  bool
}

type Ranking struct {
	AssessmentID string                    `json:"assessment_id"`
	PackCode     string                    `json:"pack_code"`
	Kind         string                    `json:"kind"`
	Profile      string                    `json:"profile"`
	Thresholds   prioritize.Thresholds     `json:"thresholds"`
	Criteria     prioritize.CriteriaResult `json:"criteria"`
	prioritize.ItemsResult
}

type CriteriaView struct {
	AssessmentID string `json:"assessment_id"`
	PackCode     string `json:"pack_code"`
	prioritize.CriteriaResult
}

// Criteria scores the pack's criteria for an assessment.
func (e Engine) Criteria(ctx context.Context, assessmentID string) (CriteriaView, error) {
	cfg, err := e.config()
	if err != nil {
		return CriteriaView{}, err
	}
	a, err := e.assessment(ctx, assessmentID)
	if err != nil {
		return CriteriaView{}, err
	}
	pack, responses, err := e.readResponses(ctx, a)
	if err != nil {
		return CriteriaView{}, err
	}
	res := prioritize.ScoreCriteria(pack.CodeList(), responses, cfg.Scoring.Banding)
	if res.UsingFallback {
		e.log().Warn("criteria fallback", zap.String("assessment", a.ID), zap.Int("responses", len(responses)))
	}
	return CriteriaView{AssessmentID: a.ID, PackCode: a.PackCode, CriteriaResult: res}, nil
}

func (e Engine) readResponses(ctx context.Context, a domain.Assessment) (domain.Pack, []domain.CriterionResponse, error) {
	pack, err := e.Catalog.ReadPack(ctx, a.PackCode)
	if err != nil {
		return pack, nil, upstream("catalog", notFound("pack", a.PackCode, err))
	}
	responses, err := e.Responses.ReadResponses(ctx, a.ID, pack.CodeList())
	if err != nil {
		return pack, nil, upstream("responses", err)
	}
	return pack, responses, nil
}

// Rank scores the assessment's criteria and ranks the catalog items built on them.
// The response and catalog reads run concurrently.
func (e Engine) Rank(ctx context.Context, opts RankOptions) (Ranking, error) {
	cfg, err := e.config()
	if err != nil {
		return Ranking{}, err
	}
	if opts.Kind == "" {
		opts.Kind = domain.KindProgram
	}
	if opts.Kind != domain.KindProgram && opts.Kind != domain.KindAction {
		return Ranking{}, invalid("kind", "must be program or action, got %q", opts.Kind)
	}
	if opts.Profile == "" {
		opts.Profile = config.ProfileRoadmap
	}
	th, err := cfg.Thresholds(opts.Profile)
	if err != nil {
		return Ranking{}, invalid("profile", "%v", err)
	}
	a, err := e.assessment(ctx, opts.AssessmentID)
	if err != nil {
		return Ranking{}, err
	}

	var (
		pack      domain.Pack
		responses []domain.CriterionResponse
		catalog   []domain.CatalogItem
		overrides map[string]domain.Override
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		pack, responses, err = e.readResponses(gctx, a)
		return err
	})
	g.Go(func() error {
		var err error
		catalog, err = e.Catalog.ReadCatalog(gctx, a.PackCode)
		if err != nil {
			return upstream("catalog", err)
		}
		return nil
	})
	if opts.UseOverrides {
		g.Go(func() error {
			var err error
			overrides, err = e.Repo.ReadOverrides(gctx, a.ID)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return Ranking{}, err
	}

	criteria := prioritize.ScoreCriteria(pack.CodeList(), responses, cfg.Scoring.Banding)
	items := selectItems(catalog, opts, overrides)
	res := prioritize.Aggregate(items, criteria, cfg.Scoring, th)
	if res.UsingFallback {
		e.log().Warn("ranking fallback", zap.String("assessment", a.ID), zap.String("kind", opts.Kind), zap.Int("items", len(res.Items)))
	}
	return Ranking{
		AssessmentID: a.ID,
		PackCode:     a.PackCode,
		Kind:         opts.Kind,
		Profile:      opts.Profile,
		Thresholds:   th,
		Criteria:     criteria,
		ItemsResult:  res,
	}, nil
}

func selectItems(catalog []domain.CatalogItem, opts RankOptions, overrides map[string]domain.Override) []domain.CatalogItem {
	out := make([]domain.CatalogItem, 0, len(catalog))
	for _, it := range catalog {
		if it.Kind != opts.Kind {
			continue
		}
		if opts.OnlyShortlist && !it.Shortlisted {
			continue
		}
		if o, ok := overrides[it.ID]; ok {
			it.ImpactScore = o.ImpactScore
			it.EffortScore = o.EffortScore
		}
		out = append(out, it)
	}
	return out
}

type RoadmapOptions struct {
	AssessmentID  string
	MaxPerPhase   int
	OnlyShortlist bool
	UseOverrides  bool
}

type RoadmapView struct {
	AssessmentID  string `json:"assessment_id"`
	UsingFallback bool   `json:"using_fallback"`
	Disclaimer    string `json:"disclaimer,omitempty"`
	prioritize.Roadmap
}

// Roadmap previews the phase allocation of the ranked programs without persisting it.
func (e Engine) Roadmap(ctx context.Context, opts RoadmapOptions) (RoadmapView, error) {
	cfg, err := e.config()
	if err != nil {
		return RoadmapView{}, err
	}
	capacity := opts.MaxPerPhase
	if capacity == 0 {
		capacity = cfg.Allocation.MaxPerPhase
	}
	if err := prioritize.ValidateCapacity(capacity); err != nil {
		return RoadmapView{}, invalid("max_per_phase", "%v", err)
	}
	ranking, err := e.Rank(ctx, RankOptions{
		AssessmentID:  opts.AssessmentID,
		Kind:          domain.KindProgram,
		Profile:       config.ProfileRoadmap,
		OnlyShortlist: opts.OnlyShortlist,
		UseOverrides:  opts.UseOverrides,
	})
	if err != nil {
		return RoadmapView{}, err
	}
	rm, err := prioritize.Allocate(ranking.Items, capacity)
	if err != nil {
		return RoadmapView{}, invalid("max_per_phase", "%v", err)
	}
	return RoadmapView{
		AssessmentID:  ranking.AssessmentID,
		UsingFallback: ranking.UsingFallback,
		Disclaimer:    ranking.Disclaimer,
		Roadmap:       rm,
	}, nil
}

type ActivateOptions struct {
	RoadmapOptions
	ActorID string
}

type ActivationResult struct {
	AssessmentID    string                   `json:"assessment_id"`
	UsingFallback   bool                     `json:"using_fallback"`
	Disclaimer      string                   `json:"disclaimer,omitempty"`
	Created         int                      `json:"created"`
	Refreshed       int                      `json:"refreshed"`
	ActionsSeeded   int                      `json:"actions_seeded"`
	Programs        []domain.ProgramInstance `json:"programs"`
	Overflow        []prioritize.ItemScore   `json:"overflow"`
	MaxPerPhase     int                      `json:"max_per_phase"`
	ActivatedPhases []string                 `json:"activated_phases"`
}

// Activate persists the roadmap as program instances and seeds their default actions,
// all in one transaction. Re-running it refreshes rank, scores and wave in place and never
// touches execution state or existing actions. Without any need signal nothing is activated.
func (e Engine) Activate(ctx context.Context, opts ActivateOptions) (ActivationResult, error) {
	cfg, err := e.config()
	if err != nil {
		return ActivationResult{}, err
	}
	view, err := e.Roadmap(ctx, opts.RoadmapOptions)
	if err != nil {
		return ActivationResult{}, err
	}
	res := ActivationResult{
		AssessmentID:  view.AssessmentID,
		UsingFallback: view.UsingFallback,
		Disclaimer:    view.Disclaimer,
		Programs:      []domain.ProgramInstance{},
		Overflow:      view.Overflow,
		MaxPerPhase:   view.MaxPerPhase,
	}
	if view.UsingFallback {
		e.log().Warn("activation skipped: no positive need", zap.String("assessment", view.AssessmentID))
		return res, nil
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return ActivationResult{}, err
	}
	defer tx.Rollback()

	now := e.stamp()
	template := cfg.Activation.ActionTemplate
	for _, bucket := range view.Phases {
		if len(bucket.Items) > 0 {
			res.ActivatedPhases = append(res.ActivatedPhases, string(bucket.Phase))
		}
		for _, item := range bucket.Items {
			status := domain.ProgramPlanned
			if bucket.Wave == domain.WaveNow {
				status = domain.ProgramActive
			}
			p := domain.ProgramInstance{
				ID:           programInstanceID(view.AssessmentID, item.ItemID),
				AssessmentID: view.AssessmentID,
				ProgramID:    item.ItemID,
				Code:         item.Code,
				Title:        item.Title,
				Rank:         item.Rank,
				ImpactScore:  item.ImpactScore,
				EffortScore:  item.EffortScore,
				WeightedNeed: item.WeightedNeed,
				Priority:     string(item.Priority),
				Wave:         bucket.Wave,
				Status:       status,
				CreatedAt:    now,
				UpdatedAt:    now,
			}
			row, created, err := e.Repo.UpsertProgramInstanceTx(ctx, tx, p)
			if err != nil {
				return ActivationResult{}, fmt.Errorf("upsert program %s: %w", item.Code, err)
			}
			if created {
				res.Created++
			} else {
				res.Refreshed++
			}
			seeded, err := e.seedActions(ctx, tx, row, template, now)
			if err != nil {
				return ActivationResult{}, err
			}
			res.ActionsSeeded += seeded
			res.Programs = append(res.Programs, row)
		}
	}
	if err := e.events().Append(ctx, tx, events.ActivationCompleted, view.AssessmentID, "assessment", view.AssessmentID, opts.ActorID, events.EventPayload{
		"created":        res.Created,
		"refreshed":      res.Refreshed,
		"actions_seeded": res.ActionsSeeded,
		"overflow":       len(res.Overflow),
		"max_per_phase":  res.MaxPerPhase,
	}); err != nil {
		return ActivationResult{}, err
	}
	if err := tx.Commit(); err != nil {
		return ActivationResult{}, err
	}
	e.log().Info("roadmap activated",
		zap.String("assessment", view.AssessmentID),
		zap.Int("created", res.Created),
		zap.Int("refreshed", res.Refreshed),
		zap.Int("actions_seeded", res.ActionsSeeded),
		zap.Int("overflow", len(res.Overflow)))
	return res, nil
}

// seedActions inserts the default action template for a program that owns no actions yet.
// The program's weighted need is split evenly across its actions; a refreshed
// program keeps its actions and only gets the split redone.
func (e Engine) seedActions(ctx context.Context, tx *sql.Tx, p domain.ProgramInstance, template []config.ActionTemplate, now string) (int, error) {
	n, err := e.Repo.CountActionsTx(ctx, tx, p.ID)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		if err := e.Repo.RebalanceActionNeedTx(ctx, tx, p.ID, p.WeightedNeed); err != nil {
			return 0, fmt.Errorf("rebalance actions of %s: %w", p.Code, err)
		}
		return 0, nil
	}
	if len(template) == 0 {
		return 0, nil
	}
	share := p.WeightedNeed / float64(len(template))
	for i, t := range template {
		a := domain.ActionInstance{
			ID:                actionInstanceID(p.ID, i),
			ProgramInstanceID: p.ID,
			Title:             t.Title,
			Status:            domain.ActionTodo,
			Position:          i,
			WeightedNeed:      share,
			UpdatedAt:         now,
		}
		if err := e.Repo.InsertActionTx(ctx, tx, a); err != nil {
			return 0, fmt.Errorf("seed action %d of %s: %w", i, p.Code, err)
		}
	}
	if _, err := e.Repo.RecomputeProgressTx(ctx, tx, p.ID, now); err != nil {
		return 0, err
	}
	return len(template), nil
}

func programInstanceID(assessmentID, programID string) string {
	return uuid.NewSHA1(instanceNamespace, []byte("program:"+assessmentID+"/"+programID)).String()
}

func actionInstanceID(programInstanceID string, position int) string {
	return uuid.NewSHA1(instanceNamespace, []byte(fmt.Sprintf("action:%s/%d", programInstanceID, position))).String()
}

// RecentEvents returns the latest audit events, newest first.
func (e Engine) RecentEvents(ctx context.Context, limit int, assessmentID, evtType string) ([]domain.Event, error) {
	return e.Repo.LatestEvents(ctx, limit, assessmentID, evtType)
}

// ImportPack stores a pack and its catalog. Re-importing updates items in place.
func (e Engine) ImportPack(ctx context.Context, pack domain.Pack, items []domain.CatalogItem) error {
	if strings.TrimSpace(pack.Code) == "" {
		return invalid("pack.code", "required")
	}
	if err := e.Repo.ImportPack(ctx, pack, items); err != nil {
		return fmt.Errorf("import pack %s: %w", pack.Code, err)
	}
	e.log().Info("pack imported", zap.String("pack", pack.Code), zap.Int("criteria", len(pack.Criteria)), zap.Int("items", len(items)))
	return nil
}

// Pack returns an imported pack with its ordered criteria.
func (e Engine) Pack(ctx context.Context, code string) (domain.Pack, error) {
	pack, err := e.Repo.ReadPack(ctx, code)
	if err != nil {
		return pack, notFound("pack", code, err)
	}
	return pack, nil
}

// Assessments lists assessments, newest first.
func (e Engine) Assessments(ctx context.Context) ([]domain.Assessment, error) {
	items, err := e.Repo.ListAssessments(ctx)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []domain.Assessment{}
	}
	return items, nil
}
