package engine

import (
	"context"
	"math"
	"time"

	"go.uber.org/zap"

	"gapline/internal/domain"
	"gapline/internal/events"
	"gapline/internal/prioritize"
	"gapline/internal/repo"
)

const dateLayout = "2006-01-02"

// KPIs summarize execution of an assessment's activated actions.
type KPIs struct {
	ActionsTotal     int     `json:"actions_total"`
	ActionsDone      int     `json:"actions_done"`
	ActionsValidated int     `json:"actions_validated"`
	NeedTotal        float64 `json:"need_total"`
	NeedUnlocked     float64 `json:"need_unlocked"`
	NeedUnlockedPct  float64 `json:"need_unlocked_pct"`
}

type Overview struct {
	AssessmentID string                   `json:"assessment_id"`
	OnlyTop      bool                     `json:"only_top"`
	KPIs         KPIs                     `json:"kpis"`
	Programs     []domain.ProgramInstance `json:"programs"`
}

// ActionUpdate is the stored action after a write plus the refreshed KPIs of its assessment.
type ActionUpdate struct {
	Action      domain.ActionInstance `json:"action"`
	ProgressPct int                   `json:"progress_pct"`
	KPIs        KPIs                  `json:"kpis"`
}

type UpdateActionOptions struct {
	ActionID  string
	Status    *string
	Owner     *string
	StartDate *string
	DueDate   *string
	ActorID   string
}

// UpdateAction writes an action's status, owner or dates and recomputes its program's
// progress in the same transaction. KPIs are read after commit.
func (e Engine) UpdateAction(ctx context.Context, opts UpdateActionOptions) (ActionUpdate, error) {
	if opts.ActionID == "" {
		return ActionUpdate{}, invalid("action_id", "required")
	}
	if opts.Status != nil && !domain.ValidActionStatus(*opts.Status) {
		return ActionUpdate{}, invalid("status", "must be todo, doing or done, got %q", *opts.Status)
	}
	if err := checkDate("start_date", opts.StartDate); err != nil {
		return ActionUpdate{}, err
	}
	if err := checkDate("due_date", opts.DueDate); err != nil {
		return ActionUpdate{}, err
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return ActionUpdate{}, err
	}
	defer tx.Rollback()

	before, err := e.Repo.GetActionTx(ctx, tx, opts.ActionID)
	if err != nil {
		return ActionUpdate{}, notFound("action", opts.ActionID, err)
	}
	now := e.stamp()
	patch := repo.ActionPatch{Status: opts.Status, Owner: opts.Owner, StartDate: opts.StartDate, DueDate: opts.DueDate}
	if err := e.Repo.UpdateActionTx(ctx, tx, opts.ActionID, patch, now); err != nil {
		return ActionUpdate{}, notFound("action", opts.ActionID, err)
	}
	pct, err := e.Repo.RecomputeProgressTx(ctx, tx, before.ProgramInstanceID, now)
	if err != nil {
		return ActionUpdate{}, err
	}
	program, err := e.Repo.GetProgramInstanceTx(ctx, tx, before.ProgramInstanceID)
	if err != nil {
		return ActionUpdate{}, notFound("program", before.ProgramInstanceID, err)
	}
	after, err := e.Repo.GetActionTx(ctx, tx, opts.ActionID)
	if err != nil {
		return ActionUpdate{}, err
	}
	payload := events.EventPayload{"program_instance_id": program.ID, "progress_pct": pct}
	if after.Status != before.Status {
		payload["from"] = before.Status
		payload["to"] = after.Status
	}
	if err := e.events().Append(ctx, tx, events.ActionUpdated, program.AssessmentID, "action", after.ID, opts.ActorID, payload); err != nil {
		return ActionUpdate{}, err
	}
	if err := tx.Commit(); err != nil {
		return ActionUpdate{}, err
	}
	e.log().Info("action updated",
		zap.String("action", after.ID),
		zap.String("status", after.Status),
		zap.Int("progress_pct", pct))

	kpis, err := e.kpis(ctx, program.AssessmentID, false)
	if err != nil {
		return ActionUpdate{}, err
	}
	return ActionUpdate{Action: after, ProgressPct: pct, KPIs: kpis}, nil
}

type UpdateProgramOptions struct {
	ProgramInstanceID string
	Status            *string
	OwnerRole         *string
	TargetDate        *string
	BlockerNote       *string
	ActorID           string
}

// UpdateProgram sets a program instance's status and ownership fields. Any status may
// follow any other.
func (e Engine) UpdateProgram(ctx context.Context, opts UpdateProgramOptions) (domain.ProgramInstance, error) {
	if opts.ProgramInstanceID == "" {
		return domain.ProgramInstance{}, invalid("program_instance_id", "required")
	}
	if opts.Status != nil && !domain.ValidProgramStatus(*opts.Status) {
		return domain.ProgramInstance{}, invalid("status", "must be planned, active, paused, blocked or done, got %q", *opts.Status)
	}
	if err := checkDate("target_date", opts.TargetDate); err != nil {
		return domain.ProgramInstance{}, err
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.ProgramInstance{}, err
	}
	defer tx.Rollback()

	before, err := e.Repo.GetProgramInstanceTx(ctx, tx, opts.ProgramInstanceID)
	if err != nil {
		return domain.ProgramInstance{}, notFound("program", opts.ProgramInstanceID, err)
	}
	patch := repo.ProgramPatch{Status: opts.Status, OwnerRole: opts.OwnerRole, TargetDate: opts.TargetDate, BlockerNote: opts.BlockerNote}
	if err := e.Repo.UpdateProgramTx(ctx, tx, before.ID, patch, e.stamp()); err != nil {
		return domain.ProgramInstance{}, notFound("program", before.ID, err)
	}
	after, err := e.Repo.GetProgramInstanceTx(ctx, tx, before.ID)
	if err != nil {
		return domain.ProgramInstance{}, err
	}
	payload := events.EventPayload{"code": after.Code}
	if after.Status != before.Status {
		payload["from"] = before.Status
		payload["to"] = after.Status
	}
	if err := e.events().Append(ctx, tx, events.ProgramUpdated, after.AssessmentID, "program", after.ID, opts.ActorID, payload); err != nil {
		return domain.ProgramInstance{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.ProgramInstance{}, err
	}
	e.log().Info("program updated", zap.String("program", after.ID), zap.String("status", after.Status))
	return after, nil
}

type ImpactValidationOptions struct {
	ActionID  string
	Validated bool
	Notes     string
	ActorID   string
}

// SetImpactValidation opens or closes an action's impact gate. It is independent of the
// action status. Revoking requires notes.
func (e Engine) SetImpactValidation(ctx context.Context, opts ImpactValidationOptions) (ActionUpdate, error) {
	if opts.ActionID == "" {
		return ActionUpdate{}, invalid("action_id", "required")
	}
	if !opts.Validated && opts.Notes == "" {
		return ActionUpdate{}, invalid("notes", "required when revoking impact validation")
	}
	actor := opts.ActorID
	if actor == "" {
		actor = "system"
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return ActionUpdate{}, err
	}
	defer tx.Rollback()

	before, err := e.Repo.GetActionTx(ctx, tx, opts.ActionID)
	if err != nil {
		return ActionUpdate{}, notFound("action", opts.ActionID, err)
	}
	if err := e.Repo.SetImpactValidationTx(ctx, tx, before.ID, opts.Validated, actor, opts.Notes, e.stamp()); err != nil {
		return ActionUpdate{}, err
	}
	program, err := e.Repo.GetProgramInstanceTx(ctx, tx, before.ProgramInstanceID)
	if err != nil {
		return ActionUpdate{}, notFound("program", before.ProgramInstanceID, err)
	}
	after, err := e.Repo.GetActionTx(ctx, tx, before.ID)
	if err != nil {
		return ActionUpdate{}, err
	}
	evtType := events.ImpactValidated
	if !opts.Validated {
		evtType = events.ImpactRevoked
	}
	if err := e.events().Append(ctx, tx, evtType, program.AssessmentID, "action", after.ID, actor, events.EventPayload{
		"program_instance_id": program.ID,
		"weighted_need":       after.WeightedNeed,
		"notes":               opts.Notes,
	}); err != nil {
		return ActionUpdate{}, err
	}
	if err := tx.Commit(); err != nil {
		return ActionUpdate{}, err
	}
	e.log().Info("impact validation set",
		zap.String("action", after.ID),
		zap.Bool("validated", after.ImpactValidated),
		zap.String("by", actor))

	kpis, err := e.kpis(ctx, program.AssessmentID, false)
	if err != nil {
		return ActionUpdate{}, err
	}
	return ActionUpdate{Action: after, ProgressPct: program.ProgressPct, KPIs: kpis}, nil
}

// Overview returns execution KPIs and program instances of an assessment. With onlyTop
// only programs carrying the TOP priority badge are counted.
func (e Engine) Overview(ctx context.Context, assessmentID string, onlyTop bool) (Overview, error) {
	a, err := e.assessment(ctx, assessmentID)
	if err != nil {
		return Overview{}, err
	}
	kpis, err := e.kpis(ctx, a.ID, onlyTop)
	if err != nil {
		return Overview{}, err
	}
	all, err := e.Repo.ListProgramInstances(ctx, a.ID)
	if err != nil {
		return Overview{}, err
	}
	programs := make([]domain.ProgramInstance, 0, len(all))
	for _, p := range all {
		if onlyTop && p.Priority != string(prioritize.PriorityTop) {
			continue
		}
		programs = append(programs, p)
	}
	return Overview{AssessmentID: a.ID, OnlyTop: onlyTop, KPIs: kpis, Programs: programs}, nil
}

func (e Engine) kpis(ctx context.Context, assessmentID string, onlyTop bool) (KPIs, error) {
	t, err := e.Repo.SumActions(ctx, e.DB, assessmentID, onlyTop)
	if err != nil {
		return KPIs{}, err
	}
	k := KPIs{
		ActionsTotal:     t.Total,
		ActionsDone:      t.Done,
		ActionsValidated: t.Validated,
		NeedTotal:        round1(t.NeedTotal),
		NeedUnlocked:     round1(t.NeedValid),
	}
	if t.NeedTotal > 0 {
		k.NeedUnlockedPct = round1(100 * t.NeedValid / t.NeedTotal)
	}
	return k, nil
}

type TrackedOptions struct {
	AssessmentID      string
	ProgramInstanceID string
	Status            string
	OnlyTop           bool
}

// ListTracked returns the assessment's actions joined with their programs in rank order.
func (e Engine) ListTracked(ctx context.Context, opts TrackedOptions) ([]domain.TrackedAction, error) {
	if opts.Status != "" && !domain.ValidActionStatus(opts.Status) {
		return nil, invalid("status", "must be todo, doing or done, got %q", opts.Status)
	}
	a, err := e.assessment(ctx, opts.AssessmentID)
	if err != nil {
		return nil, err
	}
	rows, err := e.Repo.ListTracked(ctx, repo.TrackedFilters{
		AssessmentID:      a.ID,
		ProgramInstanceID: opts.ProgramInstanceID,
		Status:            opts.Status,
		OnlyTop:           opts.OnlyTop,
	})
	if err != nil {
		return nil, err
	}
	if rows == nil {
		rows = []domain.TrackedAction{}
	}
	return rows, nil
}

func checkDate(field string, v *string) error {
	if v == nil || *v == "" {
		return nil
	}
	if _, err := time.Parse(dateLayout, *v); err != nil {
		return invalid(field, "expected YYYY-MM-DD, got %q", *v)
	}
	return nil
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
