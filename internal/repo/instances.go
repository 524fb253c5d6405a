package repo

import (
	"context"
	"database/sql"
	"strings"

	"gapline/internal/domain"
)

const programColumns = `id,assessment_id,program_id,code,title,rank,impact_score,effort_score,weighted_need,COALESCE(priority,''),wave,status,
COALESCE(owner_role,''),COALESCE(target_date,''),COALESCE(blocker_note,''),progress_pct,created_at,updated_at`

const actionColumns = `a.id,a.program_instance_id,a.title,a.status,a.position,COALESCE(a.owner,''),COALESCE(a.start_date,''),COALESCE(a.due_date,''),
a.weighted_need,a.impact_validated,COALESCE(a.impact_validated_at,''),COALESCE(a.impact_validated_by,''),COALESCE(a.impact_validation_notes,''),a.updated_at`

func scanProgram(s rowScanner) (domain.ProgramInstance, error) {
	var p domain.ProgramInstance
	err := s.Scan(&p.ID, &p.AssessmentID, &p.ProgramID, &p.Code, &p.Title, &p.Rank, &p.ImpactScore, &p.EffortScore, &p.WeightedNeed,
		&p.Priority, &p.Wave, &p.Status, &p.OwnerRole, &p.TargetDate, &p.BlockerNote, &p.ProgressPct, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func actionDest(a *domain.ActionInstance, validated *int) []any {
	return []any{&a.ID, &a.ProgramInstanceID, &a.Title, &a.Status, &a.Position, &a.Owner, &a.StartDate, &a.DueDate,
		&a.WeightedNeed, validated, &a.ImpactValidatedAt, &a.ImpactValidatedBy, &a.ImpactValidationNotes, &a.UpdatedAt}
}

func scanAction(s rowScanner) (domain.ActionInstance, error) {
	var a domain.ActionInstance
	var validated int
	if err := s.Scan(actionDest(&a, &validated)...); err != nil {
		return a, err
	}
	a.ImpactValidated = validated != 0
	return a, nil
}

// UpsertProgramInstanceTx inserts or refreshes a program instance keyed by (assessment_id, program_id).
// Status and the owner fields are only written on insert; an unchanged row is left untouched.
func (r Repo) UpsertProgramInstanceTx(ctx context.Context, tx *sql.Tx, p domain.ProgramInstance) (domain.ProgramInstance, bool, error) {
	var existing int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM program_instances WHERE assessment_id=? AND program_id=?`,
		p.AssessmentID, p.ProgramID).Scan(&existing); err != nil {
		return domain.ProgramInstance{}, false, err
	}
	_, err := tx.ExecContext(ctx, `INSERT INTO program_instances(id,assessment_id,program_id,code,title,rank,impact_score,effort_score,weighted_need,
priority,wave,status,progress_pct,created_at,updated_at) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,0,?,?)
ON CONFLICT(assessment_id,program_id) DO UPDATE SET code=excluded.code, title=excluded.title, rank=excluded.rank,
impact_score=excluded.impact_score, effort_score=excluded.effort_score, weighted_need=excluded.weighted_need,
priority=excluded.priority, wave=excluded.wave, updated_at=excluded.updated_at
WHERE program_instances.code IS NOT excluded.code OR program_instances.title IS NOT excluded.title
OR program_instances.rank IS NOT excluded.rank OR program_instances.impact_score IS NOT excluded.impact_score
OR program_instances.effort_score IS NOT excluded.effort_score OR program_instances.weighted_need IS NOT excluded.weighted_need
OR program_instances.priority IS NOT excluded.priority OR program_instances.wave IS NOT excluded.wave`,
		p.ID, p.AssessmentID, p.ProgramID, p.Code, p.Title, p.Rank, p.ImpactScore, p.EffortScore, p.WeightedNeed,
		nullable(p.Priority), p.Wave, p.Status, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return domain.ProgramInstance{}, false, err
	}
	row, err := r.programByKeyTx(ctx, tx, p.AssessmentID, p.ProgramID)
	return row, existing == 0, err
}

func (r Repo) programByKeyTx(ctx context.Context, tx *sql.Tx, assessmentID, programID string) (domain.ProgramInstance, error) {
	p, err := scanProgram(tx.QueryRowContext(ctx, `SELECT `+programColumns+` FROM program_instances WHERE assessment_id=? AND program_id=?`,
		assessmentID, programID))
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	return p, err
}

func (r Repo) GetProgramInstanceTx(ctx context.Context, tx *sql.Tx, id string) (domain.ProgramInstance, error) {
	p, err := scanProgram(tx.QueryRowContext(ctx, `SELECT `+programColumns+` FROM program_instances WHERE id=?`, id))
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	return p, err
}

func (r Repo) GetProgramInstance(ctx context.Context, id string) (domain.ProgramInstance, error) {
	p, err := scanProgram(r.DB.QueryRowContext(ctx, `SELECT `+programColumns+` FROM program_instances WHERE id=?`, id))
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	return p, err
}

// ListProgramInstances returns an assessment's program instances in rank order.
func (r Repo) ListProgramInstances(ctx context.Context, assessmentID string) ([]domain.ProgramInstance, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+programColumns+` FROM program_instances WHERE assessment_id=? ORDER BY rank, code`, assessmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.ProgramInstance
	for rows.Next() {
		p, err := scanProgram(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

type ProgramPatch struct {
	Status      *string
	OwnerRole   *string
	TargetDate  *string
	BlockerNote *string
}

func (r Repo) UpdateProgramTx(ctx context.Context, tx *sql.Tx, id string, patch ProgramPatch, now string) error {
	sets := []string{"updated_at=?"}
	args := []any{now}
	if patch.Status != nil {
		sets = append(sets, "status=?")
		args = append(args, *patch.Status)
	}
	if patch.OwnerRole != nil {
		sets = append(sets, "owner_role=?")
		args = append(args, nullable(*patch.OwnerRole))
	}
	if patch.TargetDate != nil {
		sets = append(sets, "target_date=?")
		args = append(args, nullable(*patch.TargetDate))
	}
	if patch.BlockerNote != nil {
		sets = append(sets, "blocker_note=?")
		args = append(args, nullable(*patch.BlockerNote))
	}
	args = append(args, id)
	res, err := tx.ExecContext(ctx, `UPDATE program_instances SET `+strings.Join(sets, ", ")+` WHERE id=?`, args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) CountActionsTx(ctx context.Context, tx *sql.Tx, programInstanceID string) (int, error) {
	var n int
	err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM action_instances WHERE program_instance_id=?`, programInstanceID).Scan(&n)
	return n, err
}

// RebalanceActionNeedTx splits need evenly across the actions a program already owns.
func (r Repo) RebalanceActionNeedTx(ctx context.Context, tx *sql.Tx, programInstanceID string, need float64) error {
	_, err := tx.ExecContext(ctx, `UPDATE action_instances
SET weighted_need = ? / (SELECT COUNT(*) FROM action_instances WHERE program_instance_id=?)
WHERE program_instance_id=?`, need, programInstanceID, programInstanceID)
	return err
}

func (r Repo) InsertActionTx(ctx context.Context, tx *sql.Tx, a domain.ActionInstance) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO action_instances(id,program_instance_id,title,status,position,owner,start_date,due_date,
weighted_need,impact_validated,updated_at) VALUES (?,?,?,?,?,?,?,?,?,0,?)`,
		a.ID, a.ProgramInstanceID, a.Title, a.Status, a.Position, nullable(a.Owner), nullable(a.StartDate), nullable(a.DueDate),
		a.WeightedNeed, a.UpdatedAt)
	return err
}

func (r Repo) GetActionTx(ctx context.Context, tx *sql.Tx, id string) (domain.ActionInstance, error) {
	a, err := scanAction(tx.QueryRowContext(ctx, `SELECT `+actionColumns+` FROM action_instances a WHERE a.id=?`, id))
	if err == sql.ErrNoRows {
		return a, ErrNotFound
	}
	return a, err
}

type ActionPatch struct {
	Status    *string
	Owner     *string
	StartDate *string
	DueDate   *string
}

func (r Repo) UpdateActionTx(ctx context.Context, tx *sql.Tx, id string, patch ActionPatch, now string) error {
	sets := []string{"updated_at=?"}
	args := []any{now}
	if patch.Status != nil {
		sets = append(sets, "status=?")
		args = append(args, *patch.Status)
	}
	if patch.Owner != nil {
		sets = append(sets, "owner=?")
		args = append(args, nullable(*patch.Owner))
	}
	if patch.StartDate != nil {
		sets = append(sets, "start_date=?")
		args = append(args, nullable(*patch.StartDate))
	}
	if patch.DueDate != nil {
		sets = append(sets, "due_date=?")
		args = append(args, nullable(*patch.DueDate))
	}
	args = append(args, id)
	res, err := tx.ExecContext(ctx, `UPDATE action_instances SET `+strings.Join(sets, ", ")+` WHERE id=?`, args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// SetImpactValidationTx records the impact gate of an action. The timestamp and actor are kept on revoke too.
func (r Repo) SetImpactValidationTx(ctx context.Context, tx *sql.Tx, id string, validated bool, by, notes, now string) error {
	res, err := tx.ExecContext(ctx, `UPDATE action_instances SET impact_validated=?, impact_validated_at=?, impact_validated_by=?,
impact_validation_notes=?, updated_at=? WHERE id=?`, boolInt(validated), now, nullable(by), nullable(notes), now, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// RecomputeProgressTx derives progress_pct from the program's action statuses and stores it.
func (r Repo) RecomputeProgressTx(ctx context.Context, tx *sql.Tx, programInstanceID, now string) (int, error) {
	var total, done int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*), COALESCE(SUM(CASE WHEN status='done' THEN 1 ELSE 0 END),0)
FROM action_instances WHERE program_instance_id=?`, programInstanceID).Scan(&total, &done); err != nil {
		return 0, err
	}
	pct := ProgressPct(done, total)
	_, err := tx.ExecContext(ctx, `UPDATE program_instances SET progress_pct=?, updated_at=? WHERE id=? AND progress_pct<>?`,
		pct, now, programInstanceID, pct)
	return pct, err
}

// ProgressPct is round(100 * done / total), 0 for an empty program.
func ProgressPct(done, total int) int {
	if total <= 0 {
		return 0
	}
	return (200*done + total) / (2 * total)
}

type TrackedFilters struct {
	AssessmentID      string
	ProgramInstanceID string
	Status            string
	OnlyTop           bool
}

// ListTracked returns actions joined with their program, ordered by program rank then action position.
func (r Repo) ListTracked(ctx context.Context, f TrackedFilters) ([]domain.TrackedAction, error) {
	clauses := []string{"p.assessment_id=?"}
	args := []any{f.AssessmentID}
	if f.ProgramInstanceID != "" {
		clauses = append(clauses, "p.id=?")
		args = append(args, f.ProgramInstanceID)
	}
	if f.Status != "" {
		clauses = append(clauses, "a.status=?")
		args = append(args, f.Status)
	}
	if f.OnlyTop {
		clauses = append(clauses, "p.priority='TOP'")
	}
	rows, err := r.DB.QueryContext(ctx, `SELECT `+actionColumns+`, p.code, p.title, p.rank, p.wave, COALESCE(p.priority,'')
FROM action_instances a JOIN program_instances p ON p.id=a.program_instance_id
WHERE `+strings.Join(clauses, " AND ")+` ORDER BY p.rank, p.code, a.position`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.TrackedAction
	for rows.Next() {
		var t domain.TrackedAction
		var validated int
		dest := append(actionDest(&t.ActionInstance, &validated), &t.ProgramCode, &t.ProgramTitle, &t.ProgramRank, &t.ProgramWave, &t.ProgramPriority)
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		t.ImpactValidated = validated != 0
		res = append(res, t)
	}
	return res, rows.Err()
}

type ActionTotals struct {
	Total     int
	Done      int
	Validated int
	NeedTotal float64
	NeedValid float64
}

// SumActions aggregates action counts and need for an assessment. With onlyTop only TOP programs count.
// q is the database or an open transaction.
func (r Repo) SumActions(ctx context.Context, q Querier, assessmentID string, onlyTop bool) (ActionTotals, error) {
	query := `SELECT COUNT(a.id),
COALESCE(SUM(CASE WHEN a.status='done' THEN 1 ELSE 0 END),0),
COALESCE(SUM(CASE WHEN a.impact_validated=1 THEN 1 ELSE 0 END),0),
COALESCE(SUM(a.weighted_need),0),
COALESCE(SUM(CASE WHEN a.impact_validated=1 THEN a.weighted_need ELSE 0 END),0)
FROM action_instances a JOIN program_instances p ON p.id=a.program_instance_id WHERE p.assessment_id=?`
	if onlyTop {
		query += ` AND p.priority='TOP'`
	}
	var t ActionTotals
	err := q.QueryRowContext(ctx, query, assessmentID).Scan(&t.Total, &t.Done, &t.Validated, &t.NeedTotal, &t.NeedValid)
	return t, err
}
