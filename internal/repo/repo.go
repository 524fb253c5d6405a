package repo

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"gapline/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("already exists")
)

type Querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type rowScanner interface {
	Scan(dest ...any) error
}

// InsertAssessment returns ErrConflict when the id is taken.
func (r Repo) InsertAssessment(ctx context.Context, a domain.Assessment) error {
	res, err := r.DB.ExecContext(ctx, `INSERT INTO assessments(id,pack_code,name,created_at) VALUES (?,?,?,?)
ON CONFLICT(id) DO NOTHING`, a.ID, a.PackCode, nullable(a.Name), a.CreatedAt)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrConflict
	}
	return nil
}

func (r Repo) GetAssessment(ctx context.Context, id string) (domain.Assessment, error) {
	var a domain.Assessment
	var name sql.NullString
	err := r.DB.QueryRowContext(ctx, `SELECT id,pack_code,name,created_at FROM assessments WHERE id=?`, id).
		Scan(&a.ID, &a.PackCode, &name, &a.CreatedAt)
	if err == sql.ErrNoRows {
		return a, ErrNotFound
	}
	if err != nil {
		return a, err
	}
	a.Name = name.String
	return a, nil
}

func (r Repo) ListAssessments(ctx context.Context) ([]domain.Assessment, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,pack_code,COALESCE(name,''),created_at FROM assessments ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Assessment
	for rows.Next() {
		var a domain.Assessment
		if err := rows.Scan(&a.ID, &a.PackCode, &a.Name, &a.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

func (r Repo) LatestEvents(ctx context.Context, limit int, assessmentID, evtType string) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 20
	}
	clauses := []string{"1=1"}
	var args []any
	if assessmentID != "" {
		clauses = append(clauses, "assessment_id=?")
		args = append(args, assessmentID)
	}
	if evtType != "" {
		clauses = append(clauses, "type=?")
		args = append(args, evtType)
	}
	query := `SELECT id,ts,type,COALESCE(assessment_id,''),entity_kind,COALESCE(entity_id,''),actor_id,payload_json FROM events WHERE ` +
		strings.Join(clauses, " AND ") + ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.AssessmentID, &e.EntityKind, &e.EntityID, &e.ActorID, &e.Payload); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableIntPtr(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
