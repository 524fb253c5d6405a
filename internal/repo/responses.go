package repo

import (
	"context"
	"database/sql"
	"time"

	"gapline/internal/domain"
)

// UpsertResponses writes responses for an assessment, one row per criterion.
func (r Repo) UpsertResponses(ctx context.Context, assessmentID string, responses []domain.CriterionResponse) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	now := time.Now().UTC().Format(time.RFC3339)
	for _, resp := range responses {
		if _, err := tx.ExecContext(ctx, `INSERT INTO responses(assessment_id,criteria_code,as_is_level,to_be_level,importance,updated_at) VALUES (?,?,?,?,?,?)
ON CONFLICT(assessment_id,criteria_code) DO UPDATE SET as_is_level=excluded.as_is_level, to_be_level=excluded.to_be_level,
importance=excluded.importance, updated_at=excluded.updated_at`,
			assessmentID, resp.CriteriaCode, nullableIntPtr(resp.AsIsLevel), nullableIntPtr(resp.ToBeLevel), nullableIntPtr(resp.Importance), now); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// ReadResponses returns the stored responses of an assessment restricted to codes.
func (r Repo) ReadResponses(ctx context.Context, assessmentID string, codes []string) ([]domain.CriterionResponse, error) {
	if len(codes) == 0 {
		return nil, nil
	}
	args := []any{assessmentID}
	for _, c := range codes {
		args = append(args, c)
	}
	rows, err := r.DB.QueryContext(ctx, `SELECT criteria_code,as_is_level,to_be_level,importance FROM responses
WHERE assessment_id=? AND criteria_code IN (`+placeholders(len(codes))+`) ORDER BY criteria_code`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.CriterionResponse
	for rows.Next() {
		var resp domain.CriterionResponse
		var asIs, toBe, importance sql.NullInt64
		if err := rows.Scan(&resp.CriteriaCode, &asIs, &toBe, &importance); err != nil {
			return nil, err
		}
		resp.AsIsLevel = intPtr(asIs)
		resp.ToBeLevel = intPtr(toBe)
		resp.Importance = intPtr(importance)
		res = append(res, resp)
	}
	return res, rows.Err()
}

func intPtr(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	n := int(v.Int64)
	return &n
}
