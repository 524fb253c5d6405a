package repo

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"gapline/internal/domain"
)

// ImportPack replaces a pack's criteria and catalog items in one transaction.
// Items keep their ids across imports so program instances stay linked. Items
// absent from the import are deleted along with their links and overrides.
func (r Repo) ImportPack(ctx context.Context, pack domain.Pack, items []domain.CatalogItem) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	now := time.Now().UTC().Format(time.RFC3339)
	if _, err := tx.ExecContext(ctx, `INSERT INTO packs(code,title,created_at,updated_at) VALUES (?,?,?,?)
ON CONFLICT(code) DO UPDATE SET title=excluded.title, updated_at=excluded.updated_at`, pack.Code, nullable(pack.Title), now, now); err != nil {
		return fmt.Errorf("upsert pack: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM pack_criteria WHERE pack_code=?`, pack.Code); err != nil {
		return err
	}
	for i, c := range pack.Criteria {
		if _, err := tx.ExecContext(ctx, `INSERT INTO pack_criteria(pack_code,criteria_code,title,position) VALUES (?,?,?,?)`,
			pack.Code, c.Code, nullable(c.Title), i); err != nil {
			return fmt.Errorf("insert criterion %s: %w", c.Code, err)
		}
	}
	keep := make([]any, 0, len(items)+1)
	keep = append(keep, pack.Code)
	for _, it := range items {
		keep = append(keep, it.ID)
	}
	prune := `DELETE FROM catalog_items WHERE pack_code=?`
	if len(items) > 0 {
		prune += ` AND id NOT IN (` + placeholders(len(items)) + `)`
	}
	if _, err := tx.ExecContext(ctx, prune, keep...); err != nil {
		return fmt.Errorf("prune items: %w", err)
	}
	for _, it := range items {
		if _, err := tx.ExecContext(ctx, `INSERT INTO catalog_items(id,pack_code,kind,code,title,impact_score,effort_score,shortlisted) VALUES (?,?,?,?,?,?,?,?)
ON CONFLICT(id) DO UPDATE SET kind=excluded.kind, code=excluded.code, title=excluded.title, impact_score=excluded.impact_score,
effort_score=excluded.effort_score, shortlisted=excluded.shortlisted`,
			it.ID, pack.Code, it.Kind, it.Code, it.Title, it.ImpactScore, it.EffortScore, boolInt(it.Shortlisted)); err != nil {
			return fmt.Errorf("upsert item %s: %w", it.Code, err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM catalog_item_criteria WHERE item_id=?`, it.ID); err != nil {
			return err
		}
		for _, l := range it.LinkedCriteria {
			if _, err := tx.ExecContext(ctx, `INSERT INTO catalog_item_criteria(item_id,criteria_code,map_weight,pack_weight) VALUES (?,?,?,?)`,
				it.ID, l.CriteriaCode, l.MapWeight, l.PackWeight); err != nil {
				return fmt.Errorf("link %s -> %s: %w", it.Code, l.CriteriaCode, err)
			}
		}
	}
	return tx.Commit()
}

// ReadPack returns a pack with its criteria in pack order.
func (r Repo) ReadPack(ctx context.Context, code string) (domain.Pack, error) {
	var p domain.Pack
	var title sql.NullString
	err := r.DB.QueryRowContext(ctx, `SELECT code,title FROM packs WHERE code=?`, code).Scan(&p.Code, &title)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	if err != nil {
		return p, err
	}
	p.Title = title.String
	rows, err := r.DB.QueryContext(ctx, `SELECT criteria_code,COALESCE(title,''),position FROM pack_criteria WHERE pack_code=? ORDER BY position`, code)
	if err != nil {
		return p, err
	}
	defer rows.Close()
	for rows.Next() {
		var c domain.PackCriterion
		if err := rows.Scan(&c.Code, &c.Title, &c.Position); err != nil {
			return p, err
		}
		p.Criteria = append(p.Criteria, c)
	}
	return p, rows.Err()
}

// ReadCatalog returns every catalog item of a pack with its criterion links.
func (r Repo) ReadCatalog(ctx context.Context, packCode string) ([]domain.CatalogItem, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,pack_code,kind,code,title,impact_score,effort_score,shortlisted FROM catalog_items
WHERE pack_code=? ORDER BY kind, code`, packCode)
	if err != nil {
		return nil, err
	}
	var items []domain.CatalogItem
	index := map[string]int{}
	for rows.Next() {
		var it domain.CatalogItem
		var shortlisted int
		if err := rows.Scan(&it.ID, &it.PackCode, &it.Kind, &it.Code, &it.Title, &it.ImpactScore, &it.EffortScore, &shortlisted); err != nil {
			rows.Close()
			return nil, err
		}
		it.Shortlisted = shortlisted != 0
		index[it.ID] = len(items)
		items = append(items, it)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	links, err := r.DB.QueryContext(ctx, `SELECT l.item_id,l.criteria_code,l.map_weight,l.pack_weight FROM catalog_item_criteria l
JOIN catalog_items i ON i.id=l.item_id WHERE i.pack_code=? ORDER BY l.item_id, l.criteria_code`, packCode)
	if err != nil {
		return nil, err
	}
	defer links.Close()
	for links.Next() {
		var itemID string
		var l domain.CriterionLink
		if err := links.Scan(&itemID, &l.CriteriaCode, &l.MapWeight, &l.PackWeight); err != nil {
			return nil, err
		}
		if i, ok := index[itemID]; ok {
			items[i].LinkedCriteria = append(items[i].LinkedCriteria, l)
		}
	}
	return items, links.Err()
}

func (r Repo) GetCatalogItem(ctx context.Context, id string) (domain.CatalogItem, error) {
	var it domain.CatalogItem
	var shortlisted int
	err := r.DB.QueryRowContext(ctx, `SELECT id,pack_code,kind,code,title,impact_score,effort_score,shortlisted FROM catalog_items WHERE id=?`, id).
		Scan(&it.ID, &it.PackCode, &it.Kind, &it.Code, &it.Title, &it.ImpactScore, &it.EffortScore, &shortlisted)
	if err == sql.ErrNoRows {
		return it, ErrNotFound
	}
	it.Shortlisted = shortlisted != 0
	return it, err
}

func (r Repo) UpsertOverride(ctx context.Context, o domain.Override) error {
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := r.DB.ExecContext(ctx, `INSERT INTO item_overrides(assessment_id,item_id,impact_score,effort_score,updated_at) VALUES (?,?,?,?,?)
ON CONFLICT(assessment_id,item_id) DO UPDATE SET impact_score=excluded.impact_score, effort_score=excluded.effort_score, updated_at=excluded.updated_at`,
		o.AssessmentID, o.ItemID, o.ImpactScore, o.EffortScore, now)
	return err
}

// ReadOverrides returns manual impact/effort overrides keyed by catalog item id.
func (r Repo) ReadOverrides(ctx context.Context, assessmentID string) (map[string]domain.Override, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT assessment_id,item_id,impact_score,effort_score FROM item_overrides WHERE assessment_id=?`, assessmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := map[string]domain.Override{}
	for rows.Next() {
		var o domain.Override
		if err := rows.Scan(&o.AssessmentID, &o.ItemID, &o.ImpactScore, &o.EffortScore); err != nil {
			return nil, err
		}
		res[o.ItemID] = o
	}
	return res, rows.Err()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
