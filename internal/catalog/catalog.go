// Package catalog reads assessment packs (ordered criteria plus the program and action
// catalog linked to them) from YAML documents.
package catalog

import (
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"gapline/internal/domain"
)

var itemNamespace = uuid.MustParse("2b7e8f0c-3d41-4a8e-b5c9-71f0d2a6e4c3")

// File is the pack document, as YAML on disk or JSON over the API.
type File struct {
	Code     string      `yaml:"code" json:"code"`
	Title    string      `yaml:"title" json:"title,omitempty"`
	Criteria []Criterion `yaml:"criteria" json:"criteria"`
	Items    []Item      `yaml:"items" json:"items"`
}

type Criterion struct {
	Code  string `yaml:"code" json:"code"`
	Title string `yaml:"title" json:"title,omitempty"`
}

type Item struct {
	ID          string                 `yaml:"id" json:"id,omitempty"`
	Kind        string                 `yaml:"kind" json:"kind" enum:"program,action"`
	Code        string                 `yaml:"code" json:"code"`
	Title       string                 `yaml:"title" json:"title"`
	Impact      int                    `yaml:"impact" json:"impact" minimum:"1" maximum:"5"`
	Effort      int                    `yaml:"effort" json:"effort" minimum:"1" maximum:"5"`
	Shortlisted bool                   `yaml:"shortlisted" json:"shortlisted,omitempty"`
	Criteria    []domain.CriterionLink `yaml:"criteria" json:"criteria,omitempty"`
}

// Load reads and validates a pack file.
func Load(path string) (domain.Pack, []domain.CatalogItem, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.Pack{}, nil, err
	}
	return Parse(data)
}

// Parse validates a pack document and converts it to domain types. Items without an
// explicit id get one derived from pack, kind and code so re-imports keep it stable.
func Parse(data []byte) (domain.Pack, []domain.CatalogItem, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return domain.Pack{}, nil, fmt.Errorf("invalid pack yaml: %w", err)
	}
	return f.Build()
}

// Build validates the document and converts it to domain types.
func (f File) Build() (domain.Pack, []domain.CatalogItem, error) {
	if err := f.Validate(); err != nil {
		return domain.Pack{}, nil, err
	}
	pack := domain.Pack{Code: f.Code, Title: f.Title}
	for i, c := range f.Criteria {
		pack.Criteria = append(pack.Criteria, domain.PackCriterion{Code: c.Code, Title: c.Title, Position: i})
	}
	items := make([]domain.CatalogItem, 0, len(f.Items))
	for _, it := range f.Items {
		id := it.ID
		if id == "" {
			id = ItemID(f.Code, it.Kind, it.Code)
		}
		items = append(items, domain.CatalogItem{
			ID:             id,
			PackCode:       f.Code,
			Kind:           it.Kind,
			Code:           it.Code,
			Title:          it.Title,
			LinkedCriteria: it.Criteria,
			ImpactScore:    it.Impact,
			EffortScore:    it.Effort,
			Shortlisted:    it.Shortlisted,
		})
	}
	return pack, items, nil
}

// ItemID is the stable id of a catalog item.
func ItemID(packCode, kind, code string) string {
	return uuid.NewSHA1(itemNamespace, []byte(packCode+"/"+kind+"/"+code)).String()
}

func (f File) Validate() error {
	if strings.TrimSpace(f.Code) == "" {
		return fmt.Errorf("pack.code is required")
	}
	if len(f.Criteria) == 0 {
		return fmt.Errorf("pack %s has no criteria", f.Code)
	}
	criteria := map[string]bool{}
	for i, c := range f.Criteria {
		if strings.TrimSpace(c.Code) == "" {
			return fmt.Errorf("criteria[%d].code is required", i)
		}
		if criteria[c.Code] {
			return fmt.Errorf("criteria[%d]: duplicate code %s", i, c.Code)
		}
		criteria[c.Code] = true
	}
	seen := map[string]bool{}
	for i, it := range f.Items {
		if it.Kind != domain.KindProgram && it.Kind != domain.KindAction {
			return fmt.Errorf("items[%d].kind must be program or action, got %q", i, it.Kind)
		}
		if strings.TrimSpace(it.Code) == "" || strings.TrimSpace(it.Title) == "" {
			return fmt.Errorf("items[%d] requires code and title", i)
		}
		key := it.Kind + "/" + it.Code
		if seen[key] {
			return fmt.Errorf("items[%d]: duplicate %s %s", i, it.Kind, it.Code)
		}
		seen[key] = true
		if it.Impact < 1 || it.Impact > 5 {
			return fmt.Errorf("items[%d] %s: impact must be in [1,5], got %d", i, it.Code, it.Impact)
		}
		if it.Effort < 1 || it.Effort > 5 {
			return fmt.Errorf("items[%d] %s: effort must be in [1,5], got %d", i, it.Code, it.Effort)
		}
		for _, l := range it.Criteria {
			if !criteria[l.CriteriaCode] {
				return fmt.Errorf("items[%d] %s: unknown criterion %s", i, it.Code, l.CriteriaCode)
			}
			if l.MapWeight < 0 || l.PackWeight < 0 {
				return fmt.Errorf("items[%d] %s: negative weight on %s", i, it.Code, l.CriteriaCode)
			}
		}
	}
	return nil
}
