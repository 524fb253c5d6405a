package prioritize

import (
	"fmt"
	"math"
	"sort"

	"gapline/internal/domain"
)

// ItemFallbackDisclaimer is surfaced when no catalog item has positive need.
const ItemFallbackDisclaimer = "No catalog item is linked to a criterion with a positive gap yet; items are listed unranked."

type Priority string

const (
	PriorityTop    Priority = "TOP"
	PriorityMedium Priority = "MEDIA"
	PriorityLow    Priority = "BAJA"
)

// Scoring holds the item score coefficients. Only the signs matter to callers:
// item_score grows with need and impact and shrinks with effort.
type Scoring struct {
	NeedWeight      float64 `yaml:"need_weight" json:"need_weight"`
	ImpactWeight    float64 `yaml:"impact_weight" json:"impact_weight"`
	EffortWeight    float64 `yaml:"effort_weight" json:"effort_weight"`
	TopContributors int     `yaml:"top_contributors" json:"top_contributors"`
	Banding         Banding `yaml:"banding" json:"banding"`
}

func DefaultScoring() Scoring {
	return Scoring{
		NeedWeight:      1,
		ImpactWeight:    2,
		EffortWeight:    1,
		TopContributors: 3,
		Banding:         DefaultBanding(),
	}
}

func (s Scoring) Validate() error {
	if s.NeedWeight <= 0 || s.ImpactWeight <= 0 || s.EffortWeight <= 0 {
		return fmt.Errorf("scoring weights must be positive")
	}
	if s.TopContributors < 1 || s.TopContributors > 3 {
		return fmt.Errorf("top_contributors must be in [1,3], got %d", s.TopContributors)
	}
	return s.Banding.Validate()
}

func (s Scoring) valueScore(impact, effort int) float64 {
	return s.ImpactWeight*float64(impact) - s.EffortWeight*float64(effort)
}

type Contributor struct {
	CriteriaCode string  `json:"criteria_code"`
	Contribution float64 `json:"contribution"`
}

type ItemScore struct {
	ItemID                  string        `json:"item_id"`
	Kind                    string        `json:"kind"`
	Code                    string        `json:"code"`
	Title                   string        `json:"title"`
	ImpactScore             int           `json:"impact_score"`
	EffortScore             int           `json:"effort_score"`
	Rank                    int           `json:"rank"`
	WeightedNeed            float64       `json:"weighted_need"`
	ValueScore              float64       `json:"value_score"`
	ItemScore               float64       `json:"item_score"`
	Quadrant                Quadrant      `json:"quadrant"`
	Priority                Priority      `json:"priority,omitempty"`
	CriteriaCovered         int           `json:"criteria_covered"`
	TopContributors         []Contributor `json:"top_contributors"`
	TopContributorsSharePct float64       `json:"top_contributors_share_pct"`
}

type ItemsResult struct {
	Items         []ItemScore `json:"items"`
	UsingFallback bool        `json:"using_fallback"`
	Disclaimer    string      `json:"disclaimer,omitempty"`
}

// Aggregate rolls criterion need up to catalog items and ranks them. Items without
// positive need are left out unless no item has any, in which case every item is
// returned unranked with UsingFallback set.
func Aggregate(items []domain.CatalogItem, criteria CriteriaResult, s Scoring, th Thresholds) ItemsResult {
	needs := criteria.NeedByCode()
	var ranked []ItemScore
	all := make([]ItemScore, 0, len(items))
	for _, it := range items {
		score := scoreItem(it, needs, s, th)
		all = append(all, score)
		if score.WeightedNeed > 0 {
			ranked = append(ranked, score)
		}
	}
	if len(ranked) == 0 {
		sort.SliceStable(all, func(i, j int) bool { return all[i].Code < all[j].Code })
		return ItemsResult{Items: all, UsingFallback: true, Disclaimer: ItemFallbackDisclaimer}
	}
	SortRanked(ranked)
	for i := range ranked {
		ranked[i].Rank = i + 1
		ranked[i].Priority = [...]Priority{PriorityTop, PriorityMedium, PriorityLow}[s.Banding.tier(i, len(ranked))]
	}
	return ItemsResult{Items: ranked}
}

// SortRanked orders items by item score, then weighted need, then code.
func SortRanked(items []ItemScore) {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if a.ItemScore != b.ItemScore {
			return a.ItemScore > b.ItemScore
		}
		if a.WeightedNeed != b.WeightedNeed {
			return a.WeightedNeed > b.WeightedNeed
		}
		return a.Code < b.Code
	})
}

func scoreItem(it domain.CatalogItem, needs map[string]int, s Scoring, th Thresholds) ItemScore {
	var contributors []Contributor
	total := 0.0
	for _, link := range it.LinkedCriteria {
		need, ok := needs[link.CriteriaCode]
		if !ok || need <= 0 {
			continue
		}
		c := float64(need) * link.MapWeight * link.PackWeight
		if c <= 0 {
			continue
		}
		total += c
		contributors = append(contributors, Contributor{CriteriaCode: link.CriteriaCode, Contribution: c})
	}
	sort.SliceStable(contributors, func(i, j int) bool {
		if contributors[i].Contribution != contributors[j].Contribution {
			return contributors[i].Contribution > contributors[j].Contribution
		}
		return contributors[i].CriteriaCode < contributors[j].CriteriaCode
	})
	covered := len(contributors)
	limit := s.TopContributors
	if limit <= 0 {
		limit = 3
	}
	if len(contributors) > limit {
		contributors = contributors[:limit]
	}
	share := 0.0
	if total > 0 {
		top := 0.0
		for _, c := range contributors {
			top += c.Contribution
		}
		share = round1(100 * top / total)
	}
	value := s.valueScore(it.ImpactScore, it.EffortScore)
	return ItemScore{
		ItemID:                  it.ID,
		Kind:                    it.Kind,
		Code:                    it.Code,
		Title:                   it.Title,
		ImpactScore:             it.ImpactScore,
		EffortScore:             it.EffortScore,
		WeightedNeed:            total,
		ValueScore:              value,
		ItemScore:               s.NeedWeight*total + value,
		Quadrant:                Classify(it.ImpactScore, it.EffortScore, th),
		CriteriaCovered:         covered,
		TopContributors:         contributors,
		TopContributorsSharePct: share,
	}
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
