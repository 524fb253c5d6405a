// Package prioritize turns assessment responses into ranked criteria and catalog items,
// classifies items by impact and effort, and allocates them into execution phases.
// Everything here is pure: no I/O, no shared state.
package prioritize

import (
	"fmt"
	"math"
	"sort"

	"gapline/internal/domain"
)

// FallbackDisclaimer is surfaced whenever no criterion has a positive gap.
const FallbackDisclaimer = "No criterion has a positive gap yet; the list is shown in pack order without ranking."

type Band string

const (
	BandHigh   Band = "high"
	BandMedium Band = "medium"
	BandLow    Band = "low"
)

// Banding splits a ranked list into three tiers by cumulative share of its length.
type Banding struct {
	HighShare   float64 `yaml:"high_share" json:"high_share"`
	MediumShare float64 `yaml:"medium_share" json:"medium_share"`
}

func DefaultBanding() Banding {
	return Banding{HighShare: 0.3, MediumShare: 0.7}
}

func (b Banding) Validate() error {
	if b.HighShare <= 0 || b.HighShare > 1 {
		return fmt.Errorf("high_share must be in (0,1], got %v", b.HighShare)
	}
	if b.MediumShare < b.HighShare || b.MediumShare > 1 {
		return fmt.Errorf("medium_share must be in [high_share,1], got %v", b.MediumShare)
	}
	return nil
}

// Cuts returns the exclusive end indexes of the high and medium tiers for n items.
func (b Banding) Cuts(n int) (high, medium int) {
	high = int(math.Ceil(float64(n)*b.HighShare - 1e-9))
	medium = int(math.Ceil(float64(n)*b.MediumShare - 1e-9))
	if high > n {
		high = n
	}
	if medium > n {
		medium = n
	}
	if medium < high {
		medium = high
	}
	return high, medium
}

// tier returns 0 (high), 1 (medium) or 2 (low) for position i of n.
func (b Banding) tier(i, n int) int {
	high, medium := b.Cuts(n)
	switch {
	case i < high:
		return 0
	case i < medium:
		return 1
	default:
		return 2
	}
}

type ScoredCriterion struct {
	Code         string `json:"criteria_code"`
	Position     int    `json:"position"`
	Rank         int    `json:"rank"`
	Gap          int    `json:"gap"`
	Importance   int    `json:"importance"`
	WeightedNeed int    `json:"weighted_need"`
	Band         Band   `json:"band,omitempty"`
}

type CriteriaResult struct {
	Criteria      []ScoredCriterion `json:"criteria"`
	UsingFallback bool              `json:"using_fallback"`
	Disclaimer    string            `json:"disclaimer,omitempty"`
}

// NeedByCode maps criteria codes to weighted need. Empty under fallback.
func (r CriteriaResult) NeedByCode() map[string]int {
	needs := make(map[string]int, len(r.Criteria))
	if r.UsingFallback {
		return needs
	}
	for _, c := range r.Criteria {
		needs[c.Code] = c.WeightedNeed
	}
	return needs
}

// WeightedNeed returns gap x importance for a complete response with a positive gap.
func WeightedNeed(r domain.CriterionResponse) (int, bool) {
	gap, ok := r.Gap()
	if !ok || gap <= 0 {
		return 0, false
	}
	return gap * *r.Importance, true
}

// ScoreCriteria ranks the pack's criteria by weighted need. Responses for codes outside
// the pack are ignored. With no qualifying criterion the pack list is returned in order
// and UsingFallback is set.
func ScoreCriteria(packCodes []string, responses []domain.CriterionResponse, b Banding) CriteriaResult {
	byCode := make(map[string]domain.CriterionResponse, len(responses))
	for _, r := range responses {
		byCode[r.CriteriaCode] = r
	}
	seen := make(map[string]bool, len(packCodes))
	var ranked []ScoredCriterion
	var all []ScoredCriterion
	for i, code := range packCodes {
		if seen[code] {
			continue
		}
		seen[code] = true
		all = append(all, ScoredCriterion{Code: code, Position: i})
		r, ok := byCode[code]
		if !ok {
			continue
		}
		need, ok := WeightedNeed(r)
		if !ok {
			continue
		}
		gap, _ := r.Gap()
		ranked = append(ranked, ScoredCriterion{
			Code:         code,
			Position:     i,
			Gap:          gap,
			Importance:   *r.Importance,
			WeightedNeed: need,
		})
	}
	if len(ranked) == 0 {
		return CriteriaResult{Criteria: all, UsingFallback: true, Disclaimer: FallbackDisclaimer}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].WeightedNeed > ranked[j].WeightedNeed
	})
	for i := range ranked {
		ranked[i].Rank = i + 1
		ranked[i].Band = [...]Band{BandHigh, BandMedium, BandLow}[b.tier(i, len(ranked))]
	}
	return CriteriaResult{Criteria: ranked}
}
