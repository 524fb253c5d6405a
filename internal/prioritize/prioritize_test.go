package prioritize_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"gapline/internal/domain"
	"gapline/internal/prioritize"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func lvl(v int) *int { return &v }

func resp(code string, asIs, toBe, importance int) domain.CriterionResponse {
	return domain.CriterionResponse{CriteriaCode: code, AsIsLevel: lvl(asIs), ToBeLevel: lvl(toBe), Importance: lvl(importance)}
}

func TestScoreCriteriaScenarioA(t *testing.T) {
	res := prioritize.ScoreCriteria(
		[]string{"C1", "C2", "C3"},
		[]domain.CriterionResponse{resp("C1", 1, 4, 5), resp("C2", 3, 3, 4), resp("C3", 2, 5, 3)},
		prioritize.DefaultBanding(),
	)
	require.False(t, res.UsingFallback)
	require.Len(t, res.Criteria, 2)
	assert.Equal(t, "C1", res.Criteria[0].Code)
	assert.Equal(t, 15, res.Criteria[0].WeightedNeed)
	assert.Equal(t, prioritize.BandHigh, res.Criteria[0].Band)
	assert.Equal(t, "C3", res.Criteria[1].Code)
	assert.Equal(t, 9, res.Criteria[1].WeightedNeed)
	assert.Equal(t, prioritize.BandMedium, res.Criteria[1].Band)
}

func TestScoreCriteriaExcludesIncompleteAndNonPositive(t *testing.T) {
	responses := []domain.CriterionResponse{
		resp("EQ", 3, 3, 5),
		resp("NEG", 4, 2, 5),
		{CriteriaCode: "NOASIS", ToBeLevel: lvl(5), Importance: lvl(5)},
		{CriteriaCode: "NOTOBE", AsIsLevel: lvl(1), Importance: lvl(5)},
		{CriteriaCode: "NOIMP", AsIsLevel: lvl(1), ToBeLevel: lvl(5)},
		resp("OK", 1, 2, 1),
	}
	res := prioritize.ScoreCriteria([]string{"EQ", "NEG", "NOASIS", "NOTOBE", "NOIMP", "OK"}, responses, prioritize.DefaultBanding())
	require.False(t, res.UsingFallback)
	require.Len(t, res.Criteria, 1)
	assert.Equal(t, "OK", res.Criteria[0].Code)
}

func TestScoreCriteriaTieKeepsPackOrder(t *testing.T) {
	res := prioritize.ScoreCriteria(
		[]string{"B", "A", "C"},
		[]domain.CriterionResponse{resp("A", 1, 3, 2), resp("B", 1, 3, 2), resp("C", 1, 2, 1)},
		prioritize.DefaultBanding(),
	)
	var codes []string
	for _, c := range res.Criteria {
		codes = append(codes, c.Code)
	}
	if diff := cmp.Diff([]string{"B", "A", "C"}, codes); diff != "" {
		t.Fatalf("rank order mismatch (-want +got):\n%s", diff)
	}
}

func TestScoreCriteriaFallback(t *testing.T) {
	res := prioritize.ScoreCriteria([]string{"X", "Y"}, nil, prioritize.DefaultBanding())
	require.True(t, res.UsingFallback)
	assert.NotEmpty(t, res.Disclaimer)
	require.Len(t, res.Criteria, 2)
	for _, c := range res.Criteria {
		assert.Zero(t, c.WeightedNeed)
		assert.Empty(t, c.Band)
	}
	assert.Empty(t, res.NeedByCode())
}

func TestWeightedNeedMonotonic(t *testing.T) {
	for asIs := 1; asIs <= 5; asIs++ {
		for toBe := 1; toBe <= 5; toBe++ {
			for imp := 1; imp <= 5; imp++ {
				base, _ := prioritize.WeightedNeed(resp("c", asIs, toBe, imp))
				assert.GreaterOrEqual(t, base, 0)
				if toBe < 5 {
					wider, _ := prioritize.WeightedNeed(resp("c", asIs, toBe+1, imp))
					assert.GreaterOrEqual(t, wider, base)
				}
				if imp < 5 {
					heavier, _ := prioritize.WeightedNeed(resp("c", asIs, toBe, imp+1))
					assert.GreaterOrEqual(t, heavier, base)
				}
			}
		}
	}
}

func TestBandingCuts(t *testing.T) {
	b := prioritize.DefaultBanding()
	cases := []struct{ n, high, medium int }{
		{0, 0, 0}, {1, 1, 1}, {2, 1, 2}, {3, 1, 3}, {10, 3, 7}, {11, 4, 8},
	}
	for _, tc := range cases {
		h, m := b.Cuts(tc.n)
		assert.Equal(t, tc.high, h, "high cut for n=%d", tc.n)
		assert.Equal(t, tc.medium, m, "medium cut for n=%d", tc.n)
	}
}

func TestClassifyPartitionsGrid(t *testing.T) {
	for _, th := range []prioritize.Thresholds{prioritize.RoadmapThresholds(), prioritize.MatrixThresholds()} {
		counts := map[prioritize.Quadrant]int{}
		for impact := 1; impact <= 5; impact++ {
			for effort := 1; effort <= 5; effort++ {
				q := prioritize.Classify(impact, effort, th)
				require.Contains(t, prioritize.Quadrants(), q)
				counts[q]++
			}
		}
		total := 0
		for _, n := range counts {
			total += n
		}
		assert.Equal(t, 25, total)
	}
}

func TestClassifyRoadmapThresholds(t *testing.T) {
	th := prioritize.RoadmapThresholds()
	assert.Equal(t, prioritize.QuickWin, prioritize.Classify(3, 2, th))
	assert.Equal(t, prioritize.Transformational, prioritize.Classify(5, 3, th))
	assert.Equal(t, prioritize.Foundation, prioritize.Classify(2, 5, th))
	assert.Equal(t, prioritize.Maintenance, prioritize.Classify(2, 1, th))
}

func TestClassifyMatrixThresholds(t *testing.T) {
	th := prioritize.MatrixThresholds()
	assert.Equal(t, prioritize.Maintenance, prioritize.Classify(3, 2, th))
	assert.Equal(t, prioritize.QuickWin, prioritize.Classify(4, 3, th))
	assert.Equal(t, prioritize.Transformational, prioritize.Classify(4, 4, th))
	assert.Equal(t, prioritize.Foundation, prioritize.Classify(3, 4, th))
}

func catalogFixture() []domain.CatalogItem {
	return []domain.CatalogItem{
		{ID: "p1", Kind: domain.KindProgram, Code: "P1", ImpactScore: 4, EffortScore: 2, LinkedCriteria: []domain.CriterionLink{
			{CriteriaCode: "C1", MapWeight: 1, PackWeight: 1},
			{CriteriaCode: "C2", MapWeight: 0.5, PackWeight: 1},
			{CriteriaCode: "C3", MapWeight: 1, PackWeight: 0.5},
			{CriteriaCode: "C4", MapWeight: 1, PackWeight: 1},
		}},
		{ID: "p2", Kind: domain.KindProgram, Code: "P2", ImpactScore: 2, EffortScore: 4, LinkedCriteria: []domain.CriterionLink{
			{CriteriaCode: "C2", MapWeight: 1, PackWeight: 1},
		}},
		{ID: "p3", Kind: domain.KindProgram, Code: "P3", ImpactScore: 5, EffortScore: 5, LinkedCriteria: []domain.CriterionLink{
			{CriteriaCode: "C9", MapWeight: 1, PackWeight: 1},
		}},
	}
}

func TestAggregateRanksAndExplains(t *testing.T) {
	crit := prioritize.ScoreCriteria(
		[]string{"C1", "C2", "C3", "C4"},
		[]domain.CriterionResponse{resp("C1", 1, 5, 5), resp("C2", 1, 3, 4), resp("C3", 2, 4, 2), resp("C4", 1, 2, 1)},
		prioritize.DefaultBanding(),
	)
	res := prioritize.Aggregate(catalogFixture(), crit, prioritize.DefaultScoring(), prioritize.RoadmapThresholds())
	require.False(t, res.UsingFallback)
	require.Len(t, res.Items, 2, "items without positive need are not ranked")

	top := res.Items[0]
	assert.Equal(t, "P1", top.Code)
	assert.Equal(t, 1, top.Rank)
	// C1=20, C2=8*0.5=4, C3=4*0.5=2, C4=1
	assert.InDelta(t, 27.0, top.WeightedNeed, 1e-9)
	assert.Equal(t, 4, top.CriteriaCovered)
	require.Len(t, top.TopContributors, 3)
	assert.Equal(t, "C1", top.TopContributors[0].CriteriaCode)
	assert.Equal(t, "C2", top.TopContributors[1].CriteriaCode)
	assert.Equal(t, "C3", top.TopContributors[2].CriteriaCode)
	assert.InDelta(t, 96.3, top.TopContributorsSharePct, 1e-9)
	assert.Equal(t, prioritize.QuickWin, top.Quadrant)
	assert.Equal(t, prioritize.PriorityTop, top.Priority)

	second := res.Items[1]
	assert.Equal(t, "P2", second.Code)
	assert.Equal(t, prioritize.PriorityMedium, second.Priority)
	assert.Equal(t, prioritize.Foundation, second.Quadrant)
}

func TestAggregateScoreMonotonic(t *testing.T) {
	s := prioritize.DefaultScoring()
	crit := prioritize.ScoreCriteria([]string{"C"}, []domain.CriterionResponse{resp("C", 1, 3, 3)}, s.Banding)
	score := func(impact, effort int, weight float64) float64 {
		res := prioritize.Aggregate([]domain.CatalogItem{{
			ID: "x", Code: "X", ImpactScore: impact, EffortScore: effort,
			LinkedCriteria: []domain.CriterionLink{{CriteriaCode: "C", MapWeight: weight, PackWeight: 1}},
		}}, crit, s, prioritize.RoadmapThresholds())
		require.Len(t, res.Items, 1)
		return res.Items[0].ItemScore
	}
	assert.Greater(t, score(4, 3, 1), score(3, 3, 1))
	assert.Less(t, score(3, 4, 1), score(3, 3, 1))
	assert.Greater(t, score(3, 3, 2), score(3, 3, 1))
}

func TestAggregateTieBreak(t *testing.T) {
	crit := prioritize.ScoreCriteria([]string{"C"}, []domain.CriterionResponse{resp("C", 1, 2, 1)}, prioritize.DefaultBanding())
	link := []domain.CriterionLink{{CriteriaCode: "C", MapWeight: 1, PackWeight: 1}}
	items := []domain.CatalogItem{
		{ID: "b", Code: "B", ImpactScore: 3, EffortScore: 3, LinkedCriteria: link},
		{ID: "a", Code: "A", ImpactScore: 3, EffortScore: 3, LinkedCriteria: link},
	}
	res := prioritize.Aggregate(items, crit, prioritize.DefaultScoring(), prioritize.RoadmapThresholds())
	require.Len(t, res.Items, 2)
	assert.Equal(t, "A", res.Items[0].Code)
	assert.Equal(t, "B", res.Items[1].Code)
}

func TestAggregateFallback(t *testing.T) {
	crit := prioritize.ScoreCriteria([]string{"C1"}, nil, prioritize.DefaultBanding())
	res := prioritize.Aggregate(catalogFixture(), crit, prioritize.DefaultScoring(), prioritize.RoadmapThresholds())
	require.True(t, res.UsingFallback)
	assert.Equal(t, prioritize.ItemFallbackDisclaimer, res.Disclaimer)
	require.Len(t, res.Items, 3)
	for _, it := range res.Items {
		assert.Zero(t, it.WeightedNeed)
		assert.Zero(t, it.Rank)
		assert.Empty(t, it.Priority)
	}
}

func ranked(code string, q prioritize.Quadrant) prioritize.ItemScore {
	return prioritize.ItemScore{Code: code, Quadrant: q}
}

func codesOf(items []prioritize.ItemScore) []string {
	out := []string{}
	for _, it := range items {
		out = append(out, it.Code)
	}
	return out
}

func TestAllocateScenarioB(t *testing.T) {
	rm, err := prioritize.Allocate([]prioritize.ItemScore{
		ranked("Q1", prioritize.QuickWin),
		ranked("Q2", prioritize.QuickWin),
		ranked("Q3", prioritize.QuickWin),
		ranked("T1", prioritize.Transformational),
	}, 2)
	require.NoError(t, err)
	require.Len(t, rm.Phases, 3)
	assert.Equal(t, []string{"Q1", "Q2"}, codesOf(rm.Phases[0].Items))
	assert.Equal(t, []string{"Q3", "T1"}, codesOf(rm.Phases[1].Items))
	assert.Empty(t, rm.Phases[2].Items)
	assert.Equal(t, "now", rm.Phases[0].Wave)
	assert.Equal(t, "next", rm.Phases[1].Wave)
	assert.Equal(t, "later", rm.Phases[2].Wave)
}

func TestAllocateCapacityAndExclusions(t *testing.T) {
	var items []prioritize.ItemScore
	for i := 0; i < 5; i++ {
		items = append(items, ranked("T"+string(rune('a'+i)), prioritize.Transformational))
	}
	items = append(items, ranked("F", prioritize.Foundation), ranked("M", prioritize.Maintenance))
	rm, err := prioritize.Allocate(items, 2)
	require.NoError(t, err)
	assert.Empty(t, rm.Phases[0].Items, "transformational never moves backwards")
	assert.Equal(t, []string{"Ta", "Tb"}, codesOf(rm.Phases[1].Items))
	assert.Equal(t, []string{"Tc", "Td"}, codesOf(rm.Phases[2].Items))
	assert.Equal(t, []string{"Te"}, codesOf(rm.Overflow))

	seen := map[string]int{}
	for _, b := range rm.Phases {
		assert.LessOrEqual(t, len(b.Items), 2)
		for _, it := range b.Items {
			seen[it.Code]++
		}
	}
	for code, n := range seen {
		assert.Equal(t, 1, n, "%s allocated more than once", code)
	}
	assert.NotContains(t, seen, "F")
	assert.NotContains(t, seen, "M")
}

func TestAllocateRejectsCapacity(t *testing.T) {
	for _, n := range []int{0, 1, 7} {
		_, err := prioritize.Allocate(nil, n)
		assert.ErrorIs(t, err, prioritize.ErrCapacityRange)
	}
}

func TestPhaseMetadata(t *testing.T) {
	for _, p := range prioritize.Phases() {
		assert.NotEmpty(t, p.Title())
		assert.NotEmpty(t, p.Subtitle())
	}
	assert.Equal(t, "Quick win", prioritize.QuickWin.Label())
}
