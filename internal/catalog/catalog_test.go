package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gapline/internal/domain"
)

const sample = `code: DM
title: Digital maturity
criteria:
  - code: C1
    title: Data governance
  - code: C2
    title: Process automation
items:
  - kind: program
    code: P1
    title: Data office
    impact: 5
    effort: 2
    shortlisted: true
    criteria:
      - criteria_code: C1
        map_weight: 1
        pack_weight: 0.5
  - id: fixed-id
    kind: action
    code: A1
    title: Automate intake
    impact: 3
    effort: 1
    criteria:
      - criteria_code: C2
        map_weight: 0.8
        pack_weight: 1
`

func TestParse(t *testing.T) {
	pack, items, err := Parse([]byte(sample))
	require.NoError(t, err)
	assert.Equal(t, []string{"C1", "C2"}, pack.CodeList())
	assert.Equal(t, 1, pack.Criteria[1].Position)
	require.Len(t, items, 2)

	want := domain.CatalogItem{
		ID:             ItemID("DM", domain.KindProgram, "P1"),
		PackCode:       "DM",
		Kind:           domain.KindProgram,
		Code:           "P1",
		Title:          "Data office",
		LinkedCriteria: []domain.CriterionLink{{CriteriaCode: "C1", MapWeight: 1, PackWeight: 0.5}},
		ImpactScore:    5,
		EffortScore:    2,
		Shortlisted:    true,
	}
	if diff := cmp.Diff(want, items[0]); diff != "" {
		t.Fatalf("item mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, "fixed-id", items[1].ID)
}

func TestItemIDIsStable(t *testing.T) {
	assert.Equal(t, ItemID("DM", "program", "P1"), ItemID("DM", "program", "P1"))
	assert.NotEqual(t, ItemID("DM", "program", "P1"), ItemID("DM", "action", "P1"))
}

func TestParseRejects(t *testing.T) {
	cases := map[string]string{
		"no code":           "criteria:\n  - code: C1\n",
		"no criteria":       "code: DM\n",
		"dup criterion":     "code: DM\ncriteria:\n  - code: C1\n  - code: C1\n",
		"bad kind":          "code: DM\ncriteria:\n  - code: C1\nitems:\n  - kind: epic\n    code: E\n    title: E\n    impact: 1\n    effort: 1\n",
		"impact range":      "code: DM\ncriteria:\n  - code: C1\nitems:\n  - kind: program\n    code: P\n    title: P\n    impact: 6\n    effort: 1\n",
		"unknown criterion": "code: DM\ncriteria:\n  - code: C1\nitems:\n  - kind: program\n    code: P\n    title: P\n    impact: 3\n    effort: 1\n    criteria:\n      - criteria_code: C9\n        map_weight: 1\n        pack_weight: 1\n",
		"negative weight":   "code: DM\ncriteria:\n  - code: C1\nitems:\n  - kind: program\n    code: P\n    title: P\n    impact: 3\n    effort: 1\n    criteria:\n      - criteria_code: C1\n        map_weight: -1\n        pack_weight: 1\n",
		"yaml":              "code: [",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, _, err := Parse([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pack.yml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o644))
	pack, items, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "DM", pack.Code)
	assert.Len(t, items, 2)

	_, _, err = Load(filepath.Join(t.TempDir(), "missing.yml"))
	assert.Error(t, err)
}
