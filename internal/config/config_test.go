package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gapline/internal/prioritize"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, prioritize.DefaultMaxPerPhase, cfg.Allocation.MaxPerPhase)
	assert.Equal(t, prioritize.RoadmapThresholds(), cfg.Quadrants.Roadmap)
	assert.Equal(t, prioritize.MatrixThresholds(), cfg.Quadrants.Matrix)
	assert.Len(t, cfg.Activation.ActionTemplate, 4)
}

func TestFromYAMLKeepsDefaultsForMissingSections(t *testing.T) {
	cfg, err := FromYAML([]byte("allocation:\n  max_per_phase: 2\nactivation:\n  action_template:\n    - title: only\n"))
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Allocation.MaxPerPhase)
	assert.Equal(t, []ActionTemplate{{Title: "only"}}, cfg.Activation.ActionTemplate)
	assert.Equal(t, prioritize.DefaultScoring(), cfg.Scoring)
	assert.Equal(t, prioritize.RoadmapThresholds(), cfg.Quadrants.Roadmap)
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]string{
		"capacity":  "allocation:\n  max_per_phase: 9\n",
		"template":  "activation:\n  action_template:\n    - title: \"\"\n",
		"threshold": "quadrants:\n  roadmap:\n    impact_min: 0\n    effort_max: 2\n",
		"weights":   "scoring:\n  effort_weight: -1\n",
		"yaml":      "scoring: [",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := FromYAML([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestThresholdProfiles(t *testing.T) {
	cfg := Default()
	th, err := cfg.Thresholds("")
	require.NoError(t, err)
	assert.Equal(t, cfg.Quadrants.Roadmap, th)
	th, err = cfg.Thresholds(ProfileMatrix)
	require.NoError(t, err)
	assert.Equal(t, cfg.Quadrants.Matrix, th)
	_, err = cfg.Thresholds("other")
	assert.Error(t, err)
}

func TestLoadOrDefault(t *testing.T) {
	dir := t.TempDir()
	cfg, err := LoadOrDefault(dir)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)

	require.NoError(t, os.WriteFile(Path(dir), []byte("allocation:\n  max_per_phase: 3\n"), 0o644))
	cfg, err = LoadOrDefault(dir)
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Allocation.MaxPerPhase)

	_, err = Load(t.TempDir())
	assert.Error(t, err)
}
