package prioritize

import "fmt"

type Quadrant string

const (
	QuickWin         Quadrant = "quick_win"
	Transformational Quadrant = "transformational"
	Foundation       Quadrant = "foundation"
	Maintenance      Quadrant = "maintenance"
)

// Quadrants lists every quadrant in display order.
func Quadrants() []Quadrant {
	return []Quadrant{QuickWin, Transformational, Foundation, Maintenance}
}

func (q Quadrant) Label() string {
	switch q {
	case QuickWin:
		return "Quick win"
	case Transformational:
		return "Transformational"
	case Foundation:
		return "Foundation"
	case Maintenance:
		return "Maintenance"
	default:
		return string(q)
	}
}

// Thresholds splits the impact/effort grid. Impact at or above ImpactMin is high;
// effort at or below EffortMax is low.
type Thresholds struct {
	ImpactMin int `yaml:"impact_min" json:"impact_min"`
	EffortMax int `yaml:"effort_max" json:"effort_max"`
}

// RoadmapThresholds drives phase allocation: impact>=3, effort<=2.
func RoadmapThresholds() Thresholds {
	return Thresholds{ImpactMin: 3, EffortMax: 2}
}

// MatrixThresholds drives the impact/effort matrix view: impact>=4 is high and
// effort>=4 is high, so effort<=3 counts as low.
func MatrixThresholds() Thresholds {
	return Thresholds{ImpactMin: 4, EffortMax: 3}
}

func (t Thresholds) Validate() error {
	if t.ImpactMin < 1 || t.ImpactMin > 5 {
		return fmt.Errorf("impact_min must be in [1,5], got %d", t.ImpactMin)
	}
	if t.EffortMax < 1 || t.EffortMax > 5 {
		return fmt.Errorf("effort_max must be in [1,5], got %d", t.EffortMax)
	}
	return nil
}

func Classify(impact, effort int, t Thresholds) Quadrant {
	highImpact := impact >= t.ImpactMin
	lowEffort := effort <= t.EffortMax
	switch {
	case highImpact && lowEffort:
		return QuickWin
	case highImpact:
		return Transformational
	case lowEffort:
		return Maintenance
	default:
		return Foundation
	}
}
