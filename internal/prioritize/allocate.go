package prioritize

import (
	"errors"
	"fmt"

	"gapline/internal/domain"
)

const (
	MinPerPhase        = 2
	MaxPerPhase        = 6
	DefaultMaxPerPhase = 4
)

var ErrCapacityRange = errors.New("max per phase out of range")

type Phase string

const (
	PhaseA Phase = "A"
	PhaseB Phase = "B"
	PhaseC Phase = "C"
)

// Phases returns the allocation sequence.
func Phases() []Phase {
	return []Phase{PhaseA, PhaseB, PhaseC}
}

func (p Phase) Wave() string {
	switch p {
	case PhaseA:
		return domain.WaveNow
	case PhaseB:
		return domain.WaveNext
	default:
		return domain.WaveLater
	}
}

func (p Phase) Title() string {
	switch p {
	case PhaseA:
		return "Quick wins"
	case PhaseB:
		return "Transformation"
	default:
		return "Consolidation"
	}
}

func (p Phase) Subtitle() string {
	switch p {
	case PhaseA:
		return "Visible results with low effort in the first weeks"
	case PhaseB:
		return "High-impact programs that change how the business operates"
	default:
		return "Work that spilled over from the earlier phases"
	}
}

func (p Phase) next() (Phase, bool) {
	switch p {
	case PhaseA:
		return PhaseB, true
	case PhaseB:
		return PhaseC, true
	default:
		return "", false
	}
}

// TargetPhase maps a quadrant to its first-choice phase. Foundation and maintenance
// items have no target and never enter the roadmap.
func TargetPhase(q Quadrant) (Phase, bool) {
	switch q {
	case QuickWin:
		return PhaseA, true
	case Transformational:
		return PhaseB, true
	default:
		return "", false
	}
}

type PhaseBucket struct {
	Phase    Phase       `json:"phase"`
	Wave     string      `json:"wave"`
	Title    string      `json:"title"`
	Subtitle string      `json:"subtitle"`
	Items    []ItemScore `json:"items"`
}

type Roadmap struct {
	MaxPerPhase int           `json:"max_per_phase"`
	Phases      []PhaseBucket `json:"phases"`
	// Overflow holds items that targeted a phase but found every later phase full.
	Overflow []ItemScore `json:"overflow"`
}

// Included returns the allocated items in phase order, then insertion order.
func (r Roadmap) Included() []ItemScore {
	var out []ItemScore
	for _, b := range r.Phases {
		out = append(out, b.Items...)
	}
	return out
}

// ValidateCapacity checks maxPerPhase against the allowed range.
func ValidateCapacity(maxPerPhase int) error {
	if maxPerPhase < MinPerPhase || maxPerPhase > MaxPerPhase {
		return fmt.Errorf("%w: %d not in [%d,%d]", ErrCapacityRange, maxPerPhase, MinPerPhase, MaxPerPhase)
	}
	return nil
}

// Allocate walks items in the given (rank) order and places each one in its target
// phase, cascading to the next phase when full. Items with no room left are dropped
// into Overflow.
func Allocate(items []ItemScore, maxPerPhase int) (Roadmap, error) {
	if err := ValidateCapacity(maxPerPhase); err != nil {
		return Roadmap{}, err
	}
	phases := Phases()
	buckets := make(map[Phase]*PhaseBucket, len(phases))
	rm := Roadmap{MaxPerPhase: maxPerPhase, Phases: make([]PhaseBucket, len(phases))}
	for i, p := range phases {
		rm.Phases[i] = PhaseBucket{Phase: p, Wave: p.Wave(), Title: p.Title(), Subtitle: p.Subtitle(), Items: []ItemScore{}}
		buckets[p] = &rm.Phases[i]
	}
	for _, it := range items {
		phase, ok := TargetPhase(it.Quadrant)
		if !ok {
			continue
		}
		placed := false
		for {
			b := buckets[phase]
			if len(b.Items) < maxPerPhase {
				b.Items = append(b.Items, it)
				placed = true
				break
			}
			if phase, ok = phase.next(); !ok {
				break
			}
		}
		if !placed {
			rm.Overflow = append(rm.Overflow, it)
		}
	}
	return rm, nil
}
