package domain

type Assessment struct {
	ID        string `json:"id"`
	PackCode  string `json:"pack_code"`
	Name      string `json:"name,omitempty"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type Pack struct {
	Code     string          `json:"code"`
	Title    string          `json:"title,omitempty"`
	Criteria []PackCriterion `json:"criteria"`
}

type PackCriterion struct {
	Code     string `json:"code"`
	Title    string `json:"title,omitempty"`
	Position int    `json:"position"`
}

// CodeList returns the pack's criteria codes in pack order.
func (p Pack) CodeList() []string {
	codes := make([]string, 0, len(p.Criteria))
	for _, c := range p.Criteria {
		codes = append(codes, c.Code)
	}
	return codes
}

// CriterionResponse is one answered criterion. Nil levels mean "not answered yet".
type CriterionResponse struct {
	CriteriaCode string `json:"criteria_code"`
	AsIsLevel    *int   `json:"as_is_level,omitempty" minimum:"1" maximum:"5"`
	ToBeLevel    *int   `json:"to_be_level,omitempty" minimum:"1" maximum:"5"`
	Importance   *int   `json:"importance,omitempty" minimum:"1" maximum:"5"`
}

// Gap reports to_be - as_is and whether the response is complete.
func (r CriterionResponse) Gap() (int, bool) {
	if r.AsIsLevel == nil || r.ToBeLevel == nil || r.Importance == nil {
		return 0, false
	}
	return *r.ToBeLevel - *r.AsIsLevel, true
}

const (
	KindProgram = "program"
	KindAction  = "action"
)

type CriterionLink struct {
	CriteriaCode string  `json:"criteria_code" yaml:"criteria_code"`
	MapWeight    float64 `json:"map_weight" yaml:"map_weight"`
	PackWeight   float64 `json:"pack_weight" yaml:"pack_weight"`
}

type CatalogItem struct {
	ID             string          `json:"id"`
	PackCode       string          `json:"pack_code"`
	Kind           string          `json:"kind" enum:"program,action"`
	Code           string          `json:"code"`
	Title          string          `json:"title"`
	LinkedCriteria []CriterionLink `json:"linked_criteria"`
	ImpactScore    int             `json:"impact_score" minimum:"1" maximum:"5"`
	EffortScore    int             `json:"effort_score" minimum:"1" maximum:"5"`
	Shortlisted    bool            `json:"shortlisted"`
}

type Override struct {
	AssessmentID string `json:"assessment_id"`
	ItemID       string `json:"item_id"`
	ImpactScore  int    `json:"impact_score"`
	EffortScore  int    `json:"effort_score"`
}

const (
	WaveNow   = "now"
	WaveNext  = "next"
	WaveLater = "later"
)

const (
	ProgramPlanned = "planned"
	ProgramActive  = "active"
	ProgramPaused  = "paused"
	ProgramBlocked = "blocked"
	ProgramDone    = "done"
)

const (
	ActionTodo  = "todo"
	ActionDoing = "doing"
	ActionDone  = "done"
)

// ValidProgramStatus reports whether s is a program instance status.
func ValidProgramStatus(s string) bool {
	switch s {
	case ProgramPlanned, ProgramActive, ProgramPaused, ProgramBlocked, ProgramDone:
		return true
	}
	return false
}

// ValidActionStatus reports whether s is an action instance status.
func ValidActionStatus(s string) bool {
	switch s {
	case ActionTodo, ActionDoing, ActionDone:
		return true
	}
	return false
}

type ProgramInstance struct {
	ID           string  `json:"id"`
	AssessmentID string  `json:"assessment_id"`
	ProgramID    string  `json:"program_id"`
	Code         string  `json:"code"`
	Title        string  `json:"title"`
	Rank         int     `json:"rank"`
	ImpactScore  int     `json:"impact_score"`
	EffortScore  int     `json:"effort_score"`
	WeightedNeed float64 `json:"weighted_need"`
	Priority     string  `json:"priority,omitempty" enum:"TOP,MEDIA,BAJA"`
	Wave         string  `json:"wave" enum:"now,next,later"`
	Status       string  `json:"status" enum:"planned,active,paused,blocked,done"`
	OwnerRole    string  `json:"owner_role,omitempty"`
	TargetDate   string  `json:"target_date,omitempty"`
	BlockerNote  string  `json:"blocker_note,omitempty"`
	ProgressPct  int     `json:"progress_pct"`
	CreatedAt    string  `json:"created_at" format:"date-time"`
	UpdatedAt    string  `json:"updated_at" format:"date-time"`
}

type ActionInstance struct {
	ID                    string  `json:"id"`
	ProgramInstanceID     string  `json:"program_instance_id"`
	Title                 string  `json:"title"`
	Status                string  `json:"status" enum:"todo,doing,done"`
	Position              int     `json:"position"`
	Owner                 string  `json:"owner,omitempty"`
	StartDate             string  `json:"start_date,omitempty"`
	DueDate               string  `json:"due_date,omitempty"`
	WeightedNeed          float64 `json:"weighted_need"`
	ImpactValidated       bool    `json:"impact_validated"`
	ImpactValidatedAt     string  `json:"impact_validated_at,omitempty" format:"date-time"`
	ImpactValidatedBy     string  `json:"impact_validated_by,omitempty"`
	ImpactValidationNotes string  `json:"impact_validation_notes,omitempty"`
	UpdatedAt             string  `json:"updated_at" format:"date-time"`
}

// TrackedAction is an action joined with the program instance that owns it.
type TrackedAction struct {
	ActionInstance
	ProgramCode     string `json:"program_code"`
	ProgramTitle    string `json:"program_title"`
	ProgramRank     int    `json:"program_rank"`
	ProgramWave     string `json:"program_wave"`
	ProgramPriority string `json:"program_priority,omitempty"`
}

type Event struct {
	ID           int64  `json:"id"`
	TS           string `json:"ts" format:"date-time"`
	Type         string `json:"type"`
	AssessmentID string `json:"assessment_id,omitempty"`
	EntityKind   string `json:"entity_kind"`
	EntityID     string `json:"entity_id,omitempty"`
	ActorID      string `json:"actor_id"`
	Payload      string `json:"payload_json"`
}
