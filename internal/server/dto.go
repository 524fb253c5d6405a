package server

import (
	"gapline/internal/domain"
	"gapline/internal/engine"
)

// Request payloads

type CreateAssessmentRequest struct {
	ID       string `json:"id,omitempty"`
	PackCode string `json:"pack_code"`
	Name     string `json:"name,omitempty"`
}

type PutResponsesRequest struct {
	Responses []domain.CriterionResponse `json:"responses"`
}

type OverrideRequest struct {
	ImpactScore int `json:"impact_score" minimum:"1" maximum:"5"`
	EffortScore int `json:"effort_score" minimum:"1" maximum:"5"`
}

type ActivateRequest struct {
	MaxPerPhase   int  `json:"max_per_phase,omitempty" minimum:"0" maximum:"6"`
	OnlyShortlist bool `json:"only_shortlist,omitempty"`
	UseOverrides  bool `json:"use_overrides,omitempty"`
}

type UpdateProgramRequest struct {
	Status      *string `json:"status,omitempty" enum:"planned,active,paused,blocked,done"`
	OwnerRole   *string `json:"owner_role,omitempty"`
	TargetDate  *string `json:"target_date,omitempty"`
	BlockerNote *string `json:"blocker_note,omitempty"`
}

type UpdateActionRequest struct {
	Status    *string `json:"status,omitempty" enum:"todo,doing,done"`
	Owner     *string `json:"owner,omitempty"`
	StartDate *string `json:"start_date,omitempty"`
	DueDate   *string `json:"due_date,omitempty"`
}

type ImpactValidationRequest struct {
	Validated bool   `json:"validated"`
	Notes     string `json:"notes,omitempty"`
}

// Response payloads

type PackImportResponse struct {
	Code     string `json:"code"`
	Criteria int    `json:"criteria"`
	Items    int    `json:"items"`
}

type ResponsesUpdated struct {
	AssessmentID string `json:"assessment_id"`
	Updated      int    `json:"updated"`
}

type AssessmentList struct {
	Items []domain.Assessment `json:"items"`
}

type TrackedActionList struct {
	Items []domain.TrackedAction `json:"items"`
}

type EventList struct {
	Items []domain.Event `json:"items"`
}

type ActionResult = engine.ActionUpdate
