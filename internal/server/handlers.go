package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"gapline/internal/catalog"
	"gapline/internal/domain"
	"gapline/internal/engine"
)

var commonErrors = []int{
	http.StatusBadRequest,
	http.StatusNotFound,
	http.StatusBadGateway,
	http.StatusInternalServerError,
}

func registerPacks(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "import-pack",
		Method:      http.MethodPut,
		Path:        "/packs",
		Summary:     "Import or replace a pack with its catalog",
		Errors:      commonErrors,
	}, func(ctx context.Context, input *struct {
		Body catalog.File
	}) (*struct {
		Body PackImportResponse `json:"body"`
	}, error) {
		pack, items, err := input.Body.Build()
		if err != nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", err.Error(), nil)
		}
		if err := e.ImportPack(ctx, pack, items); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body PackImportResponse `json:"body"`
		}{Body: PackImportResponse{Code: pack.Code, Criteria: len(pack.Criteria), Items: len(items)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-pack",
		Method:      http.MethodGet,
		Path:        "/packs/{code}",
		Summary:     "Get a pack's criteria",
		Errors:      commonErrors,
	}, func(ctx context.Context, input *struct {
		Code string `path:"code"`
	}) (*struct {
		Body domain.Pack `json:"body"`
	}, error) {
		pack, err := e.Pack(ctx, input.Code)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Pack `json:"body"`
		}{Body: pack}, nil
	})
}

func registerAssessments(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-assessment",
		Method:        http.MethodPost,
		Path:          "/assessments",
		Summary:       "Create an assessment bound to a pack",
		DefaultStatus: http.StatusCreated,
		Errors:        append([]int{http.StatusConflict}, commonErrors...),
	}, func(ctx context.Context, input *struct {
		Body CreateAssessmentRequest
	}) (*struct {
		Body domain.Assessment `json:"body"`
	}, error) {
		a, err := e.CreateAssessment(ctx, input.Body.ID, input.Body.PackCode, input.Body.Name)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Assessment `json:"body"`
		}{Body: a}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-assessments",
		Method:      http.MethodGet,
		Path:        "/assessments",
		Summary:     "List assessments",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body AssessmentList `json:"body"`
	}, error) {
		items, err := e.Assessments(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body AssessmentList `json:"body"`
		}{Body: AssessmentList{Items: items}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "put-responses",
		Method:      http.MethodPut,
		Path:        "/assessments/{assessment_id}/responses",
		Summary:     "Upsert criterion responses",
		Errors:      commonErrors,
	}, func(ctx context.Context, input *struct {
		AssessmentID string `path:"assessment_id"`
		Body         PutResponsesRequest
	}) (*struct {
		Body ResponsesUpdated `json:"body"`
	}, error) {
		if err := e.SetResponses(ctx, input.AssessmentID, input.Body.Responses); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ResponsesUpdated `json:"body"`
		}{Body: ResponsesUpdated{AssessmentID: input.AssessmentID, Updated: len(input.Body.Responses)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "put-override",
		Method:      http.MethodPut,
		Path:        "/assessments/{assessment_id}/overrides/{item_id}",
		Summary:     "Override an item's impact and effort for one assessment",
		Errors:      commonErrors,
	}, func(ctx context.Context, input *struct {
		AssessmentID string `path:"assessment_id"`
		ItemID       string `path:"item_id"`
		Body         OverrideRequest
	}) (*struct {
		Body domain.Override `json:"body"`
	}, error) {
		o := domain.Override{
			AssessmentID: input.AssessmentID,
			ItemID:       input.ItemID,
			ImpactScore:  input.Body.ImpactScore,
			EffortScore:  input.Body.EffortScore,
		}
		if err := e.SetOverride(ctx, o); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Override `json:"body"`
		}{Body: o}, nil
	})
}

func registerPrioritization(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "get-criteria",
		Method:      http.MethodGet,
		Path:        "/assessments/{assessment_id}/criteria",
		Summary:     "Scored criteria with need bands",
		Errors:      commonErrors,
	}, func(ctx context.Context, input *struct {
		AssessmentID string `path:"assessment_id"`
	}) (*struct {
		Body engine.CriteriaView `json:"body"`
	}, error) {
		view, err := e.Criteria(ctx, input.AssessmentID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.CriteriaView `json:"body"`
		}{Body: view}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-ranking",
		Method:      http.MethodGet,
		Path:        "/assessments/{assessment_id}/ranking",
		Summary:     "Ranked programs or actions",
		Errors:      commonErrors,
	}, func(ctx context.Context, input *struct {
		AssessmentID  string `path:"assessment_id"`
		Kind          string `query:"kind" doc:"program (default) or action"`
		Profile       string `query:"profile" doc:"roadmap (default) or matrix thresholds"`
		OnlyShortlist bool   `query:"only_shortlist"`
		UseOverrides  bool   `query:"use_overrides"`
	}) (*struct {
		Body engine.Ranking `json:"body"`
	}, error) {
		ranking, err := e.Rank(ctx, engine.RankOptions{
			AssessmentID:  input.AssessmentID,
			Kind:          input.Kind,
			Profile:       input.Profile,
			OnlyShortlist: input.OnlyShortlist,
			UseOverrides:  input.UseOverrides,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.Ranking `json:"body"`
		}{Body: ranking}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-roadmap",
		Method:      http.MethodGet,
		Path:        "/assessments/{assessment_id}/roadmap",
		Summary:     "Preview the phase allocation",
		Errors:      commonErrors,
	}, func(ctx context.Context, input *struct {
		AssessmentID  string `path:"assessment_id"`
		MaxPerPhase   int    `query:"max_per_phase"`
		OnlyShortlist bool   `query:"only_shortlist"`
		UseOverrides  bool   `query:"use_overrides"`
	}) (*struct {
		Body engine.RoadmapView `json:"body"`
	}, error) {
		view, err := e.Roadmap(ctx, engine.RoadmapOptions{
			AssessmentID:  input.AssessmentID,
			MaxPerPhase:   input.MaxPerPhase,
			OnlyShortlist: input.OnlyShortlist,
			UseOverrides:  input.UseOverrides,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.RoadmapView `json:"body"`
		}{Body: view}, nil
	})
}

func registerTracking(api huma.API, e engine.Engine, authCfg AuthConfig) {
	huma.Register(api, huma.Operation{
		OperationID: "activate-roadmap",
		Method:      http.MethodPost,
		Path:        "/assessments/{assessment_id}/activation",
		Summary:     "Persist the roadmap as program instances",
		Errors:      append([]int{http.StatusUnauthorized}, commonErrors...),
	}, func(ctx context.Context, input *struct {
		AssessmentID string `path:"assessment_id"`
		Body         ActivateRequest `required:"false"`
	}) (*struct {
		Body engine.ActivationResult `json:"body"`
	}, error) {
		actor, aerr := operatorFromContext(ctx, authCfg)
		if aerr != nil {
			return nil, aerr
		}
		res, err := e.Activate(ctx, engine.ActivateOptions{
			RoadmapOptions: engine.RoadmapOptions{
				AssessmentID:  input.AssessmentID,
				MaxPerPhase:   input.Body.MaxPerPhase,
				OnlyShortlist: input.Body.OnlyShortlist,
				UseOverrides:  input.Body.UseOverrides,
			},
			ActorID: actor,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.ActivationResult `json:"body"`
		}{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-overview",
		Method:      http.MethodGet,
		Path:        "/assessments/{assessment_id}/overview",
		Summary:     "Execution KPIs and program instances",
		Errors:      commonErrors,
	}, func(ctx context.Context, input *struct {
		AssessmentID string `path:"assessment_id"`
		OnlyTop      bool   `query:"only_top"`
	}) (*struct {
		Body engine.Overview `json:"body"`
	}, error) {
		ov, err := e.Overview(ctx, input.AssessmentID, input.OnlyTop)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.Overview `json:"body"`
		}{Body: ov}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-tracked-actions",
		Method:      http.MethodGet,
		Path:        "/assessments/{assessment_id}/actions",
		Summary:     "Actions joined with their programs in rank order",
		Errors:      commonErrors,
	}, func(ctx context.Context, input *struct {
		AssessmentID      string `path:"assessment_id"`
		OnlyTop           bool   `query:"only_top"`
		ProgramInstanceID string `query:"program_id"`
		Status            string `query:"status"`
	}) (*struct {
		Body TrackedActionList `json:"body"`
	}, error) {
		items, err := e.ListTracked(ctx, engine.TrackedOptions{
			AssessmentID:      input.AssessmentID,
			ProgramInstanceID: input.ProgramInstanceID,
			Status:            input.Status,
			OnlyTop:           input.OnlyTop,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TrackedActionList `json:"body"`
		}{Body: TrackedActionList{Items: items}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-program",
		Method:      http.MethodPatch,
		Path:        "/programs/{program_id}",
		Summary:     "Update a program instance",
		Errors:      append([]int{http.StatusUnauthorized}, commonErrors...),
	}, func(ctx context.Context, input *struct {
		ProgramID string `path:"program_id"`
		Body      UpdateProgramRequest
	}) (*struct {
		Body domain.ProgramInstance `json:"body"`
	}, error) {
		actor, aerr := operatorFromContext(ctx, authCfg)
		if aerr != nil {
			return nil, aerr
		}
		p, err := e.UpdateProgram(ctx, engine.UpdateProgramOptions{
			ProgramInstanceID: input.ProgramID,
			Status:            input.Body.Status,
			OwnerRole:         input.Body.OwnerRole,
			TargetDate:        input.Body.TargetDate,
			BlockerNote:       input.Body.BlockerNote,
			ActorID:           actor,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.ProgramInstance `json:"body"`
		}{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-action",
		Method:      http.MethodPatch,
		Path:        "/actions/{action_id}",
		Summary:     "Update an action's status, owner or dates",
		Errors:      append([]int{http.StatusUnauthorized}, commonErrors...),
	}, func(ctx context.Context, input *struct {
		ActionID string `path:"action_id"`
		Body     UpdateActionRequest
	}) (*struct {
		Body ActionResult `json:"body"`
	}, error) {
		actor, aerr := operatorFromContext(ctx, authCfg)
		if aerr != nil {
			return nil, aerr
		}
		res, err := e.UpdateAction(ctx, engine.UpdateActionOptions{
			ActionID:  input.ActionID,
			Status:    input.Body.Status,
			Owner:     input.Body.Owner,
			StartDate: input.Body.StartDate,
			DueDate:   input.Body.DueDate,
			ActorID:   actor,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ActionResult `json:"body"`
		}{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-impact-validation",
		Method:      http.MethodPut,
		Path:        "/actions/{action_id}/impact-validation",
		Summary:     "Validate or revoke an action's impact",
		Errors:      append([]int{http.StatusUnauthorized}, commonErrors...),
	}, func(ctx context.Context, input *struct {
		ActionID string `path:"action_id"`
		Body     ImpactValidationRequest
	}) (*struct {
		Body ActionResult `json:"body"`
	}, error) {
		actor, aerr := operatorFromContext(ctx, authCfg)
		if aerr != nil {
			return nil, aerr
		}
		res, err := e.SetImpactValidation(ctx, engine.ImpactValidationOptions{
			ActionID:  input.ActionID,
			Validated: input.Body.Validated,
			Notes:     input.Body.Notes,
			ActorID:   actor,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ActionResult `json:"body"`
		}{Body: res}, nil
	})
}

func registerEvents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "List recent events",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		AssessmentID string `query:"assessment_id"`
		Type         string `query:"type"`
		Limit        int    `query:"limit" default:"50" minimum:"1" maximum:"500"`
	}) (*struct {
		Body EventList `json:"body"`
	}, error) {
		items, err := e.RecentEvents(ctx, input.Limit, input.AssessmentID, input.Type)
		if err != nil {
			return nil, handleError(err)
		}
		if items == nil {
			items = []domain.Event{}
		}
		return &struct {
			Body EventList `json:"body"`
		}{Body: EventList{Items: items}}, nil
	})
}
