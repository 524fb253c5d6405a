package main

import (
	"context"
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"gapline/internal/domain"
	"gapline/internal/engine"
)

func programCmd() *cobra.Command {
	p := &cobra.Command{Use: "program", Short: "Manage activated programs"}
	var status, ownerRole, targetDate, blockerNote string
	update := &cobra.Command{
		Use:   "update <program-instance-id>",
		Short: "Update status, owner role, target date or blocker note",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := engine.UpdateProgramOptions{
				ProgramInstanceID: args[0],
				Status:            optionalString(cmd, "status", status),
				OwnerRole:         optionalString(cmd, "owner-role", ownerRole),
				TargetDate:        optionalString(cmd, "target-date", targetDate),
				BlockerNote:       optionalString(cmd, "blocker-note", blockerNote),
				ActorID:           viper.GetString("actor-id"),
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				row, err := e.UpdateProgram(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(row)
			})
		},
	}
	update.Flags().StringVar(&status, "status", "", "planned, active, paused, blocked or done")
	update.Flags().StringVar(&ownerRole, "owner-role", "", "owning role (empty clears)")
	update.Flags().StringVar(&targetDate, "target-date", "", "YYYY-MM-DD (empty clears)")
	update.Flags().StringVar(&blockerNote, "blocker-note", "", "blocker note (empty clears)")
	p.AddCommand(update)
	return p
}

func actionCmd() *cobra.Command {
	a := &cobra.Command{Use: "action", Short: "Track program actions"}
	a.AddCommand(actionUpdateCmd())
	a.AddCommand(actionValidationCmd("validate", true))
	a.AddCommand(actionValidationCmd("revoke", false))
	return a
}

func actionUpdateCmd() *cobra.Command {
	var status, owner, startDate, dueDate string
	cmd := &cobra.Command{
		Use:   "update <action-id>",
		Short: "Update status, owner or dates",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := engine.UpdateActionOptions{
				ActionID:  args[0],
				Status:    optionalString(cmd, "status", status),
				Owner:     optionalString(cmd, "owner", owner),
				StartDate: optionalString(cmd, "start-date", startDate),
				DueDate:   optionalString(cmd, "due-date", dueDate),
				ActorID:   viper.GetString("actor-id"),
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				res, err := e.UpdateAction(ctx, opts)
				if err != nil {
					return err
				}
				return printActionUpdate(res)
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "todo, doing or done")
	cmd.Flags().StringVar(&owner, "owner", "", "owner (empty clears)")
	cmd.Flags().StringVar(&startDate, "start-date", "", "YYYY-MM-DD (empty clears)")
	cmd.Flags().StringVar(&dueDate, "due-date", "", "YYYY-MM-DD (empty clears)")
	return cmd
}

func actionValidationCmd(use string, validated bool) *cobra.Command {
	var notes string
	short := "Confirm an action delivered its expected impact"
	if !validated {
		short = "Revoke an impact validation (notes required)"
	}
	cmd := &cobra.Command{
		Use:   use + " <action-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := engine.ImpactValidationOptions{
				ActionID:  args[0],
				Validated: validated,
				Notes:     notes,
				ActorID:   viper.GetString("actor-id"),
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				res, err := e.SetImpactValidation(ctx, opts)
				if err != nil {
					return err
				}
				return printActionUpdate(res)
			})
		},
	}
	cmd.Flags().StringVar(&notes, "notes", "", "evidence or reason")
	return cmd
}

func overviewCmd() *cobra.Command {
	var onlyTop bool
	cmd := &cobra.Command{
		Use:   "overview <assessment-id>",
		Short: "Execution KPIs and activated programs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				ov, err := e.Overview(ctx, args[0], onlyTop)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(ov)
				}
				printKPIs(ov.KPIs)
				printPrograms(ov.Programs)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&onlyTop, "only-top", false, "TOP priority programs only")
	return cmd
}

func trackedCmd() *cobra.Command {
	var opts engine.TrackedOptions
	cmd := &cobra.Command{
		Use:   "tracked <assessment-id>",
		Short: "List actions with their programs in rank order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.AssessmentID = args[0]
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListTracked(ctx, opts)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"Program", "#", "Action", "Status", "Owner", "Due", "Need", "Validated", "ID"})
				for _, a := range items {
					tw.AppendRow(table.Row{a.ProgramCode, a.Position + 1, a.Title, a.Status, a.Owner, a.DueDate,
						fmt.Sprintf("%.2f", a.WeightedNeed), a.ImpactValidated, a.ID})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&opts.OnlyTop, "only-top", false, "TOP priority programs only")
	cmd.Flags().StringVar(&opts.ProgramInstanceID, "program", "", "program instance id")
	cmd.Flags().StringVar(&opts.Status, "status", "", "todo, doing or done")
	return cmd
}

func printActionUpdate(res engine.ActionUpdate) error {
	if viper.GetBool("json") {
		return printJSON(res)
	}
	a := res.Action
	fmt.Printf("Action %s [%s] %s\n", a.ID, a.Status, a.Title)
	if a.ImpactValidated {
		fmt.Printf("Impact validated by %s at %s\n", a.ImpactValidatedBy, a.ImpactValidatedAt)
	}
	fmt.Printf("Program progress: %d%%\n", res.ProgressPct)
	printKPIs(res.KPIs)
	return nil
}

func printKPIs(k engine.KPIs) {
	fmt.Printf("Actions: %d done / %d total, %d validated\n", k.ActionsDone, k.ActionsTotal, k.ActionsValidated)
	fmt.Printf("Need unlocked: %.1f of %.1f (%.1f%%)\n", k.NeedUnlocked, k.NeedTotal, k.NeedUnlockedPct)
}

func printPrograms(programs []domain.ProgramInstance) {
	tw := newTable()
	tw.AppendHeader(table.Row{"Rank", "Code", "Title", "Priority", "Wave", "Status", "Progress", "Owner", "Target", "ID"})
	for _, p := range programs {
		tw.AppendRow(table.Row{p.Rank, p.Code, p.Title, p.Priority, p.Wave, p.Status, fmt.Sprintf("%d%%", p.ProgressPct), p.OwnerRole, p.TargetDate, p.ID})
	}
	tw.Render()
}
