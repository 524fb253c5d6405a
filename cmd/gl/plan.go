package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"gapline/internal/engine"
	"gapline/internal/prioritize"
	"gapline/internal/sheets"
)

func criteriaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "criteria <assessment-id>",
		Short: "Show criteria ranked by weighted need",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				view, err := e.Criteria(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(view)
				}
				printDisclaimer(view.UsingFallback, view.Disclaimer)
				tw := newTable()
				tw.AppendHeader(table.Row{"Rank", "Criterion", "Gap", "Importance", "Need", "Band"})
				for _, c := range view.Criteria {
					tw.AppendRow(table.Row{c.Rank, c.Code, c.Gap, c.Importance, c.WeightedNeed, c.Band})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func rankCmd() *cobra.Command {
	var opts engine.RankOptions
	cmd := &cobra.Command{
		Use:   "rank <assessment-id>",
		Short: "Rank programs or actions by need, impact and effort",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.AssessmentID = args[0]
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				ranking, err := e.Rank(ctx, opts)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(ranking)
				}
				printDisclaimer(ranking.UsingFallback, ranking.Disclaimer)
				printItems(ranking.Items)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&opts.Kind, "kind", "program", "program or action")
	cmd.Flags().StringVar(&opts.Profile, "profile", "roadmap", "quadrant thresholds: roadmap or matrix")
	cmd.Flags().BoolVar(&opts.OnlyShortlist, "only-shortlist", false, "rank shortlisted items only")
	cmd.Flags().BoolVar(&opts.UseOverrides, "use-overrides", false, "apply per-assessment impact/effort overrides")
	return cmd
}

func roadmapCmd() *cobra.Command {
	var opts engine.RoadmapOptions
	var xlsxPath string
	cmd := &cobra.Command{
		Use:   "roadmap <assessment-id>",
		Short: "Preview the phase allocation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.AssessmentID = args[0]
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				view, err := e.Roadmap(ctx, opts)
				if err != nil {
					return err
				}
				if xlsxPath != "" {
					if err := exportRoadmap(xlsxPath, view.Roadmap); err != nil {
						return err
					}
				}
				if viper.GetBool("json") {
					return printJSON(view)
				}
				printDisclaimer(view.UsingFallback, view.Disclaimer)
				printRoadmap(view.Roadmap)
				if xlsxPath != "" {
					fmt.Printf("Exported roadmap to %s\n", xlsxPath)
				}
				return nil
			})
		},
	}
	addRoadmapFlags(cmd, &opts)
	cmd.Flags().StringVar(&xlsxPath, "xlsx", "", "also write the roadmap to this .xlsx file")
	return cmd
}

func activateCmd() *cobra.Command {
	var opts engine.ActivateOptions
	cmd := &cobra.Command{
		Use:   "activate <assessment-id>",
		Short: "Persist the roadmap as tracked programs and actions",
		Long:  "Creates a program instance for every program placed in a phase and seeds its default actions. Re-running refreshes rank, scores and wave without touching status, owners, dates or existing actions.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.AssessmentID = args[0]
			opts.ActorID = viper.GetString("actor-id")
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				res, err := e.Activate(ctx, opts)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(res)
				}
				printDisclaimer(res.UsingFallback, res.Disclaimer)
				fmt.Printf("Activated %s: %d created, %d refreshed, %d actions seeded (phases %s)\n",
					res.AssessmentID, res.Created, res.Refreshed, res.ActionsSeeded, strings.Join(res.ActivatedPhases, ","))
				printPrograms(res.Programs)
				if len(res.Overflow) > 0 {
					fmt.Printf("%d programs did not fit with max %d per phase:\n", len(res.Overflow), res.MaxPerPhase)
					printItems(res.Overflow)
				}
				return nil
			})
		},
	}
	addRoadmapFlags(cmd, &opts.RoadmapOptions)
	return cmd
}

func addRoadmapFlags(cmd *cobra.Command, opts *engine.RoadmapOptions) {
	cmd.Flags().IntVar(&opts.MaxPerPhase, "max-per-phase", 0, "programs per phase, 2-6 (0 uses gapline.yml)")
	cmd.Flags().BoolVar(&opts.OnlyShortlist, "only-shortlist", false, "consider shortlisted programs only")
	cmd.Flags().BoolVar(&opts.UseOverrides, "use-overrides", false, "apply per-assessment impact/effort overrides")
}

func exportRoadmap(path string, rm prioritize.Roadmap) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := sheets.WriteRoadmap(f, rm); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}

func printDisclaimer(fallback bool, disclaimer string) {
	if fallback {
		fmt.Fprintf(os.Stderr, "note: %s\n", disclaimer)
	}
}

func printItems(items []prioritize.ItemScore) {
	tw := newTable()
	tw.AppendHeader(table.Row{"Rank", "Code", "Title", "Need", "Impact", "Effort", "Score", "Quadrant", "Priority"})
	for _, it := range items {
		tw.AppendRow(table.Row{it.Rank, it.Code, it.Title, fmt.Sprintf("%.1f", it.WeightedNeed), it.ImpactScore, it.EffortScore,
			fmt.Sprintf("%.1f", it.ItemScore), it.Quadrant.Label(), it.Priority})
	}
	tw.Render()
}

func printRoadmap(rm prioritize.Roadmap) {
	for _, b := range rm.Phases {
		fmt.Printf("Phase %s - %s (%s): %s\n", b.Phase, b.Title, b.Wave, b.Subtitle)
		if len(b.Items) == 0 {
			fmt.Println("  (empty)")
			continue
		}
		printItems(b.Items)
	}
	if len(rm.Overflow) > 0 {
		fmt.Printf("Overflow (max %d per phase):\n", rm.MaxPerPhase)
		printItems(rm.Overflow)
	}
}
