package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"gapline/internal/app"
	"gapline/internal/catalog"
	"gapline/internal/domain"
	"gapline/internal/engine"
	"gapline/internal/logging"
	"gapline/internal/server"
	"gapline/internal/sheets"
)

var logger = zap.NewNop()

var rootCmd = &cobra.Command{
	Use:   "gl",
	Short: "Gapline CLI",
	Long: `Gapline turns a maturity assessment into an execution roadmap.
- Packs: ordered criteria plus the program and action catalog linked to them (gl pack import).
- Assessments: one answered questionnaire against a pack; each criterion gets a current level,
  a target level and an importance.
- Need: gap x importance per criterion, banded high/medium/low.
- Ranking: programs (or actions) scored by weighted need, impact and effort, then badged
  TOP/MEDIA/BAJA and placed in an impact/effort quadrant.
- Roadmap: quick wins go to phase A (now) and transformational work to phase B (next).
  Phase C (later) only takes what overflows A or B under --max-per-phase.
  Foundation and maintenance items are left out of the roadmap.
- Activation: persists the roadmap as program instances with a default action template.
- Tracking: action status, owners, dates and impact validation, with KPIs on unlocked need.
- Event log: every write, view with 'gl log tail'.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if err := godotenv.Load(filepath.Join(workspace, ".env")); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("load .env: %w", err)
		}
		l, err := logging.New(viper.GetString("log-level"), viper.GetBool("verbose"))
		if err != nil {
			return err
		}
		logger = l
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
	SilenceUsage: true,
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("GAPLINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "operator recorded on writes")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "debug logging")
	rootCmd.PersistentFlags().String("log-level", "warn", "log level (debug, info, warn, error)")
	for _, name := range []string{"workspace", "json", "actor-id", "verbose", "log-level"} {
		_ = viper.BindPFlag(name, rootCmd.PersistentFlags().Lookup(name))
	}
}

func registerCommands() {
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(packCmd())
	rootCmd.AddCommand(assessmentCmd())
	rootCmd.AddCommand(responsesCmd())
	rootCmd.AddCommand(overrideCmd())
	rootCmd.AddCommand(criteriaCmd())
	rootCmd.AddCommand(rankCmd())
	rootCmd.AddCommand(roadmapCmd())
	rootCmd.AddCommand(activateCmd())
	rootCmd.AddCommand(programCmd())
	rootCmd.AddCommand(actionCmd())
	rootCmd.AddCommand(overviewCmd())
	rootCmd.AddCommand(trackedCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(serveCmd())
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Workspace configuration (gapline.yml)",
		Long:  "Scoring weights, need banding shares, quadrant thresholds per profile, phase capacity and the action template seeded on activation.",
	}
	cfg.AddCommand(configInitCmd())
	cfg.AddCommand(configShowCmd())
	cfg.AddCommand(configValidateCmd())
	return cfg
}

func configInitCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default gapline.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := app.InitConfig(viper.GetString("workspace"), force)
			if err != nil {
				return err
			}
			fmt.Printf("Wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}

func configShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the effective config",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return printJSONOrTable(e.Config)
			})
		},
	}
}

func configValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate gapline.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			err := withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.Config.Validate()
			})
			if viper.GetBool("json") {
				return printJSON(map[string]any{"ok": err == nil, "error": fmt.Sprint(err)})
			}
			if err != nil {
				return err
			}
			fmt.Println("config OK")
			return nil
		},
	}
}

func packCmd() *cobra.Command {
	pack := &cobra.Command{Use: "pack", Short: "Manage assessment packs"}
	pack.AddCommand(packImportCmd())
	pack.AddCommand(packShowCmd())
	return pack
}

func packImportCmd() *cobra.Command {
	var filePath string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import a pack and its catalog from YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			pack, items, err := catalog.Load(filePath)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if err := e.ImportPack(ctx, pack, items); err != nil {
					return err
				}
				out := map[string]any{"code": pack.Code, "criteria": len(pack.Criteria), "items": len(items)}
				if viper.GetBool("json") {
					return printJSON(out)
				}
				fmt.Printf("Imported pack %s: %d criteria, %d items\n", pack.Code, len(pack.Criteria), len(items))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&filePath, "file", "", "path to pack YAML")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func packShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <code>",
		Short: "Show a pack's criteria",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				pack, err := e.Pack(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(pack)
				}
				fmt.Printf("Pack %s %s\n", pack.Code, pack.Title)
				tw := newTable()
				tw.AppendHeader(table.Row{"#", "Code", "Title"})
				for _, c := range pack.Criteria {
					tw.AppendRow(table.Row{c.Position, c.Code, c.Title})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func assessmentCmd() *cobra.Command {
	a := &cobra.Command{Use: "assessment", Short: "Manage assessments"}
	a.AddCommand(assessmentCreateCmd())
	a.AddCommand(assessmentListCmd())
	return a
}

func assessmentCreateCmd() *cobra.Command {
	var id, packCode, name string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an assessment bound to a pack",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := e.CreateAssessment(ctx, id, packCode, name)
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "assessment id (generated when empty)")
	cmd.Flags().StringVar(&packCode, "pack", "", "pack code")
	cmd.Flags().StringVar(&name, "name", "", "display name")
	_ = cmd.MarkFlagRequired("pack")
	return cmd
}

func assessmentListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List assessments",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Assessments(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"ID", "Pack", "Name", "Created"})
				for _, a := range items {
					tw.AppendRow(table.Row{a.ID, a.PackCode, a.Name, a.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func responsesCmd() *cobra.Command {
	r := &cobra.Command{
		Use:   "responses",
		Short: "Record assessment answers",
		Long:  "Each criterion takes a current level, a target level and an importance, all 1-5. Blank means not answered.",
	}
	r.AddCommand(responsesImportCmd())
	r.AddCommand(responsesSetCmd())
	return r
}

func responsesImportCmd() *cobra.Command {
	var filePath string
	cmd := &cobra.Command{
		Use:   "import <assessment-id>",
		Short: "Import answers from an .xlsx or .csv sheet",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(filePath)
			if err != nil {
				return err
			}
			defer f.Close()
			responses, err := sheets.ReadResponses(filePath, f)
			if err != nil {
				return fmt.Errorf("%s: %w", filePath, err)
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if err := e.SetResponses(ctx, args[0], responses); err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"assessment_id": args[0], "updated": len(responses)})
				}
				fmt.Printf("Recorded %d responses for %s\n", len(responses), args[0])
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&filePath, "file", "", "path to .xlsx or .csv sheet")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func responsesSetCmd() *cobra.Command {
	var code string
	var asIs, toBe, importance int
	cmd := &cobra.Command{
		Use:   "set <assessment-id>",
		Short: "Set the answer for one criterion",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r := domain.CriterionResponse{CriteriaCode: code}
			if cmd.Flags().Changed("as-is") {
				r.AsIsLevel = &asIs
			}
			if cmd.Flags().Changed("to-be") {
				r.ToBeLevel = &toBe
			}
			if cmd.Flags().Changed("importance") {
				r.Importance = &importance
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if err := e.SetResponses(ctx, args[0], []domain.CriterionResponse{r}); err != nil {
					return err
				}
				return printJSONOrTable(r)
			})
		},
	}
	cmd.Flags().StringVar(&code, "criterion", "", "criterion code")
	cmd.Flags().IntVar(&asIs, "as-is", 0, "current level 1-5")
	cmd.Flags().IntVar(&toBe, "to-be", 0, "target level 1-5")
	cmd.Flags().IntVar(&importance, "importance", 0, "importance 1-5")
	_ = cmd.MarkFlagRequired("criterion")
	return cmd
}

func overrideCmd() *cobra.Command {
	o := &cobra.Command{Use: "override", Short: "Per-assessment impact/effort overrides"}
	var itemID string
	var impact, effort int
	set := &cobra.Command{
		Use:   "set <assessment-id>",
		Short: "Override a catalog item's impact and effort",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ov := domain.Override{AssessmentID: args[0], ItemID: itemID, ImpactScore: impact, EffortScore: effort}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if err := e.SetOverride(ctx, ov); err != nil {
					return err
				}
				return printJSONOrTable(ov)
			})
		},
	}
	set.Flags().StringVar(&itemID, "item", "", "catalog item id")
	set.Flags().IntVar(&impact, "impact", 0, "impact score 1-5")
	set.Flags().IntVar(&effort, "effort", 0, "effort score 1-5")
	_ = set.MarkFlagRequired("item")
	_ = set.MarkFlagRequired("impact")
	_ = set.MarkFlagRequired("effort")
	o.AddCommand(set)
	return o
}

func logCmd() *cobra.Command {
	log := &cobra.Command{
		Use:   "log",
		Short: "Event log",
		Long:  "Every write leaves an event: activations, program and action updates, impact validations.",
	}
	log.AddCommand(logTailCmd())
	return log
}

func logTailCmd() *cobra.Command {
	var n int
	var assessmentID, evtType string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				events, err := e.RecentEvents(ctx, n, assessmentID, evtType)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(events)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"ID", "TS", "Type", "Entity", "Actor", "Payload"})
				for _, ev := range events {
					tw.AppendRow(table.Row{ev.ID, ev.TS, ev.Type, ev.EntityKind + ":" + ev.EntityID, ev.ActorID, ev.Payload})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&assessmentID, "assessment", "", "assessment filter")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	var allowActorHeader, requireOperator bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := app.Open(cmd.Context(), viper.GetString("workspace"), logger)
			if err != nil {
				return err
			}
			defer ws.Close()
			authCfg := server.AuthConfig{
				JWTSecret:        viper.GetString("jwt-secret"),
				AllowActorHeader: allowActorHeader,
				RequireOperator:  requireOperator,
			}
			if authCfg.JWTSecret == "" && !authCfg.AllowActorHeader && authCfg.RequireOperator {
				return fmt.Errorf("GAPLINE_JWT_SECRET or --allow-actor-header is required when operators are required")
			}
			handler, err := server.New(server.Config{Engine: ws.Engine, BasePath: basePath, Auth: authCfg, Logger: logger})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(shutdownCtx)
			}()
			logger.Info("serving", zap.String("addr", addr), zap.String("base_path", basePath))
			fmt.Printf("Serving Gapline API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)\n", addr, basePath, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	cmd.Flags().BoolVar(&allowActorHeader, "allow-actor-header", true, "accept the X-Actor-ID header as operator identity")
	cmd.Flags().BoolVar(&requireOperator, "require-operator", false, "reject writes without an operator identity")
	return cmd
}

// --- helpers ---

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ws, err := app.Open(ctx, viper.GetString("workspace"), logger)
	if err != nil {
		return err
	}
	defer ws.Close()
	return fn(ctx, ws.Engine)
}

func newTable() table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	return tw
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func optionalString(cmd *cobra.Command, name, value string) *string {
	if !cmd.Flags().Changed(name) {
		return nil
	}
	return &value
}
