package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"controlline/internal/chain"
	"controlline/internal/config"
	"controlline/internal/db"
	"controlline/internal/domain"
	"controlline/internal/engine"
	"controlline/internal/migrate"
	"controlline/internal/scheduler"
	"controlline/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "cl",
	Short: "Controlline CLI",
	Long: `Controlline automates recurring bookkeeping control work.
Core concepts:
- Workspace: the .controlline directory with the SQLite database; controlline.yml holds client profiles, auto-step checklists and the scheduler interval.
- Calendar: each client profile has a rule set that produces the dated obligations (reports, payments, document requests) for a whole year.
- Ledger: generated events are appended once, keyed by deterministic ids; re-running a chain never duplicates them.
- Instances: one process instance per client, profile and month tracks the handling of that month's events, with an auto-seeded checklist.
- Tasks: work items derived from ledger events, overdue or planned depending on today's date.
- Chains: 'cl chain run' executes generate -> dispatch -> derive for a client and period, exactly once per period.
- Audit log: every mutation is recorded, view with 'cl log tail'.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
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
	viper.SetEnvPrefix("CONTROLLINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
}

func registerCommands() {
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(chainCmd())
	rootCmd.AddCommand(runsCmd())
	rootCmd.AddCommand(eventsCmd())
	rootCmd.AddCommand(instancesCmd())
	rootCmd.AddCommand(tasksCmd())
	rootCmd.AddCommand(templatesCmd())
	rootCmd.AddCommand(profilesCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(serveCmd())
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{Use: "config", Short: "Manage workspace config"}
	cfg.AddCommand(configInitCmd())
	cfg.AddCommand(configShowCmd())
	cfg.AddCommand(configValidateCmd())
	return cfg
}

func configInitCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default controlline.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists; use --force to overwrite", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Printf("Wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config")
	return cmd
}

func configShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the active config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			return printJSONOrIndent(cfg)
		},
	}
}

func configValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate controlline.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := config.Load(viper.GetString("workspace")); err != nil {
				return err
			}
			fmt.Println("config OK")
			return nil
		},
	}
}

func chainCmd() *cobra.Command {
	c := &cobra.Command{Use: "chain", Short: "Automation chains"}
	c.AddCommand(chainListCmd())
	c.AddCommand(chainRunCmd())
	return c
}

func chainListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered chains",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, cfg *config.Config) error {
				chains := chain.NewRegistry(cfg).List()
				if viper.GetBool("json") {
					return printJSON(chains)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"ID", "Kind", "Profile", "Description"})
				for _, c := range chains {
					tw.AppendRow(table.Row{c.ID, c.Kind, c.Profile, c.Description})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func chainRunCmd() *cobra.Command {
	var chainID, clientID, period, mode string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute a chain for a client and period",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, cfg *config.Config) error {
				x := chain.NewExecutor(e, chain.NewRegistry(cfg))
				run, err := x.Execute(ctx, chain.ExecuteOptions{
					ChainID:  chainID,
					ClientID: clientID,
					Period:   period,
					Mode:     mode,
					Trigger:  "manual",
					ActorID:  viper.GetString("actor-id"),
				})
				if err != nil {
					return err
				}
				return printJSONOrIndent(run)
			})
		},
	}
	cmd.Flags().StringVar(&chainID, "chain", "", "chain id")
	cmd.Flags().StringVar(&clientID, "client", "", "client id")
	cmd.Flags().StringVar(&period, "period", "", "period YYYY-MM")
	cmd.Flags().StringVar(&mode, "mode", "production", "execution mode")
	_ = cmd.MarkFlagRequired("chain")
	_ = cmd.MarkFlagRequired("client")
	_ = cmd.MarkFlagRequired("period")
	return cmd
}

func runsCmd() *cobra.Command {
	c := &cobra.Command{Use: "runs", Short: "Chain run history"}
	c.AddCommand(runsListCmd())
	c.AddCommand(runsShowCmd())
	return c
}

func runsListCmd() *cobra.Command {
	var chainID, clientID, period string
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, _ *config.Config) error {
				runs, err := e.Repo.ListRuns(ctx, chainID, clientID, period, limit)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(runs)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"ID", "Chain", "Client", "Period", "Status", "Events", "Steps", "Tasks", "Started"})
				for _, r := range runs {
					tw.AppendRow(table.Row{r.ID, r.ChainID, r.ClientID, r.Period, r.Status,
						r.EventsAppended, r.StepsGenerated, r.TasksGenerated, r.StartedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&chainID, "chain", "", "chain filter")
	cmd.Flags().StringVar(&clientID, "client", "", "client filter")
	cmd.Flags().StringVar(&period, "period", "", "period filter")
	cmd.Flags().IntVar(&limit, "limit", 0, "max rows")
	return cmd
}

func runsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, _ *config.Config) error {
				run, err := e.Repo.GetRun(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrIndent(run)
			})
		},
	}
}

func eventsCmd() *cobra.Command {
	c := &cobra.Command{Use: "events", Short: "Calendar event ledger"}
	c.AddCommand(eventsGenerateCmd())
	c.AddCommand(eventsListCmd())
	c.AddCommand(eventsShowCmd())
	c.AddCommand(eventsDispatchCmd())
	c.AddCommand(eventsSetStatusCmd())
	return c
}

func eventsGenerateCmd() *cobra.Command {
	var clientID, period string
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate calendar events into the ledger",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, _ *config.Config) error {
				res, err := e.GenerateEvents(ctx, engine.GenerateOptions{
					ClientID: clientID,
					Period:   period,
					DryRun:   dryRun,
					ActorID:  viper.GetString("actor-id"),
				})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"events": res.Events, "appended": len(res.Appended)})
				}
				renderEventTable(res.Events)
				fmt.Printf("%d generated, %d appended\n", len(res.Events), len(res.Appended))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&clientID, "client", "", "client id")
	cmd.Flags().StringVar(&period, "period", "", "restrict to period YYYY-MM")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "preview without writing")
	_ = cmd.MarkFlagRequired("client")
	return cmd
}

func eventsListCmd() *cobra.Command {
	var clientID, period, status string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List ledger events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, _ *config.Config) error {
				events, err := e.Repo.ListEvents(ctx, clientID, period, status)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(events)
				}
				renderEventTable(events)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&clientID, "client", "", "client filter")
	cmd.Flags().StringVar(&period, "period", "", "period filter")
	cmd.Flags().StringVar(&status, "status", "", "status filter")
	return cmd
}

func eventsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one event",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, _ *config.Config) error {
				ev, err := e.Repo.GetEvent(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrIndent(ev)
			})
		},
	}
}

func eventsDispatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dispatch <id>",
		Short: "Route a new event into its process instance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, _ *config.Config) error {
				inst, err := e.DispatchEvent(ctx, args[0], viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrIndent(inst)
			})
		},
	}
}

func eventsSetStatusCmd() *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "set-status <id>",
		Short: "Update an event's status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, _ *config.Config) error {
				ev, err := e.SetEventStatus(ctx, args[0], status, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrIndent(ev)
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "new, handled, error or completed")
	_ = cmd.MarkFlagRequired("status")
	return cmd
}

func instancesCmd() *cobra.Command {
	c := &cobra.Command{Use: "instances", Short: "Process instances"}
	c.AddCommand(instancesListCmd())
	c.AddCommand(instancesShowCmd())
	c.AddCommand(instancesAddStepCmd())
	c.AddCommand(instancesCompleteStepCmd())
	return c
}

func instancesListCmd() *cobra.Command {
	var clientID, period string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List process instances",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, _ *config.Config) error {
				insts, err := e.Instances(ctx, clientID, period)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(insts)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"ID", "Client", "Profile", "Period", "Status", "Computed", "Events", "Steps"})
				for _, inst := range insts {
					tw.AppendRow(table.Row{inst.ID, inst.ClientID, inst.ProfileCode, inst.Period,
						inst.Status, inst.ComputedStatus, len(inst.Events), stepSummary(inst.Steps)})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&clientID, "client", "", "client filter")
	cmd.Flags().StringVar(&period, "period", "", "period filter")
	return cmd
}

func instancesShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one instance with steps",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, _ *config.Config) error {
				inst, err := e.Instance(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrIndent(inst)
			})
		},
	}
}

func instancesAddStepCmd() *cobra.Command {
	var title string
	cmd := &cobra.Command{
		Use:   "add-step <instance-id>",
		Short: "Append a checklist step",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, _ *config.Config) error {
				st, err := e.AddStep(ctx, args[0], title, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrIndent(st)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "step title")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func instancesCompleteStepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "complete-step <instance-id> <step-id>",
		Short: "Complete a checklist step",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, _ *config.Config) error {
				inst, err := e.CompleteStep(ctx, args[0], args[1], viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrIndent(inst)
			})
		},
	}
}

func tasksCmd() *cobra.Command {
	c := &cobra.Command{Use: "tasks", Short: "Derived work items"}
	c.AddCommand(tasksListCmd())
	c.AddCommand(tasksDeriveCmd())
	return c
}

func tasksListCmd() *cobra.Command {
	var clientID, status string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, _ *config.Config) error {
				tasks, err := e.Repo.ListTasks(ctx, clientID, status)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(tasks)
				}
				renderTaskTable(tasks)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&clientID, "client", "", "client filter")
	cmd.Flags().StringVar(&status, "status", "", "status filter")
	return cmd
}

func tasksDeriveCmd() *cobra.Command {
	var clientID, period string
	var persist bool
	cmd := &cobra.Command{
		Use:   "derive",
		Short: "Derive tasks from ledger events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, _ *config.Config) error {
				tasks, created, err := e.DeriveTasks(ctx, engine.DeriveOptions{
					ClientID: clientID,
					Period:   period,
					Persist:  persist,
					ActorID:  viper.GetString("actor-id"),
				})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"tasks": tasks, "created": created})
				}
				renderTaskTable(tasks)
				if persist {
					fmt.Printf("%d derived, %d created\n", len(tasks), created)
				} else {
					fmt.Printf("%d derived (preview, use --persist to store)\n", len(tasks))
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&clientID, "client", "", "client filter")
	cmd.Flags().StringVar(&period, "period", "", "period filter")
	cmd.Flags().BoolVar(&persist, "persist", false, "store derived tasks")
	return cmd
}

func templatesCmd() *cobra.Command {
	var clientID string
	cmd := &cobra.Command{
		Use:   "templates",
		Short: "Event templates inferred from the ledger",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, _ *config.Config) error {
				templates, err := e.Templates(ctx, clientID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(templates)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"Code", "Label", "Category", "Default status"})
				for _, tpl := range templates {
					tw.AppendRow(table.Row{tpl.Code, tpl.Label, tpl.Category, tpl.DefaultStatus})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&clientID, "client", "", "client filter")
	return cmd
}

func profilesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "profiles",
		Short: "Configured client profiles",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(cfg.Clients.Catalog)
			}
			tw := newTable()
			tw.AppendHeader(table.Row{"Client", "Profile", "Description"})
			for id, p := range cfg.Clients.Catalog {
				tw.AppendRow(table.Row{id, p.Profile, p.Description})
			}
			tw.SortBy([]table.SortBy{{Name: "Client", Mode: table.Asc}})
			tw.Render()
			return nil
		},
	}
}

func logCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "log",
		Short: "Audit log",
		Long:  "The diary of everything that happened: generated calendars, dispatched events, step changes, derived tasks.",
	}
	c.AddCommand(logTailCmd())
	return c
}

func logTailCmd() *cobra.Command {
	var clientID string
	var limit int
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Show recent audit entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, _ *config.Config) error {
				entries, err := e.Repo.ListAuditEvents(ctx, clientID, limit)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(entries)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"TS", "Type", "Client", "Entity", "Actor", "Payload"})
				for _, ev := range entries {
					tw.AppendRow(table.Row{ev.TS, ev.Type, ev.ClientID, ev.EntityKind + "/" + ev.EntityID, ev.ActorID, ev.Payload})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&clientID, "client", "", "client filter")
	cmd.Flags().IntVar(&limit, "limit", 50, "max entries")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	var withScheduler bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			if _, err := db.EnsureWorkspace(workspace); err != nil {
				return err
			}
			cfg, err := config.Load(workspace)
			if err != nil {
				return err
			}
			conn, err := db.Open(db.Config{Workspace: workspace, Path: os.Getenv("CONTROLLINE_DB_PATH")})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			e := engine.New(conn, cfg)
			reg := chain.NewRegistry(cfg)
			x := chain.NewExecutor(e, reg)
			handler, err := server.New(server.Config{
				Engine:   e,
				Executor: x,
				Registry: reg,
				AppCfg:   cfg,
				BasePath: basePath,
				Auth:     server.AuthConfig{JWTSecret: os.Getenv("CONTROLLINE_JWT_SECRET")},
			})
			if err != nil {
				return err
			}

			if withScheduler {
				sched := scheduler.New(x, cfg)
				sched.Start()
				defer sched.Stop()
			}

			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving Controlline API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)\n", addr, basePath, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8787", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	cmd.Flags().BoolVar(&withScheduler, "with-scheduler", false, "run the periodic chain scheduler")
	return cmd
}

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine, *config.Config) error) error {
	workspace := viper.GetString("workspace")
	cfg, err := config.Load(workspace)
	if err != nil {
		return err
	}
	conn, err := db.Open(db.Config{Workspace: workspace, Path: os.Getenv("CONTROLLINE_DB_PATH")})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	return fn(ctx, engine.New(conn, cfg), cfg)
}

func newTable() table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	return tw
}

func renderEventTable(events []domain.ControlEvent) {
	tw := newTable()
	tw.AppendHeader(table.Row{"ID", "Date", "Title", "Category", "Status", "Depends on"})
	for _, ev := range events {
		tw.AppendRow(table.Row{ev.ID, ev.Date, ev.Title, ev.Category, ev.Status, strings.Join(ev.DependsOn, ",")})
	}
	tw.Render()
}

func renderTaskTable(tasks []domain.Task) {
	tw := newTable()
	tw.AppendHeader(table.Row{"ID", "Title", "Status", "Due", "Source event"})
	for _, t := range tasks {
		tw.AppendRow(table.Row{t.ID, t.Title, t.Status, t.DueDate, t.SourceEventID})
	}
	tw.Render()
}

func stepSummary(steps []domain.Step) string {
	done := 0
	for _, s := range steps {
		if s.Status == "completed" {
			done++
		}
	}
	return fmt.Sprintf("%d/%d", done, len(steps))
}

func printJSONOrIndent(v any) error {
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
