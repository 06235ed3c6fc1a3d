// reqtriage: feature-request lifecycle engine.
//
// The serve command exposes the staged agent tool catalogue over MCP
// (stdio transport); the rest of the commands are the human side of
// the workflow: creating requests, applying lifecycle actions,
// recording decisions, and closing the calibration loop.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"reqtriage/internal/config"
	"reqtriage/internal/lifecycle"
	"reqtriage/internal/notify"
	"reqtriage/internal/pipeline"
	"reqtriage/internal/review"
	"reqtriage/internal/scoring"
	srv "reqtriage/internal/server"
	"reqtriage/internal/store"
	"reqtriage/internal/tools"
	"reqtriage/internal/tracker"
	"reqtriage/internal/updater"

	mcpserver "github.com/mark3labs/mcp-go/server"
)

var rootCmd = &cobra.Command{
	Use:   "reqtriage",
	Short: "Feature-request triage engine",
	Long: `reqtriage moves feature requests through a reviewed lifecycle:
structured intake, scored assessment, human decision, and epic/story
generation. The serve command runs the MCP server the triage agent
connects to; the other commands are for the humans in the loop.`,
}

func main() {
	cobra.OnInitialize(config.Init)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().String("data-dir", "", "data directory (default ~/.reqtriage)")
	rootCmd.PersistentFlags().String("org", config.DefaultOrgID, "organization id")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "acting user id")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	_ = viper.BindPFlag("data-dir", rootCmd.PersistentFlags().Lookup("data-dir"))
	_ = viper.BindPFlag("org", rootCmd.PersistentFlags().Lookup("org"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
}

func registerCommands() {
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(versionCmd())
	rootCmd.AddCommand(requestCmd())
	rootCmd.AddCommand(decideCmd())
	rootCmd.AddCommand(outcomeCmd())
	rootCmd.AddCommand(complexityCmd())
	rootCmd.AddCommand(calibrationCmd())
	rootCmd.AddCommand(backlogCmd())
	rootCmd.AddCommand(syncCmd())
	rootCmd.AddCommand(userCmd())
	rootCmd.AddCommand(scoringCmd())
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP server (stdio transport)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			s, cleanup, err := srv.New(cfg)
			if err != nil {
				return fmt.Errorf("creating server: %w", err)
			}
			defer cleanup()

			// Background version check, stderr only so it never
			// touches the stdio transport on stdout.
			go func() {
				if r := updater.CheckVersion(srv.Version); r.UpdateAvailable {
					fmt.Fprintf(os.Stderr, "update available: v%s -> v%s (%s)\n",
						r.CurrentVersion, r.LatestVersion, r.ReleaseURL)
				}
			}()

			return mcpserver.ServeStdio(s)
		},
	}
}

func runCmd() *cobra.Command {
	var script string
	cmd := &cobra.Command{
		Use:   "run <request-id>",
		Short: "Replay a prepared tool-call script through the request's active stage",
		Long: `run executes a JSON file of tool calls against whatever stage the
request is currently in, under the configured per-call timeout and
call budget. The file holds an array of {"name", "arguments"} objects.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			raw, err := os.ReadFile(script)
			if err != nil {
				return err
			}
			var calls []pipeline.ToolCall
			if err := json.Unmarshal(raw, &calls); err != nil {
				return fmt.Errorf("parsing %s: %w", script, err)
			}
			return withStore(cmd.Context(), func(ctx context.Context, st *store.Store) error {
				sinks := []notify.Sink{notify.NewLogSink(os.Stderr)}
				if cfg.NotifyWebhook != "" {
					sinks = append(sinks, notify.NewWebhookSink(cfg.NotifyWebhook))
				}
				deps := tools.Deps{
					Store:   st,
					Review:  review.NewEngine(st, notify.New(nil, sinks...)),
					OrgID:   cfg.OrgID,
					AgentID: cfg.AgentID,
				}
				o := pipeline.New(deps, pipeline.Config{
					ToolTimeout: cfg.ToolTimeout,
					MaxCalls:    cfg.MaxToolCalls,
				})
				report, err := o.RunStage(ctx, args[0], pipeline.NewScriptAgent(calls))
				if err != nil {
					return err
				}
				return printJSON(report)
			})
		},
	}
	cmd.Flags().StringVar(&script, "script", "", "JSON file with the tool calls to replay")
	_ = cmd.MarkFlagRequired("script")
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version and check for updates",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("reqtriage v%s\n", srv.Version)
			if r := updater.CheckVersion(srv.Version); r.UpdateAvailable {
				fmt.Printf("update available: v%s (%s)\n", r.LatestVersion, r.ReleaseURL)
			}
		},
	}
}

func requestCmd() *cobra.Command {
	req := &cobra.Command{Use: "request", Short: "Manage requests"}
	req.AddCommand(requestCreateCmd())
	req.AddCommand(requestListCmd())
	req.AddCommand(requestShowCmd())
	req.AddCommand(requestActionsCmd())
	req.AddCommand(requestApplyCmd())
	return req
}

func requestCreateCmd() *cobra.Command {
	var title, description string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a request (starts in DRAFT)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(ctx context.Context, st *store.Store) error {
				r, err := st.CreateRequest(ctx, store.CreateRequestParams{
					OrgID:       viper.GetString("org"),
					RequesterID: viper.GetString("actor-id"),
					Title:       title,
					Description: description,
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(r)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "request title")
	cmd.Flags().StringVar(&description, "description", "", "request description")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func requestListCmd() *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List requests",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(ctx context.Context, st *store.Store) error {
				requests, err := st.ListRequests(ctx, viper.GetString("org"), lifecycle.Status(status))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(requests)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Title", "Status", "Priority", "Complexity"})
				for _, r := range requests {
					tw.AppendRow(table.Row{
						r.ID, r.Title, r.Status,
						formatScore(r.PriorityScore), formatComplexity(r.Complexity),
					})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "status filter")
	return cmd
}

func requestShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a request with its decision trail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(ctx context.Context, st *store.Store) error {
				r, err := st.GetOrgRequest(ctx, args[0], viper.GetString("org"))
				if err != nil {
					return err
				}
				decisions, err := st.ListDecisions(ctx, r.ID)
				if err != nil {
					return err
				}
				return printJSON(map[string]any{
					"request":   r,
					"decisions": decisions,
				})
			})
		},
	}
}

func requestActionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "actions <id>",
		Short: "List the lifecycle actions available to you",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(ctx context.Context, st *store.Store) error {
				r, err := st.GetOrgRequest(ctx, args[0], viper.GetString("org"))
				if err != nil {
					return err
				}
				actions := lifecycle.AvailableActions(r.Status, actorRole(ctx, st))
				if viper.GetBool("json") {
					return printJSON(actions)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Key", "Label", "Target", "Requires"})
				for _, a := range actions {
					tw.AppendRow(table.Row{a.Key, a.Label, a.Target, a.RequiredRole})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func requestApplyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "apply <id> <action>",
		Short: "Apply a lifecycle action (start_intake, approve, move_to_backlog, ...)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, st *store.Store, e *review.Engine) error {
				r, err := e.ApplyAction(ctx, review.ApplyActionParams{
					RequestID: args[0],
					ActionKey: args[1],
					Actor:     actor(ctx, st),
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(r)
			})
		},
	}
}

func decideCmd() *cobra.Command {
	var decision, rationale string
	cmd := &cobra.Command{
		Use:   "decide <request-id>",
		Short: "Record a reviewer decision",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, st *store.Store, e *review.Engine) error {
				d, r, err := e.RecordDecision(ctx, review.RecordDecisionParams{
					RequestID: args[0],
					Decision:  lifecycle.DecisionType(strings.ToUpper(decision)),
					Rationale: rationale,
					Actor:     actor(ctx, st),
				})
				if err != nil {
					return err
				}
				return printJSON(map[string]any{"decision": d, "request": r})
			})
		},
	}
	cmd.Flags().StringVar(&decision, "decision", "", "APPROVE, REJECT, DEFER, or REQUEST_INFO")
	cmd.Flags().StringVar(&rationale, "rationale", "", "why")
	_ = cmd.MarkFlagRequired("decision")
	_ = cmd.MarkFlagRequired("rationale")
	return cmd
}

func outcomeCmd() *cobra.Command {
	var outcome, notes string
	cmd := &cobra.Command{
		Use:   "outcome <decision-id>",
		Short: "Record how a decision turned out",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, st *store.Store, e *review.Engine) error {
				d, err := e.RecordOutcome(ctx, args[0], lifecycle.Outcome(strings.ToUpper(outcome)), notes)
				if err != nil {
					return err
				}
				return printJSONOrTable(d)
			})
		},
	}
	cmd.Flags().StringVar(&outcome, "outcome", "", "CORRECT, PARTIALLY_CORRECT, INCORRECT, or PENDING")
	cmd.Flags().StringVar(&notes, "notes", "", "outcome notes")
	_ = cmd.MarkFlagRequired("outcome")
	return cmd
}

func complexityCmd() *cobra.Command {
	var actual, lessons string
	var effortDays float64
	cmd := &cobra.Command{
		Use:   "complexity <request-id>",
		Short: "Record the realized complexity of finished work",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, st *store.Store, e *review.Engine) error {
				p := review.RecordActualComplexityParams{
					RequestID:        args[0],
					OrgID:            viper.GetString("org"),
					ActualComplexity: lifecycle.Complexity(strings.ToUpper(actual)),
					LessonsLearned:   lessons,
				}
				if cmd.Flags().Changed("effort-days") {
					p.EffortDays = &effortDays
				}
				r, err := e.RecordActualComplexity(ctx, p)
				if err != nil {
					return err
				}
				return printJSONOrTable(r)
			})
		},
	}
	cmd.Flags().StringVar(&actual, "actual", "", "realized complexity (XS, S, M, L, XL)")
	cmd.Flags().Float64Var(&effortDays, "effort-days", 0, "realized effort in days")
	cmd.Flags().StringVar(&lessons, "lessons", "", "lessons learned")
	_ = cmd.MarkFlagRequired("actual")
	return cmd
}

func calibrationCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "calibration",
		Short: "Show estimate accuracy per complexity bucket",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, st *store.Store, e *review.Engine) error {
				report, err := e.Calibration(ctx, viper.GetString("org"))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(report)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Predicted", "Count", "Matched", "Accuracy"})
				for _, b := range report.Buckets {
					tw.AppendRow(table.Row{b.Complexity, b.Predicted, b.Matched, fmt.Sprintf("%d%%", b.AccuracyPercent)})
				}
				tw.AppendFooter(table.Row{"overall", report.Predicted, report.Matched, fmt.Sprintf("%d%%", report.AccuracyPercent)})
				tw.Render()
				return nil
			})
		},
	}
}

func backlogCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "backlog",
		Short: "Show the prioritized backlog",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(ctx context.Context, st *store.Store) error {
				requests, err := st.ListBacklog(ctx, viper.GetString("org"), limit)
				if err != nil {
					return err
				}
				cfg, err := st.GetScoringConfig(ctx, viper.GetString("org"))
				if err != nil {
					return err
				}
				resolved := scoring.Resolve(cfg)
				if viper.GetBool("json") {
					return printJSON(requests)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Title", "Priority", "Label", "Complexity"})
				for _, r := range requests {
					label := ""
					if r.PriorityScore != nil {
						label = scoring.PriorityLabel(*r.PriorityScore, resolved)
					}
					tw.AppendRow(table.Row{
						r.ID, r.Title, formatScore(r.PriorityScore), label, formatComplexity(r.Complexity),
					})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "max rows")
	return cmd
}

func syncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync <request-id>",
		Short: "Push a request's epic and stories to the issue tracker",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.TrackerURL == "" {
				return fmt.Errorf("no tracker configured; set REQTRIAGE_TRACKER_URL")
			}
			return withStore(cmd.Context(), func(ctx context.Context, st *store.Store) error {
				epic, err := st.GetEpicByRequest(ctx, args[0])
				if err != nil {
					return err
				}
				stories, err := st.ListStories(ctx, epic.ID)
				if err != nil {
					return err
				}
				client := tracker.NewWebhookClient(cfg.TrackerURL, cfg.TrackerToken)
				result, err := tracker.Sync(ctx, client, epic, stories)
				if err != nil {
					return err
				}
				if err := printJSON(result); err != nil {
					return err
				}
				if len(result.FailedStories) > 0 {
					return fmt.Errorf("%d stories failed to sync", len(result.FailedStories))
				}
				return nil
			})
		},
		Args: cobra.ExactArgs(1),
	}
}

func userCmd() *cobra.Command {
	u := &cobra.Command{Use: "user", Short: "Manage organization members"}
	u.AddCommand(userAddCmd())
	u.AddCommand(userListCmd())
	return u
}

func userAddCmd() *cobra.Command {
	var id, name, role string
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add or update an organization member",
		RunE: func(cmd *cobra.Command, args []string) error {
			r := lifecycle.Role(strings.ToUpper(role))
			if err := lifecycle.ValidateRole(r); err != nil {
				return err
			}
			return withStore(cmd.Context(), func(ctx context.Context, st *store.Store) error {
				u := store.User{ID: id, OrgID: viper.GetString("org"), Name: name, Role: r}
				if err := st.UpsertUser(ctx, u); err != nil {
					return err
				}
				return printJSONOrTable(u)
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "user id")
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().StringVar(&role, "role", string(lifecycle.RoleStakeholder), "STAKEHOLDER, REVIEWER, or ADMIN")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}

func userListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List organization members",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(ctx context.Context, st *store.Store) error {
				members, err := st.ListOrgMembers(ctx, viper.GetString("org"))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(members)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Role"})
				for _, m := range members {
					tw.AppendRow(table.Row{m.ID, m.Name, m.Role})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func scoringCmd() *cobra.Command {
	sc := &cobra.Command{Use: "scoring", Short: "Inspect or change the scoring configuration"}
	sc.AddCommand(scoringShowCmd())
	sc.AddCommand(scoringSetCmd())
	return sc
}

func scoringShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the scoring configuration in force",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(ctx context.Context, st *store.Store) error {
				cfg, err := st.GetScoringConfig(ctx, viper.GetString("org"))
				if err != nil {
					return err
				}
				return printJSON(scoring.Resolve(cfg))
			})
		},
	}
}

func scoringSetCmd() *cobra.Command {
	var framework string
	var wBusiness, wTechnical, wRisk, thHigh, thMedium float64
	cmd := &cobra.Command{
		Use:   "set",
		Short: "Replace the organization's scoring configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := scoring.Config{
				Framework: scoring.Framework(strings.ToUpper(framework)),
				Weights: scoring.Weights{
					Business: wBusiness, Technical: wTechnical, Risk: wRisk,
				},
				Thresholds: scoring.Thresholds{
					HighPriority: thHigh, MediumPriority: thMedium,
				},
			}
			return withStore(cmd.Context(), func(ctx context.Context, st *store.Store) error {
				if err := st.SaveScoringConfig(ctx, viper.GetString("org"), cfg); err != nil {
					return err
				}
				return printJSON(cfg)
			})
		},
	}
	cmd.Flags().StringVar(&framework, "framework", string(scoring.FrameworkRICE), "RICE, WSJF, or CUSTOM")
	cmd.Flags().Float64Var(&wBusiness, "weight-business", 0.4, "business weight")
	cmd.Flags().Float64Var(&wTechnical, "weight-technical", 0.3, "technical weight")
	cmd.Flags().Float64Var(&wRisk, "weight-risk", 0.3, "risk weight")
	cmd.Flags().Float64Var(&thHigh, "threshold-high", 75, "High priority lower bound")
	cmd.Flags().Float64Var(&thMedium, "threshold-medium", 50, "Medium priority lower bound")
	return cmd
}

// --- helpers ---

func withStore(ctx context.Context, fn func(context.Context, *store.Store) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	st, err := store.New(store.Config{DataDir: cfg.DataDir})
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()
	return fn(ctx, st)
}

func withEngine(ctx context.Context, fn func(context.Context, *store.Store, *review.Engine) error) error {
	return withStore(ctx, func(ctx context.Context, st *store.Store) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		sinks := []notify.Sink{notify.NewLogSink(os.Stderr)}
		if cfg.NotifyWebhook != "" {
			sinks = append(sinks, notify.NewWebhookSink(cfg.NotifyWebhook))
		}
		return fn(ctx, st, review.NewEngine(st, notify.New(nil, sinks...)))
	})
}

// actor resolves the acting user from the members table. Unknown users
// act as stakeholders; roles are granted with "reqtriage user add".
func actor(ctx context.Context, st *store.Store) review.Actor {
	return review.Actor{
		UserID: viper.GetString("actor-id"),
		OrgID:  viper.GetString("org"),
		Role:   actorRole(ctx, st),
	}
}

func actorRole(ctx context.Context, st *store.Store) lifecycle.Role {
	u, err := st.GetUser(ctx, viper.GetString("actor-id"))
	if err != nil || u.OrgID != viper.GetString("org") {
		return lifecycle.RoleStakeholder
	}
	return u.Role
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

func formatScore(s *float64) string {
	if s == nil {
		return ""
	}
	return fmt.Sprintf("%.0f", *s)
}

func formatComplexity(c *lifecycle.Complexity) string {
	if c == nil {
		return ""
	}
	return string(*c)
}
