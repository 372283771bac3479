package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"cofounder/internal/app"
	"cofounder/internal/channel"
	"cofounder/internal/config"
	"cofounder/internal/db"
	"cofounder/internal/domain"
	"cofounder/internal/engine"
	"cofounder/internal/llm"
	"cofounder/internal/migrate"
	"cofounder/internal/repo"
	"cofounder/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "cofounder",
	Short: "CoFounder CLI",
	Long: `CoFounder runs the decision and action side of an automated business assistant.
Core concepts:
- Workspace: your .cofounder directory with only the database; business configs live in the DB.
- Business: the company being run; decisions, preferences, actions and invoices all hang off it.
- Decisions: every autonomous choice gets logged with context and reasoning so the owner can audit it.
- Feedback: owner reactions (approved/rejected/modified) feed the preference learner.
- Preferences: learned communication and operating style, with confidence that rises and falls with feedback.
- Actions: proposed work (payment reminders, lead responses, review replies, alerts) that waits for approval
  before execution, with priority derived from amounts and overdue days.
- Event log: diary of changes, view with 'cofounder log tail'.`,
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
	viper.SetEnvPrefix("COFOUNDER")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "owner", "actor identifier")
	rootCmd.PersistentFlags().String("business", "", "business id (overrides config default)")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
	_ = viper.BindPFlag("business", rootCmd.PersistentFlags().Lookup("business"))
}

func registerCommands() {
	rootCmd.AddCommand(businessCmd())
	rootCmd.AddCommand(decisionCmd())
	rootCmd.AddCommand(actionCmd())
	rootCmd.AddCommand(prefsCmd())
	rootCmd.AddCommand(insightsCmd())
	rootCmd.AddCommand(alignCmd())
	rootCmd.AddCommand(invoiceCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(keyCmd())
	rootCmd.AddCommand(serveCmd())
}

func businessCmd() *cobra.Command {
	biz := &cobra.Command{Use: "business", Short: "Manage businesses"}
	biz.AddCommand(businessCreateCmd())
	biz.AddCommand(businessListCmd())
	biz.AddCommand(businessShowCmd())
	biz.AddCommand(businessConfigCmd())
	return biz
}

func businessCreateCmd() *cobra.Command {
	var id, name, industry string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Register a business",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			if _, err := db.EnsureWorkspace(workspace); err != nil {
				return err
			}
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			cfg := config.Default(id)
			cfg.Business.Name = name
			cfg.Business.Industry = industry
			e := engine.New(conn, cfg)
			b, err := e.InitBusiness(cmd.Context(), id, name, industry, viper.GetString("actor-id"))
			if err != nil {
				return err
			}
			return printJSONOrTable(b)
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "business id")
	cmd.Flags().StringVar(&name, "name", "", "business name")
	cmd.Flags().StringVar(&industry, "industry", "", "industry")
	_ = cmd.MarkFlagRequired("id")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func businessListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List businesses",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListBusinesses(ctx)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
	return cmd
}

func businessShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the active business",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				b, err := e.Repo.GetBusiness(ctx, e.Config.Business.ID)
				if err != nil {
					return err
				}
				return printJSONOrTable(b)
			})
		},
	}
	return cmd
}

func businessConfigCmd() *cobra.Command {
	cfg := &cobra.Command{Use: "config", Short: "Manage business config"}
	cfg.AddCommand(businessConfigShowCmd())
	cfg.AddCommand(businessConfigImportCmd())
	return cfg
}

func businessConfigShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show business config stored in DB",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return printJSONOrTable(e.Config)
			})
		},
	}
	return cmd
}

func businessConfigImportCmd() *cobra.Command {
	var filePath string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import business config from YAML into the DB",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(filePath)
			if err != nil {
				return err
			}
			cfg, err := config.FromYAML(data)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				businessID := cfg.Business.ID
				if businessID == "" {
					businessID = e.Config.Business.ID
				}
				if err := e.Repo.UpsertBusinessConfig(ctx, businessID, cfg); err != nil {
					return err
				}
				return printJSONOrTable(cfg)
			})
		},
	}
	cmd.Flags().StringVar(&filePath, "file", "", "path to YAML config")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func decisionCmd() *cobra.Command {
	dec := &cobra.Command{
		Use:   "decision",
		Short: "Log and review decisions",
		Long:  "Decisions record what the assistant chose and why. Feedback on them teaches the preference learner.",
	}
	dec.AddCommand(decisionLogCmd())
	dec.AddCommand(decisionHistoryCmd())
	dec.AddCommand(decisionGetCmd())
	dec.AddCommand(decisionOutcomeCmd())
	dec.AddCommand(decisionFeedbackCmd())
	return dec
}

func decisionLogCmd() *cobra.Command {
	var opts engine.DecisionLogOptions
	var decisionType string
	cmd := &cobra.Command{
		Use:   "log",
		Short: "Log a decision",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Type = domain.DecisionType(decisionType)
			opts.ActorID = viper.GetString("actor-id")
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if opts.BusinessID == "" {
					opts.BusinessID = e.Config.Business.ID
				}
				d, err := e.LogDecision(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(d)
			})
		},
	}
	cmd.Flags().StringVar(&opts.ID, "id", "", "decision id (optional)")
	cmd.Flags().StringVar(&opts.BusinessID, "business", "", "business id")
	cmd.Flags().StringVar(&decisionType, "type", "", "decision type")
	cmd.Flags().StringVar(&opts.Decision, "decision", "", "decision text")
	cmd.Flags().StringVar(&opts.Reasoning, "reasoning", "", "reasoning")
	cmd.Flags().StringVar(&opts.ContextJSON, "context-json", "", "context JSON")
	_ = cmd.MarkFlagRequired("type")
	_ = cmd.MarkFlagRequired("decision")
	return cmd
}

func decisionHistoryCmd() *cobra.Command {
	var f repo.DecisionFilters
	var decisionType string
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show decision history",
		RunE: func(cmd *cobra.Command, args []string) error {
			f.Type = domain.DecisionType(decisionType)
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if f.BusinessID == "" {
					f.BusinessID = e.Config.Business.ID
				}
				items, err := e.History(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Type", "Decision", "Feedback", "Created"})
				for _, d := range items {
					feedback := ""
					if d.Feedback != nil {
						feedback = string(*d.Feedback)
					}
					tw.AppendRow(table.Row{d.ID, d.Type, truncate(d.Decision, 48), feedback, d.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.BusinessID, "business", "", "business id")
	cmd.Flags().StringVar(&decisionType, "type", "", "type filter")
	cmd.Flags().StringVar(&f.Feedback, "feedback", "", "feedback filter (approved, rejected, modified, pending)")
	cmd.Flags().StringVar(&f.From, "from", "", "created at or after (RFC3339)")
	cmd.Flags().StringVar(&f.To, "to", "", "created before (RFC3339)")
	cmd.Flags().IntVar(&f.Limit, "limit", 50, "max results")
	cmd.Flags().IntVar(&f.Offset, "offset", 0, "results offset")
	return cmd
}

func decisionGetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Get decision",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				d, err := e.GetDecision(ctx, id)
				if err != nil {
					return err
				}
				return printJSONOrTable(d)
			})
		},
	}
	return cmd
}

func decisionOutcomeCmd() *cobra.Command {
	var outcome string
	cmd := &cobra.Command{
		Use:   "outcome <id>",
		Short: "Record what actually happened",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				d, err := e.RecordOutcome(ctx, id, outcome, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(d)
			})
		},
	}
	cmd.Flags().StringVar(&outcome, "outcome", "", "outcome text")
	_ = cmd.MarkFlagRequired("outcome")
	return cmd
}

func decisionFeedbackCmd() *cobra.Command {
	var feedback string
	cmd := &cobra.Command{
		Use:   "feedback <id>",
		Short: "React to a decision and update preferences",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				analysis, err := e.RecordFeedback(ctx, e.Config.Business.ID, id, domain.Feedback(feedback), viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(analysis)
			})
		},
	}
	cmd.Flags().StringVar(&feedback, "feedback", "", "approved, rejected or modified")
	_ = cmd.MarkFlagRequired("feedback")
	return cmd
}

func actionCmd() *cobra.Command {
	act := &cobra.Command{
		Use:   "action",
		Short: "Propose, approve and execute actions",
		Long:  "Actions flow pending -> approved -> executed (or rejected). Nothing leaves the building without approval.",
	}
	act.AddCommand(actionRemindCmd())
	act.AddCommand(actionLeadCmd())
	act.AddCommand(actionReviewCmd())
	act.AddCommand(actionAlertCmd())
	act.AddCommand(actionScanCmd())
	act.AddCommand(actionListCmd())
	act.AddCommand(actionGetCmd())
	act.AddCommand(actionApproveCmd())
	act.AddCommand(actionRejectCmd())
	act.AddCommand(actionRevertCmd())
	act.AddCommand(actionExecuteCmd())
	act.AddCommand(actionExecuteAllCmd())
	act.AddCommand(actionStatsCmd())
	return act
}

func actionRemindCmd() *cobra.Command {
	var invoiceID string
	cmd := &cobra.Command{
		Use:   "remind",
		Short: "Propose a payment reminder for an invoice",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := e.GeneratePaymentReminder(ctx, e.Config.Business.ID, invoiceID, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	cmd.Flags().StringVar(&invoiceID, "invoice", "", "invoice id")
	_ = cmd.MarkFlagRequired("invoice")
	return cmd
}

func actionLeadCmd() *cobra.Command {
	var opts engine.LeadOptions
	cmd := &cobra.Command{
		Use:   "lead",
		Short: "Propose a response to a new lead",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.ActorID = viper.GetString("actor-id")
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if opts.BusinessID == "" {
					opts.BusinessID = e.Config.Business.ID
				}
				a, err := e.GenerateLeadResponse(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	cmd.Flags().StringVar(&opts.BusinessID, "business", "", "business id")
	cmd.Flags().StringVar(&opts.LeadID, "lead-id", "", "lead id (optional)")
	cmd.Flags().StringVar(&opts.Contact, "contact", "", "lead contact")
	cmd.Flags().StringVar(&opts.Inquiry, "inquiry", "", "what the lead asked for")
	_ = cmd.MarkFlagRequired("contact")
	return cmd
}

func actionReviewCmd() *cobra.Command {
	var opts engine.ReviewOptions
	cmd := &cobra.Command{
		Use:   "review",
		Short: "Propose a reply to a customer review",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.ActorID = viper.GetString("actor-id")
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if opts.BusinessID == "" {
					opts.BusinessID = e.Config.Business.ID
				}
				a, err := e.GenerateReviewReply(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	cmd.Flags().StringVar(&opts.BusinessID, "business", "", "business id")
	cmd.Flags().StringVar(&opts.ReviewID, "review-id", "", "review id")
	cmd.Flags().IntVar(&opts.Rating, "rating", 0, "star rating 1-5")
	cmd.Flags().StringVar(&opts.ReviewText, "text", "", "review text")
	_ = cmd.MarkFlagRequired("rating")
	return cmd
}

func actionAlertCmd() *cobra.Command {
	var kind, message string
	cmd := &cobra.Command{
		Use:   "alert",
		Short: "Flag something for the owner",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := e.GenerateAlert(ctx, e.Config.Business.ID, kind, message, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "", "alert kind")
	cmd.Flags().StringVar(&message, "message", "", "alert message")
	_ = cmd.MarkFlagRequired("message")
	return cmd
}

func actionScanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Scan unpaid invoices and propose reminders",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ScanForPendingPaymentReminders(ctx, e.Config.Business.ID, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
	return cmd
}

func actionListCmd() *cobra.Command {
	var f repo.ActionFilters
	var actionType, status, priority string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List actions (pending by default)",
		RunE: func(cmd *cobra.Command, args []string) error {
			f.Type = domain.ActionType(actionType)
			f.Status = domain.ActionStatus(status)
			f.Priority = domain.Priority(priority)
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if f.BusinessID == "" {
					f.BusinessID = e.Config.Business.ID
				}
				items, err := e.ListPending(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Type", "Status", "Priority", "Reasoning"})
				for _, a := range items {
					tw.AppendRow(table.Row{a.ID, a.Type, a.Status, a.Priority, truncate(a.Reasoning, 48)})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.BusinessID, "business", "", "business id")
	cmd.Flags().StringVar(&actionType, "type", "", "type filter")
	cmd.Flags().StringVar(&status, "status", "", "status filter (pending, approved, executed, rejected)")
	cmd.Flags().StringVar(&priority, "priority", "", "priority filter")
	cmd.Flags().IntVar(&f.Limit, "limit", 50, "max results")
	return cmd
}

func actionGetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Get action",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := e.GetAction(ctx, id)
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	return cmd
}

func actionApproveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "approve <id> [id...]",
		Short: "Approve pending actions",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			actorID := viper.GetString("actor-id")
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if len(args) == 1 {
					a, err := e.Approve(ctx, args[0], actorID)
					if err != nil {
						return err
					}
					return printJSONOrTable(a)
				}
				n, err := e.BulkApprove(ctx, args, actorID)
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]int64{"approved": n})
			})
		},
	}
	return cmd
}

func actionRejectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reject <id> [id...]",
		Short: "Reject pending actions",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			actorID := viper.GetString("actor-id")
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if len(args) == 1 {
					a, err := e.Reject(ctx, args[0], actorID)
					if err != nil {
						return err
					}
					return printJSONOrTable(a)
				}
				n, err := e.BulkReject(ctx, args, actorID)
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]int64{"rejected": n})
			})
		},
	}
	return cmd
}

func actionRevertCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "revert <id>",
		Short: "Send an approved or rejected action back to pending",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := e.Revert(ctx, id, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	return cmd
}

func actionExecuteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "execute <id> [id...]",
		Short: "Execute approved actions",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			actorID := viper.GetString("actor-id")
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if len(args) == 1 {
					a, err := e.Execute(ctx, args[0], actorID)
					if err != nil {
						return err
					}
					return printJSONOrTable(a)
				}
				return printJSONOrTable(e.ExecuteMany(ctx, args, actorID))
			})
		},
	}
	return cmd
}

func actionExecuteAllCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "execute-all",
		Short: "Execute every approved action",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				outcomes, err := e.ExecuteAllApproved(ctx, e.Config.Business.ID, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(outcomes)
			})
		},
	}
	return cmd
}

func actionStatsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Action counts by status and type",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				stats, err := e.ActionStats(ctx, e.Config.Business.ID)
				if err != nil {
					return err
				}
				return printJSONOrTable(stats)
			})
		},
	}
	return cmd
}

func prefsCmd() *cobra.Command {
	prefs := &cobra.Command{
		Use:   "prefs",
		Short: "Inspect and correct learned preferences",
		Long:  "Preferences are what the learner believes about the owner's style. Decrease, forget or reset them when it gets it wrong.",
	}
	prefs.AddCommand(prefsListCmd())
	prefs.AddCommand(prefsSetCmd())
	prefs.AddCommand(prefsDecreaseCmd())
	prefs.AddCommand(prefsForgetCmd())
	prefs.AddCommand(prefsResetCmd())
	prefs.AddCommand(prefsSummaryCmd())
	return prefs
}

func prefsListCmd() *cobra.Command {
	var category string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List learned preferences",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				var items []domain.LearnedPreference
				var err error
				if category != "" {
					items, err = e.Repo.ListPreferencesByCategory(ctx, e.Config.Business.ID, domain.PreferenceCategory(category))
				} else {
					items, err = e.Repo.ListPreferences(ctx, e.Config.Business.ID)
				}
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Category", "Preference", "Confidence"})
				for _, p := range items {
					tw.AppendRow(table.Row{p.ID, p.Category, p.Preference, fmt.Sprintf("%.2f", p.Confidence)})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&category, "category", "", "category filter")
	return cmd
}

func prefsSetCmd() *cobra.Command {
	var (
		category   string
		preference string
		confidence float64
		example    string
	)
	cmd := &cobra.Command{
		Use:   "set",
		Short: "Create or overwrite a preference at an explicit confidence",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.UpdatePreference(ctx, engine.PreferenceOptions{
					BusinessID: e.Config.Business.ID,
					Category:   domain.PreferenceCategory(category),
					Preference: preference,
					Confidence: confidence,
					Example:    example,
					ActorID:    viper.GetString("actor-id"),
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&category, "category", "", "preference category")
	cmd.Flags().StringVar(&preference, "preference", "", "preference value, e.g. collaborative")
	cmd.Flags().Float64Var(&confidence, "confidence", 0.5, "confidence in (0, 1]")
	cmd.Flags().StringVar(&example, "example", "", "example text to attach")
	_ = cmd.MarkFlagRequired("category")
	_ = cmd.MarkFlagRequired("preference")
	return cmd
}

func prefsDecreaseCmd() *cobra.Command {
	var amount float64
	cmd := &cobra.Command{
		Use:   "decrease <id>",
		Short: "Lower confidence in a preference",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, deleted, err := e.DecreasePreference(ctx, id, amount)
				if err != nil {
					return err
				}
				if deleted {
					return printJSONOrTable(map[string]any{"deleted": true, "preference": p})
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().Float64Var(&amount, "amount", 0.1, "confidence decrease")
	return cmd
}

func prefsForgetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "forget <id>",
		Short: "Delete a preference",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.ForgetPreference(ctx, id, viper.GetString("actor-id"))
			})
		},
	}
	return cmd
}

func prefsResetCmd() *cobra.Command {
	var category string
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Delete every preference in a category",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				n, err := e.ResetPreferenceCategory(ctx, e.Config.Business.ID, domain.PreferenceCategory(category), viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]int64{"deleted": n})
			})
		},
	}
	cmd.Flags().StringVar(&category, "category", "", "preference category")
	_ = cmd.MarkFlagRequired("category")
	return cmd
}

func prefsSummaryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Preference summary as fed to the message drafter",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				summary, err := e.PreferenceSummary(ctx, e.Config.Business.ID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]string{"summary": summary})
				}
				if summary == "" {
					fmt.Println("no learned preferences yet")
					return nil
				}
				fmt.Print(summary)
				return nil
			})
		},
	}
	return cmd
}

func insightsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "insights",
		Short: "Summarize what the learner has picked up",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.GenerateInsights(ctx, e.Config.Business.ID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				if len(items) == 0 {
					fmt.Println("no insights yet; needs more feedback")
					return nil
				}
				for _, in := range items {
					fmt.Printf("- %s (confidence %.0f%%)\n", in.Text, in.Confidence*100)
				}
				return nil
			})
		},
	}
	return cmd
}

func alignCmd() *cobra.Command {
	var text, decisionType string
	cmd := &cobra.Command{
		Use:   "align",
		Short: "Score proposed text against learned preferences",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				report, err := e.CheckAlignment(ctx, e.Config.Business.ID, text, domain.DecisionType(decisionType))
				if err != nil {
					return err
				}
				return printJSONOrTable(report)
			})
		},
	}
	cmd.Flags().StringVar(&text, "text", "", "proposed text")
	cmd.Flags().StringVar(&decisionType, "type", "", "decision type")
	_ = cmd.MarkFlagRequired("text")
	return cmd
}

func invoiceCmd() *cobra.Command {
	inv := &cobra.Command{Use: "invoice", Short: "Track invoice snapshots"}
	inv.AddCommand(invoiceAddCmd())
	inv.AddCommand(invoiceListCmd())
	inv.AddCommand(invoiceStatusCmd())
	return inv
}

func invoiceAddCmd() *cobra.Command {
	var opts engine.InvoiceOptions
	var sentAt string
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Record an invoice",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.ActorID = viper.GetString("actor-id")
			if sentAt != "" {
				if _, err := time.Parse(time.RFC3339, sentAt); err != nil {
					return fmt.Errorf("invalid --sent-at: %w", err)
				}
				opts.SentAt = &sentAt
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if opts.BusinessID == "" {
					opts.BusinessID = e.Config.Business.ID
				}
				inv, err := e.AddInvoice(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(inv)
			})
		},
	}
	cmd.Flags().StringVar(&opts.ID, "id", "", "invoice id (optional)")
	cmd.Flags().StringVar(&opts.BusinessID, "business", "", "business id")
	cmd.Flags().StringVar(&opts.Contact, "contact", "", "customer contact")
	cmd.Flags().StringVar(&opts.ContactName, "contact-name", "", "customer name")
	cmd.Flags().Int64Var(&opts.AmountCents, "amount-cents", 0, "amount in cents")
	cmd.Flags().StringVar(&opts.Status, "status", "sent", "invoice status")
	cmd.Flags().StringVar(&sentAt, "sent-at", "", "when the invoice was sent (RFC3339)")
	_ = cmd.MarkFlagRequired("contact")
	_ = cmd.MarkFlagRequired("amount-cents")
	return cmd
}

func invoiceListCmd() *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List invoices",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListInvoices(ctx, e.Config.Business.ID, status)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "status filter")
	return cmd
}

func invoiceStatusCmd() *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "set-status <id>",
		Short: "Update invoice status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if err := e.Repo.SetInvoiceStatus(ctx, id, status); err != nil {
					return err
				}
				inv, err := e.Repo.GetInvoice(ctx, id)
				if err != nil {
					return err
				}
				return printJSONOrTable(inv)
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "new status (draft, sent, paid, void)")
	_ = cmd.MarkFlagRequired("status")
	return cmd
}

func logCmd() *cobra.Command {
	log := &cobra.Command{
		Use:   "log",
		Short: "Event log",
		Long:  "The diary of everything that happened: decisions, feedback, action transitions, executions.",
	}
	log.AddCommand(logTailCmd())
	return log
}

func logTailCmd() *cobra.Command {
	var n int
	var evtType, entityKind, entityID string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				events, err := e.Repo.LatestEvents(ctx, n, e.Config.Business.ID, evtType, entityKind, entityID)
				if err != nil {
					return err
				}
				return printJSONOrTable(events)
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	cmd.Flags().StringVar(&entityKind, "entity-kind", "", "entity kind")
	cmd.Flags().StringVar(&entityID, "entity-id", "", "entity id")
	return cmd
}

func keyCmd() *cobra.Command {
	key := &cobra.Command{Use: "key", Short: "Manage API keys"}
	key.AddCommand(keyCreateCmd())
	key.AddCommand(keyRevokeCmd())
	return key
}

func keyCreateCmd() *cobra.Command {
	var actor, name string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an API key (printed once)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if actor == "" {
				actor = viper.GetString("actor-id")
			}
			secret := uuid.New().String() + uuid.New().String()
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				k := domain.APIKey{
					ID:        uuid.New().String(),
					ActorID:   actor,
					Name:      name,
					KeyHash:   repo.HashAPIKey(secret),
					CreatedAt: time.Now().UTC().Format(time.RFC3339),
				}
				if err := r.InsertAPIKey(ctx, k); err != nil {
					return err
				}
				return printJSONOrTable(map[string]string{
					"id":       k.ID,
					"actor_id": k.ActorID,
					"key":      secret,
				})
			})
		},
	}
	cmd.Flags().StringVar(&actor, "actor", "", "actor the key authenticates as")
	cmd.Flags().StringVar(&name, "name", "", "key label")
	return cmd
}

func keyRevokeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "revoke <id>",
		Short: "Delete an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				return r.DeleteAPIKey(ctx, id)
			})
		},
	}
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	var allowLegacyActor bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			if _, err := db.EnsureWorkspace(workspace); err != nil {
				return err
			}
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			r := repo.Repo{DB: conn}
			_, cfg, err := app.ResolveBusinessAndConfig(cmd.Context(), workspace, viper.GetString("business"), r)
			if err != nil {
				return err
			}
			e := buildEngine(conn, cfg)
			authCfg := server.AuthConfig{
				JWTSecret:              os.Getenv("COFOUNDER_JWT_SECRET"),
				AllowLegacyActorHeader: allowLegacyActor,
			}
			if authCfg.JWTSecret == "" && !allowLegacyActor {
				return fmt.Errorf("COFOUNDER_JWT_SECRET is required for bearer auth (or pass --allow-legacy-actor for local use)")
			}
			handler, err := server.New(server.Config{Engine: e, BasePath: basePath, Auth: authCfg})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving CoFounder API on http://%s%s (OpenAPI at /openapi.json, Swagger UI at /docs)\n", addr, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	cmd.Flags().BoolVar(&allowLegacyActor, "allow-legacy-actor", false, "accept unauthenticated X-Actor-Id header")
	return cmd
}

// --- helpers ---

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	r := repo.Repo{DB: conn}
	_, cfg, err := app.ResolveBusinessAndConfig(ctx, workspace, viper.GetString("business"), r)
	if err != nil {
		return err
	}
	return fn(ctx, buildEngine(conn, cfg))
}

func withRepo(ctx context.Context, fn func(context.Context, repo.Repo) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	return fn(ctx, repo.Repo{DB: conn})
}

func buildEngine(conn *sql.DB, cfg *config.Config) engine.Engine {
	e := engine.New(conn, cfg)
	if cfg.Channel.Endpoint != "" {
		e.Channel = channel.NewWebhook(cfg.Channel.Endpoint)
	}
	if cfg.LLM.APIKeyEnv != "" {
		if apiKey := os.Getenv(cfg.LLM.APIKeyEnv); apiKey != "" {
			e.LLM = llm.NewClient(cfg.LLM.Endpoint, apiKey, cfg.LLM.Model)
		}
	}
	return e
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

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
