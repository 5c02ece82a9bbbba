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

	"reqline/internal/app"
	"reqline/internal/config"
	"reqline/internal/db"
	"reqline/internal/domain"
	"reqline/internal/engine"
	"reqline/internal/migrate"
	"reqline/internal/repo"
	"reqline/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "rq",
	Short: "Reqline CLI",
	Long: `Reqline is a design request platform: requests are admitted, auto-assigned
to the best available executor, and anything that does not fit waits in a
deterministic per-scope queue.
- Workspace: the .reqline directory holding the database; reqline.yml beside
  it configures departments, design types, and executor tiers.
- Requests: design tickets that move pending -> in-process -> review ->
  completed (rejected is the exit at any step).
- Executors: gerente, diseñador, and practicante users with capacity,
  tier priority, and allowed design types.
- Queue: requests are ranked inside (stage, department, executor type)
  groups by urgency, then waiting time; positions shift without gaps.
- Event log: diary of changes, view with 'rq log tail'.`,
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
	viper.SetEnvPrefix("REQLINE")
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
	rootCmd.AddCommand(requestCmd())
	rootCmd.AddCommand(queueCmd())
	rootCmd.AddCommand(executorCmd())
	rootCmd.AddCommand(userCmd())
	rootCmd.AddCommand(apikeyCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(serveCmd())
}

// --- config ---

func configCmd() *cobra.Command {
	cfg := &cobra.Command{Use: "config", Short: "Manage workspace config"}
	cfg.AddCommand(configInitCmd())
	cfg.AddCommand(configShowCmd())
	cfg.AddCommand(configCheckCmd())
	return cfg
}

func configInitCmd() *cobra.Command {
	var name string
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default reqline.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists; use --force to overwrite", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault(name)), 0o644); err != nil {
				return err
			}
			fmt.Printf("Wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "reqline", "platform name")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite existing config")
	return cmd
}

func configShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the effective config",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return printJSONOrTable(e.Config)
			})
		},
	}
	return cmd
}

func configCheckCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Validate reqline.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			fmt.Printf("OK: %d departments, %d design types, %d executor roles\n",
				len(cfg.Departments), len(cfg.DesignTypes), len(cfg.Roles))
			return nil
		},
	}
	return cmd
}

// --- requests ---

func requestCmd() *cobra.Command {
	req := &cobra.Command{Use: "request", Short: "Manage design requests"}
	req.AddCommand(requestCreateCmd())
	req.AddCommand(requestListCmd())
	req.AddCommand(requestShowCmd())
	req.AddCommand(requestStatusCmd())
	req.AddCommand(requestClaimCmd())
	req.AddCommand(requestCommentCmd())
	return req
}

func requestCreateCmd() *cobra.Command {
	var opts engine.RequestCreateOptions
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Admit a design request (auto-assigns when an executor fits)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if opts.RequesterID == "" {
					opts.RequesterID = viper.GetString("actor-id")
				}
				opts.ActorID = viper.GetString("actor-id")
				req, executor, err := e.CreateRequest(ctx, opts)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{
						"request":     req,
						"assigned_to": executor,
						"queued":      executor == nil,
					})
				}
				if executor != nil {
					fmt.Printf("%s assigned to %s (%s)\n", req.RequestNumber, executor.FullName(), executor.Role)
				} else {
					fmt.Printf("%s queued; no executor has free capacity for it yet\n", req.RequestNumber)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&opts.RequesterID, "requester", "", "requester user id (defaults to --actor-id)")
	cmd.Flags().StringVar(&opts.Area, "area", "", "requesting department")
	cmd.Flags().StringVar(&opts.Type, "type", "", "design type")
	cmd.Flags().StringVar(&opts.PreferredRole, "prefer-role", "", "preferred executor role")
	cmd.Flags().StringVar(&opts.Title, "title", "", "title")
	cmd.Flags().StringVar(&opts.Description, "description", "", "description")
	cmd.Flags().StringVar(&opts.Urgency, "urgency", "", "normal, urgent or express")
	cmd.Flags().StringVar(&opts.DeliveryDate, "delivery-date", "", "RFC3339 deadline")
	_ = cmd.MarkFlagRequired("area")
	_ = cmd.MarkFlagRequired("type")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func requestListCmd() *cobra.Command {
	var f repo.RequestFilters
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List requests",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListRequests(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Number", "Title", "Area", "Type", "Urgency", "Status", "Assignee"})
				for _, r := range items {
					assignee := ""
					if r.AssignedTo != nil {
						assignee = *r.AssignedTo
					}
					tw.AppendRow(table.Row{r.RequestNumber, r.Title, r.Area, r.Type, r.Urgency, r.Status, assignee})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.Status, "status", "", "status filter")
	cmd.Flags().StringVar(&f.Area, "area", "", "department filter")
	cmd.Flags().StringVar(&f.Urgency, "urgency", "", "urgency filter")
	cmd.Flags().StringVar(&f.RequesterID, "requester", "", "requester filter")
	cmd.Flags().StringVar(&f.AssignedTo, "assignee", "", "assignee filter")
	cmd.Flags().IntVar(&f.Limit, "limit", 0, "max rows")
	return cmd
}

func requestShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a request with its comments",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				req, err := resolveRequest(ctx, e, args[0])
				if err != nil {
					return err
				}
				comments, err := e.Repo.ListComments(ctx, req.ID)
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]any{"request": req, "comments": comments})
			})
		},
	}
	return cmd
}

func requestStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status <id> <status>",
		Short: "Change a request's status",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				req, err := resolveRequest(ctx, e, args[0])
				if err != nil {
					return err
				}
				req, err = e.SetRequestStatus(ctx, req.ID, args[1], viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(req)
			})
		},
	}
	return cmd
}

func requestClaimCmd() *cobra.Command {
	var executorID string
	cmd := &cobra.Command{
		Use:   "claim <id>",
		Short: "Claim a pending request for an executor",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				req, err := resolveRequest(ctx, e, args[0])
				if err != nil {
					return err
				}
				if executorID == "" {
					executorID = viper.GetString("actor-id")
				}
				req, err = e.ClaimRequest(ctx, req.ID, executorID, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(req)
			})
		},
	}
	cmd.Flags().StringVar(&executorID, "executor", "", "executor id (defaults to --actor-id)")
	return cmd
}

func requestCommentCmd() *cobra.Command {
	var text string
	cmd := &cobra.Command{
		Use:   "comment <id>",
		Short: "Comment on a request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				req, err := resolveRequest(ctx, e, args[0])
				if err != nil {
					return err
				}
				c, err := e.AddComment(ctx, req.ID, viper.GetString("actor-id"), text)
				if err != nil {
					return err
				}
				return printJSONOrTable(c)
			})
		},
	}
	cmd.Flags().StringVar(&text, "text", "", "comment text")
	_ = cmd.MarkFlagRequired("text")
	return cmd
}

// --- queue ---

func queueCmd() *cobra.Command {
	q := &cobra.Command{Use: "queue", Short: "Inspect and run the assignment queue"}
	q.AddCommand(queuePositionCmd())
	q.AddCommand(queueMyCmd())
	q.AddCommand(queueScopeCmd())
	q.AddCommand(queueAssignCmd())
	return q
}

func queuePositionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "position <id>",
		Short: "Where a request stands in its queue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				req, err := resolveRequest(ctx, e, args[0])
				if err != nil {
					return err
				}
				entry, err := e.QueuePosition(ctx, req.ID)
				if err != nil {
					return err
				}
				if entry == nil {
					if viper.GetBool("json") {
						return printJSON(map[string]any{"in_queue": false})
					}
					fmt.Printf("%s is not in the active queue (status %s)\n", req.RequestNumber, req.Status)
					return nil
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"in_queue": true, "entry": entry})
				}
				fmt.Printf("%s: position %d of %d (%d ahead) in %s / %s / %s\n",
					req.RequestNumber, entry.Position, entry.Total, entry.Ahead,
					entry.Stage, entry.Scope.Department, entry.Scope.ExecutorType)
				return nil
			})
		},
	}
	return cmd
}

func queueMyCmd() *cobra.Command {
	var userID string
	cmd := &cobra.Command{
		Use:   "my",
		Short: "Active tickets for a user, split by relationship",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if userID == "" {
					userID = viper.GetString("actor-id")
				}
				view, err := e.UserQueue(ctx, userID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(view)
				}
				printTicketTable("As requester", view.AsRequester)
				printTicketTable("As executor", view.AsExecutor)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user id (defaults to --actor-id)")
	return cmd
}

func queueScopeCmd() *cobra.Command {
	var f engine.ScopedQueueFilters
	cmd := &cobra.Command{
		Use:   "scope",
		Short: "Full ranked queue, filterable by department, executor type and stage",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				view, err := e.ScopedQueue(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(view)
				}
				printTicketTable(fmt.Sprintf("Queue (%d total, page %d/%d)", view.Total, view.Page, view.Pages), view.Items)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.Department, "department", "", "department filter")
	cmd.Flags().StringVar(&f.ExecutorType, "executor-type", "", "executor type filter (aliases accepted)")
	cmd.Flags().StringVar(&f.Stage, "stage", "", "pending or assigned")
	cmd.Flags().IntVar(&f.Page, "page", 1, "page")
	cmd.Flags().IntVar(&f.Limit, "limit", 20, "page size")
	return cmd
}

func queueAssignCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "assign",
		Short: "Run an assignment pass over pending requests",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				assigned, err := e.AssignPending(ctx, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(assigned)
				}
				if len(assigned) == 0 {
					fmt.Println("No pending request fit an executor.")
					return nil
				}
				for _, req := range assigned {
					fmt.Printf("%s -> %s\n", req.RequestNumber, *req.AssignedTo)
				}
				return nil
			})
		},
	}
	return cmd
}

// --- executors ---

func executorCmd() *cobra.Command {
	ex := &cobra.Command{Use: "executor", Short: "Manage executors"}
	ex.AddCommand(executorListCmd())
	ex.AddCommand(executorAvailabilityCmd())
	ex.AddCommand(executorStatsCmd())
	return ex
}

func executorListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List executors with live load",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListExecutors(ctx)
				if err != nil {
					return err
				}
				loads, err := e.Repo.ActiveCountByAssignee(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Role", "Load", "Capacity", "Available", "Types"})
				for _, u := range items {
					if u.Executor == nil {
						continue
					}
					tw.AppendRow(table.Row{
						u.ID, u.FullName(), u.Role,
						loads[u.ID], u.Executor.Capacity, u.Executor.Available,
						strings.Join(u.Executor.AllowedTypes, ","),
					})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func executorAvailabilityCmd() *cobra.Command {
	var available bool
	var reason, until string
	cmd := &cobra.Command{
		Use:   "availability <id>",
		Short: "Set executor availability",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				var untilPtr *string
				if until != "" {
					untilPtr = &until
				}
				u, err := e.SetExecutorAvailability(ctx, args[0], available, reason, untilPtr, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(u)
			})
		},
	}
	cmd.Flags().BoolVar(&available, "available", true, "availability flag")
	cmd.Flags().StringVar(&reason, "reason", "", "reason when unavailable")
	cmd.Flags().StringVar(&until, "until", "", "RFC3339 return date")
	return cmd
}

func executorStatsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats <id>",
		Short: "Recompute and show executor statistics",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				stats, err := e.RefreshExecutorStats(ctx, args[0], viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(stats)
			})
		},
	}
	return cmd
}

// --- users ---

func userCmd() *cobra.Command {
	u := &cobra.Command{Use: "user", Short: "Manage users"}
	u.AddCommand(userCreateCmd())
	u.AddCommand(userListCmd())
	u.AddCommand(userShowCmd())
	return u
}

func userCreateCmd() *cobra.Command {
	var opts engine.UserCreateOptions
	var allowedTypes, specialties string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a user (executor roles get tier defaults)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				opts.ActorID = viper.GetString("actor-id")
				if allowedTypes != "" {
					opts.AllowedTypes = splitCSV(allowedTypes)
				}
				if specialties != "" {
					opts.Specialties = splitCSV(specialties)
				}
				u, err := e.CreateUser(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(u)
			})
		},
	}
	cmd.Flags().StringVar(&opts.ID, "id", "", "user id (generated when empty)")
	cmd.Flags().StringVar(&opts.Email, "email", "", "email")
	cmd.Flags().StringVar(&opts.FirstName, "first-name", "", "first name")
	cmd.Flags().StringVar(&opts.LastName, "last-name", "", "last name")
	cmd.Flags().StringVar(&opts.Role, "role", "", "admin, gerente, diseñador, practicante or usuario")
	cmd.Flags().StringVar(&opts.Department, "department", "", "department")
	cmd.Flags().IntVar(&opts.Capacity, "capacity", 0, "executor capacity override")
	cmd.Flags().IntVar(&opts.Priority, "priority", 0, "executor tier override")
	cmd.Flags().StringVar(&allowedTypes, "allowed-types", "", "comma separated design types")
	cmd.Flags().StringVar(&specialties, "specialties", "", "comma separated specialties")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("first-name")
	return cmd
}

func userListCmd() *cobra.Command {
	var f repo.UserFilters
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List users",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListUsers(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Email", "Role", "Department"})
				for _, u := range items {
					tw.AppendRow(table.Row{u.ID, u.FullName(), u.Email, u.Role, u.Department})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.Role, "role", "", "role filter")
	cmd.Flags().StringVar(&f.Department, "department", "", "department filter")
	cmd.Flags().BoolVar(&f.ActiveOnly, "active", false, "active users only")
	return cmd
}

func userShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				u, err := r.GetUser(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(u)
			})
		},
	}
	return cmd
}

// --- api keys ---

func apikeyCmd() *cobra.Command {
	k := &cobra.Command{Use: "apikey", Short: "Manage API keys"}
	k.AddCommand(apikeyCreateCmd())
	k.AddCommand(apikeyListCmd())
	k.AddCommand(apikeyDeleteCmd())
	return k
}

func apikeyCreateCmd() *cobra.Command {
	var actorID, name string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Mint an API key for an actor",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				if actorID == "" {
					actorID = viper.GetString("actor-id")
				}
				key, rec, err := repo.NewAPIKey(ctx, r, actorID, name)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"key": key, "record": rec})
				}
				fmt.Printf("API key (store it now, it is not retrievable later):\n%s\n", key)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&actorID, "actor", "", "actor id (defaults to --actor-id)")
	cmd.Flags().StringVar(&name, "name", "", "key label")
	return cmd
}

func apikeyListCmd() *cobra.Command {
	var actorID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListAPIKeys(ctx, actorID)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
	cmd.Flags().StringVar(&actorID, "actor", "", "filter by actor id")
	return cmd
}

func apikeyDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				return r.DeleteAPIKey(ctx, args[0])
			})
		},
	}
	return cmd
}

// --- events ---

func logCmd() *cobra.Command {
	lg := &cobra.Command{Use: "log", Short: "Event log"}
	lg.AddCommand(logTailCmd())
	return lg
}

func logTailCmd() *cobra.Command {
	var n int
	var evtType, entityKind, entityID string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				events, err := r.LatestEvents(ctx, n, evtType, entityKind, entityID)
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

// --- serve ---

func serveCmd() *cobra.Command {
	var addr, basePath string
	var allowLegacyActor bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
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
			cfg, err := app.Bootstrap(cmd.Context(), workspace, r)
			if err != nil {
				return err
			}
			e := engine.New(conn, cfg)
			authCfg := server.AuthConfig{
				JWTSecret:              os.Getenv("REQLINE_JWT_SECRET"),
				AllowLegacyActorHeader: allowLegacyActor,
			}
			if authCfg.JWTSecret == "" && !allowLegacyActor {
				return fmt.Errorf("REQLINE_JWT_SECRET is required for bearer auth (or pass --allow-legacy-actor for local use)")
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
			fmt.Printf("Serving Reqline API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)\n", addr, basePath, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v1", "API base path")
	cmd.Flags().BoolVar(&allowLegacyActor, "allow-legacy-actor", false, "accept X-Actor-Id without auth (local only)")
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
	cfg, err := app.Bootstrap(ctx, workspace, r)
	if err != nil {
		return err
	}
	e := engine.New(conn, cfg)
	return fn(ctx, e)
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

// resolveRequest accepts either a request id or a request number.
func resolveRequest(ctx context.Context, e engine.Engine, ref string) (domain.Request, error) {
	req, err := e.Repo.GetRequest(ctx, ref)
	if err == nil {
		return req, nil
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return req, err
	}
	return e.Repo.GetRequestByNumber(ctx, ref)
}

func printTicketTable(title string, tickets []engine.QueueTicket) {
	fmt.Println(title + ":")
	if len(tickets) == 0 {
		fmt.Println("  (none)")
		return
	}
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"Number", "Title", "Stage", "Pos", "Total", "Urgency", "Scope"})
	for _, t := range tickets {
		tw.AppendRow(table.Row{
			t.Request.RequestNumber, t.Request.Title, t.Entry.Stage,
			t.Entry.Position, t.Entry.Total, t.Entry.Urgency,
			t.Entry.Scope.Department + " / " + t.Entry.Scope.ExecutorType,
		})
	}
	tw.Render()
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

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if v := strings.TrimSpace(p); v != "" {
			out = append(out, v)
		}
	}
	return out
}
