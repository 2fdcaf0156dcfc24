package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"clearline/internal/config"
	"clearline/internal/db"
	"clearline/internal/engine"
	"clearline/internal/migrate"
	"clearline/internal/repo"
	"clearline/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "cl",
	Short: "Clearline CLI",
	Long: `Clearline tracks customs-clearance projects from arrival to delivery.
Creating a project cascades into a shipment, its fixed tracking stages and
auto-assigned tasks. Assignment walks three tiers: explicit rules, default
role mappings, then the project team.`,
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
	viper.SetEnvPrefix("CLEARLINE")
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
	rootCmd.AddCommand(projectCmd())
	rootCmd.AddCommand(taskCmd())
	rootCmd.AddCommand(ruleCmd())
	rootCmd.AddCommand(userCmd())
	rootCmd.AddCommand(apikeyCmd())
	rootCmd.AddCommand(trackCmd())
	rootCmd.AddCommand(catalogCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(serveCmd())
}

func projectCmd() *cobra.Command {
	prj := &cobra.Command{Use: "project", Short: "Manage clearance projects"}
	prj.AddCommand(projectCreateCmd())
	prj.AddCommand(projectListCmd())
	prj.AddCommand(projectShowCmd())
	prj.AddCommand(projectUpdateCmd())
	prj.AddCommand(projectDeleteCmd())
	prj.AddCommand(projectConfigCmd())
	return prj
}

func projectCreateCmd() *cobra.Command {
	var opts engine.ProjectCreateOptions
	var startDate, endDate, activitiesJSON string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create project and run cascade",
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.CustomerName == "" {
				return fmt.Errorf("--customer required")
			}
			if startDate != "" {
				opts.StartDate = &startDate
			}
			if endDate != "" {
				opts.EndDate = &endDate
			}
			if activitiesJSON != "" {
				if err := json.Unmarshal([]byte(activitiesJSON), &opts.Activities); err != nil {
					return fmt.Errorf("invalid --activities-json: %w", err)
				}
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				res, err := e.CreateProject(ctx, viper.GetString("actor-id"), opts)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(res)
				}
				fmt.Printf("Project %s created\n", res.Project.ID)
				if res.Cascade.Shipment != nil {
					fmt.Printf("Shipment: %s (%s), %d stages\n",
						res.Cascade.Shipment.TrackingNumber, res.Cascade.Shipment.Type, res.Cascade.StagesCreated)
				}
				fmt.Printf("Tasks: %d created, %d assigned\n", res.Cascade.TasksCreated, res.Cascade.TasksAssigned)
				for _, a := range res.Cascade.Assignments {
					who := "-"
					if a.UserID != nil {
						who = *a.UserID
					}
					fmt.Printf("  %s -> %s (%s)\n", a.Title, who, a.Reason)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&opts.ID, "id", "", "project id (generated if omitted)")
	cmd.Flags().StringVar(&opts.CustomerName, "customer", "", "customer name")
	cmd.Flags().StringVar(&opts.BLAWBNumber, "bl-awb", "", "BL/AWB number")
	cmd.Flags().StringArrayVar(&opts.Systems, "system", []string{}, "shipment system tag (repeatable)")
	cmd.Flags().StringVar(&activitiesJSON, "activities-json", "", "activities as a JSON array")
	cmd.Flags().StringArrayVar(&opts.Team, "team", []string{}, "team member user id (repeatable)")
	cmd.Flags().StringVar(&opts.OriginPort, "origin", "", "origin port")
	cmd.Flags().StringVar(&opts.DestinationPort, "destination", "", "destination port")
	cmd.Flags().StringVar(&startDate, "start-date", "", "start date (RFC3339)")
	cmd.Flags().StringVar(&endDate, "end-date", "", "end date (RFC3339)")
	cmd.Flags().StringVar(&opts.Priority, "priority", "", "priority (LOW, MEDIUM, HIGH, URGENT)")
	cmd.Flags().BoolVar(&opts.SkipCascade, "skip-cascade", false, "create project only, no shipment or tasks")
	_ = cmd.MarkFlagRequired("customer")
	return cmd
}

func projectListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List projects",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListProjects(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Customer", "Status", "Priority", "Created"})
				for _, p := range items {
					tw.AppendRow(table.Row{p.ID, p.CustomerName, p.Status, p.Priority, p.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func projectShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a project with its shipment and stages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				p, err := r.GetProject(ctx, args[0])
				if err != nil {
					return err
				}
				out := map[string]any{"project": p}
				if s, err := r.GetShipmentByProject(ctx, p.ID); err == nil {
					out["shipment"] = s
					if stages, err := r.ListStagesByShipment(ctx, s.ID); err == nil {
						out["stages"] = stages
					}
				}
				return printJSONOrIndent(out)
			})
		},
	}
	return cmd
}

func projectUpdateCmd() *cobra.Command {
	var status, priority string
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update project status or priority",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				var sPtr, pPtr *string
				if cmd.Flags().Changed("status") {
					sPtr = &status
				}
				if cmd.Flags().Changed("priority") {
					pPtr = &priority
				}
				p, err := e.UpdateProject(ctx, viper.GetString("actor-id"), args[0], sPtr, pPtr)
				if err != nil {
					return err
				}
				return printJSONOrIndent(p)
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "status")
	cmd.Flags().StringVar(&priority, "priority", "", "priority")
	return cmd
}

func projectDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a project and everything it cascaded",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.DeleteProject(ctx, viper.GetString("actor-id"), args[0])
			})
		},
	}
	return cmd
}

func projectConfigCmd() *cobra.Command {
	cfg := &cobra.Command{Use: "config", Short: "Manage per-project cascade config"}

	show := &cobra.Command{
		Use:   "show <project-id>",
		Short: "Show stored project config",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				c, err := r.GetProjectConfig(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrIndent(c)
			})
		},
	}

	var filePath string
	imp := &cobra.Command{
		Use:   "import <project-id>",
		Short: "Import project config from YAML into the DB",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := config.FromFile(filePath)
			if err != nil {
				return err
			}
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				if err := r.UpsertProjectConfig(ctx, args[0], c); err != nil {
					return err
				}
				return printJSONOrIndent(c)
			})
		},
	}
	imp.Flags().StringVar(&filePath, "file", "", "path to YAML config")
	_ = imp.MarkFlagRequired("file")

	cfg.AddCommand(show)
	cfg.AddCommand(imp)
	return cfg
}

func taskCmd() *cobra.Command {
	task := &cobra.Command{Use: "task", Short: "Manage tasks"}
	task.AddCommand(taskListCmd())
	task.AddCommand(taskGetCmd())
	task.AddCommand(taskUpdateCmd())
	task.AddCommand(taskSyncCmd())
	return task
}

func taskListCmd() *cobra.Command {
	var f repo.TaskFilters
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				tasks, err := r.ListTasks(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(tasks)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Title", "Category", "Status", "Assignees", "Due"})
				for _, t := range tasks {
					due := ""
					if t.DueDate != nil {
						due = *t.DueDate
					}
					tw.AppendRow(table.Row{t.ID, t.Title, t.Category, t.Status, strings.Join(t.AssignedTo, ","), due})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.ProjectID, "project", "", "project id filter")
	cmd.Flags().StringVar(&f.Status, "status", "", "status filter")
	cmd.Flags().StringVar(&f.Category, "category", "", "category filter")
	cmd.Flags().StringVar(&f.AssigneeID, "assignee", "", "assignee filter")
	return cmd
}

func taskGetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Get task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				t, err := r.GetTask(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrIndent(t)
			})
		},
	}
	return cmd
}

func taskUpdateCmd() *cobra.Command {
	var status, priority, title string
	var assignees []string
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				var patch engine.TaskPatch
				if cmd.Flags().Changed("status") {
					patch.Status = &status
				}
				if cmd.Flags().Changed("priority") {
					patch.Priority = &priority
				}
				if cmd.Flags().Changed("title") {
					patch.Title = &title
				}
				if cmd.Flags().Changed("assign") {
					patch.AssignedTo = assignees
				}
				t, err := e.UpdateTask(ctx, viper.GetString("actor-id"), args[0], patch)
				if err != nil {
					return err
				}
				return printJSONOrIndent(t)
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "new status")
	cmd.Flags().StringVar(&priority, "priority", "", "new priority")
	cmd.Flags().StringVar(&title, "title", "", "new title")
	cmd.Flags().StringArrayVar(&assignees, "assign", []string{}, "assignee user id (repeatable, replaces the list)")
	return cmd
}

func taskSyncCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync <project-id>",
		Short: "Regenerate auto-generated tasks for a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				res, err := e.SyncTasks(ctx, viper.GetString("actor-id"), args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(res)
				}
				fmt.Printf("Deleted %d, created %d, assigned %d\n", res.TasksDeleted, res.TasksCreated, res.TasksAssigned)
				return nil
			})
		},
	}
	return cmd
}

func ruleCmd() *cobra.Command {
	rule := &cobra.Command{Use: "rule", Short: "Manage assignment rules"}

	var category, userID, roleTarget string
	var priority int
	add := &cobra.Command{
		Use:   "add",
		Short: "Add assignment rule",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				opts := engine.RuleCreateOptions{Category: category, Priority: priority}
				if userID != "" {
					opts.UserID = &userID
				}
				if roleTarget != "" {
					opts.RoleTarget = &roleTarget
				}
				r, err := e.CreateRule(ctx, viper.GetString("actor-id"), opts)
				if err != nil {
					return err
				}
				return printJSONOrIndent(r)
			})
		},
	}
	add.Flags().StringVar(&category, "category", "", "task category")
	add.Flags().StringVar(&userID, "user", "", "assign directly to this user id")
	add.Flags().StringVar(&roleTarget, "role", "", "assign to least-loaded user with this role")
	add.Flags().IntVar(&priority, "priority", 0, "rule priority (lower runs first)")
	_ = add.MarkFlagRequired("category")

	var listCategory string
	list := &cobra.Command{
		Use:   "list",
		Short: "List assignment rules",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				rules, err := r.ListRules(ctx, listCategory)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(rules)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Category", "User", "Role", "Priority", "Active"})
				for _, rl := range rules {
					user, role := "", ""
					if rl.UserID != nil {
						user = *rl.UserID
					}
					if rl.RoleTarget != nil {
						role = *rl.RoleTarget
					}
					tw.AppendRow(table.Row{rl.ID, rl.Category, user, role, rl.Priority, rl.Active})
				}
				tw.Render()
				return nil
			})
		},
	}
	list.Flags().StringVar(&listCategory, "category", "", "category filter")

	remove := &cobra.Command{
		Use:   "remove <id>",
		Short: "Remove assignment rule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.DeleteRule(ctx, viper.GetString("actor-id"), args[0])
			})
		},
	}

	rule.AddCommand(add)
	rule.AddCommand(list)
	rule.AddCommand(remove)
	return rule
}

func userCmd() *cobra.Command {
	user := &cobra.Command{Use: "user", Short: "Manage users"}

	var id, name, role string
	add := &cobra.Command{
		Use:   "add",
		Short: "Add user",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				u, err := e.CreateUser(ctx, viper.GetString("actor-id"), id, name, role)
				if err != nil {
					return err
				}
				return printJSONOrIndent(u)
			})
		},
	}
	add.Flags().StringVar(&id, "id", "", "user id (generated if omitted)")
	add.Flags().StringVar(&name, "name", "", "display name")
	add.Flags().StringVar(&role, "role", "", "role (ADMIN, MANAGER, CLERK, AGENT, ACCOUNTANT)")
	_ = add.MarkFlagRequired("name")
	_ = add.MarkFlagRequired("role")

	var roleFilter string
	list := &cobra.Command{
		Use:   "list",
		Short: "List users",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				users, err := r.ListUsers(ctx, roleFilter)
				if err != nil {
					return err
				}
				return printJSONOrIndent(users)
			})
		},
	}
	list.Flags().StringVar(&roleFilter, "role", "", "role filter")

	loads := &cobra.Command{
		Use:   "loads",
		Short: "Show open task count per user",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.UserLoads(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Role", "Open tasks"})
				for _, ul := range items {
					tw.AppendRow(table.Row{ul.User.ID, ul.User.Name, ul.User.Role, ul.Load})
				}
				tw.Render()
				return nil
			})
		},
	}

	remove := &cobra.Command{
		Use:   "remove <id>",
		Short: "Remove user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.DeleteUser(ctx, viper.GetString("actor-id"), args[0])
			})
		},
	}

	user.AddCommand(add)
	user.AddCommand(list)
	user.AddCommand(loads)
	user.AddCommand(remove)
	return user
}

func apikeyCmd() *cobra.Command {
	key := &cobra.Command{Use: "apikey", Short: "Manage API keys"}

	var forActor, name string
	create := &cobra.Command{
		Use:   "create",
		Short: "Create API key (raw key printed once)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				k, raw, err := e.CreateAPIKey(ctx, viper.GetString("actor-id"), forActor, name)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"id": k.ID, "actor_id": k.ActorID, "key": raw})
				}
				fmt.Printf("Key %s for %s: %s\n", k.ID, k.ActorID, raw)
				return nil
			})
		},
	}
	create.Flags().StringVar(&forActor, "actor", "", "actor the key authenticates (defaults to --actor-id)")
	create.Flags().StringVar(&name, "name", "", "key label")

	list := &cobra.Command{
		Use:   "list",
		Short: "List API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				keys, err := r.ListAPIKeys(ctx)
				if err != nil {
					return err
				}
				return printJSONOrIndent(keys)
			})
		},
	}

	revoke := &cobra.Command{
		Use:   "revoke <id>",
		Short: "Revoke API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				return r.DeleteAPIKey(ctx, args[0])
			})
		},
	}

	key.AddCommand(create)
	key.AddCommand(list)
	key.AddCommand(revoke)
	return key
}

func trackCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "track <slug>",
		Short: "Show public tracking view for a shipment slug",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				s, err := r.GetShipmentBySlug(ctx, args[0])
				if err != nil {
					return err
				}
				stages, err := r.ListStagesByShipment(ctx, s.ID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"shipment": s, "stages": stages})
				}
				fmt.Printf("%s (%s) %s\n", s.TrackingNumber, s.Type, s.Status)
				for _, st := range stages {
					marker := " "
					switch st.Status {
					case "COMPLETED":
						marker = "x"
					case "IN_PROGRESS":
						marker = ">"
					}
					fmt.Printf("  [%s] %s\n", marker, st.StageType)
				}
				return nil
			})
		},
	}
	return cmd
}

func catalogCmd() *cobra.Command {
	var shipmentType string
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Show suggested clearance tasks per stage",
		RunE: func(cmd *cobra.Command, args []string) error {
			catalog, ok := engine.StageCatalog[strings.ToUpper(shipmentType)]
			if !ok {
				return fmt.Errorf("unknown shipment type %q (IMPORT or EXPORT)", shipmentType)
			}
			if viper.GetBool("json") {
				return printJSON(catalog)
			}
			tw := table.NewWriter()
			tw.SetOutputMirror(os.Stdout)
			tw.AppendHeader(table.Row{"Stage", "Task"})
			stages := make([]string, 0, len(catalog))
			for stage := range catalog {
				stages = append(stages, stage)
			}
			sort.Strings(stages)
			for _, stage := range stages {
				for _, t := range catalog[stage] {
					tw.AppendRow(table.Row{stage, t})
				}
			}
			tw.Render()
			return nil
		},
	}
	cmd.Flags().StringVar(&shipmentType, "type", "IMPORT", "shipment type (IMPORT or EXPORT)")
	return cmd
}

func logCmd() *cobra.Command {
	logRoot := &cobra.Command{Use: "log", Short: "Event log"}

	var n int
	var projectID, evtType, entityKind, entityID string
	var cursor int64
	tail := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				events, err := r.LatestEvents(ctx, n, cursor, projectID, evtType, entityKind, entityID)
				if err != nil {
					return err
				}
				return printJSONOrIndent(events)
			})
		},
	}
	tail.Flags().IntVar(&n, "n", 20, "number of events")
	tail.Flags().StringVar(&projectID, "project", "", "project filter")
	tail.Flags().StringVar(&evtType, "type", "", "event type filter")
	tail.Flags().StringVar(&entityKind, "entity-kind", "", "entity kind")
	tail.Flags().StringVar(&entityID, "entity-id", "", "entity id")
	tail.Flags().Int64Var(&cursor, "cursor", 0, "only events before this id")

	logRoot.AddCommand(tail)
	return logRoot
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	var allowLegacy bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			cfg, err := config.LoadOptional(workspace)
			if err != nil {
				return err
			}
			e := engine.New(conn, cfg)
			authCfg := server.AuthConfig{
				JWTSecret:              os.Getenv("CLEARLINE_JWT_SECRET"),
				AllowLegacyActorHeader: allowLegacy,
			}
			if authCfg.JWTSecret == "" && !allowLegacy {
				return fmt.Errorf("CLEARLINE_JWT_SECRET is required for bearer auth")
			}
			handler, err := server.New(server.Config{Engine: e, BasePath: basePath, Auth: authCfg})
			if err != nil {
				return err
			}
			server.StartWebhooks(e)
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving Clearline API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)\n", addr, basePath, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	cmd.Flags().BoolVar(&allowLegacy, "allow-legacy-actor-header", false, "accept X-Actor-Id without auth (dev only)")
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
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		return err
	}
	return fn(ctx, engine.New(conn, cfg))
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
