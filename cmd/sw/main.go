package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
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

	"sitework/internal/app"
	"sitework/internal/config"
	"sitework/internal/db"
	"sitework/internal/domain"
	"sitework/internal/engine"
	"sitework/internal/repo"
	"sitework/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "sw",
	Short: "Sitework CLI",
	Long: `Sitework schedules construction jobs against a shared resource pool.
Core concepts:
- Workspace: the .sitework directory holding the database; sitework.yml next to it carries project settings and the task catalog.
- Tasks: the externally managed catalog of site activities (foundation works, framing, ...); jobs must link to one.
- Jobs: scheduled work with a time window, a status and an assigned resource list.
- Resources: workers (Human) and machines (Equipment) that jobs draw from.
- Event log: diary of changes, view with 'sw log tail'.`,
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
	viper.SetEnvPrefix("SITEWORK")
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
	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(jobCmd())
	rootCmd.AddCommand(resourceCmd())
	rootCmd.AddCommand(taskCmd())
	rootCmd.AddCommand(apikeyCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(serveCmd())
}

func initCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize a workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			cfgPath := config.Path(workspace)
			if _, err := os.Stat(cfgPath); err == nil {
				return fmt.Errorf("%s already exists", cfgPath)
			}
			if err := os.WriteFile(cfgPath, []byte(config.GenerateDefault(name)), 0o644); err != nil {
				return err
			}
			a, err := app.Bootstrap(cmd.Context(), workspace, viper.GetString("actor-id"))
			if err != nil {
				return err
			}
			defer a.Close()
			fmt.Printf("Initialized workspace: %s, database %s\n", cfgPath, db.Path(workspace))
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "site", "project name")
	return cmd
}

func jobCmd() *cobra.Command {
	job := &cobra.Command{Use: "job", Short: "Manage jobs"}
	job.AddCommand(jobCreateCmd())
	job.AddCommand(jobListCmd())
	job.AddCommand(jobShowCmd())
	job.AddCommand(jobUpdateCmd())
	job.AddCommand(jobDeleteCmd())
	return job
}

func jobCreateCmd() *cobra.Command {
	var title, description, taskID, start, end, status string
	var humans, equipment []string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a job",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				in := engine.JobInput{
					Title:             &title,
					TaskID:            &taskID,
					StartTime:         &start,
					EndTime:           &end,
					Status:            &status,
					AssignedHumans:    humans,
					AssignedEquipment: equipment,
				}
				if cmd.Flags().Changed("description") {
					in.Description = &description
				}
				j, err := e.CreateJob(ctx, in, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(j)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "job title")
	cmd.Flags().StringVar(&description, "description", "", "description")
	cmd.Flags().StringVar(&taskID, "task", "", "catalog task id")
	cmd.Flags().StringVar(&start, "start", "", "start time (RFC3339)")
	cmd.Flags().StringVar(&end, "end", "", "end time (RFC3339)")
	cmd.Flags().StringVar(&status, "status", "scheduled", "job status")
	cmd.Flags().StringArrayVar(&humans, "human", []string{}, "assigned human resource id (repeatable)")
	cmd.Flags().StringArrayVar(&equipment, "equipment", []string{}, "assigned equipment resource id (repeatable)")
	_ = cmd.MarkFlagRequired("title")
	_ = cmd.MarkFlagRequired("task")
	return cmd
}

func jobListCmd() *cobra.Command {
	var status, search string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				jobs, err := e.ListJobs(ctx, status, search)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(jobs)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Title", "Task", "Start", "End", "Status", "Assigned"})
				for _, j := range jobs {
					tw.AppendRow(table.Row{j.ID, j.Title, j.TaskName, j.StartTime, j.EndTime, j.Status, len(j.Assigned)})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "exact status filter")
	cmd.Flags().StringVar(&search, "search", "", "substring over title and description")
	return cmd
}

func jobShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <job-id>",
		Short: "Show a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				j, err := e.Repo.GetJob(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(j)
			})
		},
	}
	return cmd
}

func jobUpdateCmd() *cobra.Command {
	var title, description, taskID, start, end, status string
	var humans, equipment []string
	cmd := &cobra.Command{
		Use:   "update <job-id>",
		Short: "Update a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				var in engine.JobInput
				if cmd.Flags().Changed("title") {
					in.Title = &title
				}
				if cmd.Flags().Changed("description") {
					in.Description = &description
				}
				if cmd.Flags().Changed("task") {
					in.TaskID = &taskID
				}
				if cmd.Flags().Changed("start") {
					in.StartTime = &start
				}
				if cmd.Flags().Changed("end") {
					in.EndTime = &end
				}
				if cmd.Flags().Changed("status") {
					in.Status = &status
				}
				if cmd.Flags().Changed("human") || cmd.Flags().Changed("equipment") {
					in.AssignedHumans = humans
					in.AssignedEquipment = equipment
				}
				j, err := e.UpdateJob(ctx, args[0], in, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(j)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "job title")
	cmd.Flags().StringVar(&description, "description", "", "description")
	cmd.Flags().StringVar(&taskID, "task", "", "catalog task id")
	cmd.Flags().StringVar(&start, "start", "", "start time (RFC3339)")
	cmd.Flags().StringVar(&end, "end", "", "end time (RFC3339)")
	cmd.Flags().StringVar(&status, "status", "", "job status")
	cmd.Flags().StringArrayVar(&humans, "human", []string{}, "assigned human resource id (repeatable, replaces the list)")
	cmd.Flags().StringArrayVar(&equipment, "equipment", []string{}, "assigned equipment resource id (repeatable, replaces the list)")
	return cmd
}

func jobDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <job-id>",
		Short: "Delete a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.DeleteJob(ctx, args[0], viper.GetString("actor-id"))
			})
		},
	}
	return cmd
}

func resourceCmd() *cobra.Command {
	res := &cobra.Command{Use: "resource", Short: "Manage resources"}
	res.AddCommand(resourceCreateCmd())
	res.AddCommand(resourceListCmd())
	res.AddCommand(resourceShowCmd())
	res.AddCommand(resourceUpdateCmd())
	res.AddCommand(resourceDeleteCmd())
	return res
}

func resourceCreateCmd() *cobra.Command {
	var name, rtype, role string
	var unavailable bool
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a resource",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				in := engine.ResourceInput{Name: &name, Type: &rtype}
				if cmd.Flags().Changed("role") {
					in.Role = &role
				}
				if unavailable {
					avail := false
					in.Availability = &avail
				}
				r, err := e.CreateResource(ctx, in, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(r)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "resource name")
	cmd.Flags().StringVar(&rtype, "type", "", "Human or Equipment")
	cmd.Flags().StringVar(&role, "role", "", "role, e.g. crane operator")
	cmd.Flags().BoolVar(&unavailable, "unavailable", false, "mark as unavailable")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("type")
	return cmd
}

func resourceListCmd() *cobra.Command {
	var rtype, search string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List resources",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListResources(ctx, rtype, search)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Type", "Name", "Role", "Available"})
				for _, r := range items {
					tw.AppendRow(table.Row{r.ID, r.Type, r.Name, r.Role, r.Availability})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&rtype, "type", "", "Human or Equipment")
	cmd.Flags().StringVar(&search, "search", "", "substring over name and role")
	return cmd
}

func resourceShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <resource-id>",
		Short: "Show a resource",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				r, err := e.Repo.GetResource(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(r)
			})
		},
	}
	return cmd
}

func resourceUpdateCmd() *cobra.Command {
	var name, role string
	var available, unavailable bool
	cmd := &cobra.Command{
		Use:   "update <resource-id>",
		Short: "Update a resource",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				var in engine.ResourceInput
				if cmd.Flags().Changed("name") {
					in.Name = &name
				}
				if cmd.Flags().Changed("role") {
					in.Role = &role
				}
				if available && unavailable {
					return fmt.Errorf("--available and --unavailable are mutually exclusive")
				}
				if available || unavailable {
					in.Availability = &available
				}
				r, err := e.UpdateResource(ctx, args[0], in, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(r)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "resource name")
	cmd.Flags().StringVar(&role, "role", "", "role")
	cmd.Flags().BoolVar(&available, "available", false, "mark as available")
	cmd.Flags().BoolVar(&unavailable, "unavailable", false, "mark as unavailable")
	return cmd
}

func resourceDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <resource-id>",
		Short: "Delete a resource",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.DeleteResource(ctx, args[0], viper.GetString("actor-id"))
			})
		},
	}
	return cmd
}

func taskCmd() *cobra.Command {
	task := &cobra.Command{Use: "task", Short: "Inspect the task catalog"}
	task.AddCommand(taskListCmd())
	task.AddCommand(taskShowCmd())
	task.AddCommand(taskSyncCmd())
	return task
}

func taskListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List catalog tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListTasks(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Title", "Project"})
				for _, t := range items {
					tw.AppendRow(table.Row{t.ID, t.Title, t.Project})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func taskShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <task-id>",
		Short: "Show a catalog task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.Repo.GetTask(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	return cmd
}

func taskSyncCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Sync the catalog from sitework.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if e.Config == nil {
					return fmt.Errorf("config %s not found; create it with sw init", config.Path(viper.GetString("workspace")))
				}
				return e.SyncTaskCatalog(ctx, viper.GetString("actor-id"))
			})
		},
	}
	return cmd
}

func apikeyCmd() *cobra.Command {
	key := &cobra.Command{Use: "apikey", Short: "Manage API keys"}
	key.AddCommand(apikeyCreateCmd())
	key.AddCommand(apikeyListCmd())
	key.AddCommand(apikeyRevokeCmd())
	return key
}

func apikeyCreateCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an API key for the current actor",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				raw := make([]byte, 24)
				if _, err := rand.Read(raw); err != nil {
					return err
				}
				secret := "sw_" + hex.EncodeToString(raw)
				key := domain.APIKey{
					ID:      uuid.New().String(),
					ActorID: viper.GetString("actor-id"),
					Name:    name,
					KeyHash: repo.HashAPIKey(secret),
				}
				if err := r.InsertAPIKey(ctx, key); err != nil {
					return err
				}
				// The secret is only printed once; we store the hash.
				fmt.Printf("API key created: %s\nSecret (save it now): %s\n", key.ID, secret)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "key label")
	return cmd
}

func apikeyListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List API keys for the current actor",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListAPIKeys(ctx, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
	return cmd
}

func apikeyRevokeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "revoke <key-id>",
		Short: "Revoke an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				return r.DeleteAPIKey(ctx, args[0])
			})
		},
	}
	return cmd
}

func logCmd() *cobra.Command {
	log := &cobra.Command{Use: "log", Short: "Event log"}
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
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				events, err := r.LatestEvents(ctx, repo.EventFilters{
					Type:       evtType,
					EntityKind: entityKind,
					EntityID:   entityID,
					Limit:      n,
				})
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

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			a, err := app.Bootstrap(cmd.Context(), workspace, viper.GetString("actor-id"))
			if err != nil {
				return err
			}
			defer a.Close()
			authCfg := server.AuthConfig{JWTSecret: os.Getenv("SITEWORK_JWT_SECRET")}
			if a.Config != nil {
				if authCfg.JWTSecret == "" {
					authCfg.JWTSecret = a.Config.Server.JWTSecret
				}
				authCfg.AllowAnonymous = a.Config.Server.AllowAnonymous
				if !cmd.Flags().Changed("addr") && a.Config.Server.Addr != "" {
					addr = a.Config.Server.Addr
				}
				if !cmd.Flags().Changed("base-path") && a.Config.Server.BasePath != "" {
					basePath = a.Config.Server.BasePath
				}
			}
			if authCfg.JWTSecret == "" && !authCfg.AllowAnonymous {
				return fmt.Errorf("SITEWORK_JWT_SECRET (or server.jwt_secret) is required unless server.allow_anonymous is set")
			}
			handler, err := server.New(server.Config{Engine: a.Engine, BasePath: basePath, Auth: authCfg})
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
			fmt.Printf("Serving Sitework API on http://%s%s (OpenAPI at /openapi.json, Swagger UI at /docs)\n", addr, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	return cmd
}

// --- helpers ---

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	a, err := app.Bootstrap(ctx, viper.GetString("workspace"), viper.GetString("actor-id"))
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a.Engine)
}

func withRepo(ctx context.Context, fn func(context.Context, repo.Repo) error) error {
	a, err := app.Bootstrap(ctx, viper.GetString("workspace"), viper.GetString("actor-id"))
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a.Engine.Repo)
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
