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

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"taskledger/internal/app"
	"taskledger/internal/config"
	"taskledger/internal/db"
	"taskledger/internal/domain"
	"taskledger/internal/engine"
	"taskledger/internal/repo"
	"taskledger/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "tl",
	Short: "Taskledger CLI",
	Long: `Taskledger tracks tasks with role-gated mutations and an immutable audit trail.
Core concepts:
- Users: ADMIN manages the board; CUSTOMER works tasks they created or were assigned.
- Tasks: work items with priority, status (TODO -> IN_PROGRESS -> DONE), tags, and a due date.
- SubTasks: checklist items under a task.
- Comments: discussion on a task, visible to anyone who can see the task.
- Task log: every mutation appends an entry; nothing is ever rewritten.
- Deletes are soft: rows stay in the database and drop out of listings.`,
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
	viper.SetEnvPrefix("TASKLEDGER")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "", "acting user id")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
}

func registerCommands() {
	rootCmd.AddCommand(userCmd())
	rootCmd.AddCommand(taskCmd())
	rootCmd.AddCommand(subtaskCmd())
	rootCmd.AddCommand(commentCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(apikeyCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(serveCmd())
}

func userCmd() *cobra.Command {
	user := &cobra.Command{Use: "user", Short: "Manage users"}
	user.AddCommand(userAddCmd())
	user.AddCommand(userListCmd())
	return user
}

func userAddCmd() *cobra.Command {
	var id, email, fullName, role string
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			if email == "" {
				return fmt.Errorf("--email required")
			}
			r := domain.Role(strings.ToUpper(role))
			if !r.Valid() {
				return fmt.Errorf("--role must be ADMIN or CUSTOMER")
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				if id == "" {
					id = uuid.New().String()
				}
				now := time.Now().UTC().Format(time.RFC3339)
				u := domain.User{
					ID:        id,
					Email:     email,
					FullName:  fullName,
					Role:      r,
					Active:    true,
					CreatedAt: now,
					UpdatedAt: now,
				}
				if err := a.Repo.InsertUser(ctx, u); err != nil {
					return err
				}
				return printJSONOrValue(u)
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "user id (random UUID if omitted)")
	cmd.Flags().StringVar(&email, "email", "", "email address")
	cmd.Flags().StringVar(&fullName, "name", "", "full name")
	cmd.Flags().StringVar(&role, "role", "CUSTOMER", "role (ADMIN or CUSTOMER)")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func userListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List users",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				users, err := a.Repo.ListUsers(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(users)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Email", "Name", "Role", "Active"})
				for _, u := range users {
					tw.AppendRow(table.Row{u.ID, u.Email, u.FullName, u.Role, u.Active})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func taskCmd() *cobra.Command {
	task := &cobra.Command{
		Use:   "task",
		Short: "Manage tasks",
		Long:  "Tasks flow TODO -> IN_PROGRESS -> DONE. Admins create, patch, delete, and assign; customers work the tasks they created or were assigned.",
	}
	task.AddCommand(taskCreateCmd())
	task.AddCommand(taskListCmd())
	task.AddCommand(taskShowCmd())
	task.AddCommand(taskPatchCmd())
	task.AddCommand(taskAssignCmd())
	task.AddCommand(taskStatusCmd())
	task.AddCommand(taskDeleteCmd())
	return task
}

func taskCreateCmd() *cobra.Command {
	var opts engine.TaskCreateOptions
	var priority string
	var tags []string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a task",
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.Title == "" {
				return fmt.Errorf("--title required")
			}
			opts.Priority = domain.TaskPriority(strings.ToUpper(priority))
			opts.Tags = tags
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				t, err := a.Engine.CreateTask(ctx, actorID(), opts)
				if err != nil {
					return err
				}
				return printJSONOrValue(t)
			})
		},
	}
	cmd.Flags().StringVar(&opts.Title, "title", "", "title")
	cmd.Flags().StringVar(&opts.Description, "description", "", "description")
	cmd.Flags().StringVar(&priority, "priority", "MEDIUM", "priority (LOW, MEDIUM, HIGH)")
	cmd.Flags().StringVar(&opts.DueDate, "due", "", "due date (RFC3339)")
	cmd.Flags().StringArrayVar(&tags, "tag", []string{}, "tag (repeatable)")
	cmd.Flags().StringVar(&opts.AssigneeID, "assignee-id", "", "assignee id")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func taskListCmd() *cobra.Command {
	var filters repo.TaskFilters
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				tasks, err := a.Engine.ListTasks(ctx, actorID(), filters)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(tasks)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Title", "Status", "Priority", "Assignee", "Due"})
				for _, t := range tasks {
					assignee := ""
					if t.AssigneeID != nil {
						assignee = *t.AssigneeID
					}
					due := ""
					if t.DueDate != nil {
						due = *t.DueDate
					}
					tw.AppendRow(table.Row{t.ID, t.Title, t.Status, t.Priority, assignee, due})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&filters.Title, "title", "", "title substring")
	cmd.Flags().StringVar(&filters.Status, "status", "", "status filter")
	cmd.Flags().StringVar(&filters.Priority, "priority", "", "priority filter")
	cmd.Flags().StringVar(&filters.AssigneeID, "assignee-id", "", "assignee filter")
	cmd.Flags().StringVar(&filters.CreatedBy, "created-by", "", "creator filter")
	cmd.Flags().StringVar(&filters.Tag, "tag", "", "tag filter")
	cmd.Flags().BoolVar(&filters.IncludeDeleted, "include-deleted", false, "include soft-deleted tasks")
	cmd.Flags().IntVar(&filters.Limit, "limit", 50, "max results")
	return cmd
}

func taskShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a task with subtasks, comments, and log",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				detail, err := a.Engine.GetTaskDetail(ctx, actorID(), args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(detail)
				}
				t := detail.Task
				fmt.Printf("%s  %s [%s/%s]\n", t.ID, t.Title, t.Status, t.Priority)
				if t.Description != "" {
					fmt.Println(t.Description)
				}
				if t.AssigneeID != nil {
					fmt.Printf("Assignee: %s\n", *t.AssigneeID)
				}
				if len(detail.SubTasks) > 0 {
					fmt.Println("Subtasks:")
					for _, st := range detail.SubTasks {
						mark := " "
						if st.Done {
							mark = "x"
						}
						fmt.Printf("  [%s] %s  %s\n", mark, st.ID, st.Title)
					}
				}
				if len(detail.Comments) > 0 {
					fmt.Println("Comments:")
					for _, c := range detail.Comments {
						fmt.Printf("  %s %s: %s\n", c.CreatedAt, c.AuthorID, c.Content)
					}
				}
				if len(detail.Logs) > 0 {
					fmt.Println("Log:")
					for _, l := range detail.Logs {
						field := ""
						if l.Field != nil {
							field = " " + *l.Field
						}
						fmt.Printf("  %s %s %s%s\n", l.CreatedAt, l.ActorID, l.Action, field)
					}
				}
				return nil
			})
		},
	}
	return cmd
}

func taskPatchCmd() *cobra.Command {
	var title, description, priority, due string
	var tags []string
	cmd := &cobra.Command{
		Use:   "patch <id>",
		Short: "Patch task fields",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var patch engine.TaskPatch
			if cmd.Flags().Changed("title") {
				patch.Title = &title
			}
			if cmd.Flags().Changed("description") {
				patch.Description = &description
			}
			if cmd.Flags().Changed("priority") {
				p := domain.TaskPriority(strings.ToUpper(priority))
				patch.Priority = &p
			}
			if cmd.Flags().Changed("due") {
				patch.DueDate = &due
			}
			if cmd.Flags().Changed("tag") {
				patch.Tags = &tags
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				t, err := a.Engine.PatchTask(ctx, actorID(), args[0], patch)
				if err != nil {
					return err
				}
				return printJSONOrValue(t)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "title")
	cmd.Flags().StringVar(&description, "description", "", "description")
	cmd.Flags().StringVar(&priority, "priority", "", "priority (LOW, MEDIUM, HIGH)")
	cmd.Flags().StringVar(&due, "due", "", "due date (RFC3339)")
	cmd.Flags().StringArrayVar(&tags, "tag", []string{}, "replacement tag set (repeatable)")
	return cmd
}

func taskAssignCmd() *cobra.Command {
	var assignee string
	cmd := &cobra.Command{
		Use:   "assign <id>",
		Short: "Assign a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if assignee == "" {
				return fmt.Errorf("--assignee-id required")
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				t, err := a.Engine.AssignTask(ctx, actorID(), args[0], assignee)
				if err != nil {
					return err
				}
				return printJSONOrValue(t)
			})
		},
	}
	cmd.Flags().StringVar(&assignee, "assignee-id", "", "assignee id")
	_ = cmd.MarkFlagRequired("assignee-id")
	return cmd
}

func taskStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status <id> <status>",
		Short: "Update task status",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			status := domain.TaskStatus(strings.ToUpper(args[1]))
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				t, err := a.Engine.UpdateStatus(ctx, actorID(), args[0], status)
				if err != nil {
					return err
				}
				return printJSONOrValue(t)
			})
		},
	}
	return cmd
}

func taskDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Soft-delete a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				return a.Engine.SoftDeleteTask(ctx, actorID(), args[0])
			})
		},
	}
	return cmd
}

func subtaskCmd() *cobra.Command {
	st := &cobra.Command{Use: "subtask", Short: "Manage subtasks"}
	st.AddCommand(subtaskAddCmd())
	st.AddCommand(subtaskPatchCmd())
	st.AddCommand(subtaskDeleteCmd())
	return st
}

func subtaskAddCmd() *cobra.Command {
	var taskID, title string
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a subtask",
		RunE: func(cmd *cobra.Command, args []string) error {
			if taskID == "" || title == "" {
				return fmt.Errorf("--task and --title required")
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				st, err := a.Engine.CreateSubTask(ctx, actorID(), taskID, title)
				if err != nil {
					return err
				}
				return printJSONOrValue(st)
			})
		},
	}
	cmd.Flags().StringVar(&taskID, "task", "", "parent task id")
	cmd.Flags().StringVar(&title, "title", "", "title")
	_ = cmd.MarkFlagRequired("task")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func subtaskPatchCmd() *cobra.Command {
	var taskID, title string
	var done bool
	cmd := &cobra.Command{
		Use:   "patch <subtask-id>",
		Short: "Patch a subtask",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if taskID == "" {
				return fmt.Errorf("--task required")
			}
			var patch engine.SubTaskPatch
			if cmd.Flags().Changed("title") {
				patch.Title = &title
			}
			if cmd.Flags().Changed("done") {
				patch.Done = &done
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				st, err := a.Engine.PatchSubTask(ctx, actorID(), taskID, args[0], patch)
				if err != nil {
					return err
				}
				return printJSONOrValue(st)
			})
		},
	}
	cmd.Flags().StringVar(&taskID, "task", "", "parent task id")
	cmd.Flags().StringVar(&title, "title", "", "title")
	cmd.Flags().BoolVar(&done, "done", false, "done flag")
	_ = cmd.MarkFlagRequired("task")
	return cmd
}

func subtaskDeleteCmd() *cobra.Command {
	var taskID string
	cmd := &cobra.Command{
		Use:   "delete <subtask-id>",
		Short: "Soft-delete a subtask",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if taskID == "" {
				return fmt.Errorf("--task required")
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				return a.Engine.SoftDeleteSubTask(ctx, actorID(), taskID, args[0])
			})
		},
	}
	cmd.Flags().StringVar(&taskID, "task", "", "parent task id")
	_ = cmd.MarkFlagRequired("task")
	return cmd
}

func commentCmd() *cobra.Command {
	c := &cobra.Command{Use: "comment", Short: "Manage comments"}
	c.AddCommand(commentAddCmd())
	return c
}

func commentAddCmd() *cobra.Command {
	var taskID, content string
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a comment to a task",
		RunE: func(cmd *cobra.Command, args []string) error {
			if taskID == "" || content == "" {
				return fmt.Errorf("--task and --content required")
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				c, err := a.Engine.AddComment(ctx, actorID(), taskID, content)
				if err != nil {
					return err
				}
				return printJSONOrValue(c)
			})
		},
	}
	cmd.Flags().StringVar(&taskID, "task", "", "task id")
	cmd.Flags().StringVar(&content, "content", "", "comment text")
	_ = cmd.MarkFlagRequired("task")
	_ = cmd.MarkFlagRequired("content")
	return cmd
}

func logCmd() *cobra.Command {
	l := &cobra.Command{Use: "log", Short: "Inspect the task log"}
	l.AddCommand(logTailCmd())
	return l
}

func logTailCmd() *cobra.Command {
	var n int
	var action string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail recent log entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				logs, err := a.Repo.LatestLogs(ctx, n, action)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(logs)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"TS", "Task", "Actor", "Action", "Field"})
				for _, l := range logs {
					field := ""
					if l.Field != nil {
						field = *l.Field
					}
					tw.AppendRow(table.Row{l.CreatedAt, l.TaskID, l.ActorID, l.Action, field})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of entries")
	cmd.Flags().StringVar(&action, "action", "", "action filter")
	return cmd
}

func apikeyCmd() *cobra.Command {
	k := &cobra.Command{Use: "apikey", Short: "Manage API keys"}
	k.AddCommand(apikeyCreateCmd())
	k.AddCommand(apikeyListCmd())
	k.AddCommand(apikeyDeleteCmd())
	return k
}

func apikeyCreateCmd() *cobra.Command {
	var userID, name string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an API key (prints the raw key once)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if userID == "" {
				return fmt.Errorf("--user required")
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				if _, err := a.Repo.GetUser(ctx, userID); err != nil {
					return err
				}
				raw := "tlk_" + strings.ReplaceAll(uuid.New().String()+uuid.New().String(), "-", "")
				key := domain.APIKey{
					ID:        uuid.New().String(),
					UserID:    userID,
					Name:      name,
					KeyHash:   repo.HashAPIKey(raw),
					CreatedAt: time.Now().UTC().Format(time.RFC3339),
				}
				if err := a.Repo.InsertAPIKey(ctx, key); err != nil {
					return err
				}
				return printJSONOrValue(map[string]string{
					"id":      key.ID,
					"user_id": key.UserID,
					"name":    key.Name,
					"key":     raw,
				})
			})
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user id the key acts as")
	cmd.Flags().StringVar(&name, "name", "", "key label")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func apikeyListCmd() *cobra.Command {
	var userID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				keys, err := a.Repo.ListAPIKeys(ctx, userID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(keys)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "User", "Name", "Created"})
				for _, k := range keys {
					tw.AppendRow(table.Row{k.ID, k.UserID, k.Name, k.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "filter by user id")
	return cmd
}

func apikeyDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				return a.Repo.DeleteAPIKey(ctx, args[0])
			})
		},
	}
	return cmd
}

func configCmd() *cobra.Command {
	c := &cobra.Command{Use: "config", Short: "Manage workspace config"}
	c.AddCommand(configInitCmd())
	c.AddCommand(configShowCmd())
	c.AddCommand(configCheckCmd())
	return c
}

func configInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a starter taskledger.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			path := config.Path(workspace)
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Printf("Wrote %s\n", path)
			return nil
		},
	}
	return cmd
}

func configShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show effective config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadOptional(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			return printJSON(cfg)
		},
	}
	return cmd
}

func configCheckCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Validate the config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				cfg *config.Config
				err error
			)
			if file != "" {
				cfg, err = config.FromFile(file)
			} else {
				file = config.Path(viper.GetString("workspace"))
				cfg, err = config.Load(viper.GetString("workspace"))
			}
			if err != nil {
				return err
			}
			fmt.Printf("%s is valid (%d webhook(s), %d seed user(s))\n", file, len(cfg.Webhooks), len(cfg.SeedUsers))
			return nil
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "validate this file instead of the workspace config")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				if !cmd.Flags().Changed("addr") && a.Config.Server.Addr != "" {
					addr = a.Config.Server.Addr
				}
				if !cmd.Flags().Changed("base-path") && a.Config.Server.BasePath != "" {
					basePath = a.Config.Server.BasePath
				}
				authCfg := server.AuthConfig{
					JWTSecret:        a.Config.Auth.JWTSecret,
					AllowActorHeader: a.Config.Auth.AllowActorHeader,
					DevLogin:         a.Config.Auth.DevLogin,
				}
				if env := os.Getenv("TASKLEDGER_JWT_SECRET"); env != "" {
					authCfg.JWTSecret = env
				}
				if authCfg.JWTSecret == "" && !authCfg.AllowActorHeader {
					return fmt.Errorf("no credentials configured: set auth.jwt_secret (or TASKLEDGER_JWT_SECRET), or enable auth.allow_actor_header for development")
				}
				handler, err := server.New(server.Config{Engine: a.Engine, BasePath: basePath, Auth: authCfg})
				if err != nil {
					return err
				}
				srv := &http.Server{Addr: addr, Handler: handler}
				shutdownDone := make(chan struct{})
				go func() {
					defer close(shutdownDone)
					<-ctx.Done()
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					srv.Shutdown(shutdownCtx)
				}()
				fmt.Printf("Serving Taskledger API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)\n", addr, basePath, basePath)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				// ListenAndServe returns as soon as Shutdown begins; wait for
				// in-flight handlers to drain before withApp closes the app.
				<-shutdownDone
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v1", "API base path")
	return cmd
}

// --- helpers ---

func withApp(ctx context.Context, fn func(context.Context, *app.App) error) error {
	a, err := app.Load(ctx, viper.GetString("workspace"))
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func actorID() string {
	return viper.GetString("actor-id")
}

func printJSONOrValue(v any) error {
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
