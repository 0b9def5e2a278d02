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
	"go.uber.org/zap"

	"stagegate/internal/db"
	"stagegate/internal/domain"
	"stagegate/internal/engine"
	"stagegate/internal/migrate"
	"stagegate/internal/notify"
	"stagegate/internal/notify/notifyconfig"
	"stagegate/internal/repo"
	"stagegate/internal/server"
	"stagegate/internal/stage"
)

var rootCmd = &cobra.Command{
	Use:   "sg",
	Short: "Stagegate CLI",
	Long: `Stagegate tracks projects through a fixed stage pipeline with per-stage
records, sign-offs, and event-driven notifications.

- Workspace: the .stagegate directory holding the database; routing config
  lives next to it in stagegate.yml.
- Projects move Ideation -> Feasibility -> Scoping -> Scheduling ->
  Detailed Design -> Development -> Build -> Testing -> Deployed ->
  Completed; Cancelled is reachable from any non-terminal stage.
- Every stage keeps a record created with the project; sign-offs on
  those records fire notification events.
- Notifications route through stagegate.yml entries and through
  admin-managed rules ('sg rule').`,
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
	viper.SetEnvPrefix("STAGEGATE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier")
	rootCmd.PersistentFlags().Bool("verbose", false, "verbose logging")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
}

func registerCommands() {
	rootCmd.AddCommand(projectCmd())
	rootCmd.AddCommand(historyCmd())
	rootCmd.AddCommand(stageCmd())
	rootCmd.AddCommand(noteCmd())
	rootCmd.AddCommand(ruleCmd())
	rootCmd.AddCommand(adminCmd())
	rootCmd.AddCommand(notifyCmd())
	rootCmd.AddCommand(serveCmd())
}

func projectCmd() *cobra.Command {
	prj := &cobra.Command{Use: "project", Short: "Manage projects"}
	prj.AddCommand(projectCreateCmd())
	prj.AddCommand(projectListCmd())
	prj.AddCommand(projectShowCmd())
	prj.AddCommand(projectUpdateCmd())
	prj.AddCommand(projectAdvanceCmd())
	prj.AddCommand(projectCancelCmd())
	prj.AddCommand(projectProgressCmd())
	return prj
}

func projectCreateCmd() *cobra.Command {
	var id, title, deadline, owner string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a project in Ideation with all stage records",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				opts := engine.CreateProjectOptions{
					ID:      id,
					Title:   title,
					OwnerID: owner,
					ActorID: viper.GetString("actor-id"),
				}
				if cmd.Flags().Changed("deadline") {
					opts.Deadline = &deadline
				}
				p, err := e.CreateProject(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "project id (random UUID if omitted)")
	cmd.Flags().StringVar(&title, "title", "", "project title")
	cmd.Flags().StringVar(&deadline, "deadline", "", "deadline (RFC3339 date)")
	cmd.Flags().StringVar(&owner, "owner", "", "owner user id")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func projectListCmd() *cobra.Command {
	var f repo.ProjectFilters
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List projects",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListProjects(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Title", "Status", "Owner", "Deadline"})
				for _, p := range items {
					owner := ""
					if p.OwnerID != nil {
						owner = *p.OwnerID
					}
					deadline := ""
					if p.Deadline != nil {
						deadline = *p.Deadline
					}
					tw.AppendRow(table.Row{p.ID, p.Title, stage.Label(p.Status), owner, deadline})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.Status, "status", "", "status filter")
	cmd.Flags().StringVar(&f.Owner, "owner", "", "owner filter")
	cmd.Flags().IntVar(&f.Limit, "limit", 0, "max rows")
	return cmd
}

func projectShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <project-id>",
		Short: "Show a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				p, err := r.GetProject(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	return cmd
}

func projectUpdateCmd() *cobra.Command {
	var title, deadline, owner string
	cmd := &cobra.Command{
		Use:   "update <project-id>",
		Short: "Update project details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				opts := engine.UpdateProjectOptions{ID: args[0], ActorID: viper.GetString("actor-id")}
				if cmd.Flags().Changed("title") {
					opts.Title = &title
				}
				if cmd.Flags().Changed("deadline") {
					opts.Deadline = &deadline
				}
				if cmd.Flags().Changed("owner") {
					opts.OwnerID = &owner
				}
				p, err := e.UpdateProject(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "new title")
	cmd.Flags().StringVar(&deadline, "deadline", "", "new deadline")
	cmd.Flags().StringVar(&owner, "owner", "", "new owner user id (empty clears)")
	return cmd
}

func projectAdvanceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "advance <project-id>",
		Short: "Advance a project to the next stage",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.Advance(ctx, args[0], viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				fmt.Printf("%s is now %s\n", p.ID, stage.Label(p.Status))
				return nil
			})
		},
	}
	return cmd
}

func projectCancelCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cancel <project-id>",
		Short: "Cancel a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.Cancel(ctx, args[0], viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				fmt.Printf("%s is now %s\n", p.ID, stage.Label(p.Status))
				return nil
			})
		},
	}
	return cmd
}

func projectProgressCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "progress <project-id>",
		Short: "Show per-stage progress",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				rows, err := e.Progress(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(rows)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Stage", "Progress"})
				for _, row := range rows {
					tw.AppendRow(table.Row{row.Label, string(row.Progress)})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func historyCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history <project-id>",
		Short: "Show project history, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListHistory(ctx, args[0], limit)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"When", "Actor", "Description"})
				for _, h := range items {
					actor := "System"
					if h.ActorID != nil {
						actor = *h.ActorID
					}
					tw.AppendRow(table.Row{h.CreatedAt, actor, h.Description})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "max entries")
	return cmd
}

func stageCmd() *cobra.Command {
	st := &cobra.Command{Use: "stage", Short: "Inspect and update stage records"}
	st.AddCommand(stageShowCmd())
	st.AddCommand(stageUpdateCmd())
	st.AddCommand(stageSignoffCmd())
	return st
}

func stageShowCmd() *cobra.Command {
	var projectID, stageName string
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show a stage record with readiness",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := stage.Parse(stageName)
			if err != nil {
				return err
			}
			rt, ok := stage.RecordTypeFor(st)
			if !ok {
				return fmt.Errorf("stage %s has no record", st)
			}
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				rec, err := r.GetStageRecord(ctx, projectID, rt)
				if err != nil {
					return err
				}
				fields, err := domain.DecodeFields(rec)
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]any{
					"record": rec,
					"ready":  fields.Ready(),
				})
			})
		},
	}
	cmd.Flags().StringVar(&projectID, "project", "", "project id")
	cmd.Flags().StringVar(&stageName, "stage", "", "stage name")
	_ = cmd.MarkFlagRequired("project")
	_ = cmd.MarkFlagRequired("stage")
	return cmd
}

func stageUpdateCmd() *cobra.Command {
	var projectID, stageName, fieldsJSON string
	cmd := &cobra.Command{
		Use:   "update",
		Short: "Replace a stage record's fields",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := stage.Parse(stageName)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				rec, err := e.UpdateStageRecord(ctx, projectID, st, fieldsJSON, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(rec)
			})
		},
	}
	cmd.Flags().StringVar(&projectID, "project", "", "project id")
	cmd.Flags().StringVar(&stageName, "stage", "", "stage name")
	cmd.Flags().StringVar(&fieldsJSON, "fields", "", "fields as JSON")
	_ = cmd.MarkFlagRequired("project")
	_ = cmd.MarkFlagRequired("stage")
	_ = cmd.MarkFlagRequired("fields")
	return cmd
}

func stageSignoffCmd() *cobra.Command {
	var projectID, stageName, field, value string
	cmd := &cobra.Command{
		Use:   "signoff",
		Short: "Set a single field on a stage record",
		Long: `Sets one field on the stage record and saves it through the engine, so
sign-off transitions fire their notification events. Values for sign-off
fields are pending, approved, or rejected; boolean fields take true/false.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := stage.Parse(stageName)
			if err != nil {
				return err
			}
			rt, ok := stage.RecordTypeFor(st)
			if !ok {
				return fmt.Errorf("stage %s has no record", st)
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				rec, err := e.Repo.GetStageRecord(ctx, projectID, rt)
				if err != nil {
					return err
				}
				fields := map[string]any{}
				if rec.FieldsJSON != "" {
					if err := json.Unmarshal([]byte(rec.FieldsJSON), &fields); err != nil {
						return err
					}
				}
				switch value {
				case "true":
					fields[field] = true
				case "false":
					fields[field] = false
				default:
					fields[field] = value
				}
				merged, err := json.Marshal(fields)
				if err != nil {
					return err
				}
				updated, err := e.UpdateStageRecord(ctx, projectID, st, string(merged), viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(updated)
			})
		},
	}
	cmd.Flags().StringVar(&projectID, "project", "", "project id")
	cmd.Flags().StringVar(&stageName, "stage", "", "stage name")
	cmd.Flags().StringVar(&field, "field", "", "field name, e.g. decision")
	cmd.Flags().StringVar(&value, "value", "", "field value")
	_ = cmd.MarkFlagRequired("project")
	_ = cmd.MarkFlagRequired("stage")
	_ = cmd.MarkFlagRequired("field")
	_ = cmd.MarkFlagRequired("value")
	return cmd
}

func noteCmd() *cobra.Command {
	note := &cobra.Command{Use: "note", Short: "Notes on projects and stage records"}
	note.AddCommand(noteAddCmd())
	note.AddCommand(noteListCmd())
	return note
}

func noteAddCmd() *cobra.Command {
	var entityKind, entityID, body string
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Attach a note to an entity",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				n, err := e.AddNote(ctx, entityKind, entityID, body, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(n)
			})
		},
	}
	cmd.Flags().StringVar(&entityKind, "entity-kind", "project", "entity kind (project, stage_record)")
	cmd.Flags().StringVar(&entityID, "entity-id", "", "entity id")
	cmd.Flags().StringVar(&body, "body", "", "note text")
	_ = cmd.MarkFlagRequired("entity-id")
	_ = cmd.MarkFlagRequired("body")
	return cmd
}

func noteListCmd() *cobra.Command {
	var entityKind, entityID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List notes for an entity, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListNotes(ctx, entityKind, entityID)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
	cmd.Flags().StringVar(&entityKind, "entity-kind", "project", "entity kind")
	cmd.Flags().StringVar(&entityID, "entity-id", "", "entity id")
	_ = cmd.MarkFlagRequired("entity-id")
	return cmd
}

func ruleCmd() *cobra.Command {
	rule := &cobra.Command{Use: "rule", Short: "Manage notification rules"}
	rule.AddCommand(ruleListCmd())
	rule.AddCommand(ruleCreateCmd())
	rule.AddCommand(ruleEnableCmd(true))
	rule.AddCommand(ruleEnableCmd(false))
	return rule
}

func ruleListCmd() *cobra.Command {
	var eventType string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List notification rules",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListRules(ctx, eventType)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Event", "Stage", "Active"})
				for _, rule := range items {
					st := ""
					if rule.Stage != nil {
						st = *rule.Stage
					}
					tw.AppendRow(table.Row{rule.ID, rule.Name, rule.EventType, st, rule.Active})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&eventType, "event", "", "event type filter")
	return cmd
}

func ruleCreateCmd() *cobra.Command {
	var name, desc, eventType, stageName string
	var roleIDs, userIDs []string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a notification rule",
		RunE: func(cmd *cobra.Command, args []string) error {
			now := time.Now().UTC().Format(time.RFC3339)
			rule := domain.NotificationRule{
				ID:          uuid.New().String(),
				Name:        name,
				Description: desc,
				EventType:   eventType,
				RoleIDs:     roleIDs,
				UserIDs:     userIDs,
				Active:      true,
				CreatedAt:   now,
				UpdatedAt:   now,
			}
			if cmd.Flags().Changed("stage") {
				rule.Stage = &stageName
			}
			if err := rule.Validate(); err != nil {
				return err
			}
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				if err := r.InsertRule(ctx, rule); err != nil {
					return err
				}
				return printJSONOrTable(rule)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "rule name")
	cmd.Flags().StringVar(&desc, "description", "", "description")
	cmd.Flags().StringVar(&eventType, "event", "", "event type, e.g. project.stage_changed")
	cmd.Flags().StringVar(&stageName, "stage", "", "stage qualifier (stage-change events only)")
	cmd.Flags().StringArrayVar(&roleIDs, "role-id", []string{}, "recipient role id (repeatable)")
	cmd.Flags().StringArrayVar(&userIDs, "user-id", []string{}, "recipient user id (repeatable)")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("event")
	return cmd
}

func ruleEnableCmd(enable bool) *cobra.Command {
	use, short := "enable <rule-id>", "Enable a rule"
	if !enable {
		use, short = "disable <rule-id>", "Disable a rule"
	}
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				now := time.Now().UTC().Format(time.RFC3339)
				if err := r.SetRuleActive(ctx, args[0], enable, now); err != nil {
					return err
				}
				rule, err := r.GetRule(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(rule)
			})
		},
	}
	return cmd
}

func adminCmd() *cobra.Command {
	admin := &cobra.Command{Use: "admin", Short: "Manage users, roles, and skills"}
	admin.AddCommand(adminUserCmd())
	admin.AddCommand(adminRoleCmd())
	admin.AddCommand(adminMemberCmd())
	admin.AddCommand(adminSkillCmd())
	return admin
}

func adminUserCmd() *cobra.Command {
	user := &cobra.Command{Use: "user", Short: "Manage users"}

	var id, name, email string
	add := &cobra.Command{
		Use:   "add",
		Short: "Add a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				u := domain.User{ID: id, Name: name, Email: email, CreatedAt: time.Now().UTC().Format(time.RFC3339)}
				if u.ID == "" {
					u.ID = uuid.New().String()
				}
				if err := r.InsertUser(ctx, u); err != nil {
					return err
				}
				return printJSONOrTable(u)
			})
		},
	}
	add.Flags().StringVar(&id, "id", "", "user id")
	add.Flags().StringVar(&name, "name", "", "display name")
	add.Flags().StringVar(&email, "email", "", "email address")
	_ = add.MarkFlagRequired("name")
	_ = add.MarkFlagRequired("email")

	list := &cobra.Command{
		Use:   "list",
		Short: "List users",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListUsers(ctx)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}

	user.AddCommand(add, list)
	return user
}

func adminRoleCmd() *cobra.Command {
	role := &cobra.Command{Use: "role", Short: "Manage roles"}

	var id, name, desc string
	add := &cobra.Command{
		Use:   "add",
		Short: "Add a role",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				role := domain.Role{ID: id, Name: name, Description: desc}
				if role.ID == "" {
					role.ID = uuid.New().String()
				}
				if err := r.InsertRole(ctx, role); err != nil {
					return err
				}
				return printJSONOrTable(role)
			})
		},
	}
	add.Flags().StringVar(&id, "id", "", "role id")
	add.Flags().StringVar(&name, "name", "", "role name, e.g. 'Test Manager'")
	add.Flags().StringVar(&desc, "description", "", "description")
	_ = add.MarkFlagRequired("name")

	list := &cobra.Command{
		Use:   "list",
		Short: "List roles",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListRoles(ctx)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}

	role.AddCommand(add, list)
	return role
}

// resolveRoleID maps a role name to its id; a value naming no role is
// assumed to already be an id.
func resolveRoleID(ctx context.Context, r repo.Repo, nameOrID string) (string, error) {
	role, err := r.GetRoleByName(ctx, nameOrID)
	if err == nil {
		return role.ID, nil
	}
	if errors.Is(err, repo.ErrNotFound) {
		return nameOrID, nil
	}
	return "", err
}

func adminMemberCmd() *cobra.Command {
	member := &cobra.Command{Use: "member", Short: "Manage role membership"}

	var roleRef, userID string
	add := &cobra.Command{
		Use:   "add",
		Short: "Add a user to a role",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				id, err := resolveRoleID(ctx, r, roleRef)
				if err != nil {
					return err
				}
				return r.AddRoleMember(ctx, id, userID)
			})
		},
	}
	add.Flags().StringVar(&roleRef, "role", "", "role name or id")
	add.Flags().StringVar(&userID, "user", "", "user id")
	_ = add.MarkFlagRequired("role")
	_ = add.MarkFlagRequired("user")

	var rmRole, rmUser string
	remove := &cobra.Command{
		Use:   "remove",
		Short: "Remove a user from a role",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				id, err := resolveRoleID(ctx, r, rmRole)
				if err != nil {
					return err
				}
				return r.RemoveRoleMember(ctx, id, rmUser)
			})
		},
	}
	remove.Flags().StringVar(&rmRole, "role", "", "role name or id")
	remove.Flags().StringVar(&rmUser, "user", "", "user id")
	_ = remove.MarkFlagRequired("role")
	_ = remove.MarkFlagRequired("user")

	var listRole string
	list := &cobra.Command{
		Use:   "list",
		Short: "List members of a role",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				id, err := resolveRoleID(ctx, r, listRole)
				if err != nil {
					return err
				}
				items, err := r.RoleMembersByID(ctx, id)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
	list.Flags().StringVar(&listRole, "role", "", "role name or id")
	_ = list.MarkFlagRequired("role")

	member.AddCommand(add, remove, list)
	return member
}

func adminSkillCmd() *cobra.Command {
	skill := &cobra.Command{Use: "skill", Short: "Manage skills"}

	var id, name string
	add := &cobra.Command{
		Use:   "add",
		Short: "Add a skill",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				s := domain.Skill{ID: id, Name: name}
				if s.ID == "" {
					s.ID = uuid.New().String()
				}
				if err := r.InsertSkill(ctx, s); err != nil {
					return err
				}
				return printJSONOrTable(s)
			})
		},
	}
	add.Flags().StringVar(&id, "id", "", "skill id")
	add.Flags().StringVar(&name, "name", "", "skill name")
	_ = add.MarkFlagRequired("name")

	list := &cobra.Command{
		Use:   "list",
		Short: "List skills",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListSkills(ctx)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}

	var assignUser, assignSkill string
	assign := &cobra.Command{
		Use:   "assign",
		Short: "Assign a skill to a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				return r.AssignSkill(ctx, assignUser, assignSkill)
			})
		},
	}
	assign.Flags().StringVar(&assignUser, "user", "", "user id")
	assign.Flags().StringVar(&assignSkill, "skill", "", "skill id")
	_ = assign.MarkFlagRequired("user")
	_ = assign.MarkFlagRequired("skill")

	skill.AddCommand(add, list, assign)
	return skill
}

func notifyCmd() *cobra.Command {
	nt := &cobra.Command{Use: "notify", Short: "Notification routing config"}
	cfg := &cobra.Command{Use: "config", Short: "Manage the static routing config"}
	cfg.AddCommand(notifyConfigShowCmd())
	cfg.AddCommand(notifyConfigImportCmd())
	nt.AddCommand(cfg)
	nt.AddCommand(notifyFailedCmd())
	return nt
}

func notifyFailedCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "failed",
		Short: "List dead-lettered notifications",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListFailedNotifications(ctx, limit)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Project", "Event", "Attempts", "Reason", "When"})
				for _, f := range items {
					tw.AppendRow(table.Row{f.ID, f.ProjectID, f.EventType, f.Attempts, f.Reason, f.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "max rows")
	return cmd
}

func notifyConfigShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the active routing config (default when none imported)",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			cfg, err := notifyconfig.LoadOptional(workspace)
			if err != nil {
				return err
			}
			if cfg == nil {
				fmt.Print(notifyconfig.GenerateDefault())
				return nil
			}
			return printJSON(cfg)
		},
	}
	return cmd
}

func notifyConfigImportCmd() *cobra.Command {
	var filePath string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Validate a routing config and install it in the workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(filePath)
			if err != nil {
				return err
			}
			if _, err := notifyconfig.FromYAML(data); err != nil {
				return err
			}
			workspace := viper.GetString("workspace")
			dest := notifyconfig.Path(workspace)
			if err := os.WriteFile(dest, data, 0o644); err != nil {
				return err
			}
			fmt.Printf("Installed routing config at %s\n", dest)
			return nil
		},
	}
	cmd.Flags().StringVar(&filePath, "file", "", "path to YAML config")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
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
			logger, err := zap.NewProduction()
			if err != nil {
				return err
			}
			defer logger.Sync()

			cfg, err := notifyconfig.LoadOptional(workspace)
			if err != nil {
				return err
			}
			if cfg == nil {
				cfg = notifyconfig.Default()
				logger.Info("no stagegate.yml in workspace, using default routing config")
			}
			r := repo.Repo{DB: conn}
			router := &notify.Router{
				Config:   cfg,
				Rules:    r,
				Resolver: notify.Resolver{Dir: r},
				Mailer:   notify.LogMailer{Log: logger},
				Log:      logger,
			}
			dispatcher := notify.NewDispatcher(notify.DispatcherConfig{}, router, r, logger)
			defer dispatcher.Close()

			e := engine.New(conn, dispatcher)
			secret := os.Getenv("STAGEGATE_JWT_SECRET")
			if secret == "" {
				return fmt.Errorf("STAGEGATE_JWT_SECRET is required for bearer auth")
			}
			handler, err := server.New(server.Config{
				Engine:   e,
				BasePath: basePath,
				Auth:     server.AuthConfig{JWTSecret: secret, Log: logger},
			})
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
			logger.Info("serving stagegate api",
				zap.String("addr", addr),
				zap.String("base_path", basePath),
				zap.String("db", db.Path(workspace)),
			)
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

func cliLogger() *zap.Logger {
	if viper.GetBool("verbose") {
		logger, err := zap.NewDevelopment()
		if err == nil {
			return logger
		}
	}
	return zap.NewNop()
}

// withEngine wires the full stack for one command: database, routing
// config, mail dispatcher, engine. The dispatcher is drained before the
// command exits so fired notifications are delivered.
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
	cfg, err := notifyconfig.LoadOptional(workspace)
	if err != nil {
		return err
	}
	if cfg == nil {
		cfg = notifyconfig.Default()
	}
	logger := cliLogger()
	r := repo.Repo{DB: conn}
	router := &notify.Router{
		Config:   cfg,
		Rules:    r,
		Resolver: notify.Resolver{Dir: r},
		Mailer:   notify.LogMailer{Log: logger},
		Log:      logger,
	}
	dispatcher := notify.NewDispatcher(notify.DispatcherConfig{Backoff: time.Second}, router, r, logger)
	defer dispatcher.Close()
	e := engine.New(conn, dispatcher)
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
