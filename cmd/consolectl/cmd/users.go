package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/stemsi/tricol-console/internal/model"
	"github.com/stemsi/tricol-console/internal/permission"
	"github.com/stemsi/tricol-console/internal/service"
)

var (
	usersSearch string
	usersRole   string
)

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "List users with their roles and explicit permissions",
	RunE: withRuntime(func(cmd *cobra.Command, args []string, rt *runtime) error {
		if err := rt.requireSession(); err != nil {
			return err
		}
		users, err := rt.admin.ListUsers(cmd.Context(), service.UserFilter{Search: usersSearch, Role: usersRole})
		if err != nil {
			return err
		}
		if len(users) == 0 {
			pterm.Info.Println("No users match")
			return nil
		}

		data := pterm.TableData{{"ID", "NAME", "EMAIL", "ROLE", "STATUS", "EXPLICIT PERMISSIONS"}}
		for _, u := range users {
			explicit := "-"
			if len(u.Permissions) > 0 {
				explicit = strings.Join(model.PermissionStrings(u.Permissions), ", ")
			}
			data = append(data, []string{
				strconv.FormatInt(u.ID, 10),
				u.FullName(),
				u.Email,
				model.PrimaryRoleLabel(u.Roles),
				u.Status(),
				explicit,
			})
		}
		return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
	}),
}

var grantCmd = &cobra.Command{
	Use:   "grant USER_ID PERMISSION",
	Short: "Grant an explicit permission to a user",
	Args:  cobra.ExactArgs(2),
	RunE: withRuntime(func(cmd *cobra.Command, args []string, rt *runtime) error {
		return runToggle(cmd, args, rt, true)
	}),
}

var revokeCmd = &cobra.Command{
	Use:   "revoke USER_ID PERMISSION",
	Short: "Revoke an explicit permission from a user",
	Long: `Revokes an explicit permission. Permissions a user holds through their
role cannot be revoked here; change the role instead.`,
	Args: cobra.ExactArgs(2),
	RunE: withRuntime(func(cmd *cobra.Command, args []string, rt *runtime) error {
		return runToggle(cmd, args, rt, false)
	}),
}

func runToggle(cmd *cobra.Command, args []string, rt *runtime, on bool) error {
	if err := rt.requireSession(); err != nil {
		return err
	}
	userID, err := parseUserID(args[0])
	if err != nil {
		return err
	}
	p := model.Permission(strings.ToUpper(strings.TrimSpace(args[1])))

	var result service.ToggleResult
	if on {
		result, err = rt.admin.GrantExplicit(cmd.Context(), userID, p)
	} else {
		result, err = rt.admin.RevokeExplicit(cmd.Context(), userID, p)
	}
	if err != nil {
		return err
	}

	if result.Action == service.ToggleNone {
		pterm.Info.Println(noopReason(result, on))
		return nil
	}
	pterm.Success.Printf("%s %s for user %d\n", actionVerb(result.Action), p, userID)
	return nil
}

func noopReason(r service.ToggleResult, on bool) string {
	if on {
		return fmt.Sprintf("No change: %s is already held", r.Permission)
	}
	return fmt.Sprintf("No change: %s is not an explicit grant", r.Permission)
}

func actionVerb(a service.ToggleAction) string {
	if a == service.ToggleGrant {
		return "Granted"
	}
	return "Revoked"
}

var assignRoleCmd = &cobra.Command{
	Use:   "assign-role USER_ID ROLE",
	Short: "Replace a user's role",
	Long: fmt.Sprintf(`Replaces the role of a user. Explicit permissions are kept.
Roles: %s`, roleList()),
	Args: cobra.ExactArgs(2),
	RunE: withRuntime(func(cmd *cobra.Command, args []string, rt *runtime) error {
		if err := rt.requireSession(); err != nil {
			return err
		}
		userID, err := parseUserID(args[0])
		if err != nil {
			return err
		}
		role := model.Role(strings.ToUpper(strings.TrimSpace(args[1])))

		text, err := rt.admin.AssignRole(cmd.Context(), userID, role)
		if err != nil {
			return err
		}
		if text == "" {
			text = fmt.Sprintf("User %d is now %s", userID, role.Label())
		}
		pterm.Success.Println(text)

		// The operator's own effective set changes when they edit themselves.
		if me := rt.auth.CurrentUser(); me != nil && me.ID == userID && !permission.HasRole(me, role) {
			pterm.Warning.Println("Your own role changed; sign in again to pick up the new permissions")
		}
		return nil
	}),
}

func roleList() string {
	parts := make([]string, len(model.AllRoles))
	for i, r := range model.AllRoles {
		parts[i] = fmt.Sprintf("%s (%s)", r, r.Label())
	}
	return strings.Join(parts, ", ")
}

func parseUserID(raw string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid user id %q", raw)
	}
	return id, nil
}

func init() {
	usersCmd.Flags().StringVarP(&usersSearch, "search", "s", "", "Match first name, last name or email")
	usersCmd.Flags().StringVar(&usersRole, "role", service.RoleFilterAll, "Role tag, \"all\" or \"no-role\"")
}
