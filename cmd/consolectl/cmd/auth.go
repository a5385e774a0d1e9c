package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/stemsi/tricol-console/internal/model"
	"github.com/stemsi/tricol-console/internal/permission"
	"github.com/stemsi/tricol-console/internal/session"
)

var loginEmail string

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in to the Tricol API",
	Long: `Signs in and stores the session. The password is read from the
terminal without echo, or from the first line of stdin when piped.`,
	RunE: withRuntime(func(cmd *cobra.Command, args []string, rt *runtime) error {
		email := strings.TrimSpace(loginEmail)
		if email == "" {
			var err error
			email, err = pterm.DefaultInteractiveTextInput.Show("Email")
			if err != nil {
				return err
			}
			email = strings.TrimSpace(email)
		}

		password, err := readPassword()
		if err != nil {
			return err
		}

		spinner, _ := pterm.DefaultSpinner.Start("Signing in...")
		sess, err := rt.auth.Login(cmd.Context(), email, password)
		if err != nil {
			if spinner != nil {
				spinner.Fail("Sign-in failed")
			}
			return err
		}
		if spinner != nil {
			spinner.Success(fmt.Sprintf("Signed in as %s (%s)", sess.User.FullName(), model.PrimaryRoleLabel(sess.User.Roles)))
		}
		return nil
	}),
}

func readPassword() (string, error) {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		fmt.Fprint(os.Stderr, "Password: ")
		raw, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", fmt.Errorf("read password: %w", err)
		}
		return string(raw), nil
	}

	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("read password from stdin: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Sign out and clear the stored session",
	RunE: withRuntime(func(cmd *cobra.Command, args []string, rt *runtime) error {
		rt.auth.Logout(cmd.Context())
		pterm.Success.Println("Logged out")
		return nil
	}),
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the signed-in user and token expiry",
	RunE: withRuntime(func(cmd *cobra.Command, args []string, rt *runtime) error {
		sess := rt.auth.Session()
		if sess == nil {
			pterm.Info.Println("Not signed in")
			return nil
		}

		pterm.DefaultSection.Println("Session")
		rows := [][]string{
			{"User", sess.User.FullName()},
			{"Email", sess.User.Email},
			{"Role", model.PrimaryRoleLabel(sess.User.Roles)},
		}
		if info, err := session.InspectToken(sess.AccessToken); err == nil && !info.ExpiresAt.IsZero() {
			expiry := info.ExpiresAt.Local().Format(time.RFC1123)
			if info.Expired(time.Now()) {
				expiry += " (expired, refreshed on next call)"
			}
			rows = append(rows, []string{"Access token expires", expiry})
		}
		if err := pterm.DefaultTable.WithData(rows).Render(); err != nil {
			return err
		}

		pterm.DefaultSection.Println("Effective permissions")
		effective := permission.Effective(sess.User)
		if len(effective) == 0 {
			pterm.Info.Println("None")
			return nil
		}
		items := make([]pterm.BulletListItem, 0, len(effective))
		for _, p := range effective {
			source := "explicit"
			if permission.IsRoleDefault(sess.User, p) {
				source = "role"
			}
			items = append(items, pterm.BulletListItem{Level: 0, Text: fmt.Sprintf("%s (%s)", p, source)})
		}
		return pterm.DefaultBulletList.WithItems(items).Render()
	}),
}

func init() {
	loginCmd.Flags().StringVarP(&loginEmail, "email", "e", "", "Account email")
}
