package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/stemsi/tricol-console/internal/apiclient"
	"github.com/stemsi/tricol-console/internal/config"
	"github.com/stemsi/tricol-console/internal/database"
	"github.com/stemsi/tricol-console/internal/logger"
	"github.com/stemsi/tricol-console/internal/model"
	"github.com/stemsi/tricol-console/internal/service"
	"github.com/stemsi/tricol-console/internal/session"
	"github.com/stemsi/tricol-console/internal/transport"
)

var (
	apiURL  string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "consolectl",
	Short: "Tricol console CLI",
	Long: `consolectl signs in to the Tricol REST API and administers users.
It shares its session with the console server, so signing in or out here
is seen there too.`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, service.Message(err))
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&apiURL, "api", "", "Tricol API base URL (defaults to API_BASE_URL)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log requests to stderr")

	rootCmd.AddCommand(loginCmd, logoutCmd, statusCmd)
	rootCmd.AddCommand(usersCmd, grantCmd, revokeCmd, assignRoleCmd)
}

// runtime is everything one command needs, built from the same
// configuration the console server reads.
type runtime struct {
	cfg   *config.Config
	log   zerolog.Logger
	auth  *service.AuthService
	admin *service.AdminUserService
	close func()
}

func openRuntime(ctx context.Context) (*runtime, error) {
	cfg := config.Load()
	if apiURL != "" {
		cfg.APIBaseURL = apiURL
	}

	level := "warn"
	if verbose {
		level = "debug"
	}
	log := logger.New(os.Stderr, level, "pretty")

	catalog, err := model.LoadCatalog(cfg.PermissionCatalogFile)
	if err != nil {
		return nil, err
	}

	store, closeStore, err := database.OpenSessionStore(ctx, cfg, log)
	if err != nil {
		return nil, fmt.Errorf("open session store: %w", err)
	}

	authClient := apiclient.New(cfg.APIBaseURL, nil, cfg.APITimeout)
	auth := service.NewAuthService(apiclient.NewAuthAPI(authClient), store, session.NewPublisher(), log)
	auth.Restore(ctx)

	interceptor := transport.NewInterceptor(nil, auth, transport.WithLogger(log))
	httpClient := interceptor.Client()
	httpClient.Timeout = cfg.APITimeout
	adminClient := apiclient.New(cfg.APIBaseURL, httpClient, cfg.APITimeout)

	return &runtime{
		cfg:   cfg,
		log:   log,
		auth:  auth,
		admin: service.NewAdminUserService(apiclient.NewAdminAPI(adminClient), auth, catalog, log),
		close: closeStore,
	}, nil
}

// withRuntime wraps a command body with runtime setup and teardown.
func withRuntime(fn func(cmd *cobra.Command, args []string, rt *runtime) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		rt, err := openRuntime(cmd.Context())
		if err != nil {
			return err
		}
		defer rt.close()
		return fn(cmd, args, rt)
	}
}

var errNotSignedIn = errors.New("not signed in (run: consolectl login)")

func (rt *runtime) requireSession() error {
	if !rt.auth.IsAuthenticated() {
		return errNotSignedIn
	}
	return nil
}
