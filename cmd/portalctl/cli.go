package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/rs/zerolog"
	"github.com/sethvargo/go-envconfig"
	"github.com/spf13/cobra"

	"github.com/civicportal/resident-portal/internal/app"
	"github.com/civicportal/resident-portal/internal/core/domain"
	"github.com/civicportal/resident-portal/internal/pkg/config"
	"github.com/civicportal/resident-portal/pkg/logger"
)

var errNotSignedIn = errors.New("not signed in, run `portalctl login` first")

// cli carries what the commands share. open is swapped out in tests.
type cli struct {
	in   io.Reader
	out  io.Writer
	open func(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*app.App, error)

	verbose bool
	profile string
	store   string
	apiURL  string

	app *app.App
}

func defaultCLI() *cli {
	return &cli{in: os.Stdin, out: os.Stdout, open: app.New}
}

func newRootCmd(c *cli) *cobra.Command {
	root := &cobra.Command{
		Use:   "portalctl",
		Short: "Resident portal command line client",
		Long: `portalctl signs in to the municipal resident portal and keeps the
credential in the configured token store (TOKEN_STORE), so the gateway and
the CLI share one session per profile.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.setup(cmd.Context())
		},
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			if c.app == nil {
				return nil
			}
			return c.app.Close(context.WithoutCancel(cmd.Context()))
		},
	}

	root.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "log debug output to stderr")
	root.PersistentFlags().StringVar(&c.profile, "profile", "", "session profile (overrides PROFILE)")
	root.PersistentFlags().StringVar(&c.store, "store", "", "token store backend: memory, file, redis, mongo (overrides TOKEN_STORE)")
	root.PersistentFlags().StringVar(&c.apiURL, "api", "", "backend base URL (overrides API_BASE_URL)")

	root.AddCommand(c.loginCmd(), c.logoutCmd(), c.whoamiCmd(), c.notificationsCmd())
	return root
}

func (c *cli) setup(ctx context.Context) error {
	if c.app != nil {
		return nil
	}

	cfg, err := config.Parse(ctx, envconfig.OsLookuper())
	if err != nil {
		return err
	}
	if c.profile != "" {
		cfg.Profile = c.profile
	}
	if c.store != "" {
		cfg.Store.Backend = c.store
	}
	if c.apiURL != "" {
		cfg.API.BaseURL = c.apiURL
	}

	level := "disabled"
	if c.verbose {
		level = "debug"
	}
	log := logger.Init(logger.Options{Level: level, Pretty: true, Service: "portalctl"})

	a, err := c.open(ctx, cfg, log)
	if err != nil {
		return err
	}
	c.app = a
	return nil
}

func (c *cli) loginCmd() *cobra.Command {
	var email, password string
	var passwordStdin bool

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and store the credential",
		Example: `  portalctl login --email ana@city.gov
  echo "$PASSWORD" | portalctl login --email ana@city.gov --password-stdin`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			reader := bufio.NewReader(c.in)
			var err error
			if email == "" {
				if email, err = c.prompt(reader, "Email: "); err != nil {
					return err
				}
			}
			if password == "" {
				label := "Password: "
				if passwordStdin {
					label = ""
				}
				if password, err = c.prompt(reader, label); err != nil {
					return err
				}
			}

			sessions := c.app.Sessions
			if err := sessions.Login(cmd.Context(), domain.Credentials{Identifier: email, Password: password}); err != nil {
				return err
			}

			snap := sessions.Snapshot()
			fmt.Fprintf(c.out, "Signed in as %s (%s)\n", displayName(snap.User), snap.User.Role)
			fmt.Fprintf(c.out, "Landing page: %s\n", sessions.TakeReturnPath())
			return nil
		},
	}
	cmd.Flags().StringVarP(&email, "email", "e", "", "account email")
	cmd.Flags().StringVarP(&password, "password", "p", "", "account password (prefer --password-stdin)")
	cmd.Flags().BoolVar(&passwordStdin, "password-stdin", false, "read the password from stdin")
	return cmd
}

func (c *cli) logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and forget the stored credential",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c.app.Sessions.Logout(cmd.Context())
			fmt.Fprintln(c.out, "Signed out")
			return nil
		},
	}
}

func (c *cli) whoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			snap, err := c.restore(cmd.Context())
			if err != nil {
				return err
			}
			u := snap.User
			w := tabwriter.NewWriter(c.out, 0, 0, 2, ' ', 0)
			fmt.Fprintf(w, "ID\t%s\n", u.ID)
			fmt.Fprintf(w, "Name\t%s\n", displayName(u))
			fmt.Fprintf(w, "Email\t%s\n", u.Email)
			fmt.Fprintf(w, "Role\t%s\n", u.Role)
			return w.Flush()
		},
	}
}

func (c *cli) notificationsCmd() *cobra.Command {
	var unreadOnly bool

	cmd := &cobra.Command{
		Use:     "notifications",
		Aliases: []string{"notif"},
		Short:   "List notifications for the signed-in user",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := c.restore(cmd.Context()); err != nil {
				return err
			}
			items, err := c.app.Client.Notifications(cmd.Context())
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(c.out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tREAD\tTITLE")
			shown := 0
			for _, n := range items {
				if unreadOnly && n.Read {
					continue
				}
				fmt.Fprintf(w, "%s\t%t\t%s\n", n.ID, n.Read, n.Title)
				shown++
			}
			if err := w.Flush(); err != nil {
				return err
			}
			if shown == 0 {
				fmt.Fprintln(c.out, "No notifications")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&unreadOnly, "unread", false, "only show unread notifications")
	return cmd
}

// restore initializes the session from the store and requires a signed-in
// user.
func (c *cli) restore(ctx context.Context) (domain.Snapshot, error) {
	if err := c.app.Sessions.Initialize(ctx); err != nil {
		return domain.Snapshot{}, err
	}
	snap := c.app.Sessions.Snapshot()
	if !snap.Authenticated() {
		if snap.Err != nil {
			return snap, fmt.Errorf("%w: %v", errNotSignedIn, snap.Err)
		}
		return snap, errNotSignedIn
	}
	return snap, nil
}

func (c *cli) prompt(r *bufio.Reader, label string) (string, error) {
	if label != "" {
		fmt.Fprint(c.out, label)
	}
	line, err := r.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", fmt.Errorf("read input: %w", err)
	}
	return strings.TrimSpace(line), nil
}

func displayName(u *domain.User) string {
	if u.DisplayName != "" {
		return u.DisplayName
	}
	return u.Email
}
