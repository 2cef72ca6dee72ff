package admin

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/dmitrijs2005/patterm/internal/common"
	"github.com/dmitrijs2005/patterm/internal/server"
	"github.com/dmitrijs2005/patterm/internal/server/models"
	"github.com/dmitrijs2005/patterm/internal/server/sessions"
	"github.com/dmitrijs2005/patterm/internal/timex"

	gs "github.com/dmitrijs2005/patterm/internal/server/grpc"
)

func newRegisterCmd(o *options) *cobra.Command {
	var roleName, facility string

	cmd := &cobra.Command{
		Use:   "register USER_ID",
		Short: "Register an account in the credential store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			role, err := models.ParseRole(roleName)
			if err != nil {
				return err
			}

			cfg, err := o.loadConfig()
			if err != nil {
				return fmt.Errorf("reading config: %w", err)
			}

			pw, err := getNewPassword(cmd.OutOrStdout())
			if err != nil {
				return err
			}
			defer common.WipeByteArray(pw)

			ctx := cmd.Context()
			rm, db, err := server.OpenStore(ctx, cfg)
			if err != nil {
				return err
			}
			if db != nil {
				defer db.Close()
			}

			m := sessions.NewManager(db, rm, timex.SystemClock{}, cfg.SessionTTL, cfg.KDF, o.logger)
			if err := m.Register(ctx, args[0], string(pw), role, facility); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Registered %s as %s\n", args[0], role)
			return nil
		},
	}
	cmd.Flags().StringVar(&roleName, "role", models.RolePatient.String(), "patient | provider | clinic_admin | platform_admin")
	cmd.Flags().StringVar(&facility, "facility", "", "facility id (provider and clinic_admin)")
	return cmd
}

// withClient dials the server and runs fn with a client carrying the
// session token, if any.
func (o *options) withClient(ctx context.Context, fn func(ctx context.Context, c *gs.Client) error) error {
	conn, closeConn, err := o.dial(o.server)
	if err != nil {
		return fmt.Errorf("connecting to %s: %w", o.server, err)
	}
	defer closeConn()

	c := gs.NewClient(conn)
	if token := o.sessionToken(); token != "" {
		c = c.WithToken(token)
	}
	return fn(ctx, c)
}

func printSession(cmd *cobra.Command, s *gs.SessionInfo) {
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "User:     %s\n", s.UserID)
	fmt.Fprintf(w, "Role:     %s\n", s.Role)
	if s.FacilityID != "" {
		fmt.Fprintf(w, "Facility: %s\n", s.FacilityID)
	}
	fmt.Fprintf(w, "Expires:  %s\n", s.ExpiresAt.Format(time.RFC3339))
}

func newLoginCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "login USER_ID",
		Short: "Open a session and print its token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pw, err := getPassword(cmd.OutOrStdout(), "Password: ")
			if err != nil {
				return err
			}
			defer common.WipeByteArray(pw)

			return o.withClient(cmd.Context(), func(ctx context.Context, c *gs.Client) error {
				s, err := c.IssueSession(ctx, args[0], string(pw))
				if err != nil {
					return err
				}
				printSession(cmd, s)
				fmt.Fprintf(cmd.OutOrStdout(), "Token:    %s\n", s.Token)
				return nil
			})
		},
	}
}

func newWhoamiCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the session behind the token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.withClient(cmd.Context(), func(ctx context.Context, c *gs.Client) error {
				s, err := c.ValidateSession(ctx)
				if err != nil {
					return err
				}
				printSession(cmd, s)
				return nil
			})
		},
	}
}

func newLogoutCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Revoke the session behind the token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.withClient(cmd.Context(), func(ctx context.Context, c *gs.Client) error {
				if err := c.RevokeSession(ctx); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Session revoked")
				return nil
			})
		},
	}
}
