package admin

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/dmitrijs2005/patterm/internal/server"
	"github.com/dmitrijs2005/patterm/internal/server/audit"
	"github.com/dmitrijs2005/patterm/internal/timex"

	gs "github.com/dmitrijs2005/patterm/internal/server/grpc"
)

func newAuditCmd(o *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Inspect the audit chain",
	}

	checkpoint := &cobra.Command{
		Use:   "checkpoint",
		Short: "Issue and check signed chain heads",
	}
	checkpoint.AddCommand(newCheckpointIssueCmd(o), newCheckpointVerifyCmd(o))

	cmd.AddCommand(newVerifyChainCmd(o), checkpoint)
	return cmd
}

// withAuditLog opens the audit store named in the config and runs fn with
// an audit service over it.
func (o *options) withAuditLog(ctx context.Context, fn func(s *audit.Service) error) error {
	cfg, err := o.loadConfig()
	if err != nil {
		return fmt.Errorf("reading config: %w", err)
	}

	rm, db, err := server.OpenStore(ctx, cfg)
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close()
	}

	repo, closeRepo, err := server.OpenAuditRepo(cfg, rm, db)
	if err != nil {
		return err
	}
	if closeRepo != nil {
		defer closeRepo()
	}

	s, err := audit.NewService(ctx, repo, timex.SystemClock{}, o.logger, []byte(cfg.SecretKey))
	if err != nil {
		return err
	}
	defer s.Close()

	return fn(s)
}

func printVerifyResult(cmd *cobra.Command, valid bool, invalidAt, checked int64) error {
	w := cmd.OutOrStdout()
	if valid {
		fmt.Fprintf(w, "Chain valid, %d entries checked\n", checked)
		return nil
	}
	fmt.Fprintf(w, "Chain INVALID at seq %d (%d entries checked)\n", invalidAt, checked)
	return fmt.Errorf("audit chain invalid at %d", invalidAt)
}

func newVerifyChainCmd(o *options) *cobra.Command {
	var from, to int64
	var local bool

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Recompute and check the hash chain",
		Long: "Recompute and check the hash chain. By default the server does the work and a\n" +
			"platform_admin session token is required; --local reads the store directly.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if local {
				return o.withAuditLog(cmd.Context(), func(s *audit.Service) error {
					res, err := s.Verify(cmd.Context(), from, to)
					if err != nil {
						return err
					}
					return printVerifyResult(cmd, res.Valid, res.InvalidAt, res.Checked)
				})
			}
			return o.withClient(cmd.Context(), func(ctx context.Context, c *gs.Client) error {
				res, err := c.VerifyAuditChain(ctx, from, to)
				if err != nil {
					return err
				}
				return printVerifyResult(cmd, res.Valid, res.InvalidAt, res.Checked)
			})
		},
	}
	cmd.Flags().Int64Var(&from, "from", 1, "first sequence number")
	cmd.Flags().Int64Var(&to, "to", 0, "last sequence number (0 = head)")
	cmd.Flags().BoolVar(&local, "local", false, "verify against the store instead of the server")
	return cmd
}

func newCheckpointIssueCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "issue",
		Short: "Sign the current chain head",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.withAuditLog(cmd.Context(), func(s *audit.Service) error {
				token, err := s.Checkpoint(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), token)
				return nil
			})
		},
	}
}

func newCheckpointVerifyCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "verify TOKEN",
		Short: "Check that the log still contains a signed head",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.withAuditLog(cmd.Context(), func(s *audit.Service) error {
				claims, err := s.VerifyCheckpoint(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				issued := "-"
				if claims.IssuedAt != nil {
					issued = claims.IssuedAt.Format(time.RFC3339)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Checkpoint valid: seq %d, hash %s, issued %s\n", claims.Seq, claims.Hash, issued)
				return nil
			})
		},
	}
}
