// Package admin implements phrctl, the operator command line for Patterm.
//
// Session commands talk to a running server over gRPC. Registration and
// checkpoint commands open the stores named in the server config file
// directly, so they need the same access the server has.
package admin

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/dmitrijs2005/patterm/internal/common"
	"github.com/dmitrijs2005/patterm/internal/flagx"
	"github.com/dmitrijs2005/patterm/internal/logging"
	"github.com/dmitrijs2005/patterm/internal/server/config"
)

// TokenEnv supplies --token when the flag is not given.
const TokenEnv = "PHRCTL_TOKEN"

// Dialer opens a client connection to addr.
type Dialer func(addr string) (grpc.ClientConnInterface, func() error, error)

func dialInsecure(addr string) (grpc.ClientConnInterface, func() error, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, nil, err
	}
	return conn, conn.Close, nil
}

type options struct {
	configPath string
	server     string
	token      string

	out    io.Writer
	dial   Dialer
	logger logging.Logger
}

func (o *options) loadConfig() (*config.Config, error) {
	cfg, err := config.LoadFile(o.configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrValidation, err)
	}
	return cfg, nil
}

func (o *options) sessionToken() string {
	if o.token != "" {
		return o.token
	}
	return os.Getenv(TokenEnv)
}

// NewRootCmd builds the phrctl command tree writing to out. A nil dial
// connects without transport security.
func NewRootCmd(out io.Writer, dial Dialer) *cobra.Command {
	if dial == nil {
		dial = dialInsecure
	}
	o := &options{
		out:    out,
		dial:   dial,
		logger: logging.NewJSONLogger(os.Stderr, "warn"),
	}

	root := &cobra.Command{
		Use:           "phrctl",
		Short:         "Patterm operator tool",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(out)

	root.PersistentFlags().StringVar(&o.configPath, "config", os.Getenv(flagx.ConfigFileEnv), "server config file")
	root.PersistentFlags().StringVar(&o.server, "server", "localhost:50051", "gRPC server address")
	root.PersistentFlags().StringVar(&o.token, "token", "", "session token (default $"+TokenEnv+")")

	root.AddCommand(
		newRegisterCmd(o),
		newLoginCmd(o),
		newWhoamiCmd(o),
		newLogoutCmd(o),
		newAuditCmd(o),
	)
	return root
}
