package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"feditest/internal/mock"
	"feditest/pkg/logging"
)

func newMockServerCmd() *cobra.Command {
	var (
		addr string
		cfg  mock.Config
	)
	cmd := &cobra.Command{
		Use:   "mock-server",
		Short: "Serve a fake federation node for trying out test plans",
		Long: `Serve a fake federation node speaking WebFinger, NodeInfo and a minimal
ActivityPub surface: actor documents, inboxes and paged outboxes. Point a
webclient role of a constellation at it to try test plans without a real
server.

Examples:
  feditest mock-server --addr 127.0.0.1:8081 --accounts alice
  feditest mock-server --addr :8082 --domain beta.test --accounts bob,carol`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(cfg.Accounts) == 0 {
				return fmt.Errorf("at least one account is required")
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serveMock(ctx, cmd, addr, cfg)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":8080", "Address to listen on")
	cmd.Flags().StringVar(&cfg.Domain, "domain", "", "Domain of acct: URIs (default: the Host header of each request)")
	cmd.Flags().StringSliceVar(&cfg.Accounts, "accounts", []string{"alice", "bob"}, "Accounts the node serves")
	cmd.Flags().StringVar(&cfg.Software, "software", "", "Software name reported in NodeInfo")
	cmd.Flags().StringVar(&cfg.Version, "software-version", "", "Software version reported in NodeInfo")
	return cmd
}

func serveMock(ctx context.Context, cmd *cobra.Command, addr string, cfg mock.Config) error {
	srv := mock.NewServer(mock.NewNode(cfg))
	if err := srv.Start(addr); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Mock node listening on http://%s (accounts: %v)\n", srv.Addr(), cfg.Accounts)

	<-ctx.Done()
	logging.Info("Mock", "Shutting down mock node")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		return err
	}
	return srv.Err()
}
