package app

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/agis/consultcal/internal/contract"
	appLog "github.com/agis/consultcal/internal/log"
	"github.com/agis/consultcal/internal/web"
)

const (
	defaultListen  = "127.0.0.1:8787"
	defaultRefresh = "@every 30s"
)

func newServeCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve month layouts and day agendas over HTTP",
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, st, ro, err := buildContext(cmd, opts, "serve")
			if err != nil {
				return err
			}
			defer st.Close()
			if _, err := cron.ParseStandard(ro.Refresh); err != nil {
				return failWithHint(p, contract.ErrInvalidUsage, err, "Use --refresh like \"@every 30s\" or \"*/5 * * * *\"", exitUsage)
			}
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			appLog.Info("consultcal serve starting", "version", buildVersion, "listen", ro.Listen, "db", ro.DB, "refresh", ro.Refresh)
			srv := web.NewServer(st, resolveLocation(ro.TZ))
			if err := srv.Run(ctx, ro.Listen, ro.Refresh); err != nil {
				return failWithHint(p, contract.ErrStoreUnavailable, err, "Check --listen and run `consultcal doctor`", exitStore)
			}
			appLog.Info("consultcal serve stopped")
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.Listen, "listen", defaultListen, "HTTP listen address")
	cmd.Flags().StringVar(&opts.Refresh, "refresh", defaultRefresh, "Cron schedule for reloading tasks")
	return cmd
}
