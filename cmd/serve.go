package cmd

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	charmlog "github.com/charmbracelet/log"
	"github.com/mabumusa1/ses-plugin/transport"
	"github.com/spf13/cobra"
)

const serveDescription = `Receives Amazon SNS notifications over HTTP(S) and
records a suppression for every permanently bounced or complaining recipient.

Subscribe the SNS topic for the SES identity or configuration set to:

  POST http://<WEBHOOK_ADDR>/webhook
  POST http://<WEBHOOK_ADDR>/webhook/<ACCOUNT>

The server confirms new subscriptions automatically and stops on SIGINT or
SIGTERM. GET /health reports whether it's running.`

const shutdownTimeout = 10 * time.Second

func newServeCmd(newTransport TransportFactoryFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the SNS webhook endpoint over HTTP",
		Long:  serveDescription,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmd.SilenceUsage = true
			ctx, stop := signal.NotifyContext(
				context.Background(), os.Interrupt, syscall.SIGTERM,
			)
			defer stop()
			return serve(ctx, cmd, newTransport)
		},
	}
}

func newLogger(cmd *cobra.Command) *charmlog.Logger {
	return charmlog.NewWithOptions(cmd.ErrOrStderr(), charmlog.Options{
		Prefix:          "ses-plugin",
		ReportTimestamp: true,
	})
}

func serve(
	ctx context.Context, cmd *cobra.Command, newTransport TransportFactoryFunc,
) error {
	opts, err := loadOptionsFromEnv(cmd)
	if err != nil {
		return err
	}

	logger := newLogger(cmd)
	tr, err := newTransport(ctx, opts, logger.StandardLog())
	if err != nil {
		return err
	}
	defer func() {
		if err := tr.Close(context.Background()); err != nil {
			logger.Error("failed to close transport", "err", err)
		}
	}()

	listener, err := net.Listen("tcp", tr.Options.WebhookAddr)
	if err != nil {
		return err
	}
	return serveWebhook(ctx, listener, tr, logger)
}

// serveWebhook serves tr.Router on listener until ctx is done.
func serveWebhook(
	ctx context.Context,
	listener net.Listener,
	tr *transport.Transport,
	logger *charmlog.Logger,
) error {
	srv := &http.Server{
		Handler:           tr.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          logger.StandardLog(),
	}
	errCh := make(chan error, 1)

	go func() {
		logger.Info("serving webhooks", "addr", listener.Addr().String())
		errCh <- srv.Serve(listener)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(
		context.Background(), shutdownTimeout,
	)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	} else if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
