package cmd

import (
	"context"

	"github.com/spf13/cobra"
)

func newCheckCmd(newTransport TransportFactoryFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Check that the SES account can send email",
		Long: `Queries the SES account quota, bypassing any cached value.

Fails if the account isn't enabled for sending or its 24 hour quota, after
applying the configured capacity, is exhausted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmd.SilenceUsage = true
			return checkConnection(context.Background(), cmd, newTransport)
		},
	}
}

func checkConnection(
	ctx context.Context, cmd *cobra.Command, newTransport TransportFactoryFunc,
) error {
	opts, err := loadOptionsFromEnv(cmd)
	if err != nil {
		return err
	}

	tr, err := newTransport(ctx, opts, newLogger(cmd).StandardLog())
	if err != nil {
		return err
	}
	defer tr.Close(ctx)

	if err = tr.TestConnection(ctx); err != nil {
		return err
	}

	// TestConnection just cached the quota, so this won't query SES again.
	state, err := tr.Quota.CheckCapacity(ctx)
	if err != nil {
		return err
	} else if state.Unlimited {
		cmd.Printf("SES account is ready: %d/sec, unlimited\n", state.SendRate())
	} else {
		cmd.Printf(
			"SES account is ready: %d/sec, %d remaining\n",
			state.SendRate(),
			state.Remaining,
		)
	}
	return nil
}
