package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/mabumusa1/ses-plugin/email"
	"github.com/spf13/cobra"
)

const FlagAll = "all"

const deleteTemplatesDescription = `Deletes every registered bulk template
from SES.

With persistent templates, the registry is the configured Redis server or
settings store, so this removes templates created by every process sharing
it. With session templates (the default), the registry lives in the memory
of each sending process, so a new process finds nothing registered. Session
templates of a process that exited without cleaning up stay in SES until
deleted with --all.

--all also deletes every SES template whose name starts with "` +
	email.TemplateNamePrefix + `", including templates other processes are
still using.

Templates that fail to delete stay registered, and the command fails after
listing them.`

func newDeleteTemplatesCmd(newTransport TransportFactoryFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete-templates",
		Short: "Delete every registered bulk template from SES",
		Long:  deleteTemplatesDescription,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmd.SilenceUsage = true
			return deleteTemplates(context.Background(), cmd, newTransport)
		},
	}
	cmd.Flags().Bool(
		FlagAll, false, "Also delete unregistered bulk templates listed by SES",
	)
	return cmd
}

func deleteTemplates(
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

	all, err := cmd.Flags().GetBool(FlagAll)
	if err != nil {
		return err
	}

	failed, err := tr.PurgeTemplates(ctx, all)
	if err != nil {
		return err
	} else if len(failed) != 0 {
		return fmt.Errorf(
			"failed to delete %d templates: %s",
			len(failed),
			strings.Join(failed, ", "),
		)
	}
	if all {
		cmd.Println("Deleted all bulk templates.")
	} else {
		cmd.Println("Deleted all registered templates.")
	}
	return nil
}
