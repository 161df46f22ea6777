// Copyright © 2023 Mike Bland <mbland@acm.org>
// See LICENSE.txt for details.

package cmd

import (
	"context"
	"errors"
	"time"

	"github.com/mabumusa1/ses-plugin/db"
	"github.com/spf13/cobra"
)

const FlagPostgres = "postgres"

const createSettingsTableDescription = `` +
	`Creates the table holding each SES account's discovered send rate and its
persistent bulk templates.

With one argument, it creates a DynamoDB table of that name in the configured
region. That name then becomes the value of the SETTINGS_TABLE_NAME
environment variable or the settings_table configuration file option.

With --postgres, it instead creates the ses_settings table in the PostgreSQL
database named by the DSN, which becomes the value of POSTGRES_DSN.`

const (
	tableWaitAttempts = 12
	tableWaitInterval = 5 * time.Second
)

func newCreateSettingsTableCmd(
	newDynDb DynamoDbFactoryFunc, newPostgres PostgresFactoryFunc,
) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create-settings-table [TABLE_NAME]",
		Short: "Create a DynamoDB table or PostgreSQL schema for settings",
		Long:  createSettingsTableDescription,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			if dsn := getStringFlag(cmd, FlagPostgres); dsn != "" {
				cmd.SilenceUsage = true
				return createPostgresSchema(ctx, cmd, newPostgres, dsn)
			} else if len(args) == 0 {
				return errors.New("requires a TABLE_NAME or --postgres DSN")
			}
			cmd.SilenceUsage = true
			return createDynamoDbTable(ctx, cmd, newDynDb, args[0])
		},
	}
	cmd.Flags().String(
		FlagPostgres, "", "PostgreSQL DSN in which to create the schema",
	)
	return cmd
}

func createDynamoDbTable(
	ctx context.Context,
	cmd *cobra.Command,
	newDynDb DynamoDbFactoryFunc,
	tableName string,
) error {
	opts, err := loadOptionsFromEnv(cmd)
	if err != nil {
		return err
	}

	dyndb, err := newDynDb(ctx, opts, tableName)
	if err != nil {
		return err
	} else if err = dyndb.CreateTable(ctx); err != nil {
		return err
	}

	sleep := func() { time.Sleep(tableWaitInterval) }
	if err = dyndb.WaitForTable(ctx, tableWaitAttempts, sleep); err != nil {
		return err
	}
	cmd.Printf("Successfully created DynamoDB table: %s\n", dyndb.TableName)
	return nil
}

func createPostgresSchema(
	ctx context.Context,
	cmd *cobra.Command,
	newPostgres PostgresFactoryFunc,
	dsn string,
) (err error) {
	var pg *db.Postgres
	if pg, err = newPostgres(dsn); err != nil {
		return
	}
	defer func() { err = errors.Join(err, pg.Close()) }()

	if err = pg.CreateSchema(ctx); err == nil {
		cmd.Println("Successfully created PostgreSQL table: ses_settings")
	}
	return
}
