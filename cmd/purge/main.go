package main

import (
	"encoding/json"
	"log"
	"os"

	"github.com/ruteri/appinstance-provisioning-backend/cmd/flags"
	"github.com/ruteri/appinstance-provisioning-backend/deprovisioning"
	"github.com/ruteri/appinstance-provisioning-backend/notify"
	"github.com/ruteri/appinstance-provisioning-backend/purge"
	"github.com/urfave/cli/v2"
)

var cliFlags = []cli.Flag{
	flags.StoreFlag,
	flags.WebhookTimeoutFlag,
	flags.DryRunFlag,
	&cli.DurationFlag{
		Name:  "retention",
		Value: purge.DefaultRetention,
		Usage: "how long instances stay STOPPED and organizations DELETED before they are purged",
	},
	flags.LogServiceFlagFn("purge"),
}

func main() {
	app := &cli.App{
		Name:  "purge",
		Usage: "Purge instances and organizations past their retention period",
		Flags: append(cliFlags, flags.CommonFlags...),
		Action: func(cCtx *cli.Context) error {
			logger := flags.SetupLogger(cCtx)

			stores, caller, closeStores, err := flags.Backends(cCtx, logger)
			if err != nil {
				logger.Error("Failed to open store", "err", err)
				return err
			}
			defer closeStores()

			sweeper := purge.New(purge.Config{
				Retention: cCtx.Duration("retention"),
			}, stores, deprovisioning.New(stores, caller, logger), notify.NewLogNotifier(logger), logger)

			report, sweepErr := sweeper.Run(cCtx.Context)
			out := json.NewEncoder(os.Stdout)
			out.SetIndent("", "  ")
			if err := out.Encode(report); err != nil {
				return err
			}
			return sweepErr
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
