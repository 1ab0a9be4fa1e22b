package main

import (
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/ruteri/appinstance-provisioning-backend/cmd/flags"
	"github.com/ruteri/appinstance-provisioning-backend/deprovisioning"
	"github.com/ruteri/appinstance-provisioning-backend/interfaces"
	"github.com/urfave/cli/v2"
)

var cliFlags = []cli.Flag{
	flags.StoreFlag,
	flags.WebhookTimeoutFlag,
	flags.DryRunFlag,
	&cli.StringFlag{
		Name:     "instance-id",
		Required: true,
		Usage:    "id of the instance to delete",
	},
	&cli.StringFlag{
		Name:  "check-status",
		Usage: "only delete if the instance has this status (PENDING, RUNNING or STOPPED)",
	},
	&cli.Int64SliceFlag{
		Name:  "check-version",
		Usage: "only delete if the instance has one of these versions; may be repeated",
	},
	&cli.BoolFlag{
		Name:  "call-provider",
		Value: true,
		Usage: "call the provider's destruction webhook; --call-provider=false deletes locally only",
	},
	flags.LogServiceFlagFn("delete-instance"),
}

func main() {
	app := &cli.App{
		Name:  "delete-instance",
		Usage: "Deprovision a single app instance and everything depending on it",
		Flags: append(cliFlags, flags.CommonFlags...),
		Action: func(cCtx *cli.Context) error {
			logger := flags.SetupLogger(cCtx)

			req := deprovisioning.Request{
				InstanceID:    cCtx.String("instance-id"),
				CheckVersions: cCtx.Int64Slice("check-version"),
				CallProvider:  cCtx.Bool("call-provider"),
			}
			if s := cCtx.String("check-status"); s != "" {
				status, err := interfaces.ParseInstanceStatus(s)
				if err != nil {
					return err
				}
				req.CheckStatus = status
			}
			if !req.CallProvider {
				logger.Warn("Provider will not be told about the deletion")
			}

			stores, caller, closeStores, err := flags.Backends(cCtx, logger)
			if err != nil {
				logger.Error("Failed to open store", "err", err)
				return err
			}
			defer closeStores()

			res, err := deprovisioning.New(stores, caller, logger).Delete(cCtx.Context, req)
			if err != nil {
				return err
			}

			out := json.NewEncoder(os.Stdout)
			out.SetIndent("", "  ")
			if err := out.Encode(res); err != nil {
				return err
			}
			if !res.Status.Removed() {
				return cli.Exit(fmt.Sprintf("instance not deleted: %s", res.Status), 2)
			}
			return nil
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
