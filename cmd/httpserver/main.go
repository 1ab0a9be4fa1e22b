package main

import (
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ruteri/appinstance-provisioning-backend/api/instances"
	"github.com/ruteri/appinstance-provisioning-backend/api/registration"
	"github.com/ruteri/appinstance-provisioning-backend/cmd/flags"
	"github.com/ruteri/appinstance-provisioning-backend/deprovisioning"
	"github.com/ruteri/appinstance-provisioning-backend/httpserver"
	"github.com/ruteri/appinstance-provisioning-backend/provisioning"
	"github.com/urfave/cli/v2"
	"github.com/urfave/cli/v2/altsrc"
)

var configFlag = &cli.StringFlag{
	Name:  "config",
	Usage: "optional YAML file providing values for the flags below",
}

// fileFlags can also be set from the --config file.
var fileFlags = []cli.Flag{
	altsrc.NewStringFlag(&cli.StringFlag{
		Name:  "listen-addr",
		Value: "127.0.0.1:8080",
		Usage: "address to listen on for API",
	}),
	altsrc.NewStringFlag(&cli.StringFlag{
		Name:  "registration-base-url",
		Usage: "public base URL providers reach this server on, used to build instance registration URIs (required)",
	}),
	altsrc.NewStringFlag(flags.StoreFlag),
	altsrc.NewDurationFlag(flags.WebhookTimeoutFlag),
	altsrc.NewStringFlag(flags.MetricsAddrFlag),
	altsrc.NewBoolFlag(flags.PprofFlag),
	altsrc.NewInt64Flag(flags.DrainSecondsFlag),
	altsrc.NewStringFlag(flags.LogServiceFlagFn("appinstance-provisioning")),
}

func main() {
	allFlags := append([]cli.Flag{configFlag}, fileFlags...)
	allFlags = append(allFlags, flags.CommonFlags...)

	app := &cli.App{
		Name:   "httpserver",
		Usage:  "Serve the app instance provisioning API",
		Flags:  allFlags,
		Before: altsrc.InitInputSourceWithContext(fileFlags, altsrc.NewYamlSourceFromFlagFunc(configFlag.Name)),
		Action: func(cCtx *cli.Context) error {
			logger := flags.SetupLogger(cCtx)
			if cCtx.String("registration-base-url") == "" {
				return errors.New("registration-base-url is required")
			}

			stores, caller, closeStores, err := flags.Backends(cCtx, logger)
			if err != nil {
				logger.Error("Failed to open store", "err", err)
				return err
			}
			defer func() {
				if err := closeStores(); err != nil {
					logger.Error("Failed to close store", "err", err)
				}
			}()

			deprovisioner := deprovisioning.New(stores, caller, logger)
			provisioner := provisioning.New(provisioning.Config{
				RegistrationBaseURL: cCtx.String("registration-base-url"),
			}, stores, caller, deprovisioner, logger)

			cfg := flags.ConfigureServer(cCtx, logger, cCtx.String("listen-addr"))
			// In-flight requests may be waiting on a provider webhook.
			if minGrace := cCtx.Duration(flags.WebhookTimeoutFlag.Name) + 5*time.Second; cfg.GracefulShutdownDuration < minGrace {
				cfg.GracefulShutdownDuration = minGrace
			}

			server, err := httpserver.New(cfg,
				instances.NewHandler(stores.Instances, provisioner, deprovisioner, logger),
				registration.NewHandler(provisioner, logger),
			)
			if err != nil {
				logger.Error("Failed to create server", "err", err)
				return err
			}

			logger.Info("Starting server")
			server.RunInBackground()

			exit := make(chan os.Signal, 1)
			signal.Notify(exit, os.Interrupt, syscall.SIGTERM)
			<-exit
			logger.Info("Shutdown signal received")

			server.Shutdown()
			logger.Info("Server shutdown complete")
			return nil
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
