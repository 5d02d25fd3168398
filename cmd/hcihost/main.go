// Command hcihost drives a Bluetooth controller over H4 and keeps its LE random address
// rotated according to a privacy policy.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rigado/blehci"
	"github.com/urfave/cli"
)

func main() {
	app := cli.NewApp()
	app.Name = "hcihost"
	app.Usage = "H4 HCI host with LE address rotation"
	app.Flags = flags
	app.Action = action

	if err := app.Run(os.Args); err != nil {
		blehci.GetLogger().Errorf("%v", err)
		os.Exit(1)
	}
}

func action(c *cli.Context) error {
	cfg, err := loadConfig(c.String("config"))
	if err != nil {
		return err
	}
	if err := applyFlags(c, &cfg); err != nil {
		return err
	}
	if err := cfg.validate(); err != nil {
		return err
	}
	if cfg.Debug {
		blehci.SetLogLevelMax()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return run(ctx, cfg, os.Stdout)
}
