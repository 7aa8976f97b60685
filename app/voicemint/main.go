package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/memoio/go-voicemint/app/cmd"
	"github.com/memoio/go-voicemint/build"
)

func main() {
	app := &cli.App{
		Name:                 "voicemint",
		Usage:                "publish voice recordings as NFTs on an EVM marketplace",
		Version:              build.UserVersion(),
		EnableBashCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    cmd.FlagRepo,
				EnvVars: []string{build.RepoPathEnv},
				Value:   build.DefaultRepoPath,
				Usage:   "Specify voicemint path.",
			},
			&cli.StringFlag{
				Name:  cmd.FlagMetricsAddr,
				Usage: "serve prometheus metrics on this address, e.g. 127.0.0.1:9090",
			},
		},
		Before: func(cctx *cli.Context) error {
			return cmd.StartMetrics(cctx.Context, cctx.String(cmd.FlagMetricsAddr))
		},

		Commands: cmd.CommonCmd,
	}

	app.Setup()

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %s\n\n", err) // nolint:errcheck
		os.Exit(1)
	}
}
