package main

import (
	"os"

	"github.com/mitchellh/go-homedir"
	"github.com/urfave/cli/v2"

	"github.com/lagrangedao/go-computing-market/build"
)

const (
	FlagMarketRepo = "market-repo"
)

func main() {
	app := &cli.App{
		Name:                 "computing-market",
		Usage:                "A computing market node keeps the job ledger of the decentralized computing network and mirrors the jobs published on chain.",
		EnableBashCompletion: true,
		Version:              build.UserVersion(),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    FlagMarketRepo,
				EnvVars: []string{"MARKET_PATH"},
				Usage:   "market repo path",
				Value:   "~/.swan/market",
			},
		},
		Commands: []*cli.Command{
			initCmd,
			runCmd,
			syncCmd,
			seedCmd,
			jobCmd,
			walletCmd,
			chainCmd,
		},
	}
	app.Setup()

	if err := app.Run(os.Args); err != nil {
		os.Stderr.WriteString("Error: " + err.Error() + "\n")
		os.Exit(1)
	}
}

func repoPath(cctx *cli.Context) (string, error) {
	return homedir.Expand(cctx.String(FlagMarketRepo))
}
