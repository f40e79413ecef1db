package main

import (
	"os"

	"github.com/urfave/cli/v2"

	"github.com/lagrangedao/go-computing-market/build"
)

const (
	FlagMarketApi = "market-api"
)

func main() {
	app := &cli.App{
		Name:                 "market-cli",
		Usage:                "A market cli is a client tool for publishing, joining and submitting jobs on a computing market node.",
		EnableBashCompletion: true,
		Version:              build.UserVersion(),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    FlagMarketApi,
				EnvVars: []string{"MARKET_API"},
				Usage:   "market api base url",
				Value:   "http://127.0.0.1:8085/api/v1/market",
			},
		},
		Commands: []*cli.Command{
			jobCmd,
			nodeCmd,
			earningsCmd,
			statsCmd,
			syncCmd,
		},
	}
	app.Setup()

	if err := app.Run(os.Args); err != nil {
		os.Stderr.WriteString("Error: " + err.Error() + "\n")
		os.Exit(1)
	}
}

func client(cctx *cli.Context) *Client {
	return NewClient(cctx.String(FlagMarketApi))
}
