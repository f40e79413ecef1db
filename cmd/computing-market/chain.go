package main

import (
	"fmt"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/urfave/cli/v2"

	"github.com/lagrangedao/go-computing-market/conf"
	"github.com/lagrangedao/go-computing-market/util"
	"github.com/lagrangedao/go-computing-market/wallet/contract/core"
)

var chainCmd = &cli.Command{
	Name:  "chain",
	Usage: "Query the JobCore contract",
	Subcommands: []*cli.Command{
		chainStats,
	},
}

var chainStats = &cli.Command{
	Name:  "stats",
	Usage: "Show the totals reported by the contract",
	Action: func(cctx *cli.Context) error {
		ctx := util.ReqContext(cctx.Context)
		repo, err := repoPath(cctx)
		if err != nil {
			return err
		}
		if err := conf.InitConfig(repo); err != nil {
			return err
		}
		cfg := conf.GetConfig()
		if !cfg.ChainEnabled() {
			return fmt.Errorf("no chain configured, set Chain.RpcUrl and Chain.CoreContract")
		}

		client, err := ethclient.DialContext(ctx, cfg.Chain.RpcUrl)
		if err != nil {
			return fmt.Errorf("failed to dial rpc %s: %w", cfg.Chain.RpcUrl, err)
		}
		defer client.Close()

		stub, err := core.NewCoreStub(client, cfg.Chain.CoreContract)
		if err != nil {
			return err
		}
		latest, err := stub.LatestBlock(ctx)
		if err != nil {
			return err
		}
		stats, err := stub.TotalStats(ctx)
		if err != nil {
			return err
		}

		data := [][]string{
			{"TOTAL NODES:", stats.TotalNodes.String()},
			{"TOTAL JOBS:", stats.TotalJobs.String()},
			{"ACTIVE JOBS:", stats.ActiveJobs.String()},
			{"LATEST BLOCK:", fmt.Sprint(latest)},
		}
		util.NewVisualTable([]string{"CONTRACT:", cfg.Chain.CoreContract}, data, nil).Generate()
		return nil
	},
}
