package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/lagrangedao/go-computing-market/constants"
	"github.com/lagrangedao/go-computing-market/internal/computing"
	"github.com/lagrangedao/go-computing-market/util"
)

var earningsCmd = &cli.Command{
	Name:  "earnings",
	Usage: "List the earnings of an address, newest first",
	Flags: []cli.Flag{
		addressFlag,
		&cli.IntFlag{Name: "limit"},
		&cli.IntFlag{Name: "offset"},
	},
	Action: func(cctx *cli.Context) error {
		earnings, err := client(cctx).Earnings(util.ReqContext(cctx.Context), cctx.String("address"), cctx.Int("limit"), cctx.Int("offset"))
		if err != nil {
			return err
		}
		var data [][]string
		for _, e := range earnings {
			data = append(data, []string{strconv.FormatUint(e.JobID, 10), e.JobTitle,
				fmt.Sprintf("%d %s", e.Amount, constants.REWARD_UNIT), e.CreatedAt.Local().Format(time.DateTime)})
		}
		util.NewVisualTable([]string{"JOB ID", "JOB TITLE", "AMOUNT", "PAID AT"}, data, nil).Generate()
		return nil
	},
}

var statsCmd = &cli.Command{
	Name:  "stats",
	Usage: "Show network totals",
	Action: func(cctx *cli.Context) error {
		stats, err := client(cctx).NetworkStats(util.ReqContext(cctx.Context))
		if err != nil {
			return err
		}
		data := [][]string{
			{"TOTAL NODES:", strconv.Itoa(stats.TotalNodes)},
			{"ACTIVE JOBS:", strconv.Itoa(stats.ActiveJobs)},
			{"TOTAL REWARDS:", fmt.Sprintf("%d %s", stats.TotalRewards, constants.REWARD_UNIT)},
		}
		util.NewVisualTable([]string{"NETWORK", ""}, data, nil).Generate()
		return nil
	},
}

var syncCmd = &cli.Command{
	Name:  "sync",
	Usage: "Trigger a JobCreated sync pass on the node",
	Flags: []cli.Flag{
		&cli.Uint64Flag{Name: "from", Usage: "first block of the range"},
		&cli.Uint64Flag{Name: "to", Usage: "last block of the range"},
	},
	Action: func(cctx *cli.Context) error {
		var req computing.SyncRequest
		if cctx.IsSet("from") {
			from := cctx.Uint64("from")
			req.FromBlock = &from
		}
		if cctx.IsSet("to") {
			to := cctx.Uint64("to")
			req.ToBlock = &to
		}
		res, err := client(cctx).Sync(util.ReqContext(cctx.Context), req)
		if err != nil {
			return err
		}
		msg := fmt.Sprintf("synced %d, created %d, skipped %d, failed %d, blocks %d - %d",
			res.Synced, res.Created, res.Skipped, res.Failed, res.FromBlock, res.ToBlock)
		if res.Failed > 0 {
			fmt.Println(util.WarnMsg(msg))
			return nil
		}
		fmt.Println(util.SuccessMsg(msg))
		return nil
	},
}
