package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/lagrangedao/go-computing-market/constants"
	"github.com/lagrangedao/go-computing-market/internal/models"
	"github.com/lagrangedao/go-computing-market/util"
)

var nodeCmd = &cli.Command{
	Name:  "node",
	Usage: "Manage compute nodes",
	Subcommands: []*cli.Command{
		nodeRegister,
		nodeStats,
		nodeHeartbeat,
	},
}

var addressFlag = &cli.StringFlag{
	Name:     "address",
	Usage:    "node wallet address",
	Required: true,
}

func printNode(node *models.ComputeNode) {
	status := constants.StatusOffline
	if node.IsActive {
		status = constants.StatusActive
	}
	var heartbeat string
	if node.LastHeartbeat != nil {
		heartbeat = node.LastHeartbeat.Local().Format(time.DateTime)
	}
	data := [][]string{
		{"COMPUTE POWER:", strconv.FormatFloat(node.ComputePower, 'f', -1, 64)},
		{"REPUTATION:", strconv.FormatFloat(node.Reputation, 'f', -1, 64)},
		{"STATUS:", status},
		{"TOTAL EARNINGS:", fmt.Sprintf("%v %s", node.TotalEarnings, constants.REWARD_UNIT)},
		{"LAST HEARTBEAT:", heartbeat},
	}
	var rowColor []util.RowColor
	if !node.IsActive {
		rowColor = append(rowColor, util.RowColor{Row: 2, Column: []int{1}, Color: util.FailColor})
	}
	util.NewVisualTable([]string{"NODE:", node.Address}, data, rowColor).Generate()
}

var nodeRegister = &cli.Command{
	Name:  "register",
	Usage: "Register a compute node or update its compute power",
	Flags: []cli.Flag{
		addressFlag,
		&cli.Float64Flag{Name: "compute-power", Required: true},
	},
	Action: func(cctx *cli.Context) error {
		node, err := client(cctx).RegisterNode(util.ReqContext(cctx.Context), cctx.String("address"), cctx.Float64("compute-power"))
		if err != nil {
			return err
		}
		printNode(node)
		return nil
	},
}

var nodeStats = &cli.Command{
	Name:  "stats",
	Usage: "Show a compute node",
	Flags: []cli.Flag{addressFlag},
	Action: func(cctx *cli.Context) error {
		node, err := client(cctx).NodeStats(util.ReqContext(cctx.Context), cctx.String("address"))
		if err != nil {
			return err
		}
		printNode(node)
		return nil
	},
}

var nodeHeartbeat = &cli.Command{
	Name:  "heartbeat",
	Usage: "Record a heartbeat for a compute node",
	Flags: []cli.Flag{addressFlag},
	Action: func(cctx *cli.Context) error {
		node, err := client(cctx).Heartbeat(util.ReqContext(cctx.Context), cctx.String("address"))
		if err != nil {
			return err
		}
		fmt.Println(util.SuccessMsg("heartbeat recorded at " + node.LastHeartbeat.Local().Format(time.DateTime)))
		return nil
	},
}
