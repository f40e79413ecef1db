package main

import (
	"fmt"
	"strconv"

	"github.com/urfave/cli/v2"

	"github.com/lagrangedao/go-computing-market/internal/computing"
	"github.com/lagrangedao/go-computing-market/util"
)

var jobCmd = &cli.Command{
	Name:  "job",
	Usage: "Manage jobs",
	Subcommands: []*cli.Command{
		jobList,
		jobGet,
		jobCreate,
		jobJoin,
		jobSubmit,
	},
}

var jobList = &cli.Command{
	Name:  "list",
	Usage: "List jobs",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "search"},
		&cli.StringSliceFlag{Name: "status", Usage: "PENDING, ACTIVE, COMPLETED or FAILED, repeatable"},
		&cli.IntFlag{Name: "limit"},
		&cli.IntFlag{Name: "offset"},
	},
	Action: func(cctx *cli.Context) error {
		ctx := util.ReqContext(cctx.Context)
		jobs, err := client(cctx).ListJobs(ctx, ListJobsParams{
			Search:   cctx.String("search"),
			Statuses: cctx.StringSlice("status"),
			Limit:    cctx.Int("limit"),
			Offset:   cctx.Int("offset"),
		})
		if err != nil {
			return err
		}

		var data [][]string
		var rowColor []util.RowColor
		for i, job := range jobs {
			var onchain string
			if job.OnchainID != nil {
				onchain = strconv.FormatUint(*job.OnchainID, 10)
			}
			data = append(data, []string{strconv.FormatUint(job.ID, 10), job.Title, job.Reward,
				strconv.Itoa(job.RequiredNodes), job.Deadline, string(job.Status), onchain})
			rowColor = append(rowColor, util.RowColor{Row: i, Column: []int{5}, Color: util.StatusColor(job.Status)})
		}
		header := []string{"ID", "TITLE", "REWARD", "NODES", "DEADLINE", "STATUS", "ONCHAIN ID"}
		util.NewVisualTable(header, data, rowColor).Generate()
		return nil
	},
}

func printJob(job *computing.JobView) {
	var onchainID, onchainTx string
	if job.OnchainID != nil {
		onchainID = strconv.FormatUint(*job.OnchainID, 10)
	}
	if job.OnchainTx != nil {
		onchainTx = *job.OnchainTx
	}

	taskData := [][]string{
		{"TITLE:", job.Title},
		{"DESCRIPTION:", job.Description},
		{"REWARD:", job.Reward},
		{"REQUIRED NODES:", strconv.Itoa(job.RequiredNodes)},
		{"STATUS:", string(job.Status)},
		{"DEADLINE:", job.Deadline},
		{"ONCHAIN ID:", onchainID},
		{"ONCHAIN TX:", onchainTx},
	}
	rowColor := []util.RowColor{{Row: 4, Column: []int{1}, Color: util.StatusColor(job.Status)}}
	util.NewVisualTable([]string{"JOB ID:", strconv.FormatUint(job.ID, 10)}, taskData, rowColor).Generate()
}

func jobIDArg(cctx *cli.Context) (uint64, error) {
	if cctx.NArg() < 1 {
		return 0, fmt.Errorf("must specify the job id")
	}
	id, err := strconv.ParseUint(cctx.Args().First(), 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid job id: %s", cctx.Args().First())
	}
	return id, nil
}

var jobGet = &cli.Command{
	Name:      "get",
	Usage:     "Get job detail info",
	ArgsUsage: "<job id>",
	Action: func(cctx *cli.Context) error {
		id, err := jobIDArg(cctx)
		if err != nil {
			return err
		}
		job, err := client(cctx).GetJob(util.ReqContext(cctx.Context), id)
		if err != nil {
			return err
		}
		printJob(job)
		return nil
	},
}

var jobCreate = &cli.Command{
	Name:  "create",
	Usage: "Create a job in the market ledger",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "title", Required: true},
		&cli.StringFlag{Name: "description"},
		&cli.Uint64Flag{Name: "reward"},
		&cli.IntFlag{Name: "nodes", Value: 1, Usage: "number of compute nodes the job needs"},
		&cli.StringFlag{Name: "deadline", Required: true, Usage: "RFC 3339 timestamp or a relative form like \"in 2d\""},
		&cli.StringFlag{Name: "requester", Required: true, Usage: "requester address"},
		&cli.Uint64Flag{Name: "onchain-id", Usage: "chain job id, when the job was published elsewhere"},
		&cli.StringFlag{Name: "onchain-tx"},
	},
	Action: func(cctx *cli.Context) error {
		body := computing.CreateJobBody{
			Title:            cctx.String("title"),
			Description:      cctx.String("description"),
			Reward:           cctx.Uint64("reward"),
			RequiredNodes:    cctx.Int("nodes"),
			Deadline:         cctx.String("deadline"),
			RequesterAddress: cctx.String("requester"),
			OnchainTx:        cctx.String("onchain-tx"),
		}
		if cctx.IsSet("onchain-id") {
			id := cctx.Uint64("onchain-id")
			body.OnchainID = &id
		}
		job, err := client(cctx).CreateJob(util.ReqContext(cctx.Context), body)
		if err != nil {
			return err
		}
		printJob(job)
		return nil
	},
}

var workerFlag = &cli.StringFlag{
	Name:     "worker",
	Usage:    "worker address",
	Required: true,
}

var jobJoin = &cli.Command{
	Name:      "join",
	Usage:     "Join a job as a worker",
	ArgsUsage: "<job id>",
	Flags:     []cli.Flag{workerFlag},
	Action: func(cctx *cli.Context) error {
		id, err := jobIDArg(cctx)
		if err != nil {
			return err
		}
		res, err := client(cctx).JoinJob(util.ReqContext(cctx.Context), id, cctx.String("worker"))
		if err != nil {
			return err
		}
		fmt.Println(util.SuccessMsg(fmt.Sprintf("joined job %d, status: %s", id, res.Status)))
		return nil
	},
}

var jobSubmit = &cli.Command{
	Name:      "submit",
	Usage:     "Submit the result of a job and collect the payout",
	ArgsUsage: "<job id>",
	Flags:     []cli.Flag{workerFlag},
	Action: func(cctx *cli.Context) error {
		id, err := jobIDArg(cctx)
		if err != nil {
			return err
		}
		res, err := client(cctx).SubmitJob(util.ReqContext(cctx.Context), id, cctx.String("worker"))
		if err != nil {
			return err
		}
		fmt.Println(util.SuccessMsg(fmt.Sprintf("job %d completed, earned %d", id, res.Amount)))
		return nil
	},
}
