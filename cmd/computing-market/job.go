package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/lagrangedao/go-computing-market/constants"
	"github.com/lagrangedao/go-computing-market/internal/computing"
	"github.com/lagrangedao/go-computing-market/internal/initializer"
	"github.com/lagrangedao/go-computing-market/internal/models"
	"github.com/lagrangedao/go-computing-market/internal/store"
	"github.com/lagrangedao/go-computing-market/util"
	"github.com/lagrangedao/go-computing-market/wallet"
)

var jobCmd = &cli.Command{
	Name:  "job",
	Usage: "Manage jobs in the local ledger",
	Subcommands: []*cli.Command{
		jobList,
		jobPublish,
	},
}

var jobList = &cli.Command{
	Name:  "list",
	Usage: "List jobs",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "search",
			Usage: "case-insensitive match on title or description",
		},
		&cli.StringSliceFlag{
			Name:  "status",
			Usage: "PENDING, ACTIVE, COMPLETED or FAILED, repeatable",
		},
		&cli.IntFlag{
			Name:  "limit",
			Value: constants.DEFAULT_LIST_LIMIT,
		},
		&cli.IntFlag{
			Name: "offset",
		},
	},
	Action: func(cctx *cli.Context) error {
		ctx := util.ReqContext(cctx.Context)
		filter := store.JobFilter{
			Search: cctx.String("search"),
			Limit:  cctx.Int("limit"),
			Offset: cctx.Int("offset"),
		}
		for _, s := range cctx.StringSlice("status") {
			status, err := models.ParseJobStatus(s)
			if err != nil {
				return err
			}
			filter.Statuses = append(filter.Statuses, status)
		}

		repo, err := repoPath(cctx)
		if err != nil {
			return err
		}
		market, err := initializer.ProjectInit(repo)
		if err != nil {
			return err
		}
		defer market.Close()

		jobs, err := market.Lifecycle.ListJobs(ctx, filter)
		if err != nil {
			return err
		}

		now := market.Lifecycle.Now()
		var data [][]string
		var rowColor []util.RowColor
		for i, job := range jobs {
			view := computing.NewJobView(job, now)
			var onchain string
			if view.OnchainID != nil {
				onchain = strconv.FormatUint(*view.OnchainID, 10)
			}
			data = append(data, []string{strconv.FormatUint(view.ID, 10), view.Title, view.Reward,
				strconv.Itoa(view.RequiredNodes), view.Deadline, string(view.Status), onchain})
			rowColor = append(rowColor, util.RowColor{Row: i, Column: []int{5}, Color: util.StatusColor(view.Status)})
		}
		header := []string{"ID", "TITLE", "REWARD", "NODES", "DEADLINE", "STATUS", "ONCHAIN ID"}
		util.NewVisualTable(header, data, rowColor).Generate()
		return nil
	},
}

var jobPublish = &cli.Command{
	Name:  "publish",
	Usage: "Create a job on chain and record it in the ledger",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:     "from",
			Usage:    "wallet address that signs the createJob transaction",
			Required: true,
		},
		&cli.StringFlag{
			Name:     "title",
			Required: true,
		},
		&cli.StringFlag{
			Name: "description",
		},
		&cli.Uint64Flag{
			Name:  "reward",
			Usage: "reward in whole " + constants.REWARD_UNIT,
		},
		&cli.IntFlag{
			Name:  "nodes",
			Usage: "number of compute nodes the job needs",
			Value: 1,
		},
		&cli.StringFlag{
			Name:     "deadline",
			Usage:    "RFC 3339 timestamp or a relative form like \"in 2d\"",
			Required: true,
		},
		&cli.StringFlag{
			Name:  "requester",
			Usage: "requester address, defaults to the signing address",
		},
	},
	Action: func(cctx *cli.Context) error {
		ctx := util.ReqContext(cctx.Context)
		repo, err := repoPath(cctx)
		if err != nil {
			return err
		}

		localWallet, err := wallet.SetupWallet(repo)
		if err != nil {
			return err
		}
		signer, err := localWallet.Signer(ctx, cctx.String("from"))
		if err != nil {
			return err
		}

		market, err := initializer.ProjectInit(repo)
		if err != nil {
			return err
		}
		defer market.Close()

		publisher, err := market.Publisher(signer)
		if err != nil {
			return err
		}

		requester := cctx.String("requester")
		if strings.TrimSpace(requester) == "" {
			requester = signer.Address()
		}
		job, err := publisher.Publish(ctx, computing.CreateJobRequest{
			Title:            cctx.String("title"),
			Description:      cctx.String("description"),
			Reward:           cctx.Uint64("reward"),
			RequiredNodes:    cctx.Int("nodes"),
			Deadline:         cctx.String("deadline"),
			RequesterAddress: requester,
		})
		if err != nil {
			return err
		}
		fmt.Println(util.SuccessMsg(fmt.Sprintf("job %d published, onchain id: %d, tx: %s",
			job.ID, job.External.JobID, job.External.TxHash)))
		return nil
	},
}
