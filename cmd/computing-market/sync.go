package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/lagrangedao/go-computing-market/conf"
	"github.com/lagrangedao/go-computing-market/constants"
	"github.com/lagrangedao/go-computing-market/internal/computing"
	"github.com/lagrangedao/go-computing-market/internal/initializer"
	"github.com/lagrangedao/go-computing-market/internal/seed"
	"github.com/lagrangedao/go-computing-market/util"
)

var syncCmd = &cli.Command{
	Name:  "sync",
	Usage: "Run one JobCreated sync pass against the configured contract",
	Description: "Without --from and --to the pass resumes after the stored cursor. " +
		"An explicit range is replayed without moving the cursor. " +
		"A leveldb ledger is locked by a running node, use the /sync/jobs/created endpoint there instead.",
	Flags: []cli.Flag{
		&cli.Uint64Flag{
			Name:  "from",
			Usage: "first block of the range",
		},
		&cli.Uint64Flag{
			Name:  "to",
			Usage: "last block of the range",
		},
		&cli.BoolFlag{
			Name:  "queue",
			Usage: "enqueue the pass on the celery queue of a running node instead of running it here",
		},
	},
	Action: func(cctx *cli.Context) error {
		ctx := util.ReqContext(cctx.Context)
		repo, err := repoPath(cctx)
		if err != nil {
			return err
		}
		if cctx.Bool("queue") {
			return enqueueSync(cctx, repo)
		}
		market, err := initializer.ProjectInit(repo)
		if err != nil {
			return err
		}
		defer market.Close()

		var req computing.SyncRequest
		if cctx.IsSet("from") {
			from := cctx.Uint64("from")
			req.FromBlock = &from
		}
		if cctx.IsSet("to") {
			to := cctx.Uint64("to")
			req.ToBlock = &to
		}

		result, err := market.Sync.Sync(ctx, req)
		if err != nil {
			return err
		}

		failed := strconv.Itoa(result.Failed)
		var rowColor []util.RowColor
		if result.Failed > 0 {
			rowColor = append(rowColor, util.RowColor{Row: 3, Column: []int{1}, Color: util.FailColor})
		}
		data := [][]string{
			{"SYNCED:", strconv.Itoa(result.Synced)},
			{"CREATED:", strconv.Itoa(result.Created)},
			{"SKIPPED:", strconv.Itoa(result.Skipped)},
			{"FAILED:", failed},
			{"BLOCKS:", fmt.Sprintf("%d - %d", result.FromBlock, result.ToBlock)},
			{"CURSOR:", strconv.FormatUint(result.LastBlock, 10)},
		}
		util.NewVisualTable([]string{"PASS:", result.PassID}, data, rowColor).Generate()
		return nil
	},
}

// enqueueSync hands the pass to the node worker over redis, so it does not
// need the ledger lock.
func enqueueSync(cctx *cli.Context, repo string) error {
	if err := conf.InitConfig(repo); err != nil {
		return err
	}
	cfg := conf.GetConfig()
	if cfg.Redis.Url == "" {
		return fmt.Errorf("--queue needs Redis.Url in the market config")
	}
	pool := computing.NewRedisPool(cfg.Redis.Url, cfg.Redis.Password)
	defer pool.Close()
	celery, err := computing.NewCeleryService(pool)
	if err != nil {
		return err
	}

	from, to := -1, -1
	if cctx.IsSet("from") && cctx.IsSet("to") {
		from, to = int(cctx.Uint64("from")), int(cctx.Uint64("to"))
	}
	result, err := celery.DelayTask(constants.TASK_SYNC_JOB_CREATED, from, to)
	if err != nil {
		return fmt.Errorf("enqueue %s: %w", constants.TASK_SYNC_JOB_CREATED, err)
	}
	out, err := result.Get(5 * time.Minute)
	if err != nil {
		return fmt.Errorf("wait for %s: %w", constants.TASK_SYNC_JOB_CREATED, err)
	}
	fmt.Println(out)
	return nil
}

var seedCmd = &cli.Command{
	Name:      "seed",
	Usage:     "Load accounts, compute nodes and jobs from a yaml seed file",
	ArgsUsage: "<seed.yaml>",
	Action: func(cctx *cli.Context) error {
		if cctx.NArg() != 1 {
			return fmt.Errorf("incorrect number of arguments, got %d", cctx.NArg())
		}
		ctx := util.ReqContext(cctx.Context)

		f, err := seed.Load(cctx.Args().First())
		if err != nil {
			return err
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

		res, err := seed.Apply(ctx, f, market.Store, market.Lifecycle, market.Nodes)
		if err != nil {
			return err
		}
		fmt.Println(util.SuccessMsg(fmt.Sprintf("seeded %d accounts, %d nodes, %d jobs (%d skipped)",
			res.Accounts, res.Nodes, res.Jobs, res.Skipped)))
		return nil
	},
}
