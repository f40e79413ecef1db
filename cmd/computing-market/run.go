package main

import (
	"context"
	"os"
	"strconv"
	"time"

	"github.com/filswan/go-swan-lib/logs"
	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"github.com/itsjamie/gin-cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"

	"github.com/lagrangedao/go-computing-market/internal/initializer"
	"github.com/lagrangedao/go-computing-market/util"
)

var runCmd = &cli.Command{
	Name:  "run",
	Usage: "Start a market node",
	Action: func(cctx *cli.Context) error {
		logs.GetLogger().Info("Start in computing market mode.")

		repo, err := repoPath(cctx)
		if err != nil {
			return err
		}
		os.Setenv("MARKET_PATH", repo)
		market, err := initializer.ProjectInit(repo)
		if err != nil {
			return err
		}
		defer market.Close()

		r := gin.Default()
		r.Use(cors.Middleware(cors.Config{
			Origins:         "*",
			Methods:         "GET, PUT, POST, DELETE",
			RequestHeaders:  "Origin, Authorization, Content-Type",
			ExposedHeaders:  "",
			MaxAge:          50 * time.Second,
			ValidateHeaders: false,
		}))
		pprof.Register(r)
		r.GET("/metrics", gin.WrapH(promhttp.Handler()))

		v1 := r.Group("/api/v1")
		market.RegisterRoutes(v1.Group("/market"))

		ctx, cancel := context.WithCancel(cctx.Context)
		defer cancel()
		market.Start(ctx)

		api := market.Config.API
		logs.GetLogger().Infof("market node: %s, db backend: %s, chain sync: %t", api.NodeName, market.Config.DB.Backend, market.Sync.Enabled())
		shutdownChan := make(chan struct{})
		httpStopper, err := util.ServeHttp(r, "market-api", ":"+strconv.Itoa(api.Port), api.CrtFile, api.KeyFile)
		if err != nil {
			logs.GetLogger().Fatalf("failed to start market-api endpoint: %s", err)
		}

		finishCh := util.MonitorShutdown(shutdownChan,
			util.ShutdownHandler{Component: "market-api", StopFunc: httpStopper},
			util.ShutdownHandler{Component: "sync-poller", StopFunc: func(context.Context) error {
				cancel()
				return nil
			}},
		)
		<-finishCh

		return nil
	},
}
