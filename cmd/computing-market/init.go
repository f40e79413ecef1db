package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/urfave/cli/v2"

	"github.com/lagrangedao/go-computing-market/conf"
	"github.com/lagrangedao/go-computing-market/util"
)

var initCmd = &cli.Command{
	Name:  "init",
	Usage: "Write a default config.toml into the market repo",
	Flags: []cli.Flag{
		&cli.BoolFlag{
			Name:  "force",
			Usage: "overwrite an existing config.toml",
		},
	},
	Action: func(cctx *cli.Context) error {
		repo, err := repoPath(cctx)
		if err != nil {
			return err
		}
		if err := os.MkdirAll(repo, 0755); err != nil {
			return err
		}

		configFile := filepath.Join(repo, "config.toml")
		if _, err := os.Stat(configFile); err == nil && !cctx.Bool("force") {
			return fmt.Errorf("%s already exists, use --force to overwrite it", configFile)
		}

		f, err := os.Create(configFile)
		if err != nil {
			return err
		}
		defer f.Close()
		if err := toml.NewEncoder(f).Encode(conf.DefaultConfig()); err != nil {
			return fmt.Errorf("failed to write config file: %w", err)
		}
		fmt.Println(util.SuccessMsg("wrote " + configFile))
		return nil
	},
}
