package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/urfave/cli/v2"

	"github.com/lagrangedao/go-computing-market/conf"
	"github.com/lagrangedao/go-computing-market/util"
	"github.com/lagrangedao/go-computing-market/wallet"
)

var walletCmd = &cli.Command{
	Name:  "wallet",
	Usage: "Manage wallets",
	Subcommands: []*cli.Command{
		walletNew,
		walletList,
		walletExport,
		walletImport,
		walletDelete,
		walletSign,
		walletVerify,
		walletSend,
	},
}

var rpcFlag = &cli.StringFlag{
	Name:  "rpc",
	Usage: "chain rpc url, defaults to Chain.RpcUrl of the market config",
}

func openWallet(cctx *cli.Context) (*wallet.LocalWallet, error) {
	repo, err := repoPath(cctx)
	if err != nil {
		return nil, err
	}
	return wallet.SetupWallet(repo)
}

// dialChain connects to the --rpc url, or the configured one. A nil client
// with a nil error means no rpc is known.
func dialChain(cctx *cli.Context) (*ethclient.Client, error) {
	rpc := cctx.String("rpc")
	if rpc == "" {
		repo, err := repoPath(cctx)
		if err != nil {
			return nil, err
		}
		if err := conf.InitConfig(repo); err == nil {
			rpc = conf.GetConfig().Chain.RpcUrl
		}
	}
	if strings.TrimSpace(rpc) == "" {
		return nil, nil
	}
	client, err := ethclient.DialContext(cctx.Context, rpc)
	if err != nil {
		return nil, fmt.Errorf("failed to dial rpc %s: %w", rpc, err)
	}
	return client, nil
}

var walletNew = &cli.Command{
	Name:  "new",
	Usage: "Generate a new key",
	Action: func(cctx *cli.Context) error {
		ctx := util.ReqContext(cctx.Context)
		localWallet, err := openWallet(cctx)
		if err != nil {
			return err
		}
		addr, err := localWallet.WalletNew(ctx)
		if err != nil {
			return err
		}
		fmt.Println(addr)
		return nil
	},
}

var walletList = &cli.Command{
	Name:  "list",
	Usage: "List wallet address",
	Flags: []cli.Flag{rpcFlag},
	Action: func(cctx *cli.Context) error {
		ctx := util.ReqContext(cctx.Context)
		localWallet, err := openWallet(cctx)
		if err != nil {
			return err
		}
		client, err := dialChain(cctx)
		if err != nil {
			return err
		}
		if client != nil {
			defer client.Close()
		}

		wallets, err := localWallet.WalletList(ctx, client)
		if err != nil {
			return err
		}

		var data [][]string
		var rowColor []util.RowColor
		for i, w := range wallets {
			data = append(data, []string{w.Address, w.Balance, fmt.Sprint(w.Nonce), w.Error})
			if w.Error != "" {
				rowColor = append(rowColor, util.RowColor{Row: i, Column: []int{3}, Color: util.FailColor})
			}
		}
		util.NewVisualTable([]string{"ADDRESS", "BALANCE", "NONCE", "ERROR"}, data, rowColor).Generate()
		return nil
	},
}

var walletExport = &cli.Command{
	Name:      "export",
	Usage:     "export keys",
	ArgsUsage: "[address]",
	Action: func(cctx *cli.Context) error {
		ctx := util.ReqContext(cctx.Context)
		if !cctx.Args().Present() {
			return fmt.Errorf("must specify key to export")
		}
		localWallet, err := openWallet(cctx)
		if err != nil {
			return err
		}

		ki, err := localWallet.WalletExport(ctx, cctx.Args().First())
		if err != nil {
			return err
		}
		fmt.Println(ki.PrivateKey)
		return nil
	},
}

var walletImport = &cli.Command{
	Name:      "import",
	Usage:     "import keys",
	ArgsUsage: "[<path> (optional, will read from stdin if omitted)]",
	Action: func(cctx *cli.Context) error {
		ctx := util.ReqContext(cctx.Context)
		localWallet, err := openWallet(cctx)
		if err != nil {
			return err
		}

		var inpdata []byte
		if !cctx.Args().Present() || cctx.Args().First() == "-" {
			reader := bufio.NewReader(os.Stdin)
			fmt.Print("Enter private key: ")
			inpdata, err = reader.ReadBytes('\n')
			if err != nil {
				return err
			}
		} else {
			inpdata, err = os.ReadFile(cctx.Args().First())
			if err != nil {
				return err
			}
		}

		addr, err := localWallet.WalletImport(ctx, &wallet.KeyInfo{PrivateKey: string(inpdata)})
		if err != nil {
			return err
		}
		fmt.Println(util.SuccessMsg(fmt.Sprintf("imported key %s successfully!", addr)))
		return nil
	},
}

var walletDelete = &cli.Command{
	Name:      "delete",
	Usage:     "Delete an account from the wallet",
	ArgsUsage: "<address>",
	Action: func(cctx *cli.Context) error {
		ctx := util.ReqContext(cctx.Context)
		if cctx.NArg() != 1 {
			return fmt.Errorf("must specify address to delete")
		}
		localWallet, err := openWallet(cctx)
		if err != nil {
			return err
		}
		return localWallet.WalletDelete(ctx, cctx.Args().First())
	},
}

var walletSign = &cli.Command{
	Name:      "sign",
	Usage:     "Sign a message",
	ArgsUsage: "<signing address> <message>",
	Action: func(cctx *cli.Context) error {
		ctx := util.ReqContext(cctx.Context)
		if cctx.NArg() != 2 {
			return fmt.Errorf("must specify signing address and message to sign")
		}
		addr := cctx.Args().First()
		msg := cctx.Args().Get(1)
		if strings.TrimSpace(msg) == "" {
			return fmt.Errorf("failed to parse message")
		}

		localWallet, err := openWallet(cctx)
		if err != nil {
			return err
		}
		sig, err := localWallet.WalletSign(ctx, addr, []byte(msg))
		if err != nil {
			return err
		}
		fmt.Println(sig)
		return nil
	},
}

var walletVerify = &cli.Command{
	Name:      "verify",
	Usage:     "verify the signature of a message",
	ArgsUsage: "<signing address> <signature> <raw message>",
	Action: func(cctx *cli.Context) error {
		ctx := util.ReqContext(cctx.Context)
		if cctx.NArg() != 3 {
			return fmt.Errorf("incorrect number of arguments, requires 3 parameters")
		}

		sigBytes, err := hexutil.Decode(cctx.Args().Get(1))
		if err != nil {
			return err
		}
		messageData := cctx.Args().Get(2)
		if strings.TrimSpace(messageData) == "" {
			return fmt.Errorf("failed to get raw message")
		}

		localWallet, err := openWallet(cctx)
		if err != nil {
			return err
		}
		pass, err := localWallet.WalletVerify(ctx, cctx.Args().First(), sigBytes, messageData)
		if err != nil {
			return err
		}
		fmt.Println(pass)
		return nil
	},
}

var walletSend = &cli.Command{
	Name:      "send",
	Usage:     "Send funds between accounts",
	ArgsUsage: "[targetAddress] [amount]",
	Flags: []cli.Flag{
		rpcFlag,
		&cli.StringFlag{
			Name:     "from",
			Usage:    "specify the account to send funds from",
			Required: true,
		},
	},
	Action: func(cctx *cli.Context) error {
		ctx := util.ReqContext(cctx.Context)
		if cctx.NArg() != 2 {
			return fmt.Errorf("need two params: the target address and amount")
		}

		client, err := dialChain(cctx)
		if err != nil {
			return err
		}
		if client == nil {
			return fmt.Errorf("no rpc configured, pass --rpc")
		}
		defer client.Close()

		localWallet, err := openWallet(cctx)
		if err != nil {
			return err
		}
		txHash, err := localWallet.WalletSend(ctx, client, cctx.String("from"), cctx.Args().Get(0), cctx.Args().Get(1))
		if err != nil {
			return err
		}
		fmt.Println(txHash)
		return nil
	},
}
