package cmd

import (
	"fmt"

	"github.com/mgutz/ansi"
	"github.com/urfave/cli/v2"
	"golang.org/x/xerrors"

	"github.com/memoio/go-voicemint/build"
	"github.com/memoio/go-voicemint/lib/address"
	"github.com/memoio/go-voicemint/lib/types"
	"github.com/memoio/go-voicemint/submodule/connect/chain"
)

var WalletCmd = &cli.Command{
	Name:  "wallet",
	Usage: "Interact with wallet",
	Subcommands: []*cli.Command{
		walletNewCmd,
		walletListCmd,
		walletDefaultCmd,
	},
}

var walletListCmd = &cli.Command{
	Name:  "list",
	Usage: "list all addrs",
	Action: func(cctx *cli.Context) error {
		rep, err := openRepo(cctx)
		if err != nil {
			return err
		}
		defer rep.Close()

		w, err := openWallet(rep)
		if err != nil {
			return err
		}

		addrs, err := w.List()
		if err != nil {
			return err
		}

		def, _ := address.ParseOptional(rep.Config().Wallet.DefaultAddress)
		for _, as := range addrs {
			if as == def {
				fmt.Println(ansi.Color(as.Hex()+" (default)", "green"))
				continue
			}
			fmt.Println(as.Hex())
		}
		return nil
	},
}

var walletNewCmd = &cli.Command{
	Name:  "new",
	Usage: "create a new wallet address",
	Flags: []cli.Flag{
		passwordFlag,
		&cli.BoolFlag{
			Name:  "default",
			Usage: "make the new address the default",
		},
	},
	Action: func(cctx *cli.Context) error {
		rep, err := openRepo(cctx)
		if err != nil {
			return err
		}
		defer rep.Close()

		pw, err := getPassword(cctx, "Enter password for the new account: ")
		if err != nil {
			return err
		}

		w, err := openWallet(rep)
		if err != nil {
			return err
		}
		acct, err := w.Create(pw)
		if err != nil {
			return err
		}
		w.Lock()

		cfg := rep.Config()
		if cctx.Bool("default") || cfg.Wallet.DefaultAddress == "" {
			cfg.Wallet.DefaultAddress = acct.Address.Hex()
			if err := rep.ReplaceConfig(cfg); err != nil {
				return err
			}
		}

		fmt.Println(acct.Address.Hex())
		return nil
	},
}

var walletDefaultCmd = &cli.Command{
	Name:      "default",
	Usage:     "set the address used for signing",
	ArgsUsage: "<address>",
	Action: func(cctx *cli.Context) error {
		if !cctx.Args().Present() {
			return xerrors.New("address is required")
		}
		addr, err := address.Parse(cctx.Args().First())
		if err != nil {
			return err
		}

		rep, err := openRepo(cctx)
		if err != nil {
			return err
		}
		defer rep.Close()

		w, err := openWallet(rep)
		if err != nil {
			return err
		}
		addrs, err := w.List()
		if err != nil {
			return err
		}
		found := false
		for _, a := range addrs {
			if a == addr {
				found = true
				break
			}
		}
		if !found {
			return xerrors.Errorf("%s is not in the keystore", addr)
		}

		cfg := rep.Config()
		cfg.Wallet.DefaultAddress = addr.Hex()
		return rep.ReplaceConfig(cfg)
	},
}

var BalanceCmd = &cli.Command{
	Name:      "balance",
	Usage:     "show the native coin balance (earnings) of an address",
	ArgsUsage: "[address]",
	Action: func(cctx *cli.Context) error {
		rep, err := openRepo(cctx)
		if err != nil {
			return err
		}
		defer rep.Close()

		cfg := rep.Config()
		target := cfg.Wallet.DefaultAddress
		if cctx.Args().Present() {
			target = cctx.Args().First()
		}
		addr, err := address.Parse(target)
		if err != nil {
			return xerrors.Errorf("address %q: %w", target, err)
		}

		client, err := chain.Dial(cctx.Context, cfg.Chain)
		if err != nil {
			return err
		}

		val, err := client.Balance(cctx.Context, addr)
		if err != nil {
			return err
		}

		fmt.Printf("%s: %s\n", addr.Hex(), types.FormatSmallest(val, build.NativeDecimals))
		return nil
	},
}
