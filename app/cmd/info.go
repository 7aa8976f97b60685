package cmd

import (
	"fmt"
	"time"

	"github.com/mgutz/ansi"
	"github.com/urfave/cli/v2"

	"github.com/memoio/go-voicemint/build"
	"github.com/memoio/go-voicemint/lib/types"
	"github.com/memoio/go-voicemint/service/publish"
)

var InfoCmd = &cli.Command{
	Name:  "info",
	Usage: "print information of this repo",
	Action: func(cctx *cli.Context) error {
		rep, err := openRepo(cctx)
		if err != nil {
			return err
		}
		defer rep.Close()

		path, _ := rep.Path()
		cfg := rep.Config()

		fmt.Println(ansi.Color("----------- Information -----------", "green"))
		fmt.Println(time.Now())
		fmt.Println("Version: ", build.UserVersion())
		fmt.Println("Repo:    ", path)

		fmt.Println(ansi.Color("----------- Chain Information -----------", "green"))
		fmt.Println("Endpoint:     ", cfg.Chain.Endpoint)
		if cfg.Chain.ChainID != 0 {
			fmt.Println("Chain ID:     ", cfg.Chain.ChainID)
		}
		fmt.Println("NFT:          ", cfg.Contracts.NFT)
		fmt.Println("Marketplace:  ", cfg.Contracts.Market)
		if cfg.Contracts.Currency == "" {
			fmt.Println("Currency:      native")
		} else {
			fmt.Println("Currency:     ", cfg.Contracts.Currency)
		}
		fmt.Println("Metadata:     ", cfg.Metadata.Backend, cfg.Metadata.Endpoint)
		if err := cfg.Validate(); err != nil {
			fmt.Println(ansi.Color("Config invalid: "+err.Error(), "red"))
		}

		fmt.Println(ansi.Color("----------- Wallet Information -----------", "green"))
		w, err := openWallet(rep)
		if err != nil {
			return err
		}
		addrs, err := w.List()
		if err != nil {
			return err
		}
		fmt.Println("Accounts: ", len(addrs))
		if cfg.Wallet.DefaultAddress != "" {
			fmt.Println("Default:  ", cfg.Wallet.DefaultAddress)
		}

		fmt.Println(ansi.Color("----------- Publication Information -----------", "green"))
		all, err := publish.New(nil, nil, rep.MetaStore()).List()
		if err != nil {
			return err
		}
		counts := make(map[types.State]int)
		for _, res := range all {
			counts[res.State]++
		}
		fmt.Println("Total: ", len(all))
		for s := types.StateNotStarted; s <= types.StateFailed; s++ {
			if counts[s] > 0 {
				fmt.Printf("  %-18s %d\n", s, counts[s])
			}
		}
		return nil
	},
}
