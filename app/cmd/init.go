package cmd

import (
	"fmt"

	"github.com/urfave/cli/v2"
	"golang.org/x/xerrors"

	"github.com/memoio/go-voicemint/config"
	"github.com/memoio/go-voicemint/lib/repo"
)

var InitCmd = &cli.Command{
	Name:  "init",
	Usage: "Initialize a voicemint repo",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "endpoint",
			Usage: "chain rpc endpoint",
			Value: "http://127.0.0.1:8545",
		},
		&cli.StringFlag{
			Name:  "nft",
			Usage: "address of the voice nft contract",
		},
		&cli.StringFlag{
			Name:  "market",
			Usage: "address of the marketplace contract",
		},
		&cli.StringFlag{
			Name:  "metadata-backend",
			Usage: "where metadata is published: local or ipfs",
			Value: config.MetadataBackendLocal,
		},
		&cli.StringFlag{
			Name:  "metadata-endpoint",
			Usage: "ipfs rpc endpoint, e.g. http://127.0.0.1:5001",
		},
		&cli.BoolFlag{
			Name:  "create-wallet",
			Usage: "create a wallet account and make it the default",
		},
		passwordFlag,
	},
	Action: func(cctx *cli.Context) error {
		repoDir := cctx.String(FlagRepo)

		exist, err := repo.Exists(repoDir)
		if err != nil {
			return err
		}
		if exist {
			return xerrors.Errorf("repo at '%s' is already initialized", repoDir)
		}

		cfg := config.NewDefaultConfig()
		set := map[string]string{
			"chain.endpoint":    cctx.String("endpoint"),
			"contracts.nft":     cctx.String("nft"),
			"contracts.market":  cctx.String("market"),
			"metadata.backend":  cctx.String("metadata-backend"),
			"metadata.endpoint": cctx.String("metadata-endpoint"),
		}
		for k, v := range set {
			if v == "" {
				continue
			}
			if err := cfg.Set(k, v); err != nil {
				return xerrors.Errorf("%s: %w", k, err)
			}
		}

		logger.Infof("Initializing repo at '%s'", repoDir)

		rep, err := repo.NewFSRepo(repoDir, cfg)
		if err != nil {
			return err
		}
		defer rep.Close()

		if cctx.Bool("create-wallet") {
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

			cfg.Wallet.DefaultAddress = acct.Address.Hex()
			if err := rep.ReplaceConfig(cfg); err != nil {
				logger.Errorf("Error replacing config %s", err)
				return err
			}
			fmt.Println("account:", acct.Address.Hex())
		}

		if err := cfg.Validate(); err != nil {
			fmt.Println("config incomplete, set it with 'voicemint config set':", err)
		}

		return nil
	},
}
