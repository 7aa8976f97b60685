package cmd

import (
	"context"
	"fmt"
	"net/http"

	"github.com/howeyc/gopass"
	"github.com/urfave/cli/v2"
	"golang.org/x/xerrors"

	"github.com/memoio/go-voicemint/config"
	logging "github.com/memoio/go-voicemint/lib/log"
	"github.com/memoio/go-voicemint/lib/repo"
	"github.com/memoio/go-voicemint/service/publish"
	"github.com/memoio/go-voicemint/submodule/connect/chain"
	"github.com/memoio/go-voicemint/submodule/connect/market"
	"github.com/memoio/go-voicemint/submodule/metastore"
	"github.com/memoio/go-voicemint/submodule/metrics"
	"github.com/memoio/go-voicemint/submodule/wallet"
)

var logger = logging.Logger("main")

const (
	FlagRepo        = "repo"
	FlagMetricsAddr = "metrics-addr"

	pwKwd   = "password"
	jsonKwd = "json"
)

var CommonCmd []*cli.Command

func init() {
	CommonCmd = []*cli.Command{
		InitCmd,
		ConfigCmd,
		WalletCmd,
		PublishCmd,
		ResumeCmd,
		StatusCmd,
		BuyCmd,
		RoyaltyCmd,
		BalanceCmd,
		ServeCmd,
		BackupCmd,
		InfoCmd,
	}
}

var passwordFlag = &cli.StringFlag{
	Name:    pwKwd,
	Usage:   "password of the wallet keyfile; prompted for when empty",
	EnvVars: []string{"VOICEMINT_PASSWORD"},
}

// StartMetrics registers all views and, when addr is set, serves them in
// prometheus format.
func StartMetrics(ctx context.Context, addr string) error {
	if err := metrics.Register(ctx); err != nil {
		return err
	}
	if addr == "" {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Exporter())
	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			logger.Warnf("metrics server on %s stopped: %s", addr, err)
		}
	}()
	logger.Infof("serving metrics on %s/metrics", addr)
	return nil
}

// openRepo opens the repo named by the --repo flag, validates its config
// and applies its log settings.
func openRepo(cctx *cli.Context) (*repo.FSRepo, error) {
	rep, err := repo.NewFSRepo(cctx.String(FlagRepo), nil)
	if err != nil {
		return nil, err
	}

	cfg := rep.Config()
	if err := applyLogConfig(cfg.Log); err != nil {
		rep.Close()
		return nil, err
	}
	return rep, nil
}

func applyLogConfig(lc config.LogConfig) error {
	if lc.Level != "" {
		if err := logging.SetLevel(lc.Level); err != nil {
			return err
		}
	}
	if lc.File != "" {
		logging.SetOutput(lc.File, 0)
	}
	return nil
}

func getPassword(cctx *cli.Context, prompt string) (string, error) {
	if pw := cctx.String(pwKwd); pw != "" {
		return pw, nil
	}

	fmt.Print(prompt)
	pw, err := gopass.GetPasswdMasked()
	if err != nil {
		return "", err
	}
	return string(pw), nil
}

func openWallet(rep repo.Repo, opts ...wallet.Option) (*wallet.Wallet, error) {
	cfg := rep.Config()
	if cfg.Wallet.DefaultAddress != "" {
		opts = append(opts, wallet.WithDefaultAddress(cfg.Wallet.DefaultAddress))
	}
	return wallet.New(rep.KeystorePath(), opts...)
}

// env wires every component the chain commands need.
type env struct {
	rep    *repo.FSRepo
	wallet *wallet.Wallet
	client *chain.EthClient
	gw     *market.Gateway
	wf     *publish.Workflow
}

func (e *env) Close() {
	if e.wallet != nil {
		e.wallet.Lock()
	}
	if e.rep != nil {
		e.rep.Close()
	}
}

// newEnv opens the repo, dials the chain and loads the contracts. With
// unlock set, the default wallet account is unlocked for signing.
func newEnv(cctx *cli.Context, unlock bool) (*env, error) {
	rep, err := openRepo(cctx)
	if err != nil {
		return nil, err
	}
	e := &env{rep: rep}

	cfg := rep.Config()
	if err := cfg.Validate(); err != nil {
		e.Close()
		return nil, xerrors.Errorf("invalid config: %w", err)
	}

	e.wallet, err = openWallet(rep)
	if err != nil {
		e.Close()
		return nil, err
	}

	if unlock {
		pw, err := getPassword(cctx, "Enter wallet password: ")
		if err != nil {
			e.Close()
			return nil, err
		}
		acct, err := e.wallet.Unlock(pw)
		if err != nil {
			e.Close()
			return nil, err
		}
		logger.Infof("signing as %s", acct.Address)
	}

	e.client, err = chain.Dial(cctx.Context, cfg.Chain)
	if err != nil {
		e.Close()
		return nil, err
	}

	e.gw, err = market.NewGateway(cctx.Context, e.client, e.wallet, cfg.Contracts, cfg.Chain.GasLimit)
	if err != nil {
		e.Close()
		return nil, err
	}

	store, err := metastore.New(cfg.Metadata, rep.MetaStore())
	if err != nil {
		e.Close()
		return nil, err
	}

	e.wf = publish.New(store, e.gw, rep.MetaStore(), publish.WithDecimals(cfg.Contracts.Decimals))
	return e, nil
}
