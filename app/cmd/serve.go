package cmd

import (
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/filecoin-project/go-jsonrpc"
	ma "github.com/multiformats/go-multiaddr"
	manet "github.com/multiformats/go-multiaddr/net"
	"github.com/urfave/cli/v2"

	"github.com/memoio/go-voicemint/api/client"
	"github.com/memoio/go-voicemint/service/publish"
	"github.com/memoio/go-voicemint/submodule/metrics"
)

var ServeCmd = &cli.Command{
	Name:  "serve",
	Usage: "serve publication records and metrics over http and json-rpc",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "listen",
			Usage: "listen multiaddr",
			Value: "/ip4/127.0.0.1/tcp/8090",
		},
	},
	Action: func(cctx *cli.Context) error {
		rep, err := openRepo(cctx)
		if err != nil {
			return err
		}
		defer rep.Close()

		apiAddr, err := ma.NewMultiaddr(cctx.String("listen"))
		if err != nil {
			return err
		}

		// Listen first so that a zero port is resolved before it is
		// written to the api file
		apiListener, err := manet.Listen(apiAddr)
		if err != nil {
			return err
		}
		netListener := manet.NetListener(apiListener)

		wf := publish.New(nil, nil, rep.MetaStore())

		rpcServer := jsonrpc.NewServer()
		rpcServer.Register(client.Namespace, publish.NewStatusService(wf))

		srv := &http.Server{
			Handler: publish.NewHandler(wf, map[string]http.Handler{
				"/metrics": metrics.Exporter(),
				"/rpc/v0":  rpcServer,
			}),
		}

		if err := rep.SetAPIAddr(apiListener.Multiaddr().String()); err != nil {
			netListener.Close()
			return err
		}

		var terminate = make(chan os.Signal, 1)
		signal.Notify(terminate, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(terminate)

		go func() {
			select {
			case <-terminate:
				logger.Warn("received shutdown signal")
			case <-cctx.Context.Done():
			}

			logger.Warn("shutdown...")
			if err := srv.Shutdown(cctx.Context); err != nil {
				logger.Warnf("shutdown: %s", err)
			}
		}()

		logger.Infof("serving on %s", apiListener.Multiaddr())
		if err := srv.Serve(netListener); err != http.ErrServerClosed {
			return err
		}
		return nil
	},
}
