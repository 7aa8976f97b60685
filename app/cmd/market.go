package cmd

import (
	"fmt"
	"math/big"

	"github.com/urfave/cli/v2"
	"golang.org/x/xerrors"

	"github.com/memoio/go-voicemint/lib/types"
)

var BuyCmd = &cli.Command{
	Name:      "buy",
	Usage:     "buy a listed voice token",
	ArgsUsage: "<listing id> <price>",
	Flags: []cli.Flag{
		passwordFlag,
	},
	Action: func(cctx *cli.Context) error {
		if cctx.Args().Len() != 2 {
			return xerrors.New("need listing id and price")
		}
		id, ok := new(big.Int).SetString(cctx.Args().Get(0), 10)
		if !ok || id.Sign() < 0 {
			return xerrors.Errorf("invalid listing id %q", cctx.Args().Get(0))
		}

		e, err := newEnv(cctx, true)
		if err != nil {
			return err
		}
		defer e.Close()

		value, err := types.MajorToSmallest(cctx.Args().Get(1), e.rep.Config().Contracts.Decimals)
		if err != nil {
			return err
		}

		tx, err := e.gw.Buy(cctx.Context, id, value)
		if err != nil {
			return err
		}
		fmt.Printf("bought listing %s in tx %s\n", id, tx.Hash.Hex())
		return nil
	},
}

var RoyaltyCmd = &cli.Command{
	Name:      "royalty",
	Usage:     "show owner and royalty of a token",
	ArgsUsage: "<token id> [sale price]",
	Action: func(cctx *cli.Context) error {
		if !cctx.Args().Present() {
			return xerrors.New("token id is required")
		}
		n, ok := new(big.Int).SetString(cctx.Args().First(), 10)
		if !ok || n.Sign() < 0 {
			return xerrors.Errorf("invalid token id %q", cctx.Args().First())
		}
		id := types.NewTokenID(n)

		e, err := newEnv(cctx, false)
		if err != nil {
			return err
		}
		defer e.Close()

		decimals := e.rep.Config().Contracts.Decimals
		price := "1"
		if cctx.Args().Len() > 1 {
			price = cctx.Args().Get(1)
		}
		sale, err := types.MajorToSmallest(price, decimals)
		if err != nil {
			return err
		}

		owner, err := e.gw.OwnerOf(cctx.Context, id)
		if err != nil {
			return err
		}
		recv, amount, err := e.gw.RoyaltyInfo(cctx.Context, id, sale)
		if err != nil {
			return err
		}

		fmt.Println("Token:    ", id)
		fmt.Println("Owner:    ", owner.Hex())
		fmt.Println("Receiver: ", recv.Hex())
		fmt.Printf("Royalty:   %s of %s\n", types.FormatSmallest(amount, decimals), types.FormatSmallest(sale, decimals))
		return nil
	},
}
