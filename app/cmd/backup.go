package cmd

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
	"github.com/mitchellh/go-homedir"
	"github.com/schollz/progressbar/v3"
	"github.com/urfave/cli/v2"
	"golang.org/x/xerrors"
)

var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

// dumper is implemented by the badger meta store.
type dumper interface {
	Backup(w io.Writer) (uint64, error)
	Load(r io.Reader) error
}

var BackupCmd = &cli.Command{
	Name:  "backup",
	Usage: "export or import publication records and local metadata",
	Subcommands: []*cli.Command{
		backupExportCmd,
		backupImportCmd,
	},
}

var backupExportCmd = &cli.Command{
	Name:      "export",
	Usage:     "export meta db to file",
	ArgsUsage: "<path>",
	Flags: []cli.Flag{
		&cli.BoolFlag{
			Name:  "compress",
			Usage: "zstd compress the dump",
			Value: true,
		},
	},
	Action: func(cctx *cli.Context) error {
		p, err := backupPath(cctx)
		if err != nil {
			return err
		}

		// check file exist
		if _, err := os.Stat(p); !os.IsNotExist(err) {
			return xerrors.Errorf("%s exist", p)
		}

		rep, err := openRepo(cctx)
		if err != nil {
			return err
		}
		defer rep.Close()

		ds, ok := rep.MetaStore().(dumper)
		if !ok {
			return xerrors.New("meta store does not support backup")
		}

		pf, err := os.Create(p)
		if err != nil {
			return err
		}
		defer pf.Close()

		bar := progressbar.DefaultBytes(-1, "export")
		var w io.Writer = io.MultiWriter(pf, bar)
		var enc *zstd.Encoder
		if cctx.Bool("compress") {
			enc, err = zstd.NewWriter(w)
			if err != nil {
				return err
			}
			w = enc
		}

		if _, err := ds.Backup(w); err != nil {
			return err
		}
		if enc != nil {
			if err := enc.Close(); err != nil {
				return err
			}
		}
		bar.Finish()

		fmt.Printf("export to %s\n", p)
		return nil
	},
}

var backupImportCmd = &cli.Command{
	Name:      "import",
	Usage:     "import meta db from file",
	ArgsUsage: "<path>",
	Action: func(cctx *cli.Context) error {
		p, err := backupPath(cctx)
		if err != nil {
			return err
		}

		pf, err := os.Open(p)
		if err != nil {
			return err
		}
		defer pf.Close()

		rep, err := openRepo(cctx)
		if err != nil {
			return err
		}
		defer rep.Close()

		ds, ok := rep.MetaStore().(dumper)
		if !ok {
			return xerrors.New("meta store does not support backup")
		}

		bar := progressbar.DefaultBytes(-1, "import")
		pr := progressbar.NewReader(pf, bar)
		r, err := decompressed(&pr)
		if err != nil {
			return err
		}
		if err := ds.Load(r); err != nil {
			return err
		}
		bar.Finish()

		fmt.Printf("import from %s\n", p)
		return nil
	},
}

func backupPath(cctx *cli.Context) (string, error) {
	if !cctx.Args().Present() {
		return "", xerrors.New("path is required")
	}
	p, err := homedir.Expand(cctx.Args().First())
	if err != nil {
		return "", err
	}
	return filepath.Abs(p)
}

// decompressed unwraps a zstd stream; plain dumps pass through.
func decompressed(r io.Reader) (io.Reader, error) {
	br := bufio.NewReader(r)
	head, err := br.Peek(len(zstdMagic))
	if err != nil && err != io.EOF {
		return nil, err
	}
	if !bytes.Equal(head, zstdMagic) {
		return br, nil
	}

	dec, err := zstd.NewReader(br)
	if err != nil {
		return nil, err
	}
	return dec.IOReadCloser(), nil
}
