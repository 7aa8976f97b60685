package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/modood/table"
	"github.com/urfave/cli/v2"

	"github.com/memoio/go-voicemint/config"
)

var ConfigCmd = &cli.Command{
	Name:  "config",
	Usage: "Interact with config",
	Subcommands: []*cli.Command{
		configSetCmd,
		configGetCmd,
		configCheckCmd,
		configShowCmd,
	},
}

var configKeyFlag = &cli.StringFlag{
	Name:  "key",
	Usage: "The key of the config entry (e.g. \"chain.endpoint\")",
	Value: "",
}

var configGetCmd = &cli.Command{
	Name:  "get",
	Usage: "Get config key",
	Flags: []cli.Flag{
		configKeyFlag,
	},
	Action: func(cctx *cli.Context) error {
		rep, err := openRepo(cctx)
		if err != nil {
			return err
		}
		defer rep.Close()

		key := cctx.String("key")
		if key == "" {
			return errors.New("key is nil")
		}

		res, err := rep.Config().Get(key)
		if err != nil {
			return err
		}

		return printJSON(res)
	},
}

var configSetCmd = &cli.Command{
	Name:  "set",
	Usage: "Set config key",
	Flags: []cli.Flag{
		configKeyFlag,
		&cli.StringFlag{
			Name:  "value",
			Usage: "The value with which to set the config entry",
			Value: "",
		},
	},
	Action: func(cctx *cli.Context) error {
		rep, err := openRepo(cctx)
		if err != nil {
			return err
		}
		defer rep.Close()

		key := cctx.String("key")
		if key == "" {
			return errors.New("key is nil")
		}

		cfg := rep.Config()
		if err := cfg.Set(key, cctx.String("value")); err != nil {
			return err
		}

		if err := rep.ReplaceConfig(cfg); err != nil {
			logger.Errorf("Error replacing config %s", err)
			return err
		}

		res, err := cfg.Get(key)
		if err != nil {
			return err
		}

		return printJSON(res)
	},
}

var configCheckCmd = &cli.Command{
	Name:  "check",
	Usage: "Validate the whole config",
	Action: func(cctx *cli.Context) error {
		rep, err := openRepo(cctx)
		if err != nil {
			return err
		}
		defer rep.Close()

		if err := rep.Config().Validate(); err != nil {
			return err
		}
		fmt.Println("config ok")
		return nil
	},
}

func printJSON(v interface{}) error {
	bs, err := json.MarshalIndent(v, "", "\t")
	if err != nil {
		return err
	}
	fmt.Println(string(bs))
	return nil
}

var configShowCmd = &cli.Command{
	Name:  "show",
	Usage: "Print the entries that differ from the defaults",
	Flags: []cli.Flag{
		&cli.BoolFlag{Name: "all", Usage: "print the whole config as json"},
	},
	Action: func(cctx *cli.Context) error {
		rep, err := openRepo(cctx)
		if err != nil {
			return err
		}
		defer rep.Close()

		if cctx.Bool("all") {
			return printJSON(rep.Config())
		}

		rows, err := configDiff(config.NewDefaultConfig(), rep.Config())
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			fmt.Println("all entries at defaults")
			return nil
		}
		table.Output(rows)
		return nil
	},
}

type configRow struct {
	Key     string
	Value   string
	Default string
}

// configDiff lists the dotted keys whose values differ between def and cfg.
func configDiff(def, cfg *config.Config) ([]configRow, error) {
	a, err := flattenJSON(def)
	if err != nil {
		return nil, err
	}
	b, err := flattenJSON(cfg)
	if err != nil {
		return nil, err
	}

	var rows []configRow
	for k, v := range b {
		if a[k] != v {
			rows = append(rows, configRow{Key: k, Value: v, Default: a[k]})
		}
	}
	for k, v := range a {
		if _, ok := b[k]; !ok {
			rows = append(rows, configRow{Key: k, Default: v})
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Key < rows[j].Key })
	return rows, nil
}

func flattenJSON(v interface{}) (map[string]string, error) {
	bs, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]interface{}
	if err := json.Unmarshal(bs, &m); err != nil {
		return nil, err
	}

	out := make(map[string]string)
	var walk func(prefix string, m map[string]interface{})
	walk = func(prefix string, m map[string]interface{}) {
		for k, v := range m {
			if sub, ok := v.(map[string]interface{}); ok {
				walk(prefix+k+".", sub)
				continue
			}
			bs, _ := json.Marshal(v)
			out[prefix+k] = string(bs)
		}
	}
	walk("", m)
	return out, nil
}
