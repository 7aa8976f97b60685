package cmd

import (
	"encoding/json"
	"fmt"
	"io/ioutil"
	"strings"
	"time"

	"github.com/mgutz/ansi"
	"github.com/mitchellh/go-homedir"
	"github.com/modood/table"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"
	"golang.org/x/xerrors"

	"github.com/memoio/go-voicemint/api"
	"github.com/memoio/go-voicemint/api/client"
	"github.com/memoio/go-voicemint/lib/address"
	"github.com/memoio/go-voicemint/lib/repo"
	"github.com/memoio/go-voicemint/lib/types"
	"github.com/memoio/go-voicemint/service/publish"
)

var PublishCmd = &cli.Command{
	Name:  "publish",
	Usage: "upload metadata, mint, set royalty and list a recording",
	Flags: []cli.Flag{
		passwordFlag,
		&cli.StringFlag{Name: "title", Usage: "title of the recording"},
		&cli.StringFlag{Name: "description", Usage: "description of the recording"},
		&cli.Float64Flag{Name: "duration", Usage: "duration in seconds"},
		&cli.StringFlag{Name: "language", Usage: "spoken language, e.g. en"},
		&cli.StringSliceFlag{Name: "tag", Usage: "cultural tag, repeatable"},
		&cli.StringSliceFlag{Name: "trait", Usage: "voice characteristic as key=value, repeatable"},
		&cli.StringFlag{Name: "audio", Usage: "reference of the audio file, e.g. ipfs://..."},
		&cli.Float64Flag{Name: "royalty", Usage: "royalty percent in [0,100]"},
		&cli.StringFlag{Name: "price", Usage: "listing price in major units, e.g. 0.1"},
		&cli.StringFlag{Name: "file", Usage: "publish every entry of a json batch file instead"},
		&cli.IntFlag{Name: "parallel", Usage: "concurrent publications of a batch", Value: 2},
		&cli.BoolFlag{Name: jsonKwd, Usage: "print results as json"},
	},
	Action: func(cctx *cli.Context) error {
		limit, err := batchLimit(cctx.Int("parallel"))
		if err != nil {
			return err
		}

		e, err := newEnv(cctx, true)
		if err != nil {
			return err
		}
		defer e.Close()

		currency, err := address.ParseOptional(e.rep.Config().Contracts.Currency)
		if err != nil {
			return err
		}

		jobs := []batchEntry{}
		if f := cctx.String("file"); f != "" {
			jobs, err = readBatch(f)
			if err != nil {
				return err
			}
		} else {
			traits, err := parseTraits(cctx.StringSlice("trait"))
			if err != nil {
				return err
			}
			jobs = append(jobs, batchEntry{
				Title:           cctx.String("title"),
				Description:     cctx.String("description"),
				Duration:        cctx.Float64("duration"),
				Language:        cctx.String("language"),
				Tags:            cctx.StringSlice("tag"),
				Characteristics: traits,
				Audio:           cctx.String("audio"),
				Royalty:         cctx.Float64("royalty"),
				Price:           cctx.String("price"),
			})
		}

		results := make([]*types.PublicationResult, len(jobs))
		errs := make([]error, len(jobs))

		eg, ctx := errgroup.WithContext(cctx.Context)
		eg.SetLimit(limit)
		for i, job := range jobs {
			i, job := i, job
			eg.Go(func() error {
				results[i], errs[i] = e.wf.Publish(ctx, job.recording(), publish.Terms{
					RoyaltyPercent: job.Royalty,
					Price:          job.Price,
					Currency:       currency,
				})
				return nil
			})
		}
		_ = eg.Wait()

		var failed int
		for i := range jobs {
			res := results[i]
			if errs[i] != nil {
				failed++
				var perr *publish.PublicationError
				if xerrors.As(errs[i], &perr) && res == nil {
					res = perr.Result
				}
				fmt.Println(ansi.Color(fmt.Sprintf("%q: %s", jobs[i].Title, errs[i]), "red"))
			}
			if res == nil {
				continue
			}
			if cctx.Bool(jsonKwd) {
				if err := printJSON(res); err != nil {
					return err
				}
				continue
			}
			printResult(res)
		}

		if failed > 0 {
			return xerrors.Errorf("%d of %d publications failed; continue them with 'voicemint resume <id>'", failed, len(jobs))
		}
		return nil
	},
}

var ResumeCmd = &cli.Command{
	Name:      "resume",
	Usage:     "continue a failed or abandoned publication",
	ArgsUsage: "<publication id>",
	Flags: []cli.Flag{
		passwordFlag,
	},
	Action: func(cctx *cli.Context) error {
		if !cctx.Args().Present() {
			return xerrors.New("publication id is required")
		}

		e, err := newEnv(cctx, true)
		if err != nil {
			return err
		}
		defer e.Close()

		res, err := e.wf.Resume(cctx.Context, cctx.Args().First())
		var perr *publish.PublicationError
		if err != nil && res == nil && xerrors.As(err, &perr) {
			res = perr.Result
		}
		if res != nil {
			printResult(res)
		}
		return err
	},
}

var StatusCmd = &cli.Command{
	Name:      "status",
	Usage:     "show one publication, or all of them",
	ArgsUsage: "[publication id]",
	Flags: []cli.Flag{
		&cli.BoolFlag{Name: jsonKwd, Usage: "print as json"},
	},
	Action: func(cctx *cli.Context) error {
		node, closer, err := statusNode(cctx)
		if err != nil {
			return err
		}
		defer closer()

		if cctx.Args().Present() {
			res, err := node.PublicationStatus(cctx.Context, cctx.Args().First())
			if err != nil {
				return err
			}
			if cctx.Bool(jsonKwd) {
				return printJSON(res)
			}
			printResult(res)
			return nil
		}

		all, err := node.PublicationList(cctx.Context)
		if err != nil {
			return err
		}
		if cctx.Bool(jsonKwd) {
			return printJSON(all)
		}

		rows := make([]statusRow, 0, len(all))
		for _, res := range all {
			rows = append(rows, newStatusRow(res))
		}
		table.Output(rows)
		return nil
	},
}

// statusNode talks to a running 'voicemint serve' when there is one, and
// reads the repo directly otherwise.
func statusNode(cctx *cli.Context) (api.StatusNode, func(), error) {
	if addr, headers, err := client.GetClientInfo(cctx.String(FlagRepo)); err == nil {
		node, closer, err := client.NewStatusNode(cctx.Context, addr, headers)
		if err == nil {
			return node, closer, nil
		}
		logger.Debugf("server at %s unreachable, opening repo: %s", addr, err)
	}

	rep, err := openRepo(cctx)
	if xerrors.Is(err, repo.ErrRepoLocked) {
		return nil, nil, xerrors.Errorf("no api file and the repo is busy, is 'voicemint serve' running elsewhere: %w", err)
	}
	if err != nil {
		return nil, nil, err
	}
	wf := publish.New(nil, nil, rep.MetaStore())
	return publish.NewStatusService(wf), func() { rep.Close() }, nil
}

// batchLimit checks the --parallel value.
func batchLimit(n int) (int, error) {
	if n < 1 {
		return 0, xerrors.Errorf("--parallel must be at least 1, got %d", n)
	}
	return n, nil
}

type batchEntry struct {
	Title           string            `json:"title"`
	Description     string            `json:"description"`
	Duration        float64           `json:"duration"`
	Language        string            `json:"language"`
	Tags            []string          `json:"cultural_tags"`
	Characteristics map[string]string `json:"voice_characteristics"`
	Audio           string            `json:"audio_url"`
	Royalty         float64           `json:"royalty_percent"`
	Price           string            `json:"price"`
}

func (b batchEntry) recording() publish.Recording {
	return publish.Recording{
		Title:           b.Title,
		Description:     b.Description,
		DurationSeconds: b.Duration,
		Language:        b.Language,
		CulturalTags:    b.Tags,
		Characteristics: b.Characteristics,
		AudioReference:  b.Audio,
	}
}

func readBatch(file string) ([]batchEntry, error) {
	p, err := homedir.Expand(file)
	if err != nil {
		return nil, err
	}
	b, err := ioutil.ReadFile(p)
	if err != nil {
		return nil, err
	}

	var entries []batchEntry
	if err := json.Unmarshal(b, &entries); err != nil {
		return nil, xerrors.Errorf("parse %s: %w", p, err)
	}
	if len(entries) == 0 {
		return nil, xerrors.Errorf("%s has no entries", p)
	}
	return entries, nil
}

func parseTraits(kvs []string) (map[string]string, error) {
	if len(kvs) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(kvs))
	for _, s := range kvs {
		i := strings.IndexByte(s, '=')
		if i <= 0 {
			return nil, xerrors.Errorf("trait %q: want key=value", s)
		}
		out[strings.TrimSpace(s[:i])] = strings.TrimSpace(s[i+1:])
	}
	return out, nil
}

type statusRow struct {
	ID      string
	Title   string
	State   string
	Token   string
	Listing string
	Updated string
}

func newStatusRow(res *types.PublicationResult) statusRow {
	listing := "-"
	if res.ListingID != nil {
		listing = res.ListingID.String()
	}
	token := "-"
	if res.TokenID.Defined() {
		token = res.TokenID.String()
	}
	state := res.State.String()
	if res.State == types.StateFailed {
		state += "@" + res.FailedStep.String()
	}
	id := res.ID
	if len(id) > 12 {
		id = id[:12]
	}
	return statusRow{
		ID:      id,
		Title:   res.Title,
		State:   state,
		Token:   token,
		Listing: listing,
		Updated: res.UpdatedAt.Format(time.RFC3339),
	}
}

func printResult(res *types.PublicationResult) {
	color := "green"
	if res.State == types.StateFailed {
		color = "red"
	}

	fmt.Println(ansi.Color("----------- Publication -----------", color))
	fmt.Println("ID:       ", res.ID)
	fmt.Println("Title:    ", res.Title)
	fmt.Println("State:    ", res.State)
	if res.State == types.StateFailed {
		fmt.Println("Failed at:", res.FailedStep)
		fmt.Println("Cause:    ", res.Failure)
		fmt.Println("Completed:", res.Completed)
	}
	if !res.MetadataRef.Empty() {
		fmt.Println("Metadata: ", res.MetadataRef)
	}
	if res.TokenID.Defined() {
		fmt.Println("Token:    ", res.TokenID)
	}
	if res.ListingID != nil {
		fmt.Println("Listing:  ", res.ListingID)
	}
	fmt.Printf("Royalty:   %d bps\n", res.BasisPoints)
	for _, tx := range res.Transactions {
		if tx.Status != types.TxConfirmed {
			fmt.Printf("  %-10s %s (%s)\n", tx.Step, tx.Hash.Hex(), tx.Status)
			continue
		}
		fmt.Printf("  %-10s %s\n", tx.Step, tx.Hash.Hex())
	}
	if res.Pending != nil {
		fmt.Println(ansi.Color(fmt.Sprintf("  %-10s %s (pending, checked before the step is sent again)", res.Pending.Step, res.Pending.Hash.Hex()), "yellow"))
	}
}
