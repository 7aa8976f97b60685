package metrics

import (
	"context"
	"net/http"
	"sync"

	"contrib.go.opencensus.io/exporter/prometheus"
	promclient "github.com/prometheus/client_golang/prometheus"
	"go.opencensus.io/stats"
	"go.opencensus.io/stats/view"
	"go.opencensus.io/tag"
	"golang.org/x/xerrors"

	"github.com/memoio/go-voicemint/build"
	logging "github.com/memoio/go-voicemint/lib/log"
)

var logger = logging.Logger("metrics")

var (
	exportOnce sync.Once
	exporter   http.Handler
)

// Register installs DefaultViews and records the build info.
func Register(ctx context.Context) error {
	if err := view.Register(DefaultViews...); err != nil {
		return xerrors.Errorf("register metric views: %w", err)
	}

	ctx, err := tag.New(ctx,
		tag.Insert(Version, build.BuildVersion),
		tag.Insert(Commit, build.CurrentCommit),
	)
	if err != nil {
		return err
	}
	stats.Record(ctx, VoiceInfo.M(1))
	return nil
}

// Exporter serves all registered views in prometheus text format. The
// handler is built once and shared.
func Exporter() http.Handler {
	exportOnce.Do(func() {
		exporter = newExporter()
	})
	return exporter
}

func newExporter() http.Handler {
	registry, ok := promclient.DefaultRegisterer.(*promclient.Registry)
	if !ok {
		logger.Warnf("failed to export default prometheus registry; some metrics will be unavailable; unexpected type: %T", promclient.DefaultRegisterer)
	}
	pe, err := prometheus.NewExporter(prometheus.Options{
		Registry:  registry,
		Namespace: "voicemint",
	})
	if err != nil {
		logger.Errorf("could not create the prometheus stats exporter: %v", err)
		return http.NotFoundHandler()
	}

	return pe
}
