package metrics

import (
	"context"
	"time"

	"go.opencensus.io/stats"
	"go.opencensus.io/stats/view"
	"go.opencensus.io/tag"
)

var defaultMillisecondsDistribution = view.Distribution(1, 5, 10, 25, 50, 100, 250, 500, 1000, 2000, 3000, 5000, 7500, 10000, 15000, 20000, 30000, 60000, 120000)

var sizeDistribution = view.Distribution(128, 256, 512, 1024, 2048, 4096, 8192, 16384, 65536)

var (
	Version, _ = tag.NewKey("version")
	Commit, _  = tag.NewKey("commit")
	Step, _    = tag.NewKey("step")
	Method, _  = tag.NewKey("method")
	Backend, _ = tag.NewKey("backend")
)

var (
	// common
	VoiceInfo = stats.Int64("info", "voicemint info", stats.UnitDimensionless)

	// publication
	PublishStarted  = stats.Int64("publish/started", "Counter for publications started or resumed", stats.UnitDimensionless)
	PublishFinished = stats.Int64("publish/finished", "Counter for publications that reached Listed", stats.UnitDimensionless)
	StepSuccess     = stats.Int64("publish/step_success", "Counter for completed publication steps", stats.UnitDimensionless)
	StepFailure     = stats.Int64("publish/step_failure", "Counter for failed publication steps", stats.UnitDimensionless)
	StepDuration    = stats.Float64("publish/step_duration_ms", "Time spent per publication step", stats.UnitMilliseconds)

	// chain
	TxSubmitted      = stats.Int64("chain/tx_submitted", "Counter for submitted transactions", stats.UnitDimensionless)
	TxRejected       = stats.Int64("chain/tx_rejected", "Counter for rejected or reverted transactions", stats.UnitDimensionless)
	TxSubmitDuration = stats.Float64("chain/submit_duration_ms", "Time from submission to receipt", stats.UnitMilliseconds)
	CallDuration     = stats.Float64("chain/call_duration_ms", "Duration of read-only calls", stats.UnitMilliseconds)

	// metadata
	UploadBytes = stats.Int64("metadata/upload_bytes", "Size of uploaded metadata documents", stats.UnitBytes)
)

var (
	InfoView = &view.View{
		Name:        "info",
		Description: "voicemint information",
		Measure:     VoiceInfo,
		Aggregation: view.LastValue(),
		TagKeys:     []tag.Key{Version, Commit},
	}

	PublishStartedView = &view.View{
		Measure:     PublishStarted,
		Aggregation: view.Count(),
	}
	PublishFinishedView = &view.View{
		Measure:     PublishFinished,
		Aggregation: view.Count(),
	}
	StepSuccessView = &view.View{
		Measure:     StepSuccess,
		Aggregation: view.Count(),
		TagKeys:     []tag.Key{Step},
	}
	StepFailureView = &view.View{
		Measure:     StepFailure,
		Aggregation: view.Count(),
		TagKeys:     []tag.Key{Step},
	}
	StepDurationView = &view.View{
		Measure:     StepDuration,
		Aggregation: defaultMillisecondsDistribution,
		TagKeys:     []tag.Key{Step},
	}

	TxSubmittedView = &view.View{
		Measure:     TxSubmitted,
		Aggregation: view.Count(),
	}
	TxRejectedView = &view.View{
		Measure:     TxRejected,
		Aggregation: view.Count(),
	}
	TxSubmitDurationView = &view.View{
		Measure:     TxSubmitDuration,
		Aggregation: defaultMillisecondsDistribution,
	}
	CallDurationView = &view.View{
		Measure:     CallDuration,
		Aggregation: defaultMillisecondsDistribution,
		TagKeys:     []tag.Key{Method},
	}

	UploadBytesView = &view.View{
		Measure:     UploadBytes,
		Aggregation: sizeDistribution,
		TagKeys:     []tag.Key{Backend},
	}
)

var DefaultViews = func() []*view.View {
	views := []*view.View{
		InfoView,

		PublishStartedView,
		PublishFinishedView,
		StepSuccessView,
		StepFailureView,
		StepDurationView,

		TxSubmittedView,
		TxRejectedView,
		TxSubmitDurationView,
		CallDurationView,

		UploadBytesView,
	}
	return views
}()

func SinceInMilliseconds(startTime time.Time) float64 {
	return float64(time.Since(startTime).Nanoseconds()) / 1e6
}

func Timer(ctx context.Context, m *stats.Float64Measure) func() {
	start := time.Now()
	return func() {
		stats.Record(ctx, m.M(SinceInMilliseconds(start)))
	}
}

// Tagged returns ctx carrying key=val, or ctx unchanged if tagging fails.
func Tagged(ctx context.Context, key tag.Key, val string) context.Context {
	nctx, err := tag.New(ctx, tag.Upsert(key, val))
	if err != nil {
		return ctx
	}
	return nctx
}

// Count records one occurrence of m.
func Count(ctx context.Context, m *stats.Int64Measure) {
	stats.Record(ctx, m.M(1))
}
