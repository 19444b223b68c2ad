package trace

import (
	"context"
	"time"

	"github.com/maxgio92/xspy/internal/output"
)

// PrintStatus prints the encoder throughput every interval until ctx is done.
func (e *Encoder) PrintStatus(ctx context.Context, interval time.Duration) {
	output.StatusBar(ctx, interval, func() {
		stats := e.Stats()
		output.PrintRight(output.PrettyEncodeStatus(
			float64(e.consumed.Swap(0))/interval.Seconds(), // rate reset at each refresh.
			stats.OpenThreads,
			stats.Events,
		))
	})
}
