package output

import (
	"context"
	"fmt"
	"time"
)

func StatusBar(ctx context.Context, refreshRate time.Duration, printF func()) {
	ticker := time.NewTicker(refreshRate)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			printF()
		case <-ctx.Done():
			return
		}
	}
}

func PrettyEncodeStatus(rate float64, openThreads int, events uint64) string {
	return fmt.Sprintf("\r%-24s %-20s %-20s",
		fmt.Sprintf("Events/s: %8.1f", rate),
		fmt.Sprintf("Threads: %4d", openThreads),
		fmt.Sprintf("Events: %d", events),
	)
}
