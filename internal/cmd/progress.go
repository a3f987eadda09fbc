package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/schollz/progressbar/v3"
)

// progressTracker wraps progressbar with the defaults used by extraction.
type progressTracker struct {
	bar *progressbar.ProgressBar
}

func newProgressTracker(maxBytes int64, description string) *progressTracker {
	return &progressTracker{
		bar: progressbar.NewOptions64(maxBytes,
			progressbar.OptionSetDescription(description),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionShowBytes(true),
			progressbar.OptionSetWidth(10),
			progressbar.OptionThrottle(1*time.Second),
			progressbar.OptionShowCount(),
			progressbar.OptionOnCompletion(func() {
				_, _ = fmt.Fprint(os.Stderr, "\n")
			}),
			progressbar.OptionSpinnerType(14),
			progressbar.OptionFullWidth(),
			progressbar.OptionSetRenderBlankState(true)),
	}
}

func (t *progressTracker) Add64(n int64) {
	_ = t.bar.Add64(n)
}

func (t *progressTracker) Close() {
	_ = t.bar.Close()
}
