package bigzip

import (
	"log"
	"os"
	"time"

	"github.com/schollz/progressbar/v3"
	"golang.org/x/time/rate"
)

// ProgressReporter is called to provide updates on individual entries being added.
//
//   - name: the entry's display name in the archive
//   - written: number of raw bytes of the entry read and relayed to the archive so far
//   - done: true only when the entry's payload and data descriptor are fully written
//
// The reporter is called at least once per entry. If the payload fits in one read (see
// DefaultBufferSize), it is called exactly once with done being true.
type ProgressReporter func(name string, written int64, done bool)

// DefaultProgressReporter only reports upon an entry being successfully added.
//
// Specifically, after entry `a.txt` is added, [log.Printf] will print `added "a.txt" to
// archive`.
func DefaultProgressReporter(name string, written int64, done bool) {
	if done {
		log.Printf(`added "%s" to archive`, name)
	}
}

// NewRateLimitedReporter logs running byte counts at most once per interval, plus a
// final line per entry. Useful for very large files where per-chunk logging would
// drown the terminal.
func NewRateLimitedReporter(interval time.Duration) ProgressReporter {
	sometimes := rate.Sometimes{Interval: interval}

	return func(name string, written int64, done bool) {
		if done {
			log.Printf(`added "%s" to archive (%d bytes)`, name, written)
			return
		}

		sometimes.Do(func() {
			log.Printf(`adding "%s": %d bytes so far`, name, written)
		})
	}
}

// NewProgressBarReporter renders one progress bar per entry on stderr.
//
// size is the expected raw byte count of the next entry, or -1 when unknown.
func NewProgressBarReporter(size int64) ProgressReporter {
	var (
		bar     *progressbar.ProgressBar
		current string
	)

	return func(name string, written int64, done bool) {
		if bar == nil || current != name {
			bar = progressbar.NewOptions64(size,
				progressbar.OptionSetDescription(name),
				progressbar.OptionSetWriter(os.Stderr),
				progressbar.OptionShowBytes(true),
				progressbar.OptionClearOnFinish())
			current = name
		}

		_ = bar.Set64(written)
		if done {
			_ = bar.Finish()
			bar = nil
		}
	}
}
