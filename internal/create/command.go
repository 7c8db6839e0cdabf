package create

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/jessevdk/go-flags"
	"github.com/nguyenvh/bigzip"
	"github.com/rs/zerolog"
	"github.com/schollz/progressbar/v3"
)

// Command creates one archive from an ordered list of files.
type Command struct {
	Output  flags.Filename `short:"o" long:"output" description:"name of the archive to create" required:"yes"`
	Store   bool           `long:"store" description:"store entries without compression (method 0)"`
	Best    bool           `long:"best" description:"use the best deflate compression level"`
	Verbose []bool         `short:"v" long:"verbose" description:"log debug events while writing"`
	Args    struct {
		Files []flags.Filename `positional-arg-name:"file" required:"yes" description:"files to add, in order"`
	} `positional-args:"yes"`
}

func (c *Command) Execute(_ []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	logger := zerolog.Nop()
	if len(c.Verbose) > 0 {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	}

	f, err := os.Create(string(c.Output))
	if err != nil {
		return fmt.Errorf("create archive file error: %w", err)
	}

	// a failed build leaves a truncated, invalid archive behind; remove it.
	if err = c.write(ctx, f, logger); err != nil {
		_ = f.Close()
		_ = os.Remove(string(c.Output))
		return err
	}

	return f.Close()
}

func (c *Command) write(ctx context.Context, f *os.File, logger zerolog.Logger) error {
	// file sizes are known up front, so each entry gets a sized progress bar.
	sizes := make(map[string]int64, len(c.Args.Files))
	for _, name := range c.Args.Files {
		path := string(name)
		fi, err := os.Stat(path)
		if err != nil {
			return fmt.Errorf("describe src file error: %w", err)
		}
		sizes[bigzip.DisplayName(path)] = fi.Size()
	}

	w := bigzip.NewWriter(f, func(opts *bigzip.Options) {
		opts.Logger = logger
		opts.ProgressReporter = newBarReporter(sizes)
		if c.Store {
			bigzip.WithStore(opts)
		}
		if c.Best {
			bigzip.WithBestCompression(opts)
		}
	})

	for _, name := range c.Args.Files {
		if _, err := w.AddFile(ctx, string(name)); err != nil {
			return fmt.Errorf(`add "%s" error: %w`, name, err)
		}
	}

	if err := w.Close(); err != nil {
		return fmt.Errorf("finalize archive error: %w", err)
	}

	return nil
}

func newBarReporter(sizes map[string]int64) bigzip.ProgressReporter {
	var (
		bar     *progressbar.ProgressBar
		current string
	)

	return func(name string, written int64, done bool) {
		if bar == nil || current != name {
			bar = progressbar.DefaultBytes(sizes[name], name)
			current = name
		}

		_ = bar.Set64(written)
		if done {
			_ = bar.Finish()
			bar = nil
		}
	}
}
