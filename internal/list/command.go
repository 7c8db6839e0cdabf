package list

import (
	"context"
	"fmt"
	"iter"
	"os"
	"os/signal"
	"time"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/dustin/go-humanize"
	"github.com/jessevdk/go-flags"
	"github.com/nguyenvh/bigzip/locate"
)

// Command lists an archive's entries by locating its tail and walking the central
// directory, never reading the payloads.
type Command struct {
	Bucket string `long:"bucket" description:"list an archive stored in S3 instead of a local file"`
	Key    string `long:"key" description:"key of the S3 object; requires --bucket"`
	Args   struct {
		File flags.Filename `positional-arg-name:"file" description:"the archive to list; ignored with --bucket"`
	} `positional-args:"yes"`
}

func (c *Command) Execute(_ []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var (
		tail    locate.Tail
		entries iter.Seq2[locate.Header, error]
	)

	switch {
	case c.Bucket != "":
		if c.Key == "" {
			return fmt.Errorf("--key is required with --bucket")
		}

		cfg, err := config.LoadDefaultConfig(ctx)
		if err != nil {
			return fmt.Errorf("load AWS config error: %w", err)
		}

		tail, entries, err = locate.FindFromS3(ctx, s3.NewFromConfig(cfg), c.Bucket, c.Key)
		if err != nil {
			return err
		}
	case c.Args.File != "":
		f, err := os.Open(string(c.Args.File))
		if err != nil {
			return fmt.Errorf("open archive error: %w", err)
		}
		defer f.Close()

		fi, err := f.Stat()
		if err != nil {
			return fmt.Errorf("describe archive error: %w", err)
		}

		if tail, err = locate.Find(f, fi.Size()); err != nil {
			return err
		}
		entries = locate.Entries(f, tail)
	default:
		return fmt.Errorf("either a file or --bucket/--key is required")
	}

	fmt.Printf("%d entries, central directory %s at offset %d\n",
		tail.RecordCount, humanize.IBytes(tail.CDSize), tail.CDOffset)

	for h, err := range entries {
		if err != nil {
			return err
		}

		fmt.Printf("%10s  %s  %08x  %s\n",
			humanize.IBytes(h.UncompressedSize), h.Modified.Format(time.DateTime), h.CRC32, h.Name)
	}

	return nil
}
