package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/dustin/go-humanize"
	"github.com/jessevdk/go-flags"
	"github.com/tdvu/rzx"
	"github.com/tdvu/rzx/fetch"
	"golang.org/x/time/rate"
)

// Command extracts or lists entries of a remote ZIP archive.
type Command struct {
	Args struct {
		URL string `positional-arg-name:"url" description:"https:// or s3://bucket/key locator of the remote archive" required:"yes"`
	} `positional-args:"yes"`
	List          bool           `short:"l" long:"list" description:"list entries in the archive"`
	Tree          bool           `short:"t" long:"tree" description:"display entries in tree format"`
	Extract       []string       `short:"e" long:"extract" description:"entry to extract; repeatable, order is preserved"`
	Glob          bool           `short:"g" long:"glob" description:"treat patterns as shell-style globs (** recurses)"`
	Regexp        bool           `short:"E" long:"regexp" description:"treat patterns as regular expressions"`
	Flatten       bool           `long:"flatten" description:"discard directory paths, write by filename only"`
	Output        flags.Filename `short:"o" long:"output" default:"." description:"output directory, or - to stream to stdout in selection order"`
	Workers       int            `short:"w" long:"workers" default:"1" description:"number of parallel extraction workers"`
	Password      string         `short:"P" long:"password" description:"password for encrypted entries"`
	FailOnNoMatch bool           `long:"fail-on-no-match" description:"exit non-zero when any pattern matches nothing"`
}

func (c *Command) Execute(args []string) error {
	if len(args) != 0 {
		return fmt.Errorf("unknown positional arguments: %s", strings.Join(args, " "))
	}
	if c.Glob && c.Regexp {
		return errors.New("--glob and --regexp are mutually exclusive")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, os.Kill)
	defer stop()

	logger := log.New(os.Stderr, "", 0)

	f, err := newFetcher(ctx, c.Args.URL)
	if err != nil {
		return err
	}

	arc, err := rzx.Open(ctx, f)
	if err != nil {
		return err
	}

	if c.List || c.Tree {
		c.printListing(logger, arc)
	}

	if len(c.Extract) == 0 {
		return nil
	}

	return c.extract(ctx, logger, arc)
}

func (c *Command) extract(ctx context.Context, logger *log.Logger, arc *rzx.Archive) error {
	mode := rzx.MatchLiteral
	switch {
	case c.Glob:
		mode = rzx.MatchGlob
	case c.Regexp:
		mode = rzx.MatchRegexp
	}

	sel, err := arc.Select(c.Extract, mode)
	if err != nil {
		return err
	}
	for _, miss := range sel.Misses {
		logger.Printf(`no entry matched "%s"`, miss)
	}

	toStdout := string(c.Output) == "-"

	var bar *progressTracker
	if !toStdout {
		var total uint64
		for _, e := range sel.Entries {
			total += e.UncompressedSize
		}
		bar = newProgressTracker(int64(total), "extracting")
		defer bar.Close()
	}

	n := len(sel.Entries)
	i := 0
	sometimes := rate.Sometimes{Interval: 5 * time.Second}

	onDone := func(tr rzx.TaskResult) {
		i++
		if tr.Err != nil {
			logger.Printf(`%d/%d: extract "%s" error: %v`, i, n, tr.Entry.Name, tr.Err)
			return
		}

		if bar != nil {
			bar.Add64(int64(tr.Entry.UncompressedSize))
		}
		sometimes.Do(func() {
			logger.Printf(`%d/%d: extracted "%s"`, i, n, tr.Entry.Name)
		})
	}

	result, err := arc.Extract(ctx, sel, func(opts *rzx.ExtractOptions) {
		opts.Workers = c.Workers
		opts.Password = c.Password
		opts.Flatten = c.Flatten
		opts.Dir = string(c.Output)
		opts.OnDone = onDone
		if toStdout {
			opts.Stream = os.Stdout
		}
	})
	if err != nil {
		return err
	}

	logger.Printf("extracted %d, failed %d, patterns without match %d",
		len(result.Extracted), len(result.Failed), len(result.Misses))

	if !result.Ok() {
		return fmt.Errorf("%d of %d entries failed", len(result.Failed), n)
	}
	if c.FailOnNoMatch && len(result.Misses) != 0 {
		return fmt.Errorf("%d patterns matched nothing", len(result.Misses))
	}

	return nil
}

func (c *Command) printListing(logger *log.Logger, arc *rzx.Archive) {
	entries := arc.Entries()

	if c.Tree {
		printTree(os.Stderr, entries)
		return
	}

	logger.Printf("entries in the archive (%d):", len(entries))
	for _, e := range entries {
		marker := ""
		if e.Encrypted() {
			marker = ", encrypted"
		}
		logger.Printf("  %s (%s, %s%s)", e.Name, humanize.Bytes(e.UncompressedSize), e.Method, marker)
	}
}

// newFetcher picks the transport from the locator scheme.
func newFetcher(ctx context.Context, url string) (fetch.Fetcher, error) {
	if strings.HasPrefix(url, "s3://") {
		bucket, key, err := fetch.ParseS3URL(url)
		if err != nil {
			return nil, err
		}

		cfg, err := config.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("load AWS config error: %w", err)
		}

		return fetch.NewS3(s3.NewFromConfig(cfg), bucket, key), nil
	}

	return fetch.NewHTTP(url)
}
