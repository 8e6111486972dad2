// Command pdf2html converts a recorded interpreter trace of a PDF document
// into HTML.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	flag "github.com/spf13/pflag"
	"go.uber.org/automaxprocs/maxprocs"

	"github.com/wudi/pdfhtml/htmlout"
	"github.com/wudi/pdfhtml/interp"
	"github.com/wudi/pdfhtml/observability"
	"github.com/wudi/pdfhtml/pipeline"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stderr))
}

func run(args []string, stderr io.Writer) int {
	o, err := parseFlags(args, stderr)
	if errors.Is(err, flag.ErrHelp) {
		return ExitSuccess
	}
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitCodeFor(err)
	}

	logger := newLogger(o, stderr)
	_, _ = maxprocs.Set(maxprocs.Logger(func(format string, args ...interface{}) {
		logger.Debug(fmt.Sprintf(format, args...))
	}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := convert(ctx, o, logger); err != nil {
		logger.Error("conversion failed", observability.Error("error", err))
		return exitCodeFor(err)
	}
	return ExitSuccess
}

func convert(ctx context.Context, o *options, logger observability.Logger) error {
	f, err := os.Open(o.input)
	if err != nil {
		return err
	}
	doc, err := interp.DecodeTrace(f)
	f.Close()
	if err != nil {
		return err
	}

	sink, err := htmlout.NewDirSink(o.destDir)
	if err != nil {
		return err
	}
	c, err := pipeline.New(o.config,
		pipeline.WithLogger(logger),
		pipeline.WithTitle(strings.TrimSuffix(filepath.Base(o.input), filepath.Ext(o.input))))
	if err != nil {
		return err
	}
	res, err := c.Convert(ctx, doc, sink)
	if err != nil {
		return err
	}
	for _, p := range res.Degraded {
		logger.Warn("page converted without visibility analysis", observability.Int(observability.KeyPage, p))
	}
	return nil
}

func newLogger(o *options, w io.Writer) observability.Logger {
	level := slog.LevelInfo
	switch {
	case o.verbose || o.config.Debug:
		level = slog.LevelDebug
	case o.quiet:
		level = slog.LevelError
	}
	return observability.NewSlogLogger(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})))
}
