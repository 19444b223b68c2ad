package trace

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/maxgio92/xspy/internal/output"
	"github.com/maxgio92/xspy/internal/settings"
	"github.com/maxgio92/xspy/internal/utils"
	"github.com/maxgio92/xspy/pkg/cmd/options"
	"github.com/maxgio92/xspy/pkg/trace"
)

const (
	CmdName = "trace"

	stdinInput     = "-"
	maxBatchSize   = 64 << 20
	statusInterval = time.Second
)

var ReportFileName = fmt.Sprintf("%s-report.json", settings.CmdName)

type Options struct {
	input      string
	output     string
	tempDir    string
	category   string
	lines      bool
	flushEvery int
	gzipLevel  int
	report     bool
	status     bool

	*options.CommonOptions
}

func NewCommand(opts *options.CommonOptions) *cobra.Command {
	o := &Options{CommonOptions: opts}

	cmd := &cobra.Command{
		Use:   CmdName,
		Short: "Encode stack samples into a timeline trace",
		Long: fmt.Sprintf(`
%s reads batches of per-thread stack samples, one JSON array per line,
and writes begin/end duration events as gzip compressed trace event JSON,
viewable with chrome://tracing or Perfetto.
With --flush-every, a new trace file is written every N batches.
`, CmdName),
		DisableAutoGenTag: true,
		RunE:              o.Run,
	}
	cmd.Flags().StringVarP(&o.input, "input", "i", stdinInput, "Samples file, - for stdin")
	cmd.Flags().StringVarP(&o.output, "output", "o", settings.TraceOutput, "Trace output file")
	cmd.Flags().StringVar(&o.tempDir, "temp-dir", "", "Directory for the temporary capture files")
	cmd.Flags().StringVar(&o.category, "category", trace.DefaultCategory, "Category of the trace events")
	cmd.Flags().BoolVar(&o.lines, "lines", false, "Tell apart frames by line number and report lines")
	cmd.Flags().IntVar(&o.flushEvery, "flush-every", 0, "Write a new trace file every N batches, 0 writes a single file")
	cmd.Flags().IntVar(&o.gzipLevel, "gzip-level", gzip.DefaultCompression, "Gzip compression level of the trace files")
	cmd.Flags().BoolVar(&o.report, "report", false, fmt.Sprintf("Generate report (as %s)", ReportFileName))
	cmd.Flags().BoolVar(&o.status, "status", false, "Periodically print a status of the encoding")

	return cmd
}

func (o *Options) Run(cmd *cobra.Command, _ []string) error {
	if o.flushEvery < 0 {
		return errors.Errorf("invalid flush interval %d", o.flushEvery)
	}

	in, err := o.openInput(cmd)
	if err != nil {
		return err
	}
	defer in.Close()

	enc, err := trace.NewEncoder(
		trace.WithEncoderLineNumbers(o.lines),
		trace.WithEncoderCategory(o.category),
		trace.WithEncoderTempDir(o.tempDir),
		trace.WithEncoderGzipLevel(o.gzipLevel),
		trace.WithEncoderLogger(o.Logger),
	)
	if err != nil {
		return errors.Wrap(err, "failed to create trace encoder")
	}
	defer enc.Close()

	if o.status && !output.IsTerminal() {
		o.Logger.Warn().Msg("status output is not a terminal, status disabled")
		o.status = false
	}
	if o.status {
		ctx, cancel := context.WithCancel(o.Ctx)
		defer cancel()
		go enc.PrintStatus(ctx, statusInterval)
	}

	start := time.Now()
	artifacts, err := o.encode(in, enc)
	if o.status {
		// Move past the status line.
		fmt.Fprintln(output.Writer)
	}
	if err != nil {
		return err
	}

	o.Logger.Info().
		Strs("artifacts", artifacts).
		Uint64("events", enc.Stats().Events).
		Msg("trace written")

	if o.report {
		report := trace.NewReport(
			trace.WithReportInput(o.input),
			trace.WithReportArtifacts(artifacts),
			trace.WithReportDuration(time.Since(start)),
			trace.WithReportStats(enc.Stats()),
		)
		if err := o.writeReport(report); err != nil {
			return err
		}
	}

	return nil
}

// encode feeds every batch to the encoder and returns the written files.
func (o *Options) encode(in io.Reader, enc *trace.Encoder) ([]string, error) {
	artifacts := make([]string, 0, 1)
	flush := func() error {
		path := utils.NumberedPath(o.output, len(artifacts))
		if err := writeTrace(enc, path); err != nil {
			return err
		}
		artifacts = append(artifacts, path)
		o.Logger.Debug().Str("path", path).Msg("trace file written")

		return nil
	}

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), maxBatchSize)

	var lineNo, batches int
	for scanner.Scan() {
		lineNo++
		if err := o.Ctx.Err(); err != nil {
			o.Logger.Info().Msg("interrupted, writing the trace collected so far")
			break
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var batch []trace.StackTrace
		if err := json.Unmarshal([]byte(line), &batch); err != nil {
			return artifacts, errors.Wrapf(err, "invalid batch at line %d", lineNo)
		}
		if err := enc.Increment(batch); err != nil {
			return artifacts, errors.Wrapf(err, "failed to encode batch at line %d", lineNo)
		}
		batches++

		if o.flushEvery > 0 && batches%o.flushEvery == 0 {
			if err := flush(); err != nil {
				return artifacts, err
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return artifacts, errors.Wrap(err, "failed to read samples")
	}

	// Write the tail, unless the last flush already covered every batch.
	if len(artifacts) == 0 || batches%o.flushEvery != 0 {
		if err := flush(); err != nil {
			return artifacts, err
		}
	}

	return artifacts, nil
}

func (o *Options) openInput(cmd *cobra.Command) (io.ReadCloser, error) {
	if o.input == stdinInput {
		return io.NopCloser(cmd.InOrStdin()), nil
	}
	f, err := os.Open(o.input)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open samples file")
	}

	return f, nil
}

func (o *Options) writeReport(report *trace.SessionReport) error {
	path := filepath.Join(filepath.Dir(o.output), ReportFileName)
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "failed to create report file")
	}
	defer f.Close()

	if err := report.WriteReport(f); err != nil {
		return errors.Wrap(err, "failed to write report")
	}
	o.Logger.Info().Str("path", path).Msg("report written")

	return nil
}

func writeTrace(enc *trace.Encoder, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "failed to create trace file")
	}
	if err := enc.Write(f); err != nil {
		f.Close()
		return errors.Wrapf(err, "failed to write trace file %s", path)
	}

	return errors.Wrapf(f.Close(), "failed to close trace file %s", path)
}
