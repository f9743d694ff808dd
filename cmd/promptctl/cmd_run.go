package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/promptfactory/internal/core"
	"github.com/JonMunkholm/promptfactory/internal/llm"
	"github.com/JonMunkholm/promptfactory/internal/runfile"
)

// maxWorkers caps --workers and the run file's workers.
const maxWorkers = 100

type runFlags struct {
	config  string
	input   string
	out     string
	workers int
	stream  bool
	strict  bool
}

func newRunCmd() *cobra.Command {
	var f runFlags
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Send every record of a dataset through a prompt template",
		Long: `run renders the run file's template for every JSON object of the input
file, calls the configured endpoint, and writes each record with the reply
added under result_field as JSON lines.

With --stream, progress events are written to stdout as JSON lines instead,
ending with a "done" event that carries every result.`,
		Example: `  promptctl run --config summarize.yaml --input reviews.jsonl --out summaries.jsonl`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runDataset(ctx, cmd, f)
		},
	}
	cmd.Flags().StringVarP(&f.config, "config", "c", "", "run file (YAML)")
	cmd.Flags().StringVarP(&f.input, "input", "i", "", "JSONL dataset")
	cmd.Flags().StringVarP(&f.out, "out", "o", "", "write results here instead of stdout")
	cmd.Flags().IntVarP(&f.workers, "workers", "w", 0, "concurrent calls (overrides the run file)")
	cmd.Flags().BoolVar(&f.stream, "stream", false, "print progress events as JSON lines")
	cmd.Flags().BoolVar(&f.strict, "strict", false, "reject the dataset on the first malformed line")
	cmd.MarkFlagRequired("config")
	cmd.MarkFlagRequired("input")
	return cmd
}

func runDataset(ctx context.Context, cmd *cobra.Command, f runFlags) error {
	rf, err := runfile.Load(f.config)
	if err != nil {
		return err
	}
	llmCfg, err := rf.LLMConfig(llm.StandardDefaults)
	if err != nil {
		return fmt.Errorf("run file %s: %w", f.config, err)
	}
	template, err := rf.PromptTemplate()
	if err != nil {
		return err
	}

	client, err := llm.NewClient(llmCfg, llm.WithLogger(slog.Default()))
	if err != nil {
		return err
	}
	proc, err := core.NewProcessor(template, rf.ResultField, client)
	if err != nil {
		return err
	}

	file, err := os.Open(f.input)
	if err != nil {
		return err
	}
	defer file.Close()
	input, err := core.NewInputReader(file, rf.Encoding)
	if err != nil {
		return err
	}

	requested := rf.Workers
	if cmd.Flags().Changed("workers") {
		requested = &f.workers
	}
	dispatcher := core.NewDispatcher(core.ResolveWorkers(requested, core.DefaultWorkers, maxWorkers))

	out, closeOut, err := openOutput(cmd.OutOrStdout(), f.out)
	if err != nil {
		return err
	}

	var outcome core.BatchOutcome
	if f.stream {
		outcome, err = streamRun(ctx, cmd.OutOrStdout(), dispatcher, input, proc)
	} else {
		outcome, err = collectRun(ctx, cmd.ErrOrStderr(), dispatcher, input, proc, f.strict)
	}
	if err != nil {
		closeOut()
		return err
	}

	if !f.stream || f.out != "" {
		if err := writeRecords(out, outcome.Records()); err != nil {
			closeOut()
			return err
		}
	}
	if err := closeOut(); err != nil {
		return err
	}

	fmt.Fprintf(cmd.ErrOrStderr(), "%d records: %d ok, %d failed\n", outcome.Total, outcome.Success, outcome.Errors)
	if outcome.Errors > 0 {
		return fmt.Errorf("%d of %d calls failed", outcome.Errors, outcome.Total)
	}
	return nil
}

func collectRun(ctx context.Context, stderr io.Writer, d *core.Dispatcher, input io.Reader, proc core.RecordProcessor, strict bool) (core.BatchOutcome, error) {
	var records []core.Record
	if strict {
		var err error
		if records, err = core.DecodeStrict(input); err != nil {
			return core.BatchOutcome{}, err
		}
	} else {
		var (
			bad []core.DecodeError
			err error
		)
		records, bad, err = core.DecodeTolerant(input)
		if err != nil {
			return core.BatchOutcome{}, err
		}
		for _, de := range bad {
			fmt.Fprintf(stderr, "skipping %s\n", de.Error())
		}
	}
	if len(records) == 0 {
		return core.BatchOutcome{}, core.ErrNoValidRecords
	}
	return d.Collect(ctx, records, proc), nil
}

func streamRun(ctx context.Context, stdout io.Writer, d *core.Dispatcher, input io.Reader, proc core.RecordProcessor) (core.BatchOutcome, error) {
	enc := json.NewEncoder(stdout)
	sink := core.SinkFunc(func(ev core.Event) error {
		return enc.Encode(ev)
	})
	emitter := &core.Emitter{Dispatcher: d, Logger: slog.Default()}
	return emitter.Run(ctx, "", input, proc, sink)
}

// openOutput returns stdout when path is empty. The close function flushes
// and closes the file.
func openOutput(stdout io.Writer, path string) (io.Writer, func() error, error) {
	if path == "" {
		return stdout, func() error { return nil }, nil
	}
	file, err := os.Create(path)
	if err != nil {
		return nil, nil, err
	}
	buf := bufio.NewWriter(file)
	return buf, func() error {
		return errors.Join(buf.Flush(), file.Close())
	}, nil
}

func writeRecords(w io.Writer, records []core.Record) error {
	enc := json.NewEncoder(w)
	for _, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return fmt.Errorf("write results: %w", err)
		}
	}
	return nil
}
