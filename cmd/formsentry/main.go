// Command formsentry validates a proposed form-definition changeset inside
// an isolated sandbox and prints the resulting report as JSON.
//
// Exit codes: 0 verdict ok, 1 verdict not ok, 2 terminal error (malformed
// changeset, unreachable source, bad configuration).
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"

	"formsentry/internal/blob"
	"formsentry/internal/engine"
	"formsentry/internal/infra/source"
	"formsentry/internal/schema"
	"formsentry/pkg/domain"
)

var exitFunc = os.Exit

func main() {
	exitFunc(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("formsentry", flag.ContinueOnError)
	fs.SetOutput(stderr)
	changesetPath := fs.String("changeset", "-", "changeset JSON document, or - for stdin")
	schemaPath := fs.String("schema", "", "optional YAML schema model; default is the built-in form model")
	seedPath := fs.String("seed", "", "optional JSON fixture loaded into the source before the run")
	verbose := fs.Bool("v", false, "log pipeline progress to stderr")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	ctx := context.Background()

	model := schema.Builtin()
	if *schemaPath != "" {
		m, err := schema.Load(*schemaPath)
		if err != nil {
			fmt.Fprintf(stderr, "formsentry: %v\n", err)
			return 2
		}
		model = m
	}

	src, err := source.OpenFromEnv(ctx, model)
	if err != nil {
		fmt.Fprintf(stderr, "formsentry: %v\n", err)
		return 2
	}
	if closer, ok := src.(io.Closer); ok {
		defer func() { _ = closer.Close() }()
	}

	if *seedPath != "" {
		if err := seedSource(ctx, src, *seedPath); err != nil {
			fmt.Fprintf(stderr, "formsentry: %v\n", err)
			return 2
		}
	}

	cs, err := readChangeset(*changesetPath, stdin)
	if err != nil {
		fmt.Fprintf(stderr, "formsentry: %v\n", err)
		return 2
	}

	opts := []engine.Option{
		engine.WithMetrics(engine.NewExpvarMetricsRecorder("")),
	}
	if *verbose {
		opts = append(opts, engine.WithLogger(engine.NewSlogLogger(
			slog.New(slog.NewTextHandler(stderr, nil)))))
	}
	if os.Getenv("FORMSENTRY_BLOB_DRIVER") != "" {
		store, err := blob.Open(ctx)
		if err != nil {
			fmt.Fprintf(stderr, "formsentry: %v\n", err)
			return 2
		}
		opts = append(opts, engine.WithArchive(store))
	}

	report, err := engine.NewRunner(src, model, opts...).Run(ctx, cs)
	if err != nil {
		fmt.Fprintf(stderr, "formsentry: %v\n", err)
		return 2
	}

	out, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		fmt.Fprintf(stderr, "formsentry: %v\n", err)
		return 2
	}
	fmt.Fprintln(stdout, string(out))

	if !report.Verdict.OK {
		return 1
	}
	return 0
}

func readChangeset(path string, stdin io.Reader) (domain.ChangeSet, error) {
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read changeset: %w", err)
	}
	return domain.ParseChangeSet(data)
}

// seedSource loads a JSON fixture of the shape {"table": [row, ...]} into
// the source. The driver must support seeding.
func seedSource(ctx context.Context, src domain.SchemaSource, path string) error {
	seeder, ok := src.(domain.Seeder)
	if !ok {
		return fmt.Errorf("source driver does not support seeding")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read seed: %w", err)
	}
	var doc map[domain.Table][]domain.Row
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("decode seed: %w", err)
	}
	state := domain.NewState()
	for table, rows := range doc {
		bucket := state[table]
		if bucket == nil {
			bucket = map[string]domain.Row{}
			state[table] = bucket
		}
		for _, row := range rows {
			ref, ok := row.ID()
			if !ok {
				return fmt.Errorf("seed row in %s lacks an id", table)
			}
			id, ok := ref.Concrete()
			if !ok {
				return fmt.Errorf("seed row in %s uses a placeholder id", table)
			}
			bucket[id] = row
		}
	}
	return seeder.Seed(ctx, state)
}
