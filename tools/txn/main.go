// Command txn updates documents with optimistic-concurrency transactions.
//
//	txn -couch http://localhost:5984 -db app -id doc_a -set 'val=doc.val + 3.0' -diff
//	txn -config txn.yaml -backend redis -db app -id a,b,c -set 'seen=true' -when 'doc.active'
package main

import (
	"context"
	"flag"
	"fmt"
	log "log/slog"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"

	"github.com/sharedcode/doctxn"
	"github.com/sharedcode/doctxn/cel"
	"github.com/sharedcode/doctxn/changes"
	"github.com/sharedcode/doctxn/encoding"
)

// assignments collects repeated -set field=expr flags.
type assignments map[string]string

func (a assignments) String() string {
	parts := make([]string, 0, len(a))
	for k, v := range a {
		parts = append(parts, k+"="+v)
	}
	return strings.Join(parts, ",")
}

func (a assignments) Set(s string) error {
	field, expr, ok := strings.Cut(s, "=")
	field = strings.TrimSpace(field)
	if !ok || field == "" || strings.TrimSpace(expr) == "" {
		return fmt.Errorf("expected field=expression, got %q", s)
	}
	a[field] = expr
	return nil
}

type cliFlags struct {
	configFile   string
	backend      string
	url          string
	couch        string
	db           string
	ids          string
	set          assignments
	patchFile    string
	when         string
	maxTries     int
	delay        time.Duration
	timeout      time.Duration
	create       bool
	noTimestamps bool
	diff         bool
	workers      int
	verbose      bool
}

func main() {
	f := cliFlags{set: assignments{}}
	flag.StringVar(&f.configFile, "config", "", "Path to a YAML or JSON configuration file (optional)")
	flag.StringVar(&f.backend, "backend", "", "Document store: couch, redis, cassandra, s3 or inmemory")
	flag.StringVar(&f.url, "url", "", "Direct document URL, e.g. http://localhost:5984/db/doc_a")
	flag.StringVar(&f.couch, "couch", "", "Store root URL (defaults to the configured CouchDB URL)")
	flag.StringVar(&f.db, "db", "", "Database (collection) name")
	flag.StringVar(&f.ids, "id", "", "Document id, or a comma separated list to update in batch")
	flag.Var(f.set, "set", "field=CEL expression over doc, repeatable")
	flag.StringVar(&f.patchFile, "patch", "", "Path to an RFC 6902 JSON Patch to apply")
	flag.StringVar(&f.when, "when", "", "CEL guard expression; the update fails when it is false")
	flag.IntVar(&f.maxTries, "max-tries", 0, "Maximum attempts (overrides config)")
	flag.DurationVar(&f.delay, "delay", 0, "Base backoff delay (overrides config)")
	flag.DurationVar(&f.timeout, "timeout", 0, "Per attempt operation timeout (overrides config)")
	flag.BoolVar(&f.create, "create", false, "Create the document when missing")
	flag.BoolVar(&f.noTimestamps, "no-timestamps", false, "Don't stamp updated_at")
	flag.BoolVar(&f.diff, "diff", false, "Print each attempt's change set")
	flag.IntVar(&f.workers, "workers", 4, "Concurrent transactions in batch mode")
	flag.BoolVar(&f.verbose, "v", false, "Debug logging")
	flag.Parse()

	if !isatty.IsTerminal(os.Stdout.Fd()) && !isatty.IsCygwinTerminal(os.Stdout.Fd()) {
		color.NoColor = true
	}
	doctxn.ConfigureLogging()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := run(ctx, f); err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("txn: %v", err))
		os.Exit(1)
	}
}

func run(ctx context.Context, f cliFlags) error {
	cfg := doctxn.DefaultConfig()
	if f.configFile != "" {
		var err error
		if cfg, err = doctxn.LoadConfig(f.configFile); err != nil {
			return err
		}
	}
	if l, ok := doctxn.ParseLogLevel(cfg.LogLevel); ok {
		doctxn.SetLogLevel(l)
	}
	if f.verbose {
		doctxn.SetLogLevel(log.LevelDebug)
	}
	applyFlags(&cfg, f)
	if err := cfg.Options.Validate(); err != nil {
		return err
	}

	mutation, err := buildMutation(f)
	if err != nil {
		return err
	}
	reqs, err := buildRequests(cfg, f)
	if err != nil {
		return err
	}

	store, closer, err := openStore(ctx, cfg, reqs)
	if err != nil {
		return err
	}
	defer closer()

	opts := []doctxn.Option{doctxn.WithOptions(cfg.Options)}
	if f.diff {
		opts = append(opts, doctxn.WithObserver(printChanges))
	}
	c := doctxn.NewClient(store, opts...)

	if len(reqs) == 1 {
		doc, err := c.Do(ctx, reqs[0], mutation)
		if err != nil {
			return err
		}
		return printDocument(doc)
	}

	outcomes, err := c.UpdateMany(ctx, reqs, mutation, f.workers)
	if err != nil {
		return err
	}
	failed := 0
	for i, o := range outcomes {
		label := reqs[i].ID
		if o.Kind == doctxn.StateDone {
			fmt.Printf("%s %s rev %s (%d attempts)\n", color.GreenString("ok"), label, o.Document.Rev(), o.Attempts)
			continue
		}
		failed++
		fmt.Printf("%s %s %s: %v\n", color.RedString("fail"), label, o.Kind, o.Err)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d transactions failed", failed, len(outcomes))
	}
	return nil
}

// applyFlags overrides configuration values with the flags given on the command line.
func applyFlags(cfg *doctxn.Config, f cliFlags) {
	flag.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "backend":
			cfg.Backend = doctxn.BackendType(f.backend)
		case "max-tries":
			cfg.Options.MaxAttempts = f.maxTries
		case "delay":
			cfg.Options.BaseDelay = f.delay
		case "timeout":
			cfg.Options.OperationTimeout = f.timeout
		case "create":
			cfg.Options.Create = f.create
		case "no-timestamps":
			cfg.Options.Timestamps = !f.noTimestamps
		}
	})
}

func buildMutation(f cliFlags) (doctxn.Mutation, error) {
	var ms []doctxn.Mutation
	if f.patchFile != "" {
		ba, err := os.ReadFile(f.patchFile)
		if err != nil {
			return nil, fmt.Errorf("can't read patch file %s, details: %w", f.patchFile, err)
		}
		p, err := changes.DecodePatch(ba)
		if err != nil {
			return nil, fmt.Errorf("invalid patch file %s, details: %w", f.patchFile, err)
		}
		ms = append(ms, doctxn.PatchMutation(p))
	}
	if len(f.set) > 0 {
		m, err := cel.NewMutation(f.set, f.when)
		if err != nil {
			return nil, err
		}
		ms = append(ms, m)
	} else if f.when != "" {
		return nil, fmt.Errorf("-when needs at least one -set")
	}
	switch len(ms) {
	case 0:
		return nil, fmt.Errorf("nothing to do, give -set or -patch")
	case 1:
		return ms[0], nil
	}
	return doctxn.Chain(ms...), nil
}

// buildRequests returns one request per document. Validation of the locator forms is
// left to the client so errors name the violated constraint.
func buildRequests(cfg doctxn.Config, f cliFlags) ([]doctxn.Request, error) {
	if f.url != "" {
		return []doctxn.Request{{LocatorSpec: doctxn.LocatorSpec{URL: f.url, Couch: f.couch, DB: f.db, ID: f.ids}}}, nil
	}
	root := f.couch
	if root == "" {
		root = storeRoot(cfg)
	}
	ids := strings.Split(f.ids, ",")
	reqs := make([]doctxn.Request, 0, len(ids))
	for _, id := range ids {
		reqs = append(reqs, doctxn.ByID(root, f.db, strings.TrimSpace(id)))
	}
	return reqs, nil
}

func printDocument(doc doctxn.Document) error {
	ba, err := encoding.Indent(doc)
	if err != nil {
		return err
	}
	fmt.Println(string(ba))
	return nil
}

func printChanges(e doctxn.Event) {
	switch e.Kind {
	case doctxn.EventChange:
		fmt.Println(color.CyanString("@@ %s attempt %d", e.Transaction, e.Attempt))
		for _, line := range strings.Split(strings.TrimRight(e.Changes.Text(), "\n"), "\n") {
			switch {
			case strings.HasPrefix(line, "+"):
				fmt.Println(color.GreenString("%s", line))
			case strings.HasPrefix(line, "-"):
				fmt.Println(color.RedString("%s", line))
			default:
				fmt.Println(line)
			}
		}
	case doctxn.EventConflict:
		fmt.Println(color.YellowString("conflict on attempt %d, retrying", e.Attempt))
	}
}
