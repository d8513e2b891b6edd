// devtype types Devanagari from Latin keys and keeps the ground-truth
// labels of manuscript line images.
//
//	devtype type <keys>             Replay a key script and print the result
//	devtype pad                     Type interactively in the terminal
//	devtype import <predictions>    Load recognizer output into the store
//	devtype annotate -page P ...    Type and store a ground-truth label
//	devtype score                   Compute edit distances
//	devtype export <manuscript>     Write labels as JSON
//	devtype verify                  Recheck label fingerprints
//	devtype status [-clear-crashes] Check config, keymap, store and crash reports
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"devtype/internal/config"
	"devtype/internal/keymap"
	"devtype/internal/logging"
	"devtype/internal/scoring"
	"devtype/internal/store"
	"devtype/internal/translit"

	"github.com/rivo/uniseg"
)

var (
	configPath = flag.String("config", "", "path to config file")

	// Version is set at build time.
	Version = "dev"
)

func main() {
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() < 1 {
		usage()
		os.Exit(1)
	}

	cmd, args := flag.Arg(0), flag.Args()[1:]

	switch cmd {
	case "init":
		cmdInit()
	case "type":
		cmdType(args)
	case "pad":
		cmdPad(args)
	case "import":
		cmdImport(args)
	case "annotate":
		cmdAnnotate(args)
	case "score":
		cmdScore(args)
	case "export":
		cmdExport(args)
	case "verify":
		cmdVerify(args)
	case "tables":
		cmdTables(args)
	case "status":
		cmdStatus(args)
	case "version":
		fmt.Printf("devtype %s\n", Version)
	case "help", "-h", "--help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `devtype - Devanagari typing and manuscript annotation

Usage: devtype [options] <command> [args]

Commands:
  init                        Write a default config file
  type [-trace] <keys>        Replay a key script and print the value
  pad                         Interactive typing field (Esc commits)
  import <predictions.json>   Load predicted labels into the store
  annotate -manuscript M -page P -line N <keys>
                              Type a ground-truth label and store it
  score [-manuscript M] [-v]  Compute and store edit distances
  export <manuscript> [out]   Write labels as JSON ("-" for all manuscripts)
  verify [-manuscript M]      Recheck label fingerprints
  tables [-kind K]            List the active mapping rules
  status [-clear-crashes]     Check config, keymap, store and crash reports
  version                     Print the version
  help                        Show this help message

Key scripts:
  Plain characters are typed as is. Special keys go in angle brackets:
  <BS>, <Enter>, <Left>, <C-c>, <S-A>. "<<" types "<".

Options:
  -config <path>  Path to config file (default: platform config dir)`)
}

// app bundles what every command needs.
type app struct {
	cfg     *config.Config
	cfgPath string
	logger  *logging.Logger
	audit   *logging.AuditLogger
	ctx     context.Context
	stop    context.CancelFunc

	// crashDir holds the pad's crash reports; status lists them.
	crashDir string
}

func resolveConfigPath() string {
	if *configPath != "" {
		return *configPath
	}
	if found := config.FindConfigFile(); found != "" {
		return found
	}
	return config.ConfigPath()
}

func setup(component string) *app {
	path := resolveConfigPath()
	loader := config.NewLoader(path)
	cfg, err := loader.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	logCfg, err := logging.FromSettings(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error in logging config: %v\n", err)
		os.Exit(1)
	}
	logCfg.Component = component
	logger, err := logging.New(logCfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating logger: %v\n", err)
		os.Exit(1)
	}
	logging.SetDefault(logger)

	if verr := cfg.Validate(); verr != nil {
		var verrs config.ValidationErrors
		if errors.As(verr, &verrs) {
			for _, w := range verrs.Warnings() {
				logger.Warn("config warning", "field", w.Field, "message", w.Message)
			}
		}
	}

	sessionID := logger.NewSessionID()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	ctx = logging.ContextWithSessionID(ctx, sessionID)

	auditCfg := logging.DefaultAuditConfig()
	auditCfg.FilePath = filepath.Join(filepath.Dir(cfg.Logging.FilePath), "audit.log")
	auditCfg.Component = component
	audit, err := logging.NewAuditLogger(auditCfg)
	if err != nil {
		logger.Warn("audit log unavailable", "error", err)
	} else {
		audit.SetSessionID(sessionID)
	}

	return &app{
		cfg:     cfg,
		cfgPath: path,
		logger:  logger.WithSessionID(sessionID),
		audit:   audit,
		ctx:     ctx,
		stop:    stop,

		crashDir: logging.DefaultCrashDir(),
	}
}

func (a *app) close() {
	if a.audit != nil {
		a.audit.Close()
	}
	a.stop()
	a.logger.Close()
}

func (a *app) fatalf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	a.logger.Error(msg)
	if a.audit != nil {
		a.audit.LogError(a.ctx, "command", errors.New(msg), nil)
	}
	a.close()
	fmt.Fprintln(os.Stderr, "Error: "+msg)
	os.Exit(1)
}

// recordAudit writes an audit event; the audit log is best effort.
func (a *app) recordAudit(fn func(*logging.AuditLogger) error) {
	if a.audit == nil {
		return
	}
	if err := fn(a.audit); err != nil {
		a.logger.Warn("audit write failed", "error", err)
	}
}

func (a *app) loadTables() *translit.Tables {
	tables, err := keymap.LoadTables(a.cfg.Engine.KeymapPath)
	if err != nil {
		a.logger.Warn("keymap not loaded, using built-in tables",
			"path", a.cfg.Engine.KeymapPath, "error", err)
		return translit.DefaultTables()
	}
	return tables
}

func (a *app) newEngine() *translit.Engine {
	return translit.NewEngine(
		translit.WithTables(a.loadTables()),
		translit.WithHalantKey(a.cfg.Engine.HalantKey),
		translit.WithPlaceholder(a.cfg.PlaceholderRune()),
		translit.WithLogger(a.logger.WithComponent("engine").Logger),
	)
}

// watchKeymap hot-reloads the keymap overlay into engine when configured.
func (a *app) watchKeymap(engine *translit.Engine) *keymap.Watcher {
	path := a.cfg.Engine.KeymapPath
	if !a.cfg.Engine.WatchKeymap || path == "" {
		return nil
	}

	w := keymap.NewWatcher(path, func(t *translit.Tables) {
		engine.SetTables(t)
		a.recordAudit(func(al *logging.AuditLogger) error {
			return al.LogKeymapReload(a.ctx, path, nil)
		})
	}, keymap.WithWatcherLogger(a.logger.WithComponent("keymap").Logger))

	if err := w.Start(); err != nil {
		a.logger.Warn("keymap watch failed", "path", path, "error", err)
		return nil
	}

	go func() {
		for {
			select {
			case <-a.ctx.Done():
				return
			case err := <-w.Errors():
				a.recordAudit(func(al *logging.AuditLogger) error {
					return al.LogKeymapReload(a.ctx, path, err)
				})
			}
		}
	}()
	return w
}

func (a *app) openStore() *store.Store {
	st, err := store.Open(a.cfg.Storage.Path, store.Options{
		BusyTimeout:    time.Duration(a.cfg.Storage.BusyTimeoutMs) * time.Millisecond,
		MaxConnections: a.cfg.Storage.MaxConnections,
	})
	if err != nil {
		if errors.Is(err, store.ErrLocked) {
			a.fatalf("annotation store %s is in use by another devtype process", a.cfg.Storage.Path)
		}
		a.fatalf("open store: %v", err)
	}
	return st
}

// typeScript replays a key script into a fresh field and commits it.
func (a *app) typeScript(engine *translit.Engine, script string, settle bool) (string, []translit.TraceEntry, error) {
	events, err := translit.ParseKeys(script)
	if err != nil {
		return "", nil, err
	}
	host := translit.NewMemoryHost("", 0)
	field := translit.NewField(engine, host, translit.WithSettleOnCommit(settle))
	trace := translit.Replay(field, host, events)
	return field.Commit(), trace, nil
}

func scriptArg(args []string) (string, error) {
	if len(args) > 0 {
		return strings.Join(args, " "), nil
	}
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	return strings.TrimRight(string(data), "\r\n"), nil
}

func cmdInit() {
	path := resolveConfigPath()
	cfg, created, err := config.LoadOrCreate(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if created {
		fmt.Printf("Created %s\n", path)
	} else {
		fmt.Printf("Config already exists: %s\n", path)
	}
	fmt.Printf("  Store:  %s\n", cfg.Storage.Path)
	fmt.Printf("  Halant: %s\n", cfg.Engine.HalantKey)
	if cfg.Engine.KeymapPath != "" {
		fmt.Printf("  Keymap: %s\n", cfg.Engine.KeymapPath)
	}
}

func cmdType(args []string) {
	fs := flag.NewFlagSet("type", flag.ExitOnError)
	trace := fs.Bool("trace", false, "print every key and the field after it")
	settle := fs.Bool("settle", false, "strip typing markers from the result")
	fs.Parse(args)

	a := setup("type")
	defer a.close()

	script, err := scriptArg(fs.Args())
	if err != nil {
		a.fatalf("%v", err)
	}

	value, entries, err := a.typeScript(a.newEngine(), script, *settle)
	if err != nil {
		a.fatalf("%v", err)
	}

	if *trace {
		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "KEY\tSTEP\tRULE\tVALUE\tCARET")
		for _, e := range entries {
			rule := "-"
			if e.Outcome.Rule.Kind != 0 {
				rule = e.Outcome.Rule.Kind.String() + ":" + e.Outcome.Rule.Trigger
			}
			step := e.Outcome.Step.String()
			if e.Outcome.Aborted {
				step += " (aborted)"
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%q\t%d\n", e.Event, step, rule, e.Value, e.Caret)
		}
		tw.Flush()
		fmt.Printf("\n%d code points, %d graphemes\n",
			len([]rune(value)), uniseg.GraphemeClusterCount(value))
	}

	fmt.Println(value)
}

func cmdImport(args []string) {
	fs := flag.NewFlagSet("import", flag.ExitOnError)
	fs.Parse(args)

	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Usage: devtype import <predictions.json>")
		os.Exit(1)
	}
	source := fs.Arg(0)

	a := setup("import")
	defer a.close()

	f, err := os.Open(source)
	if err != nil {
		a.fatalf("%v", err)
	}
	preds, err := store.ParsePredictions(f)
	f.Close()
	if err != nil {
		a.fatalf("%s: %v", source, err)
	}

	st := a.openStore()
	defer st.Close()

	n, err := st.Import(preds)
	if err != nil {
		a.fatalf("import: %v", err)
	}
	a.logger.Info("predictions imported", "source", source, "lines", n)
	a.recordAudit(func(al *logging.AuditLogger) error {
		return al.LogImport(a.ctx, source, n)
	})

	fmt.Printf("Imported %d lines from %s\n", n, source)
}

func cmdAnnotate(args []string) {
	fs := flag.NewFlagSet("annotate", flag.ExitOnError)
	manuscript := fs.String("manuscript", "", "manuscript name")
	page := fs.String("page", "", "page")
	line := fs.Int("line", -1, "line number")
	raw := fs.Bool("raw", false, "store the arguments as the label without typing them")
	fs.Parse(args)

	if *manuscript == "" || *page == "" || *line < 0 {
		fmt.Fprintln(os.Stderr, "Usage: devtype annotate -manuscript M -page P -line N [-raw] <keys>")
		os.Exit(1)
	}

	a := setup("annotate")
	defer a.close()

	script, err := scriptArg(fs.Args())
	if err != nil {
		a.fatalf("%v", err)
	}

	label := script
	if !*raw {
		label, _, err = a.typeScript(a.newEngine(), script, a.cfg.Engine.SettleOnCommit)
		if err != nil {
			a.fatalf("%v", err)
		}
	}

	st := a.openStore()
	defer st.Close()

	k := store.Key{Manuscript: *manuscript, Page: *page, Line: *line}
	previous, err := st.SetGroundTruth(k, label)
	if err != nil {
		a.fatalf("annotate %s: %v", k, err)
	}
	a.recordAudit(func(al *logging.AuditLogger) error {
		return al.LogGroundTruth(a.ctx, k.String(), previous, label)
	})

	fmt.Printf("%s: %s\n", k, label)
	if previous != "" && previous != label {
		fmt.Printf("  replaced: %s\n", previous)
	}

	if ann, err := st.Get(k); err == nil && ann.Predicted != "" {
		scorer, err := scoring.FromSettings(a.cfg.Scoring)
		if err == nil {
			fmt.Printf("  predicted: %s (distance %d)\n", ann.Predicted, scorer.Distance(ann.Predicted, label))
		}
	}
}

func cmdScore(args []string) {
	fs := flag.NewFlagSet("score", flag.ExitOnError)
	manuscript := fs.String("manuscript", "", "score one manuscript (default: all)")
	verbose := fs.Bool("v", false, "print every scored line")
	unit := fs.String("unit", "", "override the scoring unit (codepoint, grapheme)")
	fs.Parse(args)

	a := setup("score")
	defer a.close()

	settings := a.cfg.Scoring
	if *unit != "" {
		settings.Unit = *unit
	}
	scorer, err := scoring.FromSettings(settings)
	if err != nil {
		a.fatalf("%v", err)
	}

	st := a.openStore()
	defer st.Close()

	list, err := st.ListManuscript(*manuscript)
	if err != nil {
		a.fatalf("%v", err)
	}

	results, sum, err := scorer.ScoreRecords(a.ctx, st, list)
	if err != nil {
		a.fatalf("score: %v", err)
	}

	scope := *manuscript
	if scope == "" {
		scope = "all"
	}
	a.logger.Info("scored", "scope", scope, "lines", sum.Lines, "cer", sum.CER())
	a.recordAudit(func(al *logging.AuditLogger) error {
		return al.LogScore(a.ctx, scope, sum.Lines, sum.CER())
	})

	if *verbose {
		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "LINE\tDISTANCE\tLENGTH")
		for _, r := range results {
			fmt.Fprintf(tw, "%s\t%d\t%d\n", r.Key, r.Distance, r.Reference)
		}
		tw.Flush()
		fmt.Println()
	}

	fmt.Printf("=== Scores: %s (%s) ===\n", scope, scorer.Unit)
	fmt.Printf("Lines scored:     %d\n", sum.Lines)
	fmt.Printf("Exact matches:    %d\n", sum.Exact)
	fmt.Printf("Total distance:   %d\n", sum.TotalDistance)
	fmt.Printf("Mean distance:    %.3f\n", sum.Mean())
	fmt.Printf("Error rate (CER): %.2f%%\n", sum.CER()*100)
}

func cmdExport(args []string) {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	fs.Parse(args)

	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Usage: devtype export <manuscript|-> [output.json]")
		os.Exit(1)
	}
	manuscript := fs.Arg(0)
	if manuscript == "-" {
		manuscript = ""
	}
	output := ""
	if fs.NArg() >= 2 {
		output = fs.Arg(1)
	}

	a := setup("export")
	defer a.close()

	st := a.openStore()
	defer st.Close()

	doc, err := st.Export(manuscript)
	if err != nil {
		a.fatalf("export: %v", err)
	}
	if len(doc) == 0 {
		a.fatalf("no annotations found for %q", manuscript)
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		a.fatalf("encode: %v", err)
	}
	data = append(data, '\n')

	count := 0
	for _, pages := range doc {
		for _, lines := range pages {
			count += len(lines)
		}
	}

	if output == "" {
		os.Stdout.Write(data)
	} else {
		if err := os.WriteFile(output, data, 0600); err != nil {
			a.fatalf("write %s: %v", output, err)
		}
		fmt.Fprintf(os.Stderr, "Exported %d lines to %s\n", count, output)
	}

	a.recordAudit(func(al *logging.AuditLogger) error {
		return al.LogExport(a.ctx, fs.Arg(0), output, count)
	})
}

func cmdVerify(args []string) {
	fs := flag.NewFlagSet("verify", flag.ExitOnError)
	manuscript := fs.String("manuscript", "", "verify one manuscript (default: all)")
	fs.Parse(args)

	a := setup("verify")
	defer a.close()

	st := a.openStore()
	defer st.Close()

	corrupted, err := st.VerifyLabels(*manuscript)
	if err != nil {
		a.fatalf("verify: %v", err)
	}

	scope := *manuscript
	if scope == "" {
		scope = "all"
	}
	keys := make([]string, len(corrupted))
	for i, k := range corrupted {
		keys[i] = k.String()
	}
	a.recordAudit(func(al *logging.AuditLogger) error {
		return al.LogVerification(a.ctx, scope, len(corrupted) == 0, map[string]any{
			"corrupted": keys,
		})
	})

	if len(corrupted) == 0 {
		fmt.Printf("All labels verified (%s)\n", scope)
		return
	}

	fmt.Printf("%d labels do not match their fingerprints:\n", len(corrupted))
	for _, k := range keys {
		fmt.Printf("  %s\n", k)
	}
	a.close()
	os.Exit(1)
}

func cmdTables(args []string) {
	fs := flag.NewFlagSet("tables", flag.ExitOnError)
	kind := fs.String("kind", "", "only list one kind: consonant, double, triple, independent, dependent")
	fs.Parse(args)

	a := setup("tables")
	defer a.close()

	tables := a.loadTables()

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "KIND\tTRIGGER\tCONTEXT\tRESULT\tREMOVE")
	n := 0
	for _, r := range tables.Rules() {
		if *kind != "" && r.Kind.String() != *kind {
			continue
		}
		ctx := r.Context
		if ctx == "" {
			ctx = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\n", r.Kind, r.Trigger, ctx, r.Result, r.Remove)
		n++
	}
	tw.Flush()
	fmt.Printf("\n%d rules\n", n)
}
