// Command ingestd is the operator-facing process for the offline
// packet-ingest core: it parses configuration knobs (§6), wires the ten
// components together, runs the IngestWorker to completion against the
// configured initial sources, and exposes the add-file/add-dir control
// channel (§6) as cobra subcommands that parse, validate and echo a
// command; they do not reach a running instance.
//
// Structured the way the teacher lays out its root command: a cobra.Command
// tree with pflag-registered persistent flags, grounded on the teacher's
// cmd/ + fs/config/configflags convention (cmd/authorize/authorize_test.go's
// pflag usage; cmd/cmd_test.go's rootcmd wiring expectations).
package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/flowcap/ingest"
	"github.com/flowcap/ingest/backpressure"
	"github.com/flowcap/ingest/control"
	"github.com/flowcap/ingest/downstream"
	"github.com/flowcap/ingest/downstream/fake"
	"github.com/flowcap/ingest/internal/ingestlog"
	"github.com/flowcap/ingest/packet"
	"github.com/flowcap/ingest/pcapformat"
	"github.com/flowcap/ingest/queue"
	"github.com/flowcap/ingest/rules"
	schemefile "github.com/flowcap/ingest/scheme/file"
	schemegarland "github.com/flowcap/ingest/scheme/garland"
	"github.com/flowcap/ingest/slot"
	"github.com/flowcap/ingest/worker"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// cliFlags holds the command-line form of ingest.Config's knobs, plus
// garland and verbose, which have no Config field; cobra/pflag populate this
// and main translates it into an ingest.Config, the same separation the
// teacher keeps between its flag variables and fs.ConfigInfo.
type cliFlags struct {
	dirs       []string
	fileListFl []string

	monitor       bool
	recursive     bool
	skipProcessed bool
	deleteAfter   bool

	bpfExpr string

	maxInQueue        int
	dispatchAfter     int
	diskWriterMark    int
	indexSinkMark     int
	flushBetweenFiles bool
	tolerateErrors    bool
	allowTruncated    bool
	dryRun            bool
	copyOnly          bool
	garland           bool
	schemeEthertype   uint16

	verbose bool
}

func newRootCmd() *cobra.Command {
	flags := &cliFlags{}

	root := &cobra.Command{
		Use:   "ingestd [sources...]",
		Short: "Stream capture files into the packet-processing pipeline",
		Long: `ingestd resolves each source by its URI scheme (defaulting to "file"),
streams the capture-file format into reconstructed packet records, and
submits them to the downstream batcher, pacing ingest against three
downstream queues.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngest(cmd.Context(), flags, args)
		},
	}

	pf := root.PersistentFlags()
	pf.StringArrayVar(&flags.fileListFl, "file-list", nil, "file containing one path/URI per line; \"-\" means stdin (repeatable)")
	pf.StringArrayVar(&flags.dirs, "dir", nil, "directory to ingest at startup (repeatable)")
	pf.BoolVar(&flags.monitor, "monitor", false, "poll directories for newly-arrived files")
	pf.BoolVar(&flags.recursive, "recursive", false, "expand nested directories")
	pf.BoolVar(&flags.skipProcessed, "skip-processed", false, "skip files already recorded as ingested")
	pf.BoolVar(&flags.deleteAfter, "delete-after", false, "remove source files once fully ingested")
	pf.StringVar(&flags.bpfExpr, "bpf", "", "filter expression compiled against the declared link-layer type")
	pf.IntVar(&flags.maxInQueue, "max-in-queue", 1000, "in-flight packet watermark ceiling")
	pf.IntVar(&flags.dispatchAfter, "dispatch-after", 900, "headroom below max-in-queue before the gate opens; may exceed max-in-queue by up to 1000")
	pf.IntVar(&flags.diskWriterMark, "disk-writer-mark", 10, "disk-writer queue depth watermark")
	pf.IntVar(&flags.indexSinkMark, "index-sink-mark", 30, "index-sink queue depth watermark")
	pf.BoolVar(&flags.flushBetweenFiles, "flush-between-files", false, "quiesce all outstanding session work between consecutive files")
	pf.BoolVar(&flags.tolerateErrors, "tolerate-errors", false, "abandon a file with an unrecognised header instead of failing fatally")
	pf.BoolVar(&flags.allowTruncated, "allow-truncated-packets", false, "tolerate captured_len != original_len instead of failing fatally")
	pf.BoolVar(&flags.dryRun, "dry-run", false, "parse and log but do not submit to the batcher")
	pf.BoolVar(&flags.copyOnly, "copy-only", false, "disable the BPF filter stage even if --bpf is set")
	pf.BoolVar(&flags.garland, "garland", false, "use the garland scheme (strip tap metadata) for all sources instead of file")
	pf.Uint16Var(&flags.schemeEthertype, "scheme-ethertype", 0xFF12, "EtherType that triggers the garland link-layer shim on any scheme's packets (0 disables)")
	pf.BoolVarP(&flags.verbose, "verbose", "v", false, "log at debug level")

	root.AddCommand(newAddFileCmd(), newAddDirCmd())
	return root
}

// newAddFileCmd and newAddDirCmd expose §6's control-channel surface as
// cobra subcommands that print the parsed ingest.Flags/ActionSet — a
// standalone invocation cannot submit to a running worker's PendingQueue
// (that channel is out of this process's scope per §1), so these validate
// and echo what a long-lived controller would enqueue.
func newAddFileCmd() *cobra.Command {
	return &cobra.Command{
		Use:                "add-file [flags] <path-or-uri>",
		Short:              "Validate an add-file control command the way a running instance's controller would",
		DisableFlagParsing: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := control.ParseAddFile(args)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "add-file %s flags=%s actions=%d\n", c.URI, c.Flags, c.Actions.Len())
			return nil
		},
	}
}

func newAddDirCmd() *cobra.Command {
	return &cobra.Command{
		Use:                "add-dir [flags] <path-or-uri>",
		Short:              "Validate an add-dir control command the way a running instance's controller would",
		DisableFlagParsing: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := control.ParseAddDir(args)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "add-dir %s flags=%s actions=%d\n", c.URI, c.Flags, c.Actions.Len())
			return nil
		},
	}
}

// runIngest builds every component (§4.A-§4.J) and drives one Worker.Run to
// completion against the configured initial sources plus whatever files
// the --file-list arguments expand to.
func runIngest(ctx context.Context, flags *cliFlags, initialFiles []string) error {
	cfg := ingest.DefaultConfig()
	cfg.InitialFiles = initialFiles
	cfg.InitialDirs = flags.dirs
	cfg.FileListFiles = flags.fileListFl
	cfg.Monitor = flags.monitor
	cfg.Recursive = flags.recursive
	cfg.SkipProcessed = flags.skipProcessed
	cfg.DeleteAfter = flags.deleteAfter
	cfg.BpfExpr = flags.bpfExpr
	cfg.MaxInQueue = flags.maxInQueue
	cfg.DispatchAfter = flags.dispatchAfter
	cfg.DiskWriterMark = flags.diskWriterMark
	cfg.IndexSinkMark = flags.indexSinkMark
	cfg.FlushBetweenFiles = flags.flushBetweenFiles
	cfg.TolerateErrors = flags.tolerateErrors
	cfg.AllowTruncated = flags.allowTruncated
	cfg.DryRun = flags.dryRun
	cfg.CopyOnly = flags.copyOnly
	cfg.SchemeEthertype = flags.schemeEthertype

	if err := cfg.Validate(); err != nil {
		return err
	}

	expanded, err := expandFileLists(cfg.FileListFiles)
	if err != nil {
		return err
	}
	cfg.InitialFiles = append(cfg.InitialFiles, expanded...)

	minLevel := slog.LevelInfo
	if flags.verbose {
		minLevel = slog.LevelDebug
	}
	log := ingestlog.New(os.Stderr, minLevel)

	slots := slot.NewTable()
	ruleEngine, err := rules.NewEngine(nil, log)
	if err != nil {
		return err
	}

	batcher := fake.NewBatcher()
	dryBatcher := dryRunBatcher{inner: batcher, dryRun: cfg.DryRun}
	diskWriter := &fake.QueueDepth{}
	indexSink := &fake.QueueDepth{}
	tracker := &fake.SessionTracker{}
	var bpf downstream.BpfCompiler
	if !cfg.CopyOnly {
		bpf = &fake.BpfCompiler{}
	}

	registry := ingest.NewSchemeRegistry()

	// gate.inFlight reports the live count of packets submitted to the
	// batcher and not yet retired downstream, matching reader-scheme.c's
	// arkime_packet_outstanding() — not a precomputed constant (§4.G).
	gate := backpressure.New(backpressure.Watermarks{
		DiskWriterMark: cfg.DiskWriterMark,
		IndexSinkMark:  cfg.IndexSinkMark,
		MaxInQueue:     cfg.MaxInQueue,
		DispatchAfter:  cfg.DispatchAfter,
	}, diskWriter, indexSink, dryBatcher.Depth, log)

	opts := pcapformat.Options{
		TolerateErrors:  cfg.TolerateErrors,
		AllowTruncated:  cfg.AllowTruncated,
		SchemeEthertype: cfg.SchemeEthertype,
	}
	depsFactory := func(u ingest.Uri) pcapformat.Deps {
		return pcapformat.Deps{
			Slots:   slots,
			Rules:   ruleEngine,
			Batcher: dryBatcher,
			Bpf:     bpf,
			BpfExpr: cfg.BpfExpr,
			Gate:    gate,
			Log:     log,
		}
	}

	fileLoader := schemefile.New(depsFactory, opts, log, ingest.DefaultScheme)
	if err := registry.Register(fileLoader.RegInfo()); err != nil {
		return err
	}
	if err := registry.Register(schemegarland.RegInfo(depsFactory, opts, log)); err != nil {
		return err
	}
	defer registry.Shutdown()

	pending := queue.New()

	if flags.garland {
		cfg.InitialFiles = prefixScheme(cfg.InitialFiles, "garland")
		cfg.InitialDirs = prefixScheme(cfg.InitialDirs, "garland")
	}

	w := worker.New(cfg, registry, pending, gate, tracker, log)

	if err := w.Run(ctx); err != nil {
		return err
	}

	log.Info("ingest run complete", "packets", len(batcher.Records()), "last_slot", slots.Active())
	return nil
}

// prefixScheme prepends "scheme://" to every raw source that does not
// already carry a "://" prefix, used by --garland to route bare paths to
// the garland loader instead of the default file scheme.
func prefixScheme(raws []string, scheme string) []string {
	out := make([]string, len(raws))
	for i, raw := range raws {
		if strings.Contains(raw, "://") {
			out[i] = raw
			continue
		}
		out[i] = scheme + "://" + raw
	}
	return out
}

// expandFileLists reads every §6 file-list argument (one path/URI per
// line; "-" means stdin) and returns the concatenated, order-preserved
// list of entries.
func expandFileLists(paths []string) ([]string, error) {
	var out []string
	for _, p := range paths {
		var r io.Reader
		if p == "-" {
			r = os.Stdin
		} else {
			f, err := os.Open(p)
			if err != nil {
				return nil, fmt.Errorf("ingestd: reading file list %q: %w", p, err)
			}
			defer f.Close()
			r = f
		}
		sc := bufio.NewScanner(r)
		for sc.Scan() {
			line := sc.Text()
			if line == "" {
				continue
			}
			out = append(out, line)
		}
		if err := sc.Err(); err != nil {
			return nil, fmt.Errorf("ingestd: reading file list %q: %w", p, err)
		}
	}
	return out, nil
}

// dryRunBatcher wraps a real downstream.Batcher and drops every Submit
// under --dry-run while still reporting its depth, so BackpressureGate
// behaves identically with or without --dry-run (§6 dry_run knob).
type dryRunBatcher struct {
	inner  *fake.Batcher
	dryRun bool
}

func (d dryRunBatcher) Submit(rec packet.Record) error {
	if d.dryRun {
		return nil
	}
	return d.inner.Submit(rec)
}

func (d dryRunBatcher) EndOfFile(slotID uint8) error {
	if d.dryRun {
		return nil
	}
	return d.inner.EndOfFile(slotID)
}

func (d dryRunBatcher) Depth() int { return d.inner.Depth() }
