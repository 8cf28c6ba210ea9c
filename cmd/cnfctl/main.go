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

	"example.com/cnfconv/internal/cache"
	"example.com/cnfconv/internal/cnf"
	"example.com/cnfconv/internal/common"
	"example.com/cnfconv/internal/config"
	"example.com/cnfconv/internal/convert"
	"example.com/cnfconv/internal/manifest"
	"example.com/cnfconv/internal/report"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		return
	}
	cmd := os.Args[1]
	switch cmd {
	case "convert":
		convertCmd(os.Args[2:])
	case "info":
		infoCmd(os.Args[2:])
	case "batch":
		batchCmd(os.Args[2:])
	case "report":
		reportCmd(os.Args[2:])
	case "journal":
		journalCmd(os.Args[2:])
	case "manifest":
		manifestCmd(os.Args[2:])
	case "verify-signature":
		verifySignatureCmd(os.Args[2:])
	case "version":
		fmt.Printf("cnfctl %s (built %s)\n", version, buildDate)
	default:
		usage()
	}
}

func usage() {
	fmt.Printf(`cnfctl %s (built %s) <command> [options]

Commands:
  convert   --in <file.cnf> [--out <report.txt>] [--formats txt,json,yaml,pdf] [--out-dir <dir>]
  info      --in <file.cnf> [--json]
  batch     --in <dir> [--config <config.yaml>] [--out-dir <dir>] [--formats txt,json] [--concurrency N] [--cache <cache.db>] [--journal <journal.jsonl>] [--force] [--progress] [--metrics] [--log-dir <dir>]
  report    --doc <report.json|report.yaml> [--txt <out.txt>] [--json <out.json>] [--yaml <out.yaml>] [--pdf <out.pdf>]
  journal   --in <journal.jsonl> [--failed]
  manifest  --inputs <comma-separated> --out <manifest.json> [--sign --key <key.pem> --cert <cert.pem> --jws-out <file>]
  verify-signature --manifest <manifest.json> --jws <signature.jws> --cert <cert.pem>
  version
`, version, buildDate)
}

func exitf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseFormats(v string) []string {
	formats := splitList(v)
	for _, f := range formats {
		if !config.IsFormat(f) {
			exitf("unknown format %q (want txt, json, yaml or pdf)", f)
		}
	}
	return formats
}

func convertCmd(args []string) {
	fs := flag.NewFlagSet("convert", flag.ExitOnError)
	in := fs.String("in", "", "input .cnf (optionally .gz, .zst or .lz4)")
	out := fs.String("out", "", "text report path (defaults to the input with .txt)")
	formats := fs.String("formats", "txt", "comma-separated output formats")
	outDir := fs.String("out-dir", "", "directory for outputs (defaults to the input directory)")
	debug := fs.Bool("debug", false, "verbose logging")
	fs.Parse(args)

	if *in == "" {
		exitf("required: --in")
	}
	common.SetDebug(*debug)
	res, err := convert.ConvertFile(context.Background(), *in, convert.Options{
		Formats:    parseFormats(*formats),
		OutputDir:  *outDir,
		TextOutput: *out,
	})
	if err != nil {
		exitf("convert: %v", err)
	}
	for _, o := range res.Outputs {
		fmt.Println("Wrote", o)
	}
}

func infoCmd(args []string) {
	fs := flag.NewFlagSet("info", flag.ExitOnError)
	in := fs.String("in", "", "input .cnf")
	asJSON := fs.Bool("json", false, "print the decoded summary as JSON")
	fs.Parse(args)

	if *in == "" {
		exitf("required: --in")
	}
	data, err := common.ReadInput(*in)
	if err != nil {
		exitf("read input: %v", err)
	}
	rep, err := cnf.Decode(data)
	if err != nil {
		exitf("decode: %v", err)
	}
	if *asJSON {
		summary := *rep
		summary.Channels = nil
		b, err := json.MarshalIndent(summary, "", "  ")
		if err != nil {
			exitf("marshal: %v", err)
		}
		fmt.Println(string(b))
		return
	}
	printInfo(os.Stdout, rep)
}

func printInfo(w io.Writer, rep *cnf.Report) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	unit := rep.Calibration.EnergyUnit
	fmt.Fprintf(tw, "Sample\t%s (%s)\n", rep.Sample.Name, rep.Sample.ID)
	fmt.Fprintf(tw, "Type\t%s\n", rep.Sample.Type)
	fmt.Fprintf(tw, "Quantity unit\t%s\n", rep.Sample.Unit)
	fmt.Fprintf(tw, "User\t%s\n", rep.Sample.User)
	fmt.Fprintf(tw, "Start\t%s\n", rep.Times.Start.Format(report.StartTimeLayout))
	fmt.Fprintf(tw, "Real / live (s)\t%.3f / %.3f\n", rep.Times.RealTime, rep.Times.LiveTime)
	fmt.Fprintf(tw, "Channels\t%d\n", rep.NumChannels())
	fmt.Fprintf(tw, "Total counts\t%d\n", rep.TotalCounts)
	fmt.Fprintf(tw, "Markers\t[%d, %d) %d counts\n", rep.Markers.Left, rep.Markers.Right, rep.Markers.Counts)
	fmt.Fprintf(tw, "Calibration\t%v %s\n", rep.Calibration.Coefficients, unit)
	fmt.Fprintf(tw, "Sections\tparameters=0x%X strings=0x%X spectrum=0x%X markers=0x%X\n",
		rep.Sections.Parameters, rep.Sections.Strings, rep.Sections.Spectrum, rep.Sections.Markers)
	tw.Flush()
}

func batchCmd(args []string) {
	fs := flag.NewFlagSet("batch", flag.ExitOnError)
	inDir := fs.String("in", ".", "input directory")
	configPath := fs.String("config", "", "YAML configuration file")
	outDir := fs.String("out-dir", "", "results directory (defaults to next to each input)")
	formats := fs.String("formats", "", "comma-separated output formats (default txt)")
	concurrency := fs.Int("concurrency", 0, "parallel conversions (default NumCPU)")
	cachePath := fs.String("cache", "", "conversion cache database")
	journalPath := fs.String("journal", "", "JSONL journal of conversions")
	force := fs.Bool("force", false, "ignore cached results")
	progressFlag := fs.Bool("progress", false, "display progress updates")
	metricsFlag := fs.Bool("metrics", false, "print conversion metrics")
	logDir := fs.String("log-dir", "", "also write logs to a rotating file in this directory")
	debug := fs.Bool("debug", false, "verbose logging")
	fs.Parse(args)

	cfg := config.Default()
	cfg.OutputDir = ""
	cfg.Logs.Directory = ""
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			exitf("load config: %v", err)
		}
	}
	set := map[string]bool{}
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })
	if set["out-dir"] {
		cfg.OutputDir = *outDir
	}
	if set["formats"] {
		cfg.Formats = parseFormats(*formats)
	}
	if set["concurrency"] {
		cfg.Concurrency = *concurrency
	}
	if set["cache"] {
		cfg.CacheFile = *cachePath
	}
	if set["journal"] {
		cfg.Journal = *journalPath
	}
	if set["log-dir"] {
		cfg.Logs.Directory = *logDir
	}
	if *debug {
		cfg.Debug = true
	}
	if err := cfg.Validate(); err != nil {
		exitf("config: %v", err)
	}
	common.SetDebug(cfg.Debug)
	if cfg.Logs.Directory != "" {
		cfg.Logs.FileName = "cnfctl.log"
		if _, err := common.SetupLogging(cfg.Logs); err != nil {
			exitf("setup logging: %v", err)
		}
	}

	inputs, err := convert.FindInputs(*inDir)
	if err != nil {
		exitf("scan %s: %v", *inDir, err)
	}
	if len(inputs) == 0 {
		exitf("no .cnf files under %s", *inDir)
	}
	common.Logf("batch: %d inputs under %s, formats %s", len(inputs), *inDir, strings.Join(cfg.Formats, ","))

	opts := convert.Options{
		Formats:         cfg.Formats,
		OutputDir:       cfg.OutputDir,
		InputRoot:       *inDir,
		Concurrency:     cfg.Concurrency,
		Force:           *force,
		MaxDecompressed: int64(cfg.MaxDecodedMB) << 20,
		Metrics:         common.NewMetrics(),
	}
	if cfg.CacheFile != "" {
		c, err := cache.Open(cfg.CacheFile)
		if err != nil {
			exitf("cache: %v", err)
		}
		defer c.Close()
		opts.Cache = c
	}
	if cfg.Journal != "" {
		opts.Journal = common.NewJournal(cfg.Journal)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	var stopProgress func()
	if *progressFlag {
		stopProgress = common.StartProgressPrinter(os.Stderr, opts.Metrics, 500*time.Millisecond)
	}
	results, err := convert.Batch(ctx, inputs, opts)
	if stopProgress != nil {
		stopProgress()
	}
	converted, cached, failed := convert.Summary(results)
	if opts.Cache != nil {
		if n, err := opts.Cache.Len(); err == nil {
			common.Logf("cache %s holds %d entries", cfg.CacheFile, n)
		} else {
			common.Logf("cache: %v", err)
		}
	}
	for _, r := range results {
		if r.Err != nil && !errors.Is(r.Err, context.Canceled) {
			fmt.Fprintf(os.Stderr, "FAIL %s: %v\n", r.Input, r.Err)
		}
	}
	fmt.Printf("converted=%d, cached=%d, failed=%d, total=%d\n", converted, cached, failed, len(results))
	if *metricsFlag {
		snap := opts.Metrics.Snapshot()
		fmt.Printf("Metrics: duration=%s files=%d processed=%s throughput=%.2f MB/s cacheHits=%d\n",
			snap.Duration.Round(10*time.Millisecond),
			snap.Files,
			common.FormatBytes(snap.Bytes),
			snap.ThroughputBytesPerSecond()/1_000_000,
			snap.CacheHits,
		)
	}
	if err != nil {
		exitf("batch interrupted: %v", err)
	}
	if failed > 0 {
		os.Exit(1)
	}
}

func reportCmd(args []string) {
	fs := flag.NewFlagSet("report", flag.ExitOnError)
	docPath := fs.String("doc", "", "report JSON or YAML written by convert --formats json|yaml")
	txtPath := fs.String("txt", "", "output text report")
	jsonPath := fs.String("json", "", "output JSON report")
	yamlPath := fs.String("yaml", "", "output YAML report")
	pdfPath := fs.String("pdf", "", "output PDF report")
	fs.Parse(args)

	if *docPath == "" {
		exitf("required: --doc")
	}
	doc, err := loadDocument(*docPath)
	if err != nil {
		exitf("load report: %v", err)
	}
	if doc.Report == nil {
		exitf("load report: %s has no report", *docPath)
	}
	if *txtPath == "" && *jsonPath == "" && *yamlPath == "" && *pdfPath == "" {
		if err := report.WriteText(os.Stdout, doc.Report); err != nil {
			exitf("write text: %v", err)
		}
		return
	}
	if *txtPath != "" {
		if err := report.SaveText(doc.Report, *txtPath); err != nil {
			exitf("write text: %v", err)
		}
		fmt.Println("Wrote", *txtPath)
	}
	if *jsonPath != "" {
		if err := report.SaveJSON(doc, *jsonPath); err != nil {
			exitf("write json: %v", err)
		}
		fmt.Println("Wrote", *jsonPath)
	}
	if *yamlPath != "" {
		if err := report.SaveYAML(doc, *yamlPath); err != nil {
			exitf("write yaml: %v", err)
		}
		fmt.Println("Wrote", *yamlPath)
	}
	if *pdfPath != "" {
		if err := report.SavePDF(doc, *pdfPath); err != nil {
			exitf("write pdf: %v", err)
		}
		fmt.Println("Wrote PDF:", *pdfPath)
	}
}

// loadDocument reads a structured report, choosing the decoder by extension.
func loadDocument(path string) (report.Document, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return report.LoadYAML(path)
	default:
		return report.LoadJSON(path)
	}
}

func journalCmd(args []string) {
	fs := flag.NewFlagSet("journal", flag.ExitOnError)
	in := fs.String("in", "", "journal JSONL file")
	failedOnly := fs.Bool("failed", false, "only list failed conversions")
	fs.Parse(args)

	if *in == "" {
		exitf("required: --in")
	}
	entries, err := common.ReadJournal(*in)
	if err != nil {
		exitf("read journal: %v", err)
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tINPUT\tSTATUS\tDETAIL")
	for _, e := range entries {
		if *failedOnly && !e.Failed() {
			continue
		}
		status, detail := "ok", strings.Join(e.Outputs, ",")
		switch {
		case e.Failed():
			status, detail = "failed", e.Error
		case e.Cached:
			status = "cached"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", e.Ts.Format(time.RFC3339), e.Input, status, detail)
	}
	tw.Flush()
}

func manifestCmd(args []string) {
	fs := flag.NewFlagSet("manifest", flag.ExitOnError)
	inputs := fs.String("inputs", "", "comma-separated paths")
	out := fs.String("out", "manifest.json", "output json")
	sign := fs.Bool("sign", false, "sign manifest (detached JWS over JSON)")
	keyPath := fs.String("key", "", "PEM private key for signing (requires --sign)")
	certPath := fs.String("cert", "", "PEM certificate describing signer (requires --sign)")
	jwsOut := fs.String("jws-out", "", "output JWS file (defaults to manifest path with .jws)")
	fs.Parse(args)

	if *inputs == "" {
		exitf("required: --inputs")
	}
	var paths []string
	for _, p := range strings.Split(*inputs, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		paths = append(paths, filepath.Clean(p))
	}
	if len(paths) == 0 {
		exitf("no input paths specified")
	}

	m, err := manifest.Build(paths)
	if err != nil {
		exitf("manifest build: %v", err)
	}
	if !*sign {
		if err := manifest.Save(m, *out); err != nil {
			exitf("manifest save: %v", err)
		}
		fmt.Println("Wrote", *out)
		return
	}
	if *keyPath == "" || *certPath == "" {
		exitf("--sign requires --key and --cert")
	}
	keyBytes, err := os.ReadFile(*keyPath)
	if err != nil {
		exitf("read key: %v", err)
	}
	certBytes, err := os.ReadFile(*certPath)
	if err != nil {
		exitf("read cert: %v", err)
	}
	m, err = manifest.SaveSigned(m, *out, *jwsOut, keyBytes, certBytes)
	if err != nil {
		exitf("manifest sign: %v", err)
	}
	fmt.Println("Wrote", *out)
	fmt.Println("Wrote signature", m.Signature.SignatureFile)
}

func verifySignatureCmd(args []string) {
	fs := flag.NewFlagSet("verify-signature", flag.ExitOnError)
	manifestPath := fs.String("manifest", "", "manifest JSON file")
	jwsPath := fs.String("jws", "", "manifest JWS signature file")
	certPath := fs.String("cert", "", "signer certificate (PEM)")
	fs.Parse(args)

	if *manifestPath == "" || *jwsPath == "" || *certPath == "" {
		exitf("required: --manifest, --jws, --cert")
	}
	if err := manifest.VerifyFiles(*manifestPath, *jwsPath, *certPath); err != nil {
		exitf("verify signature: %v", err)
	}
	fmt.Println("Signature OK")
}
