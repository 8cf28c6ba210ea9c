// Package convert runs the read, decode and render pipeline for CNF files,
// singly or as a bounded batch.
package convert

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"example.com/cnfconv/internal/cache"
	"example.com/cnfconv/internal/cnf"
	"example.com/cnfconv/internal/common"
	"example.com/cnfconv/internal/config"
	"example.com/cnfconv/internal/report"
)

type Options struct {
	// Formats lists the outputs to write; empty means text only.
	Formats []string
	// OutputDir receives the outputs; empty writes them next to the input.
	OutputDir string
	// InputRoot is the scanned directory. With OutputDir set, each input's
	// path below InputRoot is kept below OutputDir.
	InputRoot string
	// TextOutput overrides the path of the text report for a single input.
	TextOutput  string
	Concurrency int
	// Force ignores cached results.
	Force bool
	// MaxDecompressed caps the unwrapped size of compressed inputs; zero
	// means common.DefaultMaxDecompressed.
	MaxDecompressed int64
	Cache           *cache.Cache
	Journal         *common.Journal
	Metrics         *common.Metrics
}

func (o Options) formats() []string {
	if len(o.Formats) == 0 {
		return []string{config.FormatText}
	}
	return o.Formats
}

// signature identifies the option values that change what gets written
// for input, including where it goes.
func (o Options) signature(input string) string {
	return strings.Join(o.formats(), ",") + "|" + strings.Join(o.outputPaths(input), ",")
}

// outputPaths lists the files written for input, one per format.
func (o Options) outputPaths(input string) []string {
	base := OutputBase(input, o.OutputDir, o.InputRoot)
	var paths []string
	for _, format := range o.formats() {
		out := base + "." + format
		if format == config.FormatText && o.TextOutput != "" {
			out = o.TextOutput
		}
		paths = append(paths, out)
	}
	return paths
}

type Result struct {
	Input    string        `json:"input"`
	InputSHA string        `json:"inputSha256,omitempty"`
	Outputs  []string      `json:"outputs,omitempty"`
	Channels int           `json:"channels,omitempty"`
	Total    uint64        `json:"totalCounts,omitempty"`
	Cached   bool          `json:"cached,omitempty"`
	Bytes    int64         `json:"bytes"`
	Duration time.Duration `json:"duration"`
	Err      error         `json:"-"`
	Report   *cnf.Report   `json:"-"`
}

// ErrOutputConflict marks a batch input whose outputs would overwrite those
// of an earlier input.
var ErrOutputConflict = errors.New("output paths already used by another input")

// OutputBase returns the output path of input without extension. With an
// output directory, the input's path relative to root is kept below it; an
// empty root, or an input outside root, keeps only the base name.
func OutputBase(input, outputDir, root string) string {
	base := common.TrimInputExt(input)
	if outputDir == "" {
		return base
	}
	if root != "" {
		if rel, err := filepath.Rel(root, base); err == nil && filepath.IsLocal(rel) {
			return filepath.Join(outputDir, rel)
		}
	}
	return filepath.Join(outputDir, filepath.Base(base))
}

// ConvertFile reads input, decodes it and writes every requested format.
func ConvertFile(ctx context.Context, input string, opts Options) (res Result, err error) {
	res.Input = input
	if err := ctx.Err(); err != nil {
		return res, err
	}
	start := time.Now()
	defer func() { res.Duration = time.Since(start) }()

	raw, err := os.ReadFile(input)
	if err != nil {
		return res, &IOError{Op: "read", Path: input, Err: err}
	}
	res.Bytes = int64(len(raw))

	var key uint64
	if opts.Cache != nil {
		key = cache.Fingerprint(raw, opts.signature(input))
		if !opts.Force {
			if e, ok := opts.Cache.Lookup(key); ok {
				common.Debugf("cache hit for %s", input)
				res.InputSHA, res.Outputs = e.InputSHA, e.Outputs
				res.Channels, res.Total = e.Channels, e.TotalCounts
				res.Cached = true
				if opts.Metrics != nil {
					opts.Metrics.IncCacheHit()
				}
				return res, nil
			}
		}
	}

	data, err := common.Decompress(raw, common.CompressionOf(input), opts.MaxDecompressed)
	if err != nil {
		return res, &IOError{Op: "decompress", Path: input, Err: err}
	}
	rep, err := cnf.Decode(data)
	if err != nil {
		return res, fmt.Errorf("%s: %w", input, err)
	}
	res.Report = rep
	res.InputSHA = common.Sha256Hex(raw)
	res.Channels = rep.NumChannels()
	res.Total = rep.TotalCounts

	// All formats render before the first write.
	doc := report.NewDocument(rep, filepath.Base(input), res.InputSHA)
	formats := opts.formats()
	rendered := make([][]byte, len(formats))
	for i, format := range formats {
		if rendered[i], err = renderBytes(doc, format); err != nil {
			return res, fmt.Errorf("%s: render %s: %w", input, format, err)
		}
	}
	for i, out := range opts.outputPaths(input) {
		if err := common.WriteFileAtomic(out, rendered[i], 0o644); err != nil {
			return res, &IOError{Op: "write", Path: out, Err: err}
		}
		res.Outputs = append(res.Outputs, out)
	}

	if opts.Cache != nil {
		if err := opts.Cache.Put(key, cache.Entry{
			Input:       input,
			InputSHA:    res.InputSHA,
			Outputs:     res.Outputs,
			Channels:    res.Channels,
			TotalCounts: res.Total,
		}); err != nil {
			common.Logf("cache: store %s: %v", input, err)
		}
	}
	return res, nil
}

// Batch converts inputs on a pool of opts.Concurrency workers. Per-file
// failures are reported in each Result; the returned error is the context
// error when ctx is cancelled. Results keep the order of inputs.
func Batch(ctx context.Context, inputs []string, opts Options) ([]Result, error) {
	workers := opts.Concurrency
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > len(inputs) {
		workers = len(inputs)
	}
	if opts.Metrics != nil {
		var total int64
		for _, in := range inputs {
			if fi, err := os.Stat(in); err == nil {
				total += fi.Size()
			}
		}
		opts.Metrics.SetTotals(int64(len(inputs)), total)
		opts.Metrics.Start()
		defer opts.Metrics.Stop()
	}

	conflicts := outputConflicts(inputs, opts)
	results := make([]Result, len(inputs))
	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				if err, ok := conflicts[i]; ok {
					results[i] = record(inputs[i], Result{Input: inputs[i]}, err, opts)
					continue
				}
				results[i] = convertOne(ctx, inputs[i], opts)
			}
		}()
	}

	var err error
feed:
	for i := range inputs {
		select {
		case <-ctx.Done():
			err = ctx.Err()
			for j := i; j < len(inputs); j++ {
				results[j] = Result{Input: inputs[j], Err: err}
			}
			break feed
		case jobs <- i:
		}
	}
	close(jobs)
	wg.Wait()
	if err == nil {
		err = ctx.Err()
	}
	return results, err
}

// outputConflicts finds inputs whose output paths were already claimed by
// an earlier input, such as a.cnf next to a.cnf.gz or same-named files in
// different directories flattened into one output directory.
func outputConflicts(inputs []string, opts Options) map[int]error {
	claimed := make(map[string]string)
	conflicts := make(map[int]error)
	for i, in := range inputs {
		paths := opts.outputPaths(in)
		for _, p := range paths {
			if owner, ok := claimed[p]; ok {
				conflicts[i] = fmt.Errorf("%s: %w: %s (from %s)", in, ErrOutputConflict, p, owner)
				break
			}
		}
		if _, ok := conflicts[i]; ok {
			continue
		}
		for _, p := range paths {
			claimed[p] = in
		}
	}
	return conflicts
}

func convertOne(ctx context.Context, input string, opts Options) Result {
	res, err := ConvertFile(ctx, input, opts)
	return record(input, res, err, opts)
}

// record journals and counts the outcome of one batch input.
func record(input string, res Result, err error, opts Options) Result {
	res.Err = err
	entry := common.JournalEntry{
		Input:    input,
		InputSHA: res.InputSHA,
		Outputs:  res.Outputs,
		Channels: res.Channels,
		Total:    res.Total,
		Cached:   res.Cached,
	}
	if err != nil {
		common.Logf("convert %s: %v", input, err)
		entry.Error = err.Error()
		var fe *cnf.FormatError
		if errors.As(err, &fe) {
			entry.ErrOffset = fe.Offset
		}
		if opts.Metrics != nil {
			opts.Metrics.IncFailure()
		}
	} else {
		common.Debugf("converted %s -> %s", input, strings.Join(res.Outputs, ", "))
		if opts.Metrics != nil {
			opts.Metrics.AddFile(res.Bytes)
		}
	}
	if opts.Journal != nil {
		if jerr := opts.Journal.Append(entry); jerr != nil {
			common.Logf("journal: %v", jerr)
		}
	}
	return res
}

// IsInput reports whether path looks like a CNF file, optionally wrapped
// in gzip, zstd or lz4.
func IsInput(path string) bool {
	name := strings.ToLower(path)
	if common.CompressionOf(name) != common.CompressionNone {
		name = strings.TrimSuffix(name, filepath.Ext(name))
	}
	return filepath.Ext(name) == ".cnf"
}

// FindInputs walks dir and returns every input file in lexical order.
func FindInputs(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !IsInput(path) {
			return nil
		}
		files = append(files, path)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

// Summary counts the outcomes in results.
func Summary(results []Result) (converted, cached, failed int) {
	for _, r := range results {
		switch {
		case r.Err != nil:
			failed++
		case r.Cached:
			cached++
		default:
			converted++
		}
	}
	return converted, cached, failed
}
