// Command cnf2txt converts one CNF spectrum file into a text report.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"example.com/cnfconv/internal/cnf"
	"example.com/cnfconv/internal/common"
	"example.com/cnfconv/internal/convert"
)

var errWildcard = errors.New("wildcards are not supported in the input file name")

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("cnf2txt", flag.ContinueOnError)
	fs.SetOutput(stderr)
	verbose := fs.Bool("v", false, "print the output path and totals")
	debug := fs.Bool("debug", false, "enable debug logging")
	fs.Usage = func() {
		fmt.Fprintln(stderr, "usage: cnf2txt [flags] input_file [output_file]")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if fs.NArg() < 1 || fs.NArg() > 2 {
		fs.Usage()
		return 1
	}
	common.SetOutput(stderr)
	common.SetDebug(*debug)

	input, output, err := resolvePaths(fs.Arg(0), fs.Arg(1))
	if err != nil {
		fmt.Fprintf(stderr, "cnf2txt: %v\n", err)
		return 1
	}
	common.Debugf("converting %s to %s", input, output)

	res, err := convert.ConvertFile(context.Background(), input, convert.Options{TextOutput: output})
	if err != nil {
		var fe *cnf.FormatError
		if errors.As(err, &fe) {
			fmt.Fprintf(stderr, "cnf2txt: %s is not a valid CNF file: %v\n", input, err)
		} else {
			fmt.Fprintf(stderr, "cnf2txt: %v\n", err)
		}
		return 1
	}
	if *verbose {
		fmt.Fprintf(stdout, "%s: %d channels, %d counts -> %s\n", input, res.Channels, res.Total, output)
	}
	return 0
}

// resolvePaths validates the input name and derives the report path when
// none is given.
func resolvePaths(input, output string) (string, string, error) {
	if strings.ContainsAny(input, "*?") {
		return "", "", fmt.Errorf("%q: %w", input, errWildcard)
	}
	if output == "" {
		output = common.DefaultOutputPath(input, common.ReportExt)
	}
	return input, output, nil
}
