package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"example.com/cnfconv/internal/cnf"
	"example.com/cnfconv/internal/cnf/cnftest"
	"example.com/cnfconv/internal/report"
)

func TestResolvePaths(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		output string
		want   string
	}{
		{name: "replaces extension", input: "data/run.cnf", want: "data/run.txt"},
		{name: "appends when missing", input: "data/run", want: "data/run.txt"},
		{name: "dotted directory", input: "data.v2/run", want: "data.v2/run.txt"},
		{name: "compressed input", input: "run.cnf.gz", want: "run.txt"},
		{name: "explicit output", input: "run.cnf", output: "out/report.dat", want: "out/report.dat"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, got, err := resolvePaths(tc.input, tc.output)
			require.NoError(t, err)
			assert.Equal(t, filepath.FromSlash(tc.want), filepath.FromSlash(got))
		})
	}
}

func TestResolvePathsRejectsWildcards(t *testing.T) {
	for _, in := range []string{"*.cnf", "run?.cnf", "dir/*"} {
		_, _, err := resolvePaths(in, "")
		assert.ErrorIs(t, err, errWildcard, in)
	}
}

func TestRunWritesDefaultReport(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "sample.cnf")
	data := cnftest.New().Bytes()
	require.NoError(t, os.WriteFile(input, data, 0o644))

	var stdout, stderr bytes.Buffer
	code := run([]string{"-v", input}, &stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())

	got, err := os.ReadFile(filepath.Join(dir, "sample.txt"))
	require.NoError(t, err)
	rep, err := cnf.Decode(data)
	require.NoError(t, err)
	want, err := report.RenderText(rep)
	require.NoError(t, err)
	assert.Equal(t, string(want), string(got))
	assert.Contains(t, stdout.String(), "1024 channels")
}

func TestRunExplicitOutput(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "sample.cnf")
	require.NoError(t, os.WriteFile(input, cnftest.New().Bytes(), 0o644))
	output := filepath.Join(dir, "reports", "custom.txt")

	var stdout, stderr bytes.Buffer
	require.Equal(t, 0, run([]string{input, output}, &stdout, &stderr), stderr.String())
	assert.FileExists(t, output)
	assert.NoFileExists(t, filepath.Join(dir, "sample.txt"))
	assert.Empty(t, stdout.String())
}

func TestRunFailures(t *testing.T) {
	dir := t.TempDir()
	foreign := filepath.Join(dir, "foreign.cnf")
	require.NoError(t, os.WriteFile(foreign, bytes.Repeat([]byte{0x42}, 8192), 0o644))

	tests := []struct {
		name string
		args []string
		msg  string
	}{
		{name: "no arguments", args: nil, msg: "usage: cnf2txt"},
		{name: "too many arguments", args: []string{"a", "b", "c"}, msg: "usage: cnf2txt"},
		{name: "wildcard", args: []string{filepath.Join(dir, "*.cnf")}, msg: "wildcards"},
		{name: "missing file", args: []string{filepath.Join(dir, "absent.cnf")}, msg: "absent.cnf"},
		{name: "foreign file", args: []string{foreign}, msg: "not a valid CNF file"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			assert.Equal(t, 1, run(tc.args, &stdout, &stderr))
			assert.Contains(t, stderr.String(), tc.msg)
		})
	}
	assert.NoFileExists(t, filepath.Join(dir, "foreign.txt"))
}
