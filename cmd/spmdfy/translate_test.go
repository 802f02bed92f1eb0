package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blockspacer/spmdfy/internal/pipeline"
	"github.com/blockspacer/spmdfy/internal/project"
)

func TestBuildRequestFlagsOverrideManifest(t *testing.T) {
	m := &project.Manifest{Config: project.Config{
		Translate: project.TranslateConfig{
			Clang:     "clang-17",
			ClangArgs: []string{"-x", "cuda"},
			Include:   []string{"/proj/include"},
			Jobs:      2,
			Barriers:  []string{"__syncthreads", "sync_block"},
			NullToken: "NULL",
		},
		Types: map[string]string{"int": "int64"},
	}}
	opts := translateOptions{
		jobs:      8,
		include:   []string{"extra"},
		nullToken: "nullptr",
	}
	req, err := buildRequest(opts, m, []string{"a.cu", "b.json"})
	require.NoError(t, err)

	assert.Equal(t, 8, req.Jobs)
	assert.Equal(t, "clang-17", req.Clang.Command)
	assert.Equal(t, []string{"-x", "cuda"}, req.Clang.Args)
	assert.Equal(t, []string{"-I/proj/include", "-Iextra"}, req.Clang.Extra)
	assert.Equal(t, []string{"__syncthreads", "sync_block"}, req.Barriers)
	assert.Equal(t, "nullptr", req.NullToken)
	assert.Equal(t, "int64", req.Tables.BaseType("int"))
	assert.Equal(t, []pipeline.Input{{Path: "a.cu"}, {Path: "b.json"}}, req.Inputs)
}

func TestBuildRequestWithoutManifest(t *testing.T) {
	req, err := buildRequest(translateOptions{barriers: []string{"bar"}}, nil, []string{"k.cu"})
	require.NoError(t, err)
	assert.Zero(t, req.Jobs)
	assert.Equal(t, []string{"bar"}, req.Barriers)
	assert.Equal(t, "int32", req.Tables.BaseType("int"))
}

func TestBuildRequestAST(t *testing.T) {
	req, err := buildRequest(translateOptions{ast: "k.json"}, nil, []string{"k.cu"})
	require.NoError(t, err)
	assert.Equal(t, []pipeline.Input{{Path: "k.cu", AST: "k.json"}}, req.Inputs)

	_, err = buildRequest(translateOptions{ast: "k.json"}, nil, []string{"a.cu", "b.cu"})
	assert.Error(t, err)

	_, err = buildRequest(translateOptions{jobs: -1}, nil, []string{"a.cu"})
	assert.Error(t, err)
}

func TestBuildRequestTablesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tables.toml")
	require.NoError(t, os.WriteFile(path, []byte("[types]\nfloat = \"double\"\n"), 0o600))
	m := &project.Manifest{Config: project.Config{Types: map[string]string{"int": "int64", "float": "float16"}}}

	req, err := buildRequest(translateOptions{tables: path}, m, []string{"k.cu"})
	require.NoError(t, err)
	assert.Equal(t, "int64", req.Tables.BaseType("int"))
	assert.Equal(t, "double", req.Tables.BaseType("float"))

	_, err = buildRequest(translateOptions{tables: filepath.Join(t.TempDir(), "missing.toml")}, nil, []string{"k.cu"})
	assert.Error(t, err)
}

func TestOutputName(t *testing.T) {
	tests := map[string]string{
		"kernel.cu":          "kernel.ispc",
		"dir/kernel.cu.json": "kernel.ispc",
		"dir/kernel.json":    "kernel.ispc",
		"noext":              "noext.ispc",
	}
	for in, want := range tests {
		assert.Equal(t, want, outputName(in), in)
	}
}

func TestOutputPaths(t *testing.T) {
	dir := t.TempDir()

	paths, err := outputPaths([]pipeline.Input{{Path: "a.cu"}}, "")
	require.NoError(t, err)
	assert.Equal(t, []string{""}, paths)

	paths, err = outputPaths([]pipeline.Input{{Path: "a.cu"}}, filepath.Join(dir, "out.ispc"))
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "out.ispc")}, paths)

	paths, err = outputPaths([]pipeline.Input{{Path: "src/a.cu"}}, dir)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "a.ispc")}, paths)

	paths, err = outputPaths([]pipeline.Input{{Path: "src/a.cu"}, {Path: "b.cu"}}, "")
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join("src", "a.ispc"), "b.ispc"}, paths)

	paths, err = outputPaths([]pipeline.Input{{Path: "src/a.cu"}, {Path: "b.cu"}}, "gen")
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join("gen", "a.ispc"), filepath.Join("gen", "b.ispc")}, paths)

	_, err = outputPaths([]pipeline.Input{{Path: "x/a.cu"}, {Path: "y/a.cu"}}, "gen")
	assert.Error(t, err)
}

func TestWriteOutputs(t *testing.T) {
	dir := t.TempDir()
	res := &pipeline.Result{Files: []*pipeline.FileResult{
		{Path: "a.cu", Output: "A"},
		{Path: "b.cu", Output: "B"},
		{Path: "c.cu", Err: os.ErrNotExist},
	}}
	var stdout bytes.Buffer
	dest := filepath.Join(dir, "sub", "b.ispc")
	require.NoError(t, writeOutputs(&stdout, res, []string{"", dest, filepath.Join(dir, "c.ispc")}))

	assert.Equal(t, "A", stdout.String())
	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "B", string(data))
	assert.NoFileExists(t, filepath.Join(dir, "c.ispc"))
}

func TestPrintSummary(t *testing.T) {
	res := &pipeline.Result{Files: []*pipeline.FileResult{
		{Path: "a.cu", Kernels: []pipeline.KernelResult{{Name: "k"}, {Name: "j", Err: os.ErrInvalid}}},
		{Path: "b.cu", Err: os.ErrNotExist},
	}}
	var buf bytes.Buffer
	printSummary(&buf, res)
	assert.Equal(t, "translated 1 of 2 files, 2 kernels (1 failed)\n", buf.String())
}

func TestPrintDiagnosticsJSON(t *testing.T) {
	res := &pipeline.Result{Files: []*pipeline.FileResult{{Path: "a.cu"}}}
	var buf bytes.Buffer
	require.NoError(t, printDiagnostics(&buf, res, translateOptions{format: "json"}, false))

	var docs []fileDiagnostics
	require.NoError(t, json.Unmarshal(buf.Bytes(), &docs))
	require.Len(t, docs, 1)
	assert.Equal(t, "a.cu", docs[0].Path)
	assert.Equal(t, 0, docs[0].Count)
}
