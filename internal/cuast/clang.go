package cuast

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

//go:embed cuda_shim.h
var cudaShim []byte

// DefaultClangArgs make clang parse a CUDA file for the host side only,
// without the CUDA toolkit, and print the AST as JSON.
var DefaultClangArgs = []string{
	"-x", "cuda",
	"--cuda-host-only",
	"-nocudainc",
	"-nocudalib",
	"-fsyntax-only",
	"-Xclang", "-ast-dump=json",
}

// ClangOptions configures how clang is invoked.
type ClangOptions struct {
	// Command is the clang executable. Default "clang++".
	Command string
	// Args replace DefaultClangArgs when non-empty.
	Args []string
	// Extra arguments appended after Args, e.g. include paths.
	Extra []string
	// NoShim disables the built-in CUDA declaration header.
	NoShim bool
}

// ErrClang is returned when clang exits unsuccessfully.
var ErrClang = errors.New("clang failed")

// DumpAST runs clang on path and returns the JSON AST.
func DumpAST(ctx context.Context, path string, opts ClangOptions) ([]byte, error) {
	cmdName := opts.Command
	if cmdName == "" {
		cmdName = "clang++"
	}
	args := append([]string(nil), opts.Args...)
	if len(args) == 0 {
		args = append(args, DefaultClangArgs...)
	}
	args = append(args, opts.Extra...)

	if !opts.NoShim {
		shim, cleanup, err := writeShim()
		if err != nil {
			return nil, err
		}
		defer cleanup()
		args = append(args, "-include", shim)
	}
	args = append(args, path)

	// #nosec G204 -- the command is configured by the user
	cmd := exec.CommandContext(ctx, cmdName, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return nil, fmt.Errorf("%w: %s %s: %s", ErrClang, cmdName, path, msg)
	}
	return stdout.Bytes(), nil
}

func writeShim() (string, func(), error) {
	dir, err := os.MkdirTemp("", "spmdfy-shim-")
	if err != nil {
		return "", nil, fmt.Errorf("shim header: %w", err)
	}
	path := filepath.Join(dir, "cuda_shim.h")
	if err := os.WriteFile(path, cudaShim, 0o600); err != nil {
		_ = os.RemoveAll(dir)
		return "", nil, fmt.Errorf("shim header: %w", err)
	}
	return path, func() { _ = os.RemoveAll(dir) }, nil
}

// Shim returns the built-in CUDA declaration header.
func Shim() []byte { return cudaShim }
