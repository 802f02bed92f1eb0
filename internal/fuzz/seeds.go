package fuzztests

import (
	"os"
	"path/filepath"
	"testing"

	"gopkg.in/yaml.v3"
)

const maxSeedBytes = 64 << 10

// astSeed is the subset of a pipeline golden fixture the harnesses use.
type astSeed struct {
	Source string `yaml:"source"`
	AST    string `yaml:"ast"`
}

func addUnitSeeds(f *testing.F) {
	f.Add([]byte{}, []byte{})
	f.Add([]byte(`{"kind":"TranslationUnitDecl","inner":[]}`), []byte{})

	// #nosec G304 -- fixed repository testdata
	if src, err := os.ReadFile(filepath.Join("..", "cuast", "testdata", "kernel.cu")); err == nil {
		if ast, err := os.ReadFile(filepath.Join("..", "cuast", "testdata", "kernel.json")); err == nil {
			f.Add(clampSeed(ast), src)
		}
	}

	fixtures, err := filepath.Glob(filepath.Join("..", "pipeline", "testdata", "*.yaml"))
	if err != nil {
		return
	}
	for _, path := range fixtures {
		// #nosec G304 -- path comes from a repository testdata glob
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var seed astSeed
		if yaml.Unmarshal(data, &seed) != nil || seed.AST == "" {
			continue
		}
		f.Add(clampSeed([]byte(seed.AST)), []byte(seed.Source))
	}
}

func addTypeSeeds(f *testing.F) {
	for _, s := range []string{
		"int",
		"unsigned int",
		"const float *",
		"float [16][16]",
		"struct Point",
		"const struct Point *__restrict",
		"int (int *, float)",
		"int (*)[4]",
		"float []",
		"long long",
		"",
		"[",
		"int [x]",
	} {
		f.Add(s)
	}
}

func clampSeed(b []byte) []byte {
	if len(b) > maxSeedBytes {
		return b[:maxSeedBytes]
	}
	return b
}
