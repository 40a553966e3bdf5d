package harness

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/sebdah/goldie/v2"
)

// GoldenDir holds golden trace files, relative to the test's package.
const GoldenDir = "testdata/golden"

// RunWithGolden executes a scenario and compares the rendered trace against
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns error if scenario execution fails. Test failure (via goldie)
// occurs if the trace doesn't match the golden file.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	AssertGolden(t, scenario.Name, result)
	return result, nil
}

// AssertGolden compares an existing result's trace against a golden file.
func AssertGolden(t *testing.T, name string, result *Result) {
	t.Helper()

	g := goldie.New(t,
		goldie.WithFixtureDir(GoldenDir),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, []byte(result.Render()))
}

// GoldenPath is where the golden trace of a scenario lives under dir.
func GoldenPath(dir, name string) string {
	return filepath.Join(dir, name+".golden")
}

// CompareGolden reports whether result renders identically to its golden
// file under dir.
func CompareGolden(dir string, result *Result) error {
	want, err := os.ReadFile(GoldenPath(dir, result.Scenario))
	if err != nil {
		return fmt.Errorf("read golden file: %w", err)
	}
	if got := result.Render(); got != string(want) {
		return fmt.Errorf("trace differs from %s:\n--- want\n%s--- got\n%s", GoldenPath(dir, result.Scenario), want, got)
	}
	return nil
}

// UpdateGolden writes result's trace as the golden file under dir.
func UpdateGolden(dir string, result *Result) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create golden dir: %w", err)
	}
	if err := os.WriteFile(GoldenPath(dir, result.Scenario), []byte(result.Render()), 0o644); err != nil {
		return fmt.Errorf("write golden file: %w", err)
	}
	return nil
}
