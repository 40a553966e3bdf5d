package harness

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustParse(t *testing.T, src string) *Scenario {
	t.Helper()
	s, err := ParseScenario([]byte(src))
	require.NoError(t, err)
	return s
}

func TestRun_Scenarios(t *testing.T) {
	files, err := filepath.Glob(filepath.Join("testdata", "scenarios", "*.yaml"))
	require.NoError(t, err)
	require.NotEmpty(t, files)

	for _, file := range files {
		name := strings.TrimSuffix(filepath.Base(file), ".yaml")
		t.Run(name, func(t *testing.T) {
			s, err := LoadScenario(file)
			require.NoError(t, err)

			result, err := RunWithGolden(t, s)
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
		})
	}
}

func TestRun_Deterministic(t *testing.T) {
	s, err := LoadScenario(filepath.Join("testdata", "scenarios", "basic_registration.yaml"))
	require.NoError(t, err)

	first, err := Run(s)
	require.NoError(t, err)
	second, err := Run(s)
	require.NoError(t, err)
	assert.Equal(t, first.Render(), second.Render())
}

func TestRun_UnmetExpectationFails(t *testing.T) {
	s := mustParse(t, `
name: wrong_expectation
description: expects success from a reused secret
steps:
  - op: bootstrap
  - op: register
    username: alice
    secret: root-secret
  - op: register
    username: bob
    secret: root-secret
`)
	result, err := Run(s)
	require.NoError(t, err)

	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "expected ok, got USED_SECRET")
	assert.Contains(t, result.Render(), "[03] register bob secret=root-secret -> USED_SECRET\n")
	assert.True(t, strings.HasSuffix(result.Render(), "result: fail (1 errors)\n"))
}

func TestRun_FailedAssertions(t *testing.T) {
	s := mustParse(t, `
name: bad_assertions
description: every assertion is wrong
steps:
  - op: bootstrap
  - op: register
    username: alice
    secret: root-secret
  - op: ancestor
    entity: alice
    expect_ancestor: alice
  - op: check_secret
    secret: root-secret
    expect_unused: true
assertions:
  - type: counts
    entities: 5
  - type: lineage
    entity: alice
    chain: [alice]
  - type: unused_secrets
    entity: root
    count: 2
`)
	result, err := Run(s)
	require.NoError(t, err)

	assert.False(t, result.Pass)
	assert.Len(t, result.Errors, 5)
	out := result.Render()
	assert.Contains(t, out, "assert counts entities=5 -> fail\n")
	assert.Contains(t, out, "assert lineage entity=alice chain=alice -> fail\n")
	assert.Contains(t, out, "assert unused_secrets entity=root count=2 -> fail\n")
}

func TestRun_UnboundLabel(t *testing.T) {
	s := mustParse(t, `
name: unbound
description: refers to a secret nobody issued
steps:
  - op: register
    username: alice
    secret: ghost
`)
	_, err := Run(s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unbound secret label "ghost"`)
}

func TestCompareAndUpdateGolden(t *testing.T) {
	s := mustParse(t, `
name: tiny
description: just a bootstrap
steps:
  - op: bootstrap
`)
	result, err := Run(s)
	require.NoError(t, err)

	dir := t.TempDir()
	require.Error(t, CompareGolden(dir, result))

	require.NoError(t, UpdateGolden(dir, result))
	require.NoError(t, CompareGolden(dir, result))

	data, err := os.ReadFile(GoldenPath(dir, "tiny"))
	require.NoError(t, err)
	assert.Equal(t, "scenario: tiny\n[01] bootstrap -> ok root=root#1 created=true secrets=1\nresult: pass\n", string(data))

	require.NoError(t, os.WriteFile(GoldenPath(dir, "tiny"), []byte("scenario: other\n"), 0o644))
	err = CompareGolden(dir, result)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "trace differs")
}
