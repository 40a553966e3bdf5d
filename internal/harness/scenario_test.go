package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadScenario(t *testing.T) {
	s, err := LoadScenario(filepath.Join("testdata", "scenarios", "basic_registration.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "basic_registration", s.Name)
	require.Len(t, s.Steps, 8)
	assert.Equal(t, OpBootstrap, s.Steps[0].Op)
	assert.Equal(t, "root-secret", s.Steps[1].Secret)
	require.NotNil(t, s.Steps[3].ExpectValid)
	assert.True(t, *s.Steps[3].ExpectValid)
	require.Len(t, s.Assertions, 4)
	require.NotNil(t, s.Assertions[0].Entities)
	assert.Equal(t, int64(3), *s.Assertions[0].Entities)
	assert.Nil(t, s.Assertions[0].Secrets)
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestParseScenario_Rejects(t *testing.T) {
	cases := []struct {
		name string
		yaml string
		want string
	}{
		{"unknown field", "name: x\ndescription: y\nstep: []\n", "failed to parse YAML"},
		{"no name", "description: y\nsteps: [{op: bootstrap}]\n", "name is required"},
		{"no description", "name: x\nsteps: [{op: bootstrap}]\n", "description is required"},
		{"no steps", "name: x\ndescription: y\n", "steps list is required"},
		{"missing op", "name: x\ndescription: y\nsteps: [{username: a}]\n", "op is required"},
		{"unknown op", "name: x\ndescription: y\nsteps: [{op: delete}]\n", `unknown op "delete"`},
		{"unknown code", "name: x\ndescription: y\nsteps: [{op: bootstrap, expect: BOOM}]\n", `unknown expect code "BOOM"`},
		{"both secrets", "name: x\ndescription: y\nsteps: [{op: register, username: a, secret: s, secret_literal: t}]\n", "mutually exclusive"},
		{"issue without as", "name: x\ndescription: y\nsteps: [{op: issue_secret, entity: root}]\n", "entity and as are required"},
		{"check without secret", "name: x\ndescription: y\nsteps: [{op: check_secret}]\n", "secret or secret_literal"},
		{"ancestor without entity", "name: x\ndescription: y\nsteps: [{op: ancestor}]\n", "entity is required"},
		{"empty counts", "name: x\ndescription: y\nsteps: [{op: bootstrap}]\nassertions: [{type: counts}]\n", "at least one of"},
		{"lineage without chain", "name: x\ndescription: y\nsteps: [{op: bootstrap}]\nassertions: [{type: lineage, entity: root}]\n", "entity and chain"},
		{"unknown assertion", "name: x\ndescription: y\nsteps: [{op: bootstrap}]\nassertions: [{type: final_state}]\n", `unknown assertion type "final_state"`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tc.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}
