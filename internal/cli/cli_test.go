package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSeed = "0101010101010101010101010101010101010101010101010101010101010101"

// writeTestConfig writes a config with cheap hashing and a fixed signing seed.
func writeTestConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "pathchain.yaml")
	body := fmt.Sprintf(`data_dir: %s
credentials:
  argon2:
    time: 1
    memory_kib: 1024
    threads: 1
  signing_seed: %q
log:
  level: error
`, filepath.Join(dir, "data"), testSeed)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(io.Discard)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

type response struct {
	Status string          `json:"status"`
	Data   json.RawMessage `json:"data"`
	Error  *CLIError       `json:"error"`
}

func decode(t *testing.T, out string, data any) response {
	t.Helper()
	var resp response
	require.NoError(t, json.Unmarshal([]byte(out), &resp), "output: %s", out)
	if data != nil && resp.Data != nil {
		require.NoError(t, json.Unmarshal(resp.Data, data))
	}
	return resp
}

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "pathchain", cmd.Use)
	assert.Contains(t, cmd.Long, "invitation")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := [][]string{
		{"serve"}, {"bootstrap"}, {"register"}, {"login"}, {"check-secret"},
		{"issue-secret"}, {"ancestor"}, {"orphans"}, {"orphans", "adopt"}, {"test"}, {"config"},
	}

	for _, path := range commands {
		t.Run(strings.Join(path, " "), func(t *testing.T) {
			subCmd, _, err := cmd.Find(path)
			require.NoError(t, err)
			require.NotNil(t, subCmd)
			assert.Equal(t, path[len(path)-1], subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)

	require.NotNil(t, cmd.PersistentFlags().Lookup("config"))
	require.NotNil(t, cmd.PersistentFlags().Lookup("data-dir"))
}

func TestInvalidFormat(t *testing.T) {
	_, err := execute(t, "", "--format", "xml", "config")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestInvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log:\n  level: loud\n"), 0o600))

	_, err := execute(t, "", "--config", path, "bootstrap")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "log.level")
}

func TestRegistrationFlow(t *testing.T) {
	cfg := writeTestConfig(t)
	run := func(args ...string) (string, error) {
		return execute(t, "", append([]string{"--config", cfg, "--format", "json"}, args...)...)
	}

	out, err := run("bootstrap")
	require.NoError(t, err)
	var boot bootstrapView
	decode(t, out, &boot)
	assert.True(t, boot.Created)
	require.Len(t, boot.Secrets, 1)

	// A second bootstrap shows the same root and secret.
	out, err = run("bootstrap")
	require.NoError(t, err)
	var again bootstrapView
	decode(t, out, &again)
	assert.False(t, again.Created)
	assert.Equal(t, boot.RootAddress, again.RootAddress)
	assert.Equal(t, boot.Secrets, again.Secrets)

	out, err = run("register", "alice", "--secret", string(boot.Secrets[0]), "--password", "hunter22")
	require.NoError(t, err)
	var alice struct {
		Token  string `json:"token"`
		Entity struct {
			ID       int64  `json:"id"`
			Address  string `json:"address"`
			Username string `json:"username"`
		} `json:"entity"`
	}
	decode(t, out, &alice)
	assert.NotEmpty(t, alice.Token)
	assert.Equal(t, "alice", alice.Entity.Username)

	out, err = run("check-secret", string(boot.Secrets[0]))
	require.NoError(t, err)
	var status secretView
	decode(t, out, &status)
	assert.True(t, status.Valid)
	assert.False(t, status.Unused)

	out, err = run("issue-secret", strconv.FormatInt(alice.Entity.ID, 10))
	require.NoError(t, err)
	var issued issuedView
	decode(t, out, &issued)
	assert.Equal(t, alice.Entity.ID, issued.OwnerID)

	_, err = execute(t, "s3cret-bob\n", "--config", cfg, "register", "bob", "--secret", string(issued.Address), "--password-stdin")
	require.NoError(t, err)

	out, err = run("login", "bob", "--password", "s3cret-bob")
	require.NoError(t, err)
	var bob struct {
		Entity struct {
			ID int64 `json:"id"`
		} `json:"entity"`
	}
	decode(t, out, &bob)

	out, err = run("ancestor", strconv.FormatInt(bob.Entity.ID, 10), "--lineage")
	require.NoError(t, err)
	var chain lineageView
	decode(t, out, &chain)
	require.Len(t, chain.Entities, 3)
	assert.Equal(t, "bob", chain.Entities[0].Username)
	assert.Equal(t, "alice", chain.Entities[1].Username)
	assert.True(t, chain.Entities[2].IsRoot)

	out, err = run("orphans")
	require.NoError(t, err)
	var orphans orphansView
	decode(t, out, &orphans)
	assert.Empty(t, orphans.Orphans)
}

func TestRegister_UsedSecret(t *testing.T) {
	cfg := writeTestConfig(t)

	out, err := execute(t, "", "--config", cfg, "--format", "json", "bootstrap")
	require.NoError(t, err)
	var boot bootstrapView
	decode(t, out, &boot)
	secret := string(boot.Secrets[0])

	_, err = execute(t, "", "--config", cfg, "register", "alice", "--secret", secret, "--password", "pw")
	require.NoError(t, err)

	out, err = execute(t, "", "--config", cfg, "--format", "json", "register", "mallory", "--secret", secret, "--password", "pw")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	resp := decode(t, out, nil)
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, "USED_SECRET", resp.Error.Code)
}

func TestRegister_TextOutput(t *testing.T) {
	cfg := writeTestConfig(t)

	out, err := execute(t, "", "--config", cfg, "register", "founder", "--password", "pw")
	require.NoError(t, err)
	assert.Contains(t, out, "registered founder (entity 1, entitys/")
	assert.Contains(t, out, "token: ")

	out, err = execute(t, "", "--config", cfg, "register", "latecomer", "--password", "pw")
	require.Error(t, err)
	assert.Contains(t, out, "Error [INVALID_SECRET]")
}

func TestPasswordFlagsExclusive(t *testing.T) {
	cfg := writeTestConfig(t)
	_, err := execute(t, "pw\n", "--config", cfg, "login", "alice", "--password", "x", "--password-stdin")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestParseEntityID(t *testing.T) {
	id, err := parseEntityID("42")
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)

	for _, bad := range []string{"0", "-1", "abc"} {
		_, err := parseEntityID(bad)
		require.Error(t, err, bad)
		assert.Equal(t, ExitCommandError, GetExitCode(err))
	}
}

func TestOrphansAdopt_InvalidAddress(t *testing.T) {
	cfg := writeTestConfig(t)
	_, err := execute(t, "", "--config", cfg, "orphans", "adopt", "not-an-address")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestConfigCommand(t *testing.T) {
	dataDir := t.TempDir()
	out, err := execute(t, "", "--data-dir", dataDir, "config")
	require.NoError(t, err)
	assert.Contains(t, out, "data_dir: "+dataDir)
	assert.Contains(t, out, "backend: localfs")
}
