package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/ekaya-intake/pkg/models"
	"github.com/ekaya-inc/ekaya-intake/pkg/testhelpers"
)

func writeProfiles(t *testing.T) string {
	t.Helper()
	fixture := testhelpers.NewMistralFixture(t)
	path := filepath.Join(t.TempDir(), "profiles.yaml")
	doc := fmt.Sprintf(`profiles:
  shop:
    driver: sqlite
    database: %q
    password_only:
      "0000": {username: CASHIER, id: "4"}
`, fixture.Path)
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestRun_Table(t *testing.T) {
	profiles := writeProfiles(t)

	out, err := execute(t, "--profiles", profiles, "run", "--profile", "shop", "--login", testhelpers.AdminLogin, "--password", testhelpers.AdminPassword)

	require.NoError(t, err)
	assert.Contains(t, out, "Login diagnostics")
	assert.Contains(t, out, "OK")
	assert.Contains(t, out, models.StrategyPlainTable)
}

func TestRun_JSONFailure(t *testing.T) {
	profiles := writeProfiles(t)

	out, err := execute(t, "--profiles", profiles, "run", "-p", "shop", "-l", "NOBODY", "--password", "guess", "--json")

	assert.ErrorIs(t, err, errLoginFailed)
	var report models.DiagnosticReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.False(t, report.Success)
	assert.Equal(t, "shop", report.Profile)
	assert.NotContains(t, out, "guess")
}

func TestRun_PasswordFromEnv(t *testing.T) {
	profiles := writeProfiles(t)
	t.Setenv("INTAKE_DIAG_PASSWORD", "0000")

	_, err := execute(t, "--profiles", profiles, "run", "-p", "shop")

	assert.NoError(t, err)
}

func TestRun_UnknownProfile(t *testing.T) {
	profiles := writeProfiles(t)

	_, err := execute(t, "--profiles", profiles, "run", "-p", "office", "-l", "x", "--password", "y")

	assert.Error(t, err)
}

func TestProfiles(t *testing.T) {
	profiles := writeProfiles(t)

	out, err := execute(t, "--profiles", profiles, "profiles")

	require.NoError(t, err)
	assert.Contains(t, out, "shop")
	assert.Contains(t, out, "sqlite")
}
