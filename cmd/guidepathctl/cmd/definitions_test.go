package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/guidepath/guidepath/pkg/config"
)

func TestValidateDefinitions(t *testing.T) {
	logger = zap.NewNop()
	cfg = &config.Config{}

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "good.yaml"), []byte(`
id: good
name: Good
stages:
  - stage: welcome
  - stage: pricing
    when: renewal?.expected_arr != nil
`), 0o600))

	out := &bytes.Buffer{}
	validateCmd.SetOut(out)
	require.NoError(t, runValidate(validateCmd, []string{dir}))
	assert.Contains(t, out.String(), "ok   ")

	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.yaml"), []byte(`
id: bad
name: Bad
stages:
  - stage: pricing
    config:
      increase_cap: 500
`), 0o600))

	out.Reset()
	err := runValidate(validateCmd, []string{dir})
	require.Error(t, err)
	assert.Contains(t, out.String(), "FAIL")
}

func TestValidateShippedDefinitions(t *testing.T) {
	logger = zap.NewNop()
	cfg = &config.Config{}

	out := &bytes.Buffer{}
	validateCmd.SetOut(out)
	assert.NoError(t, runValidate(validateCmd, []string{filepath.Join("..", "..", "..", "definitions")}), out.String())
}

func TestListDefinitions(t *testing.T) {
	logger = zap.NewNop()
	cfg = &config.Config{}

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.yaml"), []byte("id: second\nname: Second\nstages:\n  - stage: summary\n"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.yaml"), []byte("id: first\nname: First\nstages:\n  - stage: welcome\n  - stage: pricing\n"), 0o600))

	out := &bytes.Buffer{}
	listCmd.SetOut(out)
	require.NoError(t, runList(listCmd, []string{dir}))
	assert.Equal(t, "first\tFirst\twelcome,pricing\nsecond\tSecond\tsummary\n", out.String())
}

func TestListStages(t *testing.T) {
	out := &bytes.Buffer{}
	stagesCmd.SetOut(out)
	stagesCmd.Run(stagesCmd, nil)
	assert.Contains(t, out.String(), "welcome\n")
	assert.Contains(t, out.String(), "risk-review\n")
}
