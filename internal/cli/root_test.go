package cli

import (
	"bytes"
	"errors"
	"runtime/debug"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestNewRootCmd(t *testing.T) {
	cmd := newRootCmd()
	assert.Equal(t, "dlvdap", cmd.Use)
	assert.NotEmpty(t, cmd.Short)
	assert.Equal(t, rootLongDescription, cmd.Long)
	assert.NotNil(t, cmd.PersistentFlags().Lookup(verboseFlagName))
	assert.NotNil(t, cmd.PersistentFlags().Lookup(logFileFlagName))
}

func TestRootCmd_HelpOutput(t *testing.T) {
	cmd := newRootCmd()
	cmd.AddCommand(newDAPCmd())
	output := &bytes.Buffer{}
	cmd.SetOut(output)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, output.String(), "Debug Adapter Protocol")
	assert.Contains(t, output.String(), "dap")
}

func TestConfigCmd_PrintsYAML(t *testing.T) {
	cmd := newRootCmd()
	cmd.AddCommand(newConfigCmd())
	output := &bytes.Buffer{}
	cmd.SetOut(output)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"config"})

	require.NoError(t, cmd.Execute())

	var settings map[string]interface{}
	require.NoError(t, yaml.Unmarshal(output.Bytes(), &settings))
	backend, ok := settings["backend"].(map[string]interface{})
	require.True(t, ok, "backend section missing:\n%s", output.String())
	assert.Equal(t, "dlv", backend["path"])
	assert.Equal(t, 2345, backend["port"])
}

func TestVersionCmd_Output(t *testing.T) {
	cmd := newVersionCmd()

	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{})

	require.NoError(t, cmd.Execute())
	assert.True(t, strings.HasPrefix(out.String(), "dlvdap "), out.String())
	if info, ok := debug.ReadBuildInfo(); ok {
		assert.Contains(t, out.String(), info.GoVersion)
	}
}

func TestBuildRevision(t *testing.T) {
	tests := []struct {
		name     string
		settings []debug.BuildSetting
		want     string
	}{
		{"none", nil, ""},
		{"clean", []debug.BuildSetting{{Key: "vcs.revision", Value: "abc123"}, {Key: "vcs.modified", Value: "false"}}, "abc123"},
		{"dirty", []debug.BuildSetting{{Key: "vcs.modified", Value: "true"}, {Key: "vcs.revision", Value: "abc123"}}, "abc123+dirty"},
		{"modified without revision", []debug.BuildSetting{{Key: "vcs.modified", Value: "true"}}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, buildRevision(&debug.BuildInfo{Settings: tt.settings}))
		})
	}
}

func TestRootCmd_BrokenConfig(t *testing.T) {
	previous := configErr
	t.Cleanup(func() { configErr = previous })
	configErr = errors.New("config dlvdap.yaml: yaml: line 1: did not find expected node content")

	cmd := newRootCmd()
	cmd.AddCommand(newVersionCmd())
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"version"})

	assert.ErrorIs(t, cmd.Execute(), configErr)
}
