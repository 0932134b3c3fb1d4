package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aretw0/fetpipe/pkg/adapters/process"
	"github.com/aretw0/fetpipe/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_Formats(t *testing.T) {
	files := map[string]string{
		"params.json": `{
			"general": {
				"pre_command": "docker run --rm ",
				"niftymic_image": "renbem/niftymic:latest",
				"dhcp_image": "gerardmartijuan/dhcp-pipeline-multifact",
				"max_tries": 3,
				"attempt_timeout": "2h"
			},
			"segmentation": {"flag": "-all", "gestational_age": 28.5}
		}`,
		"params.yaml": `
general:
  pre_command: "docker run --rm "
  niftymic_image: renbem/niftymic:latest
  dhcp_image: gerardmartijuan/dhcp-pipeline-multifact
  max_tries: "3"
  attempt_timeout: 2h
segmentation:
  flag: -all
  gestational_age: 28.5
`,
		"params.hcl": `
general {
  pre_command     = "docker run --rm "
  niftymic_image  = "renbem/niftymic:latest"
  dhcp_image      = "gerardmartijuan/dhcp-pipeline-multifact"
  max_tries       = 3
  attempt_timeout = "2h"
}

segmentation {
  flag            = "-all"
  gestational_age = 28.5
}
`,
	}

	for name, content := range files {
		t.Run(name, func(t *testing.T) {
			p, err := Load(writeConfig(t, name, content))
			require.NoError(t, err)

			assert.Equal(t, "docker run --rm ", p.General.PreCommand)
			assert.Equal(t, "renbem/niftymic:latest", p.General.NiftymicImage)
			assert.Equal(t, "gerardmartijuan/dhcp-pipeline-multifact", p.General.DhcpImage)
			assert.Equal(t, 3, p.General.MaxTries)
			assert.Equal(t, 2*time.Hour, p.General.AttemptTimeout)
			assert.Equal(t, "-all", p.Segmentation.Flag)
			assert.Equal(t, 28.5, p.Segmentation.GestationalAge)

			mode, err := p.ExecutionMode()
			require.NoError(t, err)
			assert.Equal(t, process.ModeDocker, mode)
		})
	}
}

func TestLoad_Defaults(t *testing.T) {
	p, err := Load(writeConfig(t, "p.json", `{"general": {"pre_command": "singularity exec "}}`))
	require.NoError(t, err)

	assert.Equal(t, domain.DefaultMaxTries, p.General.MaxTries)
	assert.Equal(t, 1, p.General.Threads)
	assert.Zero(t, p.Segmentation.Threads, "dHCP gets -t 0 unless configured")
	assert.Equal(t, DenoiseANTs, p.Denoising.Method)
	assert.Equal(t, 3, p.Denoising.Dimension)
	assert.Equal(t, StoreFile, p.Runtime.Store)
	assert.Positive(t, p.Runtime.Workers)
	assert.Empty(t, p.Unused)
}

func TestLoad_UnknownKeysAreReported(t *testing.T) {
	p, err := Load(writeConfig(t, "p.json", `{"general": {"pre_command": "docker run ", "gpu": true}, "preprocessing": {}}`))
	require.NoError(t, err)
	assert.Equal(t, []string{"general.gpu", "preprocessing"}, p.Unused)
}

func TestLoad_InvalidPreCommand(t *testing.T) {
	_, err := Load(writeConfig(t, "p.yaml", "general:\n  pre_command: podman run\n"))
	assert.ErrorIs(t, err, domain.ErrUnsupportedMode)

	_, err = Load(writeConfig(t, "p.yaml", "general:\n  threads: 2\n"))
	assert.ErrorIs(t, err, domain.ErrUnsupportedMode, "a missing pre-command needs direct mode")

	p, err := Load(writeConfig(t, "p.yaml", "general:\n  mode: direct\n"))
	require.NoError(t, err)
	mode, err := p.ExecutionMode()
	require.NoError(t, err)
	assert.Equal(t, process.ModeDirect, mode)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "p.toml", "x = 1"))
	assert.ErrorContains(t, err, "unsupported config format")

	_, err = Load(writeConfig(t, "p.hcl", "general {"))
	assert.ErrorContains(t, err, "failed to parse HCL")

	_, err = Load(writeConfig(t, "p.json", `{"general": {"pre_command": "docker run "}, "runtime": {"store": "etcd"}}`))
	assert.ErrorContains(t, err, "runtime.store")

	_, err = Load(writeConfig(t, "p.json", `{"general": {"pre_command": "docker run ", "attempt_timeout": "soon"}}`))
	assert.Error(t, err)
}
