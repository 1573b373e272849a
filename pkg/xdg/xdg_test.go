package xdg

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestXDGPaths(t *testing.T) {
	t.Run("explicit XDG variables win", func(t *testing.T) {
		t.Setenv("XDG_CONFIG_HOME", "/cfg")
		t.Setenv("XDG_STATE_HOME", "/state")

		assert.Equal(t, "/cfg/nvdoctor/config.yaml", XDGConfigPath("nvdoctor", "config.yaml"))
		assert.Equal(t, "/state/nvdoctor/nvdoctor.log", XDGStatePath("nvdoctor", "nvdoctor.log"))
	})

	t.Run("falls back to HOME", func(t *testing.T) {
		t.Setenv("XDG_CONFIG_HOME", "")
		t.Setenv("XDG_STATE_HOME", "")
		t.Setenv("HOME", "/home/op")

		assert.Equal(t, filepath.Join("/home/op", ".config", "nvdoctor", "c.yaml"), XDGConfigPath("nvdoctor", "c.yaml"))
		assert.Equal(t, filepath.Join("/home/op", ".local", "state", "nvdoctor", "x.log"), XDGStatePath("nvdoctor", "x.log"))
	})
}
