package cmd

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/memoio/go-voicemint/config"
)

func TestConfigDiff(t *testing.T) {
	def := config.NewDefaultConfig()

	rows, err := configDiff(def, config.NewDefaultConfig())
	require.NoError(t, err)
	require.Empty(t, rows)

	cfg := config.NewDefaultConfig()
	cfg.Log.Level = "debug"
	cfg.Data.MetaPath = "/var/voicemint/meta"

	rows, err = configDiff(def, cfg)
	require.NoError(t, err)
	require.Equal(t, []configRow{
		{Key: "data.metaPath", Value: `"/var/voicemint/meta"`},
		{Key: "log.level", Value: `"debug"`, Default: `"info"`},
	}, rows)
}
