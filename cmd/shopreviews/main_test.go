package main

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aluiziolira/go-shop-reviews/config"
	"github.com/aluiziolira/go-shop-reviews/pipeline"
)

func TestApplyFlagsOnlyOverridesChanged(t *testing.T) {
	cmd := newRootCmd()
	require.NoError(t, cmd.ParseFlags([]string{"--detail-workers", "9", "--format", "JSON", "--delay", "250ms", "--locale", ""}))

	cfg := config.DefaultConfig()
	cfg.ListingWorkers = 7

	var f cliFlags
	f.detailWorkers, _ = cmd.Flags().GetInt("detail-workers")
	f.format, _ = cmd.Flags().GetString("format")
	f.delay, _ = cmd.Flags().GetDuration("delay")
	f.locale, _ = cmd.Flags().GetString("locale")
	applyFlags(cmd, &f, cfg)

	assert.Equal(t, 7, cfg.ListingWorkers)
	assert.Equal(t, 9, cfg.DetailWorkers)
	assert.Equal(t, "json", cfg.OutputFormat)
	assert.Equal(t, 250*time.Millisecond, cfg.Delay)
	assert.Equal(t, "", cfg.Locale)
	assert.Equal(t, config.DefaultConfig().OutputFile, cfg.OutputFile)
}

func TestRootCmdRequiresShopURL(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetArgs([]string{})
	assert.Error(t, cmd.Execute())
}

func TestCreateWriter(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		format string
		check  func(t *testing.T, w pipeline.OutputWriter)
	}{
		{"csv", func(t *testing.T, w pipeline.OutputWriter) { assert.IsType(t, &pipeline.CSVWriter{}, w) }},
		{"json", func(t *testing.T, w pipeline.OutputWriter) { assert.IsType(t, &pipeline.JSONWriter{}, w) }},
		{"dual", func(t *testing.T, w pipeline.OutputWriter) {
			assert.IsType(t, &pipeline.DualWriter{}, w)
			assert.FileExists(t, filepath.Join(dir, "dual.json"))
		}},
	}
	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			w, err := createWriter(tt.format, filepath.Join(dir, tt.format+".csv"))
			require.NoError(t, err)
			tt.check(t, w)
			require.NoError(t, w.Close())
		})
	}

	_, err := createWriter("xml", filepath.Join(dir, "out.xml"))
	assert.ErrorContains(t, err, "unsupported format")
}

func TestFormatCounts(t *testing.T) {
	assert.Equal(t, "not_found=2 timeout=1", formatCounts(map[string]int{"timeout": 1, "not_found": 2}))
	assert.Equal(t, "", formatCounts(nil))
}
