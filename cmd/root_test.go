package main

import (
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}

	for _, name := range []string{"roster", "ingest", "exposure", "panel", "estimate", "run", "status"} {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "esg-research", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestRosterCommand_HasBuild(t *testing.T) {
	var names []string
	for _, c := range rosterCmd.Commands() {
		names = append(names, c.Name())
	}
	assert.Contains(t, names, "build")

	flag := rosterBuildCmd.Flags().Lookup("enrich")
	require.NotNil(t, flag)
	assert.Equal(t, "false", flag.DefValue)
}

func TestExposureCommand_HasBuild(t *testing.T) {
	var names []string
	for _, c := range exposureCmd.Commands() {
		names = append(names, c.Name())
	}
	assert.Contains(t, names, "build")
	require.NotNil(t, exposureBuildCmd.Flags().Lookup("download"))
}

func TestIngestCommand_Flags(t *testing.T) {
	flag := ingestCmd.Flags().Lookup("sources")
	require.NotNil(t, flag, "ingest command should have --sources flag")
	assert.Equal(t, "", flag.DefValue)
}

func TestEstimateAndRun_Flags(t *testing.T) {
	for _, c := range []struct {
		name  string
		flags []string
	}{
		{"estimate", []string{"metric", "spec", "se", "transform"}},
		{"run", []string{"sources", "metric", "spec", "se", "transform"}},
	} {
		cmd, _, err := rootCmd.Find([]string{c.name})
		require.NoError(t, err)
		for _, f := range c.flags {
			assert.NotNil(t, cmd.Flags().Lookup(f), "%s should have --%s", c.name, f)
		}
	}
}

func TestParseEstimateRequest(t *testing.T) {
	c := &cobra.Command{}
	c.Flags().StringSlice("metric", nil, "")
	c.Flags().StringSlice("spec", nil, "")
	c.Flags().String("se", "", "")
	c.Flags().String("transform", "", "")
	require.NoError(t, c.Flags().Set("metric", "total_emissions,scope2_emissions"))
	require.NoError(t, c.Flags().Set("spec", "twfe"))
	require.NoError(t, c.Flags().Set("se", "hc1"))

	req := parseEstimateRequest(c)
	assert.Equal(t, []string{"total_emissions", "scope2_emissions"}, req.Metrics)
	assert.Equal(t, []string{"twfe"}, req.Specs)
	assert.Equal(t, "hc1", req.SEType)
	assert.Equal(t, "", req.Transform)
}

func TestSplitList(t *testing.T) {
	assert.Nil(t, splitList(""))
	assert.Equal(t, []string{"ghgrp", "cdp"}, splitList(" ghgrp, cdp ,,"))
}
