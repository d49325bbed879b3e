package klog

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLevelFiltersOutput(t *testing.T) {
	var buf bytes.Buffer
	prevOut, prevLevel := out, level
	SetOutput(&buf)
	SetLevel(LevelWarn)
	defer func() { SetOutput(prevOut); SetLevel(prevLevel) }()

	Info("hidden %d", 1)
	require.Empty(t, buf.String())

	Warn("shown %d", 2)
	require.Contains(t, buf.String(), "warn: shown 2")
}

func TestErrorPrefix(t *testing.T) {
	var buf bytes.Buffer
	prevOut, prevLevel := out, level
	SetOutput(&buf)
	SetLevel(LevelInfo)
	defer func() { SetOutput(prevOut); SetLevel(prevLevel) }()

	Error("boom %s", "now")
	require.Equal(t, "error: boom now\n", buf.String())
}
