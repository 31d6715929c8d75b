// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseControlCommand(t *testing.T) {
	tests := []struct {
		line string
		name string
	}{
		{"a", "select A"},
		{"B", "select B"},
		{"f 145.5", "frequency 145.500.000"},
		{"freq 433.500.000", "frequency 433.500.000"},
		{"m fm-n", "mode FM-N"},
		{"w", "toggle width"},
		{"tm tsql", "tone function TSQL"},
		{"t 88.5", "tone 88.5 Hz"},
		{"dtcs 23", "DTCS 023 NN"},
		{"dtcs 754 rn", "DTCS 754 RN"},
		{"af 128", "AF 128"},
		{"sql 0", "SQL 0"},
		{"dup +", "duplex DUP+"},
		{"dup off", "duplex SIMPLEX"},
		{"offset 0.6", "offset 0.600.000"},
		{"r", "refresh"},
		{"refresh b", "refresh"},
		{"id", "transceiver ID"},
		{"on", "power on"},
		{"off", "power off"},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			action, err := parseControlCommand(tt.line)
			require.NoError(t, err)
			assert.Equal(t, tt.name, action.name)
			assert.NotNil(t, action.run)
		})
	}
}

func TestParseControlCommand_Help(t *testing.T) {
	for _, line := range []string{"help", "?"} {
		action, err := parseControlCommand(line)
		require.NoError(t, err)
		assert.Nil(t, action.run)
	}
}

func TestParseControlCommand_Errors(t *testing.T) {
	_, err := parseControlCommand("   ")
	assert.ErrorIs(t, err, errEmptyCommand)

	for _, line := range []string{
		"f",
		"f abc",
		"f 145.5.5",
		"m ssb",
		"tm ctcss",
		"t 88.55",
		"dtcs 1000",
		"dtcs 23 XN",
		"af 256",
		"pwr -1",
		"dup x",
		"r c",
		"tune",
	} {
		t.Run(line, func(t *testing.T) {
			_, err := parseControlCommand(line)
			assert.Error(t, err)
			assert.NotErrorIs(t, err, errEmptyCommand)
		})
	}
}

func TestParsePolarity(t *testing.T) {
	tx, rx, err := parsePolarity("nr")
	require.NoError(t, err)
	assert.Equal(t, uint8(0), tx)
	assert.Equal(t, uint8(1), rx)

	_, _, err = parsePolarity("N")
	assert.Error(t, err)
	_, _, err = parsePolarity("NX")
	assert.Error(t, err)
}
