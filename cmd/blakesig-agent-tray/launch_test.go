// SPDX-FileCopyrightText: 2026 Tillitis AB <tillitis.se>
// SPDX-License-Identifier: BSD-2-Clause

package main

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCheckArgs(t *testing.T) {
	ok := [][]string{
		{"-a", "blakesig"},
		{"--agent-path", "blakesig"},
		{"--agent-path=blakesig"},
		{"-ablakesig"},
		{"--index", "0,1", "-c", `C:\Users\me\blakesig.yaml`},
		{"--config=agent.yaml"},
		{"-a", "x", "--"},
	}
	for _, args := range ok {
		require.NoError(t, checkArgs(args), "%v", args)
	}

	bad := [][]string{
		nil,
		{"--index", "3"},
		{"-p"},
		{"--show-pubkey", "-a", "x"},
		{"--", "-a"},
		{"-a", "sock", "-p"},
		{"-c", "agent.yaml", "--show-pubkey"},
		{"--config=agent.yaml", "-a", "x", "--", "-p"},
	}
	for _, args := range bad {
		require.Error(t, checkArgs(args), "%v", args)
	}

	err := checkArgs([]string{"-a", "sock", "-p"})
	require.ErrorContains(t, err, "only starts the agent")
}

func TestCommandLine(t *testing.T) {
	require.Equal(t, "blakesig-agent.exe -a pipe", commandLine(mainExe, []string{"-a", "pipe"}))
	require.Equal(t, "blakesig-agent.exe", commandLine(mainExe, nil))
	require.Contains(t, aboutText("v1", "x"), "Version: v1\nRunning: x")
}
