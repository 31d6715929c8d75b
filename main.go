// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad
//
// civstat - CI-V Session Tool
//
// A CLI tool for controlling and monitoring Icom radios over the CI-V
// serial protocol, directly or through a WebSocket bridge.

package main

import (
	"os"

	"github.com/Thermoquad/civstat/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
