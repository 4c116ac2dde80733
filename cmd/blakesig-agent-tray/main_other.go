// SPDX-FileCopyrightText: 2022 Tillitis AB <tillitis.se>
// SPDX-License-Identifier: BSD-2-Clause

//go:build !windows

package main

import "os"

func main() {
	le.Printf("%s is only implemented for windows\n", progname)
	os.Exit(1)
}
