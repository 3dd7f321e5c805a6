// Copyright © 2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

// This is the SoC power manager command.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/platinasystems/pmgr/cmd/pmgr"
)

var Args = os.Args
var Exit = os.Exit
var Stderr io.Writer = os.Stderr

func main() {
	if err := new(pmgr.Command).Main(Args[1:]...); err != nil {
		fmt.Fprintln(Stderr, err)
		Exit(1)
	}
}
