// Command fgctl compiles frame graph description files and reports what the
// compiler made of them.
//
// Usage:
//
//	fgctl plan deferred.hcl
//	fgctl dot deferred.hcl -o deferred.dot
//	fgctl timeline deferred.hcl -o heaps.png --scale 2
//	fgctl metrics deferred.hcl --frames 8
//
// Descriptions are compiled on the "record" backend unless --backend names
// another one; "noop" runs the native backend on the wgpu noop HAL.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
