// Command cms manipulates count-min sketch files and builds sketches from
// capture files.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
