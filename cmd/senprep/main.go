// senprep discovers, downloads, and collocates Sentinel-1/Sentinel-2
// product pairs for a region of interest.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
