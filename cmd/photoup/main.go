// photoup - batch image uploader
package main

import (
	"os"

	"github.com/rescale/photoup/internal/cli"
)

func main() {
	// Cobra has already printed the error.
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
