// Command trainer is the openrmt CLI: train and evaluate reward models.
package main

import (
	"fmt"
	"os"

	"github.com/openrmt/openrmt/internal/api/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
