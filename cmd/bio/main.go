// Command bio imports record batches with symbolic references.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/basicio/internal/cli"
	"github.com/roach88/basicio/internal/config"
)

func main() {
	if _, err := config.LoadEnvFiles(".env", ".env.local"); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.ExitCommandError)
	}
	os.Exit(cli.Execute())
}
