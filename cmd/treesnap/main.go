package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/danieljhkim/treesnap/internal/cli"
)

var version = "dev"

func main() {
	cli.SetVersion(version)

	if err := cli.Execute(); err != nil {
		// Commands that exit with a status have already printed their result.
		var exitErr *cli.ExitError
		if !errors.As(err, &exitErr) {
			fmt.Fprintf(os.Stderr, "%v\n", err)
		}
		os.Exit(cli.ExitCode(err))
	}
}
