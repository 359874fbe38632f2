package main

import (
	"fmt"
	"os"

	"github.com/aishell/aishell/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
