package main

import (
	"fmt"
	"os"

	"github.com/GylleadheBodedono/API-Connect-Checklist/internal/cli"
)

// set with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	if err := cli.NewRootCommand(version).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
