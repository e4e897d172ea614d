package main

import (
	"os"

	"github.com/jengzang/gazemap-backend-go/internal/cli"
)

var version = "dev"

func main() {
	if err := cli.Run(version); err != nil {
		os.Exit(1)
	}
}
