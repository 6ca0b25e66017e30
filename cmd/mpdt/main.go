package main

import (
	"os"

	"github.com/MoFox-Studio/mofox-plugin-toolkit/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
