package main

import (
	"os"

	"taskdeck/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
