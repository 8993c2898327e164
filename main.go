package main

import (
	"os"

	"mediaforge/cli"
)

func main() {
	os.Exit(cli.Execute())
}
