package main

import (
	"os"

	"ensemble/cmd/ensemble/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
