package main

import (
	"os"

	"convokey/cmd/convokey/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
