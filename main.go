package main

import (
	"github.com/avastel/gatekeeper/cmd"
)

func main() {
	cmd.Execute()
}
