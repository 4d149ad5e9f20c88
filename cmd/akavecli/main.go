package main

import (
	"github.com/d4v1d03/akavesdk/cli/cmd"
)

func main() {
	cmd.Execute()
}
