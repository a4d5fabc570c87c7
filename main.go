package main

import (
	"dapsync/cmd"
)

func main() {
	cmd.Execute()
}
