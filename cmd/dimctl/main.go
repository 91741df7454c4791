package main

import "dimctl/internal/cmd"

var version = "dev"

func main() {
	cmd.Execute(version)
}
