package main

import "github.com/oshokin/xpi-release/cmd/xpi-release/cmd"

func main() {
	cmd.Execute()
}
