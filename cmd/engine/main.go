package main

import "github.com/mintresearch/agent-engine/cli"

func main() {
	cli.Execute()
}
