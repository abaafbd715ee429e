package main

import "nwbio/internal/cli"

func main() {
	cli.Execute()
}
