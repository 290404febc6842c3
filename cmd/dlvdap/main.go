package main

import "gni.dev/dlvdap/internal/cli"

func main() {
	cli.Execute()
}
