// Package main provides the entry point for the orchestrator CLI.
package main

import "allin1/orchestrator/cmd"

func main() {
	cmd.Execute()
}
