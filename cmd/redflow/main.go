// Package main provides the entry point for the redflow CLI.
//
// redflow runs reconnaissance playbooks against domains and IPs. A
// playbook is a graph of steps; each step runs one tool, and the run state
// is checkpointed after every step so that an interrupted run can be
// resumed.
//
// Usage:
//
//	redflow run example.com
//	redflow run targets.txt -p recon-full --batch 4
//	redflow resume <run-id>
//
// See --help for all available options.
package main

func main() {
	Execute()
}
