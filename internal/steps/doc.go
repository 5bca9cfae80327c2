// Package steps provides the step implementations bundled with redflow.
//
// Register binds them into a registry.Registry under the identifiers used
// by the built-in playbooks:
//
//	exec               run any tool through a command template
//	whois              registration data, ASNs and network prefixes
//	merge_sort_unique  merge per-source subdomain lists
//	report             render report.md and the step outcome chart
//
// Every implementation follows the same resume convention. When the state
// flag "resume" is set and "force" is not, a step whose artifact already
// exists in the run directory reuses it instead of running its tool again.
package steps
