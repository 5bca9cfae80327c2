// Package config provides the configuration of a redflow invocation: where
// runs and the run index live, which playbook to execute, which binary and
// timeout to use for every external tool, and the behavior flags of a run.
//
// Values are layered: built-in defaults, then the optional .redflow YAML
// file, then REDFLOW_* environment variables, then command-line flags.
package config
