// Package shell runs external commands for pipeline steps.
//
// Every command is started through the system shell in its own process
// group. When the timeout expires, or the caller's context is cancelled, the
// whole group is killed with SIGKILL so that forking or signal-ignoring
// tools cannot outlive the call. Expiry is not an error: it is reported as a
// Result with ExitCode -1 and a "Timeout after <n>s" message, just as a
// non-zero exit status is reported as a normal Result.
package shell
