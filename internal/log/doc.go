// Package log provides the redacting slog handler used by every redflow
// logger.
//
// Recon commands routinely carry credentials: API keys exported for a
// tool, Authorization headers passed on the command line, tokens in query
// strings. The RedactingHandler masks attributes whose key names a secret
// and scrubs secrets embedded in string values, so that a logged command
// line keeps its shape but loses its credentials:
//
//	logger := log.NewLogger(os.Stderr, verbose)
//	logger.Debug("running", "command", `SHODAN_API_KEY=abc123 httpx -H "Authorization: Bearer xyz" -l hosts.txt`)
//	// command="SHODAN_API_KEY=***REDACTED*** httpx -H \"Authorization: ***REDACTED***\" -l hosts.txt"
package log
