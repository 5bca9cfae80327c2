// Package snapshot persists run state checkpoints and step artifacts.
//
// Each run owns a directory under the store root:
//
//	<root>/<run_id>/
//	    state_init.json
//	    state_after_<step>.json
//	    state_after_<step>_error.json
//	    state_final.json
//	    artifacts/
//	    graphs/
//
// All files are written atomically: content goes to a temporary file in the
// target directory, is synced, and is then renamed over the final name. A
// crash at any point leaves either the previous file or no file, never a
// truncated one.
//
// Checkpoints are advisory. Write never fails the caller: a checkpoint that
// cannot be persisted is logged and reported as a zero Checkpoint. Read
// treats missing or malformed files as an empty state.
package snapshot
