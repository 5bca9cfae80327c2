// Package report renders the outcome of a run.
//
// A Data value is assembled from the final run state, the checkpoint names
// written by the snapshot store and the list of saved artifacts. Writers
// turn it into one of three formats:
//   - MarkdownWriter: report.md stored in the run directory, with a mermaid
//     pie chart of step outcomes
//   - SimpleWriter: plain text summary for the terminal
//   - JSONWriter: machine readable summary
//
// Writers implement the Writer interface and can be combined with
// MultiWriter.
package report
