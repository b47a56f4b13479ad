// Package viz renders run summaries for the terminal.
//
//   - [Summary]: styled panel with run facts and metrics (lipgloss)
//   - [Graph]: line chart of one signal (asciigraph)
//   - [Sparkline]: one-line trend of a signal
//
// Output is plain strings; callers decide where to print them.
package viz
