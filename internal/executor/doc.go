// Package executor runs code blocks emitted by models. Code never runs inside
// the daemon: every block gets a fresh python interpreter in its own process
// group, a throw-away working directory, a scrubbed environment and rlimits.
// This narrows the blast radius but is not a sandbox; only trusted input
// should reach it.
package executor
