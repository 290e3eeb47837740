// Package pipeline runs an ordered sequence of generation stages against a
// draft and reports progress as events. A stage failure marked non-fatal
// lets the remaining stages run; any other failure ends the run with the
// results accumulated so far.
package pipeline
