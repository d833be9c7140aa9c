// Package progress defines the events a generation pipeline reports while it
// runs and the ordered queue that carries them from the worker goroutine to the
// stream encoder.
//
// Event is a closed set: Thinking, Milestone, Draft, and Failure. Drafts carry
// their payload in a typed field so it can be persisted and stripped before
// anything reaches the wire. Channel is an unbounded FIFO with any number of
// producers and a single consumer; Send never blocks.
package progress
