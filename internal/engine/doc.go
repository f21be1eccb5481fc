// Package engine contains the simulation: the ledger, people and their
// actions, incidents, and the loop that drives them.
//
// ARCHITECTURAL RULE: entities never reach for each other through globals.
// Everything they share (bus, timers, ledger, sink, roster) hangs off the
// World built once by New. Entity methods assume the engine lock is held;
// only Engine methods take it.
package engine
