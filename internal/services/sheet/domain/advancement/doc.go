// Package advancement holds the XP advancement rules of the character sheet:
// the expression grammar typed into advancement fields, the stepped cost
// table, the XP ledger, and the transaction calculator that prices a change of
// step count against the ledger.
//
// Everything here is pure. Nothing in this package mutates a sheet; callers
// apply an accepted Transaction themselves.
package advancement
