// Package preview drives the provisional edit workflow of a sheet.
//
// A Session holds at most one pending edit. Typing into a field prices the
// change against the live ledger without touching committed state; Confirm
// commits it, and Cancel, Blur or an outside interaction restore the field as
// it was when it gained focus. Loop serializes session calls onto a single
// event queue and debounces typing.
package preview
