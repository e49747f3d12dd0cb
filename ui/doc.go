// Package ui is the terminal renderer for a host.Runtime.
//
// The TUI draws the latest view description, a status line fed by
// host.StatusRenderer and a key help bar. View buttons are bound to their
// keys; any other printable key is dispatched as contract.KindKey. The r
// key forces a reload check and q quits.
package ui
