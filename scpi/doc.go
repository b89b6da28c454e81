// Package scpi provides a minimal SCPI command parser and interpreter
// suitable for driving the protocol engine's command handler.
//
// The grammar is deliberately small: starred common commands (*IDN?,
// *RST, *CLS), query forms ending in '?', and set forms consisting of
// a mnemonic followed by a numeric argument. The interpreter models a
// toy instrument with a voltage setting, a frequency setting, and a
// one-deep error queue readable through SYST:ERR?.
package scpi
