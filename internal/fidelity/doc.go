// Package fidelity checks whether a rendered page shows what its story text
// says happens, independent of composition geometry.
package fidelity
