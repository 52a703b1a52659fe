//go:build nogpu

// Package gpu is empty in nogpu builds; only the CPU tone-map driver is
// registered.
package gpu
