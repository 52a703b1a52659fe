//go:build !nogpu

// Package gpu runs tone-map pixel passes as a wgpu/hal compute shader.
//
// The WGSL source in shaders/tonemap.wgsl is compiled to SPIR-V by naga
// when the pipeline is built. Each pass uploads the source region to a
// storage buffer, dispatches one invocation per pixel in 8x8 workgroups,
// copies the result to a mappable staging buffer and writes it back into
// the destination surface.
//
// NewDriver wraps a ToneMapAccelerator in a tonemap driver named "wgpu".
// Surfaces and PRIME handling stay with the tonemap package; a pass that
// fails on the GPU is redone there on the CPU.
//
// A device can be shared with the host application through
// SetDeviceProvider. Software adapters are refused, since the CPU driver
// is faster than a shader interpreter.
package gpu
