// Package analysis post-processes finished trajectories.
//
// Adaptive runs produce samples on an irregular grid, so spectral tools
// first resample through a history store:
//
//	times, states, err := analysis.Resample(res.Times, res.States, 512, history.Cubic)
//	spec, err := analysis.PowerSpectrum(times, component(states, 0))
//	f := spec.Dominant()
package analysis
