// Package dynamo provides the shared primitives for integro-differential runs.
//
// The package defines the vocabulary every other package speaks:
//
//   - [State]: fixed-dimension state vector
//   - [System]: the user terms F, G, K and η of ds/dt = F + ∫K·G + η
//   - error kinds such as [ErrOutOfRange], [ErrInsufficientHistory] and
//     [ErrStepSizeUnderflow], with typed errors carrying time context
//
// # Example
//
//	sys := dynamo.System{
//		Forward:  terms.Decay(1.0),
//		Feedback: terms.Linear(0.1),
//		Kernel:   terms.Exponential(0.5),
//	}
//	res, err := driver.New(sys).Integrate(ctx, cfg)
//
// # Function contracts
//
// User terms must be pure: no side effects and no access to anything but
// their arguments. Returned states must have the run's dimension and be
// finite; anything else is reported as [ErrUserFunction].
package dynamo
