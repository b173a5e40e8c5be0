// Package fmi wraps a single black-box simulation component that follows the
// FMI 2.0 co-simulation calling convention.
//
// The package provides:
//
//   - [Variable]: immutable descriptor derived from component metadata
//   - [Interface]: variables grouped into inputs, outputs, parameters and locals
//   - [ModelDescription]: parsed modelDescription.xml
//   - [Runtime]: the external component runtime, addressed by value references
//   - [Component]: lifecycle wrapper that rejects illegal call sequences
//
// # Lifecycle
//
//	Created -> Instantiated -> ExperimentConfigured -> Initializing -> StepMode
//	        -> Terminated -> Freed
//
// Any runtime error moves the component to the absorbing Faulted state. A
// component that faulted after reaching StepMode is still terminated once
// through the runtime before it is freed.
//
// # Thread Safety
//
// A Component has exactly one owner and is NOT safe for concurrent use.
package fmi
