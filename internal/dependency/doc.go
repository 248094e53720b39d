// Package dependency provides a small directed acyclic graph used to
// schedule the sub-operations of a step.
//
// A step may issue several operations, possibly against different roles.
// Each operation can declare that it needs the results of other operations
// of the same step. The graph turns these declarations into an explicit,
// auditable schedule:
//
//   - Levels groups operations into waves. All operations of one wave are
//     independent of each other and may run concurrently.
//   - Order produces a sequential topological order that keeps the declared
//     order wherever the dependencies allow it.
//
// Unknown dependencies and cycles are rejected by Validate, so a test plan
// with an impossible schedule fails at load time instead of deadlocking.
package dependency
