// SPDX-License-Identifier: MPL-2.0

// Package process models operations that report progress and then complete
// with a single result, and composes them into pipelines.
//
// A Process[S, T] emits zero or more states of type S followed by exactly one
// result of type T, or fails. Chain and Concat sequence processes, Map and
// MapStates transform them, and All runs several in parallel:
//
//	p := process.Chain(resolve, func(locks Locks) process.Process[Step, Report] {
//		return fetchAll(locks)
//	})
//	report, err := p.Run(ctx, func(s Step) { render(s) })
package process
