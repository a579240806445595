// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
//
// Package program is the read-only view of a traced program that every
// analysis stage consumes.
//
// # Core Concepts
//
//   - Value: one node of the dataflow graph. Instructions, function
//     arguments, globals and constants are all values; they are addressed by
//     a stable ValueID and linked by operand (predecessor) and user
//     (successor) edges.
//
//   - BasicBlock / ControlBlock: instructions are grouped into basic blocks,
//     and basic blocks into control blocks. Kernel descriptors name basic
//     block ids.
//
//   - Profile data: the live edges observed while tracing, block execution
//     counts, the load/store instructions the profiler judged significant,
//     and per-instruction memory footprints.
//
// # Lifecycle
//
// An Index is assembled once through a Builder (directly in tests, or by the
// JSON loaders in load.go for the command line tool) and is immutable after
// Build. Analysis stages share it by pointer and never write to it, which is
// what makes per-task analysis safe to run concurrently.
package program
