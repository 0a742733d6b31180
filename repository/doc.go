// Package repository implements a generic, event-dispatching repository over
// Bun models. Query shaping (relations, counts, projections, ordering) is
// collected on a pending per-call context that every terminal operation
// consumes, and successful writes are reported to optional EventHandlers.
package repository
