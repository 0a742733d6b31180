// Package anvil wires configuration, the database connection and the event
// publisher together and offers Service, a repository facade that is safe
// to share between goroutines.
package anvil
