// Package events provides repository.EventHandler implementations: an
// in-process observer list, a Redis pub/sub publisher, fan-out and logging.
package events
