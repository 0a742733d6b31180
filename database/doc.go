// Package database provides connection management for mysql, postgres and
// sqlite on top of Bun, plus query hooks, SQL error classification, a model
// registry with table bootstrap migrations, and the shared logger facade.
package database
