// Package storage persists schedule records and assessment results.
//
// The Store interface is the durable source of truth for recurring
// schedules: runtime timers are rebuilt from it on every process start.
package storage
