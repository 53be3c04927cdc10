// Package logx is a thin structured logging layer over zerolog.
//
// It exposes a small Logger value type with fixed-field derivation via
// With(), plus a Service that owns the sinks (console, file) and can
// swap level/outputs at runtime through Apply().
package logx
