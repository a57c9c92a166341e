// Package repository defines the report archive.
//
// The sqlite subpackage implements ReportRepository on modernc.org/sqlite,
// a pure-Go driver, so the binary stays cgo-free.
package repository
