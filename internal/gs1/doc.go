// Package gs1 holds the GS1 Application Identifier rules used to build
// element strings for GS1 DataMatrix symbols: the AI table, character set
// checks, the mod-10 check digit, and separator placement.
//
// Keep this package free of transport and rendering concerns.
package gs1
