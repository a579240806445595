// Package app contains the host of an analysis run. It wires the loaded
// configuration, the input files and the result sinks around the grammar
// engine, decoupled from any specific entrypoint like a CLI.
package app
