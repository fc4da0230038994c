// Package logx is the host side of logging.
//
// It keeps:
//   - the host verbosity (debug, info, warn, error or silent)
//   - exactly one zerolog writer: readable console output, or JSON lines in a file
//
// Lines arrive already rendered and gated; Service.Log only writes them.
package logx
