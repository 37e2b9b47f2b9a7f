// Package logx configures animatron's structured logging.
//
// A small wrapper (logx.Logger) over zerolog keeps:
//   - console output readable (short timestamp, short caller)
//   - file output as JSON lines
//   - an optional forward sink (min level + rate limit) that hands log records
//     to another component, such as the event bus
package logx
