// Package logx configures totdbot's structured logging.
//
// A small wrapper (logx.Logger) on top of zerolog keeps:
//   - Console output readable (short timestamp + short caller)
//   - File output JSON-structured
//   - An optional operator chat sink (min-level + rate limiting) that also
//     serves as the operator notification channel
package logx
