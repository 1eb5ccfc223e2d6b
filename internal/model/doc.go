// Package model defines the payload types carried by the quote stream.
//
// Conventions:
//   - Prices and sizes: shopspring/decimal, decoded from JSON numbers or strings
//   - Timestamps: int64 milliseconds since Unix epoch, as sent by the push service
//   - Symbols: upstream spelling, never rewritten
package model
