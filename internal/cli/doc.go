// Package cli implements the specdeck command-line interface. All state
// lives in a [cmdEnv] built per invocation, so [Run] is safe to call from
// tests with captured output streams.
package cli
