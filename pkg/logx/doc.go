// Package logx is albowatch's logging layer on top of zerolog.
//
// Console output is human-readable, the optional log file is JSON, and an
// optional Telegram sink forwards warnings to the operator chat. Service.Apply
// swaps sinks at runtime; every Logger handed out follows the swap.
package logx
