// Package notifier turns newly detected bulletin records into operator
// messages.
//
// A Dispatcher formats one record into a Telegram HTML message, resolves
// relative links against the listing URL and hands the text to a
// transport.Sender. Sends are paced by a token bucket, bounded by a per-send
// timeout and retried with jittered exponential backoff.
//
// Delivery is synchronous: Notify returns once the message was accepted or
// all attempts failed. Failures are reported as *SendError and are never
// fatal to the caller's run.
package notifier
