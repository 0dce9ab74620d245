// Package tgui holds small helpers for composing Telegram HTML messages.
//
// Everything that ends up in a message body goes through H: plain strings
// are escaped with Esc, markup is built with B and Link. Never concatenate
// untrusted text into an H.
package tgui
