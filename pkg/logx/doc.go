// Package logx is newsbot's process logging on top of zerolog.
//
// Process logs are for operators: console lines on stdout and, optionally, a
// JSON file. They are separate from the activity log, which is stored with
// the newsletter data and shown to users.
package logx
