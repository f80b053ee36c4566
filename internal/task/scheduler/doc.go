// Package scheduler is the job registry: it owns the cron entries that
// trigger recurring work and turns every firing into a task on the engine.
//
// It never runs a job on the cron goroutine. It only keeps id to entry
// bookkeeping and enqueues.
package scheduler
