// Package scheduler fires named triggers on cron or interval schedules.
//
// It never runs work itself: a trigger only appends a task to one of the bot
// queues, so maintenance jobs (roster refresh, report pruning) go through the
// same FIFO, failure isolation and history as every other task.
package scheduler
