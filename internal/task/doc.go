// Package task runs periodic background jobs. A Scheduler fires its Job on a
// fixed interval, never overlaps two runs of the same job, and bounds each
// run with a timeout.
package task
