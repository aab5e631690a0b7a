// Package schedule converts between the simplified recurrence draft edited in the
// task manager (frequency + HH:MM + selected days) and the 5-field cron string
// stored by the Jobs service, and projects upcoming run times.
//
// Everything here is pure: no I/O, no shared state, safe for concurrent use.
// A cron string the simplified model cannot represent is never an error; it is
// carried as Draft.AdvancedCron on a fallback draft, and Encode reports false.
package schedule
