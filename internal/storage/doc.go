// Package storage keeps taskdeck's local state.
//
// It currently supports:
//   - Audit log appends (schedule saves, manual runs, sync passes)
//   - The last schedule applied per job, so the sync daemon can spot drift
package storage
