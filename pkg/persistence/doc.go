// Package persistence stores node settings that must survive restarts:
// the device name and the last device address the node claimed.
package persistence
