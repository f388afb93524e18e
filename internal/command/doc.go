// Package command routes backend commands received on the device command topic.
//
// A command is a JSON object published to device/{id}/command:
//
//	{"command": "get_status", "command_id": "c-17", "params": {}}
//
// The Router decodes it, looks the name up in its handler table and runs
// the handler. When the command carries a command_id, the outcome is sent
// back on the reply topic (result 0 on success, 1 on failure). Commands
// without an id are fire-and-forget.
//
// Built-in commands:
//   - get_status: publishes one status snapshot (uptime, free memory)
//   - restart: schedules a process restart after a grace period
//   - cancel_restart: cancels a scheduled restart
//   - test: acknowledges without side effects
//
// Every routed command, including malformed and unknown ones, can be
// appended to a local journal for later inspection.
package command
