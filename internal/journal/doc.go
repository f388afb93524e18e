// Package journal keeps a local record of every command the agent routed.
//
// Each entry notes the command, its correlation IDs, params and outcome
// (ok, failed, malformed, missing_command, unknown). Entries live in the
// command_journal table of the agent's SQLite database; the schema comes
// from the embedded migrations.
package journal
