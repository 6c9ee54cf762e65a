// Package description defines the static device description an appliance is
// built from, the identity and network defaults reported to protocol peers,
// and loaders for the upload formats accepted by the admin API.
//
// A description lists entities per category (status, setting, event,
// command, option, program) plus the optional activeProgram,
// selectedProgram and protectionPort singletons. Descriptions are JSON; the
// vendor XML format is not parsed.
package description
