// Package app wires the service configuration, backend client, template
// loader and task manager together and drives one batch from start to
// finish, decoupled from the CLI that fills in its Config.
package app
