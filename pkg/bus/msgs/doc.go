// Package msgs provides the bus protocol and the generic message schemas.
package msgs

// The bus protocol is communicated between a device daemon and its clients.
// Every message travels in a Typed envelope whose type ID selects the
// schema and kind (command or event). Commands carry a sequence number
// echoed by the reply.
//
// Producer: device daemon
// Consumer: clients (CLI, monitor)
