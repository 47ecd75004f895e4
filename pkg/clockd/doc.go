// Package clockd runs a disciplined clock as a device on the bus.
//
// All clock state is owned by the loop. Host callbacks (alarms, received
// datagrams, resolved names) are posted into the loop through Dispatch and
// run at the top priority level, before the tick logic of the same
// iteration. The loop sleeps until the next tick is due.
package clockd
