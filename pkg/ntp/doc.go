// Package ntp implements a minimal SNTP client.
//
// The client sends a single mode 3 request and accepts the first mode 4
// reply from the bound server. Only the transmit timestamp of the reply is
// used, no round-trip delay compensation is done.
//
// All entry points and callbacks must run on a single goroutine. The host
// capabilities are expected to deliver their callbacks on that goroutine,
// see hw.Dispatcher.
package ntp
