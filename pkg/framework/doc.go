// Package framework provides the loop every daemon and client is built on.
//
// A Loop owns all state of its controllers. Other goroutines never touch
// that state; they post messages and trigger the next iteration instead.
// Runnables added to a Loop receive a context carrying its LoopControl.
package framework
