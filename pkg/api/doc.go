// Package api contains the building blocks shared by the runtime and by node
// implementations: element ids, messages, mailboxes, the node contract, the
// type registry, context stores and observers.
//
// Most users interact with the higher-level wireflow package, which
// re-exports selected types from this package. The api package is intended
// for custom node implementations and embedders.
//
// # Messages
//
// A Msg is a mutable object of Variant values. Node code reads and writes it
// with property expressions such as payload.items[0]:
//
//	v, ok, err := msg.GetNav("payload.items[0]")
//	err = msg.SetNav("payload.total", variant.Number(3), true)
//
// A message has exactly one owner at a time. FanOut transfers ownership to
// the receiver; sending the same message to several receivers clones it.
//
// # Nodes
//
// A Node is started once and runs until its context is cancelled. BaseNode
// carries everything the runtime assigns to a node (identity, mailbox and
// resolved output ports) and implements the receive and send helpers.
//
// # Errors
//
// Failures are reported with the sentinel errors of this package wrapped
// with %w; test for them with errors.Is. Cancellation is reported as
// ErrTaskCancelled and is part of normal shutdown.
package api
