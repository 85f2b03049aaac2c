// Package wireflow runs visual dataflow programs exported in the Node-RED
// flow format.
//
// A flow export is a JSON array of records: "tab" records describe flows,
// records with a "z" field are nodes of that flow, and the remaining records
// are global (configuration) nodes. Every node becomes its own goroutine and
// talks to its neighbours only through bounded mailboxes along the wires of
// the export.
//
// # Core Concepts
//
// The programming model is intentionally small:
//
//  1. FlowSet
//  2. Registry
//  3. Engine
//  4. Observer
//  5. Runner
//
// # FlowSet
//
// Load and LoadFile turn an export into a FlowSet. Nodes of each flow are
// sorted so that every wire source precedes its targets; wiring cycles,
// duplicate ids and malformed records are reported as ErrBadFlowsJSON.
//
// FlowBuilder writes exports from Go, which is convenient for tests:
//
//	flow := wireflow.New("100", "main").
//	    Node("1", "inject", wireflow.Props{"repeat": "5"}).
//	    Node("2", "debug", nil).
//	    Wire("1", 0, "2")
//
// # Registry
//
// A Registry maps node type names to factories. NewRegistry returns one
// holding the built-in types: inject, debug, junction, switch, change,
// range, delay and udp out. Custom nodes embed *BaseNode and implement Run:
//
//	func (n *myNode) Run(ctx context.Context) {
//	    for {
//	        msg, err := n.WaitForMsg(ctx)
//	        if err != nil {
//	            return
//	        }
//	        _ = n.FanOut(ctx, 0, msg)
//	    }
//	}
//
// Unknown node types fail engine construction with ErrNotSupported.
//
// # Engine
//
// The Engine builds every node of a FlowSet up front and then starts flows
// in load order. A full mailbox suspends the sender; messages are never
// dropped and messages on one wire keep their order. Fan-out hands the
// original message to the first receiver and clones to the others, so
// receivers may mutate what they get. Stop cancels every node and waits for
// them, bounded by its context.
//
// # Observer
//
// Observers receive flow and node lifecycle callbacks, node errors, message
// deliveries and debug output. LoggingObserver writes them with log/slog,
// BasicMetrics counts them, and the runtime journal stores them in memory,
// SQLite, PostgreSQL or Redis keyed by the engine run id.
//
// # Runner
//
// Runner bundles a registry, an engine, the journal selected by Config and
// the standard observers. It is what the wireflow command uses:
//
//	runner, err := wireflow.NewRunner(ctx, set, wireflow.DefaultConfig(), wireflow.RunnerOptions{})
//	if err != nil {
//	    return err
//	}
//	return runner.Run(ctx)
package wireflow
