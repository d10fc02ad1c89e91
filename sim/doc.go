// Package sim provides the data model shared by the hdlsim simulator adapter.
//
// # Reading Guide
//
// Start with these files to understand how a build and a test run flow through
// the adapter:
//   - model.go: Library, SourceFile and TestConfig, the values handed to the adapter
//   - activehdl/adapter.go: the facade composing registry, builder, scripts and runner
//   - activehdl/scripts.go: the load/run/done state machine emitted as TCL
//
// # Architecture
//
// The sim package defines value types and the Project collaborator interface;
// implementations live in sub-packages:
//   - sim/process/: subprocess launching and line streaming
//   - sim/version/: compiler version probing and capability gating
//   - sim/library/: library.cfg parsing and vlib/vmap invocation
//   - sim/compile/: vcom/vlog argument vectors
//   - sim/script/: TCL statement model and serializer
//   - sim/coverage/: coverage artifact accumulation and acdb merge scripts
//   - sim/activehdl/: the adapter facade
//   - sim/project/: hdlsim.yaml loading (stand-in for the framework project model)
//   - sim/metrics/: prometheus counters for adapter operations
//   - sim/watch/: source change notification for incremental recompiles
//   - sim/ostools/: file writes and scratch directory handling
package sim
