/*
Package graph allows to build and execute streaming flow graphs.

Concept

A flow graph is a directed graph of processing blocks connected by typed
sample ports:

    Block - a node with a work entry point;
    Port  - a typed endpoint, output or input;
    Edge  - a directed link between two ports.

Every edge is backed by a lock-free circular buffer from the ring package.
Producers reserve a span of slots, write samples and publish; consumers
obtain a clamped, never-blocking view and consume. A side-channel ring per
edge carries stream tags: property maps attached to a specific sample
index.

Execution

Graphs are frozen at Init: connection definitions recorded by Connect are
resolved, sample types verified and the shared rings installed. The
scheduler package then drives every block to quiescence, either single
threaded or partitioned across workers.

Parameters

Block parameters are managed by the settings package: a staged overlay
over the block's fields with auto-update from incoming stream tags and
auto-forward propagation to downstream blocks.
*/
package graph
