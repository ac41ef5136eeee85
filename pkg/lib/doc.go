// Package lib provides a Go SDK for running feedstock operations in
// containers programmatically.
//
// This package allows applications to lint, rerender and inspect conda-forge
// feedstocks without shelling out to the fsops CLI binary. Each operation runs
// in its own ephemeral, hardened container; the feedstock directory travels in
// and out of the container as an archive stream, no bind mounts are used.
//
// # Quick Start
//
// Create a client, run operations, and release it:
//
//	client, err := lib.New(lib.Config{
//	    Image: "condaforge/feedstock-ops:latest",
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	// Lint a feedstock.
//	lints, err := client.Lint(ctx, "/path/to/numpy-feedstock", nil)
//
//	// Rerender it in place (.git is never touched).
//	res, err := client.Rerender(ctx, "/path/to/numpy-feedstock", nil)
//	if res.Changed {
//	    fmt.Println(res.CommitMessage)
//	}
//
// # Arbitrary Operations
//
// [Client.RunOperation] runs any operation the container image's entrypoint
// supports and returns its raw JSON result data:
//
//	data, err := client.RunOperation(ctx, lib.RunOperationOpts{
//	    Operation: "parse-package-and-feedstock-names",
//	    Mount:     &lib.Mount{HostPath: "/path/to/feedstock", ReadOnly: true},
//	})
//
// # Error Handling
//
// All methods return errors that can be inspected with [errors.Is]:
//
//   - [ErrLaunch]: The container could not be started (image pull, creation).
//   - [ErrTimeout]: The operation exceeded its wall-clock limit.
//   - [ErrCancelled]: The caller's context was cancelled mid-operation.
//   - [ErrOutputProtocol]: The container produced bytes that are not a valid
//     output archive.
//   - [ErrNotValid]: Invalid input (bad mount name, missing image).
//
// A failure reported by the operation itself (nonzero exit, error field in the
// result) surfaces as a [ContainerRuntimeError].
//
// # Write-back Guarantees
//
// A writable mount's host directory is only modified after the operation
// completed successfully; on any failure it is left untouched. Read-only
// mounts are never modified.
//
// # Thread Safety
//
// A [Client] is safe for concurrent use from multiple goroutines. Concurrent
// operations must not target overlapping host directories.
package lib
