// Package framegraph schedules one frame of GPU work from a declarative graph
// of passes and the resources they read and write.
//
// # Overview
//
// Client code declares passes once per frame. Each pass states which
// textures and buffers it reads and writes, in which access state and on
// which subresource, and supplies a callback that records commands. The
// graph then decides:
//   - which passes and resources are needed (everything that does not feed a
//     presented resource or a pinned pass is culled)
//   - when each transient resource is allocated and which memory it shares
//     with resources whose lifetimes do not overlap
//   - which barriers and cross-queue fence waits and signals are required
//   - the order in which recorded work is submitted to the primary and
//     async-compute queues
//
// # Quick Start
//
//	g := framegraph.New(dev)
//
//	type gbuffer struct{ albedo framegraph.Handle }
//	gb := framegraph.AddPass(g, "gbuffer", framegraph.KindGraphics,
//	    func(b *framegraph.PassBuilder, d *gbuffer) {
//	        d.albedo = b.CreateTexture("albedo", albedoDesc)
//	        d.albedo = b.WriteColor(d.albedo, 0, framegraph.Attachment{LoadOp: gputypes.LoadOpClear})
//	    },
//	    func(ctx *framegraph.ExecContext, d *gbuffer) {
//	        // record draws into ctx.Cmd()
//	    })
//
//	g.Present(gb.Data.albedo, device.AccessPresent)
//	if err := g.Compile(); err != nil { ... }
//	sub, err := g.Execute(gfxCmd, nil)
//	// submit sub.Primary and sub.Async
//	g.Clear()
//
// # Frame Protocol
//
// Every frame runs Clear, declaration, Compile and Execute in that order on
// one goroutine. Handles and pass data are valid until the next Clear.
//
// # Errors
//
// A malformed graph is a bug in calling code. Invalid or stale handles,
// conflicting attachments and calls in the wrong phase panic with an error
// wrapping one of the package's sentinel errors. Device failures are
// returned from Compile and Execute.
//
// # Logging
//
// The package is silent by default. See [SetLogger].
package framegraph
