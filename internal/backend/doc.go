// Package backend is the client of the external job-execution service.
//
// The service is reached over HTTP for job submission, history lookups,
// artifact downloads and interrupts, and over an event stream that pushes
// JSON progress messages for a client session. The Client owns the session
// identity; every event stream it opens is bound to that session.
//
// A caller processes one job at a time:
//
//	stream, err := client.Connect(ctx)
//	...
//	defer stream.Close()
//	jobID, err := client.Submit(ctx, graph)
//	...
//	result, err := client.AwaitCompletion(ctx, stream, jobID)
//
// Opening a fresh stream per job guarantees that no event from an earlier
// job is observed while waiting for the next one.
//
// Two stream transports are supported: a plain websocket (the default) and
// socket.io, for services published behind a socket.io gateway.
package backend
