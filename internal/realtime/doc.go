// Package realtime carries "task updated" notifications from the backend to
// connected clients.
//
// Producers depend only on Publisher. The Hub fans events out to in-process
// subscribers (the SSE stream handler), and the Gateway issues the
// short-lived tokens that bind a client socket to one task channel before
// it may subscribe.
package realtime
