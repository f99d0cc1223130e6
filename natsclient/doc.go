// Package natsclient wraps a single NATS connection.
//
// Besides plain Publish/Subscribe it offers the two pieces the notification
// protocol needs: Request/Reply for the synchronous handshake channel, and
// Listen, which fans several subjects into one channel while preserving the
// order in which the connection received them. A server that owns both a
// publish channel and a sync channel through one Listen call therefore never
// sees a GOODBYE overtake the last MESSAGE sent before it.
//
// Workflow documents are stored in JetStream KV; CreateKeyValueBucket opens or
// creates a bucket and the IsKV* helpers classify the errors it returns.
//
// Integration tests start a NATS server in a container with NewTestClient.
package natsclient
