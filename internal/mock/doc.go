// Package mock provides a fake federation node for tests and demos.
//
// A Node serves the small subset of the fediverse surface the built-in
// webclient driver talks to:
//
//   - /.well-known/webfinger: JRD documents for the configured accounts
//   - /.well-known/nodeinfo and /nodeinfo/2.1: software name and version
//   - /users/{name}: ActivityPub actor documents
//   - /users/{name}/inbox: accepts POSTed activities, lists received ones
//   - /users/{name}/outbox: a paged OrderedCollection of posted notes
//
// The node's behaviour is fixed. It is not a general purpose mocking server
// and has no scripting. Base URLs in served documents are derived from the
// request, so the same Node works behind httptest and behind a real
// listener:
//
//	node := mock.NewNode(mock.Config{Accounts: []string{"alice", "bob"}})
//	srv := httptest.NewServer(node.Handler())
//
// Server wraps a Node in a net/http listener for the mock-server command.
package mock
