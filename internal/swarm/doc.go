// Package swarm runs a lightweight multi-agent conversation loop on top of a
// streaming chat-completion client. Each turn streams the model's deltas as
// fragments, executes the requested tool calls, follows agent hand-offs and
// finishes with a single terminal response fragment that carries every
// message produced during the run.
package swarm
