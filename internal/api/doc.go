// Package api serves the Based Agent chat page and its websocket channel.
// Each websocket connection owns one chat session; prompts are processed one
// at a time and the agent's streamed reply is pushed back as block, notice and
// done frames. The package also exposes the capability catalog, a health
// probe and Prometheus metrics.
package api
