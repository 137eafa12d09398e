// Package llm defines the conversation types shared by the chat service and
// the streaming chat-completion interface the orchestration client runs on.
package llm
