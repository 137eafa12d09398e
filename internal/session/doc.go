// Package session 保存每个聊天会话的状态：对话记录、编排客户端句柄与代理钱包地址。
package session
