// Package chat 实现单轮对话编排：记录用户输入、调用编排客户端、渲染流式回复并回写对话记录。
package chat
