package api

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"

	xerrors "based-agent/internal/errors"
	"based-agent/internal/llm"
	"based-agent/internal/session"
	"based-agent/internal/stream"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const maxMessageBytes = 64 << 10

// Frame types.
const (
	FrameSession = "session"
	FrameUser    = "user"
	FrameBlock   = "block"
	FrameNotice  = "notice"
	FrameHistory = "history"
	FrameDone    = "done"
	FrameError   = "error"
)

// Client message types.
const (
	MessagePrompt = "prompt"
	MessageClear  = "clear"
)

// ClientMessage is what the page sends over the socket.
type ClientMessage struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// Frame is what the server pushes to the page.
type Frame struct {
	Type     string         `json:"type"`
	ID       int            `json:"id,omitempty"`
	Text     string         `json:"text,omitempty"`
	Session  string         `json:"session,omitempty"`
	Address  string         `json:"address,omitempty"`
	Messages []HistoryEntry `json:"messages,omitempty"`
}

// HistoryEntry is one transcript message as displayed by the page.
type HistoryEntry struct {
	Role    string `json:"role"`
	Sender  string `json:"sender,omitempty"`
	Content string `json:"content"`
}

// SafeConn serialises writes to a websocket connection.
type SafeConn struct {
	*websocket.Conn
	mu sync.Mutex
}

// WriteFrame encodes and sends one frame.
func (sc *SafeConn) WriteFrame(f Frame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return err
	}
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.Conn.WriteMessage(websocket.TextMessage, data)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	rawConn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", "error", err)
		return
	}
	conn := &SafeConn{Conn: rawConn}
	defer conn.Close()
	conn.SetReadLimit(maxMessageBytes)

	ctx := r.Context()
	sess, err := s.store.Open(ctx)
	if err != nil {
		s.log.Error("session initialization failed", "remote", r.RemoteAddr, "error", err)
		_ = conn.WriteFrame(Frame{Type: FrameError, Text: xerrors.OperatorMessage(err)})
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "session initialization failed"))
		return
	}
	defer s.store.Discard(sess.ID())

	log := s.log.With("session", sess.ID())
	log.Info("websocket session opened", "remote", r.RemoteAddr)

	if err := conn.WriteFrame(Frame{Type: FrameSession, Session: sess.ID(), Address: sess.AgentAddress()}); err != nil {
		return
	}
	if err := conn.WriteFrame(historyFrame(sess.Messages())); err != nil {
		return
	}

	renderer := &wsRenderer{conn: conn, log: log}
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn("websocket read failed", "error", err)
			}
			log.Info("websocket session closed")
			return
		}

		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			msg = ClientMessage{Type: MessagePrompt, Text: string(data)}
		}

		switch strings.ToLower(msg.Type) {
		case MessageClear:
			sess.Clear()
			log.Info("transcript cleared")
			_ = conn.WriteFrame(historyFrame(nil))
		case MessagePrompt, "":
			s.handlePrompt(ctx, renderer, sess, msg.Text)
		default:
			_ = conn.WriteFrame(Frame{Type: FrameError, Text: "unsupported message type: " + msg.Type})
		}
	}
}

func (s *Server) handlePrompt(ctx context.Context, r *wsRenderer, sess *session.Session, text string) {
	if _, err := s.loop.Submit(ctx, sess, text, r); err != nil {
		r.send(Frame{Type: FrameError, Text: xerrors.OperatorMessage(err)})
	}
	r.send(Frame{Type: FrameDone})
}

func historyFrame(messages []llm.Message) Frame {
	entries := make([]HistoryEntry, 0, len(messages))
	for _, m := range messages {
		if strings.TrimSpace(m.Content) == "" {
			continue
		}
		entries = append(entries, HistoryEntry{Role: m.Role, Sender: m.Sender, Content: m.Content})
	}
	return Frame{Type: FrameHistory, Messages: entries}
}

// wsRenderer pushes stream updates to one socket. Block ids grow for the
// lifetime of the connection. Write failures are only logged.
type wsRenderer struct {
	conn   *SafeConn
	log    *slog.Logger
	blocks int
}

func (r *wsRenderer) send(f Frame) {
	if err := r.conn.WriteFrame(f); err != nil {
		r.log.Debug("websocket write failed", "frame", f.Type, "error", err)
	}
}

func (r *wsRenderer) User(text string) {
	r.send(Frame{Type: FrameUser, Text: text})
}

func (r *wsRenderer) NewBlock() stream.Block {
	r.blocks++
	return wsBlock{r: r, id: r.blocks}
}

func (r *wsRenderer) Notice(text string) {
	r.send(Frame{Type: FrameNotice, Text: text})
}

type wsBlock struct {
	r  *wsRenderer
	id int
}

func (b wsBlock) Render(text string) {
	b.r.send(Frame{Type: FrameBlock, ID: b.id, Text: text})
}
