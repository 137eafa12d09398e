package stream

import "sync"

// Event is one call observed by a Recorder.
type Event struct {
	Kind  string
	Block int
	Text  string
}

// Event kinds.
const (
	EventUser   = "user"
	EventBlock  = "block"
	EventRender = "render"
	EventNotice = "notice"
)

// Recorder is a Renderer that keeps every call in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
	blocks int
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) record(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

// User records a user message.
func (r *Recorder) User(text string) {
	r.record(Event{Kind: EventUser, Text: text})
}

// NewBlock records the opening of a block.
func (r *Recorder) NewBlock() Block {
	r.mu.Lock()
	r.blocks++
	id := r.blocks
	r.events = append(r.events, Event{Kind: EventBlock, Block: id})
	r.mu.Unlock()
	return recordedBlock{r: r, id: id}
}

// Notice records a tool-invocation notice.
func (r *Recorder) Notice(text string) {
	r.record(Event{Kind: EventNotice, Text: text})
}

// Events returns a copy of everything recorded so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Renders returns the texts rendered into blocks, in order.
func (r *Recorder) Renders() []Event {
	var out []Event
	for _, ev := range r.Events() {
		if ev.Kind == EventRender {
			out = append(out, ev)
		}
	}
	return out
}

// Notices returns the recorded notice texts.
func (r *Recorder) Notices() []string {
	var out []string
	for _, ev := range r.Events() {
		if ev.Kind == EventNotice {
			out = append(out, ev.Text)
		}
	}
	return out
}

type recordedBlock struct {
	r  *Recorder
	id int
}

func (b recordedBlock) Render(text string) {
	b.r.record(Event{Kind: EventRender, Block: b.id, Text: text})
}
