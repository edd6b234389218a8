package main

import (
	"bytes"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/klauspost/compress/gzip"
)

// EventEnvelope is the tagged union pushed to every connected client,
// spec.md §6's "Outbound events to surrounding system". Exhaustive
// tagging per spec.md §9's dynamic-dispatch redesign note: every event
// kind is a named constant, never an ad-hoc string.
type EventKind string

const (
	EventModeChanged          EventKind = "modeChanged"
	EventSlotStart            EventKind = "slotStart"
	EventSubWindow            EventKind = "subWindow"
	EventSlotPackUpdated      EventKind = "slotPackUpdated"
	EventSpectrumData         EventKind = "spectrumData"
	EventDecodeError          EventKind = "decodeError"
	EventSystemStatus         EventKind = "systemStatus"
	EventTransmissionLog      EventKind = "transmissionLog"
	EventOperatorStatusUpdate EventKind = "operatorStatusUpdate"
	EventRadioStatusChanged   EventKind = "radioStatusChanged"
	EventPTTStatusChanged     EventKind = "pttStatusChanged"
)

type EventEnvelope struct {
	Kind    EventKind   `json:"kind"`
	Payload interface{} `json:"payload"`
}

// Command is the inbound counterpart, spec.md §6's "Inbound commands".
type CommandKind string

const (
	CmdStartEngine              CommandKind = "startEngine"
	CmdStopEngine                CommandKind = "stopEngine"
	CmdSetMode                  CommandKind = "setMode"
	CmdGetStatus                CommandKind = "getStatus"
	CmdStartOperator             CommandKind = "startOperator"
	CmdStopOperator              CommandKind = "stopOperator"
	CmdSetOperatorContext        CommandKind = "setOperatorContext"
	CmdSetOperatorSlot           CommandKind = "setOperatorSlot"
	CmdSetClientEnabledOperators CommandKind = "setClientEnabledOperators"
	CmdOperatorRequestCall       CommandKind = "operatorRequestCall"
	CmdSetVolumeGain             CommandKind = "setVolumeGain"
	CmdForceStopTransmission     CommandKind = "forceStopTransmission"
)

type Command struct {
	Kind CommandKind     `json:"kind"`
	Args json.RawMessage `json:"args"`
}

// CommandHandler processes one inbound command and optionally replies.
type CommandHandler func(cmd Command) (interface{}, error)

var upgrader = websocket.Upgrader{
	ReadBufferSize:    8192,
	WriteBufferSize:   65536,
	EnableCompression: false,
	CheckOrigin:       func(r *http.Request) bool { return true },
}

// EventBus is C13: the thin websocket boundary fanning engine events out
// to UIs and accepting control commands back in. Grounded on the
// teacher's wsConn buffered-writer-goroutine pattern (deleted
// websocket.go): one writer goroutine per connection draining a
// buffered channel, so a slow client never blocks event production.
// When compression is enabled, each encoded event frame is gzipped with
// klauspost/compress's gzip rather than the standard library's.
type EventBus struct {
	handlersMu sync.RWMutex
	handlers   map[CommandKind]CommandHandler

	connsMu sync.Mutex
	conns   map[*busConn]struct{}

	compress     bool
	bufferEvents int
}

type busConn struct {
	conn      *websocket.Conn
	writeMu   sync.Mutex
	outbox    chan []byte
	done      chan struct{}
}

// NewEventBus builds a bus. bufferEvents sizes each connection's
// outbound channel.
func NewEventBus(compress bool, bufferEvents int) *EventBus {
	if bufferEvents <= 0 {
		bufferEvents = 64
	}
	return &EventBus{
		handlers:     make(map[CommandKind]CommandHandler),
		conns:        make(map[*busConn]struct{}),
		compress:     compress,
		bufferEvents: bufferEvents,
	}
}

// HandleCommand registers the handler invoked for an inbound command
// kind, spec.md §6.
func (b *EventBus) HandleCommand(kind CommandKind, h CommandHandler) {
	b.handlersMu.Lock()
	defer b.handlersMu.Unlock()
	b.handlers[kind] = h
}

// ServeHTTP upgrades the connection and runs its read/write loops.
func (b *EventBus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("event bus: upgrade failed: %v", err)
		return
	}

	bc := &busConn{
		conn:   conn,
		outbox: make(chan []byte, b.bufferEvents),
		done:   make(chan struct{}),
	}
	b.connsMu.Lock()
	b.conns[bc] = struct{}{}
	b.connsMu.Unlock()

	go b.writeLoop(bc)
	b.readLoop(bc)

	b.connsMu.Lock()
	delete(b.conns, bc)
	b.connsMu.Unlock()
	close(bc.outbox)
	<-bc.done
	conn.Close()
}

func (b *EventBus) writeLoop(bc *busConn) {
	defer close(bc.done)
	for msg := range bc.outbox {
		bc.writeMu.Lock()
		bc.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		err := bc.conn.WriteMessage(websocket.TextMessage, msg)
		bc.writeMu.Unlock()
		if err != nil {
			return
		}
	}
}

func (b *EventBus) readLoop(bc *busConn) {
	for {
		_, data, err := bc.conn.ReadMessage()
		if err != nil {
			return
		}
		var cmd Command
		if err := json.Unmarshal(data, &cmd); err != nil {
			log.Printf("event bus: malformed command: %v", err)
			continue
		}
		b.dispatch(bc, cmd)
	}
}

func (b *EventBus) dispatch(bc *busConn, cmd Command) {
	b.handlersMu.RLock()
	h, ok := b.handlers[cmd.Kind]
	b.handlersMu.RUnlock()
	if !ok {
		log.Printf("event bus: no handler for command %q", cmd.Kind)
		return
	}
	reply, err := h(cmd)
	if err != nil {
		b.sendTo(bc, EventEnvelope{Kind: EventSystemStatus, Payload: map[string]string{"error": err.Error()}})
		return
	}
	if reply != nil {
		b.sendTo(bc, EventEnvelope{Kind: EventSystemStatus, Payload: reply})
	}
}

// Broadcast fans an event out to every connected client.
func (b *EventBus) Broadcast(ev EventEnvelope) {
	data, err := b.encode(ev)
	if err != nil {
		log.Printf("event bus: encode failed: %v", err)
		return
	}

	b.connsMu.Lock()
	defer b.connsMu.Unlock()
	for bc := range b.conns {
		select {
		case bc.outbox <- data:
		default:
			log.Printf("event bus: client backlogged, dropping %s event", ev.Kind)
		}
	}
}

func (b *EventBus) sendTo(bc *busConn, ev EventEnvelope) {
	data, err := b.encode(ev)
	if err != nil {
		return
	}
	select {
	case bc.outbox <- data:
	default:
	}
}

func (b *EventBus) encode(ev EventEnvelope) ([]byte, error) {
	raw, err := json.Marshal(ev)
	if err != nil {
		return nil, err
	}
	if !b.compress {
		return raw, nil
	}
	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	if _, err := gw.Write(raw); err != nil {
		return nil, err
	}
	if err := gw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
