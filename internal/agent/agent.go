package agent

import (
	"encoding/binary"
	"sync"
	"sync/atomic"

	"github.com/zbum/purespice-go/internal/spiceapi"
)

// Agent is the guest-agent state owned by the MAIN channel: presence,
// token-gated outbound queue, capability flags, and clipboard ownership
// (spec.md §4 "Data model", Agent state).
type Agent struct {
	mu      sync.Mutex
	present bool
	queue   [][]byte
	inbound inboundState

	byDemand  bool
	selection bool

	clipboard clipboardState

	tokens atomic.Int32

	cb spiceapi.ClipboardCallbacks
}

// New constructs an idle Agent; Start brings it up once the server
// signals agent-connected.
func New(cb spiceapi.ClipboardCallbacks) *Agent {
	return &Agent{cb: cb}
}

// Present reports whether the agent is currently connected.
func (a *Agent) Present() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.present
}

// StartBody returns the AGENT_START message body (max tokens), sent
// directly on the MAIN channel — not through the agent's own queue,
// since the agent has no tokens to spend until this message seeds them.
func StartBody(maxTokens uint32) []byte {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, maxTokens)
	return buf
}

// Start marks the agent present, (re)seeds its token budget, and queues
// the client's capability announcement (spec.md §4.5: "on agent start,
// the client sends AGENT_START... then announces its capabilities with
// request=1"). Safe to call again to restart the agent with a fresh
// token count.
func (a *Agent) Start(tokens uint32) {
	a.mu.Lock()
	a.present = true
	a.queue = nil
	a.inbound = inboundState{}
	a.clipboard = clipboardState{}
	a.enqueueMessage(MsgAnnounceCapabilities, announceCapabilitiesBody(1, CapClipboardByDemand|CapClipboardSelection))
	a.mu.Unlock()
	a.tokens.Store(int32(tokens))
}

// Stop tears down agent state on AGENT_DISCONNECTED or channel teardown;
// the agent is re-creatable via a subsequent Start (spec.md §4).
func (a *Agent) Stop() {
	a.mu.Lock()
	a.present = false
	a.queue = nil
	a.inbound = inboundState{}
	a.byDemand = false
	a.selection = false
	a.clipboard = clipboardState{}
	a.mu.Unlock()
	a.tokens.Store(0)
}

// GrantTokens adds n credits to the server-token counter (AGENT_TOKEN).
func (a *Agent) GrantTokens(n uint32) {
	a.tokens.Add(int32(n))
}

// QueueLen returns the number of carrier packets still queued to send.
func (a *Agent) QueueLen() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.queue)
}

// NextChunk pops and returns the head of the outbound carrier queue if a
// token is available, taking the token via atomic compare-and-swap
// (spec.md §4.5). Returns ok=false if there is nothing to send or no
// token is available; the token is refunded if the queue turned out to
// be empty after winning the CAS race.
func (a *Agent) NextChunk() (chunk []byte, ok bool) {
	for {
		cur := a.tokens.Load()
		if cur <= 0 {
			return nil, false
		}
		if a.tokens.CompareAndSwap(cur, cur-1) {
			break
		}
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.queue) == 0 {
		a.tokens.Add(1)
		return nil, false
	}
	chunk = a.queue[0]
	a.queue = a.queue[1:]
	return chunk, true
}

func (a *Agent) handleAnnounceCapabilitiesLocked(body []byte) error {
	if len(body) < 8 {
		return nil
	}
	request := binary.LittleEndian.Uint32(body[0:4])
	caps := binary.LittleEndian.Uint32(body[4:8])
	a.byDemand = caps&CapClipboardByDemand != 0
	a.selection = caps&CapClipboardSelection != 0
	if request != 0 {
		a.enqueueMessage(MsgAnnounceCapabilities, announceCapabilitiesBody(0, CapClipboardByDemand|CapClipboardSelection))
	}
	return nil
}

// ClipboardByDemand reports whether the server advertised on-demand
// clipboard support.
func (a *Agent) ClipboardByDemand() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.byDemand
}

// ClipboardSelection reports whether the server advertised X11-style
// multi-selection clipboard support.
func (a *Agent) ClipboardSelection() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.selection
}
