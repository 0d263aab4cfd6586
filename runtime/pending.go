package runtime

import (
	"sync"
	"time"

	"github.com/vinayprograms/agentgrid/errors"
	"github.com/vinayprograms/agentgrid/logging"
)

// callResult carries an RPC outcome to its waiting caller.
type callResult struct {
	payload []byte
	err     error
}

type pendingCall struct {
	ch      chan callResult
	created time.Time
}

// pendingTable tracks outstanding RPCs on the calling side. Entries are
// registered before the request is sent, fulfilled by the matching response
// or error frame, and broken by the timeout sweep, cancellation or drain.
type pendingTable struct {
	mu      sync.Mutex
	calls   map[string]*pendingCall
	timeout time.Duration
	log     *logging.Logger

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

func newPendingTable(timeout, sweepInterval time.Duration, log *logging.Logger) *pendingTable {
	t := &pendingTable{
		calls:   make(map[string]*pendingCall),
		timeout: timeout,
		log:     log,
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
	go t.sweepLoop(sweepInterval)
	return t
}

// register creates the pending entry for a request id and returns the
// channel its single result will arrive on.
func (t *pendingTable) register(id string) <-chan callResult {
	call := &pendingCall{
		ch:      make(chan callResult, 1),
		created: time.Now(),
	}

	t.mu.Lock()
	t.calls[id] = call
	t.mu.Unlock()

	return call.ch
}

// resolve fulfills a pending call with a response payload. A response whose
// caller is gone is dropped with a log line.
func (t *pendingTable) resolve(id string, payload []byte) {
	t.deliver(id, callResult{payload: payload})
}

// fail fulfills a pending call with an error.
func (t *pendingTable) fail(id string, err error) {
	t.deliver(id, callResult{err: err})
}

func (t *pendingTable) deliver(id string, res callResult) {
	t.mu.Lock()
	call, exists := t.calls[id]
	if exists {
		delete(t.calls, id)
	}
	t.mu.Unlock()

	if !exists {
		t.log.LateResponse(id)
		return
	}
	call.ch <- res
}

// remove drops a pending entry without delivering a result. Used when the
// caller cancels; any response arriving afterwards is treated as late.
func (t *pendingTable) remove(id string) {
	t.mu.Lock()
	delete(t.calls, id)
	t.mu.Unlock()
}

// failAll breaks every pending call with the same error. Used on drain and
// on transport loss.
func (t *pendingTable) failAll(err error) {
	t.mu.Lock()
	calls := t.calls
	t.calls = make(map[string]*pendingCall)
	t.mu.Unlock()

	for _, call := range calls {
		call.ch <- callResult{err: err}
	}
}

// len returns the number of outstanding calls.
func (t *pendingTable) len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.calls)
}

func (t *pendingTable) close() {
	t.stopOnce.Do(func() { close(t.stopCh) })
	<-t.doneCh
}

func (t *pendingTable) sweepLoop(interval time.Duration) {
	defer close(t.doneCh)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			t.sweep()
		case <-t.stopCh:
			return
		}
	}
}

// sweep breaks every call older than the timeout. The error is shaped like
// a remote error so callers handle local and remote timeouts identically.
func (t *pendingTable) sweep() {
	now := time.Now()

	t.mu.Lock()
	var expired []string
	var ages []time.Duration
	for id, call := range t.calls {
		if age := now.Sub(call.created); age > t.timeout {
			expired = append(expired, id)
			ages = append(ages, age)
		}
	}
	calls := make([]*pendingCall, 0, len(expired))
	for _, id := range expired {
		calls = append(calls, t.calls[id])
		delete(t.calls, id)
	}
	t.mu.Unlock()

	for i, id := range expired {
		t.log.RPCTimeout(id, ages[i])
		calls[i].ch <- callResult{err: errors.Timeout(id)}
	}
}
