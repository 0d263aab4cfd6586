package gateway

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/vinayprograms/agentgrid/errors"
	"github.com/vinayprograms/agentgrid/identity"
	"github.com/vinayprograms/agentgrid/logging"
	"github.com/vinayprograms/agentgrid/registry"
	"github.com/vinayprograms/agentgrid/routing"
	"github.com/vinayprograms/agentgrid/runtime"
	"github.com/vinayprograms/agentgrid/transport"
)

func quietLogger() *logging.Logger {
	log := logging.New()
	log.SetOutput(io.Discard)
	return log
}

func newGateway(t *testing.T) *Gateway {
	t.Helper()
	g := New(Config{Logger: quietLogger()})
	t.Cleanup(func() { g.Close() })
	return g
}

func newWorker(t *testing.T) *runtime.Worker {
	t.Helper()
	w, err := runtime.NewWorker(runtime.Config{
		RPCTimeout:        2 * time.Second,
		SweepInterval:     50 * time.Millisecond,
		HeartbeatInterval: time.Hour,
		Logger:            quietLogger(),
	})
	if err != nil {
		t.Fatalf("NewWorker error: %v", err)
	}
	return w
}

// connect attaches a worker to the gateway over an in-memory pipe and waits
// until it is operating.
func connect(t *testing.T, g *Gateway, w *runtime.Worker) {
	t.Helper()
	gatewayEnd, workerEnd := transport.NewPipe(transport.Config{})

	if _, err := g.Attach(gatewayEnd); err != nil {
		t.Fatalf("Attach error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go w.Run(ctx, workerEnd)

	deadline := time.Now().Add(2 * time.Second)
	for w.State() != runtime.StateOperating {
		if time.Now().After(deadline) {
			t.Fatalf("worker stuck in state %s", w.State())
		}
		time.Sleep(time.Millisecond)
	}
	// Let the register envelopes land before routing anything.
	time.Sleep(20 * time.Millisecond)
}

func echoFactory(id identity.AgentID, m runtime.Messenger) (runtime.Agent, error) {
	return runtime.NewHandlerAgent().
		HandleMethod("echo", func(ctx context.Context, payload []byte) ([]byte, error) {
			return payload, nil
		}), nil
}

// An event published by one worker reaches the subscribed agent hosted on
// another.
func TestPublishReachesSubscriber(t *testing.T) {
	g := newGateway(t)
	g.Subscribe(routing.NewTypeSubscription("ticks", "tick", "Recorder"))

	received := make(chan []byte, 1)
	host := newWorker(t)
	host.RegisterAgentType("Recorder", func(id identity.AgentID, m runtime.Messenger) (runtime.Agent, error) {
		return runtime.NewHandlerAgent().
			HandleEvent("tick", func(ctx context.Context, topic identity.TopicID, payload []byte) error {
				received <- payload
				return nil
			}), nil
	})
	connect(t, g, host)

	publisher := newWorker(t)
	connect(t, g, publisher)

	topic := identity.TopicID{Type: "tick", Source: "sensor-1"}
	if err := publisher.PublishEvent(context.Background(), topic, []byte("42")); err != nil {
		t.Fatalf("PublishEvent error: %v", err)
	}

	select {
	case payload := <-received:
		if string(payload) != "42" {
			t.Errorf("received %q, want 42", payload)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("event never reached the subscriber")
	}
}

// Overlapping subscriptions resolving to two agents placed on the same
// worker: one envelope carries both targets and each agent sees the event
// exactly once.
func TestPublishCoLocatedTargetsDeliveredOnce(t *testing.T) {
	g := newGateway(t)
	subA := routing.NewFuncSubscription("a",
		func(topic identity.TopicID) bool { return topic.Type == "tick" },
		func(topic identity.TopicID) identity.AgentID {
			return identity.AgentID{Type: "Counter", Key: "a"}
		})
	subB := routing.NewFuncSubscription("b",
		func(topic identity.TopicID) bool { return topic.Type == "tick" },
		func(topic identity.TopicID) identity.AgentID {
			return identity.AgentID{Type: "Counter", Key: "b"}
		})
	g.Subscribe(subA)
	g.Subscribe(subB)

	hits := make(chan string, 4)
	host := newWorker(t)
	host.RegisterAgentType("Counter", func(id identity.AgentID, m runtime.Messenger) (runtime.Agent, error) {
		key := id.Key
		return runtime.NewHandlerAgent().
			HandleEvent("tick", func(ctx context.Context, topic identity.TopicID, payload []byte) error {
				hits <- key
				return nil
			}), nil
	})
	connect(t, g, host)

	publisher := newWorker(t)
	connect(t, g, publisher)

	publisher.PublishEvent(context.Background(),
		identity.TopicID{Type: "tick", Source: "s"}, nil)

	seen := map[string]int{}
	for i := 0; i < 2; i++ {
		select {
		case key := <-hits:
			seen[key]++
		case <-time.After(2 * time.Second):
			t.Fatalf("only %v deliveries arrived", seen)
		}
	}
	select {
	case key := <-hits:
		t.Fatalf("duplicate delivery to %s", key)
	case <-time.After(100 * time.Millisecond):
	}
	if seen["a"] != 1 || seen["b"] != 1 {
		t.Errorf("deliveries = %v, want one each for a and b", seen)
	}
}

// Two targets of one topic placed on different workers, both workers able
// to host both types: each target is activated only on the worker it is
// placed on, never on the other one.
func TestPublishSplitPlacementActivatesOncePerTarget(t *testing.T) {
	g := newGateway(t)
	g.Subscribe(routing.NewTypeSubscription("warm", "warm", "Counter"))
	g.Subscribe(routing.NewTypeSubscription("counters", "tick", "Counter"))
	g.Subscribe(routing.NewTypeSubscription("beacons", "tick", "Beacon"))

	hits := make(chan string, 8)
	record := func(worker string) runtime.Factory {
		return func(id identity.AgentID, m runtime.Messenger) (runtime.Agent, error) {
			note := func(ctx context.Context, topic identity.TopicID, payload []byte) error {
				hits <- worker + ":" + id.Type + "/" + id.Key
				return nil
			}
			return runtime.NewHandlerAgent().
				HandleEvent("warm", note).
				HandleEvent("tick", note), nil
		}
	}

	// Only w1 is connected for the warm-up publish, pinning Counter/s there.
	w1 := newWorker(t)
	w1.RegisterAgentType("Counter", record("w1"))
	connect(t, g, w1)

	if err := w1.PublishEvent(context.Background(),
		identity.TopicID{Type: "warm", Source: "s"}, nil); err != nil {
		t.Fatalf("warm-up PublishEvent error: %v", err)
	}
	select {
	case got := <-hits:
		if got != "w1:Counter/s" {
			t.Fatalf("warm-up delivery = %q, want w1:Counter/s", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("warm-up event never delivered")
	}

	// w2 also hosts Counter, but Beacon/s can only place on w2.
	w2 := newWorker(t)
	w2.RegisterAgentType("Counter", record("w2"))
	w2.RegisterAgentType("Beacon", record("w2"))
	connect(t, g, w2)

	if err := w1.PublishEvent(context.Background(),
		identity.TopicID{Type: "tick", Source: "s"}, nil); err != nil {
		t.Fatalf("PublishEvent error: %v", err)
	}

	seen := map[string]int{}
	for i := 0; i < 2; i++ {
		select {
		case got := <-hits:
			seen[got]++
		case <-time.After(2 * time.Second):
			t.Fatalf("only %v deliveries arrived", seen)
		}
	}
	select {
	case got := <-hits:
		t.Fatalf("extra delivery to %s", got)
	case <-time.After(100 * time.Millisecond):
	}
	if seen["w1:Counter/s"] != 1 || seen["w2:Beacon/s"] != 1 {
		t.Errorf("deliveries = %v, want w1:Counter/s and w2:Beacon/s once each", seen)
	}
}

// RPC round trip between two workers through the gateway.
func TestCallAcrossWorkers(t *testing.T) {
	g := newGateway(t)

	host := newWorker(t)
	host.RegisterAgentType("Echo", echoFactory)
	connect(t, g, host)

	caller := newWorker(t)
	connect(t, g, caller)

	payload, err := caller.Call(context.Background(),
		identity.AgentID{Type: "Echo", Key: "e"}, "echo", []byte(`"ping"`))
	if err != nil {
		t.Fatalf("Call error: %v", err)
	}
	if string(payload) != `"ping"` {
		t.Errorf("Call payload = %s, want \"ping\"", payload)
	}
	if g.PendingRoutes() != 0 {
		t.Errorf("PendingRoutes = %d after round trip, want 0", g.PendingRoutes())
	}
}

// Calling a type nobody hosts fails fast with a placement error, shaped
// like any other remote error.
func TestCallUnhostedType(t *testing.T) {
	g := newGateway(t)
	caller := newWorker(t)
	connect(t, g, caller)

	_, err := caller.Call(context.Background(),
		identity.AgentID{Type: "Nobody", Key: "n"}, "m", nil)
	if !errors.Is(err, errors.ErrCodePlacementFailed) {
		t.Fatalf("Call error = %v, want PLACEMENT_FAILED", err)
	}
	if !errors.IsRetryable(err) {
		t.Error("placement failure should be retryable")
	}
}

// A worker dying with requests forwarded to it: the callers get a
// worker-unavailable error instead of waiting out the full RPC timeout.
func TestHostDisconnectBreaksForwardedRequests(t *testing.T) {
	g := newGateway(t)

	release := make(chan struct{})
	t.Cleanup(func() { close(release) })

	host := newWorker(t)
	host.RegisterAgentType("Slow", func(id identity.AgentID, m runtime.Messenger) (runtime.Agent, error) {
		return runtime.NewHandlerAgent().
			HandleMethod("wait", func(ctx context.Context, payload []byte) ([]byte, error) {
				<-release
				return nil, nil
			}), nil
	})

	gatewayEnd, workerEnd := transport.NewPipe(transport.Config{})
	g.Attach(gatewayEnd)
	hostCtx, stopHost := context.WithCancel(context.Background())
	go host.Run(hostCtx, workerEnd)
	defer stopHost()

	caller := newWorker(t)
	connect(t, g, caller)

	callErr := make(chan error, 1)
	go func() {
		_, err := caller.Call(context.Background(),
			identity.AgentID{Type: "Slow", Key: "s"}, "wait", nil)
		callErr <- err
	}()

	deadline := time.Now().Add(2 * time.Second)
	for g.PendingRoutes() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("request never forwarded")
		}
		time.Sleep(time.Millisecond)
	}

	workerEnd.Close()

	select {
	case err := <-callErr:
		if !errors.Is(err, errors.ErrCodeWorkerUnavailable) {
			t.Fatalf("Call error = %v, want WORKER_UNAVAILABLE", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("caller still waiting after host disconnect")
	}
	if g.PendingRoutes() != 0 {
		t.Errorf("PendingRoutes = %d, want 0", g.PendingRoutes())
	}
}

// After a host disconnects, the next call re-places the agent on a
// surviving worker that supports the type.
func TestRePlacementAfterDisconnect(t *testing.T) {
	g := newGateway(t)

	first := newWorker(t)
	first.RegisterAgentType("Echo", echoFactory)
	gatewayEnd, workerEnd := transport.NewPipe(transport.Config{})
	g.Attach(gatewayEnd)
	firstCtx, stopFirst := context.WithCancel(context.Background())
	go first.Run(firstCtx, workerEnd)
	defer stopFirst()
	time.Sleep(50 * time.Millisecond)

	caller := newWorker(t)
	connect(t, g, caller)

	target := identity.AgentID{Type: "Echo", Key: "sticky"}
	if _, err := caller.Call(context.Background(), target, "echo", []byte("1")); err != nil {
		t.Fatalf("first Call error: %v", err)
	}

	second := newWorker(t)
	second.RegisterAgentType("Echo", echoFactory)
	connect(t, g, second)

	workerEnd.Close()
	deadline := time.Now().Add(2 * time.Second)
	for g.Workers() != 2 {
		if time.Now().After(deadline) {
			t.Fatal("disconnected worker never detached")
		}
		time.Sleep(time.Millisecond)
	}

	payload, err := caller.Call(context.Background(), target, "echo", []byte("2"))
	if err != nil {
		t.Fatalf("re-placed Call error: %v", err)
	}
	if string(payload) != "2" {
		t.Errorf("re-placed Call payload = %s, want 2", payload)
	}
}

// A silent connection is purged by the liveness sweep and detached.
func TestLivenessPurgeDetaches(t *testing.T) {
	reg := registry.NewMemoryRegistry(registry.Config{
		LivenessTimeout: 60 * time.Millisecond,
		SweepInterval:   20 * time.Millisecond,
	})
	g := New(Config{Registry: reg, Logger: quietLogger()})
	t.Cleanup(func() { g.Close() })

	gatewayEnd, workerEnd := transport.NewPipe(transport.Config{})
	g.Attach(gatewayEnd)
	if g.Workers() != 1 {
		t.Fatalf("Workers = %d, want 1", g.Workers())
	}

	deadline := time.Now().Add(2 * time.Second)
	for g.Workers() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("silent worker never purged")
		}
		time.Sleep(5 * time.Millisecond)
	}

	// The worker end observes the teardown as a closed connection.
	select {
	case _, ok := <-workerEnd.Recv():
		if ok {
			t.Error("expected closed recv channel")
		}
	case <-time.After(time.Second):
		t.Error("worker end still open after purge")
	}
}

// Heartbeat traffic keeps an otherwise idle worker alive across sweeps.
func TestHeartbeatKeepsWorkerAlive(t *testing.T) {
	reg := registry.NewMemoryRegistry(registry.Config{
		LivenessTimeout: 100 * time.Millisecond,
		SweepInterval:   25 * time.Millisecond,
	})
	g := New(Config{Registry: reg, Logger: quietLogger()})
	t.Cleanup(func() { g.Close() })

	w, err := runtime.NewWorker(runtime.Config{
		HeartbeatInterval: 30 * time.Millisecond,
		Logger:            quietLogger(),
	})
	if err != nil {
		t.Fatalf("NewWorker error: %v", err)
	}
	connect(t, g, w)

	time.Sleep(400 * time.Millisecond)
	if g.Workers() != 1 {
		t.Errorf("Workers = %d after heartbeats, want 1", g.Workers())
	}
}

// Partial delivery: one resolvable target and one unplaceable target on
// the same topic. The resolvable one is delivered, the other is skipped.
func TestPublishPartialDelivery(t *testing.T) {
	g := newGateway(t)
	g.Subscribe(routing.NewTypeSubscription("hosted", "tick", "Hosted"))
	g.Subscribe(routing.NewTypeSubscription("ghost", "tick", "Ghost"))

	received := make(chan struct{}, 1)
	host := newWorker(t)
	host.RegisterAgentType("Hosted", func(id identity.AgentID, m runtime.Messenger) (runtime.Agent, error) {
		return runtime.NewHandlerAgent().
			HandleEvent("tick", func(ctx context.Context, topic identity.TopicID, payload []byte) error {
				received <- struct{}{}
				return nil
			}), nil
	})
	connect(t, g, host)

	publisher := newWorker(t)
	connect(t, g, publisher)

	if err := publisher.PublishEvent(context.Background(),
		identity.TopicID{Type: "tick", Source: "s"}, nil); err != nil {
		t.Fatalf("PublishEvent error: %v", err)
	}

	select {
	case <-received:
	case <-time.After(2 * time.Second):
		t.Fatal("hosted target never received the event")
	}
}
