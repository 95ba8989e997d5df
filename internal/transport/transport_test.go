package transport

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestEnvelope_WireShape(t *testing.T) {
	envelope := NewEnvelope("analyzer.request", Header{Token: "tok", TraceID: "trace-1"}, map[string]string{"run_id": "r1"})

	body, err := json.Marshal(envelope)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(body, &decoded); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	header, ok := decoded["header"].(map[string]any)
	if !ok {
		t.Fatal("header object missing")
	}
	if header["token"] != "tok" {
		t.Errorf("unexpected token: %v", header["token"])
	}
	if header["traceId"] != "trace-1" {
		t.Errorf("unexpected traceId: %v", header["traceId"])
	}
	if decoded["type"] != "analyzer.request" {
		t.Errorf("unexpected type: %v", decoded["type"])
	}
}

func TestMemoryTransport_RoundTrip(t *testing.T) {
	broker := NewBroker()
	tr := broker.Transport(EndpointOrchestrator, testLogger())

	type testPayload struct {
		RunID string `json:"run_id"`
	}

	sent := NewEnvelope("analyzer.result", Header{Token: "tok", TraceID: "trace-1"}, testPayload{RunID: "r-1"})
	if err := tr.Send(context.Background(), sent); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	received := make(chan *Envelope, 1)
	go tr.Subscribe(ctx, func(_ context.Context, e *Envelope) error {
		received <- e
		return nil
	})

	select {
	case e := <-received:
		if e.ID != sent.ID {
			t.Errorf("expected id %s, got %s", sent.ID, e.ID)
		}
		if e.Header.Token != "tok" || e.Header.TraceID != "trace-1" {
			t.Errorf("header lost in transit: %+v", e.Header)
		}
		// After transit the payload is a generic map, like on a real broker.
		payload, err := ParsePayload[testPayload](e)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if payload.RunID != "r-1" {
			t.Errorf("unexpected payload: %+v", payload)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
	}
}

func TestMemoryTransport_RedeliversOnHandlerError(t *testing.T) {
	broker := NewBroker()
	tr := broker.Transport("analyzer", testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls atomic.Int32
	done := make(chan struct{})
	go tr.Subscribe(ctx, func(_ context.Context, _ *Envelope) error {
		if calls.Add(1) < 3 {
			return errors.New("transient failure")
		}
		close(done)
		return nil
	})

	envelope := NewEnvelope("analyzer.request", Header{}, map[string]string{"run_id": "r-1"})
	if err := tr.Send(ctx, envelope); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("message was not redelivered")
	}
	if calls.Load() != 3 {
		t.Errorf("expected 3 deliveries, got %d", calls.Load())
	}
}

func TestMemoryTransport_DropsAfterRepeatedFailures(t *testing.T) {
	broker := NewBroker()
	tr := broker.Transport("scanner", testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls atomic.Int32
	go tr.Subscribe(ctx, func(_ context.Context, _ *Envelope) error {
		calls.Add(1)
		return errors.New("permanent failure")
	})

	envelope := NewEnvelope("scanner.request", Header{}, map[string]string{"run_id": "r-1"})
	if err := tr.Send(ctx, envelope); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for calls.Load() < memoryMaxDeliveries && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	// Give the loop a chance to over-deliver, then check the cap held.
	time.Sleep(50 * time.Millisecond)
	if calls.Load() != memoryMaxDeliveries {
		t.Errorf("expected %d deliveries, got %d", memoryMaxDeliveries, calls.Load())
	}
}

func TestMemoryTransport_CompetingConsumers(t *testing.T) {
	broker := NewBroker()
	sender := broker.Transport("advisor", testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	const total = 20
	var mu sync.Mutex
	seen := make(map[string]int)
	var wg sync.WaitGroup
	wg.Add(total)

	handler := func(_ context.Context, e *Envelope) error {
		mu.Lock()
		seen[e.ID]++
		mu.Unlock()
		wg.Done()
		return nil
	}

	go broker.Transport("advisor", testLogger()).Subscribe(ctx, handler)
	go broker.Transport("advisor", testLogger()).Subscribe(ctx, handler)

	for i := 0; i < total; i++ {
		envelope := NewEnvelope("advisor.request", Header{}, map[string]string{"run_id": "r"})
		if err := sender.Send(ctx, envelope); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	waited := make(chan struct{})
	go func() {
		wg.Wait()
		close(waited)
	}()
	select {
	case <-waited:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for consumers")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != total {
		t.Errorf("expected %d distinct messages, got %d", total, len(seen))
	}
	for id, count := range seen {
		if count != 1 {
			t.Errorf("message %s processed %d times", id, count)
		}
	}
}

func TestFactory_MemoryEndpoints(t *testing.T) {
	t.Setenv("CONVEYOR_TRANSPORT_TYPE", "memory")
	t.Setenv("CONVEYOR_TRANSPORT_TOKEN", "global-token")
	t.Setenv("CONVEYOR_TRANSPORT_ANALYZER_TOKEN", "analyzer-token")

	factory := NewFactory(testLogger())
	defer factory.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sender, err := factory.ForEndpoint(ctx, "analyzer")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	receiver, err := factory.ForEndpoint(ctx, "analyzer")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Both transports must share one broker or messages would be lost.
	received := make(chan *Envelope, 1)
	go receiver.Subscribe(ctx, func(_ context.Context, e *Envelope) error {
		received <- e
		return nil
	})

	envelope := NewEnvelope("analyzer.request", Header{Token: factory.Token("analyzer")}, map[string]string{"run_id": "r"})
	if err := sender.Send(ctx, envelope); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	select {
	case e := <-received:
		if e.Header.Token != "analyzer-token" {
			t.Errorf("expected endpoint-scoped token, got %q", e.Header.Token)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
	}

	if factory.Token("orchestrator") != "global-token" {
		t.Errorf("expected global token fallback, got %q", factory.Token("orchestrator"))
	}
}

func TestFactory_UnknownType(t *testing.T) {
	t.Setenv("CONVEYOR_TRANSPORT_TYPE", "kafka")

	factory := NewFactory(testLogger())
	if _, err := factory.ForEndpoint(context.Background(), "analyzer"); !errors.Is(err, ErrUnknownType) {
		t.Errorf("expected ErrUnknownType, got %v", err)
	}
}

func TestEndpoint_QueueName(t *testing.T) {
	if got := EndpointOrchestrator.QueueName(); got != "conveyor.orchestrator" {
		t.Errorf("unexpected queue name: %s", got)
	}
}
