package queue

import (
	"context"
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
)

// setupTestNATS creates an embedded NATS server for testing
func setupTestNATS(t *testing.T) (string, func()) {
	opts := &server.Options{
		Host: "127.0.0.1",
		Port: -1, // Random port
	}

	ns, err := server.NewServer(opts)
	if err != nil {
		t.Fatalf("Failed to create NATS server: %v", err)
	}

	go ns.Start()

	if !ns.ReadyForConnections(5 * time.Second) {
		t.Fatal("NATS server not ready")
	}

	cleanup := func() {
		ns.Shutdown()
		ns.WaitForShutdown()
	}
	return ns.ClientURL(), cleanup
}

func subscribeSync(t *testing.T, url, subject string) *nats.Subscription {
	t.Helper()
	conn, err := nats.Connect(url)
	if err != nil {
		t.Fatalf("Failed to connect subscriber: %v", err)
	}
	t.Cleanup(conn.Close)

	sub, err := conn.SubscribeSync(subject)
	if err != nil {
		t.Fatalf("Failed to subscribe: %v", err)
	}
	if err := conn.Flush(); err != nil {
		t.Fatalf("Failed to flush subscription: %v", err)
	}
	return sub
}

func TestNATSPublisher_Publish(t *testing.T) {
	url, cleanup := setupTestNATS(t)
	defer cleanup()

	sub := subscribeSync(t, url, "pvratio.alerts.>")

	pub, err := NewNATSPublisher(NATSConfig{URL: url})
	if err != nil {
		t.Fatalf("Failed to create publisher: %v", err)
	}
	defer func() { _ = pub.Close() }()

	if err := pub.Publish(context.Background(), "pvratio.alerts.maintenance", []byte(`{"entity_id":"A"}`)); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	msg, err := sub.NextMsg(2 * time.Second)
	if err != nil {
		t.Fatalf("Expected message: %v", err)
	}
	if msg.Subject != "pvratio.alerts.maintenance" {
		t.Errorf("Expected subject pvratio.alerts.maintenance, got %s", msg.Subject)
	}
	if string(msg.Data) != `{"entity_id":"A"}` {
		t.Errorf("Unexpected payload %s", msg.Data)
	}
}

func TestNATSPublisher_PublishBatch(t *testing.T) {
	url, cleanup := setupTestNATS(t)
	defer cleanup()

	sub := subscribeSync(t, url, "alerts.*")

	pub, err := NewNATSPublisher(NATSConfig{URL: url})
	if err != nil {
		t.Fatalf("Failed to create publisher: %v", err)
	}
	defer func() { _ = pub.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	n, err := pub.PublishBatch(ctx, []BatchMessage{
		{Subject: "alerts.fault", Data: []byte("1")},
		{Subject: "alerts.fault", Data: []byte("2")},
		{Subject: "alerts.maintenance", Data: []byte("3")},
	})
	if err != nil {
		t.Fatalf("PublishBatch failed: %v", err)
	}
	if n != 3 {
		t.Errorf("Expected 3 published, got %d", n)
	}

	for _, want := range []string{"1", "2", "3"} {
		msg, err := sub.NextMsg(2 * time.Second)
		if err != nil {
			t.Fatalf("Expected message %s: %v", want, err)
		}
		if string(msg.Data) != want {
			t.Errorf("Expected %s, got %s", want, msg.Data)
		}
	}
}

func TestNATSPublisher_PublishBatch_Empty(t *testing.T) {
	url, cleanup := setupTestNATS(t)
	defer cleanup()

	pub, err := NewNATSPublisher(NATSConfig{URL: url})
	if err != nil {
		t.Fatalf("Failed to create publisher: %v", err)
	}
	defer func() { _ = pub.Close() }()

	n, err := pub.PublishBatch(context.Background(), nil)
	if err != nil || n != 0 {
		t.Errorf("Expected (0, nil), got (%d, %v)", n, err)
	}
}

func TestNATSPublisher_ConnectFailure(t *testing.T) {
	_, err := NewNATSPublisher(NATSConfig{URL: "nats://127.0.0.1:1"})
	if err == nil {
		t.Fatal("Expected error connecting to closed port")
	}
}

func TestNATSPublisher_CloseTwice(t *testing.T) {
	url, cleanup := setupTestNATS(t)
	defer cleanup()

	pub, err := NewNATSPublisher(NATSConfig{URL: url})
	if err != nil {
		t.Fatalf("Failed to create publisher: %v", err)
	}
	if err := pub.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	// Drain is asynchronous; wait for the connection to close
	deadline := time.Now().Add(2 * time.Second)
	for !pub.Conn().IsClosed() && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if err := pub.Close(); err != nil {
		t.Errorf("Second close should be a no-op, got %v", err)
	}
}
