package realtime

import (
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/labstack/gommon/log"
	"github.com/redis/go-redis/v9"
)

func quietLogger() *log.Logger {
	l := log.New("test")
	l.SetOutput(io.Discard)
	return l
}

// newProcess builds a broadcaster as one server process would, with its own
// Redis connection and hub.
func newProcess(t *testing.T, ctx context.Context, mr *miniredis.Miniredis) *Broadcaster {
	t.Helper()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	b := NewBroadcaster(NewRedisBackbone(rdb, quietLogger()), NewHub(16), quietLogger())
	go func() { _ = b.Run(ctx) }()
	return b
}

// waitSubscribed publishes warm-up messages from pub until every process has seen one.
func waitSubscribed(t *testing.T, ctx context.Context, pub *Broadcaster, procs ...*Broadcaster) {
	t.Helper()
	subs := make([]*Subscription, len(procs))
	for i, p := range procs {
		subs[i] = p.Hub().Join("warmup")
	}
	defer func() {
		for _, s := range subs {
			s.Close()
		}
	}()
	seen := make([]bool, len(subs))
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if err := pub.Publish(ctx, Resynced("warmup", 1)); err != nil {
			t.Fatalf("warm-up publish: %v", err)
		}
		time.Sleep(20 * time.Millisecond)
		all := true
		for i, s := range subs {
			select {
			case <-s.C():
				seen[i] = true
			default:
			}
			all = all && seen[i]
		}
		if all {
			return
		}
	}
	t.Fatal("backbone subscriptions never became active")
}

func receive(t *testing.T, s *Subscription) Message {
	t.Helper()
	select {
	case payload := <-s.C():
		var m Message
		if err := json.Unmarshal(payload, &m); err != nil {
			t.Fatalf("decode %q: %v", payload, err)
		}
		return m
	case <-time.After(2 * time.Second):
		t.Fatalf("no frame for room %s", s.Room())
	}
	return Message{}
}

func TestBroadcaster_ReachesEveryProcess(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	procA := newProcess(t, ctx, mr)
	procB := newProcess(t, ctx, mr)
	waitSubscribed(t, ctx, procA, procA, procB)

	onA := procA.Hub().Join("ev-1")
	onB := procB.Hub().Join("ev-1")
	elsewhere := procB.Hub().Join("ev-2")
	defer onA.Close()
	defer onB.Close()
	defer elsewhere.Close()

	if err := procA.Publish(ctx, Reserved("ev-1", "seat-1", 300)); err != nil {
		t.Fatalf("publish: %v", err)
	}

	for _, s := range []*Subscription{onA, onB} {
		m := receive(t, s)
		if m.Type != SeatReserved || m.SeatID != "seat-1" || m.State != "RESERVING" || m.TTLSeconds != 300 {
			t.Fatalf("unexpected message %+v", m)
		}
	}

	if err := procB.Publish(ctx, Resynced("ev-1", 3)); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if m := receive(t, onA); m.Type != SeatsResynced || m.Count != 3 {
		t.Fatalf("unexpected message %+v", m)
	}
	receive(t, onB)

	select {
	case p := <-elsewhere.C():
		t.Fatalf("other room received %s", p)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBroadcaster_PublishRejectsEmptyEvent(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	b := NewBroadcaster(NewRedisBackbone(rdb, quietLogger()), NewHub(0), quietLogger())

	if err := b.Publish(context.Background(), Released("", "seat-1")); err == nil {
		t.Fatal("expected error for empty event id")
	}
}

func TestBroadcaster_PublishFailsWhenBackboneDown(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer rdb.Close()
	b := NewBroadcaster(NewRedisBackbone(rdb, quietLogger()), NewHub(0), quietLogger())
	mr.Close()

	if err := b.Publish(context.Background(), Sold("ev-1", "seat-1")); err == nil {
		t.Fatal("expected publish error with the backbone down")
	}
}

func TestBroadcaster_SubscribesAfterStartupOutage(t *testing.T) {
	mr := miniredis.RunT(t)
	mr.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer rdb.Close()
	backbone := NewRedisBackbone(rdb, quietLogger())
	backbone.backoff = 20 * time.Millisecond
	proc := NewBroadcaster(backbone, NewHub(16), quietLogger())

	done := make(chan error, 1)
	go func() { done <- proc.Run(ctx) }()

	select {
	case err := <-done:
		t.Fatalf("Run gave up while Redis was down: %v", err)
	case <-time.After(300 * time.Millisecond):
	}

	if err := mr.Restart(); err != nil {
		t.Fatalf("restart redis: %v", err)
	}
	waitSubscribed(t, ctx, proc, proc)

	sub := proc.Hub().Join("ev-1")
	defer sub.Close()
	if err := proc.Publish(ctx, Sold("ev-1", "seat-9")); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if m := receive(t, sub); m.Type != SeatSold || m.SeatID != "seat-9" {
		t.Fatalf("unexpected message %+v", m)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
