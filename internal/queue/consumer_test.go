package queue

import (
    "encoding/json"
    "io"
    "os"
    "path/filepath"
    "strings"
    "testing"

    "github.com/labstack/gommon/log"
)

func TestConsumer_HandleMessageAppendsLine(t *testing.T) {
    t.Parallel()

    dir := filepath.Join(t.TempDir(), "audit")
    logger := log.New("test")
    logger.SetOutput(io.Discard)
    c := NewConsumer("", dir, logger)

    for _, id := range []string{"p-1", "p-2"} {
        body, err := json.Marshal(PurchasePaidEvent{
            PurchaseID:   id,
            UserID:       "u-1",
            EventID:      "ev-1",
            SeatID:       "seat-" + id,
            SeatLabel:    "A1",
            AmountCents:  1500,
            PaymentAlias: "SEATXYZ",
            PaidAt:       "2026-01-02T03:04:05Z",
        })
        if err != nil {
            t.Fatal(err)
        }
        if err := c.HandleMessage(body); err != nil {
            t.Fatalf("handle %s: %v", id, err)
        }
    }

    raw, err := os.ReadFile(filepath.Join(dir, "purchases.log"))
    if err != nil {
        t.Fatalf("read log: %v", err)
    }
    lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
    if len(lines) != 2 {
        t.Fatalf("got %d lines, want 2:\n%s", len(lines), raw)
    }
    for _, want := range []string{"purchase_id=p-1", "total=1500 cents", "seat=\"A1\"", "alias=SEATXYZ"} {
        if !strings.Contains(lines[0], want) {
            t.Errorf("line %q does not contain %q", lines[0], want)
        }
    }
}

func TestConsumer_HandleMessageRejectsBadBodies(t *testing.T) {
    t.Parallel()

    c := NewConsumer("", t.TempDir(), log.New("test"))
    for name, body := range map[string]string{
        "not json":    "{",
        "no purchase": `{"seat_id":"s"}`,
    } {
        if err := c.HandleMessage([]byte(body)); err == nil {
            t.Errorf("%s: expected error", name)
        }
    }
}
