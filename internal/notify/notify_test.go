package notify

import (
	"context"
	"errors"
	"testing"
)

func TestRecorderFailsConfiguredChats(t *testing.T) {
	boom := errors.New("blocked")
	r := &Recorder{Fail: map[int64]error{2: boom}}
	ctx := context.Background()

	if err := r.Send(ctx, 1, "hi"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if err := r.SendFile(ctx, 2, "/tmp/x", "file"); !errors.Is(err, boom) {
		t.Fatalf("expected failure for chat 2, got %v", err)
	}
	if got := r.To(1); len(got) != 1 || got[0].Text != "hi" {
		t.Fatalf("unexpected messages %+v", got)
	}
	if len(r.To(2)) != 0 {
		t.Fatalf("failed delivery must not be recorded")
	}
}
