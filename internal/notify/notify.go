package notify

import (
	"context"
	"sync"
)

// Notifier sends chat messages to users, the store owner and operators.
type Notifier interface {
	Send(ctx context.Context, chatID int64, text string) error
	// SendFile uploads a local file as a document.
	SendFile(ctx context.Context, chatID int64, path, caption string) error
	Delete(ctx context.Context, chatID int64, messageID int) error
}

type Nop struct{}

func (Nop) Send(context.Context, int64, string) error { return nil }

func (Nop) SendFile(context.Context, int64, string, string) error { return nil }

func (Nop) Delete(context.Context, int64, int) error { return nil }

// Message is one delivery captured by Recorder.
type Message struct {
	ChatID int64
	Text   string
	File   string
}

// Recorder keeps every message in memory. Sends to a chat listed in Fail
// return that error instead.
type Recorder struct {
	mu       sync.Mutex
	messages []Message
	deleted  []int
	Fail     map[int64]error
}

func (r *Recorder) Send(_ context.Context, chatID int64, text string) error {
	return r.record(Message{ChatID: chatID, Text: text})
}

func (r *Recorder) SendFile(_ context.Context, chatID int64, path, caption string) error {
	return r.record(Message{ChatID: chatID, Text: caption, File: path})
}

func (r *Recorder) Delete(_ context.Context, _ int64, messageID int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deleted = append(r.deleted, messageID)
	return nil
}

// Deleted returns ids of deleted messages.
func (r *Recorder) Deleted() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int(nil), r.deleted...)
}

func (r *Recorder) record(m Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.Fail[m.ChatID]; err != nil {
		return err
	}
	r.messages = append(r.messages, m)
	return nil
}

func (r *Recorder) Messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Message, len(r.messages))
	copy(out, r.messages)
	return out
}

// To returns messages sent to one chat.
func (r *Recorder) To(chatID int64) []Message {
	var out []Message
	for _, m := range r.Messages() {
		if m.ChatID == chatID {
			out = append(out, m)
		}
	}
	return out
}
