package ai

import (
	"context"
	"sync"
)

// fakeClient is a scripted Client
type fakeClient struct {
	mu        sync.Mutex
	models    []string
	listErr   error
	chatErr   error
	content   string
	chats     int
	lastModel string
	onChat    func()

	inFlight int
	peak     int
}

func (f *fakeClient) Chat(ctx context.Context, messages []Message, opts ChatOptions) (*ChatResponse, error) {
	f.mu.Lock()
	f.chats++
	f.lastModel = opts.Model
	f.inFlight++
	if f.inFlight > f.peak {
		f.peak = f.inFlight
	}
	hook := f.onChat
	f.mu.Unlock()
	defer func() {
		f.mu.Lock()
		f.inFlight--
		f.mu.Unlock()
	}()
	if hook != nil {
		hook()
	}
	if f.chatErr != nil {
		return nil, f.chatErr
	}
	return &ChatResponse{Content: f.content, Model: opts.Model}, nil
}

func (f *fakeClient) ListModels(ctx context.Context) ([]string, error) {
	return f.models, f.listErr
}

func (f *fakeClient) chatCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.chats
}

func (f *fakeClient) peakInFlight() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.peak
}
