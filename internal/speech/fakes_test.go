package speech

import (
    "context"
    "errors"
    "sync"
)

type fakeRecognizer struct {
    mu       sync.Mutex
    starts   []RecognitionOptions
    stops    []string
    startErr error
}

func (f *fakeRecognizer) Start(_ context.Context, opts RecognitionOptions) error {
    f.mu.Lock()
    defer f.mu.Unlock()
    f.starts = append(f.starts, opts)
    return f.startErr
}

func (f *fakeRecognizer) Stop(captureID string) error {
    f.mu.Lock()
    defer f.mu.Unlock()
    f.stops = append(f.stops, captureID)
    return nil
}

type fakeSynthesizer struct {
    mu       sync.Mutex
    spoken   []UtteranceRequest
    cancels  int
    speakErr error
}

func (f *fakeSynthesizer) Speak(_ context.Context, req UtteranceRequest) error {
    f.mu.Lock()
    defer f.mu.Unlock()
    f.spoken = append(f.spoken, req)
    return f.speakErr
}

func (f *fakeSynthesizer) Cancel() error {
    f.mu.Lock()
    defer f.mu.Unlock()
    f.cancels++
    return nil
}

var errBoom = errors.New("boom")
