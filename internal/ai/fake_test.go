package ai

import (
	"context"
	"errors"
)

// fakeProvider answers from a queue and records requests
type fakeProvider struct {
	answers  []string
	err      error
	requests []Request
}

func (f *fakeProvider) Name() ProviderName {
	return "fake"
}

func (f *fakeProvider) Complete(ctx context.Context, req Request) (*Response, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	if len(f.answers) == 0 {
		return nil, errors.New("no answer queued")
	}
	text := f.answers[0]
	if len(f.answers) > 1 {
		f.answers = f.answers[1:]
	}
	return &Response{Text: text, Provider: "fake", Model: "fake-1"}, nil
}
