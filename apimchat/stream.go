// Copyright (c) Microsoft. All rights reserved.

package apimchat

import (
	"context"
	"strings"
	"sync"
)

// MessageStream is a pull-based iterator over the messages of one streaming
// query. It wraps a channel internally but exposes a cleaner API with error
// propagation and cleanup guarantees. The stream is lazy and cannot be
// restarted once consumed.
//
// Callers must call Close when done, or use a context with cancellation.
type MessageStream struct {
	ch        <-chan Message
	errCh     <-chan error
	cancel    context.CancelFunc
	closeOnce sync.Once
	err       error
}

// newMessageStream runs producer in a goroutine and returns the stream over
// its output. The channel is closed automatically when the producer returns;
// a producer error surfaces from Next after the delivered messages drain.
func newMessageStream(ctx context.Context, producer func(ctx context.Context, ch chan<- Message) error) *MessageStream {
	ctx, cancel := context.WithCancel(ctx)
	ch := make(chan Message, 1) // small buffer to reduce producer blocking
	errCh := make(chan error, 1)

	go func() {
		defer close(ch)
		if err := producer(ctx, ch); err != nil {
			errCh <- err
		}
		close(errCh)
	}()

	return &MessageStream{ch: ch, errCh: errCh, cancel: cancel}
}

// Next returns the next message from the stream.
// ok is false when the stream is exhausted. err is non-nil on failure.
func (s *MessageStream) Next(ctx context.Context) (msg Message, ok bool, err error) {
	select {
	case <-ctx.Done():
		return nil, false, ctx.Err()
	case m, open := <-s.ch:
		if !open {
			// Channel closed; check for a producer error. A drained errCh
			// yields nil, which must not clear an error seen earlier.
			select {
			case e := <-s.errCh:
				if e != nil {
					s.err = e
				}
			default:
			}
			return nil, false, s.err
		}
		return m, true, nil
	}
}

// Collect drains the entire stream and returns all messages.
func (s *MessageStream) Collect(ctx context.Context) ([]Message, error) {
	var msgs []Message
	for {
		m, ok, err := s.Next(ctx)
		if err != nil {
			return msgs, err
		}
		if !ok {
			return msgs, nil
		}
		msgs = append(msgs, m)
	}
}

// CollectText drains the stream and returns the assistant text joined in
// arrival order, together with the closing [ResultMessage] (nil when the
// stream ended without one).
func (s *MessageStream) CollectText(ctx context.Context) (string, *ResultMessage, error) {
	var b strings.Builder
	var result *ResultMessage
	for {
		m, ok, err := s.Next(ctx)
		if err != nil {
			return b.String(), result, err
		}
		if !ok {
			return b.String(), result, nil
		}
		switch v := m.(type) {
		case *AssistantMessage:
			b.WriteString(v.Text())
		case *ResultMessage:
			result = v
		case *ToolUseMessage, *ErrorMessage:
		}
	}
}

// Close cancels the producer and releases resources, including the
// underlying HTTP connection. Safe to call multiple times.
func (s *MessageStream) Close() error {
	s.closeOnce.Do(func() {
		s.cancel()
		// Drain remaining messages to unblock the producer.
		for range s.ch {
		}
		select {
		case e := <-s.errCh:
			if s.err == nil {
				s.err = e
			}
		default:
		}
	})
	return nil
}
