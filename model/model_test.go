package model

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/hupe1980/agentdesk/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComplete_ReturnsFinalResponse(t *testing.T) {
	m := NewMockModel("mock", "mock").Script(Scripted{
		ToolCalls: []core.ToolCall{{ID: "c1", Name: "getOrderDetails", Arguments: json.RawMessage(`{}`)}},
	})

	resp, err := Complete(context.Background(), m, Request{Messages: core.Transcript{core.NewUserMessage("where is my order")}, Stream: true})
	require.NoError(t, err)
	assert.Equal(t, "tool_calls", resp.FinishReason)
	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, "getOrderDetails", resp.ToolCalls[0].Name)

	// Complete always forces non-streaming mode
	assert.False(t, m.Requests()[0].Stream)
}

func TestStream_ForwardsChunks(t *testing.T) {
	m := NewMockModel("mock", "mock").Script(Scripted{Text: "your order has shipped"})

	var chunks []string
	text, err := Stream(context.Background(), m, Request{}, func(s string) error {
		chunks = append(chunks, s)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "your order has shipped", text)
	assert.Equal(t, []string{"your ", "order ", "has ", "shipped"}, chunks)
}

func TestStream_PropagatesErrors(t *testing.T) {
	boom := errors.New("upstream down")
	m := NewMockModel("mock", "mock").Script(Scripted{Err: boom})
	_, err := Stream(context.Background(), m, Request{}, nil)
	assert.ErrorIs(t, err, boom)

	m.Script(Scripted{Text: "a b"})
	stop := errors.New("client gone")
	_, err = Stream(context.Background(), m, Request{}, func(string) error { return stop })
	assert.ErrorIs(t, err, stop)
}

func TestMockModel_FallbackResponses(t *testing.T) {
	m := NewMockModel("mock", "mock")
	m.AddResponse("hello", "hi there")

	resp, err := Complete(context.Background(), m, Request{Messages: core.Transcript{core.NewUserMessage("hello")}})
	require.NoError(t, err)
	assert.Equal(t, "hi there", resp.Text)

	resp, err = Complete(context.Background(), m, Request{Messages: core.Transcript{core.NewUserMessage("other")}})
	require.NoError(t, err)
	assert.Equal(t, "Mock response to: other", resp.Text)
	assert.Equal(t, 2, m.Calls())
}

type silentModel struct{}

func (silentModel) Generate(context.Context, Request) (<-chan Response, <-chan error) {
	r := make(chan Response)
	e := make(chan error)
	close(r)
	close(e)
	return r, e
}

func (silentModel) Info() Info { return Info{Name: "silent"} }

func TestComplete_NoResponse(t *testing.T) {
	_, err := Complete(context.Background(), silentModel{}, Request{})
	assert.ErrorIs(t, err, ErrNoResponse)
}

// queuedFailure has its chunks and its error ready before the consumer reads.
type queuedFailure struct{ chunks []string }

func (q queuedFailure) Generate(context.Context, Request) (<-chan Response, <-chan error) {
	out := make(chan Response, len(q.chunks))
	errCh := make(chan error, 1)
	for _, c := range q.chunks {
		out <- Response{Partial: true, Text: c}
	}
	errCh <- errors.New("connection reset")
	close(out)
	close(errCh)
	return out, errCh
}

func (queuedFailure) Info() Info { return Info{Name: "queued", Provider: "test"} }

func TestStream_DeliversChunksQueuedBeforeError(t *testing.T) {
	for range 50 {
		var got []string
		text, err := Stream(context.Background(), queuedFailure{chunks: []string{"Your order ", "is "}}, Request{}, func(s string) error {
			got = append(got, s)
			return nil
		})
		require.EqualError(t, err, "connection reset")
		assert.Equal(t, "Your order is ", text)
		assert.Equal(t, []string{"Your order ", "is "}, got)
	}
}

// endless emits chunks until its context is cancelled.
type endless struct{ stopped chan struct{} }

func (e endless) Generate(ctx context.Context, _ Request) (<-chan Response, <-chan error) {
	out := make(chan Response)
	errCh := make(chan error, 1)
	go func() {
		defer close(e.stopped)
		defer close(out)
		defer close(errCh)
		for Send(ctx, out, Response{Partial: true, Text: "word "}) {
		}
	}()
	return out, errCh
}

func (endless) Info() Info { return Info{Name: "endless", Provider: "test"} }

func TestStream_CancelsAbandonedGeneration(t *testing.T) {
	m := endless{stopped: make(chan struct{})}
	stop := errors.New("client gone")

	_, err := Stream(context.Background(), m, Request{}, func(string) error { return stop })
	require.ErrorIs(t, err, stop)

	select {
	case <-m.stopped:
	case <-time.After(time.Second):
		t.Fatal("generation kept running after the consumer stopped")
	}
}

func TestSend_ReturnsFalseWhenDone(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.False(t, Send(ctx, make(chan Response), Response{}))

	out := make(chan Response, 1)
	assert.True(t, Send(context.Background(), out, Response{Text: "x"}))
}
