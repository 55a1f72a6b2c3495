package natsapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/programme-lv/exerciser/api"
	"github.com/programme-lv/exerciser/internal"
	"github.com/programme-lv/exerciser/internal/errs"
	"github.com/programme-lv/exerciser/internal/evaluator"
	"github.com/programme-lv/exerciser/internal/gatherer/rawbuilder"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEvaluator struct {
	req   evaluator.Request
	extra []internal.ResultGatherer
	err   error
}

func (f *fakeEvaluator) Evaluate(ctx context.Context, req evaluator.Request, extra ...internal.ResultGatherer) (api.Feedback, error) {
	f.req = req
	f.extra = extra
	if f.err != nil {
		return api.Feedback{}, f.err
	}
	return api.Feedback{ExerciseID: req.ExerciseID, Status: api.StatusWrongAnswer}, nil
}

func newEndpoint(ev Evaluator) (*Endpoint, *[]string) {
	var inboxes []string
	e := &Endpoint{
		subject: "exerciser.evaluate",
		eval:    ev,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	e.events = func(evalUuid, inbox string) internal.ResultGatherer {
		inboxes = append(inboxes, inbox)
		return rawbuilder.New(evalUuid)
	}
	return e, &inboxes
}

func TestHandleEvaluates(t *testing.T) {
	ev := &fakeEvaluator{}
	e, inboxes := newEndpoint(ev)

	resp := e.handle(context.Background(), []byte(`{
		"id": "ex1",
		"attemptFiles": {"main.py": "print(1)"},
		"without_static": true,
		"events_inbox": "_INBOX.abc"
	}`))

	require.NotNil(t, resp.Feedback)
	assert.Nil(t, resp.Error)
	assert.Equal(t, "ex1", resp.Feedback.ExerciseID)
	assert.True(t, ev.req.WithoutStatic)
	assert.NotEmpty(t, ev.req.EvalUuid)
	assert.Equal(t, []string{"_INBOX.abc"}, *inboxes)
	assert.Len(t, ev.extra, 1)
}

func TestHandleWithoutInbox(t *testing.T) {
	ev := &fakeEvaluator{}
	e, inboxes := newEndpoint(ev)

	resp := e.handle(context.Background(), []byte(`{"id":"ex1","attemptFiles":{}}`))
	require.NotNil(t, resp.Feedback)
	assert.Empty(t, *inboxes)
	assert.Empty(t, ev.extra)
}

func TestHandleErrors(t *testing.T) {
	cases := map[string]struct {
		body string
		err  error
		code string
	}{
		"garbage":      {body: `{"id":`, code: "validation_error"},
		"missing id":   {body: `{"attemptFiles":{}}`, code: "validation_error"},
		"no files":     {body: `{"id":"ex1"}`, code: "validation_error"},
		"unknown":      {body: `{"id":"ex1","attemptFiles":{}}`, err: errs.NotFound("exercise"), code: "not_found"},
		"sandbox down": {body: `{"id":"ex1","attemptFiles":{}}`, err: errs.Sandbox("box", nil), code: "sandbox_error"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			e, _ := newEndpoint(&fakeEvaluator{err: tc.err})
			resp := e.handle(context.Background(), []byte(tc.body))
			assert.Nil(t, resp.Feedback)
			require.NotNil(t, resp.ErrorCode)
			assert.Equal(t, tc.code, *resp.ErrorCode)
			require.NotNil(t, resp.Error)
		})
	}
}

// blockingEvaluator holds every evaluation until release is closed.
type blockingEvaluator struct {
	release chan struct{}
}

func (b *blockingEvaluator) Evaluate(ctx context.Context, req evaluator.Request, extra ...internal.ResultGatherer) (api.Feedback, error) {
	select {
	case <-b.release:
	case <-ctx.Done():
		return api.Feedback{}, errs.Sandbox("evaluation cancelled", ctx.Err())
	}
	return api.Feedback{ExerciseID: req.ExerciseID, Status: api.StatusAccepted}, nil
}

// queuedSub delivers its queued messages only once drained, the way a
// subscription with pending messages behaves after Drain.
type queuedSub struct {
	cb     nats.MsgHandler
	queued []*nats.Msg
	valid  atomic.Bool
}

func (s *queuedSub) Drain() error {
	go func() {
		for _, m := range s.queued {
			time.Sleep(5 * time.Millisecond)
			s.cb(m)
		}
		s.valid.Store(false)
	}()
	return nil
}

func (s *queuedSub) IsValid() bool { return s.valid.Load() }

func evalMsg(i int) *nats.Msg {
	data, _ := json.Marshal(api.NatsEvaluateRequest{
		EvaluateRequest: api.EvaluateRequest{ID: fmt.Sprintf("ex%d", i), AttemptFiles: map[string]string{"main.js": ""}},
	})
	return &nats.Msg{Subject: "exerciser.evaluate", Reply: fmt.Sprintf("_INBOX.%d", i), Data: data}
}

func TestServeAnswersQueuedRequestsOnShutdown(t *testing.T) {
	ev := &blockingEvaluator{release: make(chan struct{})}
	e, _ := newEndpoint(ev)

	sub := &queuedSub{queued: []*nats.Msg{evalMsg(2), evalMsg(3)}}
	sub.valid.Store(true)
	subscribed := make(chan struct{})
	e.subscribe = func(subject, queue string, cb nats.MsgHandler) (subscription, error) {
		assert.Equal(t, QueueGroup, queue)
		sub.cb = cb
		close(subscribed)
		return sub, nil
	}

	var (
		mu      sync.Mutex
		replies = map[string]api.EvaluateResponse{}
	)
	e.respond = func(msg *nats.Msg, data []byte) error {
		var resp api.EvaluateResponse
		if err := json.Unmarshal(data, &resp); err != nil {
			return err
		}
		mu.Lock()
		replies[msg.Reply] = resp
		mu.Unlock()
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Serve(ctx) }()

	<-subscribed
	sub.cb(evalMsg(0))
	sub.cb(evalMsg(1))
	cancel()

	assert.Never(t, func() bool {
		select {
		case <-done:
			return true
		default:
			return false
		}
	}, 200*time.Millisecond, 10*time.Millisecond)

	close(ev.release)
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after evaluations finished")
	}

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, replies, 4)
	for i := 0; i < 4; i++ {
		resp, ok := replies[fmt.Sprintf("_INBOX.%d", i)]
		require.True(t, ok)
		require.NotNil(t, resp.Feedback, "request %d", i)
		assert.Nil(t, resp.Error)
		assert.Equal(t, fmt.Sprintf("ex%d", i), resp.Feedback.ExerciseID)
	}
}
