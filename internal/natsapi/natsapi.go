// Package natsapi serves evaluations over NATS request/reply.
package natsapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/programme-lv/exerciser/api"
	"github.com/programme-lv/exerciser/internal"
	"github.com/programme-lv/exerciser/internal/errs"
	"github.com/programme-lv/exerciser/internal/evaluator"
	"github.com/programme-lv/exerciser/internal/gatherer/natsgath"
)

const QueueGroup = "exerciser"

const drainPoll = 20 * time.Millisecond

type Evaluator interface {
	Evaluate(ctx context.Context, req evaluator.Request, extra ...internal.ResultGatherer) (api.Feedback, error)
}

type Endpoint struct {
	nc      *nats.Conn
	subject string
	eval    Evaluator
	logger  *slog.Logger

	// events returns the gatherer streaming progress to a client inbox.
	events    func(evalUuid, inbox string) internal.ResultGatherer
	subscribe func(subject, queue string, cb nats.MsgHandler) (subscription, error)
	respond   func(msg *nats.Msg, data []byte) error

	wg sync.WaitGroup
}

// subscription is the part of *nats.Subscription Serve needs.
type subscription interface {
	Drain() error
	IsValid() bool
}

func New(nc *nats.Conn, subject string, eval Evaluator, logger *slog.Logger) *Endpoint {
	e := &Endpoint{
		nc:      nc,
		subject: subject,
		eval:    eval,
		logger:  logger.With(slog.String("component", "natsapi"), slog.String("subject", subject)),
	}
	e.events = func(evalUuid, inbox string) internal.ResultGatherer {
		return natsgath.New(nc, evalUuid, inbox, e.logger)
	}
	e.subscribe = func(subject, queue string, cb nats.MsgHandler) (subscription, error) {
		return nc.QueueSubscribe(subject, queue, cb)
	}
	e.respond = (*nats.Msg).Respond
	return e
}

// Serve handles requests until ctx is done, then drains the subscription.
// Requests already delivered, including those queued when ctx ends, are
// evaluated and answered before Serve returns.
func (e *Endpoint) Serve(ctx context.Context) error {
	work := context.WithoutCancel(ctx)
	sub, err := e.subscribe(e.subject, QueueGroup, func(msg *nats.Msg) {
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			e.reply(work, msg)
		}()
	})
	if err != nil {
		return err
	}
	e.logger.Info("subscribed", slog.String("queue", QueueGroup))

	<-ctx.Done()
	e.logger.Info("draining subscription")
	if err := sub.Drain(); err != nil {
		e.logger.Warn("failed to drain subscription", slog.Any("error", err))
	} else {
		// Drain only starts the drain. The callback keeps running for
		// queued messages until the subscription is closed, and every
		// wg.Add must happen before wg.Wait.
		tick := time.NewTicker(drainPoll)
		for sub.IsValid() {
			<-tick.C
		}
		tick.Stop()
	}
	e.wg.Wait()
	return nil
}

func (e *Endpoint) reply(ctx context.Context, msg *nats.Msg) {
	resp := e.handle(ctx, msg.Data)
	if msg.Reply == "" {
		return
	}
	b, err := json.Marshal(resp)
	if err != nil {
		e.logger.Error("failed to marshal response", slog.Any("error", err))
		return
	}
	if err := e.respond(msg, b); err != nil {
		e.logger.Warn("failed to respond", slog.Any("error", err))
	}
}

func (e *Endpoint) handle(ctx context.Context, data []byte) api.EvaluateResponse {
	var req api.NatsEvaluateRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return errorResponse(errs.Validation("malformed request: %v", err))
	}
	if req.ID == "" {
		return errorResponse(errs.Validation("id is required"))
	}
	if req.AttemptFiles == nil {
		return errorResponse(errs.Validation("attemptFiles is required"))
	}

	evalUuid := uuid.NewString()
	var extra []internal.ResultGatherer
	if req.EventsInbox != "" {
		extra = append(extra, e.events(evalUuid, req.EventsInbox))
	}

	fb, err := e.eval.Evaluate(ctx, evaluator.Request{
		EvalUuid:      evalUuid,
		ExerciseID:    req.ID,
		Files:         req.AttemptFiles,
		Port:          req.Port,
		Previous:      req.PreviousFeedback,
		WithoutStatic: req.WithoutStatic,
	}, extra...)
	if err != nil {
		e.logger.Warn("evaluation failed",
			slog.String("eval_uuid", evalUuid),
			slog.String("exercise_id", req.ID),
			slog.Any("error", err))
		return errorResponse(err)
	}
	return api.EvaluateResponse{Feedback: &fb}
}

func errorResponse(err error) api.EvaluateResponse {
	msg := err.Error()
	code := errs.Code(err)
	return api.EvaluateResponse{Error: &msg, ErrorCode: &code}
}
