package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/programme-lv/exerciser/api"
	"github.com/programme-lv/exerciser/internal"
	"github.com/programme-lv/exerciser/internal/errs"
	"github.com/programme-lv/exerciser/internal/langs"
	"github.com/programme-lv/exerciser/internal/sandbox"
)

var errServiceExited = errors.New("service exited")

type readiness int

const (
	ready readiness = iota
	exitedEarly
	neverReady
)

// runService starts the attempt as a service and sends it the request tests.
// The port is released and the service stopped on every return path.
func (r *Runner) runService(
	ctx context.Context,
	box sandbox.Box,
	lang langs.Language,
	job Job,
	tests []int,
	c sandbox.Constraints,
	scrub *strings.Replacer,
	gath internal.ResultGatherer,
	log *slog.Logger,
) error {
	port, err := r.ports.Acquire(ctx, job.PortHint)
	if err != nil {
		return err
	}
	defer r.ports.Release(port)
	log = log.With(slog.Int("port", port))

	gath.StartService(port)
	svc, err := box.Start(ctx, lang.ExecCmd, []string{"PORT=" + strconv.Itoa(port)}, c)
	if err != nil {
		return err
	}
	stopped := false
	defer func() {
		if !stopped {
			_, _ = svc.Stop()
		}
	}()

	state, err := r.awaitReady(ctx, port, svc.Done())
	if err != nil {
		return err
	}
	log.Debug("service readiness", slog.Int("state", int(state)))

	client := &http.Client{Timeout: r.cfg.TestTimeout}
	for _, idx := range tests {
		t := job.Exercise.Tests[idx]
		gath.ReachTest(idx, t.Name)

		run := internal.TestRun{
			Index:          idx,
			Name:           t.Name,
			Expected:       t.Expected,
			Input:          t.Request.Method + " " + t.Request.Path,
			Request:        true,
			ExpectedStatus: t.Request.Status,
			Hint:           t.Hint,
		}
		switch state {
		case exitedEarly:
			run.Verdict = api.RuntimeError
			run.Detail = "service exited before accepting connections"
		case neverReady:
			run.Verdict = api.TimeLimitExceeded
			run.Detail = fmt.Sprintf("service did not listen on port %d within %s", port, r.cfg.ReadyTimeout)
		default:
			if err := ctx.Err(); err != nil {
				return errs.Sandbox("run cancelled", err)
			}
			r.sendRequest(ctx, client, port, t, svc, &run)
		}

		run.Observed = scrub.Replace(run.Observed)
		run.Run = &internal.RunData{Stdout: []byte(run.Observed), Stderr: svc.Stderr()}
		if run.Verdict == api.RuntimeError {
			// the process is gone, Stop only collects its exit status
			final, err := svc.Stop()
			stopped = true
			if err != nil {
				return err
			}
			run.Run.ExitCode = final.ExitCode
			run.Run.ExitSignal = final.ExitSignal
			run.Run.Stderr = final.Stderr
			state = exitedEarly
		}
		scrubRun(scrub, run.Run)
		gath.FinishTest(run)
	}

	if !stopped {
		stopped = true
		if _, err := svc.Stop(); err != nil {
			return err
		}
	}
	return nil
}

// awaitReady dials the port with exponential backoff until it accepts,
// the service exits or the ready timeout passes.
func (r *Runner) awaitReady(ctx context.Context, port int, done <-chan struct{}) (readiness, error) {
	addr := net.JoinHostPort("127.0.0.1", strconv.Itoa(port))
	op := func() (struct{}, error) {
		select {
		case <-done:
			return struct{}{}, backoff.Permanent(errServiceExited)
		default:
		}
		conn, err := net.DialTimeout("tcp", addr, 250*time.Millisecond)
		if err != nil {
			return struct{}{}, err
		}
		return struct{}{}, conn.Close()
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 20 * time.Millisecond
	b.MaxInterval = 500 * time.Millisecond
	b.RandomizationFactor = 0

	_, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(b),
		backoff.WithMaxElapsedTime(r.cfg.ReadyTimeout))
	switch {
	case err == nil:
		return ready, nil
	case ctx.Err() != nil:
		return 0, errs.Sandbox("waiting for service", ctx.Err())
	case errors.Is(err, errServiceExited):
		return exitedEarly, nil
	default:
		select {
		case <-done:
			return exitedEarly, nil
		default:
			return neverReady, nil
		}
	}
}

func (r *Runner) sendRequest(
	ctx context.Context,
	client *http.Client,
	port int,
	t api.Test,
	svc sandbox.Service,
	run *internal.TestRun,
) {
	url := "http://" + net.JoinHostPort("127.0.0.1", strconv.Itoa(port)) + t.Request.Path
	req, err := http.NewRequestWithContext(ctx, t.Request.Method, url, strings.NewReader(t.Request.Body))
	if err != nil {
		run.Verdict = api.RuntimeError
		run.Detail = err.Error()
		return
	}
	for k, v := range t.Request.Headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		select {
		case <-svc.Done():
			run.Verdict = api.RuntimeError
			run.Detail = "service crashed while handling the request"
			return
		default:
		}
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			run.Verdict = api.TimeLimitExceeded
			run.Detail = "request timed out"
			return
		}
		run.Verdict = api.WrongAnswer
		run.Detail = "request failed: " + err.Error()
		return
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, sandbox.MaxOutputBytes))
	if err != nil {
		run.Verdict = api.WrongAnswer
		run.Detail = "reading response failed: " + err.Error()
		return
	}
	run.Observed = string(body)
	run.StatusCode = resp.StatusCode

	switch {
	case t.Request.Status != 0 && resp.StatusCode != t.Request.Status:
		run.Verdict = api.WrongAnswer
		run.Detail = fmt.Sprintf("expected status %d, got %d", t.Request.Status, resp.StatusCode)
	case TokensEqual(run.Observed, t.Expected):
		run.Verdict = api.Accepted
	default:
		run.Verdict = api.WrongAnswer
	}
}
