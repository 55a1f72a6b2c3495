// Package multi fans runner progress out to several gatherers.
package multi

import (
	"github.com/programme-lv/exerciser/api"
	"github.com/programme-lv/exerciser/internal"
)

type Gatherer []internal.ResultGatherer

var _ internal.ResultGatherer = Gatherer(nil)

func New(gatherers ...internal.ResultGatherer) Gatherer {
	var g Gatherer
	for _, x := range gatherers {
		if x != nil {
			g = append(g, x)
		}
	}
	return g
}

func (m Gatherer) StartJob(exerciseID string, withStatic bool) {
	for _, g := range m {
		g.StartJob(exerciseID, withStatic)
	}
}

func (m Gatherer) FinishStatic(findings []api.Finding) {
	for _, g := range m {
		g.FinishStatic(findings)
	}
}

func (m Gatherer) StartCompile() {
	for _, g := range m {
		g.StartCompile()
	}
}

func (m Gatherer) FinishCompile(data *internal.RunData) {
	for _, g := range m {
		g.FinishCompile(data)
	}
}

func (m Gatherer) StartService(port int) {
	for _, g := range m {
		g.StartService(port)
	}
}

func (m Gatherer) ReachTest(idx int, name string) {
	for _, g := range m {
		g.ReachTest(idx, name)
	}
}

func (m Gatherer) IgnoreTest(idx int, name string) {
	for _, g := range m {
		g.IgnoreTest(idx, name)
	}
}

func (m Gatherer) FinishTest(run internal.TestRun) {
	for _, g := range m {
		g.FinishTest(run)
	}
}

func (m Gatherer) CompileError(msg string) {
	for _, g := range m {
		g.CompileError(msg)
	}
}

func (m Gatherer) InternalError(msg string) {
	for _, g := range m {
		g.InternalError(msg)
	}
}

func (m Gatherer) FinishNoError() {
	for _, g := range m {
		g.FinishNoError()
	}
}
