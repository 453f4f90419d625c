package main

import (
	"context"
	"errors"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/willothy/khacks-0.3/pkg/kos"
	"github.com/willothy/khacks-0.3/pkg/policy"
	"github.com/willothy/khacks-0.3/pkg/robot"
	"github.com/willothy/khacks-0.3/pkg/walk"
)

type zeroPolicy struct{}

func (zeroPolicy) Infer(ctx context.Context, obs policy.Observation) (policy.Output, error) {
	out := make(policy.Output)
	for _, d := range robot.CanonicalDOFs() {
		out[d.Name] = 0
	}
	return out, nil
}

func newSimRobot() (*kos.Sim, *robot.Robot) {
	ids := make([]int, 0)
	for _, id := range robot.AllIDs() {
		ids = append(ids, int(id))
	}
	sim := kos.NewSim(ids...)
	return sim, robot.New(robot.NewLink(sim, time.Second), sim, robot.Options{})
}

func TestWaitCommands_EndWithLoop(t *testing.T) {
	_, r := newSimRobot()

	cfg := walk.DefaultConfig()
	cfg.TickPeriod = 5 * time.Millisecond
	cfg.Duration = 20 * time.Millisecond
	loop, err := walk.New(r, zeroPolicy{}, cfg, nil)
	if err != nil {
		t.Fatalf("walk.New: %v", err)
	}
	if err := loop.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	// Drain what the loop buffered; the wait must then end with no message
	for _, wait := range []tea.Cmd{waitForTick(loop), waitForLog(loop)} {
		done := make(chan struct{})
		go func() {
			for wait() != nil {
			}
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("wait command blocked after the loop stopped")
		}
	}
}

func TestDisplay_StopsRunnerOnError(t *testing.T) {
	sim, r := newSimRobot()
	runner := walk.NewRunner(r, func(walk.Config) walk.Policy { return zeroPolicy{} }, nil)

	cfg := walk.DefaultConfig()
	cfg.TickPeriod = 5 * time.Millisecond
	if _, err := runner.Start(cfg); err != nil {
		t.Fatalf("Start: %v", err)
	}

	boom := errors.New("no terminal")
	err := display(runner, func() error {
		time.Sleep(20 * time.Millisecond)
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("display = %v, want %v", err, boom)
	}
	if st := runner.Status(); st.Running {
		t.Error("runner still running after the display failed")
	}

	// Nothing is sent once display has returned
	sent := len(sim.Batches())
	time.Sleep(20 * time.Millisecond)
	if n := len(sim.Batches()); n != sent {
		t.Errorf("%d batches sent after display returned", n-sent)
	}
}

func TestDisplay_LoopAlreadyFinished(t *testing.T) {
	_, r := newSimRobot()
	runner := walk.NewRunner(r, func(walk.Config) walk.Policy { return zeroPolicy{} }, nil)

	cfg := walk.DefaultConfig()
	cfg.TickPeriod = 5 * time.Millisecond
	cfg.Duration = 10 * time.Millisecond
	if _, err := runner.Start(cfg); err != nil {
		t.Fatalf("Start: %v", err)
	}
	runner.Wait()

	if err := display(runner, func() error { return nil }); err != nil {
		t.Errorf("display = %v, want nil", err)
	}
}
