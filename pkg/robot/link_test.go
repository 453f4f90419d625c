package robot

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/willothy/khacks-0.3/pkg/kos"
)

func newSim() *kos.Sim {
	ids := make([]int, 0, len(AllIDs()))
	for _, id := range AllIDs() {
		ids = append(ids, int(id))
	}
	return kos.NewSim(ids...)
}

func TestLink_ReadStatesAligned(t *testing.T) {
	sim := newSim()
	sim.ReverseStates = true
	sim.SetState(31, 10, 1)
	sim.SetState(34, 40, 4)
	sim.SetState(45, 50, 5)

	link := NewLink(sim, time.Second)
	ids := []ActuatorID{34, 31, 45}
	states, err := link.ReadStates(context.Background(), ids)
	if err != nil {
		t.Fatalf("ReadStates: %v", err)
	}

	want := []float64{40, 10, 50}
	for i, s := range states {
		if s.ActuatorID != int(ids[i]) {
			t.Errorf("states[%d].ActuatorID = %d, want %d", i, s.ActuatorID, ids[i])
		}
		if s.Position != want[i] {
			t.Errorf("states[%d].Position = %f, want %f", i, s.Position, want[i])
		}
	}
}

func TestAlign(t *testing.T) {
	tests := []struct {
		name    string
		ids     []int
		states  []kos.ActuatorState
		wantErr bool
	}{
		{
			name:   "reordered",
			ids:    []int{1, 2},
			states: []kos.ActuatorState{{ActuatorID: 2}, {ActuatorID: 1}},
		},
		{
			name:    "short",
			ids:     []int{1, 2},
			states:  []kos.ActuatorState{{ActuatorID: 1}},
			wantErr: true,
		},
		{
			name:    "duplicate",
			ids:     []int{1, 2},
			states:  []kos.ActuatorState{{ActuatorID: 1}, {ActuatorID: 1}},
			wantErr: true,
		},
		{
			name:    "foreign id",
			ids:     []int{1, 2},
			states:  []kos.ActuatorState{{ActuatorID: 1}, {ActuatorID: 3}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := align(tt.ids, tt.states)
			if (err != nil) != tt.wantErr {
				t.Fatalf("align() error = %v, wantErr %v", err, tt.wantErr)
			}
			for i, s := range out {
				if s.ActuatorID != tt.ids[i] {
					t.Errorf("out[%d] = %d, want %d", i, s.ActuatorID, tt.ids[i])
				}
			}
		})
	}
}

func TestLink_Exclusive(t *testing.T) {
	sim := newSim()
	sim.Latency = 2 * time.Millisecond
	link := NewLink(sim, time.Second)

	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if i%2 == 0 {
				link.CommandBatch(context.Background(), []kos.ActuatorCommand{{ActuatorID: 31}})
			} else {
				link.ReadStates(context.Background(), []ActuatorID{31})
			}
		}()
	}
	wg.Wait()

	if n := sim.MaxInFlight(); n != 1 {
		t.Errorf("max in-flight calls = %d, want 1", n)
	}
}

func TestLink_Timeout(t *testing.T) {
	sim := newSim()
	sim.Latency = 50 * time.Millisecond
	link := NewLink(sim, 5*time.Millisecond)

	err := link.CommandBatch(context.Background(), []kos.ActuatorCommand{{ActuatorID: 31}})
	var rpcErr *RPCError
	if !errors.As(err, &rpcErr) || rpcErr.Kind != Transient {
		t.Fatalf("error = %v, want transient RPCError", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("error = %v, want deadline exceeded", err)
	}
}

func TestDial_ConnectError(t *testing.T) {
	refused := errors.New("connection refused")
	_, _, err := Dial(func() (*kos.Sim, error) { return nil, refused }, 0)

	var rpcErr *RPCError
	if !errors.As(err, &rpcErr) || rpcErr.Kind != Connect {
		t.Fatalf("error = %v, want connect RPCError", err)
	}
	if !errors.Is(err, refused) {
		t.Errorf("error does not wrap cause: %v", err)
	}

	link, sim, err := Dial(func() (*kos.Sim, error) { return newSim(), nil }, 0)
	if err != nil || link == nil || sim == nil {
		t.Fatalf("Dial = %v, %v, %v", link, sim, err)
	}
	if link.timeout != DefaultRPCTimeout {
		t.Errorf("timeout = %v, want %v", link.timeout, DefaultRPCTimeout)
	}
}
