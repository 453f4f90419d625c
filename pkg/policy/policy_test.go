package policy

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/willothy/khacks-0.3/pkg/robot"
)

func TestClient_Infer(t *testing.T) {
	dofs := robot.CanonicalDOFs()

	var got map[string]json.RawMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("content type = %q", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}

		out := make(map[string]float64, len(dofs))
		for i, d := range dofs {
			out[d.Name] = float64(i)
		}
		json.NewEncoder(w).Encode(out)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	n := len(dofs)
	obs := Observation{
		ProjectedGravity: [3]float64{0, 0, 1},
		DOFPos:           make([]float64, n),
		DOFVel:           make([]float64, n),
		Actions:          make([]float64, n),
	}

	out, err := c.Infer(context.Background(), obs)
	if err != nil {
		t.Fatalf("Infer: %v", err)
	}

	for _, key := range []string{"base_ang_vel", "projected_gravity", "commands", "dof_pos", "dof_vel", "actions"} {
		if _, ok := got[key]; !ok {
			t.Errorf("request missing %q", key)
		}
	}

	targets, err := out.Targets(dofs)
	if err != nil {
		t.Fatalf("Targets: %v", err)
	}
	for i, v := range targets {
		if v != float64(i) {
			t.Errorf("targets[%d] (%s) = %f, want %d", i, dofs[i].Name, v, i)
		}
	}
}

func TestClient_Infer_Errors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		status  int
	}{
		{
			name: "server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "model not loaded", http.StatusInternalServerError)
			},
			status: http.StatusInternalServerError,
		},
		{
			name: "bad json",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{"L_Hip_Yaw": "fast"}`))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			_, err := NewClient(srv.URL, time.Second).Infer(context.Background(), Observation{})
			var ierr *InferenceError
			if !errors.As(err, &ierr) {
				t.Fatalf("Infer error = %v, want *InferenceError", err)
			}
			if ierr.StatusCode != tt.status {
				t.Errorf("status = %d, want %d", ierr.StatusCode, tt.status)
			}
		})
	}
}

func TestClient_Infer_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := NewClient(srv.URL, 0).Infer(ctx, Observation{})
	var ierr *InferenceError
	if !errors.As(err, &ierr) {
		t.Fatalf("Infer error = %v, want *InferenceError", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Infer error = %v, want deadline exceeded", err)
	}
}

func TestOutput_Targets_Missing(t *testing.T) {
	out := Output{"L_Hip_Yaw": 1}
	if _, err := out.Targets(robot.CanonicalDOFs()); err == nil {
		t.Fatal("expected error for incomplete output")
	}
}
