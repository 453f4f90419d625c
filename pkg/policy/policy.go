// Package policy is the client of the external locomotion policy
// service: it posts one observation per control tick and returns target
// angles for the DOF set it was given.
package policy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/willothy/khacks-0.3/pkg/robot"
)

// DefaultEndpoint is where the policy server listens by default.
const DefaultEndpoint = "http://localhost:4242/infer"

// Observation is the input of one inference step. The DOF vectors are
// aligned to the DOF set of the walk loop.
type Observation struct {
	BaseAngVel       [3]float64 `json:"base_ang_vel"`
	ProjectedGravity [3]float64 `json:"projected_gravity"`
	Commands         [3]float64 `json:"commands"`
	DOFPos           []float64  `json:"dof_pos"`
	DOFVel           []float64  `json:"dof_vel"`
	Actions          []float64  `json:"actions"`
}

// Output maps DOF names (e.g. "L_Hip_Yaw") to target angles.
type Output map[string]float64

// Targets returns the output's values in the order of dofs.
func (o Output) Targets(dofs []robot.DOF) ([]float64, error) {
	targets := make([]float64, len(dofs))
	for i, d := range dofs {
		v, ok := o[d.Name]
		if !ok {
			return nil, &InferenceError{Op: "decode", Err: fmt.Errorf("missing target for %s", d.Name)}
		}
		targets[i] = v
	}
	return targets, nil
}

// InferenceError is returned when the policy service is unreachable or
// answers with something that is not a valid Output.
type InferenceError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *InferenceError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("inference %s: status %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("inference %s: %v", e.Op, e.Err)
}

func (e *InferenceError) Unwrap() error { return e.Err }

// Client posts observations to the policy service.
type Client struct {
	endpoint string
	http     *http.Client
}

// NewClient creates a client for endpoint. Requests are bounded by the
// caller's context; timeout is an upper bound on top of it.
func NewClient(endpoint string, timeout time.Duration) *Client {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	return &Client{
		endpoint: endpoint,
		http:     &http.Client{Timeout: timeout},
	}
}

// Endpoint returns the URL observations are posted to.
func (c *Client) Endpoint() string {
	return c.endpoint
}

// Infer runs one inference step.
func (c *Client) Infer(ctx context.Context, obs Observation) (Output, error) {
	body, err := json.Marshal(obs)
	if err != nil {
		return nil, &InferenceError{Op: "encode", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, &InferenceError{Op: "request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &InferenceError{Op: "request", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &InferenceError{Op: "request", StatusCode: resp.StatusCode, Err: fmt.Errorf("%s", bytes.TrimSpace(msg))}
	}

	var out Output
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, &InferenceError{Op: "decode", Err: err}
	}
	return out, nil
}
