package server

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/willothy/khacks-0.3/pkg/moves"
	"github.com/willothy/khacks-0.3/pkg/robot"
	"github.com/willothy/khacks-0.3/pkg/walk"
)

// ErrResponse is the body of every failed request.
type ErrResponse struct {
	Err            error  `json:"-"`
	HTTPStatusCode int    `json:"-"`
	StatusText     string `json:"status"`
	ErrorText      string `json:"error,omitempty"`
}

func (e *ErrResponse) Render(w http.ResponseWriter, r *http.Request) error {
	render.Status(r, e.HTTPStatusCode)
	return nil
}

func errResponse(status int, err error) render.Renderer {
	return &ErrResponse{
		Err:            err,
		HTTPStatusCode: status,
		StatusText:     http.StatusText(status),
		ErrorText:      err.Error(),
	}
}

// statusFor maps controller errors onto HTTP statuses: caller mistakes are
// 4xx, failures of the actuator service are 502.
func statusFor(err error) int {
	var rpcErr *robot.RPCError
	switch {
	case errors.Is(err, robot.ErrUnknownJoint):
		return http.StatusBadRequest
	case errors.Is(err, moves.ErrUnknownMove):
		return http.StatusNotFound
	case errors.Is(err, walk.ErrRunning), errors.Is(err, walk.ErrNotRunning):
		return http.StatusConflict
	case errors.As(err, &rpcErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= 500 {
		s.logger.Error("request failed", "path", r.URL.Path, "error", err)
	}
	render.Render(w, r, errResponse(status, err))
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, map[string]string{"status": "ok"})
}

type jointInfo struct {
	Name       string `json:"name"`
	Joint      string `json:"joint"`
	Axis       string `json:"axis"`
	ActuatorID int    `json:"actuator_id"`
}

func (s *Server) listJoints(w http.ResponseWriter, r *http.Request) {
	dofs := robot.AllDOFs()
	out := make([]jointInfo, 0, len(dofs))
	for _, d := range dofs {
		out = append(out, jointInfo{Name: d.Name, Joint: d.Joint.String(), Axis: d.Axis.String(), ActuatorID: int(d.ID)})
	}
	render.JSON(w, r, out)
}

type stateInfo struct {
	Name       string  `json:"name"`
	ActuatorID int     `json:"actuator_id"`
	Position   float64 `json:"position"`
	Velocity   float64 `json:"velocity"`
}

// readStates reads the canonical DOFs, or those named in ?dofs=a,b.
func (s *Server) readStates(w http.ResponseWriter, r *http.Request) {
	var names []string
	if q := r.URL.Query().Get("dofs"); q != "" {
		names = strings.Split(q, ",")
	}
	dofs, err := robot.ParseDOFSet(names)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	states, err := s.robot.ReadStates(r.Context(), robot.IDs(dofs))
	if err != nil {
		s.fail(w, r, err)
		return
	}

	out := make([]stateInfo, len(states))
	for i, st := range states {
		out[i] = stateInfo{Name: dofs[i].Name, ActuatorID: st.ActuatorID, Position: st.Position, Velocity: st.Velocity}
	}
	render.JSON(w, r, out)
}

type jointRequest struct {
	Axis string `json:"axis"`
	robot.Command
}

func (s *Server) commandJoint(w http.ResponseWriter, r *http.Request) {
	joint, err := robot.ParseJoint(chi.URLParam(r, "joint"))
	if err != nil {
		s.fail(w, r, err)
		return
	}

	var req jointRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		render.Render(w, r, errResponse(http.StatusBadRequest, fmt.Errorf("decode body: %w", err)))
		return
	}
	axis, err := robot.ParseAxis(req.Axis)
	if err != nil {
		render.Render(w, r, errResponse(http.StatusBadRequest, err))
		return
	}

	if err := s.robot.CommandJoint(r.Context(), joint, axis, req.Command); err != nil {
		s.fail(w, r, err)
		return
	}
	render.NoContent(w, r)
}

func (s *Server) listMoves(w http.ResponseWriter, r *http.Request) {
	type moveInfo struct {
		Name        string `json:"name"`
		Description string `json:"description"`
		Frames      int    `json:"frames"`
	}
	names := moves.Names()
	out := make([]moveInfo, 0, len(names))
	for _, name := range names {
		m, _ := moves.Get(name)
		out = append(out, moveInfo{Name: m.Name, Description: m.Description, Frames: len(m.Frames)})
	}
	render.JSON(w, r, out)
}

func (s *Server) playMove(w http.ResponseWriter, r *http.Request) {
	s.play(w, r, chi.URLParam(r, "name"))
}

func (s *Server) playNamed(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.play(w, r, name)
	}
}

func (s *Server) play(w http.ResponseWriter, r *http.Request, name string) {
	if err := moves.Play(r.Context(), s.robot, name); err != nil {
		s.fail(w, r, err)
		return
	}
	s.logger.Info("move played", "move", name)
	render.NoContent(w, r)
}

// walkRequest overrides parts of the base walk configuration.
type walkRequest struct {
	Duration      string      `json:"duration,omitempty"`
	Command       *[3]float64 `json:"command,omitempty"`
	DOFSet        []string    `json:"dof_set,omitempty"`
	PolicyRadians *bool       `json:"policy_radians,omitempty"`
}

func (req walkRequest) apply(cfg walk.Config) (walk.Config, error) {
	if req.Duration != "" {
		d, err := time.ParseDuration(req.Duration)
		if err != nil {
			return cfg, fmt.Errorf("duration: %w", err)
		}
		cfg.Duration = d
	}
	if req.Command != nil {
		cfg.Command = *req.Command
	}
	if len(req.DOFSet) > 0 {
		dofs, err := robot.ParseDOFSet(req.DOFSet)
		if err != nil {
			return cfg, err
		}
		cfg.DOFSet = dofs
	}
	if req.PolicyRadians != nil {
		cfg.PolicyRadians = *req.PolicyRadians
	}
	return cfg, nil
}

func (s *Server) walkStart(w http.ResponseWriter, r *http.Request) {
	var req walkRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil && !errors.Is(err, io.EOF) {
		render.Render(w, r, errResponse(http.StatusBadRequest, fmt.Errorf("decode body: %w", err)))
		return
	}
	cfg, err := req.apply(s.walkCfg)
	if err != nil {
		render.Render(w, r, errResponse(http.StatusBadRequest, err))
		return
	}

	if _, err := s.walker.Start(cfg); err != nil {
		if errors.Is(err, walk.ErrRunning) {
			s.fail(w, r, err)
			return
		}
		render.Render(w, r, errResponse(http.StatusBadRequest, err))
		return
	}
	render.Status(r, http.StatusAccepted)
	render.JSON(w, r, s.walker.Status())
}

func (s *Server) walkStop(w http.ResponseWriter, r *http.Request) {
	if err := s.walker.Stop(); err != nil {
		s.fail(w, r, err)
		return
	}
	render.JSON(w, r, s.walker.Status())
}

func (s *Server) walkStatus(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, s.walker.Status())
}
