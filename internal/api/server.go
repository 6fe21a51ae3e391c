// Package api exposes simulations and transpose planning over HTTP.
package api

import (
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"github.com/labstack/echo/v5"

	"github.com/samcharles93/convmap/internal/gmap"
	"github.com/samcharles93/convmap/internal/logger"
	"github.com/samcharles93/convmap/internal/transpose"
)

// Options configures a Server.
type Options struct {
	// Workers is passed to every simulation.
	Workers int
	// ComputeUnits is used for transpose plans that do not name one.
	ComputeUnits int
}

type Server struct {
	store *RunStore
	opts  Options
	clock func() time.Time
}

func NewServer(store *RunStore, opts Options) *Server {
	if store == nil {
		store = NewRunStore()
	}
	if opts.ComputeUnits <= 0 {
		opts.ComputeUnits = 1
	}
	return &Server{store: store, opts: opts, clock: time.Now}
}

func (s *Server) Register(e *echo.Echo) {
	e.POST("/v1/gmap", s.handleCreateRun)
	e.GET("/v1/gmap/:id", s.handleGetRun)
	e.DELETE("/v1/gmap/:id", s.handleDeleteRun)
	e.GET("/v1/transpose/plan", s.handleTransposePlan)
}

func (s *Server) handleCreateRun(c *echo.Context) error {
	req, err := decodeJSON[GmapRequest](c.Request().Body)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}
	p := req.Conv.WithDefaults()
	ctx := c.Request().Context()

	res, err := gmap.Simulate(ctx, p, req.Tunable, req.GKS, gmap.Options{Workers: s.opts.Workers})
	if err != nil {
		return writeFailure(c, err)
	}
	warnings := res.Check(ctx)

	run := s.store.Put(GmapRun{
		CreatedAt:    s.clock().Unix(),
		Kernel:       req.Tunable.KernelName(),
		GridSize:     res.GridSize,
		BlockSize:    res.BlockSize,
		Conv:         p,
		Tunable:      req.Tunable,
		GKS:          req.GKS,
		Operands:     summarize(res),
		WarningCount: len(warnings),
		Warnings:     warningsDTO(warnings),
	})
	logger.FromContext(ctx).Info("gmap run stored", "id", run.ID, "kernel", run.Kernel, "warnings", run.WarningCount)
	return c.JSON(http.StatusOK, run)
}

func (s *Server) handleGetRun(c *echo.Context) error {
	run, ok := s.store.Get(c.Param("id"))
	if !ok {
		return writeNotFound(c, "gmap run not found")
	}
	return c.JSON(http.StatusOK, run)
}

func (s *Server) handleDeleteRun(c *echo.Context) error {
	id := c.Param("id")
	if !s.store.Delete(id) {
		return writeNotFound(c, "gmap run not found")
	}
	return c.JSON(http.StatusOK, DeleteResponse{ID: id, Object: "gmap.run", Deleted: true})
}

func (s *Server) handleTransposePlan(c *echo.Context) error {
	batch, err := queryUint32(c, "batch", 0)
	if err != nil {
		return writeFailure(c, err)
	}
	height, err := queryUint32(c, "height", 0)
	if err != nil {
		return writeFailure(c, err)
	}
	width, err := queryUint32(c, "width", 0)
	if err != nil {
		return writeFailure(c, err)
	}
	elem, err := queryUint32(c, "elem_bytes", 4)
	if err != nil {
		return writeFailure(c, err)
	}
	cus, err := queryUint32(c, "compute_units", uint32(s.opts.ComputeUnits))
	if err != nil {
		return writeFailure(c, err)
	}

	name, err := transpose.KernelName(int(elem))
	if err != nil {
		return writeFailure(c, err)
	}
	plan, err := transpose.NewPlan(batch, height, width, int(cus))
	if err != nil {
		return writeFailure(c, err)
	}
	args := plan.Args(0, 0)
	packed, err := args.MarshalBinary()
	if err != nil {
		return writeFailure(c, err)
	}
	return c.JSON(http.StatusOK, TransposePlanResponse{
		Kernel:  name,
		Plan:    plan,
		Args:    args.String(),
		ArgsHex: hex.EncodeToString(packed),
	})
}

func queryUint32(c *echo.Context, name string, def uint32) (uint32, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		if def == 0 {
			return 0, newInvalidRequest(fmt.Sprintf("missing query parameter %q", name))
		}
		return def, nil
	}
	v, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return 0, newInvalidRequest(fmt.Sprintf("query parameter %q: %v", name, err))
	}
	return uint32(v), nil
}

func decodeJSON[T any](r io.Reader) (T, error) {
	var out T
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&out); err != nil {
		return out, newInvalidRequest(fmt.Sprintf("decode request: %v", err))
	}
	return out, nil
}
