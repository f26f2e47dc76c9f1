package web

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-snapclass/pkg/history"
	"github.com/teslashibe/go-snapclass/pkg/hub"
	"github.com/teslashibe/go-snapclass/pkg/scheduler"
)

// StatusResponse is the body of GET /api/status and every control route.
type StatusResponse struct {
	State           string          `json:"state"`
	Running         bool            `json:"running"`
	IntervalSeconds float64         `json:"interval_seconds"`
	PeriodMs        int64           `json:"period_ms"`
	Stats           scheduler.Stats `json:"stats"`
	Clients         int             `json:"clients"`
	History         int             `json:"history"`
	HistoryCapacity int             `json:"history_capacity"`
	ServerURL       string          `json:"server_url"`
}

// IntervalRequest is the body of PUT /api/interval. Text, when present,
// is parsed like the dashboard input box; otherwise Seconds is used.
type IntervalRequest struct {
	Seconds *float64 `json:"seconds"`
	Text    *string  `json:"text"`
}

// SnapResponse is returned by POST /api/snap.
type SnapResponse struct {
	Seq     uint64         `json:"seq"`
	Trigger string         `json:"trigger"`
	Entry   *history.Entry `json:"entry,omitempty"`
}

func (s *Server) status() StatusResponse {
	resp := StatusResponse{
		State:           scheduler.Idle.String(),
		Clients:         s.results.ClientCount(),
		History:         s.history.Len(),
		HistoryCapacity: s.history.Capacity(),
		ServerURL:       s.config.ServerURL,
	}
	if ctrl := s.controller(); ctrl != nil {
		st := ctrl.Status()
		resp.State = st.State.String()
		resp.Running = st.State == scheduler.Running
		resp.IntervalSeconds = st.Period.Seconds()
		resp.PeriodMs = st.Period.Milliseconds()
		resp.Stats = st.Stats
	}
	return resp
}

func (s *Server) broadcastStatus() {
	if err := s.results.BroadcastEvent("status", s.status()); err != nil {
		s.logger.Warn("broadcast status failed", "error", err)
	}
}

func errorJSON(c *fiber.Ctx, code int, msg string) error {
	return c.Status(code).JSON(fiber.Map{"error": msg})
}

func (s *Server) requireController(c *fiber.Ctx) (Controller, error) {
	ctrl := s.controller()
	if ctrl == nil {
		return nil, errorJSON(c, fiber.StatusServiceUnavailable, "scheduler not attached")
	}
	return ctrl, nil
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":  "ok",
		"clients": s.results.ClientCount(),
	})
}

func (s *Server) handleStatus(c *fiber.Ctx) error {
	return c.JSON(s.status())
}

// handleSnap dispatches a manual cycle. With ?wait=1 it blocks until the
// cycle completes and returns the history entry.
func (s *Server) handleSnap(c *fiber.Ctx) error {
	ctrl := s.controller()
	if ctrl == nil {
		return errorJSON(c, fiber.StatusServiceUnavailable, "scheduler not attached")
	}

	cycle := ctrl.Snap()
	if cycle == nil {
		return errorJSON(c, fiber.StatusServiceUnavailable, "scheduler closed")
	}
	resp := SnapResponse{Seq: cycle.Seq, Trigger: string(cycle.Trigger)}

	if !c.QueryBool("wait") {
		return c.Status(fiber.StatusAccepted).JSON(resp)
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.config.SnapTimeout)
	defer cancel()

	res, err := cycle.Wait(ctx)
	switch {
	case errors.Is(err, scheduler.ErrSkipped):
		return errorJSON(c, fiber.StatusConflict, "source not ready")
	case err != nil:
		return errorJSON(c, fiber.StatusGatewayTimeout, err.Error())
	}

	if entry, ok := s.history.BySeq(res.Seq); ok {
		resp.Entry = &entry
	}
	return c.JSON(resp)
}

func (s *Server) handleAutoStart(c *fiber.Ctx) error {
	ctrl, err := s.requireController(c)
	if ctrl == nil {
		return err
	}
	ctrl.Start()
	s.broadcastStatus()
	return c.JSON(s.status())
}

func (s *Server) handleAutoStop(c *fiber.Ctx) error {
	ctrl, err := s.requireController(c)
	if ctrl == nil {
		return err
	}
	ctrl.Stop()
	s.broadcastStatus()
	return c.JSON(s.status())
}

func (s *Server) handleAutoToggle(c *fiber.Ctx) error {
	ctrl, err := s.requireController(c)
	if ctrl == nil {
		return err
	}
	ctrl.Toggle()
	s.broadcastStatus()
	return c.JSON(s.status())
}

func (s *Server) handleSetInterval(c *fiber.Ctx) error {
	ctrl, err := s.requireController(c)
	if ctrl == nil {
		return err
	}

	var req IntervalRequest
	if err := c.BodyParser(&req); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "invalid body: "+err.Error())
	}

	switch {
	case req.Text != nil:
		ctrl.SetIntervalText(*req.Text)
	case req.Seconds != nil:
		ctrl.SetInterval(*req.Seconds)
	default:
		return errorJSON(c, fiber.StatusBadRequest, "seconds or text required")
	}

	s.broadcastStatus()
	return c.JSON(s.status())
}

func (s *Server) handleHistory(c *fiber.Ctx) error {
	entries := s.history.List()
	if limit := c.QueryInt("limit", 0); limit > 0 && limit < len(entries) {
		entries = entries[:limit]
	}
	return c.JSON(entries)
}

func (s *Server) handleHistoryEntry(c *fiber.Ctx) error {
	entry, ok := s.history.Get(c.Params("id"))
	if !ok {
		return errorJSON(c, fiber.StatusNotFound, "no such entry")
	}
	return c.JSON(entry)
}

func (s *Server) handleHistoryImage(c *fiber.Ctx) error {
	data, ok := s.history.Image(c.Params("id"))
	if !ok {
		return errorJSON(c, fiber.StatusNotFound, "no image")
	}
	return sendJPEG(c, data)
}

func (s *Server) handleHistoryThumb(c *fiber.Ctx) error {
	data, ok := s.history.Thumb(c.Params("id"))
	if !ok {
		return errorJSON(c, fiber.StatusNotFound, "no image")
	}
	return sendJPEG(c, data)
}

func sendJPEG(c *fiber.Ctx, data []byte) error {
	c.Set(fiber.HeaderContentType, "image/jpeg")
	c.Set(fiber.HeaderContentLength, strconv.Itoa(len(data)))
	c.Set(fiber.HeaderCacheControl, "private, max-age=3600")
	return c.Send(data)
}

// handleResultsWS sends the current status and history snapshot, then
// hands the connection to the hub.
func (s *Server) handleResultsWS(c *websocket.Conn) {
	if err := c.WriteJSON(hub.Event{Type: "status", Data: s.status()}); err != nil {
		return
	}
	entries := s.history.List()
	if err := c.WriteJSON(hub.Event{Type: "history", Data: entries}); err != nil {
		return
	}

	remote := "unknown"
	if addr := c.RemoteAddr(); addr != nil {
		remote = strings.TrimSpace(addr.String())
	}
	s.logger.Debug("results client attached", "remote", remote)

	hub.NewClient(s.results, c).Run()
}
