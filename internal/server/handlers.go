package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/attribute"

	pipeerrors "toolpipe/internal/errors"
	"toolpipe/internal/observability"
	"toolpipe/internal/toolargs"
	"toolpipe/internal/toolexec"
)

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, APIResponse{
		Success: true,
		Data: HealthResponse{
			Status:    "ok",
			Version:   s.version,
			Timestamp: time.Now(),
			Uptime:    time.Since(s.startTime).Round(time.Second).String(),
			Tools:     len(s.pipeline.List()),
		},
	})
}

func (s *Server) toolInfo(name string, stats map[string]toolexec.ToolStats) (ToolInfo, error) {
	desc, policy, err := s.pipeline.Describe(name)
	if err != nil {
		return ToolInfo{}, err
	}
	return ToolInfo{
		Name:        desc.Name,
		Description: desc.Description,
		Policy:      newPolicyView(policy),
		Stats:       stats[name],
	}, nil
}

func (s *Server) statsByName() map[string]toolexec.ToolStats {
	all := s.pipeline.Stats()
	out := make(map[string]toolexec.ToolStats, len(all))
	for _, st := range all {
		out[st.Name] = st
	}
	return out
}

func (s *Server) handleListTools(c *gin.Context) {
	stats := s.statsByName()
	descriptors := s.pipeline.List()
	tools := make([]ToolInfo, 0, len(descriptors))
	for _, desc := range descriptors {
		info, err := s.toolInfo(desc.Name, stats)
		if err != nil {
			// Unregistered between List and Describe.
			continue
		}
		tools = append(tools, info)
	}
	c.JSON(http.StatusOK, APIResponse{Success: true, Data: tools})
}

func (s *Server) handleGetTool(c *gin.Context) {
	info, err := s.toolInfo(c.Param("name"), s.statsByName())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, APIResponse{Success: true, Data: info})
}

func (s *Server) handleUnregisterTool(c *gin.Context) {
	name := c.Param("name")
	if err := s.pipeline.Unregister(name); err != nil {
		s.fail(c, err)
		return
	}
	s.refreshToolGauge()
	c.JSON(http.StatusOK, APIResponse{Success: true, Data: gin.H{"unregistered": name}})
}

func (s *Server) handleClearCache(c *gin.Context) {
	name := c.Param("name")
	if err := s.pipeline.ClearCache(name); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, APIResponse{Success: true, Data: gin.H{"cleared": name}})
}

func (s *Server) handleInvoke(c *gin.Context) {
	name := c.Param("name")

	var req InvokeRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			s.fail(c, pipeerrors.NewPermanent(err, "Invalid request body: %v", err))
			return
		}
	}
	args, err := decodeArgs(req.Args)
	if err != nil {
		s.fail(c, err)
		return
	}

	start := time.Now()
	result, err := s.pipeline.ExecuteTool(c.Request.Context(), name, args)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, APIResponse{
		Success: true,
		Data: InvokeResponse{
			Tool:       name,
			Result:     result,
			DurationMs: time.Since(start).Milliseconds(),
		},
	})
}

// decodeArgs accepts an object, a string holding a (possibly malformed)
// object, or nothing.
func decodeArgs(raw json.RawMessage) (map[string]any, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return map[string]any{}, nil
	}
	if raw[0] == '"' {
		var text string
		if err := json.Unmarshal(raw, &text); err != nil {
			return nil, pipeerrors.NewPermanent(err, "Invalid args string: %v", err)
		}
		return toolargs.Parse(text)
	}
	return toolargs.Parse(string(raw))
}

func (s *Server) handleBatch(c *gin.Context) {
	var req BatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, pipeerrors.NewPermanent(err, "Invalid request body: %v", err))
		return
	}
	for i := range req.Invocations {
		if req.Invocations[i].Args == nil {
			req.Invocations[i].Args = map[string]any{}
		}
	}

	ctx, span := s.tracer.StartSpan(c.Request.Context(), observability.SpanToolBatch,
		attribute.Int(observability.AttrBatchSize, len(req.Invocations)),
		attribute.Bool(observability.AttrParallel, req.Parallel),
	)
	defer span.End()

	start := time.Now()
	results, err := s.pipeline.ExecuteBatch(ctx, req.Invocations, req.Parallel)
	if err != nil {
		span.SetAttributes(observability.ErrorAttrs(err.Error())...)
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, APIResponse{
		Success: true,
		Data: BatchResponse{
			Results:    results,
			DurationMs: time.Since(start).Milliseconds(),
		},
	})
}

// handleEvents streams telemetry events as JSON text frames until the
// client disconnects or the server shuts down.
func (s *Server) handleEvents(c *gin.Context) {
	s.wg.Add(1)
	defer s.wg.Done()

	events, unsubscribe := s.hub.Subscribe()
	defer unsubscribe()

	conn, err := s.wsUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-s.ctx.Done():
			_ = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
			return
		case <-closed:
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteJSON(event); err != nil {
				s.logger.Debug("websocket write failed: %v", err)
				return
			}
		}
	}
}

// fail writes the classified error. Rejections are counted by the pipeline
// monitor, not here.
func (s *Server) fail(c *gin.Context, err error) {
	kind := pipeerrors.Classify(err)
	status := pipeerrors.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed: %v", err)
	}
	c.JSON(status, APIResponse{
		Success: false,
		Error:   pipeerrors.FormatForLLM(err),
		Code:    string(kind),
	})
}
