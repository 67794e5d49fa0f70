// Package room exposes the lifecycle coordinator over HTTP.
package room

import (
	"encoding/json"
	"net/http"

	"PRoom/middleware"
	midsec "PRoom/middleware/security"
	"PRoom/module/room/service"
	"PRoom/tools/errs"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	coord   *service.Coordinator
	version string
}

func NewHandler(coord *service.Coordinator, version string) *Handler {
	return &Handler{coord: coord, version: version}
}

// Register mounts the webhook, web rpc and health routes. auth must set the
// caller id (see middleware/security).
func (h *Handler) Register(r gin.IRouter, auth gin.HandlerFunc) {
	opt := middleware.RouteOpt{Auth: auth}
	middleware.POST(r, "/webhooks/:path", h.Webhook, opt)
	middleware.POST(r, "/webrpc/GetGameList", h.GetGameList, opt)
	middleware.GET(r, "/healthz", h.Health, middleware.RouteOpt{})
}

// Webhook answers 200 with a Result for every request it can read.
func (h *Handler) Webhook(c *gin.Context) {
	raw, ok := h.bindObject(c)
	if !ok {
		return
	}
	res := h.coord.Dispatch(c.Request.Context(), c.Param("path"), midsec.CallerID(c), raw)
	c.JSON(http.StatusOK, res)
}

func (h *Handler) GetGameList(c *gin.Context) {
	raw, ok := h.bindObject(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, h.coord.List(c.Request.Context(), midsec.CallerID(c), raw))
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "version": h.version})
}

// bindObject reads a JSON object body. Anything else is answered and
// audited here.
func (h *Handler) bindObject(c *gin.Context) (map[string]any, bool) {
	body, err := c.GetRawData()
	var raw map[string]any
	if err == nil {
		err = json.Unmarshal(body, &raw)
	}
	if err != nil || raw == nil {
		if err != nil {
			_ = c.Error(err)
		}
		res := h.coord.Reject(c.Request.Context(), midsec.CallerID(c), errs.ErrInvariantViolation.WrapData(
			map[string]any{"Path": c.Request.URL.Path, "Body": string(body)}, "Malformed request body"))
		c.JSON(http.StatusOK, res)
		return nil, false
	}
	return raw, true
}
