package handler

import (
	"github.com/gin-gonic/gin"

	"trust-fund-service/controller/respond"
	"trust-fund-service/service/mirror_service"
)

// ChainHandler outbox and chain status handler
type ChainHandler struct {
	mirror *mirror_service.MirrorService
}

// NewChainHandler create chain handler
func NewChainHandler(mirror *mirror_service.MirrorService) *ChainHandler {
	return &ChainHandler{mirror: mirror}
}

// GetMirrorWrite outbox entry of a chain transaction
// @Summary Mirror write status
// @Description Poll after a 202 MirrorPending answer
// @Tags Chain
// @Produce json
// @Param txRef path string true "Chain transaction hash"
// @Success 200 {object} respond.Response{data=model.MirrorWrite}
// @Failure 404 {object} respond.Response
// @Router /api/v1/mirror/{txRef} [get]
func (h *ChainHandler) GetMirrorWrite(c *gin.Context) {
	w, err := h.mirror.Get(c.Param("txRef"))
	if err != nil {
		respond.Error(c, err)
		return
	}
	respond.Success(c, w)
}

// GetChainStatus latest block and outbox backlog
// @Summary Chain status
// @Tags Chain
// @Produce json
// @Success 200 {object} respond.Response{data=mirror_service.ChainStatus}
// @Router /api/v1/chain/status [get]
func (h *ChainHandler) GetChainStatus(c *gin.Context) {
	st, err := h.mirror.Status(c.Request.Context())
	if err != nil {
		respond.Error(c, err)
		return
	}
	respond.Success(c, st)
}
