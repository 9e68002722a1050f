package handler

import (
	"github.com/gin-gonic/gin"

	"trust-fund-service/controller/respond"
	model "trust-fund-service/models"
	"trust-fund-service/service/mirror_service"
)

// submitMirror sends a chain-confirmed write through the outbox. An applied
// entry answers with its result; anything still in flight answers 202 with
// the entry so the client can poll /mirror/:txRef.
func submitMirror(c *gin.Context, mirror *mirror_service.MirrorService, w *model.MirrorWrite, buildErr error) {
	if buildErr != nil {
		respond.Error(c, buildErr)
		return
	}
	got, err := mirror.Submit(c.Request.Context(), w)
	if err != nil {
		respond.Error(c, err)
		return
	}
	if got.Status == model.MirrorStatusApplied {
		respond.Success(c, got.Result)
		return
	}
	respond.Pending(c, got)
}
