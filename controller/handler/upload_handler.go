package handler

import (
	"github.com/gin-gonic/gin"

	"trust-fund-service/controller/respond"
	"trust-fund-service/service/storage_service"
)

// UploadHandler image upload handler
type UploadHandler struct {
	storage *storage_service.StorageService
}

// NewUploadHandler create upload handler
func NewUploadHandler(storage *storage_service.StorageService) *UploadHandler {
	return &UploadHandler{storage: storage}
}

// UploadImage pin an image to IPFS
// @Summary Upload image
// @Description Pins the image through Pinata and returns its CID and gateway URL
// @Tags Upload
// @Accept multipart/form-data
// @Produce json
// @Security CookieAuth
// @Param file formData file true "Image file"
// @Success 200 {object} respond.Response{data=storage_service.Pinned}
// @Failure 400 {object} respond.Response
// @Failure 502 {object} respond.Response
// @Router /api/v1/upload/image [post]
func (h *UploadHandler) UploadImage(c *gin.Context) {
	fh, err := c.FormFile("file")
	if err != nil {
		respond.InvalidParam(c, "file is required")
		return
	}
	if err := h.storage.CheckImage(fh.Filename, fh.Size); err != nil {
		respond.Error(c, err)
		return
	}
	f, err := fh.Open()
	if err != nil {
		log.Errorf("Open upload %s: %v", fh.Filename, err)
		respond.InvalidParam(c, "unreadable file")
		return
	}
	p, err := h.storage.PinImage(c.Request.Context(), fh.Filename, fh.Size, f)
	if err != nil {
		respond.Error(c, err)
		return
	}
	respond.Success(c, p)
}
