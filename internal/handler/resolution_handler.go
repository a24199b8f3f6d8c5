package handler

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/Enochteo/web103-finalproject/internal/service"
	appErrors "github.com/Enochteo/web103-finalproject/pkg/errors"
	"github.com/Enochteo/web103-finalproject/pkg/response"
)

// ResolutionHandler exposes resolution endpoints nested under requests.
type ResolutionHandler struct {
	resolutions *service.ResolutionService
}

// NewResolutionHandler constructs handler.
func NewResolutionHandler(resolutions *service.ResolutionService) *ResolutionHandler {
	return &ResolutionHandler{resolutions: resolutions}
}

// Record godoc
// @Summary Record a resolution and close out a request
// @Tags Resolutions
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Request ID"
// @Param payload body service.RecordResolutionRequest true "Resolution payload"
// @Success 201 {object} response.Envelope
// @Router /requests/{id}/resolution [post]
func (h *ResolutionHandler) Record(c *gin.Context) {
	id, err := idParam(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	var req service.RecordResolutionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	resolution, err := h.resolutions.Record(c.Request.Context(), principalFromContext(c), id, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, resolution)
}

var resolutionListKeys = map[string]struct{}{
	"request_id":  {},
	"request_ids": {},
}

// List godoc
// @Summary List resolutions for one or more requests
// @Tags Resolutions
// @Produce json
// @Param request_id query int false "Single request ID"
// @Param request_ids query string false "Comma-separated request IDs"
// @Success 200 {object} response.Envelope
// @Router /resolutions [get]
func (h *ResolutionHandler) List(c *gin.Context) {
	for key := range c.Request.URL.Query() {
		if _, ok := resolutionListKeys[key]; !ok {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown query parameter %q", key)))
			return
		}
	}

	var ids []int64
	raw := c.Query("request_ids")
	if single := c.Query("request_id"); single != "" {
		raw = strings.TrimSuffix(single+","+raw, ",")
	}
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil || id <= 0 {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("invalid request id %q", part)))
			return
		}
		ids = append(ids, id)
	}

	resolutions, err := h.resolutions.List(c.Request.Context(), principalFromContext(c), ids)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, resolutions, nil)
}

// Get godoc
// @Summary Fetch the resolution for a request
// @Tags Resolutions
// @Produce json
// @Param id path int true "Request ID"
// @Success 200 {object} response.Envelope
// @Router /requests/{id}/resolution [get]
func (h *ResolutionHandler) Get(c *gin.Context) {
	id, err := idParam(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	resolution, err := h.resolutions.Get(c.Request.Context(), principalFromContext(c), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, resolution, nil)
}
