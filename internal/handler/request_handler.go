package handler

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/Enochteo/web103-finalproject/internal/models"
	"github.com/Enochteo/web103-finalproject/internal/service"
	appErrors "github.com/Enochteo/web103-finalproject/pkg/errors"
	"github.com/Enochteo/web103-finalproject/pkg/response"
)

// listQueryKeys are the only query parameters the listing endpoints accept.
// Anything else is rejected rather than silently ignored.
var listQueryKeys = map[string]struct{}{
	"status":      {},
	"urgency":     {},
	"category_id": {},
	"user_id":     {},
	"assigned_to": {},
	"q":           {},
	"sort":        {},
	"order":       {},
	"page":        {},
	"limit":       {},
}

// RequestHandler exposes the maintenance request endpoints.
type RequestHandler struct {
	requests *service.RequestService
	exports  *service.ExportService
}

// NewRequestHandler constructs handler.
func NewRequestHandler(requests *service.RequestService, exports *service.ExportService) *RequestHandler {
	return &RequestHandler{requests: requests, exports: exports}
}

func parseRequestFilter(c *gin.Context, extraKeys ...string) (models.RequestFilter, error) {
	allowed := listQueryKeys
	if len(extraKeys) > 0 {
		allowed = make(map[string]struct{}, len(listQueryKeys)+len(extraKeys))
		for k := range listQueryKeys {
			allowed[k] = struct{}{}
		}
		for _, k := range extraKeys {
			allowed[k] = struct{}{}
		}
	}
	for key := range c.Request.URL.Query() {
		if _, ok := allowed[key]; !ok {
			return models.RequestFilter{}, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown query parameter %q", key))
		}
	}

	var filter models.RequestFilter

	if raw := c.Query("status"); raw != "" {
		status := models.RequestStatus(raw)
		if !status.Valid() {
			return filter, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown status %q", raw))
		}
		filter.Status = &status
	}
	if raw := c.Query("urgency"); raw != "" {
		urgency := models.Urgency(raw)
		if !urgency.Valid() {
			return filter, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown urgency %q", raw))
		}
		filter.Urgency = &urgency
	}
	for key, dest := range map[string]**int64{
		"category_id": &filter.CategoryID,
		"user_id":     &filter.UserID,
		"assigned_to": &filter.AssignedTo,
	} {
		raw := c.Query(key)
		if raw == "" {
			continue
		}
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return filter, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("invalid %s", key))
		}
		*dest = &id
	}

	filter.Search = c.Query("q")
	filter.SortBy = c.Query("sort")
	filter.SortOrder = c.Query("order")
	filter.Page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	filter.PageSize, _ = strconv.Atoi(c.DefaultQuery("limit", "20"))
	return filter, nil
}

// List godoc
// @Summary List maintenance requests
// @Tags Requests
// @Produce json
// @Param status query string false "Filter by status"
// @Param urgency query string false "Filter by urgency"
// @Param category_id query int false "Filter by category"
// @Param user_id query int false "Filter by submitter"
// @Param assigned_to query int false "Filter by assignee"
// @Param q query string false "Search title and description"
// @Param sort query string false "Sort field"
// @Param order query string false "asc or desc"
// @Param page query int false "Page number"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /requests [get]
func (h *RequestHandler) List(c *gin.Context) {
	filter, err := parseRequestFilter(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	requests, pagination, err := h.requests.List(c.Request.Context(), principalFromContext(c), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, requests, pagination)
}

// Mine godoc
// @Summary List the caller's own requests
// @Tags Requests
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /requests/mine [get]
func (h *RequestHandler) Mine(c *gin.Context) {
	principal := principalFromContext(c)
	if principal == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	filter, err := parseRequestFilter(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	filter.UserID = &principal.ID
	requests, pagination, err := h.requests.List(c.Request.Context(), principal, filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, requests, pagination)
}

// Assigned godoc
// @Summary List requests assigned to the calling technician
// @Tags Requests
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /requests/assigned [get]
func (h *RequestHandler) Assigned(c *gin.Context) {
	principal := principalFromContext(c)
	if principal == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	filter, err := parseRequestFilter(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	filter.AssignedTo = &principal.ID
	requests, pagination, err := h.requests.List(c.Request.Context(), principal, filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, requests, pagination)
}

// Get godoc
// @Summary Fetch a single request
// @Tags Requests
// @Produce json
// @Param id path int true "Request ID"
// @Success 200 {object} response.Envelope
// @Router /requests/{id} [get]
func (h *RequestHandler) Get(c *gin.Context) {
	id, err := idParam(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	detail, err := h.requests.Get(c.Request.Context(), principalFromContext(c), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, detail, nil)
}

// Create godoc
// @Summary Submit a new request
// @Tags Requests
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body service.CreateRequestRequest true "Request payload"
// @Success 201 {object} response.Envelope
// @Router /requests [post]
func (h *RequestHandler) Create(c *gin.Context) {
	var req service.CreateRequestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	request, err := h.requests.Create(c.Request.Context(), principalFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, request)
}

// Update godoc
// @Summary Edit request content
// @Tags Requests
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Request ID"
// @Param payload body service.UpdateRequestContentRequest true "Partial content payload"
// @Success 200 {object} response.Envelope
// @Router /requests/{id} [patch]
func (h *RequestHandler) Update(c *gin.Context) {
	id, err := idParam(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	var req service.UpdateRequestContentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	request, err := h.requests.UpdateContent(c.Request.Context(), principalFromContext(c), id, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, request, nil)
}

// Delete godoc
// @Summary Delete a request
// @Tags Requests
// @Security BearerAuth
// @Param id path int true "Request ID"
// @Success 204
// @Router /requests/{id} [delete]
func (h *RequestHandler) Delete(c *gin.Context) {
	id, err := idParam(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	if err := h.requests.Delete(c.Request.Context(), principalFromContext(c), id); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

type assignRequest struct {
	TechnicianID int64 `json:"technician_id" binding:"required"`
}

// Assign godoc
// @Summary Assign a technician to a request
// @Tags Requests
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Request ID"
// @Param payload body assignRequest true "Assignment payload"
// @Success 200 {object} response.Envelope
// @Router /requests/{id}/assign [patch]
func (h *RequestHandler) Assign(c *gin.Context) {
	id, err := idParam(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	var req assignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	request, err := h.requests.Assign(c.Request.Context(), principalFromContext(c), id, req.TechnicianID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, request, nil)
}

type updateStatusRequest struct {
	Status models.RequestStatus `json:"status" binding:"required"`
}

// UpdateStatus godoc
// @Summary Move a request through its lifecycle
// @Tags Requests
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Request ID"
// @Param payload body updateStatusRequest true "Status payload"
// @Success 200 {object} response.Envelope
// @Router /requests/{id}/status [patch]
func (h *RequestHandler) UpdateStatus(c *gin.Context) {
	id, err := idParam(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	var req updateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	request, err := h.requests.UpdateStatus(c.Request.Context(), principalFromContext(c), id, req.Status)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, request, nil)
}

// Export godoc
// @Summary Export the request listing as CSV or PDF
// @Tags Requests
// @Produce text/csv
// @Produce application/pdf
// @Security BearerAuth
// @Param format query string false "csv or pdf"
// @Success 200 {file} byte
// @Router /requests/export [get]
func (h *RequestHandler) Export(c *gin.Context) {
	filter, err := parseRequestFilter(c, "format")
	if err != nil {
		response.Error(c, err)
		return
	}
	format := service.ExportFormat(c.DefaultQuery("format", "csv"))
	result, err := h.exports.Export(c.Request.Context(), principalFromContext(c), filter, format)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.Filename))
	c.Data(http.StatusOK, result.ContentType, result.Content)
}
