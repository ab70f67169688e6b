package handler

import (
	"errors"
	"fmt"
	"net/url"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/morphreel/api/internal/model"
	"github.com/morphreel/api/internal/service"
	"github.com/morphreel/api/pkg/response"
)

type RenderHandler struct {
	service   *service.RenderService
	validator *validator.Validate
	publicURL string
}

// NewRenderHandler creates the render API handler. publicURL, when set,
// overrides the request host when deriving WebSocket URLs (needed
// behind a reverse proxy).
func NewRenderHandler(svc *service.RenderService, v *validator.Validate, publicURL string) *RenderHandler {
	return &RenderHandler{
		service:   svc,
		validator: v,
		publicURL: publicURL,
	}
}

// Start handles POST /api/render/start
func (h *RenderHandler) Start(c *fiber.Ctx) error {
	var req model.RenderStartRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	result, err := h.service.StartRender(c.Context(), &req, h.websocketURL(c))
	if err != nil {
		return response.ServiceError(c, err.Error())
	}

	return response.Accepted(c, result)
}

// Status handles GET /api/render/status/:jobId
func (h *RenderHandler) Status(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	result, err := h.service.GetStatus(c.Context(), jobID)
	if err != nil {
		if errors.Is(err, service.ErrJobNotFound) {
			return response.NotFound(c, "Job not found")
		}
		return response.ServiceError(c, err.Error())
	}

	return response.OK(c, result)
}

// List handles GET /api/renders
func (h *RenderHandler) List(c *fiber.Ctx) error {
	result, err := h.service.ListRenders(c.Context())
	if err != nil {
		return response.ServiceError(c, err.Error())
	}
	return response.OK(c, result)
}

// Cancel handles POST /api/render/cancel/:jobId
func (h *RenderHandler) Cancel(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	err := h.service.CancelJob(c.Context(), jobID)
	if err != nil {
		if errors.Is(err, service.ErrJobNotFound) {
			return response.NotFound(c, "Job not found")
		}
		if errors.Is(err, service.ErrJobFinished) {
			return response.Conflict(c, "Job already finished")
		}
		return response.ServiceError(c, err.Error())
	}

	job, err := h.service.GetJob(c.Context(), jobID)
	if err != nil {
		return response.ServiceError(c, err.Error())
	}

	return response.OK(c, model.RenderCancelResponse{
		Success: true,
		JobID:   jobID,
		State:   job.State,
	})
}

// Delete handles DELETE /api/render/:jobId
func (h *RenderHandler) Delete(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	err := h.service.DeleteJob(c.Context(), jobID)
	if err != nil {
		if errors.Is(err, service.ErrJobNotFound) {
			return response.NotFound(c, "Job not found")
		}
		if errors.Is(err, service.ErrJobFinished) {
			return response.Conflict(c, "Cancel the job before deleting it")
		}
		return response.ServiceError(c, err.Error())
	}

	return response.NoContent(c)
}

// websocketURL derives the progress channel address for a job: the
// request scheme swapped to ws/wss, path parameterized by job ID.
func (h *RenderHandler) websocketURL(c *fiber.Ctx) func(jobID string) string {
	host := h.publicURL
	scheme := "ws"
	if host == "" {
		host = c.Hostname()
		if c.Protocol() == "https" {
			scheme = "wss"
		}
	} else {
		if u, err := url.Parse(host); err == nil && u.Host != "" {
			if u.Scheme == "https" || u.Scheme == "wss" {
				scheme = "wss"
			}
			host = u.Host
		} else if c.Secure() {
			scheme = "wss"
		}
	}
	return func(jobID string) string {
		return fmt.Sprintf("%s://%s/ws/render/%s", scheme, host, jobID)
	}
}

func formatValidationErrors(err error) interface{} {
	if validationErrors, ok := err.(validator.ValidationErrors); ok {
		errors := make(map[string]string)
		for _, e := range validationErrors {
			errors[e.Field()] = e.Tag()
		}
		return errors
	}
	return nil
}
