package api

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	apperrors "github.com/opendental/eob-processor/internal/errors"
	"github.com/opendental/eob-processor/internal/metrics"
	"github.com/opendental/eob-processor/internal/models"
)

func (s *Server) handleRoot(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"service": "eob-processor",
		"version": "1.0.0",
	})
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":    "ok",
		"timestamp": time.Now().Unix(),
	})
}

func (s *Server) handleMetrics(c *fiber.Ctx) error {
	c.Set("Content-Type", "text/plain; charset=utf-8")
	return c.SendString(metrics.Default().Prometheus())
}

func (s *Server) handleMetricsJSON(c *fiber.Ctx) error {
	return c.JSON(metrics.Default().Snapshot())
}

// handleProcess accepts a run and processes it in the background. The
// completion event goes to the downstream function, not the caller.
func (s *Server) handleProcess(c *fiber.Ctx) error {
	req, err := s.parseRequest(c)
	if err != nil {
		return badRequest(c, err)
	}

	runID := uuid.New().String()
	s.runner.Submit("eob:"+req.EobID, func(ctx context.Context) {
		report := s.processor.Run(ctx, runID, req, true)
		if report.Err != nil {
			s.logger.Error("background run failed",
				zap.String("run_id", report.RunID),
				zap.String("eob_id", req.EobID),
				zap.Error(report.Err),
			)
		}
	})

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"status": "processing started",
		"eobId":  req.EobID,
		"runId":  runID,
	})
}

// handleProcessSync runs the pipeline inline and returns the full
// envelope. No downstream notification is sent on this path.
func (s *Server) handleProcessSync(c *fiber.Ctx) error {
	req, err := s.parseRequest(c)
	if err != nil {
		return badRequest(c, err)
	}

	report := s.processor.Run(c.UserContext(), "", req, false)
	if report.Err != nil {
		return c.Status(statusFor(report.Err)).JSON(fiber.Map{
			"error": report.Err.Error(),
			"code":  apperrors.GetCode(report.Err),
		})
	}

	return c.JSON(report.Envelope)
}

func (s *Server) parseRequest(c *fiber.Ctx) (models.ProcessRequest, error) {
	var req models.ProcessRequest
	if err := c.BodyParser(&req); err != nil {
		return req, apperrors.Wrap(err, apperrors.ErrBadRequest.Code, "invalid request body")
	}
	if req.EobID == "" {
		return req, apperrors.Wrap(nil, apperrors.ErrBadRequest.Code, "eobId is required")
	}
	if req.UploadedDataPath == "" {
		return req, apperrors.Wrap(nil, apperrors.ErrBadRequest.Code, "uploadedDataPath is required")
	}
	if req.ProcessedDataPath == "" {
		return req, apperrors.Wrap(nil, apperrors.ErrBadRequest.Code, "processedDataPath is required")
	}
	return req, nil
}

func badRequest(c *fiber.Ctx, err error) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"error": err.Error(),
		"code":  apperrors.GetCode(err),
	})
}

// statusFor maps pipeline error codes onto HTTP statuses for the
// synchronous path.
func statusFor(err error) int {
	switch apperrors.GetCode(err) {
	case apperrors.ErrObjectNotFound.Code:
		return fiber.StatusNotFound
	case apperrors.ErrSchemaValidation.Code:
		return fiber.StatusUnprocessableEntity
	case apperrors.ErrStorageTransport.Code,
		apperrors.ErrOcrService.Code,
		apperrors.ErrLlmService.Code:
		return fiber.StatusBadGateway
	case apperrors.ErrBadRequest.Code:
		return fiber.StatusBadRequest
	default:
		return fiber.StatusInternalServerError
	}
}
