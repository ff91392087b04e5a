// Package pipeline drives one EOB document through fetch, recognition,
// extraction, storage, and notification.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	apperrors "github.com/opendental/eob-processor/internal/errors"
	"github.com/opendental/eob-processor/internal/metrics"
	"github.com/opendental/eob-processor/internal/models"
	"github.com/opendental/eob-processor/internal/storage"
)

// resultObjectName is the fixed name of the output object written under
// the processed data path.
const resultObjectName = "eob-parsed.json"

// State marks how far a run got.
type State string

const (
	StateReceived   State = "received"
	StateFetched    State = "fetched"
	StateRecognized State = "recognized"
	StateExtracted  State = "extracted"
	StateStored     State = "stored"
	StateNotified   State = "notified"
	StateDone       State = "done"
	StateFailed     State = "failed"
)

// Gateway reads and writes objects by full location URL.
type Gateway interface {
	Fetch(ctx context.Context, location string) ([]byte, error)
	Store(ctx context.Context, location string, data []byte) error
}

// Recognizer turns a PDF into page text and tables.
type Recognizer interface {
	Recognize(ctx context.Context, document []byte) (*models.ExtractedDocument, error)
}

// FieldExtractor turns recognized pages into a structured result.
type FieldExtractor interface {
	Extract(ctx context.Context, doc *models.ExtractedDocument, providerOverride string) (*models.StructuredResult, error)
}

// EventNotifier delivers the completion event downstream.
type EventNotifier interface {
	Enabled() bool
	Notify(ctx context.Context, payload models.EventPayload) error
}

// RunReport is the outcome of one pipeline run.
type RunReport struct {
	RunID    string
	State    State
	FailedAt State
	Err      error
	Envelope models.ResultEnvelope
}

// Orchestrator owns the run sequence. It is safe for concurrent use.
type Orchestrator struct {
	bucket    string
	gateway   Gateway
	ocr       Recognizer
	extractor FieldExtractor
	notifier  EventNotifier
	logger    *zap.Logger
}

func New(bucket string, gateway Gateway, ocr Recognizer, extractor FieldExtractor, notifier EventNotifier, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{
		bucket:    bucket,
		gateway:   gateway,
		ocr:       ocr,
		extractor: extractor,
		notifier:  notifier,
		logger:    logger,
	}
}

// Run processes a single request end to end. With withNotify set, the
// completion event is delivered downstream as well; a notification
// failure is logged and counted but never fails the run. An empty
// runID gets a generated one; callers that answer before the run
// finishes pass their own so responses and logs correlate.
func (o *Orchestrator) Run(ctx context.Context, runID string, req models.ProcessRequest, withNotify bool) *RunReport {
	if runID == "" {
		runID = uuid.New().String()
	}
	report := &RunReport{
		RunID: runID,
		State: StateReceived,
	}
	started := time.Now()

	m := metrics.Default()
	m.IncrementActiveRuns()
	defer m.DecrementActiveRuns()
	defer func() {
		m.RecordRunDuration(time.Since(started))
		m.RecordRun(report.State != StateFailed)
	}()

	logger := o.logger.With(
		zap.String("run_id", report.RunID),
		zap.String("eob_id", req.EobID),
	)
	logger.Info("run started",
		zap.String("uploaded_data_path", req.UploadedDataPath),
		zap.String("processed_data_path", req.ProcessedDataPath),
	)

	result, err := o.process(ctx, req, report, logger)
	if err != nil {
		report.FailedAt = report.State
		report.State = StateFailed
		report.Err = err
		m.RecordStageFailure(string(report.FailedAt))
		logger.Error("run failed",
			zap.String("stage", string(report.FailedAt)),
			zap.Error(err),
		)
		report.Envelope = models.ResultEnvelope{
			EventPayload: models.EventPayload{
				EobID:             req.EobID,
				ProcessedDataPath: req.ProcessedDataPath,
				ProcessingStatus:  models.StatusFailed,
				Message:           err.Error(),
			},
		}
		if withNotify {
			o.deliver(ctx, report.Envelope.EventPayload, logger)
		}
		return report
	}

	m.RecordTokens(int64(result.TotalTokens))

	// A stored result with no records (or a soft error) is reported
	// FAILED downstream so the caller's failure handling fires, even
	// though the run itself completed and the object was written.
	status := models.StatusSuccess
	message := fmt.Sprintf("parsed %d record(s)", len(result.Records))
	if len(result.Records) == 0 || result.Error != "" {
		status = models.StatusFailed
		message = result.Error
	}
	report.Envelope = models.ResultEnvelope{
		EventPayload: models.EventPayload{
			EobID:             req.EobID,
			ProcessedDataPath: req.ProcessedDataPath,
			ProcessingStatus:  status,
			Message:           message,
			WarningCodes:      result.WarningCodes,
		},
		EobParsed: result,
	}

	if withNotify && o.deliver(ctx, report.Envelope.EventPayload, logger) {
		report.State = StateNotified
	} else {
		report.State = StateDone
	}

	logger.Info("run complete",
		zap.String("status", status),
		zap.Int("records", len(result.Records)),
		zap.Int("total_tokens", result.TotalTokens),
		zap.Strings("warning_codes", result.WarningCodes),
		zap.Duration("elapsed", time.Since(started)),
	)
	return report
}

// process walks the stages in order, advancing report.State as each one
// lands. On error the caller reads report.State as the failure stage.
func (o *Orchestrator) process(ctx context.Context, req models.ProcessRequest, report *RunReport, logger *zap.Logger) (*models.StructuredResult, error) {
	inputURL := storage.JoinBucket(o.bucket, req.UploadedDataPath)
	document, err := o.gateway.Fetch(ctx, inputURL)
	if err != nil {
		return nil, err
	}
	report.State = StateFetched
	logger.Debug("document fetched", zap.Int("bytes", len(document)))

	doc, err := o.ocr.Recognize(ctx, document)
	if err != nil {
		return nil, err
	}
	report.State = StateRecognized
	logger.Debug("document recognized", zap.Int("pages", len(doc.Pages)))

	result, err := o.extractor.Extract(ctx, doc, req.ProviderOverride)
	if err != nil {
		return nil, err
	}
	report.State = StateExtracted

	if len(result.Records) == 0 && result.Error == "" {
		result.Error = "no records extracted from document"
	}

	body, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrInternal.Code, "encode structured result")
	}
	outputURL := storage.JoinBucket(o.bucket, req.ProcessedDataPath+"/"+resultObjectName)
	if err := o.gateway.Store(ctx, outputURL, body); err != nil {
		return nil, err
	}
	report.State = StateStored
	logger.Info("result stored", zap.String("location", outputURL))

	return result, nil
}

// deliver sends the event downstream, swallowing failures.
func (o *Orchestrator) deliver(ctx context.Context, payload models.EventPayload, logger *zap.Logger) bool {
	if !o.notifier.Enabled() {
		return false
	}
	if err := o.notifier.Notify(ctx, payload); err != nil {
		metrics.Default().RecordNotify(false)
		logger.Warn("downstream notification failed", zap.Error(err))
		return false
	}
	metrics.Default().RecordNotify(true)
	return true
}
