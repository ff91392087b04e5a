// Package models holds the payload types shared across the pipeline.
package models

// ProcessRequest is the body of POST /eob and POST /eob/sync. It is
// immutable once accepted and lives only for the duration of one run.
type ProcessRequest struct {
	EobID             string `json:"eobId"`
	UploadedDataPath  string `json:"uploadedDataPath"`
	ProcessedDataPath string `json:"processedDataPath"`
	ProviderOverride  string `json:"providerOverride,omitempty"`
}

// Page is one recognized page: plain text in the service's native
// reading order plus any tables rendered as pipe-delimited blocks.
type Page struct {
	Number int      `json:"number"`
	Text   string   `json:"text"`
	Tables []string `json:"tables,omitempty"`
}

// ExtractedDocument is the OCR adapter's output, consumed once by the
// extraction adapter.
type ExtractedDocument struct {
	Pages []Page `json:"pages"`
}

// StructuredResult is the schema-validated extraction output written to
// the processed data path and returned on the synchronous path.
type StructuredResult struct {
	Records      []map[string]interface{} `json:"Records"`
	TotalTokens  int                      `json:"TotalTokens"`
	WarningCodes []string                 `json:"WarningCodes"`
	Error        string                   `json:"Error"`
}

// EventPayload is the notification body sent to the downstream function
// after an asynchronous run.
type EventPayload struct {
	EobID             string   `json:"eobId"`
	ProcessedDataPath string   `json:"processedDataPath"`
	ProcessingStatus  string   `json:"processingStatus"`
	Message           string   `json:"message"`
	WarningCodes      []string `json:"warningCodes,omitempty"`
}

// Processing statuses carried by EventPayload.
const (
	StatusSuccess = "SUCCESS"
	StatusFailed  = "FAILED"
)

// ResultEnvelope is the full response shape: the event payload plus the
// parsed EOB body.
type ResultEnvelope struct {
	EventPayload EventPayload      `json:"eventPayload"`
	EobParsed    *StructuredResult `json:"eobParsed"`
}
