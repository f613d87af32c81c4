package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/nhle/receipt-index/internal/model"
)

const (
	defaultModel     = "claude-haiku-4-5-20251001"
	defaultMaxTokens = 1024
	apiURL           = "https://api.anthropic.com/v1/messages"
	apiVersion       = "2023-06-01"

	extractionToolName = "record_receipt"
)

const systemPrompt = `You are a receipt metadata extractor. Given an email that contains or forwards a receipt, extract the following fields:

- vendor: The canonical business name (e.g. "Amazon", not "no-reply@amazon.com")
- amount: The total amount charged (numeric, e.g. 42.99)
- currency: ISO 4217 currency code (e.g. "USD", "CAD", "EUR")
- date: The purchase/transaction date (YYYY-MM-DD), NOT the email send date
- description: Brief summary of what was purchased (optional)
- confidence: Your confidence in the extraction from 0.0 to 1.0. Use below 0.5 if the email may not be a receipt or key fields are uncertain.

Handle forwarded receipts by looking at the original receipt content. For multi-item orders, use the total amount. If the currency is not stated, assume USD.`

// extractionToolSchema is the JSON schema for the forced tool call
// that carries the structured result back.
var extractionToolSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"vendor": {"type": "string"},
		"amount": {"type": "number"},
		"currency": {"type": "string"},
		"date": {"type": "string", "format": "date"},
		"description": {"type": "string"},
		"confidence": {"type": "number"}
	},
	"required": ["vendor", "amount", "date", "confidence"]
}`)

// ClaudeExtractor implements Extractor against the Anthropic messages
// API, forcing a single tool call so the response is machine-readable.
type ClaudeExtractor struct {
	apiKey    string
	modelName string
	maxTokens int
	baseURL   string
	client    *http.Client
}

// NewClaudeExtractor creates an extractor for the given API key and
// model name. An empty model name selects the default.
func NewClaudeExtractor(apiKey, modelName string) *ClaudeExtractor {
	if modelName == "" {
		modelName = defaultModel
	}
	return &ClaudeExtractor{
		apiKey:    apiKey,
		modelName: modelName,
		maxTokens: defaultMaxTokens,
		baseURL:   apiURL,
		client:    &http.Client{Timeout: 60 * time.Second},
	}
}

type apiTool struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"input_schema"`
}

type apiToolChoice struct {
	Type string `json:"type"`
	Name string `json:"name"`
}

type apiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type apiRequest struct {
	Model      string        `json:"model"`
	MaxTokens  int           `json:"max_tokens"`
	System     string        `json:"system"`
	Messages   []apiMessage  `json:"messages"`
	Tools      []apiTool     `json:"tools"`
	ToolChoice apiToolChoice `json:"tool_choice"`
}

type apiContentBlock struct {
	Type  string          `json:"type"`
	Text  string          `json:"text,omitempty"`
	Name  string          `json:"name,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`
}

type apiResponse struct {
	Content []apiContentBlock `json:"content"`
	Error   *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// metadataPayload is the wire shape of the tool input. Validation
// happens in model.NewReceiptMetadata, not here.
type metadataPayload struct {
	Vendor      string          `json:"vendor"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	Date        string          `json:"date"`
	Description string          `json:"description"`
	Confidence  float64         `json:"confidence"`
}

// Extract sends the prompt and converts the forced tool call into a
// validated ReceiptMetadata.
func (e *ClaudeExtractor) Extract(
	ctx context.Context,
	prompt string,
) (model.ReceiptMetadata, error) {
	reqBody := apiRequest{
		Model:     e.modelName,
		MaxTokens: e.maxTokens,
		System:    systemPrompt,
		Messages:  []apiMessage{{Role: "user", Content: prompt}},
		Tools: []apiTool{{
			Name:        extractionToolName,
			Description: "Record the structured receipt metadata extracted from the email.",
			InputSchema: extractionToolSchema,
		}},
		ToolChoice: apiToolChoice{Type: "tool", Name: extractionToolName},
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return model.ReceiptMetadata{}, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(
		ctx, http.MethodPost, e.baseURL, bytes.NewReader(payload),
	)
	if err != nil {
		return model.ReceiptMetadata{}, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", e.apiKey)
	req.Header.Set("anthropic-version", apiVersion)

	resp, err := e.client.Do(req)
	if err != nil {
		return model.ReceiptMetadata{}, fmt.Errorf("calling extraction API: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return model.ReceiptMetadata{}, fmt.Errorf("reading response: %w", err)
	}

	var apiResp apiResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return model.ReceiptMetadata{}, fmt.Errorf("parsing response: %w", err)
	}
	if apiResp.Error != nil {
		return model.ReceiptMetadata{}, fmt.Errorf(
			"extraction API error (%s): %s",
			apiResp.Error.Type, apiResp.Error.Message,
		)
	}
	if resp.StatusCode != http.StatusOK {
		return model.ReceiptMetadata{}, fmt.Errorf(
			"extraction API returned status %d", resp.StatusCode,
		)
	}

	for _, block := range apiResp.Content {
		if block.Type == "tool_use" && block.Name == extractionToolName {
			return parsePayload(block.Input)
		}
	}

	return model.ReceiptMetadata{}, fmt.Errorf(
		"extraction response contained no %s tool call", extractionToolName,
	)
}

// parsePayload decodes the tool input and runs it through metadata
// validation. Constraint violations fail the extraction outright.
func parsePayload(input json.RawMessage) (model.ReceiptMetadata, error) {
	var p metadataPayload
	if err := json.Unmarshal(input, &p); err != nil {
		return model.ReceiptMetadata{}, fmt.Errorf("parsing tool input: %w", err)
	}

	date, err := time.Parse("2006-01-02", p.Date)
	if err != nil {
		return model.ReceiptMetadata{}, fmt.Errorf(
			"parsing transaction date %q: %w", p.Date, err,
		)
	}

	meta, err := model.NewReceiptMetadata(
		p.Vendor, p.Amount, p.Currency, date, p.Description, p.Confidence,
	)
	if err != nil {
		return model.ReceiptMetadata{}, fmt.Errorf("invalid extraction result: %w", err)
	}

	return meta, nil
}
