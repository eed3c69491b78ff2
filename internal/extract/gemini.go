package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"google.golang.org/genai"
)

const defaultModel = "gemini-2.0-flash"

const extractionPrompt = `You are given the text of an email from a financial institution.
Classify it and extract the fields below. Amounts must be plain decimal numbers
without currency symbols or thousands separators. Dates must be YYYY-MM-DD.
If the email is not about a completed transaction or an account balance,
classify it as IGNORE.

Email text:
`

// geminiResponse is the JSON shape the model is constrained to.
type geminiResponse struct {
	Intent        string `json:"intent"`
	Amount        string `json:"amount"`
	Date          string `json:"date"`
	IsDebit       bool   `json:"is_debit"`
	Description   string `json:"description"`
	AccountNumber string `json:"account_number"`
	Success       bool   `json:"success"`
}

// GeminiExtractor extracts transactions from message text with Gemini,
// constrained to a JSON response schema.
type GeminiExtractor struct {
	client *genai.Client
	model  string
}

// NewGeminiExtractor creates an extractor. The client reads its API key from
// the environment (GEMINI_API_KEY / GOOGLE_API_KEY).
func NewGeminiExtractor(ctx context.Context, model string) (*GeminiExtractor, error) {
	client, err := genai.NewClient(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	if model == "" {
		model = defaultModel
	}
	return &GeminiExtractor{client: client, model: model}, nil
}

// Extract implements Extractor.
func (g *GeminiExtractor) Extract(ctx context.Context, text string) (*Result, error) {
	config := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"intent": {
					Type:        genai.TypeString,
					Description: "One of TRANSACTION, ACCOUNT_BALANCE, IGNORE.",
					Enum:        []string{"TRANSACTION", "ACCOUNT_BALANCE", "IGNORE"},
				},
				"amount":         {Type: genai.TypeString, Description: "Decimal amount, empty if none."},
				"date":           {Type: genai.TypeString, Description: "Event date as YYYY-MM-DD, empty if none."},
				"is_debit":       {Type: genai.TypeBoolean, Description: "True when money left the account."},
				"description":    {Type: genai.TypeString, Description: "Short merchant/counterparty description."},
				"account_number": {Type: genai.TypeString, Description: "Trailing account digits printed in the email, empty if none."},
				"success":        {Type: genai.TypeBoolean, Description: "Whether the event itself succeeded."},
			},
			Required: []string{"intent", "success"},
		},
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(extractionPrompt+text), config)
	if err != nil {
		return nil, fmt.Errorf("extraction request failed: %w", err)
	}

	raw := strings.TrimSpace(resp.Text())
	if raw == "" {
		return nil, nil
	}

	var wire geminiResponse
	if err := json.Unmarshal([]byte(raw), &wire); err != nil {
		return nil, fmt.Errorf("failed to parse extraction response %q: %w", raw, err)
	}

	return wire.toResult()
}

func (w *geminiResponse) toResult() (*Result, error) {
	result := &Result{
		Intent:        Intent(strings.ToUpper(strings.TrimSpace(w.Intent))),
		IsDebit:       w.IsDebit,
		Description:   strings.TrimSpace(w.Description),
		AccountNumber: strings.TrimSpace(w.AccountNumber),
		Success:       w.Success,
	}

	switch result.Intent {
	case IntentTransaction, IntentAccountBalance, IntentIgnore:
	default:
		result.Intent = IntentIgnore
	}

	if w.Amount != "" {
		amount, err := decimal.NewFromString(w.Amount)
		if err != nil {
			return nil, fmt.Errorf("unparseable amount %q: %w", w.Amount, err)
		}
		result.Amount = amount
	}

	if w.Date != "" {
		date, err := time.Parse("2006-01-02", w.Date)
		if err != nil {
			return nil, fmt.Errorf("unparseable date %q: %w", w.Date, err)
		}
		result.Date = date
	}

	return result, nil
}
