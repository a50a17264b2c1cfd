// Package gemini adapts the Google Generative Language REST API to the
// prompted-inference ports: guidance synthesis, address extraction prompts,
// and vision-structured extraction for utility-bill images.
package gemini

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/heliowatt/permit-intake/internal/core/domain"
	"github.com/heliowatt/permit-intake/internal/infrastructure/resilience"
)

type Client struct {
	baseURL     string
	apiKey      string
	genModel    string
	visionModel string
	httpClient  *http.Client
	executor    *resilience.Executor
}

type Options struct {
	GenModel           string
	VisionModel        string
	RequestTimeout     time.Duration
	ResilienceExecutor *resilience.Executor
}

func New(baseURL, apiKey string, options Options) *Client {
	genModel := options.GenModel
	if genModel == "" {
		genModel = "gemini-2.0-flash"
	}
	visionModel := options.VisionModel
	if visionModel == "" {
		visionModel = genModel
	}
	timeout := options.RequestTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	return &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		apiKey:      apiKey,
		genModel:    genModel,
		visionModel: visionModel,
		httpClient:  &http.Client{Timeout: timeout},
		executor:    options.ResilienceExecutor,
	}
}

// Synthesize turns raw permitting steps into a numbered plain-text action
// list. Residual markdown emphasis is stripped even though the prompt
// forbids it.
func (c *Client) Synthesize(ctx context.Context, originalSteps, onlineLink string) (string, error) {
	text, err := c.generateText(ctx, c.genModel, buildGuidancePrompt(originalSteps, onlineLink), "llm.synthesize")
	if err != nil {
		return "", domain.WrapError(domain.ErrInference, "synthesize guidance", err)
	}
	return stripEmphasis(text), nil
}

// PlansetAddress extracts the customer/property address from planset
// first-page text. The model answers "N/A" when nothing address-like is
// found; that answer is returned verbatim for the caller to judge.
func (c *Client) PlansetAddress(ctx context.Context, firstPageText string) (string, error) {
	text, err := c.generateText(ctx, c.genModel, buildPlansetAddressPrompt(firstPageText), "llm.planset_address")
	if err != nil {
		return "", domain.WrapError(domain.ErrInference, "extract planset address", err)
	}
	return strings.TrimSpace(text), nil
}

// UtilityAddress extracts the customer service address from utility-bill
// text.
func (c *Client) UtilityAddress(ctx context.Context, billText string) (string, error) {
	text, err := c.generateText(ctx, c.genModel, buildUtilityAddressPrompt(billText), "llm.utility_address")
	if err != nil {
		return "", domain.WrapError(domain.ErrInference, "extract utility address", err)
	}
	return strings.TrimSpace(text), nil
}

// UtilityBillFacts runs vision extraction over a utility-bill image. The
// model is asked for strict JSON; an unparsable answer degrades to zero
// facts rather than an error.
func (c *Client) UtilityBillFacts(ctx context.Context, image []byte, mimeType string) (domain.UtilityBillFacts, error) {
	raw, err := c.generateVision(ctx, buildUtilityImagePrompt(), image, mimeType, "llm.utility_image")
	if err != nil {
		return domain.UtilityBillFacts{}, domain.WrapError(domain.ErrInference, "extract utility image", err)
	}

	var facts domain.UtilityBillFacts
	if err := json.Unmarshal([]byte(extractJSONObject(raw)), &facts); err != nil {
		slog.Warn("utility_image_json_unparsable", "error", err)
		return domain.UtilityBillFacts{}, nil
	}
	return facts, nil
}

type generatePart struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inline_data,omitempty"`
}

type inlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type generateRequest struct {
	Contents []struct {
		Parts []generatePart `json:"parts"`
	} `json:"contents"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []generatePart `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

func (c *Client) generateText(ctx context.Context, model, prompt, operation string) (string, error) {
	return c.generate(ctx, model, []generatePart{{Text: prompt}}, operation)
}

func (c *Client) generateVision(ctx context.Context, prompt string, image []byte, mimeType, operation string) (string, error) {
	if mimeType == "" {
		mimeType = "image/jpeg"
	}
	parts := []generatePart{
		{Text: prompt},
		{InlineData: &inlineData{
			MimeType: mimeType,
			Data:     base64.StdEncoding.EncodeToString(image),
		}},
	}
	return c.generate(ctx, c.visionModel, parts, operation)
}

func (c *Client) generate(ctx context.Context, model string, parts []generatePart, operation string) (string, error) {
	var req generateRequest
	req.Contents = make([]struct {
		Parts []generatePart `json:"parts"`
	}, 1)
	req.Contents[0].Parts = parts

	var resp generateResponse
	call := func(callCtx context.Context) error {
		return c.postJSON(callCtx, "/v1beta/models/"+model+":generateContent", req, &resp, operation)
	}

	var err error
	if c.executor != nil {
		err = c.executor.Execute(ctx, operation, call, classifyGeminiError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return "", err
	}

	if len(resp.Candidates) == 0 || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("%s: empty candidates", operation)
	}

	var out strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		out.WriteString(part.Text)
	}
	return strings.TrimSpace(out.String()), nil
}

// stripEmphasis removes markdown emphasis the prompt already forbids.
func stripEmphasis(text string) string {
	text = strings.ReplaceAll(text, "**", "")
	text = strings.ReplaceAll(text, "##", "")
	return strings.TrimSpace(text)
}

func extractJSONObject(raw string) string {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start >= 0 && end > start {
		return raw[start : end+1]
	}
	return raw
}
