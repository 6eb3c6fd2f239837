// Package explain turns a metrics record into a short plain-language
// summary using a hosted text generation model. The service is best
// effort: every failure path degrades to a locally assembled summary,
// never to an error.
package explain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"text/template"
	"time"

	"golang.org/x/net/context"

	"github.com/pradyuth050804/geosentinel-forestwatch/processor"
	"github.com/pradyuth050804/geosentinel-forestwatch/utils"
)

type Client struct {
	endpoint string
	model    string
	apiKey   string
	client   *http.Client
}

// NewClient reads the API key from the GEMINI_API_KEY environment
// variable. An absent key is not an error; Summarize then always
// returns the fallback text.
func NewClient(cfg utils.ExplainConfig) *Client {
	return &Client{
		endpoint: cfg.Endpoint,
		model:    cfg.Model,
		apiKey:   os.Getenv("GEMINI_API_KEY"),
		client:   &http.Client{Timeout: 30 * time.Second},
	}
}

var promptTpl = template.Must(template.New("prompt").Parse(
	`You are an environmental analyst. Summarize this forest change analysis
between {{.BeforeDate}} and {{.AfterDate}} in 3 short sentences for a
non-technical reader:
- Deforested area: {{printf "%.2f" .Metrics.DeforestedAreaHectares}} hectares ({{printf "%.2f" .Metrics.ForestLossPercentage}}% of the monitored area)
- Number of deforestation patches: {{.Metrics.NumberOfPatches}}
- Largest patch: {{printf "%.2f" .Metrics.LargestPatchHectares}} hectares
- Intact forest remaining: {{printf "%.2f" .Metrics.IntactForestHectares}} hectares
`))

type promptData struct {
	BeforeDate string
	AfterDate  string
	Metrics    *processor.MetricsRecord
}

// Summarize asks the model for a narrative summary of the analysis.
func (c *Client) Summarize(ctx context.Context, rec *processor.MetricsRecord, beforeDate, afterDate string) string {
	fallback := fallbackSummary(rec, beforeDate, afterDate)
	if c.apiKey == "" {
		return fallback
	}

	var prompt bytes.Buffer
	if err := promptTpl.Execute(&prompt, promptData{beforeDate, afterDate, rec}); err != nil {
		return fallback
	}

	body, err := json.Marshal(map[string]interface{}{
		"contents": []map[string]interface{}{
			{"parts": []map[string]string{{"text": prompt.String()}}},
		},
	})
	if err != nil {
		return fallback
	}

	url := fmt.Sprintf("%s/%s:generateContent?key=%s", c.endpoint, c.model, c.apiKey)
	req, err := http.NewRequest("POST", url, bytes.NewReader(body))
	if err != nil {
		return fallback
	}
	req = req.WithContext(ctx)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fallback
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))
		return fallback
	}

	var payload struct {
		Candidates []struct {
			Content struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"content"`
		} `json:"candidates"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return fallback
	}
	if len(payload.Candidates) == 0 || len(payload.Candidates[0].Content.Parts) == 0 {
		return fallback
	}
	text := payload.Candidates[0].Content.Parts[0].Text
	if text == "" {
		return fallback
	}
	return text
}

func fallbackSummary(rec *processor.MetricsRecord, beforeDate, afterDate string) string {
	return fmt.Sprintf(
		"Between %s and %s, %.2f hectares of forest loss was detected across %d patches, "+
			"amounting to %.2f%% of the monitored area. The largest contiguous patch covers "+
			"%.2f hectares. %.2f hectares of forest remain intact.",
		beforeDate, afterDate,
		rec.DeforestedAreaHectares, rec.NumberOfPatches, rec.ForestLossPercentage,
		rec.LargestPatchHectares, rec.IntactForestHectares)
}
