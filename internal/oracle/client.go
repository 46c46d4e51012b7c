package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"

	"payment-sentinel/internal/policy"
	"payment-sentinel/internal/trend"
)

// ClientOptions parameterise the LLM-backed proposer.
type ClientOptions struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
	MarginRate  float64
	RerouteCost float64
}

// Client proposes actions through an OpenAI-compatible chat completion API.
type Client struct {
	opts   ClientOptions
	api    *openai.Client
	logger zerolog.Logger
}

// NewClient constructs the oracle client.
func NewClient(opts ClientOptions, logger zerolog.Logger) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	if opts.Model == "" {
		opts.Model = "gpt-4o-mini"
	}

	cfg := openai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		cfg.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	}

	return &Client{
		opts:   opts,
		api:    openai.NewClientWithConfig(cfg),
		logger: logger.With().Str("component", "oracle_client").Logger(),
	}
}

// Propose sends the bounded cluster summary and returns the parsed proposal.
// A deadline is always applied; a timeout surfaces as ErrProposalFormat so the
// caller's retry protocol treats it like any other unusable response.
func (c *Client) Propose(ctx context.Context, req Request) (policy.ProposedAction, error) {
	ctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	chatReq := openai.ChatCompletionRequest{
		Model: c.opts.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: c.systemPrompt()},
			{Role: openai.ChatMessageRoleUser, Content: userMessage(req)},
		},
		Temperature: float32(c.opts.Temperature),
		MaxTokens:   c.opts.MaxTokens,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	}

	resp, err := c.api.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		c.logger.Warn().Err(err).Str("segment", req.Cluster.Key.String()).Msg("oracle call failed")
		return policy.ProposedAction{}, fmt.Errorf("%w: %v", ErrProposalFormat, err)
	}
	if len(resp.Choices) == 0 {
		return policy.ProposedAction{}, fmt.Errorf("%w: empty completion", ErrProposalFormat)
	}

	proposal, err := parseProposal(resp.Choices[0].Message.Content)
	if err != nil {
		c.logger.Warn().Err(err).Str("segment", req.Cluster.Key.String()).Msg("oracle response unparseable")
		return policy.ProposedAction{}, err
	}
	return proposal, nil
}

// clusterSummary is the wire form of the outbound cluster summary. No PII,
// no raw rows.
type clusterSummary struct {
	Segment           string             `json:"segment"`
	Counterparty      string             `json:"counterparty"`
	InstrumentType    string             `json:"instrument_type"`
	AmountBucket      string             `json:"amount_bucket"`
	Count             int                `json:"count"`
	AvgAmount         float64            `json:"avg_amount"`
	FailureRate       float64            `json:"failure_rate"`
	TimeWindow        string             `json:"time_window"`
	ErrorCodes        []string           `json:"error_codes"`
	HistoricalContext map[string]float64 `json:"historical_context,omitempty"`
}

func userMessage(req Request) string {
	c := req.Cluster
	summary := clusterSummary{
		Segment:           c.Description(),
		Counterparty:      c.Key.Counterparty,
		InstrumentType:    c.Key.InstrumentType,
		AmountBucket:      c.Key.AmountBucket,
		Count:             c.Count,
		AvgAmount:         c.AvgAmount.InexactFloat64(),
		FailureRate:       c.FailureRate,
		TimeWindow:        fmt.Sprintf("%s-%s", c.WindowStart.UTC().Format("15:04"), c.WindowEnd.UTC().Format("15:04")),
		ErrorCodes:        c.ErrorCodes,
		HistoricalContext: req.HistoricalContext,
	}

	payload, _ := json.Marshal(summary)

	var b strings.Builder
	b.WriteString("Analyze this failure cluster and return a single JSON decision object:\n\n")
	b.Write(payload)
	if req.ErrorNote != "" {
		b.WriteString("\n\nYour previous response was rejected: ")
		b.WriteString(req.ErrorNote)
		b.WriteString("\nReturn only a valid JSON object matching the schema.")
	}
	return b.String()
}

func (c *Client) systemPrompt() string {
	return fmt.Sprintf(`You are a payment operations decision council with two advisors and a moderator.

CFO (finance): Net_Benefit = (avg_amount x %.4f x count) - (%.2f x count). Rejects unprofitable fixes.
CTO (operations): reads the temporal pattern. stable = systemic, reroutable; spike_detected = infrastructure collapsing, do not reroute; declining = self-healing, ignore.
Moderator: synthesizes both into one decision. Infrastructure emergencies override profit; severe losses override customer impact.

Actions: REROUTE, IGNORE, ALERT, THROTTLE, FAILOVER, CIRCUIT_BREAK, BLOCK_CARD, BLOCK_USER, RATE_LIMIT, STEP_UP_AUTH, HOLD_FOR_REVIEW, ESCALATE_SECURITY, ESCALATE_PRIORITY, COMPLIANCE_HOLD.

Rules:
- Never propose REROUTE or FAILOVER when the computed net benefit is negative; use IGNORE.
- Propose ALERT, not REROUTE, when the failure rate is spiking.
- Security actions (BLOCK_*, ESCALATE_SECURITY, COMPLIANCE_HOLD) only on fraud-class error codes.
- Show the arithmetic in cost_analysis.

Return exactly one JSON object:
{"segment_description": string, "affected_volume": int, "cost_analysis": string, "temporal_signal": "stable"|"spike_detected"|"declining", "action": string, "justification": string, "confidence": number in [0,1]}`,
		c.opts.MarginRate, c.opts.RerouteCost)
}

// wireProposal uses pointers so missing required fields are detectable.
type wireProposal struct {
	SegmentDescription *string  `json:"segment_description"`
	AffectedVolume     *int     `json:"affected_volume"`
	CostAnalysis       *string  `json:"cost_analysis"`
	TemporalSignal     *string  `json:"temporal_signal"`
	Action             *string  `json:"action"`
	Justification      *string  `json:"justification"`
	Confidence         *float64 `json:"confidence"`
}

func parseProposal(raw string) (policy.ProposedAction, error) {
	cleaned := stripFences(strings.TrimSpace(raw))

	var wire wireProposal
	if err := json.Unmarshal([]byte(cleaned), &wire); err != nil {
		return policy.ProposedAction{}, fmt.Errorf("%w: %v", ErrProposalFormat, err)
	}

	missing := missingFields(wire)
	if len(missing) > 0 {
		return policy.ProposedAction{}, fmt.Errorf("%w: missing fields %s", ErrProposalFormat, strings.Join(missing, ", "))
	}

	return policy.ProposedAction{
		SegmentDescription: *wire.SegmentDescription,
		AffectedVolume:     *wire.AffectedVolume,
		CostAnalysis:       *wire.CostAnalysis,
		TemporalSignal:     trend.Signal(*wire.TemporalSignal),
		Action:             policy.ActionKind(*wire.Action),
		Justification:      *wire.Justification,
		Confidence:         *wire.Confidence,
	}, nil
}

func missingFields(w wireProposal) []string {
	var missing []string
	if w.SegmentDescription == nil {
		missing = append(missing, "segment_description")
	}
	if w.AffectedVolume == nil {
		missing = append(missing, "affected_volume")
	}
	if w.CostAnalysis == nil {
		missing = append(missing, "cost_analysis")
	}
	if w.TemporalSignal == nil {
		missing = append(missing, "temporal_signal")
	}
	if w.Action == nil {
		missing = append(missing, "action")
	}
	if w.Justification == nil {
		missing = append(missing, "justification")
	}
	if w.Confidence == nil {
		missing = append(missing, "confidence")
	}
	return missing
}

func stripFences(s string) string {
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if idx := strings.LastIndex(s, "```"); idx >= 0 {
			s = s[:idx]
		}
	}
	return strings.TrimSpace(s)
}

var _ Proposer = (*Client)(nil)
