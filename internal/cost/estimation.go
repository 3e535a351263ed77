// Package cost estimates what a digest run will cost before any model call is made, and
// prices the token usage of a finished run.
package cost

import (
	"fmt"
	"math"
	"strings"
	"unicode"

	"github.com/yf-chau/news-summary/internal/core"
	"github.com/yf-chau/news-summary/internal/evaluate"
	"github.com/yf-chau/news-summary/internal/llm"
	"github.com/yf-chau/news-summary/internal/pipeline"
)

// GeminiPricing represents the pricing of one Gemini model
type GeminiPricing struct {
	Model                 string
	InputCostPer1MTokens  float64 // USD
	OutputCostPer1MTokens float64 // USD
}

// PricingTable contains the list prices of the models the digest is run with
var PricingTable = map[string]GeminiPricing{
	"gemini-2.5-pro":        {Model: "gemini-2.5-pro", InputCostPer1MTokens: 1.25, OutputCostPer1MTokens: 10.00},
	"gemini-2.5-flash":      {Model: "gemini-2.5-flash", InputCostPer1MTokens: 0.30, OutputCostPer1MTokens: 2.50},
	"gemini-2.5-flash-lite": {Model: "gemini-2.5-flash-lite", InputCostPer1MTokens: 0.10, OutputCostPer1MTokens: 0.40},
	"gemini-2.0-flash":      {Model: "gemini-2.0-flash", InputCostPer1MTokens: 0.10, OutputCostPer1MTokens: 0.40},
}

// Expected output sizes in tokens.
const (
	topicsOutputTokens  = 80
	refOutputTokens     = 30 // per article in the assignment reply
	summaryOutputTokens = 500
	scoreOutputTokens   = 80  // per candidate in the evaluation reply
	placeholderWords    = 120 // words in a stand-in topic summary
)

// Pricing returns the pricing for model. Unknown models are priced as the default model and
// reported with ok false.
func Pricing(model string) (GeminiPricing, bool) {
	p, ok := PricingTable[model]
	if !ok {
		return PricingTable[llm.DefaultModel], false
	}
	return p, true
}

// Price returns the USD cost of usage on model.
func Price(model string, usage llm.Usage) float64 {
	p, _ := Pricing(model)
	return float64(usage.InputTokens)*p.InputCostPer1MTokens/1e6 + float64(usage.OutputTokens)*p.OutputCostPer1MTokens/1e6
}

// EstimateTokenCount approximates the token count of text: one token per Han character and
// one per 4 other characters.
func EstimateTokenCount(text string) int {
	han, other := 0, 0
	for _, r := range strings.TrimSpace(text) {
		if unicode.Is(unicode.Han, r) {
			han++
		} else {
			other++
		}
	}
	return han + int(math.Ceil(float64(other)/4))
}

// Plan describes the run to estimate.
type Plan struct {
	Model  string
	BestOf int
	Stages pipeline.Config
}

// StageEstimate is the expected cost of one stage across every attempt.
type StageEstimate struct {
	Stage        string
	Calls        int
	InputTokens  int
	OutputTokens int
	Cost         float64
}

// DigestCostEstimate represents the total cost estimation for a digest run
type DigestCostEstimate struct {
	Model             string
	KnownModel        bool
	Articles          int
	Stages            []StageEstimate
	TotalCalls        int
	TotalInputTokens  int
	TotalOutputTokens int
	TotalCost         float64
}

// EstimateDigestCost estimates a run over set by building the prompts each stage would send.
// Article text is assumed to be spread evenly over the topics.
func EstimateDigestCost(set *core.ArticleSet, plan Plan) *DigestCostEstimate {
	if plan.BestOf < 1 {
		plan.BestOf = 1
	}
	cfg := plan.Stages
	if cfg.Topics < 1 {
		cfg.Topics = pipeline.DefaultConfig().Topics
	}
	if cfg.SanitizePrompt == "" {
		cfg.SanitizePrompt = pipeline.DefaultConfig().SanitizePrompt
	}
	if cfg.Language == "" {
		cfg.Language = pipeline.DefaultConfig().Language
	}
	pricing, known := Pricing(plan.Model)

	est := &DigestCostEstimate{Model: plan.Model, KnownModel: known, Articles: set.Len()}
	add := func(stage string, calls, in, out int) {
		s := StageEstimate{
			Stage:        stage,
			Calls:        calls * plan.BestOf,
			InputTokens:  in * calls * plan.BestOf,
			OutputTokens: out * calls * plan.BestOf,
		}
		s.Cost = float64(s.InputTokens)*pricing.InputCostPer1MTokens/1e6 + float64(s.OutputTokens)*pricing.OutputCostPer1MTokens/1e6
		est.Stages = append(est.Stages, s)
	}

	topics := make([]string, cfg.Topics)
	summaries := make([]core.TopicSummary, cfg.Topics)
	for i := range topics {
		topics[i] = fmt.Sprintf("Topic %d", i+1)
		summaries[i] = core.TopicSummary{Topic: topics[i], Summary: strings.Repeat("word ", placeholderWords)}
	}
	share := pipeline.ArticleText(set.Refs(), set)
	if n := len([]rune(share)); n > 0 {
		share = string([]rune(share)[:n/cfg.Topics])
	}

	add("topics", 1, EstimateTokenCount(pipeline.BuildTopicsPrompt(set.All(), cfg.Topics)), topicsOutputTokens)
	add("assignment", 1, EstimateTokenCount(pipeline.BuildAssignmentPrompt(topics, set.Refs())), refOutputTokens*set.Len())
	if cfg.Sanitize {
		in := EstimateTokenCount(pipeline.BuildSanitizePrompt(cfg.SanitizePrompt, topics[0], share))
		add("sanitize", cfg.Topics, in, EstimateTokenCount(share))
	}
	add("summaries", cfg.Topics, EstimateTokenCount(pipeline.BuildSummaryPrompt(topics[0], share)), summaryOutputTokens)
	add("subedit", 1, EstimateTokenCount(pipeline.BuildSubeditPrompt(summaries, cfg.Language)), summaryOutputTokens*cfg.Topics)

	if plan.BestOf > 1 {
		candidates := make([]core.CandidateDocument, plan.BestOf)
		for i := range candidates {
			candidates[i] = core.CandidateDocument{AttemptID: i + 1, Text: strings.Repeat("word ", placeholderWords*cfg.Topics)}
		}
		in := EstimateTokenCount(evaluate.BuildPrompt(candidates))
		out := scoreOutputTokens * plan.BestOf
		cost := float64(in)*pricing.InputCostPer1MTokens/1e6 + float64(out)*pricing.OutputCostPer1MTokens/1e6
		est.Stages = append(est.Stages, StageEstimate{Stage: "evaluation", Calls: 1, InputTokens: in, OutputTokens: out, Cost: cost})
	}

	for _, s := range est.Stages {
		est.TotalCalls += s.Calls
		est.TotalInputTokens += s.InputTokens
		est.TotalOutputTokens += s.OutputTokens
		est.TotalCost += s.Cost
	}
	return est
}

// FormatEstimate formats the cost estimate for display
func (e *DigestCostEstimate) FormatEstimate() string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("Cost Estimation for %s\n", e.Model))
	sb.WriteString(strings.Repeat("=", 50) + "\n\n")

	sb.WriteString(fmt.Sprintf("Articles:       %d\n", e.Articles))
	sb.WriteString(fmt.Sprintf("Model calls:    %d (before retries)\n", e.TotalCalls))
	sb.WriteString(fmt.Sprintf("Input tokens:   ~%d\n", e.TotalInputTokens))
	sb.WriteString(fmt.Sprintf("Output tokens:  ~%d\n", e.TotalOutputTokens))
	sb.WriteString(fmt.Sprintf("Estimated cost: $%.4f\n", e.TotalCost))
	if !e.KnownModel {
		sb.WriteString(fmt.Sprintf("⚠️  No pricing for %s, priced as %s\n", e.Model, llm.DefaultModel))
	}
	sb.WriteString("\n")

	for _, s := range e.Stages {
		sb.WriteString(fmt.Sprintf("   %-11s %3d calls  ~%7d in  ~%7d out  $%.4f\n", s.Stage, s.Calls, s.InputTokens, s.OutputTokens, s.Cost))
	}
	return sb.String()
}
