// Package triage classifies free-text symptoms through a language model and
// maps the answer onto the network's three-tier risk scale.
package triage

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"medops-bknd/internal/apperr"
	"medops-bknd/internal/scoring"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

const MaxSymptomsLength = 2000

type Urgency string

const (
	UrgencyLow       Urgency = "low"
	UrgencyMedium    Urgency = "medium"
	UrgencyHigh      Urgency = "high"
	UrgencyEmergency Urgency = "emergency"
)

type Result struct {
	UrgencyLevel          Urgency      `json:"urgencyLevel"`
	RecommendedDepartment string       `json:"recommendedDepartment"`
	Message               string       `json:"message"`
	RiskSignals           []string     `json:"riskSignals"`
	WhatIfNarrative       string       `json:"whatIfNarrative"`
	Risk                  scoring.Risk `json:"risk"`
	Fallback              bool         `json:"fallback"`
}

// MapUrgencyToRisk collapses the four urgency levels onto Low/Medium/High.
// Unknown levels map to Medium.
func MapUrgencyToRisk(u Urgency) scoring.Risk {
	switch u {
	case UrgencyLow:
		return scoring.RiskLow
	case UrgencyHigh, UrgencyEmergency:
		return scoring.RiskHigh
	default:
		return scoring.RiskMedium
	}
}

// Fallback is returned whenever the model errors or answers with something
// unusable.
func Fallback() Result {
	return Result{
		UrgencyLevel:          UrgencyMedium,
		RecommendedDepartment: "General Medicine",
		Message:               "We could not assess these symptoms automatically. Please consult a healthcare professional for a proper evaluation.",
		RiskSignals:           []string{},
		Risk:                  scoring.RiskMedium,
		Fallback:              true,
	}
}

func ValidateSymptoms(symptoms string) (string, error) {
	s := strings.TrimSpace(symptoms)
	if s == "" {
		return "", apperr.Invalid("symptoms", "symptoms are required")
	}
	if utf8.RuneCountInString(s) > MaxSymptomsLength {
		return "", apperr.Invalid("symptoms", fmt.Sprintf("symptoms must be at most %d characters", MaxSymptomsLength))
	}
	return s, nil
}

// Completer is the slice of *openai.Client the classifier uses.
type Completer interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

type Classifier struct {
	client Completer
	model  string
	logr   *zap.Logger
}

func NewClassifier(client Completer, model string, logr *zap.Logger) *Classifier {
	if model == "" {
		model = openai.GPT4oMini
	}
	if logr == nil {
		logr = zap.NewNop()
	}
	return &Classifier{client: client, model: model, logr: logr}
}

// NewOpenAIClassifier returns a classifier backed by the OpenAI API. With an
// empty key every call returns the fallback.
func NewOpenAIClassifier(apiKey, model string, logr *zap.Logger) *Classifier {
	if apiKey == "" {
		return NewClassifier(nil, model, logr)
	}
	return NewClassifier(openai.NewClient(apiKey), model, logr)
}

const systemPrompt = `You are a clinical triage assistant for a hospital network.
Given a patient's description of symptoms, respond with a single JSON object:
{"urgencyLevel": "low|medium|high|emergency",
 "recommendedDepartment": "<department>",
 "message": "<one or two sentence advisory for the patient>",
 "riskSignals": ["<symptom that raised concern>", ...],
 "whatIfNarrative": "<what could happen if care is delayed>"}
Never give a diagnosis. Always advise professional evaluation.`

// Classify returns a validation error for bad input. Model failures are
// logged and turned into the fallback result, never returned.
func (c *Classifier) Classify(ctx context.Context, symptoms string) (Result, error) {
	s, err := ValidateSymptoms(symptoms)
	if err != nil {
		return Result{}, err
	}

	res, err := c.ask(ctx, s)
	if err != nil {
		c.logr.Warn("triage classification failed, using fallback", zap.Error(err))
		return Fallback(), nil
	}
	return res, nil
}

func (c *Classifier) ask(ctx context.Context, symptoms string) (Result, error) {
	if c.client == nil {
		return Result{}, fmt.Errorf("%w: no client configured", apperr.ErrAIService)
	}

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: symptoms},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		MaxTokens:   400,
		Temperature: 0.2,
	})
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", apperr.ErrAIService, err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return Result{}, fmt.Errorf("%w: empty response", apperr.ErrAIService)
	}

	return parseAnswer(resp.Choices[0].Message.Content)
}

func parseAnswer(content string) (Result, error) {
	var res Result
	if err := json.Unmarshal([]byte(content), &res); err != nil {
		return Result{}, fmt.Errorf("%w: unparseable answer: %v", apperr.ErrAIService, err)
	}

	res.UrgencyLevel = Urgency(strings.ToLower(strings.TrimSpace(string(res.UrgencyLevel))))
	switch res.UrgencyLevel {
	case UrgencyLow, UrgencyMedium, UrgencyHigh, UrgencyEmergency:
	default:
		return Result{}, fmt.Errorf("%w: unknown urgency %q", apperr.ErrAIService, res.UrgencyLevel)
	}
	if res.RecommendedDepartment == "" {
		return Result{}, fmt.Errorf("%w: missing department", apperr.ErrAIService)
	}
	if res.RiskSignals == nil {
		res.RiskSignals = []string{}
	}
	res.Risk = MapUrgencyToRisk(res.UrgencyLevel)
	res.Fallback = false
	return res, nil
}
