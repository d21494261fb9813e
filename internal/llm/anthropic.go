package llm

import (
	"context"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rotisserie/eris"
)

const anthropicMaxTokens = 900

// Anthropic generates completions via the official SDK.
type Anthropic struct {
	client sdk.Client
	model  string
}

// NewAnthropic creates an Anthropic-backed client.
func NewAnthropic(apiKey, model string) *Anthropic {
	return &Anthropic{
		client: sdk.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
	}
}

func (a *Anthropic) Generate(ctx context.Context, prompt string) (string, error) {
	msg, err := a.client.Messages.New(ctx, sdk.MessageNewParams{
		Model:     sdk.Model(a.model),
		MaxTokens: anthropicMaxTokens,
		System:    []sdk.TextBlockParam{{Text: systemPrompt}},
		Messages: []sdk.MessageParam{
			sdk.NewUserMessage(sdk.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", eris.Wrap(err, "llm: anthropic generate")
	}

	var chunks []string
	for _, block := range msg.Content {
		if text := strings.TrimSpace(block.Text); text != "" {
			chunks = append(chunks, text)
		}
	}
	return strings.TrimSpace(strings.Join(chunks, "\n")), nil
}
