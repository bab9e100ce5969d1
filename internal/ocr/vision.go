package ocr

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const visionMaxTokens = 4096

const visionPrompt = `Извлеки ВЕСЬ текст с изображения страницы официального документа.
Сохраняй структуру таблиц: разделяй колонки символом | и строки переносами.
Верни ТОЛЬКО текст документа, без комментариев и пояснений.`

// VisionOCR sends rendered page images to a vision-capable model and
// returns the verbatim page text.
type VisionOCR struct {
	client anthropic.Client
	model  string
}

// NewVisionOCR returns nil when no API key is configured, which disables
// the vision tier.
func NewVisionOCR() *VisionOCR {
	key := os.Getenv("ANTHROPIC_API_KEY")
	if key == "" {
		return nil
	}
	model := os.Getenv("ANTHROPIC_VISION_MODEL")
	if model == "" {
		model = os.Getenv("ANTHROPIC_MODEL")
	}
	if model == "" {
		model = "claude-sonnet-4-5"
	}
	return &VisionOCR{
		client: anthropic.NewClient(option.WithAPIKey(key)),
		model:  model,
	}
}

// RecognizePage OCRs one rendered page.
func (v *VisionOCR) RecognizePage(ctx context.Context, png []byte) (string, error) {
	msg, err := v.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(v.model),
		MaxTokens: visionMaxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(
				anthropic.NewImageBlockBase64("image/png", base64.StdEncoding.EncodeToString(png)),
				anthropic.NewTextBlock(visionPrompt),
			),
		},
	})
	if err != nil {
		return "", fmt.Errorf("vision request failed: %w", err)
	}

	var b strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	text := strings.TrimSpace(b.String())
	if text == "" {
		return "", fmt.Errorf("vision returned no text")
	}
	return text, nil
}
