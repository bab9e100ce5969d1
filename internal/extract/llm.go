package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/maxim/sportrank/internal/models"
)

const maxChunkChars = 120000

const llmSystemPrompt = `Ты извлекаешь структурированные данные из официальных приказов о присвоении спортивных разрядов и судейских категорий. Отвечай ТОЛЬКО валидным JSON-массивом без пояснений, без markdown и без текста до или после.`

const llmPromptRules = `Извлеки из текста приказа все записи о людях. Для каждого человека верни объект с полями:
- "fio": фамилия имя отчество в именительном падеже
- "birth_date": дата рождения в формате ДД.ММ.ГГГГ или null
- "ias_id": числовой идентификатор (4-7 цифр) или null
- "submission_number": номер представления или null
- "kind": один из "sport_rank", "judge_category", "specialist_category", "coach_category", "honorary_title"
- "rank_category": присвоенный разряд или категория дословно
- "action": один из "assignment", "confirmation", "refusal", "revocation", "restoration"
- "sport": вид спорта в именительном падеже или null
- "confidence": твоя уверенность от 0 до 1

Правила:
1. Одна запись на человека; если человеку присвоено несколько разрядов, верни отдельные записи.
2. ФИО приводи к именительному падежу ("Иванову Ивану" -> "Иванов Иван").
3. Не выдумывай данные: отсутствующие поля ставь null.
4. Даты всегда в формате ДД.ММ.ГГГГ.
5. "отказать в присвоении" -> action "refusal"; "подтвердить" -> "confirmation"; "лишить" -> "revocation"; "восстановить" -> "restoration".
6. Судейские категории ("спортивный судья ... категории") -> kind "judge_category".
7. Квалификационные категории специалистов -> kind "specialist_category", тренерские категории -> "coach_category".
8. Почетные звания ("заслуженный", "почетный") -> kind "honorary_title".
9. Вид спорта бери из заголовка раздела, если он не указан в строке человека.
10. Пропускай строки-заголовки таблиц и служебные подписи.
11. Числовой идентификатор стоит обычно после даты рождения.
12. Если записей нет, верни [].

Текст приказа (источник: %s, приказ №%s от %s):

%s`

// LLMExtractor extracts records with a remote language model. It is the
// primary path; the rule-based extractor covers outages.
type LLMExtractor struct {
	client anthropic.Client
	model  string
}

// NewLLMExtractor returns nil when ANTHROPIC_API_KEY is unset.
func NewLLMExtractor() *LLMExtractor {
	key := os.Getenv("ANTHROPIC_API_KEY")
	if key == "" {
		return nil
	}
	model := os.Getenv("ANTHROPIC_MODEL")
	if model == "" {
		model = "claude-sonnet-4-5"
	}
	return &LLMExtractor{
		client: anthropic.NewClient(option.WithAPIKey(key)),
		model:  model,
	}
}

func (e *LLMExtractor) Extract(ctx context.Context, text string, meta Meta) ([]Record, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil
	}

	var records []Record
	for i, chunk := range splitChunks(text, maxChunkChars) {
		recs, err := e.extractChunk(ctx, chunk, meta)
		if err != nil {
			return nil, fmt.Errorf("chunk %d: %w", i+1, err)
		}
		records = append(records, recs...)
	}
	return records, nil
}

func (e *LLMExtractor) extractChunk(ctx context.Context, chunk string, meta Meta) ([]Record, error) {
	prompt := fmt.Sprintf(llmPromptRules, meta.SourceCode, meta.OrderNumber, meta.OrderDate, chunk)

	msg, err := e.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(e.model),
		MaxTokens: 8192,
		System: []anthropic.TextBlockParam{
			{Text: llmSystemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("messages request: %w", err)
	}

	var raw strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			raw.WriteString(block.Text)
		}
	}
	return e.parseResponse(raw.String())
}

// llmRecord mirrors the JSON the prompt asks for.
type llmRecord struct {
	Fio              string   `json:"fio"`
	BirthDate        *string  `json:"birth_date"`
	IasID            *int     `json:"ias_id"`
	SubmissionNumber *string  `json:"submission_number"`
	Kind             string   `json:"kind"`
	RankCategory     string   `json:"rank_category"`
	Action           string   `json:"action"`
	Sport            *string  `json:"sport"`
	Confidence       *float64 `json:"confidence"`
}

func (e *LLMExtractor) parseResponse(raw string) ([]Record, error) {
	body, err := locateJSONArray(raw)
	if err != nil {
		return nil, err
	}

	var parsed []llmRecord
	if err := json.Unmarshal([]byte(body), &parsed); err != nil {
		return nil, fmt.Errorf("decode model output: %w", err)
	}

	var records []Record
	for _, p := range parsed {
		fio := strings.Join(strings.Fields(p.Fio), " ")
		if fio == "" {
			continue
		}
		rec := Record{
			Fio:          fio,
			Kind:         coerceKind(p.Kind),
			RankCategory: strings.TrimSpace(p.RankCategory),
			Action:       coerceAction(p.Action),
			IasID:        p.IasID,
			Confidence:   0.9,
			ExtractorTag: e.model,
		}
		rec.RankCategoryOriginal = rec.RankCategory
		if p.BirthDate != nil {
			rec.BirthDate = normalizeDate(*p.BirthDate)
		}
		if p.SubmissionNumber != nil {
			rec.SubmissionNumber = strings.TrimSpace(*p.SubmissionNumber)
		}
		if p.Sport != nil {
			rec.Sport = strings.TrimSpace(*p.Sport)
			rec.SportOriginal = rec.Sport
		}
		if p.Confidence != nil && *p.Confidence > 0 && *p.Confidence <= 1 {
			rec.Confidence = *p.Confidence
		}
		records = append(records, rec)
	}
	if dropped := len(parsed) - len(records); dropped > 0 {
		log.Printf("[extract] model returned %d record(s) without a name, dropped", dropped)
	}
	return records, nil
}

// locateJSONArray strips code fences and trims the response to the outermost
// JSON array. Models occasionally wrap output despite the instructions.
func locateJSONArray(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "```") {
		raw = strings.TrimPrefix(raw, "```json")
		raw = strings.TrimPrefix(raw, "```")
		raw = strings.TrimSuffix(strings.TrimSpace(raw), "```")
		raw = strings.TrimSpace(raw)
	}
	start := strings.Index(raw, "[")
	end := strings.LastIndex(raw, "]")
	if start < 0 || end < start {
		return "", fmt.Errorf("no JSON array in model output (%d bytes)", len(raw))
	}
	return raw[start : end+1], nil
}

func coerceKind(k string) string {
	k = strings.ToLower(strings.TrimSpace(k))
	if validKind(k) {
		return k
	}
	switch {
	case strings.Contains(k, "judge") || strings.Contains(k, "суд"):
		return models.AssignmentJudgeCategory
	case strings.Contains(k, "specialist"):
		return models.AssignmentSpecialistCategory
	case strings.Contains(k, "coach") || strings.Contains(k, "тренер"):
		return models.AssignmentCoachCategory
	case strings.Contains(k, "honor") || strings.Contains(k, "title"):
		return models.AssignmentHonoraryTitle
	default:
		return models.AssignmentSportRank
	}
}

func coerceAction(a string) string {
	a = strings.ToLower(strings.TrimSpace(a))
	if validAction(a) {
		return a
	}
	switch {
	case strings.Contains(a, "confirm"):
		return models.ActionConfirmation
	case strings.Contains(a, "refus") || strings.Contains(a, "отказ"):
		return models.ActionRefusal
	case strings.Contains(a, "revo") || strings.Contains(a, "лиш"):
		return models.ActionRevocation
	case strings.Contains(a, "restor") || strings.Contains(a, "восстанов"):
		return models.ActionRestoration
	default:
		return models.ActionAssignment
	}
}

// splitChunks cuts text into pieces of at most limit characters, preferring
// paragraph then line boundaries.
func splitChunks(text string, limit int) []string {
	if len(text) <= limit {
		return []string{text}
	}
	var chunks []string
	for len(text) > limit {
		cut := strings.LastIndex(text[:limit], "\n\n")
		if cut < limit/2 {
			cut = strings.LastIndex(text[:limit], "\n")
		}
		if cut < limit/2 {
			cut = limit
		}
		chunks = append(chunks, text[:cut])
		text = strings.TrimSpace(text[cut:])
	}
	if text != "" {
		chunks = append(chunks, text)
	}
	return chunks
}
