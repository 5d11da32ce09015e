// Package ai 封装技能抽取与测验生成所用的文本模型，负责提示词与回复解析。
package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"skillconnect/internal/metrics"
	"skillconnect/internal/models"

	"github.com/rs/zerolog/log"
)

var (
	ErrNotConfigured = errors.New("ai: completer not configured")
	ErrNoJSON        = errors.New("ai: no JSON found in model response")
	ErrInvalidQuiz   = errors.New("ai: invalid quiz structure")
)

// Completer 将提示词转换为模型输出文本。
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// CompleterFunc 让普通函数实现 Completer。
type CompleterFunc func(ctx context.Context, prompt string) (string, error)

func (f CompleterFunc) Complete(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

type unconfigured struct{}

func (unconfigured) Complete(context.Context, string) (string, error) { return "", ErrNotConfigured }

// Unconfigured 在未配置密钥时使用，每次调用都返回 ErrNotConfigured。
var Unconfigured Completer = unconfigured{}

var (
	skillsArrayRe = regexp.MustCompile(`\[.*?\]`)
	quizObjectRe  = regexp.MustCompile(`(?s)\{.*\}`)
)

type Service struct {
	completer     Completer
	questionCount int
}

func NewService(c Completer, questionCount int) *Service {
	if c == nil {
		c = Unconfigured
	}
	if questionCount <= 0 {
		questionCount = 10
	}
	return &Service{completer: c, questionCount: questionCount}
}

// ExtractSkills 从文本中抽取技能，调用或解析失败时记录日志并返回空列表。
func (s *Service) ExtractSkills(ctx context.Context, paragraph string) []string {
	prompt := fmt.Sprintf("Extract only the skills and technologies from the following text and return them as a JSON array.\n"+
		"Do not add any explanation, just return a valid JSON array:\n\n\"%s\"", paragraph)

	text, err := s.completer.Complete(ctx, prompt)
	if err != nil {
		metrics.AIRequestsTotal.WithLabelValues("extract_skills", "error").Inc()
		log.Error().Err(err).Msg("extract skills")
		return []string{}
	}
	skills, err := ParseSkills(text)
	if err != nil {
		metrics.AIRequestsTotal.WithLabelValues("extract_skills", "unparsable").Inc()
		log.Warn().Err(err).Str("response", text).Msg("extract skills parse")
		return []string{}
	}
	metrics.AIRequestsTotal.WithLabelValues("extract_skills", "ok").Inc()
	return skills
}

// ParseSkills 取出文本中第一个单行 JSON 数组。
func ParseSkills(text string) ([]string, error) {
	raw := skillsArrayRe.FindString(text)
	if raw == "" {
		raw = "[]"
	}
	var skills []string
	if err := json.Unmarshal([]byte(raw), &skills); err != nil {
		return nil, fmt.Errorf("decode skills: %w", err)
	}
	out := make([]string, 0, len(skills))
	for _, sk := range skills {
		if sk = strings.TrimSpace(sk); sk != "" {
			out = append(out, sk)
		}
	}
	return out, nil
}

// GenerateQuiz 按技能生成选择题。
func (s *Service) GenerateQuiz(ctx context.Context, skills []string) ([]models.Question, error) {
	prompt := fmt.Sprintf(`Generate %d multiple-choice questions to assess proficiency in the following skills: %s.
Each question should have exactly 4 answer options (A, B, C, D) and indicate the correct answer.

Return only a valid JSON object in this format:
{
  "questions": [
    {
      "question": "What is JavaScript?",
      "options": ["A. Programming language", "B. Database", "C. Operating system", "D. Framework"],
      "correct_answer": "A"
    }
  ]
}`, s.questionCount, strings.Join(skills, ", "))

	text, err := s.completer.Complete(ctx, prompt)
	if err != nil {
		metrics.AIRequestsTotal.WithLabelValues("generate_quiz", "error").Inc()
		return nil, fmt.Errorf("generate quiz: %w", err)
	}
	questions, err := ParseQuiz(text)
	if err != nil {
		metrics.AIRequestsTotal.WithLabelValues("generate_quiz", "unparsable").Inc()
		return nil, fmt.Errorf("generate quiz: %w", err)
	}
	metrics.AIRequestsTotal.WithLabelValues("generate_quiz", "ok").Inc()
	return questions, nil
}

// ParseQuiz 取出文本中最外层的 JSON 对象并返回其中的题目。
func ParseQuiz(text string) ([]models.Question, error) {
	raw := quizObjectRe.FindString(text)
	if raw == "" {
		return nil, ErrNoJSON
	}
	var payload struct {
		Questions []models.Question `json:"questions"`
	}
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return nil, fmt.Errorf("decode quiz: %w", err)
	}
	if len(payload.Questions) == 0 {
		return nil, ErrInvalidQuiz
	}
	return payload.Questions, nil
}
