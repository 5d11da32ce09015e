package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"skillconnect/internal/ai"
	"skillconnect/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrNoSkillsDetected = errors.New("no skills detected")

// SkillService 封装 AI 技能检测、技能匹配与测验相关的业务逻辑。
type SkillService struct {
	db *gorm.DB
	ai *ai.Service
}

func NewSkillService(db *gorm.DB, aiSvc *ai.Service) *SkillService {
	return &SkillService{db: db, ai: aiSvc}
}

// Detect 从文本中提取技能，与已有技能合并后写回技能档案和用户资料。
func (s *SkillService) Detect(ctx context.Context, userID uint, paragraph string) ([]string, error) {
	if _, err := findUser(s.db, userID); err != nil {
		return nil, err
	}
	detected := s.ai.ExtractSkills(ctx, paragraph)

	var merged []string
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var profile models.SkillProfile
		err := tx.Where("user_id = ?", userID).First(&profile).Error
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		merged = dedupe(append(append([]string{}, profile.Skills...), detected...))

		profile.UserID = userID
		profile.Skills = merged
		profile.DetectedAt = time.Now()
		if err := tx.Save(&profile).Error; err != nil {
			return fmt.Errorf("save skill profile: %w", err)
		}

		user, err := findUser(tx, userID)
		if err != nil {
			return err
		}
		return replaceSkills(tx, user, merged)
	})
	if err != nil {
		return nil, err
	}
	return merged, nil
}

// Match 从文本中提取技能并返回拥有任一技能的用户。
func (s *SkillService) Match(ctx context.Context, paragraph string) ([]models.User, error) {
	detected := s.ai.ExtractSkills(ctx, paragraph)
	if len(detected) == 0 {
		return nil, ErrNoSkillsDetected
	}
	return findBySkills(s.db, detected)
}

// GenerateQuiz 根据用户技能生成测验题并保存，覆盖上一套题目。
func (s *SkillService) GenerateQuiz(ctx context.Context, userID uint) ([]models.Question, error) {
	user, err := findUser(s.db, userID)
	if err != nil {
		return nil, err
	}
	if len(user.Skills) == 0 {
		return nil, ErrNoSkills
	}
	questions, err := s.ai.GenerateQuiz(ctx, user.Skills)
	if err != nil {
		return nil, err
	}
	app := models.Application{UserID: userID, Questions: questions}
	if err := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"questions", "updated_at"}),
	}).Create(&app).Error; err != nil {
		return nil, fmt.Errorf("save quiz: %w", err)
	}
	return questions, nil
}

type QuestionResult struct {
	Question      string `json:"question"`
	UserAnswer    string `json:"userAnswer"`
	CorrectAnswer string `json:"correctAnswer"`
	IsCorrect     bool   `json:"isCorrect"`
}

type ValidationResult struct {
	Score          int              `json:"score"`
	QuestionResult []QuestionResult `json:"questionResults"`
	UpdatedCredits int              `json:"updatedCredits"`
}

// creditsPerCorrectAnswer 每答对一题奖励的积分。
const creditsPerCorrectAnswer = 10

// ValidateAnswers 按题干匹配用户答案并计分，答对的题目按每题 10 积分奖励。
func (s *SkillService) ValidateAnswers(userID uint, answers map[string]string) (*ValidationResult, error) {
	var app models.Application
	if err := s.db.Where("user_id = ?", userID).First(&app).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNoQuiz
		}
		return nil, err
	}
	if len(app.Questions) == 0 {
		return nil, ErrNoQuiz
	}

	score, results := ScoreAnswers(app.Questions, answers)
	user, err := addCreditsAllowZero(s.db, userID, score*creditsPerCorrectAnswer)
	if err != nil {
		return nil, err
	}
	return &ValidationResult{Score: score, QuestionResult: results, UpdatedCredits: user.Credits}, nil
}

// ScoreAnswers 比较答案选项字母，例如 "C. Keras" 取 "C" 与正确答案比较。
func ScoreAnswers(questions []models.Question, answers map[string]string) (int, []QuestionResult) {
	score := 0
	results := make([]QuestionResult, 0, len(questions))
	for _, q := range questions {
		answer := answers[q.Question]
		letter := strings.TrimSpace(strings.SplitN(answer, ".", 2)[0])
		correct := letter != "" && letter == q.CorrectAnswer
		if correct {
			score++
		}
		results = append(results, QuestionResult{
			Question:      q.Question,
			UserAnswer:    answer,
			CorrectAnswer: q.CorrectAnswer,
			IsCorrect:     correct,
		})
	}
	return score, results
}

func addCreditsAllowZero(db *gorm.DB, id uint, delta int) (*models.User, error) {
	if delta == 0 {
		return findUser(db, id)
	}
	return addCredits(db, id, delta)
}
