package service

import (
	"errors"
	"fmt"
	"strings"

	"skillconnect/internal/auth"
	"skillconnect/internal/config"
	"skillconnect/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const initialCredits = 10

// UserService 封装用户注册、登录与资料相关的业务逻辑。
type UserService struct {
	db     *gorm.DB
	tokens *auth.Issuer
}

func NewUserService(db *gorm.DB, cfg config.Config) *UserService {
	return &UserService{db: db, tokens: auth.NewIssuer(cfg)}
}

type RegisterInput struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Mobile   string `json:"mobile"`
	Title    string `json:"title"`
	Address  string `json:"address"`
}

// Register 注册新用户，初始赠送 10 个积分。
func (s *UserService) Register(in RegisterInput) (*models.User, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))
	var count int64
	if err := s.db.Model(&models.User{}).Where("email = ?", email).Count(&count).Error; err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, ErrEmailTaken
	}
	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return nil, err
	}
	user := models.User{
		Name:         strings.TrimSpace(in.Name),
		Email:        email,
		PasswordHash: hash,
		Mobile:       strings.TrimSpace(in.Mobile),
		Title:        strings.TrimSpace(in.Title),
		Address:      strings.TrimSpace(in.Address),
		Credits:      initialCredits,
		Skills:       []string{},
		Interests:    []string{},
	}
	if err := s.db.Create(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// LoginResult 登录成功后返回的数据。
type LoginResult struct {
	AccessToken  string
	RefreshToken string
	User         models.User
}

// Login 校验邮箱密码并签发 token 对。
func (s *UserService) Login(email, password string) (*LoginResult, error) {
	var user models.User
	if err := s.db.Where("email = ?", strings.ToLower(strings.TrimSpace(email))).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	if !auth.VerifyPassword(user.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}
	at, rt, err := s.issuePair(s.db, user.ID)
	if err != nil {
		return nil, err
	}
	return &LoginResult{AccessToken: at, RefreshToken: rt, User: user}, nil
}

func (s *UserService) issuePair(tx *gorm.DB, userID uint) (access, refresh string, err error) {
	if access, err = s.tokens.AccessToken(userID); err != nil {
		return "", "", err
	}
	if refresh, err = s.tokens.IssueRefresh(tx, userID); err != nil {
		return "", "", err
	}
	return access, refresh, nil
}

// RefreshResult 刷新 token 后返回的新 token 对。
type RefreshResult struct {
	AccessToken  string `json:"token"`
	RefreshToken string `json:"refresh_token"`
}

// RefreshTokens 验证旧 refresh token 并签发新 token 对（旋转刷新）。
func (s *UserService) RefreshTokens(oldRT string) (*RefreshResult, error) {
	var result RefreshResult
	err := s.db.Transaction(func(tx *gorm.DB) error {
		userID, err := s.tokens.ConsumeRefresh(tx, oldRT)
		if err != nil {
			return err
		}
		at, newRT, err := s.issuePair(tx, userID)
		if err != nil {
			return err
		}
		result.AccessToken = at
		result.RefreshToken = newRT
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func (s *UserService) Get(id uint) (*models.User, error) {
	return findUser(s.db, id)
}

func findUser(db *gorm.DB, id uint) (*models.User, error) {
	var user models.User
	if err := db.First(&user, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

// UpdateSkills 覆盖用户的技能与兴趣列表。
func (s *UserService) UpdateSkills(id uint, skills, interests []string) (*models.User, error) {
	var user *models.User
	err := s.db.Transaction(func(tx *gorm.DB) error {
		u, err := findUser(tx, id)
		if err != nil {
			return err
		}
		if interests != nil {
			u.Interests = dedupe(interests)
		}
		if err := replaceSkills(tx, u, dedupe(skills)); err != nil {
			return err
		}
		user = u
		return nil
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

// SetCredits 直接设置积分。
func (s *UserService) SetCredits(id uint, credits int) (*models.User, error) {
	if credits < 0 {
		return nil, ErrInvalidCredits
	}
	user, err := findUser(s.db, id)
	if err != nil {
		return nil, err
	}
	if err := s.db.Model(user).Update("credits", credits).Error; err != nil {
		return nil, err
	}
	user.Credits = credits
	return user, nil
}

// AddCredits 增加积分，单次增加量限制在 1..20。
func (s *UserService) AddCredits(id uint, delta int) (*models.User, error) {
	if delta < 1 || delta > 20 {
		return nil, ErrInvalidCredits
	}
	return addCredits(s.db, id, delta)
}

func addCredits(db *gorm.DB, id uint, delta int) (*models.User, error) {
	res := db.Model(&models.User{}).Where("id = ?", id).Update("credits", gorm.Expr("credits + ?", delta))
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, ErrUserNotFound
	}
	return findUser(db, id)
}

// FindBySkills 返回至少拥有其中一项技能的用户。
func (s *UserService) FindBySkills(skills []string) ([]models.User, error) {
	return findBySkills(s.db, skills)
}

func findBySkills(db *gorm.DB, skills []string) ([]models.User, error) {
	users := []models.User{}
	if len(skills) == 0 {
		return users, nil
	}
	sub := db.Model(&models.UserSkill{}).Distinct("user_id").Where("skill IN ?", skills)
	if err := db.Where("id IN (?)", sub).Order("id").Find(&users).Error; err != nil {
		return nil, fmt.Errorf("find users by skills: %w", err)
	}
	return users, nil
}

// replaceSkills 同步 users.skills 列与 user_skills 检索表。
func replaceSkills(tx *gorm.DB, user *models.User, skills []string) error {
	if err := tx.Where("user_id = ?", user.ID).Delete(&models.UserSkill{}).Error; err != nil {
		return err
	}
	if len(skills) > 0 {
		rows := make([]models.UserSkill, 0, len(skills))
		for _, sk := range skills {
			rows = append(rows, models.UserSkill{UserID: user.ID, Skill: sk})
		}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&rows).Error; err != nil {
			return err
		}
	}
	user.Skills = skills
	return tx.Model(user).Select("skills", "interests").Updates(user).Error
}

// dedupe 去除空白与重复项，保留首次出现的顺序。
func dedupe(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
