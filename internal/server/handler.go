package server

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"skillconnect/internal/auth"
	"skillconnect/internal/models"
	"skillconnect/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// Handler 聚合所有 HTTP handler，依赖注入 service 层。
type Handler struct {
	userSvc  *service.UserService
	skillSvc *service.SkillService
	msgSvc   *service.MessageService
}

func NewHandler(userSvc *service.UserService, skillSvc *service.SkillService, msgSvc *service.MessageService) *Handler {
	return &Handler{userSvc: userSvc, skillSvc: skillSvc, msgSvc: msgSvc}
}

// userRef 兼容字符串与数字形式的用户 id。
type userRef uint

func (u *userRef) UnmarshalJSON(b []byte) error {
	s := strings.Trim(strings.TrimSpace(string(b)), `"`)
	if s == "" || s == "null" {
		*u = 0
		return nil
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid user id %q", s)
	}
	*u = userRef(v)
	return nil
}

func fail(c *gin.Context, status int, msg string) {
	c.JSON(status, gin.H{"success": false, "message": msg})
}

func pathUserID(c *gin.Context, name string) (uint, bool) {
	v, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || v == 0 {
		fail(c, http.StatusBadRequest, "Invalid user ID format")
		return 0, false
	}
	return uint(v), true
}

// requireSelf 只允许修改当前登录用户自己的数据。
func requireSelf(c *gin.Context, userID uint) bool {
	if auth.GetUserID(c) != userID {
		fail(c, http.StatusForbidden, "Forbidden")
		return false
	}
	return true
}

// Register 处理用户注册请求。
func (h *Handler) Register(c *gin.Context) {
	var req service.RegisterInput
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "Invalid payload")
		return
	}
	if strings.TrimSpace(req.Name) == "" || strings.TrimSpace(req.Email) == "" || req.Password == "" {
		fail(c, http.StatusBadRequest, "Name, email and password are required")
		return
	}
	if _, err := h.userSvc.Register(req); err != nil {
		if errors.Is(err, service.ErrEmailTaken) {
			fail(c, http.StatusBadRequest, "Email already registered")
			return
		}
		log.Error().Err(err).Str("email", req.Email).Msg("register")
		fail(c, http.StatusInternalServerError, "Server error")
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "message": "User registered successfully"})
}

// Login 处理用户登录请求。
func (h *Handler) Login(c *gin.Context) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.Email == "" || req.Password == "" {
		fail(c, http.StatusBadRequest, "Email and password are required")
		return
	}
	result, err := h.userSvc.Login(req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrUserNotFound):
			fail(c, http.StatusBadRequest, "User not found")
		case errors.Is(err, service.ErrInvalidCredentials):
			fail(c, http.StatusBadRequest, "Invalid credentials")
		default:
			log.Error().Err(err).Str("email", req.Email).Msg("login")
			fail(c, http.StatusInternalServerError, "Internal server error")
		}
		return
	}
	u := result.User
	c.JSON(http.StatusOK, gin.H{
		"success":       true,
		"token":         result.AccessToken,
		"refresh_token": result.RefreshToken,
		"user": gin.H{
			"userId":  u.ID,
			"name":    u.Name,
			"email":   u.Email,
			"mobile":  u.Mobile,
			"title":   u.Title,
			"address": u.Address,
			"credits": u.Credits,
		},
	})
}

// RefreshToken 处理 token 刷新请求。
func (h *Handler) RefreshToken(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.RefreshToken == "" {
		fail(c, http.StatusBadRequest, "Invalid payload")
		return
	}
	result, err := h.userSvc.RefreshTokens(req.RefreshToken)
	if err != nil {
		log.Warn().Err(err).Msg("refresh token")
		fail(c, http.StatusUnauthorized, "Invalid refresh token")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "token": result.AccessToken, "refresh_token": result.RefreshToken})
}

func (h *Handler) GetUser(c *gin.Context) {
	id, ok := pathUserID(c, "userId")
	if !ok {
		return
	}
	user, err := h.userSvc.Get(id)
	if err != nil {
		h.userError(c, err, "get user")
		return
	}
	c.JSON(http.StatusOK, user)
}

// UpdateSkills 覆盖当前用户的技能与兴趣。
func (h *Handler) UpdateSkills(c *gin.Context) {
	var req struct {
		UserID    userRef  `json:"userId"`
		Skills    []string `json:"skills"`
		Interests []string `json:"interests"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.UserID == 0 {
		fail(c, http.StatusBadRequest, "User ID is required")
		return
	}
	if !requireSelf(c, uint(req.UserID)) {
		return
	}
	user, err := h.userSvc.UpdateSkills(uint(req.UserID), req.Skills, req.Interests)
	if err != nil {
		h.userError(c, err, "update skills")
		return
	}
	c.JSON(http.StatusOK, user)
}

// SetCredits 直接设置积分。
func (h *Handler) SetCredits(c *gin.Context) {
	id, ok := pathUserID(c, "userId")
	if !ok || !requireSelf(c, id) {
		return
	}
	var req struct {
		Credits *int `json:"credits"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.Credits == nil {
		fail(c, http.StatusBadRequest, "Credits are required")
		return
	}
	user, err := h.userSvc.SetCredits(id, *req.Credits)
	if err != nil {
		h.userError(c, err, "set credits")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "credits": user.Credits})
}

func (h *Handler) FindUsers(c *gin.Context) {
	var req struct {
		SkillsRequired []string `json:"skillsRequired"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "Invalid payload")
		return
	}
	users, err := h.userSvc.FindBySkills(req.SkillsRequired)
	if err != nil {
		log.Error().Err(err).Strs("skills", req.SkillsRequired).Msg("find users")
		fail(c, http.StatusInternalServerError, "Server error")
		return
	}
	c.JSON(http.StatusOK, users)
}

// DetectSkills 通过 AI 从文本中提取技能并合并到用户资料。
func (h *Handler) DetectSkills(c *gin.Context) {
	var req struct {
		UserID    userRef `json:"userId"`
		Paragraph string  `json:"paragraph"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.UserID == 0 {
		fail(c, http.StatusBadRequest, "User ID is required")
		return
	}
	if strings.TrimSpace(req.Paragraph) == "" {
		fail(c, http.StatusBadRequest, "Paragraph is required")
		return
	}
	if !requireSelf(c, uint(req.UserID)) {
		return
	}
	skills, err := h.skillSvc.Detect(c.Request.Context(), uint(req.UserID), req.Paragraph)
	if err != nil {
		h.userError(c, err, "detect skills")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "skills": skills})
}

// MatchSkills 根据文本中检测到的技能查找匹配用户。
func (h *Handler) MatchSkills(c *gin.Context) {
	var req struct {
		Paragraph string `json:"paragraph"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Paragraph) == "" {
		fail(c, http.StatusBadRequest, "Paragraph is required")
		return
	}
	users, err := h.skillSvc.Match(c.Request.Context(), req.Paragraph)
	if err != nil {
		if errors.Is(err, service.ErrNoSkillsDetected) {
			fail(c, http.StatusNotFound, "No skills detected.")
			return
		}
		log.Error().Err(err).Msg("match skills")
		fail(c, http.StatusInternalServerError, "Server error")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "matches": users})
}

// AddCredits 增加积分，单次 1..20。
func (h *Handler) AddCredits(c *gin.Context) {
	id, ok := pathUserID(c, "id")
	if !ok || !requireSelf(c, id) {
		return
	}
	var req struct {
		Credits int `json:"credits"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "Invalid payload")
		return
	}
	user, err := h.userSvc.AddCredits(id, req.Credits)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredits) {
			fail(c, http.StatusBadRequest, "Invalid credit value. Choose between 1 to 20.")
			return
		}
		h.userError(c, err, "add credits")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Credits updated", "user": user})
}

// GenerateQuiz 根据用户技能生成测验题。
func (h *Handler) GenerateQuiz(c *gin.Context) {
	var req struct {
		UserID userRef `json:"userId"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.UserID == 0 {
		fail(c, http.StatusBadRequest, "User ID is required")
		return
	}
	if !requireSelf(c, uint(req.UserID)) {
		return
	}
	questions, err := h.skillSvc.GenerateQuiz(c.Request.Context(), uint(req.UserID))
	if err != nil {
		switch {
		case errors.Is(err, service.ErrNoSkills):
			fail(c, http.StatusBadRequest, "User has no skills to generate questions")
		case errors.Is(err, service.ErrUserNotFound):
			fail(c, http.StatusNotFound, "User not found")
		default:
			log.Error().Err(err).Uint("user_id", uint(req.UserID)).Msg("generate quiz")
			fail(c, http.StatusInternalServerError, "Failed to generate questions")
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "questions": questions})
}

// ValidateAnswers 评分并按答对题数奖励积分。
func (h *Handler) ValidateAnswers(c *gin.Context) {
	var req struct {
		UserID  userRef           `json:"userId"`
		Answers map[string]string `json:"answers"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.UserID == 0 {
		fail(c, http.StatusBadRequest, "Invalid User ID format")
		return
	}
	if !requireSelf(c, uint(req.UserID)) {
		return
	}
	res, err := h.skillSvc.ValidateAnswers(uint(req.UserID), req.Answers)
	if err != nil {
		if errors.Is(err, service.ErrNoQuiz) {
			fail(c, http.StatusBadRequest, "No questions found for validation")
			return
		}
		log.Error().Err(err).Uint("user_id", uint(req.UserID)).Msg("validate answers")
		fail(c, http.StatusInternalServerError, "Failed to validate answers")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":         true,
		"score":           res.Score,
		"questionResults": res.QuestionResult,
		"updatedCredits":  res.UpdatedCredits,
		"message":         fmt.Sprintf("Your score is %d. Credits updated to %d.", res.Score, res.UpdatedCredits),
	})
}

// Conversations 返回当前用户的会话列表。
func (h *Handler) Conversations(c *gin.Context) {
	id, ok := pathUserID(c, "userId")
	if !ok || !requireSelf(c, id) {
		return
	}
	convs, err := h.msgSvc.Conversations(id)
	if err != nil {
		log.Error().Err(err).Uint("user_id", id).Msg("list conversations")
		fail(c, http.StatusInternalServerError, "Error fetching conversations")
		return
	}
	c.JSON(http.StatusOK, convs)
}

// History 返回两人之间的消息记录，调用者必须是其中一方。
func (h *Handler) History(c *gin.Context) {
	a, ok := pathUserID(c, "senderId")
	if !ok {
		return
	}
	b, ok := pathUserID(c, "receiverId")
	if !ok {
		return
	}
	if me := auth.GetUserID(c); me != a && me != b {
		fail(c, http.StatusForbidden, "Forbidden")
		return
	}
	msgs, err := h.msgSvc.Between(a, b)
	if err != nil {
		log.Error().Err(err).Uint("sender", a).Uint("receiver", b).Msg("list messages")
		fail(c, http.StatusInternalServerError, "Error fetching messages")
		return
	}
	c.JSON(http.StatusOK, msgs)
}

// SaveMessage 通过 REST 保存一条消息。
func (h *Handler) SaveMessage(c *gin.Context) {
	var req struct {
		Sender   userRef `json:"sender"`
		Receiver userRef `json:"receiver"`
		Message  *string `json:"message"`
		Image    *string `json:"image"`
		Type     string  `json:"type"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.Sender == 0 || req.Receiver == 0 {
		fail(c, http.StatusBadRequest, "Missing required fields")
		return
	}
	if !requireSelf(c, uint(req.Sender)) {
		return
	}
	if req.Type == "" {
		req.Type = service.MessageTypeText
	}
	msg := models.Message{Sender: uint(req.Sender), Receiver: uint(req.Receiver), Text: req.Message, Image: req.Image, Type: req.Type}
	if err := h.msgSvc.Create(c.Request.Context(), &msg); err != nil {
		if errors.Is(err, service.ErrInvalidMessage) {
			fail(c, http.StatusBadRequest, "Missing required fields")
			return
		}
		log.Error().Err(err).Uint("sender", msg.Sender).Msg("save message")
		fail(c, http.StatusInternalServerError, "Error saving message")
		return
	}
	c.JSON(http.StatusCreated, msg)
}

func (h *Handler) userError(c *gin.Context, err error, op string) {
	if errors.Is(err, service.ErrUserNotFound) {
		fail(c, http.StatusNotFound, "User not found")
		return
	}
	if errors.Is(err, service.ErrInvalidCredits) {
		fail(c, http.StatusBadRequest, "Invalid credit value")
		return
	}
	log.Error().Err(err).Msg(op)
	fail(c, http.StatusInternalServerError, "Server error")
}
