package service

import "errors"

// 业务层通用错误，handler 可根据错误类型映射到合适的 HTTP 状态码。
var (
	ErrEmailTaken         = errors.New("email already registered")
	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidCredits     = errors.New("invalid credit value")
	ErrNoSkills           = errors.New("user has no skills")
	ErrNoQuiz             = errors.New("no questions found for validation")
	ErrInvalidMessage     = errors.New("invalid message")
)
