package models

import "time"

type User struct {
	ID           uint      `gorm:"primaryKey" json:"_id"`
	Name         string    `gorm:"size:128;not null" json:"name"`
	Email        string    `gorm:"uniqueIndex;size:255;not null" json:"email"`
	PasswordHash string    `gorm:"not null" json:"-"`
	Mobile       string    `gorm:"size:32;not null" json:"mobile"`
	Title        string    `gorm:"size:255;not null" json:"title"`
	Address      string    `gorm:"size:255;not null" json:"address"`
	Credits      int       `gorm:"not null;default:10" json:"credits"`
	Skills       []string  `gorm:"serializer:json" json:"skills"`
	Interests    []string  `gorm:"serializer:json" json:"interests"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// UserSkill 是 User.Skills 的规范化副本，供按技能检索用户。
type UserSkill struct {
	ID     uint   `gorm:"primaryKey"`
	UserID uint   `gorm:"uniqueIndex:ux_user_skill,priority:1;not null"`
	Skill  string `gorm:"uniqueIndex:ux_user_skill,priority:2;index;size:128;not null"`
}

// SkillProfile 记录 AI 检测出的技能集合。
type SkillProfile struct {
	ID         uint      `gorm:"primaryKey" json:"_id"`
	UserID     uint      `gorm:"uniqueIndex;not null" json:"userId"`
	Skills     []string  `gorm:"serializer:json" json:"skills"`
	DetectedAt time.Time `json:"detectedAt"`
}

type Question struct {
	Question      string   `json:"question"`
	Options       []string `json:"options"`
	CorrectAnswer string   `json:"correct_answer"`
}

// Application 保存为用户生成的最近一套测验题。
type Application struct {
	ID        uint       `gorm:"primaryKey" json:"_id"`
	UserID    uint       `gorm:"uniqueIndex;not null" json:"userId"`
	Questions []Question `gorm:"serializer:json" json:"questions"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

// Message 是两个用户之间的一条点对点消息，创建后不可修改。
type Message struct {
	ID        uint      `gorm:"primaryKey" json:"_id"`
	Sender    uint      `gorm:"index:idx_msg_pair,priority:1;not null" json:"sender"`
	Receiver  uint      `gorm:"index:idx_msg_pair,priority:2;index;not null" json:"receiver"`
	Text      *string   `gorm:"column:message;type:text" json:"message,omitempty"`
	Image     *string   `gorm:"type:text" json:"image,omitempty"`
	Type      string    `gorm:"size:16;not null;default:text" json:"type"`
	Timestamp time.Time `gorm:"index;not null" json:"timestamp"`
}

type RefreshToken struct {
	ID        uint       `gorm:"primaryKey"`
	UserID    uint       `gorm:"index;not null"`
	Token     string     `gorm:"uniqueIndex;size:128;not null"`
	ExpiresAt time.Time  `gorm:"index;not null"`
	RevokedAt *time.Time
	CreatedAt time.Time
}
