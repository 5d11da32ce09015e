package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"skillconnect/internal/models"

	"gorm.io/gorm"
)

const (
	MessageTypeText  = "text"
	MessageTypeImage = "image"
)

// MessageService 封装消息持久化与查询。
type MessageService struct {
	db  *gorm.DB
	now func() time.Time
}

func NewMessageService(db *gorm.DB) *MessageService {
	return &MessageService{db: db, now: time.Now}
}

// Create 持久化一条消息，id 与时间戳由服务端分配。
func (s *MessageService) Create(ctx context.Context, msg *models.Message) error {
	if err := ValidateMessage(msg); err != nil {
		return err
	}
	if msg.Type == "" {
		msg.Type = MessageTypeText
		if msg.Text == nil || *msg.Text == "" {
			msg.Type = MessageTypeImage
		}
	}
	msg.ID = 0
	msg.Timestamp = s.now().UTC()
	if err := s.db.WithContext(ctx).Create(msg).Error; err != nil {
		return fmt.Errorf("save message: %w", err)
	}
	return nil
}

// ValidateMessage 校验收发双方与内容，文本和图片至少有一个非空。
func ValidateMessage(msg *models.Message) error {
	if msg.Sender == 0 || msg.Receiver == 0 {
		return fmt.Errorf("%w: sender and receiver are required", ErrInvalidMessage)
	}
	hasText := msg.Text != nil && strings.TrimSpace(*msg.Text) != ""
	hasImage := msg.Image != nil && *msg.Image != ""
	if !hasText && !hasImage {
		return fmt.Errorf("%w: message text or image is required", ErrInvalidMessage)
	}
	return nil
}

// Between 返回两个用户之间双向的全部消息，按时间升序。
func (s *MessageService) Between(a, b uint) ([]models.Message, error) {
	msgs := []models.Message{}
	err := s.db.
		Where("(sender = ? AND receiver = ?) OR (sender = ? AND receiver = ?)", a, b, b, a).
		Order("timestamp asc, id asc").
		Find(&msgs).Error
	if err != nil {
		return nil, err
	}
	return msgs, nil
}

// Conversation 是会话列表中的一项，按对端用户聚合。
type Conversation struct {
	PeerID       uint      `json:"_id"`
	Name         string    `json:"name"`
	LastMessage  string    `json:"lastMessage"`
	Timestamp    time.Time `json:"timestamp"`
	MessageCount int       `json:"messageCount"`
}

const unknownUserName = "Unknown User"

// Conversations 列出用户参与的所有会话，最近的在前。
func (s *MessageService) Conversations(userID uint) ([]Conversation, error) {
	var msgs []models.Message
	err := s.db.
		Where("sender = ? OR receiver = ?", userID, userID).
		Order("timestamp desc, id desc").
		Find(&msgs).Error
	if err != nil {
		return nil, err
	}

	byPeer := make(map[uint]*Conversation)
	out := make([]*Conversation, 0)
	for _, m := range msgs {
		peer := m.Receiver
		if m.Receiver == userID {
			peer = m.Sender
		}
		conv, ok := byPeer[peer]
		if !ok {
			// 消息已按时间倒序，首条即为最新消息
			last := "Image"
			if m.Text != nil && *m.Text != "" {
				last = *m.Text
			}
			conv = &Conversation{PeerID: peer, LastMessage: last, Timestamp: m.Timestamp}
			byPeer[peer] = conv
			out = append(out, conv)
		}
		conv.MessageCount++
	}

	names, err := s.resolveNames(byPeer)
	if err != nil {
		return nil, err
	}

	result := make([]Conversation, 0, len(out))
	for _, c := range out {
		c.Name = unknownUserName
		if n, ok := names[c.PeerID]; ok {
			c.Name = n
		}
		result = append(result, *c)
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Timestamp.After(result[j].Timestamp)
	})
	return result, nil
}

// resolveNames 批量获取会话对端的用户名。
func (s *MessageService) resolveNames(peers map[uint]*Conversation) (map[uint]string, error) {
	names := make(map[uint]string, len(peers))
	if len(peers) == 0 {
		return names, nil
	}
	ids := make([]uint, 0, len(peers))
	for id := range peers {
		ids = append(ids, id)
	}
	var users []models.User
	if err := s.db.Select("id", "name").Where("id IN ?", ids).Find(&users).Error; err != nil {
		return nil, err
	}
	for _, u := range users {
		names[u.ID] = u.Name
	}
	return names, nil
}
