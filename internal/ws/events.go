package ws

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const (
	EventJoin           = "join"
	EventJoinRoom       = "join_room"
	EventLeaveRoom      = "leave_room"
	EventSendMessage    = "send_message"
	EventReceiveMessage = "receive_message"
	EventSessionExpired = "session_expired"
	EventMessageError   = "message_error"
)

const sessionExpiredNotice = "Your session was connected from another device or tab"

// Envelope 是 websocket 上传输的统一帧格式。
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

func encodeFrame(event string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: event, Data: raw})
}

func decodeFrame(frame []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return Envelope{}, err
	}
	if env.Event == "" {
		return Envelope{}, errors.New("missing event name")
	}
	return env, nil
}

type SessionExpiredPayload struct {
	Message string `json:"message"`
}

type MessageErrorPayload struct {
	Error   string `json:"error"`
	Details string `json:"details"`
}

// SendMessagePayload 是客户端 send_message 的数据；sender/receiver 兼容字符串与数字。
type SendMessagePayload struct {
	Sender    json.RawMessage `json:"sender"`
	Receiver  json.RawMessage `json:"receiver"`
	Message   *string         `json:"message"`
	Image     *string         `json:"image"`
	Room      json.RawMessage `json:"room"`
	Timestamp json.RawMessage `json:"timestamp"`
}

// decodeName 解析字符串或数字形式的标识，null 与缺省返回空串。
func decodeName(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", err
		}
		return strings.TrimSpace(s), nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", fmt.Errorf("identifier must be a string or number: %w", err)
	}
	return n.String(), nil
}

// parseUserID 将标识解析为正整数用户 id。
func parseUserID(raw json.RawMessage) (uint, error) {
	s, err := decodeName(raw)
	if err != nil {
		return 0, err
	}
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid user id %q", s)
	}
	return uint(id), nil
}

// Fingerprint 由发送方、接收方与客户端时间戳组成去重键。
func Fingerprint(sender, receiver uint, timestamp json.RawMessage) string {
	ts := strings.Trim(string(bytes.TrimSpace(timestamp)), `"`)
	return fmt.Sprintf("%d-%d-%s", sender, receiver, ts)
}
