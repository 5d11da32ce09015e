package ws

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"

	"skillconnect/internal/metrics"
	"skillconnect/internal/models"
	"skillconnect/internal/mw"

	"github.com/rs/zerolog/log"
)

// Conn 是网关视角下的一条客户端连接。Send 不得阻塞，缓冲已满时返回 false。
type Conn interface {
	ID() string
	Send(frame []byte) bool
	Close()
}

// MessageStore 持久化消息并回填 id 与服务端时间戳。
type MessageStore interface {
	Create(ctx context.Context, msg *models.Message) error
}

type Options struct {
	Store      MessageStore
	Suppressor Suppressor
	// Relay 可选，用于多实例部署时转发房间广播。
	Relay Relay
	// Limiter 可选，按连接限制 send_message 频率。
	Limiter *mw.RL
}

type persisted struct {
	connID string
	room   string
	frame  []byte
	err    error
}

type relayedFrame struct {
	room  string
	frame []byte
}

// Gateway 在单个协程中串行处理所有连接事件，在线状态与房间关系只在该协程内读写。
type Gateway struct {
	store   MessageStore
	dedup   Suppressor
	relay   Relay
	limiter *mw.RL

	// events 按到达顺序承载连接事件与查询，保证同一连接的事件有序。
	events  chan func()
	results chan persisted
	relayed chan relayedFrame
	done    chan struct{}

	ctx      context.Context
	conns    map[string]Conn
	bound    map[string]string
	presence *Presence
	rooms    *Rooms
}

func NewGateway(opts Options) *Gateway {
	return &Gateway{
		store:    opts.Store,
		dedup:    opts.Suppressor,
		relay:    opts.Relay,
		limiter:  opts.Limiter,
		events:   make(chan func(), 256),
		results:  make(chan persisted, 256),
		relayed:  make(chan relayedFrame, 256),
		done:     make(chan struct{}),
		conns:    make(map[string]Conn),
		bound:    make(map[string]string),
		presence: NewPresence(),
		rooms:    NewRooms(),
	}
}

// Run 运行事件循环直到 ctx 结束，退出时关闭所有连接。
func (g *Gateway) Run(ctx context.Context) error {
	g.ctx = ctx
	defer func() {
		for id, c := range g.conns {
			c.Close()
			delete(g.conns, id)
			metrics.WsConnections.Dec()
		}
		close(g.done)
	}()

	if g.relay != nil {
		if err := g.relay.Listen(ctx, g.deliverRelayed); err != nil {
			log.Error().Err(err).Msg("room relay disabled")
		}
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case fn := <-g.events:
			fn()
		case res := <-g.results:
			g.finishSend(res)
		case rf := <-g.relayed:
			g.broadcast(rf.room, rf.frame)
		}
	}
}

func (g *Gateway) post(fn func()) bool {
	select {
	case <-g.done:
		return false
	default:
	}
	select {
	case g.events <- fn:
		return true
	case <-g.done:
		return false
	}
}

// Connect 登记新连接；user 非空表示连接已通过 token 绑定该用户。
func (g *Gateway) Connect(c Conn, user string) bool {
	return g.post(func() {
		g.conns[c.ID()] = c
		if user != "" {
			g.bound[c.ID()] = user
		}
		metrics.WsConnections.Inc()
		log.Debug().Str("conn_id", c.ID()).Str("user_id", user).Msg("ws connected")
	})
}

// Disconnect 可重复调用，未知连接直接忽略。
func (g *Gateway) Disconnect(connID string) {
	g.post(func() { g.drop(connID) })
}

// Dispatch 解析一帧客户端数据并交给事件循环处理。
func (g *Gateway) Dispatch(connID string, frame []byte) {
	env, err := decodeFrame(frame)
	if err != nil {
		log.Warn().Err(err).Str("conn_id", connID).Msg("ws: malformed frame")
		return
	}
	g.post(func() { g.handle(connID, env) })
}

func (g *Gateway) deliverRelayed(room string, frame []byte) {
	select {
	case g.relayed <- relayedFrame{room: room, frame: frame}:
	case <-g.done:
	}
}

func (g *Gateway) handle(connID string, env Envelope) {
	if _, ok := g.conns[connID]; !ok {
		return
	}
	switch env.Event {
	case EventJoin:
		g.join(connID, env.Data)
	case EventJoinRoom:
		room, err := decodeName(env.Data)
		if err != nil || room == "" {
			log.Warn().Str("conn_id", connID).Msg("join_room: missing room id")
			return
		}
		g.rooms.Join(connID, room)
		log.Debug().Str("conn_id", connID).Str("room", room).Msg("joined room")
	case EventLeaveRoom:
		room, err := decodeName(env.Data)
		if err != nil {
			log.Warn().Err(err).Str("conn_id", connID).Msg("leave_room: bad room id")
			return
		}
		g.rooms.Leave(connID, room)
		log.Debug().Str("conn_id", connID).Str("room", room).Msg("left room")
	case EventSendMessage:
		g.send(connID, env.Data)
	default:
		log.Debug().Str("conn_id", connID).Str("event", env.Event).Msg("ws: unknown event")
	}
}

func (g *Gateway) join(connID string, data json.RawMessage) {
	userID, err := decodeName(data)
	if err != nil || userID == "" {
		log.Warn().Str("conn_id", connID).Msg("join: missing user id")
		return
	}
	if bound, ok := g.bound[connID]; ok && bound != userID {
		log.Warn().Str("conn_id", connID).Str("user_id", userID).Str("bound_user", bound).Msg("join: user does not match token")
		return
	}

	if prev, ok := g.presence.ConnOf(userID); ok && prev != connID {
		if old, live := g.conns[prev]; live {
			if frame, err := encodeFrame(EventSessionExpired, SessionExpiredPayload{Message: sessionExpiredNotice}); err == nil {
				old.Send(frame)
			}
			g.drop(prev)
			metrics.WsSessionsDisplacedTotal.Inc()
			log.Info().Str("user_id", userID).Str("conn_id", prev).Msg("previous session displaced")
		}
	}
	g.presence.Join(userID, connID)
	log.Info().Str("user_id", userID).Str("conn_id", connID).Msg("user joined")
}

var (
	errMissingContent = errors.New("message text or image is required")
	errRateLimited    = errors.New("rate limit exceeded")
)

// send 在事件循环中完成校验，去重、限流与持久化在独立协程中进行。
func (g *Gateway) send(connID string, data json.RawMessage) {
	var p SendMessagePayload
	if err := json.Unmarshal(data, &p); err != nil {
		g.sendError(connID, "Invalid message", err.Error())
		return
	}
	msg, room, err := buildMessage(p)
	if err != nil {
		g.sendError(connID, "Invalid message", err.Error())
		return
	}
	key := Fingerprint(msg.Sender, msg.Receiver, p.Timestamp)
	go g.persist(connID, room, key, msg)
}

func buildMessage(p SendMessagePayload) (*models.Message, string, error) {
	sender, err := parseUserID(p.Sender)
	if err != nil {
		return nil, "", errors.New("sender: " + err.Error())
	}
	receiver, err := parseUserID(p.Receiver)
	if err != nil {
		return nil, "", errors.New("receiver: " + err.Error())
	}
	room, err := decodeName(p.Room)
	if err != nil || room == "" {
		return nil, "", errors.New("room is required")
	}
	hasText := p.Message != nil && strings.TrimSpace(*p.Message) != ""
	hasImage := p.Image != nil && *p.Image != ""
	if !hasText && !hasImage {
		return nil, "", errMissingContent
	}
	msg := &models.Message{Sender: sender, Receiver: receiver, Type: "text"}
	if hasText {
		msg.Text = p.Message
	}
	if hasImage {
		msg.Image = p.Image
		if !hasText {
			msg.Type = "image"
		}
	}
	return msg, room, nil
}

func (g *Gateway) persist(connID, room, key string, msg *models.Message) {
	ctx := g.ctx
	if !g.dedup.ShouldProcess(ctx, key) {
		metrics.WsDuplicatesTotal.Inc()
		log.Debug().Str("conn_id", connID).Str("fingerprint", key).Msg("duplicate message dropped")
		return
	}
	res := persisted{connID: connID, room: room}
	// 重复消息先被静默丢弃，不消耗限流配额
	if g.limiter != nil && !g.limiter.Allow(connID) {
		res.err = errRateLimited
	} else if err := g.store.Create(ctx, msg); err != nil {
		res.err = err
	} else if frame, err := encodeFrame(EventReceiveMessage, msg); err != nil {
		res.err = err
	} else {
		res.frame = frame
		if g.relay != nil {
			if err := g.relay.Publish(ctx, room, frame); err != nil {
				log.Warn().Err(err).Str("room", room).Msg("relay publish failed")
			}
		}
	}
	select {
	case g.results <- res:
	case <-g.done:
	}
}

func (g *Gateway) finishSend(res persisted) {
	if errors.Is(res.err, errRateLimited) {
		log.Debug().Str("conn_id", res.connID).Msg("send_message rate limited")
		g.sendError(res.connID, "Too many messages", res.err.Error())
		return
	}
	if res.err != nil {
		metrics.WsPersistFailuresTotal.Inc()
		log.Error().Err(res.err).Str("conn_id", res.connID).Str("room", res.room).Msg("save message")
		g.sendError(res.connID, "Failed to process message", res.err.Error())
		return
	}
	metrics.WsMessagesTotal.Inc()
	g.broadcast(res.room, res.frame)
}

// broadcast 按当前房间成员发送；缓冲已满的连接被断开。
func (g *Gateway) broadcast(room string, frame []byte) {
	for _, id := range g.rooms.Members(room) {
		c, ok := g.conns[id]
		if !ok {
			continue
		}
		if !c.Send(frame) {
			log.Warn().Str("conn_id", id).Str("room", room).Msg("slow consumer dropped")
			g.drop(id)
		}
	}
}

func (g *Gateway) sendError(connID, msg, details string) {
	c, ok := g.conns[connID]
	if !ok {
		return
	}
	frame, err := encodeFrame(EventMessageError, MessageErrorPayload{Error: msg, Details: details})
	if err != nil {
		return
	}
	c.Send(frame)
}

// drop 清理连接的在线状态与房间关系并关闭连接，可重复调用。
func (g *Gateway) drop(connID string) {
	c, ok := g.conns[connID]
	if !ok {
		return
	}
	delete(g.conns, connID)
	delete(g.bound, connID)
	if userID, ok := g.presence.Remove(connID); ok {
		log.Info().Str("user_id", userID).Str("conn_id", connID).Msg("user offline")
	}
	g.rooms.Leave(connID, "")
	if g.limiter != nil {
		g.limiter.Forget(connID)
	}
	c.Close()
	metrics.WsConnections.Dec()
}

// query 在事件循环中执行 fn 并等待完成；网关已停止时返回 false。
func (g *Gateway) query(fn func()) bool {
	finished := make(chan struct{})
	if !g.post(func() { fn(); close(finished) }) {
		return false
	}
	select {
	case <-finished:
		return true
	case <-g.done:
		return false
	}
}

// UserConn 返回用户当前的活跃连接。
func (g *Gateway) UserConn(userID string) (connID string, ok bool) {
	g.query(func() { connID, ok = g.presence.ConnOf(userID) })
	return
}

// RoomOf 返回连接当前跟踪的房间。
func (g *Gateway) RoomOf(connID string) (room string, ok bool) {
	g.query(func() { room, ok = g.rooms.Tracked(connID) })
	return
}

func (g *Gateway) RoomMembers(room string) (members []string) {
	g.query(func() { members = g.rooms.Members(room) })
	return
}

// Online 返回当前登记的连接数。
func (g *Gateway) Online() (n int) {
	g.query(func() { n = len(g.conns) })
	return
}

func formatUserID(id uint) string { return strconv.FormatUint(uint64(id), 10) }
