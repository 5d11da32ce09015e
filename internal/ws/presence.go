package ws

// Presence 记录用户当前唯一的活跃连接；仅由网关事件循环访问。
type Presence struct {
	byUser map[string]string
	byConn map[string]string
}

func NewPresence() *Presence {
	return &Presence{byUser: make(map[string]string), byConn: make(map[string]string)}
}

// Join 将 userID 指向 connID，返回被覆盖的旧连接（没有则为空）。
// 同一连接改报其他用户时，旧的用户记录一并清除。
func (p *Presence) Join(userID, connID string) (previous string) {
	if old, ok := p.byConn[connID]; ok && old != userID {
		delete(p.byUser, old)
	}
	previous = p.byUser[userID]
	if previous != "" && previous != connID {
		delete(p.byConn, previous)
	}
	if previous == connID {
		previous = ""
	}
	p.byUser[userID] = connID
	p.byConn[connID] = userID
	return previous
}

// Remove 删除值为 connID 的记录，返回其对应的用户。
func (p *Presence) Remove(connID string) (string, bool) {
	userID, ok := p.byConn[connID]
	if !ok {
		return "", false
	}
	delete(p.byConn, connID)
	if p.byUser[userID] == connID {
		delete(p.byUser, userID)
	}
	return userID, true
}

func (p *Presence) ConnOf(userID string) (string, bool) {
	c, ok := p.byUser[userID]
	return c, ok
}

func (p *Presence) UserOf(connID string) (string, bool) {
	u, ok := p.byConn[connID]
	return u, ok
}

func (p *Presence) Len() int { return len(p.byUser) }
