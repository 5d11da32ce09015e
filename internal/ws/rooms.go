package ws

import "sort"

// Rooms 维护房间成员关系以及每个连接当前跟踪的会话房间；仅由网关事件循环访问。
type Rooms struct {
	members   map[string]map[string]struct{}
	connRooms map[string]map[string]struct{}
	tracked   map[string]string
}

func NewRooms() *Rooms {
	return &Rooms{
		members:   make(map[string]map[string]struct{}),
		connRooms: make(map[string]map[string]struct{}),
		tracked:   make(map[string]string),
	}
}

// Join 先退出连接所在的全部房间，再加入 room。
func (r *Rooms) Join(connID, room string) {
	for old := range r.connRooms[connID] {
		r.leave(connID, old)
	}
	if r.members[room] == nil {
		r.members[room] = make(map[string]struct{})
	}
	r.members[room][connID] = struct{}{}
	if r.connRooms[connID] == nil {
		r.connRooms[connID] = make(map[string]struct{})
	}
	r.connRooms[connID][room] = struct{}{}
	r.tracked[connID] = room
}

// Leave 退出指定房间；room 为空时退出全部房间。两种情况都清除跟踪记录。
func (r *Rooms) Leave(connID, room string) {
	if room != "" {
		r.leave(connID, room)
	} else {
		for old := range r.connRooms[connID] {
			r.leave(connID, old)
		}
	}
	delete(r.tracked, connID)
}

func (r *Rooms) leave(connID, room string) {
	if m := r.members[room]; m != nil {
		delete(m, connID)
		if len(m) == 0 {
			delete(r.members, room)
		}
	}
	if rs := r.connRooms[connID]; rs != nil {
		delete(rs, room)
		if len(rs) == 0 {
			delete(r.connRooms, connID)
		}
	}
}

// Members 返回房间内的连接 id，按字典序排列。
func (r *Rooms) Members(room string) []string {
	out := make([]string, 0, len(r.members[room]))
	for id := range r.members[room] {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (r *Rooms) Tracked(connID string) (string, bool) {
	room, ok := r.tracked[connID]
	return room, ok
}

func (r *Rooms) RoomsOf(connID string) []string {
	out := make([]string, 0, len(r.connRooms[connID]))
	for room := range r.connRooms[connID] {
		out = append(out, room)
	}
	sort.Strings(out)
	return out
}
