package relay

// Room is a named set of participant ids. A connection replaced by a newer
// one for the same user keeps that user's rooms.
type Room struct {
	ID      string
	Members map[string]struct{}
}

func newRoom(id string) *Room {
	return &Room{ID: id, Members: make(map[string]struct{})}
}

func (r *Room) add(userID string) bool {
	if _, ok := r.Members[userID]; ok {
		return false
	}
	r.Members[userID] = struct{}{}
	return true
}

func (r *Room) remove(userID string) bool {
	if _, ok := r.Members[userID]; !ok {
		return false
	}
	delete(r.Members, userID)
	return true
}

func (r *Room) empty() bool { return len(r.Members) == 0 }
