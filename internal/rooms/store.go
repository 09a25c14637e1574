package rooms

// Room is the mutable server-side state for one sync room. A room exists if
// and only if it has at least one member; the registry deletes it, host URL
// included, when the last member leaves.
type Room struct {
	ID      string
	HostURL string
	members map[string]*Session
}

// MemberCount returns the number of sessions currently in the room.
func (r *Room) MemberCount() int {
	return len(r.members)
}

// Store abstracts the room mapping so the registry can be backed by an
// in-memory map in tests and single-instance deployments, or swapped for a
// shared store later. Implementations are not required to be safe for
// concurrent use; the registry serializes access.
type Store interface {
	Room(id string) (*Room, bool)
	CreateRoom(id string) *Room
	DeleteRoom(id string)
	Rooms() []*Room
}

// MemStore is the default in-memory Store.
type MemStore struct {
	rooms map[string]*Room
}

// NewMemStore creates an empty in-memory room store.
func NewMemStore() *MemStore {
	return &MemStore{rooms: make(map[string]*Room)}
}

func (s *MemStore) Room(id string) (*Room, bool) {
	r, ok := s.rooms[id]
	return r, ok
}

func (s *MemStore) CreateRoom(id string) *Room {
	r := &Room{ID: id, members: make(map[string]*Session)}
	s.rooms[id] = r
	return r
}

func (s *MemStore) DeleteRoom(id string) {
	delete(s.rooms, id)
}

func (s *MemStore) Rooms() []*Room {
	out := make([]*Room, 0, len(s.rooms))
	for _, r := range s.rooms {
		out = append(out, r)
	}
	return out
}
