package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"mobilechat/internal/apperrors"
	"mobilechat/internal/models"
)

// FaultFunc is consulted before every repository call with an operation
// name such as "users.get" or "tx.commit". A non-nil result is returned in
// place of running the call.
type FaultFunc func(op string) error

type relKey struct {
	owner string
	peer  string
	kind  models.RelationKind
}

type memData struct {
	users       map[string]models.User
	relations   map[relKey]time.Time
	emails      map[string]string
	nicknames   map[string]string
	rooms       map[string]models.Room
	members     map[string]map[string]time.Time
	messages    map[string][]models.Message
	credentials map[string]models.Credential
}

func newMemData() *memData {
	return &memData{
		users:       make(map[string]models.User),
		relations:   make(map[relKey]time.Time),
		emails:      make(map[string]string),
		nicknames:   make(map[string]string),
		rooms:       make(map[string]models.Room),
		members:     make(map[string]map[string]time.Time),
		messages:    make(map[string][]models.Message),
		credentials: make(map[string]models.Credential),
	}
}

func (d *memData) clone() *memData {
	c := newMemData()
	for k, v := range d.users {
		c.users[k] = v
	}
	for k, v := range d.relations {
		c.relations[k] = v
	}
	for k, v := range d.emails {
		c.emails[k] = v
	}
	for k, v := range d.nicknames {
		c.nicknames[k] = v
	}
	for k, v := range d.rooms {
		c.rooms[k] = v
	}
	for room, set := range d.members {
		cp := make(map[string]time.Time, len(set))
		for u, t := range set {
			cp[u] = t
		}
		c.members[room] = cp
	}
	for room, msgs := range d.messages {
		c.messages[room] = append([]models.Message(nil), msgs...)
	}
	for k, v := range d.credentials {
		c.credentials[k] = v
	}
	return c
}

// MemoryStore keeps every table in process memory. Each repository call is
// atomic; WithTx works on a private copy that replaces the live data only
// when fn succeeds. Transactions are serialized against all other calls.
type MemoryStore struct {
	mu   sync.Mutex
	data *memData

	faultMu sync.RWMutex
	fault   FaultFunc
}

// NewMemoryStore returns an empty in-memory Store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: newMemData()}
}

// SetFault installs fn as the fault injector; nil clears it.
func (s *MemoryStore) SetFault(fn FaultFunc) {
	s.faultMu.Lock()
	s.fault = fn
	s.faultMu.Unlock()
}

func (s *MemoryStore) checkFault(op string) error {
	s.faultMu.RLock()
	fn := s.fault
	s.faultMu.RUnlock()
	if fn == nil {
		return nil
	}
	return fn(op)
}

func (s *MemoryStore) root() memScope { return memScope{s: s} }

func (s *MemoryStore) Users() UserRepository             { return s.root().Users() }
func (s *MemoryStore) Relations() RelationRepository     { return s.root().Relations() }
func (s *MemoryStore) Indexes() IndexRepository          { return s.root().Indexes() }
func (s *MemoryStore) Rooms() RoomRepository             { return s.root().Rooms() }
func (s *MemoryStore) Messages() MessageRepository       { return s.root().Messages() }
func (s *MemoryStore) Credentials() CredentialRepository { return s.root().Credentials() }

func (s *MemoryStore) WithTx(ctx context.Context, fn func(tx Store) error) error {
	return s.root().WithTx(ctx, fn)
}

// memScope is either the live store (data == nil) or a transaction over
// a private copy (data != nil, store mutex held by the transaction).
type memScope struct {
	s    *MemoryStore
	data *memData
}

func (sc memScope) do(ctx context.Context, op string, fn func(d *memData) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if sc.data != nil {
		if err := sc.s.checkFault(op); err != nil {
			return err
		}
		return fn(sc.data)
	}
	sc.s.mu.Lock()
	defer sc.s.mu.Unlock()
	if err := sc.s.checkFault(op); err != nil {
		return err
	}
	return fn(sc.s.data)
}

func (sc memScope) Users() UserRepository             { return memUsers{sc} }
func (sc memScope) Relations() RelationRepository     { return memRelations{sc} }
func (sc memScope) Indexes() IndexRepository          { return memIndexes{sc} }
func (sc memScope) Rooms() RoomRepository             { return memRooms{sc} }
func (sc memScope) Messages() MessageRepository       { return memMessages{sc} }
func (sc memScope) Credentials() CredentialRepository { return memCredentials{sc} }

// WithTx inside a transaction joins the outer one.
func (sc memScope) WithTx(ctx context.Context, fn func(tx Store) error) error {
	if sc.data != nil {
		return fn(sc)
	}
	sc.s.mu.Lock()
	defer sc.s.mu.Unlock()
	if err := sc.s.checkFault("tx.begin"); err != nil {
		return err
	}
	work := sc.s.data.clone()
	if err := fn(memScope{s: sc.s, data: work}); err != nil {
		return err
	}
	if err := sc.s.checkFault("tx.commit"); err != nil {
		return err
	}
	sc.s.data = work
	return nil
}

type memUsers struct{ sc memScope }

func (r memUsers) Create(ctx context.Context, user *models.User) error {
	return r.sc.do(ctx, "users.create", func(d *memData) error {
		if _, ok := d.users[user.ID]; ok {
			return apperrors.Newf(apperrors.ErrAlreadyExists, "user %s already exists", user.ID)
		}
		now := time.Now()
		if user.CreatedAt.IsZero() {
			user.CreatedAt = now
		}
		user.UpdatedAt = now
		stored := *user
		stored.Friends, stored.InvitedFriends, stored.FriendRequests = nil, nil, nil
		d.users[user.ID] = stored
		return nil
	})
}

func (r memUsers) GetByID(ctx context.Context, id string) (*models.User, error) {
	var out *models.User
	err := r.sc.do(ctx, "users.get", func(d *memData) error {
		u, ok := d.users[id]
		if !ok {
			return apperrors.Newf(apperrors.ErrNotFound, "user %s not found", id)
		}
		out = &u
		return nil
	})
	return out, err
}

func (r memUsers) GetMany(ctx context.Context, ids []string) ([]*models.User, error) {
	out := []*models.User{}
	err := r.sc.do(ctx, "users.get_many", func(d *memData) error {
		for _, id := range ids {
			if u, ok := d.users[id]; ok {
				out = append(out, &u)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, err
}

func (r memUsers) List(ctx context.Context) ([]*models.User, error) {
	out := []*models.User{}
	err := r.sc.do(ctx, "users.list", func(d *memData) error {
		for _, u := range d.users {
			u := u
			out = append(out, &u)
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, err
}

func (r memUsers) Update(ctx context.Context, user *models.User) error {
	return r.sc.do(ctx, "users.update", func(d *memData) error {
		cur, ok := d.users[user.ID]
		if !ok {
			return apperrors.Newf(apperrors.ErrNotFound, "user %s not found", user.ID)
		}
		user.UpdatedAt = time.Now()
		cur.Email, cur.Name, cur.Bio, cur.PhotoURL = user.Email, user.Name, user.Bio, user.PhotoURL
		cur.UpdatedAt = user.UpdatedAt
		d.users[user.ID] = cur
		return nil
	})
}

func (r memUsers) Delete(ctx context.Context, id string) error {
	return r.sc.do(ctx, "users.delete", func(d *memData) error {
		delete(d.users, id)
		return nil
	})
}

type memRelations struct{ sc memScope }

func (r memRelations) Add(ctx context.Context, ownerID, peerID string, kind models.RelationKind) error {
	return r.sc.do(ctx, "relations.add", func(d *memData) error {
		k := relKey{ownerID, peerID, kind}
		if _, ok := d.relations[k]; !ok {
			d.relations[k] = time.Now()
		}
		return nil
	})
}

func (r memRelations) Remove(ctx context.Context, ownerID, peerID string, kind models.RelationKind) (bool, error) {
	removed := false
	err := r.sc.do(ctx, "relations.remove", func(d *memData) error {
		k := relKey{ownerID, peerID, kind}
		if _, ok := d.relations[k]; ok {
			delete(d.relations, k)
			removed = true
		}
		return nil
	})
	return removed, err
}

func (r memRelations) Has(ctx context.Context, ownerID, peerID string, kind models.RelationKind) (bool, error) {
	found := false
	err := r.sc.do(ctx, "relations.has", func(d *memData) error {
		_, found = d.relations[relKey{ownerID, peerID, kind}]
		return nil
	})
	return found, err
}

func (r memRelations) Peers(ctx context.Context, ownerID string, kind models.RelationKind) ([]string, error) {
	out := []string{}
	err := r.sc.do(ctx, "relations.peers", func(d *memData) error {
		for k := range d.relations {
			if k.owner == ownerID && k.kind == kind {
				out = append(out, k.peer)
			}
		}
		return nil
	})
	sort.Strings(out)
	return out, err
}

func (r memRelations) RemoveAll(ctx context.Context, userID string) ([]string, error) {
	var removed []models.UserRelation
	err := r.sc.do(ctx, "relations.remove_all", func(d *memData) error {
		for k := range d.relations {
			if k.owner == userID || k.peer == userID {
				removed = append(removed, models.UserRelation{OwnerID: k.owner, PeerID: k.peer, Kind: k.kind})
				delete(d.relations, k)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return otherEnds(removed, userID), nil
}

type memIndexes struct{ sc memScope }

func putIndex(m map[string]string, key, userID, what string) error {
	if _, ok := m[key]; ok {
		return apperrors.Newf(apperrors.ErrAlreadyExists, "%s %q already indexed", what, key)
	}
	m[key] = userID
	return nil
}

func getIndex(m map[string]string, key, what string) (string, error) {
	id, ok := m[key]
	if !ok {
		return "", apperrors.Newf(apperrors.ErrNotFound, "%s %q not indexed", what, key)
	}
	return id, nil
}

func (r memIndexes) PutEmail(ctx context.Context, email, userID string) error {
	return r.sc.do(ctx, "indexes.put_email", func(d *memData) error {
		return putIndex(d.emails, email, userID, "email")
	})
}

func (r memIndexes) GetEmail(ctx context.Context, email string) (string, error) {
	var id string
	err := r.sc.do(ctx, "indexes.get_email", func(d *memData) (err error) {
		id, err = getIndex(d.emails, email, "email")
		return err
	})
	return id, err
}

func (r memIndexes) DeleteEmail(ctx context.Context, email string) error {
	return r.sc.do(ctx, "indexes.delete_email", func(d *memData) error {
		delete(d.emails, email)
		return nil
	})
}

func (r memIndexes) PutNickname(ctx context.Context, nickname, userID string) error {
	return r.sc.do(ctx, "indexes.put_nickname", func(d *memData) error {
		return putIndex(d.nicknames, nickname, userID, "nickname")
	})
}

func (r memIndexes) GetNickname(ctx context.Context, nickname string) (string, error) {
	var id string
	err := r.sc.do(ctx, "indexes.get_nickname", func(d *memData) (err error) {
		id, err = getIndex(d.nicknames, nickname, "nickname")
		return err
	})
	return id, err
}

func (r memIndexes) DeleteNickname(ctx context.Context, nickname string) error {
	return r.sc.do(ctx, "indexes.delete_nickname", func(d *memData) error {
		delete(d.nicknames, nickname)
		return nil
	})
}

type memRooms struct{ sc memScope }

func sortedMembers(set map[string]time.Time) []string {
	out := make([]string, 0, len(set))
	for u := range set {
		out = append(out, u)
	}
	sort.Strings(out)
	return out
}

func (r memRooms) Create(ctx context.Context, room *models.Room) error {
	return r.sc.do(ctx, "rooms.create", func(d *memData) error {
		if _, ok := d.rooms[room.ID]; ok {
			return apperrors.Newf(apperrors.ErrAlreadyExists, "room %s already exists", room.ID)
		}
		now := time.Now()
		if room.CreatedAt.IsZero() {
			room.CreatedAt = now
		}
		room.UpdatedAt = now
		stored := *room
		stored.MemberIDs = nil
		d.rooms[room.ID] = stored
		return nil
	})
}

func (r memRooms) GetByID(ctx context.Context, id string) (*models.Room, error) {
	var out *models.Room
	err := r.sc.do(ctx, "rooms.get", func(d *memData) error {
		room, ok := d.rooms[id]
		if !ok {
			return apperrors.Newf(apperrors.ErrNotFound, "room %s not found", id)
		}
		room.MemberIDs = sortedMembers(d.members[id])
		out = &room
		return nil
	})
	return out, err
}

func (r memRooms) List(ctx context.Context) ([]*models.Room, error) {
	out := []*models.Room{}
	err := r.sc.do(ctx, "rooms.list", func(d *memData) error {
		for _, room := range d.rooms {
			room := room
			out = append(out, &room)
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, err
}

func (r memRooms) Delete(ctx context.Context, id string) error {
	return r.sc.do(ctx, "rooms.delete", func(d *memData) error {
		if _, ok := d.rooms[id]; !ok {
			return apperrors.Newf(apperrors.ErrNotFound, "room %s not found", id)
		}
		delete(d.rooms, id)
		delete(d.members, id)
		return nil
	})
}

func (r memRooms) AddMember(ctx context.Context, roomID, userID string) error {
	return r.sc.do(ctx, "rooms.add_member", func(d *memData) error {
		set, ok := d.members[roomID]
		if !ok {
			set = make(map[string]time.Time)
			d.members[roomID] = set
		}
		if _, ok := set[userID]; !ok {
			set[userID] = time.Now()
		}
		return nil
	})
}

func (r memRooms) IsMember(ctx context.Context, roomID, userID string) (bool, error) {
	found := false
	err := r.sc.do(ctx, "rooms.is_member", func(d *memData) error {
		_, found = d.members[roomID][userID]
		return nil
	})
	return found, err
}

func (r memRooms) Members(ctx context.Context, roomID string) ([]string, error) {
	var out []string
	err := r.sc.do(ctx, "rooms.members", func(d *memData) error {
		out = sortedMembers(d.members[roomID])
		return nil
	})
	return out, err
}

func (r memRooms) RemoveUser(ctx context.Context, userID string) error {
	return r.sc.do(ctx, "rooms.remove_user", func(d *memData) error {
		for _, set := range d.members {
			delete(set, userID)
		}
		return nil
	})
}

type memMessages struct{ sc memScope }

func (r memMessages) Create(ctx context.Context, message *models.Message) error {
	return r.sc.do(ctx, "messages.create", func(d *memData) error {
		for _, m := range d.messages[message.RoomID] {
			if m.Seq == message.Seq || m.ID == message.ID {
				return apperrors.Newf(apperrors.ErrAlreadyExists, "message seq %d already exists in room %s", message.Seq, message.RoomID)
			}
		}
		if message.CreatedAt.IsZero() {
			message.CreatedAt = time.Now()
		}
		d.messages[message.RoomID] = append(d.messages[message.RoomID], *message)
		return nil
	})
}

func (r memMessages) Last(ctx context.Context, roomID string) (*models.Message, error) {
	var out *models.Message
	err := r.sc.do(ctx, "messages.last", func(d *memData) error {
		for _, m := range d.messages[roomID] {
			if out == nil || m.Seq > out.Seq {
				m := m
				out = &m
			}
		}
		if out == nil {
			return apperrors.Newf(apperrors.ErrNotFound, "room %s has no messages", roomID)
		}
		return nil
	})
	return out, err
}

func (r memMessages) ListSince(ctx context.Context, roomID string, since *int64) ([]*models.Message, error) {
	out := []*models.Message{}
	err := r.sc.do(ctx, "messages.list", func(d *memData) error {
		for _, m := range d.messages[roomID] {
			if since != nil && m.Timestamp <= *since {
				continue
			}
			m := m
			out = append(out, &m)
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].Timestamp != out[j].Timestamp {
			return out[i].Timestamp < out[j].Timestamp
		}
		return out[i].Seq < out[j].Seq
	})
	return out, err
}

func (r memMessages) FindByClientID(ctx context.Context, roomID, senderID, clientMessageID string) (*models.Message, error) {
	var out *models.Message
	err := r.sc.do(ctx, "messages.find_client_id", func(d *memData) error {
		for _, m := range d.messages[roomID] {
			if m.SenderID == senderID && m.ClientMessageID == clientMessageID {
				m := m
				out = &m
				return nil
			}
		}
		return apperrors.Newf(apperrors.ErrNotFound, "no message %q from %s in room %s", clientMessageID, senderID, roomID)
	})
	return out, err
}

func (r memMessages) DeleteByRoom(ctx context.Context, roomID string) error {
	return r.sc.do(ctx, "messages.delete_room", func(d *memData) error {
		delete(d.messages, roomID)
		return nil
	})
}

type memCredentials struct{ sc memScope }

func (r memCredentials) Create(ctx context.Context, cred *models.Credential) error {
	return r.sc.do(ctx, "credentials.create", func(d *memData) error {
		if _, ok := d.credentials[cred.UserID]; ok {
			return apperrors.Newf(apperrors.ErrAlreadyExists, "credential for %s already exists", cred.UserID)
		}
		for _, c := range d.credentials {
			if c.Email == cred.Email {
				return apperrors.Newf(apperrors.ErrAlreadyExists, "email %q already registered", cred.Email)
			}
		}
		now := time.Now()
		cred.CreatedAt, cred.UpdatedAt = now, now
		d.credentials[cred.UserID] = *cred
		return nil
	})
}

func (r memCredentials) GetByEmail(ctx context.Context, email string) (*models.Credential, error) {
	var out *models.Credential
	err := r.sc.do(ctx, "credentials.get_email", func(d *memData) error {
		for _, c := range d.credentials {
			if c.Email == email {
				c := c
				out = &c
				return nil
			}
		}
		return apperrors.Newf(apperrors.ErrNotFound, "no credential for %q", email)
	})
	return out, err
}

func (r memCredentials) GetByUserID(ctx context.Context, userID string) (*models.Credential, error) {
	var out *models.Credential
	err := r.sc.do(ctx, "credentials.get", func(d *memData) error {
		c, ok := d.credentials[userID]
		if !ok {
			return apperrors.Newf(apperrors.ErrNotFound, "no credential for user %s", userID)
		}
		out = &c
		return nil
	})
	return out, err
}

func (r memCredentials) Delete(ctx context.Context, userID string) error {
	return r.sc.do(ctx, "credentials.delete", func(d *memData) error {
		delete(d.credentials, userID)
		return nil
	})
}
