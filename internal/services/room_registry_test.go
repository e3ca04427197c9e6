package services

import (
	"errors"
	"strings"
	"testing"

	"mobilechat/internal/apperrors"
	"mobilechat/internal/models"
)

func TestSecureRoomJoinScenario(t *testing.T) {
	env := newTestEnv(t)
	roomID, err := env.rooms.CreateRoom(env.ctx, "owner", "Test", true, "abc")
	if err != nil {
		t.Fatalf("CreateRoom() error = %v", err)
	}

	err = env.rooms.JoinRoom(env.ctx, "u1", roomID, "wrong")
	if !errors.Is(err, ErrRoomPasswordMismatch) || !errors.Is(err, apperrors.ErrUnauthorized) {
		t.Fatalf("JoinRoom(wrong) error = %v", err)
	}
	if ok, _ := env.rooms.IsMember(env.ctx, roomID, "u1"); ok {
		t.Fatalf("failed join added membership")
	}
	// 密码区分大小写
	if err := env.rooms.JoinRoom(env.ctx, "u1", roomID, "ABC"); !errors.Is(err, ErrRoomPasswordMismatch) {
		t.Fatalf("JoinRoom(ABC) error = %v", err)
	}

	for i := 0; i < 2; i++ {
		if err := env.rooms.JoinRoom(env.ctx, "u1", roomID, "abc"); err != nil {
			t.Fatalf("JoinRoom(abc) #%d error = %v", i+1, err)
		}
	}
	members, err := env.rooms.Members(env.ctx, roomID)
	if err != nil {
		t.Fatal(err)
	}
	if !equalIDs(members, []string{"owner", "u1"}) {
		t.Errorf("members = %v", members)
	}
}

func TestCreateRoomValidation(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.rooms.CreateRoom(env.ctx, "owner", "Locked", true, ""); !errors.Is(err, ErrRoomPasswordRequired) {
		t.Errorf("secure room without password: %v", err)
	}
	if _, err := env.rooms.CreateRoom(env.ctx, "owner", "Locked", true, "   "); !errors.Is(err, apperrors.ErrInvalidArgument) {
		t.Errorf("secure room with blank password: %v", err)
	}
	if _, err := env.rooms.CreateRoom(env.ctx, "owner", "  ", false, ""); !errors.Is(err, ErrRoomNameRequired) {
		t.Errorf("blank name: %v", err)
	}
	if _, err := env.rooms.CreateRoom(env.ctx, "owner", "Long", true, strings.Repeat("p", 73)); !errors.Is(err, apperrors.ErrInvalidArgument) {
		t.Errorf("73 byte password: %v", err)
	}

	// 非加密聊天室忽略密码
	id, err := env.rooms.CreateRoom(env.ctx, "owner", "Open", false, "ignored")
	if err != nil {
		t.Fatal(err)
	}
	if err := env.rooms.JoinRoom(env.ctx, "u1", id, ""); err != nil {
		t.Errorf("JoinRoom(open) error = %v", err)
	}
	room, _ := env.rooms.GetRoom(env.ctx, id)
	if room.PasswordHash != "" {
		t.Errorf("open room stored a password")
	}
	if err := env.rooms.JoinRoom(env.ctx, "u1", "missing", ""); !errors.Is(err, ErrRoomNotFound) {
		t.Errorf("JoinRoom(missing) error = %v", err)
	}
}

func TestListRoomsHidesPasswords(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.rooms.CreateRoom(env.ctx, "owner", "First", false, ""); err != nil {
		t.Fatal(err)
	}
	if _, err := env.rooms.CreateRoom(env.ctx, "owner", "Second", true, "pw"); err != nil {
		t.Fatal(err)
	}
	rooms, err := env.rooms.ListRooms(env.ctx)
	if err != nil {
		t.Fatalf("ListRooms() error = %v", err)
	}
	if len(rooms) != 2 {
		t.Fatalf("ListRooms() = %+v", rooms)
	}
	names := map[string]bool{}
	for _, r := range rooms {
		names[r.Name] = r.Secure
	}
	if secure, ok := names["Second"]; !ok || !secure || names["First"] {
		t.Errorf("summaries = %+v", rooms)
	}
}

func TestDeleteRoomCreatorOnly(t *testing.T) {
	env := newTestEnv(t)
	id, err := env.rooms.CreateRoom(env.ctx, "owner", "Doomed", false, "")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := env.messages.Append(env.ctx, AppendInput{RoomID: id, SenderID: "owner", SenderName: "o", Text: "hi"}); err != nil {
		t.Fatal(err)
	}
	if err := env.rooms.DeleteRoom(env.ctx, "intruder", id); !errors.Is(err, ErrNotRoomCreator) {
		t.Fatalf("DeleteRoom(intruder) error = %v", err)
	}
	if err := env.rooms.DeleteRoom(env.ctx, "owner", id); err != nil {
		t.Fatalf("DeleteRoom() error = %v", err)
	}
	if _, err := env.rooms.GetRoom(env.ctx, id); !errors.Is(err, ErrRoomNotFound) {
		t.Errorf("GetRoom after delete: %v", err)
	}
	if msgs, _ := env.messages.Tail(env.ctx, id, nil); len(msgs) != 0 {
		t.Errorf("messages survived room deletion: %d", len(msgs))
	}
}

func TestRoomListSubscription(t *testing.T) {
	env := newTestEnv(t)
	snaps := newSnapshots()
	sub, err := env.rooms.SubscribeRoomList(env.ctx, snaps.handle)
	if err != nil {
		t.Fatal(err)
	}
	defer sub.Cancel()
	if rooms := snaps.next(t).Data.([]models.RoomSummary); len(rooms) != 0 {
		t.Fatalf("initial = %v", rooms)
	}
	id, err := env.rooms.CreateRoom(env.ctx, "owner", "Lobby", false, "")
	if err != nil {
		t.Fatal(err)
	}
	rooms := snaps.next(t).Data.([]models.RoomSummary)
	if len(rooms) != 1 || rooms[0].ID != id || rooms[0].Name != "Lobby" {
		t.Fatalf("after create = %+v", rooms)
	}
}
