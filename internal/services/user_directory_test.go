package services

import (
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	"mobilechat/internal/apperrors"
)

func TestCreateUserIndexesEmailAndNickname(t *testing.T) {
	env := newTestEnv(t)
	user, err := env.dir.CreateUser(env.ctx, "u1", " Alice@Example.com ", "alice1", "")
	if err != nil {
		t.Fatalf("CreateUser() error = %v", err)
	}
	if user.Email != "alice@example.com" {
		t.Errorf("email = %q, want normalized", user.Email)
	}

	id, found, err := env.dir.ResolveByEmail(env.ctx, "ALICE@example.com")
	if err != nil || !found || id != "u1" {
		t.Errorf("ResolveByEmail() = %q, %v, %v", id, found, err)
	}
	id, found, err = env.dir.ResolveByNickname(env.ctx, "alice1")
	if err != nil || !found || id != "u1" {
		t.Errorf("ResolveByNickname() = %q, %v, %v", id, found, err)
	}
	// 昵称匹配区分大小写
	if _, found, err := env.dir.ResolveByNickname(env.ctx, "Alice1"); err != nil || found {
		t.Errorf("ResolveByNickname(Alice1) found = %v, err = %v", found, err)
	}
	if _, found, err := env.dir.ResolveByEmail(env.ctx, "nobody@example.com"); err != nil || found {
		t.Errorf("ResolveByEmail(unknown) found = %v, err = %v", found, err)
	}

	got, err := env.dir.GetUser(env.ctx, "u1")
	if err != nil {
		t.Fatalf("GetUser() error = %v", err)
	}
	if len(got.Friends)+len(got.InvitedFriends)+len(got.FriendRequests) != 0 {
		t.Errorf("new user has relations: %+v", got)
	}
}

func TestCreateUserRejectsDuplicates(t *testing.T) {
	env := newTestEnv(t)
	env.mustUser(t, "u1", "a@example.com", "taken")

	tests := []struct {
		name  string
		id    string
		email string
		nick  string
		want  error
	}{
		{"same id", "u1", "b@example.com", "", ErrUserExists},
		{"same email", "u2", "A@example.com", "", ErrEmailTaken},
		{"same nickname", "u3", "c@example.com", "taken", ErrNicknameTaken},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.dir.CreateUser(env.ctx, tt.id, tt.email, tt.nick, "")
			if !errors.Is(err, tt.want) {
				t.Fatalf("CreateUser() error = %v, want %v", err, tt.want)
			}
			if !errors.Is(err, apperrors.ErrAlreadyExists) {
				t.Fatalf("error kind = %v, want AlreadyExists", apperrors.Kind(err))
			}
		})
	}

	// the failed nickname insert rolled the whole user back
	if _, err := env.dir.GetUser(env.ctx, "u3"); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("GetUser(u3) error = %v, want not found", err)
	}
	if _, found, _ := env.dir.ResolveByEmail(env.ctx, "c@example.com"); found {
		t.Errorf("email of rolled back user is still indexed")
	}
}

func TestValidateNickname(t *testing.T) {
	tests := []struct {
		name string
		ok   bool
	}{
		{"abc", true},
		{"李小龙", true},
		{strings.Repeat("x", 20), true},
		{"ab", false},
		{strings.Repeat("x", 21), false},
		{"a.bc", false},
		{"ab#c", false},
		{"a[b]c", false},
		{"ab$c", false},
		{"a/bc", false},
	}
	for _, tt := range tests {
		err := ValidateNickname(tt.name)
		if (err == nil) != tt.ok {
			t.Errorf("ValidateNickname(%q) error = %v, want ok = %v", tt.name, err, tt.ok)
		}
		if err != nil && !errors.Is(err, apperrors.ErrInvalidArgument) {
			t.Errorf("ValidateNickname(%q) kind = %v", tt.name, apperrors.Kind(err))
		}
	}
}

func ptr(s string) *string { return &s }

func TestUpdateProfileSwapsNickname(t *testing.T) {
	env := newTestEnv(t)
	env.mustUser(t, "u1", "a@example.com", "alpha1")
	env.mustUser(t, "u2", "b@example.com", "gamma3")

	user, err := env.dir.UpdateProfile(env.ctx, "u1", ProfileUpdate{Name: ptr("beta22"), Bio: ptr("<b>hello</b>")})
	if err != nil {
		t.Fatalf("UpdateProfile() error = %v", err)
	}
	if user.Name != "beta22" || user.Bio != "hello" {
		t.Errorf("profile = %q / %q", user.Name, user.Bio)
	}
	if _, found, _ := env.dir.ResolveByNickname(env.ctx, "alpha1"); found {
		t.Errorf("old nickname still indexed")
	}
	if id, found, _ := env.dir.ResolveByNickname(env.ctx, "beta22"); !found || id != "u1" {
		t.Errorf("new nickname resolves to %q, %v", id, found)
	}

	if _, err := env.dir.UpdateProfile(env.ctx, "u2", ProfileUpdate{Name: ptr("beta22")}); !errors.Is(err, ErrNicknameTaken) {
		t.Fatalf("taking a used nickname: error = %v", err)
	}
	if id, _, _ := env.dir.ResolveByNickname(env.ctx, "gamma3"); id != "u2" {
		t.Errorf("failed rename dropped the old nickname")
	}

	// 空白字段保持不变
	user, err = env.dir.UpdateProfile(env.ctx, "u1", ProfileUpdate{Name: ptr("  "), Bio: ptr("")})
	if err != nil {
		t.Fatalf("UpdateProfile(blank) error = %v", err)
	}
	if user.Name != "beta22" || user.Bio != "hello" {
		t.Errorf("blank update changed profile: %q / %q", user.Name, user.Bio)
	}

	if _, err := env.dir.UpdateProfile(env.ctx, "missing", ProfileUpdate{Bio: ptr("x")}); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("UpdateProfile(missing) error = %v", err)
	}
}

func TestConcurrentRenamesLastWriteWins(t *testing.T) {
	env := newTestEnv(t)
	env.mustUser(t, "u1", "a@example.com", "start1")

	names := []string{"phone1", "tablet1", "laptop1", "watch1"}
	var wg sync.WaitGroup
	for _, n := range names {
		wg.Add(1)
		go func(n string) {
			defer wg.Done()
			if _, err := env.dir.UpdateProfile(env.ctx, "u1", ProfileUpdate{Name: ptr(n)}); err != nil {
				t.Errorf("UpdateProfile(%s) error = %v", n, err)
			}
		}(n)
	}
	wg.Wait()

	user, err := env.dir.GetUser(env.ctx, "u1")
	if err != nil {
		t.Fatalf("GetUser() error = %v", err)
	}
	for _, n := range append(names, "start1") {
		id, found, _ := env.dir.ResolveByNickname(env.ctx, n)
		if n == user.Name {
			if !found || id != "u1" {
				t.Errorf("final nickname %q not indexed", n)
			}
		} else if found {
			t.Errorf("stale nickname %q still indexed", n)
		}
	}
}

func TestDeleteUserPurgesGraph(t *testing.T) {
	env := newTestEnv(t)
	env.mustUser(t, "u1", "a@example.com", "alpha1")
	env.mustUser(t, "u2", "b@example.com", "")
	env.mustUser(t, "u3", "c@example.com", "")
	env.mustFriends(t, "u1", "u2")
	if err := env.graph.SendRequest(env.ctx, "u1", "u3"); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 2; i++ {
		if err := env.dir.DeleteUser(env.ctx, "u1"); err != nil {
			t.Fatalf("DeleteUser() #%d error = %v", i+1, err)
		}
	}
	if _, err := env.dir.GetUser(env.ctx, "u1"); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("GetUser(u1) error = %v", err)
	}
	if _, found, _ := env.dir.ResolveByEmail(env.ctx, "a@example.com"); found {
		t.Errorf("email still indexed")
	}
	if _, found, _ := env.dir.ResolveByNickname(env.ctx, "alpha1"); found {
		t.Errorf("nickname still indexed")
	}
	if ids, _ := env.graph.ListFriends(env.ctx, "u2"); len(ids) != 0 {
		t.Errorf("u2 friends = %v", ids)
	}
	if ids, _ := env.graph.ListIncomingRequests(env.ctx, "u3"); len(ids) != 0 {
		t.Errorf("u3 incoming = %v", ids)
	}
	if got := env.producer.onTopic("purge"); len(got) != 0 {
		t.Errorf("purge queued although it succeeded: %v", got)
	}
}

func TestDeleteUserQueuesFailedPurge(t *testing.T) {
	env := newTestEnv(t)
	env.mustUser(t, "u1", "a@example.com", "")
	env.store.SetFault(func(op string) error {
		if op == "relations.remove_all" {
			return apperrors.New(apperrors.ErrUnavailable, "backend down")
		}
		return nil
	})

	if err := env.dir.DeleteUser(env.ctx, "u1"); err != nil {
		t.Fatalf("DeleteUser() error = %v", err)
	}
	queued := env.producer.onTopic("purge")
	if len(queued) != 1 || queued[0].Key != "u1" {
		t.Fatalf("purge queue = %+v", queued)
	}
	var ev PurgeEvent
	if err := json.Unmarshal(queued[0].Payload, &ev); err != nil || ev.UserID != "u1" {
		t.Fatalf("purge event = %+v, %v", ev, err)
	}
	env.store.SetFault(nil)
	if _, err := env.dir.GetUser(env.ctx, "u1"); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("profile survived: %v", err)
	}
}

func TestDisplayNameFallsBackToEmail(t *testing.T) {
	env := newTestEnv(t)
	env.mustUser(t, "u1", "a@example.com", "")
	env.mustUser(t, "u2", "b@example.com", "bobby")

	if name, _ := env.dir.DisplayName(env.ctx, "u1"); name != "a@example.com" {
		t.Errorf("DisplayName(u1) = %q", name)
	}
	sums, err := env.dir.Summaries(env.ctx, []string{"u2", "ghost", "u1"})
	if err != nil {
		t.Fatalf("Summaries() error = %v", err)
	}
	if len(sums) != 2 || sums[0].ID != "u1" || sums[1].Name != "bobby" {
		t.Errorf("Summaries() = %+v", sums)
	}
}
