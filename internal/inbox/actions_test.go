package inbox

import (
	"context"
	"errors"
	"reflect"
	"regexp"
	"testing"
	"time"

	"github.com/matheus3301/chatsync/internal/notify"
	"github.com/matheus3301/chatsync/internal/provider"
	"github.com/matheus3301/chatsync/internal/provider/providertest"
)

func newActions(client *providertest.Client) *Actions {
	a := NewActions(providertest.Source{C: client}, nil)
	a.now = func() time.Time { return time.UnixMilli(1700000000000) }
	return a
}

func TestOpenExistingDirect(t *testing.T) {
	client := providertest.NewClient("alice")
	client.AddConversation(providertest.NewConversation("G1", "group-1", "Trip").WithParticipants("alice", "bob", "carol"))
	client.AddConversation(providertest.NewConversation("C0", "chat-old", "bob").
		WithParticipants("alice", "bob").
		WithStatus(provider.StatusNotParticipating))
	broken := providertest.NewConversation("CX", "chat-x", "x")
	broken.ParticipantsErr = errors.New("boom")
	client.AddConversation(broken)
	client.AddConversation(providertest.NewConversation("C1", "chat-alice-bob-1", "bob").WithParticipants("bob", "alice"))

	params, err := newActions(client).OpenOrCreateDirect(context.Background(), "bob")
	if err != nil {
		t.Fatal(err)
	}
	want := notify.ChatParams{ConversationSID: "C1", RecipientUsername: "bob", RecipientAvatar: notify.AvatarURL("bob")}
	if !reflect.DeepEqual(params, want) {
		t.Errorf("params = %+v, want %+v", params, want)
	}
	if client.Created() != 0 {
		t.Error("existing conversation should be reused")
	}
}

func TestCreateDirectWhenMissing(t *testing.T) {
	client := providertest.NewClient("carol")
	params, err := newActions(client).OpenOrCreateDirect(context.Background(), "bob")
	if err != nil {
		t.Fatal(err)
	}
	if client.Created() != 1 {
		t.Fatalf("created = %d, want 1", client.Created())
	}
	conv, err := client.ConversationBySID(context.Background(), params.ConversationSID)
	if err != nil {
		t.Fatal(err)
	}
	if conv.UniqueName() != "chat-bob-carol-1700000000000" {
		t.Errorf("unique name = %q", conv.UniqueName())
	}
	if conv.FriendlyName() != "bob" {
		t.Errorf("friendly name = %q", conv.FriendlyName())
	}
	ids, _ := conv.Participants(context.Background())
	if !reflect.DeepEqual(ids, []string{"bob", "carol"}) {
		t.Errorf("participants = %v, want [bob carol] (peer added first)", ids)
	}
}

func TestOpenDirectRejectsSelf(t *testing.T) {
	client := providertest.NewClient("alice")
	if _, err := newActions(client).OpenOrCreateDirect(context.Background(), "alice"); !errors.Is(err, ErrInvalidUser) {
		t.Errorf("err = %v, want ErrInvalidUser", err)
	}
}

func TestCreateGroupValidation(t *testing.T) {
	a := newActions(providertest.NewClient("alice"))
	for _, tc := range []struct {
		name    string
		members []string
	}{
		{"  ", []string{"bob", "carol"}},
		{"Trip", []string{"bob"}},
		{"Trip", []string{"bob", " bob "}},
	} {
		if _, err := a.CreateGroup(context.Background(), tc.name, tc.members); !errors.Is(err, ErrInvalidGroup) {
			t.Errorf("CreateGroup(%q, %v) err = %v, want ErrInvalidGroup", tc.name, tc.members, err)
		}
	}
}

func TestCreateGroupSkipsFailedMembers(t *testing.T) {
	client := providertest.NewClient("alice")
	client.OnCreate = func(c *providertest.Conversation) {
		c.AddErr = map[string]error{"dave": errors.New("unknown identity")}
	}
	a := newActions(client)

	params, err := a.CreateGroup(context.Background(), " Trip ", []string{"bob", "dave", "carol"})
	if err != nil {
		t.Fatal(err)
	}
	if !params.IsGroup || params.GroupName != "Trip" {
		t.Errorf("params = %+v", params)
	}
	if !reflect.DeepEqual(params.Participants, []string{"bob", "dave", "carol", "alice"}) {
		t.Errorf("participants = %v", params.Participants)
	}
	conv, err := client.ConversationBySID(context.Background(), params.ConversationSID)
	if err != nil {
		t.Fatal(err)
	}
	roster, _ := conv.Participants(context.Background())
	if !reflect.DeepEqual(roster, []string{"bob", "carol", "alice"}) {
		t.Errorf("roster = %v, want dave skipped", roster)
	}
	if !regexp.MustCompile(`^group-1700000000000-[0-9a-z]{9}$`).MatchString(conv.UniqueName()) {
		t.Errorf("unique name = %q", conv.UniqueName())
	}
	if conv.Status() != provider.StatusJoined {
		t.Errorf("status = %q, want joined", conv.Status())
	}
}

func TestParamsFor(t *testing.T) {
	group := Conversation{SID: "G1", IsGroup: true, FriendlyName: "Trip", Participants: []string{"alice", "bob"}}
	if got := ParamsFor(group, "alice"); !got.IsGroup || got.GroupName != "Trip" || len(got.Participants) != 2 {
		t.Errorf("group params = %+v", got)
	}
	direct := Conversation{SID: "C1", Participants: []string{"alice", "bob"}}
	got := ParamsFor(direct, "alice")
	if got.IsGroup || got.RecipientUsername != "bob" || got.RecipientAvatar != notify.AvatarURL("bob") {
		t.Errorf("direct params = %+v", got)
	}
}
