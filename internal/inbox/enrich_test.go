package inbox

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/matheus3301/chatsync/internal/directory"
	"github.com/matheus3301/chatsync/internal/provider"
	"github.com/matheus3301/chatsync/internal/provider/providertest"
)

func TestEnrichment(t *testing.T) {
	client := providertest.NewClient("alice")
	direct := providertest.NewConversation("C1", "chat-alice-bob-1", "bob").
		WithParticipants("alice", "bob").
		WithCreated(t1).
		WithMessages(
			providertest.Msg("M0", 0, "bob", "old", t1),
			providertest.Msg("M1", 1, "bob", "latest", t2),
		)
	direct.Unread = 2
	group := providertest.NewConversation("G1", "group-1-abc", "Trip").
		WithParticipants("alice", "bob", "carol").
		WithCreated(t1).
		WithMessages(provider.Message{SID: "M2", Author: "carol", Type: provider.MessageMedia, DateCreated: t1})
	group.UnreadErr = errors.New("unread unavailable")
	client.AddConversation(direct)
	client.AddConversation(group)

	e := NewEnricher(providertest.Source{C: client}, 2, nil)
	convs, err := e.Conversations(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(convs) != 2 {
		t.Fatalf("got %d conversations, want 2", len(convs))
	}

	d, g := convs[0], convs[1]
	if d.SID != "C1" || d.IsGroup || d.DisplayName != "bob" || d.UnreadCount != 2 {
		t.Errorf("direct = %+v", d)
	}
	if d.LastMessage == nil || d.LastMessage.Body != "latest" {
		t.Errorf("direct last message = %+v", d.LastMessage)
	}
	if g.SID != "G1" || !g.IsGroup || g.DisplayName != "Trip" || g.UnreadCount != 0 {
		t.Errorf("group = %+v", g)
	}
	if g.LastMessage == nil || g.LastMessage.Body != MediaPreview {
		t.Errorf("group last message = %+v", g.LastMessage)
	}
}

func TestEnrichmentDegradesPerConversation(t *testing.T) {
	client := providertest.NewClient("alice")
	broken := providertest.NewConversation("G1", "group-1-abc", "Trip").WithParticipants("alice", "bob")
	broken.MessagesErr = errors.New("timeout")
	nameless := providertest.NewConversation("C9", "chat-x", "")
	nameless.ParticipantsErr = errors.New("timeout")
	healthy := providertest.NewConversation("C1", "chat-alice-bob-1", "bob").WithParticipants("alice", "bob")
	client.AddConversation(broken)
	client.AddConversation(nameless)
	client.AddConversation(healthy)

	convs, err := NewEnricher(providertest.Source{C: client}, 0, nil).Conversations(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(convs) != 3 {
		t.Fatalf("got %d conversations, want 3", len(convs))
	}
	bySID := make(map[string]Conversation)
	for _, c := range convs {
		bySID[c.SID] = c
	}

	want := Conversation{SID: "G1", UniqueName: "group-1-abc", DisplayName: "Trip", FriendlyName: "Trip", Participants: []string{}, DateCreated: bySID["G1"].DateCreated}
	if !reflect.DeepEqual(bySID["G1"], want) {
		t.Errorf("degraded = %+v, want %+v", bySID["G1"], want)
	}
	if bySID["C9"].DisplayName != "Unknown" || bySID["C9"].IsGroup {
		t.Errorf("nameless degraded = %+v", bySID["C9"])
	}
	if bySID["C1"].DisplayName != "bob" {
		t.Errorf("healthy = %+v", bySID["C1"])
	}
}

type stubUsers struct {
	users []directory.User
	err   error
}

func (s stubUsers) Users(context.Context) ([]directory.User, error) { return s.users, s.err }

func TestLoaderPartialFailure(t *testing.T) {
	client := providertest.NewClient("alice")
	client.AddConversation(providertest.NewConversation("C1", "chat-alice-bob-1", "bob").WithParticipants("alice", "bob"))
	source := providertest.Source{C: client}
	enricher := NewEnricher(source, 0, nil)

	dirDown := errors.New("directory down")
	snap, err := NewLoader(source, stubUsers{err: dirDown}, enricher, nil).Load(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !errors.Is(snap.UsersErr, dirDown) || snap.ConversationsErr != nil {
		t.Errorf("errors = %v / %v", snap.UsersErr, snap.ConversationsErr)
	}
	if len(snap.Entries) != 1 || snap.Entries[0].Kind != KindConversation {
		t.Errorf("entries = %v", keys(snap.Entries))
	}

	client.ListErr = errors.New("provider down")
	snap, err = NewLoader(source, stubUsers{users: []directory.User{{UserName: "bob"}}}, enricher, nil).Load(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if snap.ConversationsErr == nil {
		t.Error("conversation error not recorded")
	}
	if got := keys(snap.Entries); !reflect.DeepEqual(got, []string{"user-bob"}) {
		t.Errorf("entries = %v, want [user-bob]", got)
	}
	if snap.Self != "alice" {
		t.Errorf("self = %q", snap.Self)
	}
}

func TestLoaderRequiresClient(t *testing.T) {
	notSignedIn := errors.New("not signed in")
	source := providertest.Source{Err: notSignedIn}
	_, err := NewLoader(source, stubUsers{}, NewEnricher(source, 0, nil), nil).Load(context.Background())
	if !errors.Is(err, notSignedIn) {
		t.Errorf("err = %v, want %v", err, notSignedIn)
	}
}
