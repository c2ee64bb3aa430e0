package thread

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/matheus3301/chatsync/internal/provider"
	"github.com/matheus3301/chatsync/internal/provider/providertest"
)

var t0 = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

func setup(conv *providertest.Conversation, isGroup bool) (*Thread, *providertest.Client) {
	client := providertest.NewClient("alice")
	client.AddConversation(conv)
	th := New(providertest.Source{C: client}, Options{SID: conv.SID(), IsGroup: isGroup}, nil)
	return th, client
}

func waitUntil(t *testing.T, th *Thread, cond func(Snapshot) bool) Snapshot {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		snap := th.Snapshot()
		if cond(snap) {
			return snap
		}
		select {
		case <-th.Updates():
		case <-time.After(10 * time.Millisecond):
		case <-deadline:
			t.Fatalf("condition not met; last snapshot %+v", snap)
		}
	}
}

func sids(msgs []provider.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.SID
	}
	return out
}

func TestMessagesAppendInArrivalOrder(t *testing.T) {
	conv := providertest.NewConversation("CH1", "chat-alice-bob-1", "bob").
		WithParticipants("alice", "bob").
		WithMessages(providertest.Msg("M0", 0, "bob", "hi", t0))
	th, _ := setup(conv, false)
	defer th.Close()

	if err := th.Open(context.Background()); err != nil {
		t.Fatal(err)
	}
	if th.State() != Live {
		t.Fatalf("state = %s, want LIVE", th.State())
	}

	want := []string{"M0"}
	for i := 1; i <= 20; i++ {
		sid := "M" + string(rune('A'+i))
		conv.Emit(provider.MessageAdded{Message: providertest.Msg(sid, int64(i), "bob", sid, t0)})
		want = append(want, sid)
	}

	snap := waitUntil(t, th, func(s Snapshot) bool { return len(s.Messages) == len(want) })
	if got := sids(snap.Messages); !slices.Equal(got, want) {
		t.Errorf("messages = %v, want %v", got, want)
	}
}

func TestGroupEventsScenario(t *testing.T) {
	conv := providertest.NewConversation("CH1", "group-1-abc", "Trip").
		WithParticipants("alice", "dave").
		WithMessages(providertest.Msg("M0", 0, "dave", "hello", t0))
	th, _ := setup(conv, true)
	defer th.Close()

	if err := th.Open(context.Background()); err != nil {
		t.Fatal(err)
	}

	conv.Emit(provider.MessageAdded{Message: providertest.Msg("M1", 1, "alice", "one", t0)})
	conv.Emit(provider.ParticipantLeft{ConversationSID: "CH1", Identity: "dave"})
	conv.Emit(provider.MessageAdded{Message: providertest.Msg("M2", 2, "alice", "two", t0)})

	snap := waitUntil(t, th, func(s Snapshot) bool { return len(s.Messages) == 3 })
	if got := sids(snap.Messages); !slices.Equal(got, []string{"M0", "M1", "M2"}) {
		t.Errorf("messages = %v, want [M0 M1 M2]", got)
	}
	if !slices.Equal(snap.Participants, []string{"alice"}) {
		t.Errorf("participants = %v, want [alice]", snap.Participants)
	}
	if snap.Name != "Trip" {
		t.Errorf("name = %q, want Trip", snap.Name)
	}
}

func TestParticipantEventsAreIdempotent(t *testing.T) {
	conv := providertest.NewConversation("CH1", "group-1-abc", "Trip").WithParticipants("alice")
	th, _ := setup(conv, true)
	defer th.Close()
	if err := th.Open(context.Background()); err != nil {
		t.Fatal(err)
	}

	conv.Emit(provider.ParticipantJoined{Identity: "bob"})
	conv.Emit(provider.ParticipantJoined{Identity: "bob"})
	conv.Emit(provider.ParticipantLeft{Identity: "zed"})
	conv.Emit(provider.ConversationUpdated{FriendlyName: "Road trip"})

	snap := waitUntil(t, th, func(s Snapshot) bool { return s.Name == "Road trip" })
	if !slices.Equal(snap.Participants, []string{"alice", "bob"}) {
		t.Errorf("participants = %v, want [alice bob]", snap.Participants)
	}
}

func TestDirectThreadIgnoresRosterEvents(t *testing.T) {
	conv := providertest.NewConversation("CH1", "chat-a-b-1", "bob").WithParticipants("alice", "bob")
	th, _ := setup(conv, false)
	defer th.Close()
	if err := th.Open(context.Background()); err != nil {
		t.Fatal(err)
	}

	conv.Emit(provider.ParticipantJoined{Identity: "carol"})
	conv.Emit(provider.ConversationUpdated{FriendlyName: "x"})
	conv.Emit(provider.MessageAdded{Message: providertest.Msg("M1", 0, "bob", "hi", t0)})

	snap := waitUntil(t, th, func(s Snapshot) bool { return len(s.Messages) == 1 })
	if len(snap.Participants) != 0 {
		t.Errorf("direct thread participants = %v, want none", snap.Participants)
	}
	if snap.Name != "bob" {
		t.Errorf("name = %q, want bob", snap.Name)
	}
}

func TestSetupFailureIsRetryable(t *testing.T) {
	conv := providertest.NewConversation("CH1", "chat-a-b-1", "bob")
	conv.MessagesErr = errors.New("network down")
	th, _ := setup(conv, false)
	defer th.Close()

	err := th.Open(context.Background())
	if !errors.Is(err, ErrSetup) {
		t.Fatalf("err = %v, want ErrSetup", err)
	}
	if th.State() != Idle {
		t.Errorf("state after failure = %s, want IDLE", th.State())
	}
	if conv.Subscribers() != 0 {
		t.Error("failed bootstrap must not subscribe")
	}

	conv.MessagesErr = nil
	if err := th.Open(context.Background()); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if th.State() != Live {
		t.Errorf("state after retry = %s, want LIVE", th.State())
	}
}

func TestMissingConversationIsSetupFailure(t *testing.T) {
	client := providertest.NewClient("alice")
	th := New(providertest.Source{C: client}, Options{SID: "CHX"}, nil)
	if err := th.Open(context.Background()); !errors.Is(err, provider.ErrNotFound) || !errors.Is(err, ErrSetup) {
		t.Fatalf("err = %v, want ErrSetup wrapping ErrNotFound", err)
	}
}

func TestMarkReadFailureDoesNotBlock(t *testing.T) {
	conv := providertest.NewConversation("CH1", "chat-a-b-1", "bob").WithParticipants("alice", "bob")
	conv.ReadErr = errors.New("read failed")
	conv.Echo = true
	th, _ := setup(conv, false)
	defer th.Close()

	if err := th.Open(context.Background()); err != nil {
		t.Fatalf("open should succeed despite read failure: %v", err)
	}
	if err := th.SendText(context.Background(), "hello"); err != nil {
		t.Fatalf("send should succeed despite read failure: %v", err)
	}
	if conv.Reads() != 2 {
		t.Errorf("read marks = %d, want 2 (open + send)", conv.Reads())
	}
}

func TestSendIsNotOptimistic(t *testing.T) {
	conv := providertest.NewConversation("CH1", "chat-a-b-1", "bob").WithParticipants("alice", "bob")
	th, _ := setup(conv, false)
	defer th.Close()
	if err := th.Open(context.Background()); err != nil {
		t.Fatal(err)
	}

	if err := th.SendText(context.Background(), "hello"); err != nil {
		t.Fatal(err)
	}
	if n := len(th.Snapshot().Messages); n != 0 {
		t.Fatalf("messages before echo = %d, want 0", n)
	}

	conv.Emit(provider.MessageAdded{Message: providertest.Msg("M1", 0, "alice", "hello", t0)})
	waitUntil(t, th, func(s Snapshot) bool { return len(s.Messages) == 1 })
}

func TestSendValidationAndFailure(t *testing.T) {
	conv := providertest.NewConversation("CH1", "chat-a-b-1", "bob")
	th, _ := setup(conv, false)
	defer th.Close()

	if err := th.SendText(context.Background(), "hi"); !errors.Is(err, ErrNotLive) {
		t.Errorf("send before open err = %v, want ErrNotLive", err)
	}
	if err := th.Open(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := th.SendText(context.Background(), "   "); !errors.Is(err, ErrEmptyMessage) {
		t.Errorf("blank send err = %v, want ErrEmptyMessage", err)
	}

	conv.ActionErr = errors.New("rate limited")
	if err := th.SendText(context.Background(), "hi"); !errors.Is(err, ErrAction) {
		t.Errorf("failed send err = %v, want ErrAction", err)
	}
	if th.State() != Live {
		t.Errorf("state after failed send = %s, want LIVE", th.State())
	}
}

func TestSendMediaSniffsContentType(t *testing.T) {
	conv := providertest.NewConversation("CH1", "chat-a-b-1", "bob")
	conv.Echo = true
	th, _ := setup(conv, false)
	defer th.Close()
	if err := th.Open(context.Background()); err != nil {
		t.Fatal(err)
	}

	png := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x02\x00\x00\x00")
	if err := th.SendMedia(context.Background(), provider.MediaUpload{Data: png}); err != nil {
		t.Fatal(err)
	}
	snap := waitUntil(t, th, func(s Snapshot) bool { return len(s.Messages) == 1 })
	ref := snap.Messages[0].Media
	if ref == nil {
		t.Fatal("echoed message has no media")
	}
	if ref.ContentType != "image/png" || ref.Filename != "attachment.png" {
		t.Errorf("media = %+v, want image/png attachment.png", ref)
	}
}

func TestRenameValidatesAndUpdatesLocally(t *testing.T) {
	conv := providertest.NewConversation("CH1", "group-1-abc", "Trip")
	th, _ := setup(conv, true)
	defer th.Close()
	if err := th.Open(context.Background()); err != nil {
		t.Fatal(err)
	}

	if err := th.Rename(context.Background(), "  "); !errors.Is(err, ErrEmptyName) {
		t.Errorf("blank rename err = %v, want ErrEmptyName", err)
	}
	if err := th.Rename(context.Background(), "  Road trip "); err != nil {
		t.Fatal(err)
	}
	if got := th.Snapshot().Name; got != "Road trip" {
		t.Errorf("name = %q, want Road trip", got)
	}
}

func TestAddParticipantsStopsAtFirstFailure(t *testing.T) {
	conv := providertest.NewConversation("CH1", "group-1-abc", "Trip").WithParticipants("alice")
	conv.AddErr = map[string]error{"bob": errors.New("no such user")}
	th, _ := setup(conv, true)
	defer th.Close()
	if err := th.Open(context.Background()); err != nil {
		t.Fatal(err)
	}

	err := th.AddParticipants(context.Background(), "carol", "bob", "dave")
	if !errors.Is(err, ErrAction) {
		t.Fatalf("err = %v, want ErrAction", err)
	}
	roster, _ := conv.Participants(context.Background())
	if !slices.Equal(roster, []string{"alice", "carol"}) {
		t.Errorf("roster = %v, want [alice carol]", roster)
	}
}

func TestCloseStopsMutation(t *testing.T) {
	conv := providertest.NewConversation("CH1", "chat-a-b-1", "bob")
	th, _ := setup(conv, false)
	if err := th.Open(context.Background()); err != nil {
		t.Fatal(err)
	}

	th.Close()
	th.Close()
	if conv.Subscribers() != 0 {
		t.Errorf("subscribers after close = %d, want 0", conv.Subscribers())
	}
	conv.Emit(provider.MessageAdded{Message: providertest.Msg("M1", 0, "bob", "late", t0)})
	if n := len(th.Snapshot().Messages); n != 0 {
		t.Errorf("messages after close = %d, want 0", n)
	}
	if err := th.Open(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("open after close err = %v, want ErrClosed", err)
	}
	if err := th.SendText(context.Background(), "hi"); !errors.Is(err, ErrClosed) {
		t.Errorf("send after close err = %v, want ErrClosed", err)
	}
}

func TestLeaveClosesThread(t *testing.T) {
	conv := providertest.NewConversation("CH1", "group-1-abc", "Trip")
	th, _ := setup(conv, true)
	if err := th.Open(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := th.Leave(context.Background()); err != nil {
		t.Fatal(err)
	}
	if th.State() != Closed {
		t.Errorf("state = %s, want CLOSED", th.State())
	}
	if conv.Status() != provider.StatusNotParticipating {
		t.Errorf("status = %q, want notParticipating", conv.Status())
	}
}

type undeliverable struct{}

func (undeliverable) Kind() provider.EventKind { return "undeliverable" }

func TestFailingEventHandlerKeepsLoopRunning(t *testing.T) {
	applyHook = func(evt provider.Event) {
		if _, ok := evt.(undeliverable); ok {
			panic("cannot apply")
		}
	}
	t.Cleanup(func() { applyHook = nil })

	conv := providertest.NewConversation("CH1", "chat-alice-bob-1", "bob").
		WithParticipants("alice", "bob")
	th, _ := setup(conv, false)
	defer th.Close()
	if err := th.Open(context.Background()); err != nil {
		t.Fatal(err)
	}

	conv.Emit(provider.MessageAdded{Message: providertest.Msg("M0", 0, "bob", "before", t0)})
	conv.Emit(undeliverable{})
	conv.Emit(provider.MessageAdded{Message: providertest.Msg("M1", 1, "bob", "after", t0)})

	snap := waitUntil(t, th, func(s Snapshot) bool { return len(s.Messages) == 2 })
	if got := sids(snap.Messages); !slices.Equal(got, []string{"M0", "M1"}) {
		t.Errorf("messages = %v, want [M0 M1]", got)
	}
	if th.State() != Live {
		t.Errorf("state = %s, want LIVE", th.State())
	}
	if conv.Subscribers() != 1 {
		t.Errorf("subscribers = %d, want 1", conv.Subscribers())
	}
}

func TestEmptyFriendlyNameIsIgnored(t *testing.T) {
	conv := providertest.NewConversation("CH1", "group-1-abc", "Trip").
		WithParticipants("alice", "dave")
	th, _ := setup(conv, true)
	defer th.Close()
	if err := th.Open(context.Background()); err != nil {
		t.Fatal(err)
	}

	conv.Emit(provider.ConversationUpdated{ConversationSID: "CH1", FriendlyName: ""})
	conv.Emit(provider.MessageAdded{Message: providertest.Msg("M0", 0, "dave", "hi", t0)})

	snap := waitUntil(t, th, func(s Snapshot) bool { return len(s.Messages) == 1 })
	if snap.Name != "Trip" {
		t.Errorf("name = %q, want Trip", snap.Name)
	}
}
