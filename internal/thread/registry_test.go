package thread

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/matheus3301/chatsync/internal/provider/providertest"
)

func TestRegistryReusesAndReplaces(t *testing.T) {
	client := providertest.NewClient("alice")
	c1 := client.AddConversation(providertest.NewConversation("CH1", "chat-a-b-1", "bob"))
	client.AddConversation(providertest.NewConversation("CH2", "group-1-x", "Trip"))
	reg := NewRegistry(providertest.Source{C: client}, 10, nil)
	defer reg.CloseAll()
	ctx := context.Background()

	th1, err := reg.Open(ctx, "CH1", false)
	if err != nil {
		t.Fatal(err)
	}
	again, err := reg.Open(ctx, "CH1", false)
	if err != nil {
		t.Fatal(err)
	}
	if again != th1 {
		t.Error("re-opening the same SID should return the live thread")
	}
	if c1.Subscribers() != 1 {
		t.Errorf("subscribers = %d, want 1", c1.Subscribers())
	}

	th2, err := reg.Open(ctx, "CH2", true)
	if err != nil {
		t.Fatal(err)
	}
	if th1.State() != Closed {
		t.Errorf("previous thread state = %s, want CLOSED", th1.State())
	}
	if c1.Subscribers() != 0 {
		t.Error("previous thread still subscribed")
	}
	if got, ok := reg.Get("CH2"); !ok || got != th2 {
		t.Error("Get(CH2) should return the active thread")
	}
	if _, ok := reg.Get("CH1"); ok {
		t.Error("Get(CH1) should miss after replacement")
	}

	if !reg.Close("CH2") {
		t.Error("Close(CH2) = false")
	}
	if reg.Close("CH2") {
		t.Error("second Close(CH2) = true")
	}
}

func TestRegistryRetriesFailedBootstrap(t *testing.T) {
	client := providertest.NewClient("alice")
	conv := client.AddConversation(providertest.NewConversation("CH1", "chat-a-b-1", "bob"))
	conv.MessagesErr = errors.New("offline")
	reg := NewRegistry(providertest.Source{C: client}, 10, nil)
	defer reg.CloseAll()

	first, err := reg.Open(context.Background(), "CH1", false)
	if !errors.Is(err, ErrSetup) {
		t.Fatalf("err = %v, want ErrSetup", err)
	}

	conv.MessagesErr = nil
	second, err := reg.Open(context.Background(), "CH1", false)
	if err != nil {
		t.Fatal(err)
	}
	if first != second || second.State() != Live {
		t.Error("retry should bootstrap the same registered thread")
	}
}

func TestRegistryNotSignedIn(t *testing.T) {
	errSignedOut := errors.New("signed out")
	reg := NewRegistry(providertest.Source{Err: errSignedOut}, 10, nil)
	_, err := reg.Open(context.Background(), "CH1", false)
	if !errors.Is(err, errSignedOut) || !errors.Is(err, ErrSetup) {
		t.Fatalf("err = %v", err)
	}
}

func TestConcurrentOpenWaitsForBootstrap(t *testing.T) {
	client := providertest.NewClient("alice")
	client.Block = make(chan struct{})
	conv := client.AddConversation(providertest.NewConversation("CH1", "chat-a-b-1", "bob"))
	reg := NewRegistry(providertest.Source{C: client}, 10, nil)
	defer reg.CloseAll()
	ctx := context.Background()

	first := make(chan error, 1)
	go func() {
		_, err := reg.Open(ctx, "CH1", false)
		first <- err
	}()

	deadline := time.Now().Add(2 * time.Second)
	for {
		if th, ok := reg.Get("CH1"); ok && th.State() == Bootstrapping {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("first open never started bootstrapping")
		}
		time.Sleep(5 * time.Millisecond)
	}

	second := make(chan error, 1)
	var th *Thread
	go func() {
		var err error
		th, err = reg.Open(ctx, "CH1", false)
		second <- err
	}()

	select {
	case err := <-second:
		t.Fatalf("second open returned %v before bootstrap finished", err)
	case <-time.After(50 * time.Millisecond):
	}

	close(client.Block)
	for _, ch := range []chan error{first, second} {
		select {
		case err := <-ch:
			if err != nil {
				t.Fatal(err)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("open did not return")
		}
	}
	if th.State() != Live {
		t.Errorf("state = %s, want LIVE", th.State())
	}
	if conv.Subscribers() != 1 {
		t.Errorf("subscribers = %d, want 1", conv.Subscribers())
	}
}
