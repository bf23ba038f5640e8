package main

import (
	"context"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/PaulBabatuyi/chatsync/internal/data"
	"github.com/PaulBabatuyi/chatsync/internal/db"
)

func TestMongoChatFlow(t *testing.T) {
	uri := os.Getenv("MONGODB_URI")
	if uri == "" {
		t.Skip("MONGODB_URI not set; skipping integration test")
	}

	ctx := context.Background()
	dbClient, err := db.New(ctx, uri, "chat_db_it")
	if err != nil {
		t.Fatalf("db.New failed: %v", err)
	}
	defer func() {
		_ = dbClient.UsersCollection().Drop(context.Background())
		_ = dbClient.ChatsCollection().Drop(context.Background())
		_ = dbClient.MessagesCollection().Drop(context.Background())
		_ = dbClient.Close(context.Background())
	}()
	if err := dbClient.CreateIndexes(ctx); err != nil {
		t.Fatalf("CreateIndexes failed: %v", err)
	}

	e := newTestEnv(t, &stores{
		users: data.NewUsersStore(dbClient.UsersCollection()),
		chats: data.NewChatsStore(dbClient.ChatsCollection()),
		msgs:  data.NewMessagesStore(dbClient.MessagesCollection()),
	}, 100)

	suffix := time.Now().UTC().Format("20060102-150405")
	aliceEmail, bobEmail := "alice-"+suffix+"@example.com", "bob-"+suffix+"@example.com"
	alice := e.signup("alice", aliceEmail)
	bob := e.signup("bob", bobEmail)

	chatID := e.startChat(alice, bobEmail)
	if again := e.startChat(bob, aliceEmail); again != chatID {
		t.Fatalf("second start created %s, want %s", again, chatID)
	}

	first := e.send(alice, chatID, "text", "one")
	e.send(bob, chatID, "text", "two")

	if code, _ := e.call(http.MethodDelete, "/messages/"+first["id"].(string)+"?for=everyone", alice, nil); code != http.StatusOK {
		t.Fatalf("delete for everyone = %d", code)
	}
	hist := e.history(bob, chatID)
	if len(hist) != 2 || hist[0]["msgType"] != "deleted" || hist[1]["text"] != "two" {
		t.Fatalf("history = %v", hist)
	}

	if code, _ := e.call(http.MethodDelete, "/chats/"+chatID, bob, nil); code != http.StatusOK {
		t.Fatal("hide failed")
	}
	if n := len(e.history(bob, chatID)); n != 0 {
		t.Errorf("hidden chat history shows %d messages", n)
	}
	if n := len(e.history(alice, chatID)); n != 2 {
		t.Errorf("alice lost messages: %d", n)
	}
}
