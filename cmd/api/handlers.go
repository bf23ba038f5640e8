package main

import (
	"net/http"
	"strings"

	"github.com/PaulBabatuyi/chatsync/internal/auth"
	"github.com/PaulBabatuyi/chatsync/internal/chat"
	"github.com/PaulBabatuyi/chatsync/internal/data"
	"github.com/PaulBabatuyi/chatsync/internal/normalize"
	"github.com/PaulBabatuyi/chatsync/internal/realtime"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

const minPasswordLen = 6

type authRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// handleSignup hashes the password, stores the user and sets the session cookie.
func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	var in authRequest
	if err := decodeJSON(w, r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" || in.Email == "" || in.Password == "" {
		s.writeError(w, r, data.Validation("all fields are required"))
		return
	}
	if !normalize.ValidEmail(in.Email) {
		s.writeError(w, r, data.Validation("invalid email"))
		return
	}
	if len(in.Password) < minPasswordLen {
		s.writeError(w, r, data.Validation("password too short"))
		return
	}

	hashed, err := auth.HashPassword(in.Password)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	user, err := s.users.CreateUser(r.Context(), in.Name, in.Email, hashed, data.DefaultProfileImage)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	if !s.issueToken(w, r, user) {
		return
	}
	s.log.Info("user signed up", zap.String("email", user.Email))
	writeJSON(w, http.StatusCreated, envelope{"success": true, "msg": "Sign up done!", "user": user})
}

// handleLogin checks the password and sets the session cookie.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var in authRequest
	if err := decodeJSON(w, r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	if in.Email == "" || in.Password == "" {
		s.writeError(w, r, data.Validation("all fields are required"))
		return
	}

	user, err := s.users.GetUserByEmail(r.Context(), in.Email)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := auth.CheckPassword(user.Password, in.Password); err != nil {
		writeJSON(w, http.StatusUnauthorized, envelope{"success": false, "msg": "incorrect password"})
		return
	}

	if !s.issueToken(w, r, user) {
		return
	}
	writeJSON(w, http.StatusOK, envelope{"success": true, "msg": "Login done!", "user": user})
}

func (s *Server) issueToken(w http.ResponseWriter, r *http.Request, user *data.User) bool {
	token, _, err := s.auth.GenerateToken(user.ID, user.Email)
	if err != nil {
		s.writeError(w, r, err)
		return false
	}
	s.setTokenCookie(w, token, int(s.auth.TTL().Seconds()))
	w.Header().Set("Authorization", "Bearer "+token)
	return true
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.setTokenCookie(w, "", -1)
	writeJSON(w, http.StatusOK, envelope{"success": true, "msg": "user successfully logged out!"})
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	user, err := s.users.GetUserByEmail(r.Context(), mux.Vars(r)["email"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{"success": true, "user": user})
}

func (s *Server) handleGetUserByID(w http.ResponseWriter, r *http.Request) {
	id, err := data.ParseID(mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	user, err := s.users.GetUserByID(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{"success": true, "user": user})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Name string `json:"name"`
	}
	if err := decodeJSON(w, r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	if strings.TrimSpace(in.Name) == "" {
		s.writeError(w, r, data.Validation("name is required"))
		return
	}
	users, err := s.users.FindByName(r.Context(), strings.TrimSpace(in.Name))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{"success": true, "result": users})
}

type peerRequest struct {
	Email string `json:"email"`
}

func (s *Server) handleStartChat(w http.ResponseWriter, r *http.Request) {
	var in peerRequest
	if err := decodeJSON(w, r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	c, err := s.chat.StartChat(r.Context(), requester(r), in.Email)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{"success": true, "chat": c, "chatId": c.ID.Hex()})
}

func (s *Server) handleLookupChat(w http.ResponseWriter, r *http.Request) {
	var in peerRequest
	if err := decodeJSON(w, r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	c, err := s.chat.LookupChat(r.Context(), requester(r), in.Email)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{"success": true, "chatId": c.ID.Hex()})
}

func (s *Server) handleListChats(w http.ResponseWriter, r *http.Request) {
	chats, err := s.chat.ListChats(r.Context(), requester(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{"success": true, "chats": chats})
}

func (s *Server) handleFriends(w http.ResponseWriter, r *http.Request) {
	friends, err := s.chat.Friends(r.Context(), requester(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{"success": true, "friends": friends})
}

func (s *Server) handleChatFriend(w http.ResponseWriter, r *http.Request) {
	email, err := s.chat.FriendEmail(r.Context(), mux.Vars(r)["chatId"], requester(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	friend, err := s.users.GetUserByEmail(r.Context(), email)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{"success": true, "friendEmail": email, "friend": friend})
}

func (s *Server) handleHideChat(w http.ResponseWriter, r *http.Request) {
	if err := s.chat.HideChat(r.Context(), mux.Vars(r)["chatId"], requester(r)); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{"success": true, "msg": "chat deleted"})
}

func (s *Server) handleClearChat(w http.ResponseWriter, r *http.Request) {
	if err := s.chat.ClearChat(r.Context(), mux.Vars(r)["chatId"], requester(r)); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{"success": true, "msg": "chat cleared"})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	msgs, err := s.chat.History(r.Context(), mux.Vars(r)["chatId"], requester(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{"success": true, "messages": msgs})
}

type sendRequest struct {
	ChatID       string `json:"chatId"`
	MsgType      string `json:"msgType"`
	Text         string `json:"text"`
	ResourceType string `json:"resourceType"`
	FileName     string `json:"fileName"`
}

// handleSendMessage persists the message, then pushes it to the partner. The
// push is best effort and its outcome never reaches the sender.
func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var in sendRequest
	if err := decodeJSON(w, r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	from := requester(r)
	msg, c, err := s.chat.SendMessage(r.Context(), from, chat.SendInput{
		ChatID:       in.ChatID,
		MsgType:      data.MsgType(in.MsgType),
		Text:         in.Text,
		ResourceType: in.ResourceType,
		FileName:     in.FileName,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.push.Push(realtime.KindMessage, c.Partner(from), msg)
	writeJSON(w, http.StatusCreated, envelope{"success": true, "msg": "message sent", "message": msg})
}

// handleDeleteMessage deletes for the requester, or with ?for=everyone
// replaces the message with a tombstone for both participants.
func (s *Server) handleDeleteMessage(w http.ResponseWriter, r *http.Request) {
	id, from := mux.Vars(r)["messageId"], requester(r)

	switch scope := r.URL.Query().Get("for"); scope {
	case "", "me":
		if err := s.chat.DeleteForMe(r.Context(), id, from); err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, envelope{"success": true, "msg": "message deleted for you"})
	case "everyone":
		msg, c, err := s.chat.DeleteForEveryone(r.Context(), id, from)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		s.push.Push(realtime.KindMessageDeleted, c.Partner(from), msg)
		writeJSON(w, http.StatusOK, envelope{"success": true, "msg": "message deleted for everyone", "message": msg})
	default:
		s.writeError(w, r, data.Validation("unknown delete scope "+scope))
	}
}
