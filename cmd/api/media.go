package main

import (
	"bufio"
	"errors"
	"mime/multipart"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/PaulBabatuyi/chatsync/internal/data"
	"github.com/PaulBabatuyi/chatsync/internal/media"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

const (
	maxUploadFiles = 10
	maxUploadBytes = 100 << 20
	multipartMem   = 8 << 20
)

// handleUploadMedia stores up to maxUploadFiles parts named "media" and
// returns their content ids; the client then sends a message referencing one.
func (s *Server) handleUploadMedia(w http.ResponseWriter, r *http.Request) {
	files, err := multipartFiles(w, r, "media")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if len(files) > maxUploadFiles {
		s.writeError(w, r, data.Validation("too many files"))
		return
	}

	out := make([]media.Object, 0, len(files))
	for _, fh := range files {
		obj, err := s.storeFile(r, fh, "")
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		out = append(out, obj)
	}
	writeJSON(w, http.StatusOK, envelope{"success": true, "media": out})
}

// handleProfileImage stores an image and makes it the requester's avatar.
func (s *Server) handleProfileImage(w http.ResponseWriter, r *http.Request) {
	files, err := multipartFiles(w, r, "profile-image")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	obj, err := s.storeFile(r, files[0], media.ResourceImage)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	url := "/avatars/" + path.Base(obj.ContentID)
	if err := s.users.SetProfileImage(r.Context(), requester(r), url); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{"success": true, "msg": "Profile image set successfully!", "profileImageUrl": url})
}

// handleDownload redirects a participant to a short-lived signed link for a
// media message.
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	msg, err := s.chat.MediaMessage(r.Context(), mux.Vars(r)["messageId"], requester(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	link, _, err := s.signer.URL(media.Grant{
		ContentID:    msg.Text,
		ResourceType: msg.ResourceType,
		FileName:     msg.FileName,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	http.Redirect(w, r, link, http.StatusFound)
}

// handleServeMedia streams a blob to the holder of a valid signed link.
func (s *Server) handleServeMedia(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id := vars["rt"] + "/" + vars["file"]
	grant, err := s.signer.Verify(id, r.URL.Query().Get("token"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	disposition := "attachment"
	if grant.FileName != "" {
		disposition += `; filename="` + strings.ReplaceAll(grant.FileName, `"`, "") + `"`
	}
	s.serveBlob(w, r, id, disposition)
}

// handleAvatar serves profile images without a signature.
func (s *Server) handleAvatar(w http.ResponseWriter, r *http.Request) {
	s.serveBlob(w, r, media.ResourceImage+"/"+mux.Vars(r)["file"], "inline")
}

func (s *Server) serveBlob(w http.ResponseWriter, r *http.Request, id, disposition string) {
	f, contentType, err := s.blobs.Open(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", disposition)
	w.Header().Set("X-Content-Type-Options", "nosniff")
	http.ServeContent(w, r, "", time.Time{}, f)
}

// storeFile puts one part into the blob store, sniffing the content type
// when the client did not send one. A non-empty only restricts the resource
// type accepted.
func (s *Server) storeFile(r *http.Request, fh *multipart.FileHeader, only string) (media.Object, error) {
	f, err := fh.Open()
	if err != nil {
		return media.Object{}, data.Validation("unreadable upload")
	}
	defer f.Close()

	br := bufio.NewReaderSize(f, 512)
	contentType := fh.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		head, _ := br.Peek(512)
		contentType = http.DetectContentType(head)
	}
	if only != "" && media.Category(contentType) != only {
		return media.Object{}, data.Validation("file must be of type " + only)
	}

	obj, err := s.blobs.Put(r.Context(), fh.Filename, contentType, br)
	if err != nil {
		s.log.Error("blob store failed", zap.String("file", fh.Filename), zap.Error(err))
		return media.Object{}, errors.Join(data.ErrUpstream, err)
	}
	return obj, nil
}

// multipartFiles parses the request and returns the parts under field,
// requiring at least one.
func multipartFiles(w http.ResponseWriter, r *http.Request, field string) ([]*multipart.FileHeader, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(multipartMem); err != nil {
		return nil, data.Validation("malformed upload")
	}
	files := r.MultipartForm.File[field]
	if len(files) == 0 {
		return nil, data.Validation("file not provided")
	}
	return files, nil
}
