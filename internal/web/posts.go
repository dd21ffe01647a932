package web

import (
	"errors"
	"net/http"
	"net/url"

	"github.com/rs/zerolog/hlog"

	"github.com/leohooho/blog/internal/storage"
)

// handleEditPage loads the post behind the edit screen.
func (s *Server) handleEditPage(w http.ResponseWriter, r *http.Request) {
	postID := r.PathValue("postId")

	post, err := s.db.Get(r.Context(), postID)
	if errors.Is(err, storage.ErrNotFound) {
		s.notFound(w, r)
		return
	}
	if err != nil {
		s.serverError(w, r, err)
		return
	}

	if wantsJSON(r) {
		writeJSON(w, http.StatusOK, map[string]*storage.Post{"post": post})
		return
	}

	s.render(w, r, http.StatusOK, "edit.html", &pageData{
		Title: post.Title,
		Post:  post,
	})
}

// handleEditAction applies a submission of the edit form.
func (s *Server) handleEditAction(w http.ResponseWriter, r *http.Request) {
	postID := r.PathValue("postId")

	r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)
	if err := r.ParseForm(); err != nil {
		s.writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	action, err := ParseAction(r.PostForm.Get("action"))
	if err != nil {
		hlog.FromRequest(r).Warn().Err(err).Str("post_id", postID).Msg("rejected edit form")
		s.writeError(w, r, http.StatusBadRequest, msgBadAction)
		return
	}

	switch action {
	case ActionDelete:
		s.deletePost(w, r, postID)
	case ActionEdit:
		s.updatePost(w, r, postID, &storage.Post{
			ID:      r.PostForm.Get("slug"),
			Title:   r.PostForm.Get("title"),
			Content: r.PostForm.Get("content"),
		})
	}
}

// handleDelete is the body-less deletion endpoint used by the edit screen.
func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	s.deletePost(w, r, r.PathValue("postId"))
}

func (s *Server) updatePost(w http.ResponseWriter, r *http.Request, postID string, post *storage.Post) {
	logger := hlog.FromRequest(r).With().
		Str("post_id", postID).
		Str("slug", post.ID).
		Str("user", s.sessions.Current(r).Username).
		Logger()

	err := s.db.Update(r.Context(), postID, post)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		s.notFound(w, r)
		return
	case errors.Is(err, storage.ErrSlugTaken):
		logger.Info().Msg("slug collision on rename")
		s.writeError(w, r, http.StatusConflict, msgSlugTaken)
		return
	case err != nil:
		s.serverError(w, r, err)
		return
	}

	if err := s.idx.Replace(postID, post); err != nil {
		logger.Error().Err(err).Msg("failed to update search index")
	}

	logger.Info().Msg("post updated")
	redirect(w, r, "/posts/"+url.PathEscape(post.ID))
}

func (s *Server) deletePost(w http.ResponseWriter, r *http.Request, postID string) {
	logger := hlog.FromRequest(r).With().
		Str("post_id", postID).
		Str("user", s.sessions.Current(r).Username).
		Logger()

	err := s.db.Delete(r.Context(), postID)
	if errors.Is(err, storage.ErrNotFound) {
		s.notFound(w, r)
		return
	}
	if err != nil {
		s.serverError(w, r, err)
		return
	}

	if err := s.idx.Delete(postID); err != nil {
		logger.Error().Err(err).Msg("failed to remove post from search index")
	}

	logger.Info().Msg("post deleted")
	redirect(w, r, "/")
}
