package web

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/rs/zerolog/hlog"

	"github.com/leohooho/blog/internal/search"
	"github.com/leohooho/blog/internal/storage"
)

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	posts, err := s.db.List(r.Context())
	if err != nil {
		s.serverError(w, r, err)
		return
	}

	s.render(w, r, http.StatusOK, "index.html", &pageData{Posts: posts})
}

func (s *Server) handlePost(w http.ResponseWriter, r *http.Request) {
	post, err := s.db.Get(r.Context(), r.PathValue("postId"))
	if errors.Is(err, storage.ErrNotFound) {
		s.notFound(w, r)
		return
	}
	if err != nil {
		s.serverError(w, r, err)
		return
	}

	data := &pageData{Title: post.Title, Post: post, User: s.sessions.Current(r)}
	b, err := s.renderBytes("post.html", data)
	if err != nil {
		s.serverError(w, r, err)
		return
	}

	d := make([]byte, 8)
	binary.BigEndian.PutUint64(d, xxhash.Sum64(b))
	etag := "\"" + base64.StdEncoding.EncodeToString(d) + "\""

	w.Header().Set("ETag", etag)
	if r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(b)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	data := &pageData{Title: "搜索", Query: query}

	if query == "" {
		s.render(w, r, http.StatusOK, "search.html", data)
		return
	}

	limit := 20
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l <= 100 {
			limit = l
		}
	}

	results, err := s.idx.Search(query, limit)
	if err != nil {
		hlog.FromRequest(r).Warn().Err(err).Str("query", query).Msg("search failed")
		data.Error = "搜索失败"
		results = []*search.SearchResult{}
	}
	data.Results = results

	s.render(w, r, http.StatusOK, "search.html", data)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	dbCount, _ := s.db.Count(r.Context())
	indexCount, _ := s.idx.Count()

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":         "ok",
		"posts_in_db":    dbCount,
		"posts_in_index": indexCount,
	})
}

func (s *Server) handleSignInPage(w http.ResponseWriter, r *http.Request) {
	if s.sessions.Current(r).Username != "" {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	s.render(w, r, http.StatusOK, "signin.html", &pageData{Title: "登录"})
}

func (s *Server) handleSignIn(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)
	username := r.PostFormValue("username")
	password := r.PostFormValue("password")

	if !s.sessions.CheckCredentials(username, password) {
		hlog.FromRequest(r).Warn().Str("user", username).Msg("sign-in failed")
		s.render(w, r, http.StatusUnauthorized, "signin.html", &pageData{
			Title: "登录",
			Error: "用户名或密码错误",
		})
		return
	}

	token, err := s.sessions.Issue(username)
	if err != nil {
		s.serverError(w, r, err)
		return
	}

	s.sessions.SetCookie(w, token)
	hlog.FromRequest(r).Info().Str("user", username).Msg("signed in")
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) handleSignOut(w http.ResponseWriter, r *http.Request) {
	s.sessions.ClearCookie(w)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}
