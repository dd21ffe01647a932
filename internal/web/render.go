package web

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/rs/zerolog/hlog"
)

const (
	msgNotFound      = "找不到文章"
	msgSlugTaken     = "slug 已被使用"
	msgBadAction     = "无效的操作"
	msgInternalError = "Internal Server Error"
)

// wantsJSON reports whether the client asked for JSON rather than a page.
func wantsJSON(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "application/json") ||
		r.Header.Get("X-Requested-With") == "fetch"
}

// renderBytes executes a template and minifies the result.
func (s *Server) renderBytes(name string, data *pageData) ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := s.templates.ExecuteTemplate(buf, name, data); err != nil {
		return nil, err
	}

	out := new(bytes.Buffer)
	if err := s.minifier.Minify("text/html", out, buf); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

func (s *Server) render(w http.ResponseWriter, r *http.Request, status int, name string, data *pageData) {
	if data == nil {
		data = &pageData{}
	}
	if data.User.Username == "" {
		data.User = s.sessions.Current(r)
	}

	b, err := s.renderBytes(name, data)
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Str("template", name).Msg("error rendering template")
		http.Error(w, msgInternalError, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	w.Write(b)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError answers with {"message": msg} for JSON clients and an error
// page otherwise.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	if wantsJSON(r) {
		writeJSON(w, status, map[string]string{"message": msg})
		return
	}
	s.render(w, r, status, "error.html", &pageData{Title: http.StatusText(status), Error: msg})
}

func (s *Server) notFound(w http.ResponseWriter, r *http.Request) {
	s.writeError(w, r, http.StatusNotFound, msgNotFound)
}

func (s *Server) serverError(w http.ResponseWriter, r *http.Request, err error) {
	hlog.FromRequest(r).Error().Err(err).Msg("request failed")
	s.writeError(w, r, http.StatusInternalServerError, msgInternalError)
}

// redirect sends browsers to location; background requests get the target
// as JSON so the page can navigate itself.
func redirect(w http.ResponseWriter, r *http.Request, location string) {
	if wantsJSON(r) {
		writeJSON(w, http.StatusOK, map[string]string{"redirect": location})
		return
	}
	http.Redirect(w, r, location, http.StatusSeeOther)
}
