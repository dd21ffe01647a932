package web

import (
	"context"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
	"github.com/russross/blackfriday/v2"
	"github.com/tdewolff/minify/v2"
	"github.com/tdewolff/minify/v2/html"

	"github.com/leohooho/blog/internal/search"
	"github.com/leohooho/blog/internal/session"
	"github.com/leohooho/blog/internal/storage"
)

//go:embed templates/*.html
var templatesFS embed.FS

//go:embed static/*
var staticFS embed.FS

// maxFormBytes caps request bodies of form posts.
const maxFormBytes = 1 << 20

// PostStore is the persistence the handlers need.
type PostStore interface {
	Get(ctx context.Context, id string) (*storage.Post, error)
	Update(ctx context.Context, id string, p *storage.Post) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]*storage.Post, error)
	Count(ctx context.Context) (int, error)
}

// PostIndex is the search index kept in step with the store.
type PostIndex interface {
	Replace(oldID string, p *storage.Post) error
	Delete(id string) error
	Search(query string, limit int) ([]*search.SearchResult, error)
	Count() (uint64, error)
}

type Server struct {
	db        PostStore
	idx       PostIndex
	sessions  *session.Manager
	logger    zerolog.Logger
	templates *template.Template
	minifier  *minify.M
}

// pageData is what every HTML template receives.
type pageData struct {
	Title   string
	User    session.User
	Post    *storage.Post
	Posts   []*storage.Post
	Query   string
	Results []*search.SearchResult
	Error   string
}

var functions = template.FuncMap{
	"markdown": func(s string) template.HTML {
		return template.HTML(blackfriday.Run([]byte(s)))
	},
	"pathEscape": url.PathEscape,
}

func NewServer(db PostStore, idx PostIndex, sessions *session.Manager, logger zerolog.Logger) (*Server, error) {
	tmpl, err := template.New("").Funcs(functions).ParseFS(templatesFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("error parsing templates: %w", err)
	}

	m := minify.New()
	m.Add("text/html", &html.Minifier{
		KeepDefaultAttrVals: true,
		KeepDocumentTags:    true,
		KeepEndTags:         true,
		KeepQuotes:          true,
	})

	return &Server{
		db:        db,
		idx:       idx,
		sessions:  sessions,
		logger:    logger,
		templates: tmpl,
		minifier:  m,
	}, nil
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	static, _ := fs.Sub(staticFS, "static")
	mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServer(http.FS(static))))

	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /posts/{postId}", s.handlePost)
	mux.HandleFunc("GET /posts/{postId}/edit", s.sessions.RequireUser(s.handleEditPage))
	mux.HandleFunc("POST /posts/{postId}/edit", s.sessions.RequireUser(s.handleEditAction))
	mux.HandleFunc("POST /posts/{postId}/delete", s.sessions.RequireUser(s.handleDelete))
	mux.HandleFunc("GET /search", s.handleSearch)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET "+session.SignInPath, s.handleSignInPage)
	mux.HandleFunc("POST "+session.SignInPath, s.handleSignIn)
	mux.HandleFunc("POST /signout", s.handleSignOut)

	var h http.Handler = mux
	h = hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
		hlog.FromRequest(r).Info().
			Str("method", r.Method).
			Stringer("url", r.URL).
			Int("status", status).
			Int("size", size).
			Dur("duration", duration).
			Msg("request")
	})(h)
	h = hlog.RequestIDHandler("req_id", "X-Request-Id")(h)
	h = hlog.NewHandler(s.logger)(h)

	return h
}
