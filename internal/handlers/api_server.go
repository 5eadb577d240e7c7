package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/jason-s-yu/musicquiz/internal/auth"
	"github.com/jason-s-yu/musicquiz/internal/catalog"
	"github.com/jason-s-yu/musicquiz/internal/lobby"
	"github.com/jason-s-yu/musicquiz/internal/middleware"
	"github.com/julienschmidt/httprouter"
	"github.com/sirupsen/logrus"
	qrcode "github.com/skip2/go-qrcode"
)

const qrSize = 256

// Server holds everything the HTTP and websocket endpoints need.
type Server struct {
	Store     *lobby.Store
	Hub       *Hub
	Catalog   catalog.Catalog
	Issuer    *auth.Issuer
	PublicURL string
	Logger    *logrus.Logger
}

// Routes builds the router for the whole service.
func (s *Server) Routes() http.Handler {
	d := NewDispatcher(s.Store, s.Hub, s.Logger)

	r := httprouter.New()
	r.Handler(http.MethodGet, "/ws", WSHandler(s.Logger, s.Store, s.Hub, d))
	r.GET("/healthz", s.HealthHandler)
	r.GET("/catalog", s.CatalogHandler)
	r.GET("/lobbies/:code/qr", s.QRHandler)
	r.GET("/admin/lobbies", s.AdminLobbiesHandler)

	return middleware.LogMiddleware(s.Logger)(r)
}

func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"lobbies": s.Store.Len(),
	})
}

// CatalogHandler lists the clue sources and categories a host can pick from.
func (s *Server) CatalogHandler(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	idx, err := s.Catalog.Index(r.Context())
	if err != nil {
		s.Logger.Errorf("catalog index: %v", err)
		http.Error(w, "catalog unavailable", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, idx)
}

// QRHandler renders a PNG QR code pointing at the join page of a live lobby.
func (s *Server) QRHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	code := NormalizeCode(ps.ByName("code"))
	if _, err := s.Store.Get(code); err != nil {
		http.Error(w, "lobby not found", http.StatusNotFound)
		return
	}

	png, err := qrcode.Encode(JoinURL(s.PublicURL, r, code), qrcode.Medium, qrSize)
	if err != nil {
		s.Logger.Errorf("qr encode for %s: %v", code, err)
		http.Error(w, "failed to render qr code", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(png)
}

// JoinURL is the link encoded in a lobby's QR code. Without a configured public URL it is derived
// from the request host.
func JoinURL(publicURL string, r *http.Request, code string) string {
	base := strings.TrimRight(publicURL, "/")
	if base == "" {
		scheme := "http"
		if r.TLS != nil {
			scheme = "https"
		}
		base = fmt.Sprintf("%s://%s", scheme, r.Host)
	}
	return base + "/?code=" + url.QueryEscape(code)
}

// AdminLobbiesHandler lists live lobbies. Requires a bearer token whose subject is admin.
func (s *Server) AdminLobbiesHandler(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	if !s.Issuer.Enabled() {
		http.Error(w, "admin endpoints disabled", http.StatusNotFound)
		return
	}
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok || token == "" {
		http.Error(w, "missing bearer token", http.StatusUnauthorized)
		return
	}
	sub, err := s.Issuer.AuthenticateJWT(token)
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}
	if sub != auth.AdminSubject {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	lobbies := s.Store.List()
	sort.Slice(lobbies, func(i, j int) bool { return lobbies[i].CreatedAt.Before(lobbies[j].CreatedAt) })
	writeJSON(w, http.StatusOK, map[string]any{"lobbies": lobbies})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
