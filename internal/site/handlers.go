package site

import (
	"embed"
	"html/template"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/noah-isme/popup-offer/internal/common"
	"github.com/noah-isme/popup-offer/internal/popup"
)

//go:embed templates/*.html
var templateFS embed.FS

var pageTemplate = template.Must(template.ParseFS(templateFS, "templates/index.html"))

// Handler serves the demo host page and the popup state endpoints. Each
// request gets its own controller over the request's cookies, so the
// suppression cookie is always read fresh.
type Handler struct {
	Config         popup.Config
	Content        popup.Content
	Cookies        popup.CookieOptions
	PublishableKey string
	Mock           bool
	Logger         zerolog.Logger
}

type popupResp struct {
	popup.Snapshot
	AutoShow bool `json:"autoShow"`
}

type pageData struct {
	Popup          popupResp
	PublishableKey string
	Mock           bool
}

func (h *Handler) controller(w http.ResponseWriter, r *http.Request) *popup.Controller {
	logger := h.Logger
	if l := zerolog.Ctx(r.Context()); l.GetLevel() != zerolog.Disabled {
		logger = *l
	}
	return popup.NewController(popup.Options{
		Config:  h.Config.Patch(),
		Content: h.Content,
		Store:   popup.NewHTTPCookieStore(w, r, h.Cookies),
		Logger:  logger,
	})
}

func respond(c *popup.Controller) popupResp {
	return popupResp{Snapshot: c.Snapshot(), AutoShow: c.ShouldAutoShow()}
}

// Page handles GET /.
func (h *Handler) Page(w http.ResponseWriter, r *http.Request) {
	c := h.controller(w, r)
	defer c.Close()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	data := pageData{Popup: respond(c), PublishableKey: h.PublishableKey, Mock: h.Mock}
	if err := pageTemplate.Execute(w, data); err != nil {
		h.Logger.Error().Err(err).Msg("render page")
	}
}

// State handles GET /api/popup.
func (h *Handler) State(w http.ResponseWriter, r *http.Request) {
	c := h.controller(w, r)
	defer c.Close()
	common.JSON(w, http.StatusOK, respond(c))
}

// Dismiss handles POST /api/popup/dismiss and records the suppression cookie.
func (h *Handler) Dismiss(w http.ResponseWriter, r *http.Request) {
	c := h.controller(w, r)
	defer c.Close()
	c.Hide()
	common.JSON(w, http.StatusOK, respond(c))
}

// Reopen handles POST /api/popup/reopen, clearing suppression and showing
// the popup again.
func (h *Handler) Reopen(w http.ResponseWriter, r *http.Request) {
	c := h.controller(w, r)
	defer c.Close()
	c.Reopen()
	common.JSON(w, http.StatusOK, respond(c))
}
