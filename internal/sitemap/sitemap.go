package sitemap

import (
	"encoding/xml"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	log "github.com/sirupsen/logrus"
)

// Page is one public route of the marketing site.
type Page struct {
	Path       string
	ChangeFreq string
	Priority   float64
}

var DefaultPages = []Page{
	{Path: "/", ChangeFreq: "weekly", Priority: 1.0},
	{Path: "/services", ChangeFreq: "monthly", Priority: 0.9},
	{Path: "/vehicules", ChangeFreq: "weekly", Priority: 0.9},
	{Path: "/formations", ChangeFreq: "monthly", Priority: 0.8},
	{Path: "/galerie", ChangeFreq: "weekly", Priority: 0.7},
	{Path: "/devis", ChangeFreq: "yearly", Priority: 0.8},
	{Path: "/rendez-vous", ChangeFreq: "yearly", Priority: 0.6},
	{Path: "/contact", ChangeFreq: "yearly", Priority: 0.6},
}

type urlset struct {
	XMLName xml.Name `xml:"urlset"`
	XMLNS   string   `xml:"xmlns,attr"`
	URLs    []entry  `xml:"url"`
}

type entry struct {
	Loc        string `xml:"loc"`
	LastMod    string `xml:"lastmod"`
	ChangeFreq string `xml:"changefreq"`
	Priority   string `xml:"priority"`
}

// Build renders a sitemap for pages under siteURL.
func Build(siteURL string, pages []Page, lastMod time.Time) ([]byte, error) {
	base := strings.TrimRight(siteURL, "/")
	set := urlset{XMLNS: "http://www.sitemaps.org/schemas/sitemap/0.9"}
	for _, p := range pages {
		set.URLs = append(set.URLs, entry{
			Loc:        base + p.Path,
			LastMod:    lastMod.UTC().Format("2006-01-02"),
			ChangeFreq: p.ChangeFreq,
			Priority:   strconv.FormatFloat(p.Priority, 'f', 1, 64),
		})
	}

	b, err := xml.MarshalIndent(set, "", "  ")
	if err != nil {
		return nil, err
	}
	return append([]byte(xml.Header), b...), nil
}

// Handler serves the sitemap computed at startup.
type Handler struct {
	body []byte
}

func NewHandler(siteURL string, pages []Page) (*Handler, error) {
	body, err := Build(siteURL, pages, time.Now())
	if err != nil {
		return nil, err
	}
	return &Handler{body: body}, nil
}

func (h *Handler) ServeSitemap(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/xml; charset=utf-8")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	if _, err := w.Write(h.body); err != nil {
		log.WithField("component", "sitemap").WithError(err).Debug("write sitemap")
	}
}

func RegisterRoutes(r chi.Router, h *Handler) {
	r.Get("/sitemap.xml", h.ServeSitemap)
}
