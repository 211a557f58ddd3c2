package server

import (
	"embed"
	"html/template"
	"log/slog"
	"net/http"
	"time"

	"github.com/brojonat/soltrack/service/db"
	"github.com/brojonat/soltrack/service/valuation"
)

//go:embed templates/*.html
var templatesFS embed.FS

// TemplateRenderer holds parsed HTML templates
type TemplateRenderer struct {
	templates *template.Template
	logger    *slog.Logger
}

// NewTemplateRenderer creates a new template renderer from embedded files
func NewTemplateRenderer(logger *slog.Logger) (*TemplateRenderer, error) {
	funcs := template.FuncMap{
		"fmtTime": func(t *time.Time) string {
			if t == nil {
				return "-"
			}
			return t.UTC().Format("2006-01-02 15:04")
		},
		"short": func(s string) string {
			if len(s) <= 12 {
				return s
			}
			return s[:6] + "…" + s[len(s)-4:]
		},
	}
	tmpl, err := template.New("").Funcs(funcs).ParseFS(templatesFS, "templates/*.html")
	if err != nil {
		return nil, err
	}

	return &TemplateRenderer{
		templates: tmpl,
		logger:    logger,
	}, nil
}

// Render renders a template with the given data
func (tr *TemplateRenderer) Render(w http.ResponseWriter, name string, data interface{}) error {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	return tr.templates.ExecuteTemplate(w, name, data)
}

type dashboardData struct {
	Summary       *summaryResponse
	Portfolio     *valuation.Portfolio
	HoldingsError string
	StreamEnabled bool
}

// handleDashboardPage renders the dashboard. An empty store renders zero
// states and a failed valuation renders without holdings.
func handleDashboardPage(renderer *TemplateRenderer, opener db.Opener, valuer Valuer, streamEnabled bool, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		summary, err := loadSummary(r, opener, 25)
		if err != nil {
			logger.ErrorContext(r.Context(), "failed to load summary", "error", err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		data := dashboardData{Summary: summary, StreamEnabled: streamEnabled}
		if summary.Total > 0 {
			portfolio, err := valuer.NetWorth(r.Context())
			if err != nil {
				logger.WarnContext(r.Context(), "failed to value holdings", "error", err)
				data.HoldingsError = "holdings unavailable"
			} else {
				data.Portfolio = portfolio
			}
		}

		if err := renderer.Render(w, "dashboard.html", data); err != nil {
			logger.ErrorContext(r.Context(), "failed to render template", "error", err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		}
	})
}
