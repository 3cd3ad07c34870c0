package server

import (
	"embed"
	"html/template"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/brojonat/solxfer/service/transfer"
	"github.com/brojonat/solxfer/service/wallet"
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
	tmpl, err := template.ParseFS(templatesFS, "templates/*.html")
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

// formPage serves the transfer form. Every POST redirects back to the form
// so a reload never resubmits.
type formPage struct {
	renderer      *TemplateRenderer
	form          *transfer.Form
	wallets       *wallet.Registry
	network       string
	streamEnabled bool
	logger        *slog.Logger
}

type formPageData struct {
	State         transfer.State
	Connected     bool
	// SubmitEnabled leaves the field checks to the browser; the stored
	// fields are empty until a submission records them.
	SubmitEnabled bool
	InFlight      bool
	PublicKey     string
	Adapters      []wallet.Info
	Network       string
	WalletError   string
	StreamEnabled bool
}

func (p *formPage) handleIndex() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		state := p.form.State()
		connected := p.form.Connected()
		data := formPageData{
			State:         state,
			Connected:     connected,
			SubmitEnabled: connected && !state.Phase.InFlight(),
			InFlight:      state.Phase.InFlight(),
			Adapters:      p.wallets.Adapters(),
			Network:       p.network,
			WalletError:   r.URL.Query().Get("wallet_error"),
			StreamEnabled: p.streamEnabled,
		}
		if pk := p.wallets.Session().PublicKey(); pk != nil {
			data.PublicKey = pk.String()
		}
		if err := p.renderer.Render(w, "transfer.html", data); err != nil {
			p.logger.Error("failed to render template", "error", err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
	})
}

func (p *formPage) handleConnect() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if name := r.FormValue("adapter"); name != "" {
			if err := p.wallets.Select(name); err != nil {
				p.redirectWithWalletError(w, r, err)
				return
			}
		}
		if err := p.wallets.Connect(r.Context()); err != nil {
			p.logger.WarnContext(r.Context(), "wallet connect failed", "error", err)
			p.redirectWithWalletError(w, r, err)
			return
		}
		http.Redirect(w, r, "/", http.StatusSeeOther)
	})
}

func (p *formPage) handleDisconnect() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p.wallets.Disconnect()
		http.Redirect(w, r, "/", http.StatusSeeOther)
	})
}

// handleTransfer submits the form. The outcome is shown on the status and
// error lines after the redirect.
func (p *formPage) handleTransfer() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, err := submit(r.Context(), p.form, r.FormValue("recipient"), r.FormValue("amount"))
		if err != nil {
			p.logger.DebugContext(r.Context(), "transfer form submission ended with error", "error", err)
		}
		http.Redirect(w, r, "/", http.StatusSeeOther)
	})
}

func (p *formPage) redirectWithWalletError(w http.ResponseWriter, r *http.Request, err error) {
	http.Redirect(w, r, "/?wallet_error="+url.QueryEscape(err.Error()), http.StatusSeeOther)
}
