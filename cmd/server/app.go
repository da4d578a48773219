package main

import (
	"net/http"
	"time"

	"github.com/motorworks/invoicegen/auth"
	"github.com/motorworks/invoicegen/internal/config"
	"github.com/motorworks/invoicegen/internal/followup"
	"github.com/motorworks/invoicegen/internal/gate"
	"github.com/motorworks/invoicegen/internal/google"
	"github.com/motorworks/invoicegen/internal/handlers"
	"github.com/motorworks/invoicegen/internal/messaging"
	"github.com/motorworks/invoicegen/internal/policy"
	"github.com/motorworks/invoicegen/internal/render"
	"github.com/motorworks/invoicegen/internal/services"
	"github.com/motorworks/invoicegen/internal/storage"
	"github.com/motorworks/invoicegen/view"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const roleCacheTTL = 5 * time.Minute

// Components are the long-lived collaborators built from the configuration.
type Components struct {
	AuthGate  *policy.AuthGate
	Invoices  *services.InvoiceService
	FollowUps *followup.Service
	Google    *google.Client
}

// Build wires the services. It fails only on configuration that can never work.
func Build(db *gorm.DB, cfg *config.Config, logger *zap.Logger) (*Components, error) {
	vars, err := followup.ParseVariableMap(cfg.Twilio.ContentVariables)
	if err != nil {
		return nil, err
	}
	loc := cfg.App.Location()

	renderer := render.New(render.Options{
		Letterhead:   render.Letterhead{Name: cfg.Business.Name, Lines: cfg.Business.ContactLines()},
		LogoPath:     cfg.Render.LogoPath,
		FontPath:     cfg.Render.FontPath,
		BoldFontPath: cfg.Render.BoldFontPath,
		Timeout:      cfg.Render.Timeout,
	}, logger)
	g := google.New(cfg.Google, logger)

	return &Components{
		AuthGate: policy.NewAuthGate(db, roleCacheTTL),
		Invoices: services.NewInvoiceService(db, services.InvoiceDeps{
			Renderer: renderer,
			Store:    storage.NewLocal(cfg.Storage.MediaDir),
			Google:   g,
			Logger:   logger,
		}),
		FollowUps: followup.NewService(db, messaging.NewTwilio(cfg.Twilio, logger), followup.Options{
			BusinessName: cfg.Business.Name,
			Location:     loc,
			Variables:    vars,
		}, logger),
		Google: g,
	}, nil
}

// App is the main application handler that sets up all routes.
type App struct {
	mux  *http.ServeMux
	gate *policy.AuthGate
}

// NewApp creates a new application with all routes configured.
func NewApp(db *gorm.DB, cfg *config.Config, c *Components, logger *zap.Logger) *App {
	app := &App{mux: http.NewServeMux(), gate: c.AuthGate}

	// Templates hide actions the user may not take.
	view.SetCanResolver(func(r *http.Request, resource, action string) bool {
		return c.AuthGate.Allows(r.Context(), gate.Action(action), resource)
	})

	loc := cfg.App.Location()
	today := func() time.Time { return followup.DateOf(time.Now(), loc) }

	app.routes(
		handlers.NewAuthHandler(db, logger),
		handlers.NewDashboardHandler(db, today, logger),
		handlers.NewClientHandler(db, logger),
		handlers.NewInvoiceHandler(db, c.Invoices, cfg.Business.Name, logger),
		handlers.NewFollowUpHandler(c.FollowUps, logger),
		handlers.NewStatusWebhook(c.FollowUps, logger),
		handlers.NewGoogleHandler(db, c.Google, c.AuthGate, logger),
		handlers.Health(db),
	)
	return app
}

// ServeHTTP implements http.Handler.
func (a *App) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	auth.Middleware(a.mux).ServeHTTP(w, r)
}

func (a *App) routes(
	ah *handlers.AuthHandler,
	dh *handlers.DashboardHandler,
	ch *handlers.ClientHandler,
	ih *handlers.InvoiceHandler,
	fh *handlers.FollowUpHandler,
	webhook http.Handler,
	gh *handlers.GoogleHandler,
	health http.HandlerFunc,
) {
	// Public
	a.mux.HandleFunc("GET /healthz", health)
	a.mux.HandleFunc("GET /login", ah.Login)
	a.mux.HandleFunc("POST /login", ah.Login)
	a.mux.HandleFunc("GET /signup", ah.Signup)
	a.mux.HandleFunc("POST /signup", ah.Signup)
	a.mux.HandleFunc("POST /logout", ah.Logout)
	a.mux.Handle("POST /webhooks/whatsapp/status", webhook)
	a.mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
	})

	// Signed in
	a.mux.Handle("GET /dashboard", a.requireAuth(dh.Show))
	a.mux.Handle("GET /google/connect", a.requireAuth(gh.Connect))
	a.mux.Handle("GET /google/callback", a.requireAuth(gh.Callback))
	a.mux.Handle("POST /google/disconnect", a.requireAuth(gh.Disconnect))
	a.mux.Handle("GET /google/folders", a.requireAuth(gh.Folders))
	a.mux.Handle("POST /google/folders", a.requireAuth(gh.SelectFolder))

	// Clients
	a.mux.Handle("GET /clients", a.protect(policy.ResourceClient, gate.ActionList, ch.List))
	a.mux.Handle("GET /clients/new", a.protect(policy.ResourceClient, gate.ActionCreate, ch.New))
	a.mux.Handle("POST /clients", a.protect(policy.ResourceClient, gate.ActionCreate, ch.Create))
	a.mux.Handle("GET /clients/{id}", a.protect(policy.ResourceClient, gate.ActionView, ch.View))
	a.mux.Handle("GET /clients/{id}/edit", a.protect(policy.ResourceClient, gate.ActionUpdate, ch.Edit))
	a.mux.Handle("POST /clients/{id}", a.protect(policy.ResourceClient, gate.ActionUpdate, ch.Update))
	a.mux.Handle("POST /clients/{id}/delete", a.protect(policy.ResourceClient, gate.ActionDelete, ch.Delete))

	// Invoices
	a.mux.Handle("GET /invoices", a.protect(policy.ResourceInvoice, gate.ActionList, ih.List))
	a.mux.Handle("GET /invoices/export.xlsx", a.protect(policy.ResourceInvoice, gate.ActionList, ih.Export))
	a.mux.Handle("GET /clients/{id}/invoices/new", a.protect(policy.ResourceInvoice, gate.ActionCreate, ih.New))
	a.mux.Handle("POST /clients/{id}/invoices", a.protect(policy.ResourceInvoice, gate.ActionCreate, ih.Create))
	a.mux.Handle("GET /invoices/{id}", a.protect(policy.ResourceInvoice, gate.ActionView, ih.View))
	a.mux.Handle("GET /invoices/{id}/edit", a.protect(policy.ResourceInvoice, gate.ActionUpdate, ih.Edit))
	a.mux.Handle("POST /invoices/{id}", a.protect(policy.ResourceInvoice, gate.ActionUpdate, ih.Update))
	a.mux.Handle("POST /invoices/{id}/delete", a.protect(policy.ResourceInvoice, gate.ActionDelete, ih.Delete))
	a.mux.Handle("GET /invoices/{id}/pdf", a.protect(policy.ResourceInvoice, gate.ActionView, ih.PDF))
	a.mux.Handle("POST /invoices/{id}/email", a.protect(policy.ResourceInvoice, gate.ActionSend, ih.Email))

	// Follow-ups
	a.mux.Handle("GET /followups", a.protect(policy.ResourceFollowUp, gate.ActionList, fh.List))
	a.mux.Handle("POST /followups/settings", a.protect(policy.ResourceSettings, gate.ActionManage, fh.UpdateSettings))
	a.mux.Handle("POST /followups/enroll", a.protect(policy.ResourceFollowUp, gate.ActionCreate, fh.Enroll))
	a.mux.Handle("POST /followups/{id}", a.protect(policy.ResourceFollowUp, gate.ActionUpdate, fh.Update))
	a.mux.Handle("POST /followups/{id}/send", a.protect(policy.ResourceFollowUp, gate.ActionSend, fh.Send))
}

// requireAuth wraps a handler to require a signed-in user.
func (a *App) requireAuth(h http.HandlerFunc) http.Handler {
	return auth.RequireAuth(h)
}

// protect requires a signed-in user whose role grants action on resourceType.
func (a *App) protect(resourceType string, action gate.Action, h http.HandlerFunc) http.Handler {
	return auth.RequireAuth(a.gate.RequirePermission(resourceType, action)(h))
}
