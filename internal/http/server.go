package http

import (
	"context"
	"html/template"
	"io/fs"
	"net/http"
	"sync"
	"time"

	"ledger/internal/auth"
	"ledger/internal/ledger"
	"ledger/internal/log"
	"ledger/internal/middleware/ratelimit"
	"ledger/internal/middleware/security"
	"ledger/internal/middleware/trace"
	"ledger/internal/storage"
	"ledger/internal/summary"
	"ledger/internal/viewguard"
	appweb "ledger/web"
)

// SessionCookie carries the opaque session token.
const SessionCookie = "ledger_session"

// Options are the collaborators and knobs of a Server.
type Options struct {
	Ledger    *ledger.Service
	Summaries *summary.Aggregator
	Auth      auth.Provider
	// Sessions, when set, is subscribed to for audit logging.
	Sessions auth.Observer
	// Store is pinged by /readyz.
	Store storage.Pinger
	Logger *log.Logger

	RateLimitPerMinute int
	CookieSecure       bool
	// Development shows raw error text for unclassified auth failures.
	Development bool
}

type Server struct {
	http.Server
	templates *template.Template

	ledger    *ledger.Service
	summaries *summary.Aggregator
	auth      auth.Provider
	store     storage.Pinger
	guard     *viewguard.Guard
	logger    *log.Logger

	securityDetector *security.Detector
	rateLimiter      *ratelimit.Limiter
	traceMiddleware  *trace.Middleware

	cookieSecure bool
	development  bool
	now          func() time.Time
	appMetrics   appMetrics

	unsubscribe  func()
	shutdownOnce sync.Once
}

// NewServer configures routes, middleware and templates, returning a
// ready-to-run http.Server.
func NewServer(addr string, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	rpm := opts.RateLimitPerMinute
	if rpm <= 0 {
		rpm = ratelimit.DefaultConfig().RequestsPerMinute
	}

	s := &Server{
		ledger:           opts.Ledger,
		summaries:        opts.Summaries,
		auth:             opts.Auth,
		store:            opts.Store,
		guard:            viewguard.New(),
		logger:           logger.WithComponent(log.ComponentHTTP),
		securityDetector: security.NewDetector(),
		rateLimiter:      ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: rpm, CleanupInterval: 5 * time.Minute}),
		cookieSecure:     opts.CookieSecure,
		development:      opts.Development,
		now:              time.Now,
		appMetrics:       appMetrics{uptime: time.Now()},
		unsubscribe:      func() {},
	}
	s.traceMiddleware = trace.NewMiddleware(logger, s.securityDetector.ExtractClientIP)

	if opts.Sessions != nil {
		audit := logger.WithComponent(log.ComponentAuth)
		s.unsubscribe = opts.Sessions.OnChange(func(ev auth.SessionEvent) {
			audit.Info("Session event", "event", string(ev.Kind), log.FieldUserID, ev.UserID)
		})
	}

	t, err := template.New("").Funcs(templateFuncs()).ParseFS(appweb.TemplatesFS, "templates/*.html")
	if err != nil {
		s.logger.Warn("Failed parsing templates", log.FieldError, err, log.FieldComponent, log.ComponentTemplate)
		t = nil
	}
	s.templates = t

	mux := http.NewServeMux()

	if sub, err := fs.Sub(appweb.StaticFS, "static"); err == nil {
		static := http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
		mux.Handle("/static/", security.StaticAssetMiddleware(3600)(static))
	} else {
		s.logger.Warn("Failed to mount embedded static FS", log.FieldError, err)
	}

	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/readyz", s.handleReady)
	mux.HandleFunc("/metrics", s.handleMetrics)

	mux.HandleFunc("/{$}", s.handleIndex)
	mux.HandleFunc("/login", s.handleLogin)
	mux.HandleFunc("/register", s.handleRegister)
	mux.HandleFunc("/logout", s.handleLogout)
	mux.HandleFunc("/forgot-password", s.handleForgotPassword)
	mux.HandleFunc("/reset-password", s.handleResetPassword)

	mux.Handle("/profile", s.requireUser(s.handleProfile))
	mux.Handle("/dashboard", s.requireUser(s.handleDashboard))
	mux.Handle("/ui/summary", s.requireUser(s.handleSummaryPartial))
	mux.Handle("/expenses", s.requireUser(s.handleExpenses))
	mux.Handle("/ui/expenses", s.requireUser(s.handleExpenseListPartial))
	mux.Handle("/expenses/{id}", s.requireUser(s.handleExpense))

	s.Server = http.Server{
		Addr:              addr,
		Handler:           s.middleware(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// middleware wraps h so that headers are set first and POSTs are rate
// limited last, after the request has been traced.
func (s *Server) middleware(h http.Handler) http.Handler {
	limited := s.rateLimiter.Middleware(
		s.securityDetector.ExtractClientIP,
		func(r *http.Request) bool { return r.Method != http.MethodPost },
		s.onRateLimited,
	)(h)
	traced := s.traceMiddleware.Middleware(limited)
	detected := s.securityDetector.Middleware(s.logger)(traced)
	return security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(detected)
}

func (s *Server) onRateLimited(w http.ResponseWriter, r *http.Request) {
	log.FromContext(r.Context()).WarnContext(r.Context(), "Rate limit exceeded",
		log.FieldClientIP, s.securityDetector.ExtractClientIP(r),
		log.FieldMethod, r.Method,
		log.FieldPath, r.URL.Path)
	const msg = "Too many requests. Please try again later."
	ErrorResponse(http.StatusTooManyRequests, msg).TriggerErrorNotification(msg).Write(w)
}

// Shutdown gracefully shuts down the server and its background routines.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.unsubscribe()
		s.rateLimiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}
