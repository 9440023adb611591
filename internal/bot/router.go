package bot

import (
	"log/slog"
	"sync"

	telebot "gopkg.in/telebot.v3"

	"github.com/Proton-105/guildbank/internal/bot/handlers"
)

// Router dispatches slash commands to their handlers through the middleware chain.
type Router struct {
	mu          sync.RWMutex
	routes      map[string]route
	middlewares []handlers.Middleware
	log         *slog.Logger
}

type route struct {
	handler handlers.Handler
	chain   handlers.Handler
}

// NewRouter builds a Router with empty registries.
func NewRouter(log *slog.Logger) *Router {
	if log == nil {
		log = slog.Default()
	}

	return &Router{
		routes: make(map[string]route),
		log:    log,
	}
}

// RegisterCommand registers a handler for a bot command, e.g. "/send".
func (r *Router) RegisterCommand(cmd string, h handlers.Handler) {
	if h == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.routes[cmd] = route{handler: h, chain: wrap(h, r.middlewares)}
}

// Use appends a middleware to the chain. The first middleware added is the outermost.
func (r *Router) Use(mw handlers.Middleware) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.middlewares = append(r.middlewares, mw)
	for cmd, rt := range r.routes {
		r.routes[cmd] = route{handler: rt.handler, chain: wrap(rt.handler, r.middlewares)}
	}
}

// Has reports whether cmd has a handler.
func (r *Router) Has(cmd string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.routes[cmd]
	return ok
}

// Route runs the handler for the command in the update. Plain text and
// unknown commands are ignored.
func (r *Router) Route(c telebot.Context) error {
	if c == nil {
		return nil
	}

	cmd, _ := handlers.ParseCommand(c.Text())
	if cmd == "" {
		return nil
	}

	r.mu.RLock()
	rt, ok := r.routes[cmd]
	r.mu.RUnlock()
	if !ok {
		r.log.Debug("no command handler found", slog.String("command", cmd))
		return nil
	}

	return rt.chain(c)
}

func wrap(h handlers.Handler, middlewares []handlers.Middleware) handlers.Handler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		if next := middlewares[i](h); next != nil {
			h = next
		}
	}
	return h
}
