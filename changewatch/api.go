package changewatch

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"golang.org/x/crypto/bcrypt"

	"github.com/hazyhaar/pagewatch/changewatch/change"
)

// Routes returns the control API:
//
//	GET  /health  liveness, never authenticated
//	GET  /status  Status
//	POST /start   start with the JSON body merged over the stored settings
//	POST /stop    stop
//
// When Control.TokenHash is set, every route but /health requires
// "Authorization: Bearer <token>" matching the bcrypt hash.
func (m *Monitor) Routes() http.Handler {
	r := chi.NewRouter()
	if origins := m.cfg.Control.CORSOrigins; len(origins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: origins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Authorization", "Content-Type"},
			MaxAge:         300,
		}))
	}

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Group(func(r chi.Router) {
		r.Use(m.Authorize)

		r.Get("/status", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, m.Status())
		})

		r.Post("/start", func(w http.ResponseWriter, r *http.Request) {
			mc, err := m.Settings(r.Context())
			if err != nil {
				writeError(w, http.StatusInternalServerError, err)
				return
			}
			var req startRequest
			if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
				writeError(w, http.StatusBadRequest, err)
				return
			}
			req.apply(&mc)

			if err := m.Start(r.Context(), mc); err != nil {
				code := http.StatusInternalServerError
				if errors.Is(err, ErrInvalidConfig) {
					code = http.StatusBadRequest
				}
				writeError(w, code, err)
				return
			}
			writeJSON(w, http.StatusOK, m.Status())
		})

		r.Post("/stop", func(w http.ResponseWriter, r *http.Request) {
			if err := m.Stop(r.Context()); err != nil {
				writeError(w, http.StatusInternalServerError, err)
				return
			}
			writeJSON(w, http.StatusOK, m.Status())
		})
	})
	return r
}

// Authorize enforces the bearer token configured in Control.TokenHash. With
// no hash configured it returns next unchanged.
func (m *Monitor) Authorize(next http.Handler) http.Handler {
	hash := m.cfg.Control.TokenHash
	if hash == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || bcrypt.CompareHashAndPassword([]byte(hash), []byte(token)) != nil {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// startRequest overrides stored settings field by field. Keywords may be a
// JSON array or a comma-separated string.
type startRequest struct {
	EndpointURL         *string       `json:"endpointUrl"`
	Scope               *change.Scope `json:"scope"`
	TargetSelector      *string       `json:"targetSelector"`
	Keywords            *keywordList  `json:"keywords"`
	PollIntervalSeconds *int          `json:"pollIntervalSeconds"`
}

func (r startRequest) apply(mc *MonitorConfig) {
	if r.EndpointURL != nil {
		mc.EndpointURL = *r.EndpointURL
	}
	if r.Scope != nil {
		mc.Scope = *r.Scope
	}
	if r.TargetSelector != nil {
		mc.TargetSelector = *r.TargetSelector
	}
	if r.Keywords != nil {
		mc.Keywords = *r.Keywords
	}
	if r.PollIntervalSeconds != nil {
		mc.PollIntervalSeconds = *r.PollIntervalSeconds
	}
}

type keywordList []string

func (k *keywordList) UnmarshalJSON(b []byte) error {
	var csv string
	if err := json.Unmarshal(b, &csv); err == nil {
		*k = ParseKeywords(csv)
		return nil
	}
	var list []string
	if err := json.Unmarshal(b, &list); err != nil {
		return errors.New("keywords: want a string or an array of strings")
	}
	*k = list
	return nil
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}
