// Package httpapi hosts the HTTP surface of the API binary: request
// decoding, route wiring, and the translation of domain errors into the
// shared error envelope.
package httpapi

import (
	"github.com/go-chi/chi/v5"
	"github.com/nats-io/nats.go"

	"github.com/example/studytube/internal/ai"
	"github.com/example/studytube/internal/auth"
	"github.com/example/studytube/internal/billing"
	"github.com/example/studytube/internal/catalog"
	"github.com/example/studytube/internal/notes"
	"github.com/example/studytube/internal/platform/analytics"
	platformauth "github.com/example/studytube/internal/platform/auth"
	"github.com/example/studytube/internal/platform/signing"
	"github.com/example/studytube/internal/player"
	"github.com/example/studytube/internal/progress"
	"github.com/example/studytube/internal/search"
)

// Deps carries everything the route tree needs. Nil services disable
// their routes, so a deployment without an AI gateway or a search
// backend simply doesn't mount those endpoints.
type Deps struct {
	Auth     *auth.Service
	Verifier platformauth.JWTVerifier

	Catalog  catalog.Store
	Progress progress.Store
	Notes    notes.Store

	Player *player.Manager

	Billing *billing.Service
	AI      *ai.Service
	Search  *search.Service

	JetStream nats.JetStreamContext
	Analytics *analytics.Publisher

	ShareSigner  *signing.Signer
	ShareBaseURL string
}

// Mount attaches every API route under /api/v1.
func Mount(r chi.Router, d Deps) {
	requireUser := platformauth.RequireUser(d.Verifier)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", Register(d.Auth))
			r.Post("/login", Login(d.Auth))
			r.Post("/refresh", Refresh(d.Auth))
			r.Post("/logout", Logout(d.Auth))
			r.With(requireUser).Get("/me", Me(d.Auth))
		})

		// Shared links authenticate via signature, not JWT.
		r.Get("/shared/playlists/{playlist_id}", SharedPlaylist(d.Catalog, d.ShareSigner))

		if d.Billing != nil {
			r.Get("/billing/plans", ListPlans(d.Billing))
		}

		r.Group(func(r chi.Router) {
			r.Use(requireUser)

			r.Route("/playlists", func(r chi.Router) {
				r.Post("/", CreatePlaylist(d.Catalog, d.JetStream))
				r.Get("/", ListPlaylists(d.Catalog))
				r.Get("/{playlist_id}", GetPlaylist(d.Catalog))
				r.Patch("/{playlist_id}", UpdatePlaylist(d.Catalog))
				r.Delete("/{playlist_id}", DeletePlaylist(d.Catalog))
				r.Put("/{playlist_id}/order", SaveOrder(d.Catalog))
				r.Post("/{playlist_id}/share", SharePlaylist(d.Catalog, d.ShareSigner, d.ShareBaseURL))
				r.Get("/{playlist_id}/progress", PlaylistProgress(d.Progress, d.Catalog))
			})

			r.Route("/sessions", func(r chi.Router) {
				ph := &PlayerHandlers{
					Manager:   d.Player,
					Catalog:   d.Catalog,
					Progress:  d.Progress,
					Analytics: d.Analytics,
				}
				r.Post("/", ph.Open)
				r.Route("/{session_id}", func(r chi.Router) {
					r.Get("/", ph.Snapshot)
					r.Delete("/", ph.Close)
					r.Post("/events", ph.Event)
					r.Post("/status", ph.Status)
					r.Get("/directives", ph.Directives)
					r.Post("/next", ph.Next)
					r.Post("/previous", ph.Previous)
					r.Post("/shuffle", ph.Shuffle)
					r.Post("/move", ph.Move)
					r.Post("/autoplay", ph.Autoplay)
					r.Post("/complete", ph.ToggleComplete)
					r.Post("/save", ph.Save)
				})
			})

			r.Route("/progress", func(r chi.Router) {
				r.Get("/recent", ContinueWatching(d.Progress, d.Catalog))
				r.Post("/beacon", Beacon(d.JetStream))
			})

			r.Route("/videos/{video_id}", func(r chi.Router) {
				r.Post("/notes", CreateNote(d.Notes))
				r.Get("/notes", ListNotes(d.Notes))
				if d.AI != nil {
					r.Post("/summary", Summarize(d.AI))
					r.Get("/summary", GetSummary(d.AI))
				}
			})
			r.Patch("/notes/{note_id}", UpdateNote(d.Notes))
			r.Delete("/notes/{note_id}", DeleteNote(d.Notes))

			if d.Search != nil {
				r.Get("/search", SearchVideos(d.Search, d.Analytics))
			}

			if d.Billing != nil {
				r.Route("/billing", func(r chi.Router) {
					r.Post("/payments", SubmitPayment(d.Billing))
					r.Get("/payments", MyPaymentRequests(d.Billing))
					r.Get("/subscription", MySubscription(d.Billing))
				})
				r.Route("/admin/billing", func(r chi.Router) {
					r.Use(platformauth.RequireAdmin)
					r.Get("/pending", PendingPayments(d.Billing))
					r.Post("/{request_id}/approve", ApprovePayment(d.Billing))
					r.Post("/{request_id}/reject", RejectPayment(d.Billing))
				})
			}
		})
	})
}
