package api

import "net/http"

func Router(h *Handler) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /v1/health", h.Health)
	mux.HandleFunc("GET /v1/status", h.Status)

	mux.HandleFunc("POST /v1/messages", h.SendMessage)
	mux.HandleFunc("POST /v1/messages/schedule", h.ScheduleMessage)
	mux.HandleFunc("GET /v1/messages/scheduled", h.ListScheduled)
	mux.HandleFunc("DELETE /v1/messages/scheduled/{id}", h.CancelScheduled)
	mux.HandleFunc("GET /v1/messages/history", h.MessageHistory)
	mux.HandleFunc("GET /v1/messages/stats", h.MessageStats)
	mux.HandleFunc("GET /v1/messages/queue", h.StoredQueue)
	mux.HandleFunc("POST /v1/messages/cleanup", h.CleanupMessages)

	mux.HandleFunc("GET /v1/templates", h.ListTemplates)
	mux.HandleFunc("POST /v1/templates", h.CreateTemplate)
	mux.HandleFunc("GET /v1/templates/{id}", h.GetTemplate)
	mux.HandleFunc("PUT /v1/templates/{id}", h.UpdateTemplate)
	mux.HandleFunc("DELETE /v1/templates/{id}", h.DeleteTemplate)

	mux.HandleFunc("GET /v1/queue", h.GetQueue)
	mux.HandleFunc("DELETE /v1/queue/{bucket}", h.ClearQueue)

	mux.HandleFunc("POST /v1/broadcasts", h.CreateBroadcast)
	mux.HandleFunc("GET /v1/broadcasts", h.ListBroadcasts)
	mux.HandleFunc("GET /v1/broadcasts/{id}", h.GetBroadcast)

	mux.HandleFunc("POST /v1/gateway/reload", h.ReloadGateway)

	mux.HandleFunc("GET /", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("wanotify"))
	})

	return mux
}
