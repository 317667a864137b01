package http

import (
	"net/http"

	"umrah-backend/internal/handlers"
	"umrah-backend/internal/middleware"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func NewRouter(
	paymentHandler *handlers.PaymentHandler,
	commissionHandler *handlers.CommissionHandler,
	payoutHandler *handlers.PayoutHandler,
	reminderHandler *handlers.ReminderHandler,
	webhookHandler *handlers.WebhookHandler,
	healthHandler *handlers.HealthHandler,
	authMiddleware *middleware.AuthMiddleware,
) *mux.Router {
	r := mux.NewRouter()

	// Public routes
	r.HandleFunc("/health", healthHandler.BasicHealth).Methods("GET")
	r.HandleFunc("/health/ready", healthHandler.ReadinessHealth).Methods("GET")
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")

	// Protected API routes - Payments
	paymentsAPI := r.PathPrefix("/api/payments").Subrouter()
	paymentsAPI.Use(authMiddleware.Authenticate)
	paymentsAPI.HandleFunc("", authMiddleware.RequireRole("operator", "admin")(http.HandlerFunc(paymentHandler.CreatePayment)).ServeHTTP).Methods("POST")
	paymentsAPI.HandleFunc("/{id}", paymentHandler.GetPayment).Methods("GET")
	paymentsAPI.HandleFunc("/{id}/cancel", authMiddleware.RequireRole("operator", "admin")(http.HandlerFunc(paymentHandler.CancelPayment)).ServeHTTP).Methods("POST")
	paymentsAPI.HandleFunc("/{id}/refund", authMiddleware.RequireRole("operator", "admin")(http.HandlerFunc(paymentHandler.RefundPayment)).ServeHTTP).Methods("POST")
	paymentsAPI.HandleFunc("/{id}/receipt", paymentHandler.GetReceipt).Methods("GET")

	// Protected API routes - Jamaah payment history
	jamaahAPI := r.PathPrefix("/api/jamaah").Subrouter()
	jamaahAPI.Use(authMiddleware.Authenticate)
	jamaahAPI.HandleFunc("/{jamaah_id}/payments", paymentHandler.ListPaymentsByJamaah).Methods("GET")
	jamaahAPI.HandleFunc("/{jamaah_id}/schedules", paymentHandler.ListSchedulesByJamaah).Methods("GET")

	// Protected API routes - Commissions (review is a finance concern)
	commissionsAPI := r.PathPrefix("/api/commissions").Subrouter()
	commissionsAPI.Use(authMiddleware.Authenticate)
	commissionsAPI.HandleFunc("/{id}/approve", authMiddleware.RequireRole("finance", "admin")(http.HandlerFunc(commissionHandler.ApproveCommission)).ServeHTTP).Methods("POST")
	commissionsAPI.HandleFunc("/agent/{agent_id}", commissionHandler.ListByAgent).Methods("GET")
	commissionsAPI.HandleFunc("/redistribute/{payment_id}", authMiddleware.RequireRole("admin")(http.HandlerFunc(commissionHandler.Redistribute)).ServeHTTP).Methods("POST")

	// Protected API routes - Commission rule
	rulesAPI := r.PathPrefix("/api/commission-rules").Subrouter()
	rulesAPI.Use(authMiddleware.Authenticate)
	rulesAPI.HandleFunc("", commissionHandler.GetRule).Methods("GET")
	rulesAPI.HandleFunc("", authMiddleware.RequireRole("admin")(http.HandlerFunc(commissionHandler.SetRule)).ServeHTTP).Methods("POST")

	// Protected API routes - Payouts
	payoutsAPI := r.PathPrefix("/api/payouts").Subrouter()
	payoutsAPI.Use(authMiddleware.Authenticate)
	payoutsAPI.HandleFunc("", authMiddleware.RequireRole("finance", "admin")(http.HandlerFunc(payoutHandler.CreatePayout)).ServeHTTP).Methods("POST")
	payoutsAPI.HandleFunc("", payoutHandler.ListPayouts).Methods("GET")
	payoutsAPI.HandleFunc("/{id}", payoutHandler.GetPayout).Methods("GET")
	payoutsAPI.HandleFunc("/{id}/summary", payoutHandler.GetPayoutSummary).Methods("GET")

	// Protected API routes - Reminders (the external sender polls and acks)
	remindersAPI := r.PathPrefix("/api/reminders").Subrouter()
	remindersAPI.Use(authMiddleware.Authenticate)
	remindersAPI.HandleFunc("/run", authMiddleware.RequireRole("admin")(http.HandlerFunc(reminderHandler.RunScan)).ServeHTTP).Methods("POST")
	remindersAPI.HandleFunc("/pending", reminderHandler.ListPending).Methods("GET")
	remindersAPI.HandleFunc("/{id}/sent", reminderHandler.AckSent).Methods("POST")
	remindersAPI.HandleFunc("/{id}/failed", reminderHandler.AckFailed).Methods("POST")

	// Protected API routes - Webhook subscriptions
	webhooksAPI := r.PathPrefix("/api/webhooks").Subrouter()
	webhooksAPI.Use(authMiddleware.Authenticate)
	webhooksAPI.HandleFunc("/subscriptions", authMiddleware.RequireRole("admin")(http.HandlerFunc(webhookHandler.CreateSubscription)).ServeHTTP).Methods("POST")
	webhooksAPI.HandleFunc("/subscriptions", webhookHandler.ListSubscriptions).Methods("GET")
	webhooksAPI.HandleFunc("/subscriptions/{id}/deliveries", webhookHandler.ListDeliveries).Methods("GET")

	return r
}
