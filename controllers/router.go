package controllers

import (
	"net/http"

	"bankledger/config"
	"bankledger/middleware"
	"bankledger/utils"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// NewRouter собирает маршруты API
func NewRouter(
	cfg *config.Config,
	logger *zap.Logger,
	authController *AuthController,
	bankController *BankController,
	transactionController *TransactionController,
) *mux.Router {
	proxies, err := cfg.TrustedProxyNets()
	if err != nil {
		logger.Warn("ignoring trusted proxies", zap.Error(err))
		proxies = nil
	}

	router := mux.NewRouter()
	router.Use(middleware.Recovery(logger))
	router.Use(middleware.Logging(logger.Named("http"), proxies))
	router.Use(middleware.CORS(cfg.CORS.AllowedOrigins))
	router.Use(middleware.RateLimit(utils.NewRateLimiter(cfg.RateLimit.Requests, cfg.RateLimit.Window), proxies))

	// Preflight-запросы: middleware срабатывает только на совпавшем маршруте, поэтому OPTIONS принимается для любого пути
	router.Methods(http.MethodOptions).HandlerFunc(Preflight)

	// Публичные маршруты
	router.HandleFunc("/health", Health).Methods(http.MethodGet)
	router.HandleFunc("/api/auth/signUp", authController.SignUp).Methods(http.MethodPost)
	router.HandleFunc("/api/auth/signIn", authController.SignIn).Methods(http.MethodPost)

	// Защищенные маршруты
	protected := router.PathPrefix("/api").Subrouter()
	protected.Use(middleware.AuthMiddleware([]byte(cfg.JWT.SecretKey)))

	// Реестр счетов
	protected.HandleFunc("/accounts", bankController.CreateAccount).Methods(http.MethodPost)
	protected.HandleFunc("/accounts", bankController.GetAccounts).Methods(http.MethodGet)
	protected.HandleFunc("/accounts/{id}", bankController.GetAccount).Methods(http.MethodGet)
	protected.HandleFunc("/accounts/{id}", bankController.UpdateAccount).Methods(http.MethodPatch)
	protected.HandleFunc("/accounts/{id}/balance", bankController.GetBalance).Methods(http.MethodGet)
	protected.HandleFunc("/accounts/{id}/statement", bankController.GetStatement).Methods(http.MethodGet)
	protected.HandleFunc("/accounts/{id}/reconciliation", bankController.GetReconciliation).Methods(http.MethodGet)
	protected.HandleFunc("/accounts/{id}/deposit", bankController.Deposit).Methods(http.MethodPost)
	protected.HandleFunc("/accounts/{id}/withdraw", bankController.Withdraw).Methods(http.MethodPost)

	// Переводы и журнал проводок
	protected.HandleFunc("/transfers", transactionController.Transfer).Methods(http.MethodPost)
	protected.HandleFunc("/transactions", transactionController.ListTransactions).Methods(http.MethodGet)
	protected.HandleFunc("/transactions/{id}", transactionController.GetTransaction).Methods(http.MethodGet)
	protected.HandleFunc("/transactions/{id}", transactionController.DeleteTransaction).Methods(http.MethodDelete)

	protected.HandleFunc("/metrics", Metrics).Methods(http.MethodGet)

	return router
}

// Preflight отвечает на OPTIONS; заголовки выставляет middleware.CORS
func Preflight(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

// Health сообщает, что сервис запущен
func Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Metrics отдает снимок внутренних метрик
func Metrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, utils.GetMetrics().GetMetricsSnapshot())
}
