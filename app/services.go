package app

import (
	"bankledger/config"
	"bankledger/controllers"
	"bankledger/database"
	"bankledger/services"
	"bankledger/utils"

	"github.com/gorilla/mux"
	"go.uber.org/dig"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Injector вызывает функцию, подставляя зависимости из контейнера
type Injector func(function interface{}) error

// BootstrapServices настраивает DI-контейнер со всеми сервисами приложения.
// Соединение с базой открывается лениво, при первом Invoke, которому оно нужно.
func BootstrapServices(cfg *config.Config) Injector {
	c := dig.New()

	provide(c, func() *config.Config { return cfg })

	provide(c, func() (*zap.Logger, error) {
		return utils.NewLogger(cfg.Log.Mode, cfg.Log.Dir)
	})

	provide(c, func(logger *zap.Logger) (*database.Database, error) {
		return database.NewDatabase(cfg, logger)
	})

	provide(c, func(db *database.Database) *gorm.DB { return db.GetDB() })

	provide(c, database.NewUnitOfWork)

	provide(c, func() services.Notifier {
		return services.NewEmailService(cfg)
	})

	provide(c, func(uow *database.UnitOfWork, notifier services.Notifier, logger *zap.Logger) (*services.BankService, error) {
		threshold, err := cfg.NotifyThreshold()
		if err != nil {
			return nil, err
		}
		return services.NewBankService(uow, notifier, logger, services.Options{
			DefaultCurrency:    cfg.Ledger.DefaultCurrency,
			RecentTransactions: cfg.Ledger.RecentTransactions,
			NotifyThreshold:    threshold,
		}), nil
	})

	provide(c, func(uow *database.UnitOfWork, logger *zap.Logger) *services.ReconciliationService {
		return services.NewReconciliationService(uow, logger, cfg.Ledger.ReconcileInterval)
	})

	provide(c, services.NewUserService)
	provide(c, controllers.NewAuthController)
	provide(c, controllers.NewBankController)
	provide(c, controllers.NewTransactionController)

	provide(c, func(
		logger *zap.Logger,
		auth *controllers.AuthController,
		bank *controllers.BankController,
		transactions *controllers.TransactionController,
	) *mux.Router {
		return controllers.NewRouter(cfg, logger, auth, bank, transactions)
	})

	return func(function interface{}) error {
		return c.Invoke(function)
	}
}

// provide регистрирует конструктор; ошибка возможна только при неверной сигнатуре
func provide(c *dig.Container, constructor interface{}) {
	if err := c.Provide(constructor); err != nil {
		panic(err)
	}
}
