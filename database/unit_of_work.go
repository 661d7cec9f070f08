package database

import (
	"context"

	"gorm.io/gorm"
)

// UnitOfWork выполняет группу операций в одной транзакции базы данных.
// Либо фиксируются все изменения, либо ни одного.
type UnitOfWork struct {
	db *gorm.DB
}

// NewUnitOfWork создает новый экземпляр UnitOfWork
func NewUnitOfWork(db *gorm.DB) *UnitOfWork {
	return &UnitOfWork{db: db}
}

// Do выполняет fn в транзакции. Ошибка или паника внутри fn откатывают транзакцию.
// Если UnitOfWork привязан к внешней транзакции, создается точка сохранения.
func (u *UnitOfWork) Do(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return u.db.WithContext(ctx).Transaction(fn)
}

// Within возвращает UnitOfWork, работающий внутри уже открытой транзакции tx
func (u *UnitOfWork) Within(tx *gorm.DB) *UnitOfWork {
	return &UnitOfWork{db: tx}
}

// Reader возвращает сессию для чтения вне транзакции
func (u *UnitOfWork) Reader(ctx context.Context) *gorm.DB {
	return u.db.WithContext(ctx)
}
