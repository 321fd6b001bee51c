package domain

import "time"

// StockRepository описывает требования к хранилищу каталога.
type StockRepository interface {
	// Get возвращает позицию каталога или ErrStockItemNotFound.
	Get(id string) (StockItem, error)
	// List возвращает все позиции каталога.
	List() ([]StockItem, error)
	// Upsert создаёт или обновляет позицию (админ-операция), увеличивая версию.
	Upsert(item StockItem) (StockItem, error)
}

// OrderRepository описывает требования к хранилищу заказов.
// Операции со стоком объединены с операциями над заказом, потому что
// корректность под конкурентной нагрузкой обеспечивает транзакция
// хранилища, а не блокировки в памяти приложения.
type OrderRepository interface {
	// CreateReservingStock атомарно создаёт заказ с позициями и списывает
	// сток по каждой складской позиции. При нехватке остатка возвращает
	// InsufficientStockError, и ни одна запись не создаётся.
	CreateReservingStock(order Order) error
	// Get возвращает заказ по идентификатору или ErrOrderNotFound.
	Get(id string) (Order, error)
	// ListByUser возвращает заказы пользователя с ограничением на количество.
	ListByUser(userID string, limit int) ([]Order, error)
	// TransitionStatus применяет CAS-переход from→to. Если текущий статус
	// не равен from, возвращает ErrStatusConflict — так повторная доставка
	// события шлюза становится no-op.
	TransitionStatus(orderID string, from, to OrderStatus) (Order, error)
	// CancelRestocking атомарно переводит PENDING-заказ в CANCELLED и
	// возвращает сток по каждой складской позиции. Для заказа не в PENDING
	// возвращает ErrStatusConflict без каких-либо изменений.
	CancelRestocking(orderID string) (Order, error)
}

// ConfigurationRepository описывает требования к хранилищу сборок.
type ConfigurationRepository interface {
	// Create сохраняет новую сборку вместе с позициями.
	Create(cfg Configuration) error
	// Get возвращает сборку или ErrConfigurationNotFound.
	Get(id string) (Configuration, error)
	// Save применяет обновления с учётом optimistic locking по Version.
	Save(cfg Configuration) error
	// ListPublic возвращает опубликованные сборки для витрины.
	ListPublic(limit int) ([]Configuration, error)
}

// AuditRepository хранит append-only журнал аудита.
type AuditRepository interface {
	Append(entry AuditEntry) error
	ListByEntity(entityType, entityID string) ([]AuditEntry, error)
}

// WebhookEventRepository хранит уже обработанные события платёжного шлюза.
type WebhookEventRepository interface {
	// Seen отвечает, доводилось ли событие до конца раньше. Проверка
	// выполняется до применения события: запись появляется только после
	// успешного применения, иначе сбой хранилища навсегда терял бы событие.
	Seen(eventID string) (bool, error)
	// MarkProcessed фиксирует событие и возвращает true, если оно видится
	// впервые. Вставка атомарна: при конкурентной доставке одного события
	// в два инстанса запись получает ровно один из них.
	MarkProcessed(event ProcessedEvent) (bool, error)
	// DeleteProcessedBefore удаляет записи старше cutoff порциями не больше
	// limit и возвращает число удалённых. Шлюз не повторяет доставку дольше
	// окна ретраев, поэтому старые записи для дедупликации не нужны.
	DeleteProcessedBefore(cutoff time.Time, limit int) (int, error)
}
