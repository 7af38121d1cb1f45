package kafka

// EventType определяет тип события
type EventType string

const (
	EventTypeZeroStockAdvertised EventType = "stock.zero_stock_advertised"
	EventTypeLowStock            EventType = "stock.low_stock"
)

// Topics для Kafka
const (
	TopicZeroStockAdvertised = "stockwatch.zero-stock-advertised"
	TopicLowStock            = "stockwatch.low-stock"
)

// Kafka headers
const (
	HeaderEventType = "x-event-type"
	HeaderSeller    = "x-seller"
)

// Topics — имена топиков для событий сервиса.
type Topics struct {
	ZeroStockAdvertised string
	LowStock            string
}

// DefaultTopics возвращает топики по умолчанию.
func DefaultTopics() Topics {
	return Topics{
		ZeroStockAdvertised: TopicZeroStockAdvertised,
		LowStock:            TopicLowStock,
	}
}

func (t Topics) withDefaults() Topics {
	def := DefaultTopics()
	if t.ZeroStockAdvertised == "" {
		t.ZeroStockAdvertised = def.ZeroStockAdvertised
	}
	if t.LowStock == "" {
		t.LowStock = def.LowStock
	}
	return t
}

// Observer получает результат каждой публикации.
type Observer interface {
	RecordPublish(topic string, err error)
}
