package domain

import (
	"strings"
	"time"
)

// NotificationStatus — тег подавления повторных уведомлений о низком остатке.
type NotificationStatus string

const (
	NotificationStatusNone   NotificationStatus = "none"
	NotificationStatusSent3  NotificationStatus = "sent_3"
	NotificationStatusSent6  NotificationStatus = "sent_6"
	NotificationStatusSent12 NotificationStatus = "sent_12"
)

// Rank задаёт порядок эскалации тегов: none < sent_3 < sent_6 < sent_12.
func (s NotificationStatus) Rank() int {
	switch s {
	case NotificationStatusSent3:
		return 1
	case NotificationStatusSent6:
		return 2
	case NotificationStatusSent12:
		return 3
	default:
		return 0
	}
}

// Notification хранит состояние эскалации уведомлений по одному SKU продавца.
// Статус только повышается и никогда не сбрасывается.
type Notification struct {
	Seller    string
	SKU       string
	Status    NotificationStatus
	UpdatedAt time.Time
}

// NewNotification создаёт состояние без отправленных уведомлений.
func NewNotification(seller, sku string) Notification {
	return Notification{
		Seller: strings.TrimSpace(seller),
		SKU:    strings.TrimSpace(sku),
		Status: NotificationStatusNone,
	}
}

// CanEscalateTo сообщает, выше ли тег текущего статуса.
func (n Notification) CanEscalateTo(tag NotificationStatus) bool {
	return tag != n.Status && tag.Rank() > n.Status.Rank()
}

// LowStockNotification — уведомление о приближении товара к нулевому остатку.
type LowStockNotification struct {
	Seller             string  `json:"seller"`
	Name               string  `json:"name"`
	VendorCode         string  `json:"vendor_code"`
	SKU                string  `json:"sku"`
	Marketplace        string  `json:"mp"`
	URL                string  `json:"url_on_product"`
	SalesForPeriod     int     `json:"sales_for_period"`
	StockSum           int     `json:"stock_sum"`
	StockFBO           int     `json:"stock_fbo"`
	StockFBS           int     `json:"stock_fbs"`
	StatusProduct      string  `json:"status_product"`
	StatusNotification int     `json:"status_notification"`
	Ratio              float64 `json:"ratio"`
}
