package notify

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"salon-pos/internal/config"
	"salon-pos/internal/pricing"
	"salon-pos/internal/storage"
)

type recordingSender struct {
	sent []tgbotapi.Chattable
	fail bool
}

func (r *recordingSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	r.sent = append(r.sent, c)
	if r.fail {
		return tgbotapi.Message{}, errors.New("forbidden")
	}
	return tgbotapi.Message{}, nil
}

func sampleSale() storage.Sale {
	return storage.Sale{
		ID:                42,
		MasterID:          "master-1",
		SubscriptionTitle: "Абонемент №3512",
		Package:           pricing.PackageEconomy,
		BaseCost:          20000,
		FinalCost:         16000,
		TotalSavings:      4000,
		DownPayment:       5000,
		InstallmentMonths: 2,
		MonthlyPayment:    5500,
		Services: storage.NewJSON([]storage.SaleService{
			{ServiceID: 1, Title: "Подмышки", UnitPrice: 2000, Quantity: 1, SessionCount: 10},
			{ServiceID: 2, Title: "Голени", UnitPrice: 4000, Quantity: 1, SessionCount: 5, IsFreeZone: true},
		}),
		AppliedDiscounts: storage.NewJSON([]pricing.AppliedDiscount{{Type: pricing.DiscountPackage, Amount: 4000}}),
		CreatedAt:        time.Date(2026, 3, 1, 14, 30, 0, 0, time.UTC),
		ClientName:       "Анна",
		ClientPhone:      "+79991234567",
	}
}

func TestFormatPhoneNumber(t *testing.T) {
	assert.Equal(t, "+7 (999) 123-45-67", FormatPhoneNumber("+79991234567"))
	assert.Equal(t, "+375291234567", FormatPhoneNumber("+375291234567"))
}

func TestFormatSaleNotification(t *testing.T) {
	text := FormatSaleNotification(sampleSale())

	for _, want := range []string{
		"Новая продажа #42",
		"Пакет: Эконом",
		"Абонемент: Абонемент №3512",
		"- Подмышки: 1 x 10\n",
		"- Голени: 1 x 5 🎁",
		"Итого: 16 000 ₽",
		"Рассрочка: 2 мес. по 5 500 ₽",
		"Контакт: +7 (999) 123-45-67",
		"Дата: 01.03.2026 14:30",
	} {
		assert.Contains(t, text, want)
	}
}

func TestFormatSaleNotification_FullPayment(t *testing.T) {
	s := sampleSale()
	s.Package = pricing.PackageVIP
	s.InstallmentMonths = 0
	s.MonthlyPayment = 0

	text := FormatSaleNotification(s)
	assert.Contains(t, text, "Пакет: VIP")
	assert.NotContains(t, text, "Рассрочка")
}

func TestNotifySale_Targets(t *testing.T) {
	sender := &recordingSender{}
	n := NewWithSender(sender, config.Admin{
		ChannelID: -100,
		ChatID:    10,
		IDs:       []int64{10, 20, 0},
	}, zap.NewNop())

	n.NotifySale(context.Background(), sampleSale())

	// channel line, then message and workbook for chat 10 and admin 20
	require.Len(t, sender.sent, 5)

	short, ok := sender.sent[0].(tgbotapi.MessageConfig)
	require.True(t, ok)
	assert.Equal(t, int64(-100), short.ChatID)
	assert.True(t, strings.HasPrefix(short.Text, "💳 Продажа #42"))

	var docs []int64
	for _, c := range sender.sent[1:] {
		if doc, ok := c.(tgbotapi.DocumentConfig); ok {
			docs = append(docs, doc.ChatID)
			file, ok := doc.File.(tgbotapi.FileBytes)
			require.True(t, ok)
			assert.Equal(t, "sale_42.xlsx", file.Name)
			assert.NotEmpty(t, file.Bytes)
		}
	}
	assert.Equal(t, []int64{10, 20}, docs)
}

func TestNotifySale_SendFailureSkipsDocument(t *testing.T) {
	sender := &recordingSender{fail: true}
	n := NewWithSender(sender, config.Admin{ChatID: 10}, zap.NewNop())

	n.NotifySale(context.Background(), sampleSale())
	assert.Len(t, sender.sent, 1)
}

func TestNotifySale_NilNotifier(t *testing.T) {
	var n *Telegram
	n.NotifySale(context.Background(), sampleSale())
}
