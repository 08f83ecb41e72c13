package notify

import (
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"salon-pos/internal/config"
	"salon-pos/internal/pricing"
	"salon-pos/internal/sale"
	"salon-pos/internal/storage"
)

// Sender is the part of the bot API used for notifications.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

var _ Sender = (*tgbotapi.BotAPI)(nil)

type Telegram struct {
	sender Sender
	cfg    config.Admin
	logger *zap.Logger
}

var _ sale.Notifier = (*Telegram)(nil)

// NewTelegram logs in with the bot token. It returns nil without an error
// when notifications are not configured.
func NewTelegram(cfg config.Admin, logger *zap.Logger) (*Telegram, error) {
	if !cfg.Enabled() {
		logger.Warn("Telegram notifications disabled - no bot token configured")
		return nil, nil
	}
	bot, err := tgbotapi.NewBotAPI(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	logger.Info("Telegram notifier authorized", zap.String("bot", bot.Self.UserName))
	return NewWithSender(bot, cfg, logger), nil
}

func NewWithSender(sender Sender, cfg config.Admin, logger *zap.Logger) *Telegram {
	return &Telegram{sender: sender, cfg: cfg, logger: logger}
}

// NotifySale posts a short line to the channel and sends the details with
// an Excel sheet to the admin chat and every admin.
func (t *Telegram) NotifySale(ctx context.Context, s storage.Sale) {
	if t == nil {
		return
	}

	if t.cfg.ChannelID != 0 {
		msg := tgbotapi.NewMessage(t.cfg.ChannelID, FormatSaleShort(s))
		if _, err := t.sender.Send(msg); err != nil {
			t.logger.Error("Failed to send channel notification",
				zap.Int64("sale_id", s.ID),
				zap.Error(err))
		}
	}

	var report []byte
	if t.cfg.ChatID != 0 || len(t.cfg.IDs) > 0 {
		data, err := storage.ExportSaleToExcel(s)
		if err != nil {
			t.logger.Error("Failed to create Excel file for sale",
				zap.Int64("sale_id", s.ID),
				zap.Error(err))
		}
		report = data
	}

	if t.cfg.ChatID != 0 {
		t.sendAdminNotification(t.cfg.ChatID, s, report)
	}
	for _, adminID := range t.cfg.IDs {
		if adminID != 0 && adminID != t.cfg.ChatID {
			t.sendAdminNotification(adminID, s, report)
		}
	}
}

func (t *Telegram) sendAdminNotification(chatID int64, s storage.Sale, report []byte) {
	msg := tgbotapi.NewMessage(chatID, FormatSaleNotification(s))
	if _, err := t.sender.Send(msg); err != nil {
		t.logger.Error("Failed to send sale notification",
			zap.Int64("chat_id", chatID),
			zap.Error(err))
		return
	}

	if len(report) == 0 {
		return
	}
	doc := tgbotapi.NewDocument(chatID, tgbotapi.FileBytes{
		Name:  fmt.Sprintf("sale_%d.xlsx", s.ID),
		Bytes: report,
	})
	doc.Caption = fmt.Sprintf("📊 Детали продажи #%d", s.ID)
	if _, err := t.sender.Send(doc); err != nil {
		t.logger.Error("Failed to send Excel file to admin",
			zap.Int64("chat_id", chatID),
			zap.Int64("sale_id", s.ID),
			zap.Error(err))
	}
}

// FormatPhoneNumber prints +7XXXXXXXXXX as +7 (XXX) XXX-XX-XX.
func FormatPhoneNumber(phone string) string {
	if strings.HasPrefix(phone, "+7") && len(phone) == 12 {
		return fmt.Sprintf("%s (%s) %s-%s-%s",
			phone[:2],
			phone[2:5],
			phone[5:8],
			phone[8:10],
			phone[10:12])
	}
	return phone
}

func FormatSaleShort(s storage.Sale) string {
	return fmt.Sprintf("💳 Продажа #%d: %s, %s\nКлиент: %s",
		s.ID,
		packageTitle(s.Package),
		pricing.FormatRub(s.FinalCost),
		FormatPhoneNumber(s.ClientPhone),
	)
}

func FormatSaleNotification(s storage.Sale) string {
	var b strings.Builder
	fmt.Fprintf(&b, "💳 Новая продажа #%d\n\n", s.ID)
	fmt.Fprintf(&b, "Пакет: %s\n", packageTitle(s.Package))
	fmt.Fprintf(&b, "Абонемент: %s\n", s.SubscriptionTitle)
	b.WriteString("──────────────────\n")
	for _, svc := range s.Services.V {
		gift := ""
		if svc.IsFreeZone {
			gift = " 🎁"
		}
		fmt.Fprintf(&b, "- %s: %d x %d%s\n", svc.Title, svc.Quantity, svc.SessionCount, gift)
	}
	b.WriteString("──────────────────\n")
	fmt.Fprintf(&b, "Стоимость курса: %s\n", pricing.FormatRub(s.BaseCost))
	fmt.Fprintf(&b, "Экономия: %s\n", pricing.FormatRub(s.TotalSavings))
	fmt.Fprintf(&b, "Итого: %s\n", pricing.FormatRub(s.FinalCost))
	fmt.Fprintf(&b, "Первый взнос: %s\n", pricing.FormatRub(s.DownPayment))
	if s.InstallmentMonths > 0 {
		fmt.Fprintf(&b, "Рассрочка: %d мес. по %s\n", s.InstallmentMonths, pricing.FormatRub(s.MonthlyPayment))
	}
	b.WriteString("──────────────────\n")
	fmt.Fprintf(&b, "Клиент: %s\n", s.ClientName)
	fmt.Fprintf(&b, "Контакт: %s\n", FormatPhoneNumber(s.ClientPhone))
	fmt.Fprintf(&b, "Мастер: %s\n", s.MasterID)
	fmt.Fprintf(&b, "Дата: %s", s.CreatedAt.Format("02.01.2006 15:04"))
	return b.String()
}

func packageTitle(t pricing.PackageType) string {
	switch t {
	case pricing.PackageVIP:
		return "VIP"
	case pricing.PackageStandard:
		return "Стандарт"
	case pricing.PackageEconomy:
		return "Эконом"
	}
	return string(t)
}
