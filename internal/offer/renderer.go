package offer

import (
	"bytes"
	_ "embed"
	"fmt"

	"github.com/go-pdf/fpdf"

	"salon-pos/internal/pricing"
	"salon-pos/internal/storage"
)

// Document is everything printed on a contract.
type Document struct {
	Offer    storage.Offer
	Services []storage.SaleService
	Company  string
}

type Renderer struct {
	fontPath string
}

// NewRenderer builds a renderer. fontPath overrides the embedded DejaVu
// Sans Condensed face; both must be UTF-8 TTF fonts with Cyrillic glyphs.
func NewRenderer(fontPath string) *Renderer {
	return &Renderer{fontPath: fontPath}
}

const fontFamily = "Contract"

//go:embed fonts/DejaVuSansCondensed.ttf
var regularFont []byte

//go:embed fonts/DejaVuSansCondensed-Bold.ttf
var boldFont []byte

var discountTitles = map[pricing.DiscountKind]string{
	pricing.DiscountPackage:      "Скидка пакета",
	pricing.DiscountBulk:         "Скидка за длинный курс",
	pricing.DiscountCertificate:  "Сертификат",
	pricing.DiscountCorrection:   "Корректировка",
	pricing.DiscountGiftSessions: "Подарочные сеансы (не вычитается)",
}

func (r *Renderer) Render(doc Document) ([]byte, error) {
	pdf := fpdf.New("P", "mm", "A4", "")

	family := fontFamily
	if r.fontPath != "" {
		pdf.AddUTF8Font(family, "", r.fontPath)
		pdf.AddUTF8Font(family, "B", r.fontPath)
	} else {
		pdf.AddUTF8FontFromBytes(family, "", regularFont)
		pdf.AddUTF8FontFromBytes(family, "B", boldFont)
	}
	if err := pdf.Error(); err != nil {
		return nil, fmt.Errorf("load font: %w", err)
	}

	o := doc.Offer
	pdf.SetTitle("Коммерческое предложение "+o.Number, true)
	pdf.AddPage()

	pdf.SetFont(family, "B", 16)
	pdf.CellFormat(0, 10, fmt.Sprintf("Коммерческое предложение № %s", o.Number), "", 1, "C", false, 0, "")
	pdf.SetFont(family, "", 10)
	if doc.Company != "" {
		pdf.CellFormat(0, 6, doc.Company, "", 1, "C", false, 0, "")
	}
	pdf.CellFormat(0, 6, fmt.Sprintf("Действительно до %s", o.ExpiresAt.Format("02.01.2006")), "", 1, "C", false, 0, "")
	pdf.Ln(4)

	section := func(title string) {
		pdf.Ln(2)
		pdf.SetFont(family, "B", 12)
		pdf.CellFormat(0, 8, title, "", 1, "L", false, 0, "")
		pdf.SetFont(family, "", 10)
	}
	row := func(label, value string) {
		pdf.CellFormat(90, 6, label, "", 0, "L", false, 0, "")
		pdf.CellFormat(0, 6, value, "", 1, "R", false, 0, "")
	}

	section("Клиент")
	row("Имя", o.ClientName)
	row("Телефон", o.ClientPhone)
	if o.ClientEmail != "" {
		row("E-mail", o.ClientEmail)
	}

	if len(doc.Services) > 0 {
		section("Состав курса")
		pdf.SetFont(family, "B", 9)
		pdf.CellFormat(80, 6, "Зона", "1", 0, "L", false, 0, "")
		pdf.CellFormat(25, 6, "Цена", "1", 0, "R", false, 0, "")
		pdf.CellFormat(20, 6, "Кол-во", "1", 0, "R", false, 0, "")
		pdf.CellFormat(20, 6, "Сеансов", "1", 0, "R", false, 0, "")
		pdf.CellFormat(0, 6, "Сумма", "1", 1, "R", false, 0, "")
		pdf.SetFont(family, "", 9)
		for _, s := range doc.Services {
			title := s.Title
			total := pricing.FormatRub(s.UnitPrice * int64(s.Quantity*s.SessionCount))
			if s.IsFreeZone {
				title += " (в подарок)"
				total = pricing.FormatRub(0)
			}
			pdf.CellFormat(80, 6, title, "1", 0, "L", false, 0, "")
			pdf.CellFormat(25, 6, pricing.FormatRub(s.UnitPrice), "1", 0, "R", false, 0, "")
			pdf.CellFormat(20, 6, fmt.Sprint(s.Quantity), "1", 0, "R", false, 0, "")
			pdf.CellFormat(20, 6, fmt.Sprint(s.SessionCount), "1", 0, "R", false, 0, "")
			pdf.CellFormat(0, 6, total, "1", 1, "R", false, 0, "")
		}
	}

	section(fmt.Sprintf("Пакет «%s»", o.PackageName))
	row("Стоимость курса", pricing.FormatRub(o.BaseCost))
	for _, d := range o.AppliedDiscounts.V {
		title, ok := discountTitles[d.Type]
		if !ok {
			title = string(d.Type)
		}
		row(title, "-"+pricing.FormatRub(d.Amount))
	}
	row("Экономия", pricing.FormatRub(o.TotalSavings))
	pdf.SetFont(family, "B", 11)
	row("Итого к оплате", pricing.FormatRub(o.FinalCost))
	pdf.SetFont(family, "", 10)

	perks := o.Perks.V
	if perks.GiftSessions > 0 || perks.BonusAccountAmount > 0 || len(perks.FreeZones) > 0 {
		section("Подарки")
		if perks.GiftSessions > 0 {
			row(fmt.Sprintf("Подарочные сеансы: %d", perks.GiftSessions), pricing.FormatRub(perks.GiftSessionsValue))
		}
		if perks.BonusAccountAmount > 0 {
			row("Бонусный счёт", pricing.FormatRub(perks.BonusAccountAmount))
		}
		for _, z := range perks.FreeZones {
			row(fmt.Sprintf("Зона в подарок: %s x %d", z.Title, z.Quantity), pricing.FormatRub(z.PricePerProcedure*int64(z.Quantity)))
		}
	}

	section("График платежей")
	for _, p := range o.PaymentSchedule.V {
		label := fmt.Sprintf("Платёж %d", p.Number)
		if p.IsDown {
			label = "Первоначальный взнос"
		}
		row(fmt.Sprintf("%s, %s", label, p.DueAt.Format("02.01.2006")), pricing.FormatRub(p.Amount))
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}
