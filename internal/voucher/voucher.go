// Package voucher renders a one-page PDF confirmation for a booking, with a
// QR code that points back at the booking.
package voucher

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jung-kurt/gofpdf"
	qrcode "github.com/skip2/go-qrcode"

	"github.com/iliyamo/tourism-booking/internal/model"
)

// Renderer writes vouchers into Dir.  BaseURL is encoded in the QR code
// followed by the booking id.
type Renderer struct {
	Dir     string
	BaseURL string
}

// NewRenderer returns a Renderer that writes to dir.
func NewRenderer(dir, baseURL string) *Renderer {
	if baseURL == "" {
		baseURL = "http://localhost:8080/v1/bookings/"
	}
	return &Renderer{Dir: dir, BaseURL: baseURL}
}

// FileName is the name a booking's voucher is stored under.
func FileName(bookingID int64) string {
	return fmt.Sprintf("booking-%d.pdf", bookingID)
}

// Render writes the voucher for ev and returns its path.
func (r *Renderer) Render(ev model.BookingEvent) (string, error) {
	body, err := r.PDF(ev)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(r.Dir, 0o755); err != nil {
		return "", fmt.Errorf("create voucher dir: %w", err)
	}
	path := filepath.Join(r.Dir, FileName(ev.BookingID))
	if err := os.WriteFile(path, body, 0o644); err != nil {
		return "", fmt.Errorf("write voucher: %w", err)
	}
	return path, nil
}

// PDF builds the voucher in memory.
func (r *Renderer) PDF(ev model.BookingEvent) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(15, 15, 15)
	pdf.SetAutoPageBreak(false, 0)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 22)
	pdf.Cell(0, 15, "BOOKING VOUCHER")
	pdf.Ln(20)

	pdf.SetDrawColor(220, 220, 220)
	pdf.Line(15, pdf.GetY(), 195, pdf.GetY())
	pdf.Ln(8)

	yStart := pdf.GetY()
	pdf.SetFillColor(245, 245, 245)
	pdf.Rect(15, yStart, 120, 55, "F")

	pdf.SetXY(20, yStart+7)
	pdf.SetFont("Helvetica", "B", 14)
	pdf.Cell(0, 8, "SUMMARY")
	pdf.Ln(10)
	pdf.SetFont("Helvetica", "", 12)
	line := func(format string, args ...any) {
		pdf.SetX(20)
		pdf.Cell(0, 8, fmt.Sprintf(format, args...))
		pdf.Ln(6)
	}
	line("Booking: #%d", ev.BookingID)
	line("Status: %s", ev.Status)
	line("Guest: %s", ev.Guest.Name)
	line("Quantity: %d", ev.Quantity)
	line("Total: %s", FormatCents(ev.TotalPriceCents))

	qr, err := qrcode.Encode(fmt.Sprintf("%s%d", r.BaseURL, ev.BookingID), qrcode.Medium, 256)
	if err != nil {
		return nil, fmt.Errorf("encode qr: %w", err)
	}
	pdf.RegisterImageOptionsReader("qr", gofpdf.ImageOptions{ImageType: "png"}, bytes.NewReader(qr))
	pdf.ImageOptions("qr", 145, yStart+5, 45, 0, false, gofpdf.ImageOptions{ImageType: "png"}, 0, "")

	pdf.SetY(yStart + 63)
	sectionTitle(pdf, "STAY")
	pdf.SetFont("Helvetica", "", 12)
	name := ev.ResourceName
	if name == "" {
		name = ev.ResourceID
	}
	pdf.Cell(0, 8, fmt.Sprintf("%s: %s", kindLabel(ev.Kind), name))
	pdf.Ln(6)
	pdf.Cell(0, 8, fmt.Sprintf("From %s to %s (%d night(s))",
		model.FormatDate(ev.Range.Start), model.FormatDate(ev.Range.End), ev.Range.Nights()))
	pdf.Ln(10)

	sectionTitle(pdf, "CONTACT")
	pdf.SetFont("Helvetica", "", 12)
	pdf.Cell(0, 8, fmt.Sprintf("Email: %s", ev.Guest.Email))
	pdf.Ln(6)
	if ev.Guest.Phone != "" {
		pdf.Cell(0, 8, fmt.Sprintf("Phone: %s", ev.Guest.Phone))
		pdf.Ln(6)
	}

	pdf.SetDrawColor(200, 200, 200)
	pdf.Line(15, 285, 195, 285)
	pdf.SetY(288)
	pdf.SetFont("Helvetica", "I", 10)
	pdf.CellFormat(0, 8, "Present this voucher at check-in.", "", 0, "C", false, 0, "")

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func sectionTitle(pdf *gofpdf.Fpdf, title string) {
	pdf.SetFont("Helvetica", "B", 14)
	pdf.SetFillColor(240, 240, 240)
	pdf.CellFormat(0, 9, title, "", 1, "L", true, 0, "")
	pdf.Ln(3)
}

func kindLabel(k model.ResourceKind) string {
	if k == model.KindHotel {
		return "Hotel"
	}
	return "Trip"
}

// FormatCents renders an amount in minor units as a decimal string.
func FormatCents(c int64) string {
	sign := ""
	if c < 0 {
		sign, c = "-", -c
	}
	return fmt.Sprintf("%s%d.%02d", sign, c/100, c%100)
}
