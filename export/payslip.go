/*
payslip.go - PDF payslips for finalized payroll records

PURPOSE:
  Renders one FinalizedPayroll as a single-page A4 payslip: employee block,
  earnings, the seven deduction components, and net pay. Only finalized
  records are rendered, so a payslip always matches what was paid.

FORMATTING:
  Amounts are grouped and rounded to cents with a locale-aware printer
  (English by default): 1234567.5 -> "KES 1,234,567.50". Names are passed
  through the core-font translator so accented characters survive.

USAGE:
  r := export.NewPayslipRenderer("Acme Ltd", "KES")
  err := r.Render(w, record)
*/
package export

import (
	"fmt"
	"io"

	"github.com/jung-kurt/gofpdf"
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/warp/payroll-engine/payroll"
)

const (
	labelWidth  = 110.0
	amountWidth = 70.0
	rowHeight   = 7.0
)

type PayslipRenderer struct {
	Company  string
	Currency string
	printer  *message.Printer
}

func NewPayslipRenderer(company, currency string) *PayslipRenderer {
	return NewPayslipRendererFor(company, currency, language.English)
}

// NewPayslipRendererFor formats amounts for the given locale.
func NewPayslipRendererFor(company, currency string, tag language.Tag) *PayslipRenderer {
	return &PayslipRenderer{
		Company:  company,
		Currency: currency,
		printer:  message.NewPrinter(tag),
	}
}

// FormatAmount renders d with thousands grouping and two decimals.
// The float conversion happens after rounding to cents, for display only.
func (r *PayslipRenderer) FormatAmount(d decimal.Decimal) string {
	amount := r.printer.Sprintf("%.2f", d.Round(2).InexactFloat64())
	if r.Currency == "" {
		return amount
	}
	return r.Currency + " " + amount
}

// Render writes the payslip PDF for rec to w.
func (r *PayslipRenderer) Render(w io.Writer, rec payroll.FinalizedPayroll) error {
	calc := rec.Calculation

	pdf := gofpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetTitle(fmt.Sprintf("Payslip %s %s", calc.EmployeeID, rec.Period.Key()), true)
	pdf.SetCreator(r.Company, true)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 16)
	pdf.Cell(0, 10, tr(r.Company))
	pdf.Ln(9)
	pdf.SetFont("Helvetica", "B", 13)
	pdf.Cell(0, 8, "Payslip")
	pdf.Ln(12)

	pdf.SetFont("Helvetica", "", 11)
	employee := calc.Name
	if calc.EmployeeNumber != "" {
		employee = fmt.Sprintf("%s (%s)", calc.Name, calc.EmployeeNumber)
	}
	pdf.Cell(0, rowHeight, tr("Employee: "+employee))
	pdf.Ln(rowHeight)
	if calc.Department != "" || calc.Position != "" {
		pdf.Cell(0, rowHeight, tr(fmt.Sprintf("Department: %s    Position: %s", calc.Department, calc.Position)))
		pdf.Ln(rowHeight)
	}
	pdf.Cell(0, rowHeight, fmt.Sprintf("Period: %s to %s", rec.Period.Start, rec.Period.End))
	pdf.Ln(rowHeight)
	pdf.Cell(0, rowHeight, fmt.Sprintf("Finalized: %s", rec.FinalizedAt.Format("2006-01-02 15:04")))
	pdf.Ln(rowHeight + 4)

	r.section(pdf, "Earnings")
	r.row(pdf, "Hours worked", calc.HoursWorked.StringFixed(2))
	if !calc.OvertimeHours.IsZero() {
		r.row(pdf, "Overtime hours", calc.OvertimeHours.StringFixed(2))
	}
	r.row(pdf, "Hourly rate", r.FormatAmount(calc.HourlyRate))
	r.totalRow(pdf, "Gross pay", r.FormatAmount(calc.GrossPay))
	pdf.Ln(4)

	r.section(pdf, "Deductions")
	r.row(pdf, "PAYE", r.FormatAmount(calc.PAYE))
	r.row(pdf, "NSSF", r.FormatAmount(calc.NSSF))
	r.row(pdf, "SHIF", r.FormatAmount(calc.SHIF))
	r.row(pdf, "Housing levy", r.FormatAmount(calc.HousingLevy))
	if !calc.EwaDeductions.IsZero() {
		r.row(pdf, "Earned wage access", r.FormatAmount(calc.EwaDeductions))
	}
	if !calc.LoanDeductions.IsZero() {
		r.row(pdf, "Loan repayment", r.FormatAmount(calc.LoanDeductions))
	}
	if !calc.OtherDeductions.IsZero() {
		r.row(pdf, "Other deductions", r.FormatAmount(calc.OtherDeductions))
	}
	r.totalRow(pdf, "Total deductions", r.FormatAmount(calc.TotalDeductions))
	pdf.Ln(4)

	pdf.SetFont("Helvetica", "B", 13)
	pdf.CellFormat(labelWidth, 10, "Net pay", "T", 0, "L", false, 0, "")
	pdf.CellFormat(amountWidth, 10, r.FormatAmount(calc.NetPay), "T", 1, "R", false, 0, "")

	if calc.IsEdited && calc.OriginalNetPay != nil {
		pdf.Ln(2)
		pdf.SetFont("Helvetica", "I", 9)
		pdf.Cell(0, 6, "Manually adjusted. Calculated net pay was "+r.FormatAmount(*calc.OriginalNetPay)+".")
		pdf.Ln(6)
	}
	if rec.Note != "" {
		pdf.SetFont("Helvetica", "I", 9)
		pdf.MultiCell(0, 5, tr("Note: "+rec.Note), "", "L", false)
	}

	if err := pdf.Error(); err != nil {
		return fmt.Errorf("render payslip: %w", err)
	}
	return pdf.Output(w)
}

func (r *PayslipRenderer) section(pdf *gofpdf.Fpdf, title string) {
	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 8, title)
	pdf.Ln(8)
	pdf.SetFont("Helvetica", "", 11)
}

func (r *PayslipRenderer) row(pdf *gofpdf.Fpdf, label, value string) {
	pdf.CellFormat(labelWidth, rowHeight, label, "", 0, "L", false, 0, "")
	pdf.CellFormat(amountWidth, rowHeight, value, "", 1, "R", false, 0, "")
}

func (r *PayslipRenderer) totalRow(pdf *gofpdf.Fpdf, label, value string) {
	pdf.SetFont("Helvetica", "B", 11)
	pdf.CellFormat(labelWidth, rowHeight, label, "T", 0, "L", false, 0, "")
	pdf.CellFormat(amountWidth, rowHeight, value, "T", 1, "R", false, 0, "")
	pdf.SetFont("Helvetica", "", 11)
}
