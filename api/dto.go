/*
dto.go - JSON wire types for the HTTP boundary

PURPOSE:
  Keeps wire representations separate from engine types. Monetary
  amounts cross the wire as minor-unit integers, rates and hours as
  decimal strings - never floats.
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/payroll-engine/payroll"
)

// =============================================================================
// REQUESTS
// =============================================================================

type createPeriodRequest struct {
	Subject      string `json:"subject"`
	Jurisdiction string `json:"jurisdiction"`
	Start        string `json:"start"`
	End          string `json:"end"`
	PaymentDate  string `json:"payment_date"`

	HoursWorked      string  `json:"hours_worked"`
	OvertimeHours    string  `json:"overtime_hours"`
	Revenue          int64   `json:"revenue"`
	PerformanceScore *string `json:"performance_score"`
}

func (r createPeriodRequest) context() (payroll.ComputationContext, error) {
	ctx := payroll.ComputationContext{Revenue: payroll.Money(r.Revenue)}

	var err error
	if r.HoursWorked != "" {
		if ctx.HoursWorked, err = decimal.NewFromString(r.HoursWorked); err != nil {
			return ctx, err
		}
	}
	if r.OvertimeHours != "" {
		if ctx.OvertimeHours, err = decimal.NewFromString(r.OvertimeHours); err != nil {
			return ctx, err
		}
	}
	if r.PerformanceScore != nil {
		score, err := decimal.NewFromString(*r.PerformanceScore)
		if err != nil {
			return ctx, err
		}
		ctx.PerformanceScore = &score
	}
	return ctx, nil
}

type approveRequest struct {
	Approver string `json:"approver"`
}

type payRequest struct {
	PaymentReference string `json:"payment_reference"`
}

type payrunRequest struct {
	PeriodIDs []string `json:"period_ids"`
}

// =============================================================================
// RESPONSES
// =============================================================================

type componentDTO struct {
	Name   string `json:"name"`
	Kind   string `json:"kind"`
	Method string `json:"method"`
	Amount int64  `json:"amount"`
}

type taxLineDTO struct {
	Label  string `json:"label"`
	Bearer string `json:"bearer"`
	Basis  int64  `json:"basis"`
	Rate   string `json:"rate"`
	Amount int64  `json:"amount"`
}

type periodDTO struct {
	ID                 string         `json:"id"`
	Subject            string         `json:"subject"`
	Jurisdiction       string         `json:"jurisdiction"`
	Start              string         `json:"start"`
	End                string         `json:"end"`
	PaymentDate        string         `json:"payment_date"`
	Status             string         `json:"status"`
	CalculationVersion int            `json:"calculation_version"`
	Currency           string         `json:"currency,omitempty"`
	Items              []componentDTO `json:"items,omitempty"`
	TaxLines           []taxLineDTO   `json:"tax_lines,omitempty"`
	Gross              int64          `json:"gross"`
	IncomeTax          int64          `json:"income_tax"`
	EmployeeSocial     int64          `json:"employee_social"`
	EmployerSocial     int64          `json:"employer_social"`
	TotalDeductions    int64          `json:"total_deductions"`
	Net                int64          `json:"net"`
	TotalEmployerCost  int64          `json:"total_employer_cost"`
	ApprovedBy         string         `json:"approved_by,omitempty"`
	PaymentReference   string         `json:"payment_reference,omitempty"`
	ReversalOf         string         `json:"reversal_of,omitempty"`
}

func toPeriodDTO(p *payroll.PayrollPeriod) periodDTO {
	dto := periodDTO{
		ID:                 string(p.ID),
		Subject:            string(p.SubjectID),
		Jurisdiction:       string(p.JurisdictionID),
		Start:              p.Start.Format("2006-01-02"),
		End:                p.End.Format("2006-01-02"),
		PaymentDate:        p.PaymentDate.Format("2006-01-02"),
		Status:             string(p.Status),
		CalculationVersion: p.CalculationVersion,
		Currency:           p.Currency,
		Gross:              int64(p.GrossAmount),
		IncomeTax:          int64(p.Tax.IncomeTax),
		EmployeeSocial:     int64(p.Tax.EmployeeSocial),
		EmployerSocial:     int64(p.Tax.EmployerSocial),
		TotalDeductions:    int64(p.TotalDeductions),
		Net:                int64(p.NetAmount),
		TotalEmployerCost:  int64(p.TotalEmployerCost),
		ApprovedBy:         p.ApprovedBy,
		PaymentReference:   p.PaymentReference,
		ReversalOf:         string(p.ReversalOf),
	}
	for _, item := range p.Items {
		dto.Items = append(dto.Items, componentDTO{
			Name:   item.Name,
			Kind:   string(item.Kind),
			Method: string(item.Method),
			Amount: int64(item.Amount),
		})
	}
	for _, line := range p.Tax.Lines {
		dto.TaxLines = append(dto.TaxLines, taxLineDTO{
			Label:  line.Label,
			Bearer: string(line.Bearer),
			Basis:  int64(line.Basis),
			Rate:   line.Rate.String(),
			Amount: int64(line.Amount),
		})
	}
	return dto
}

type reportLineDTO struct {
	Subject           string   `json:"subject"`
	PeriodIDs         []string `json:"period_ids"`
	Gross             int64    `json:"gross"`
	IncomeTax         int64    `json:"income_tax"`
	EmployeeSocial    int64    `json:"employee_social"`
	EmployerSocial    int64    `json:"employer_social"`
	TotalDeductions   int64    `json:"total_deductions"`
	Net               int64    `json:"net"`
	TotalEmployerCost int64    `json:"total_employer_cost"`
}

type reportDTO struct {
	Jurisdiction      string          `json:"jurisdiction"`
	TaxYear           int             `json:"tax_year"`
	WindowStart       string          `json:"window_start"`
	WindowEnd         string          `json:"window_end"`
	GeneratedAt       time.Time       `json:"generated_at"`
	Lines             []reportLineDTO `json:"lines"`
	Gross             int64           `json:"gross"`
	IncomeTax         int64           `json:"income_tax"`
	EmployeeSocial    int64           `json:"employee_social"`
	EmployerSocial    int64           `json:"employer_social"`
	TotalDeductions   int64           `json:"total_deductions"`
	Net               int64           `json:"net"`
	TotalEmployerCost int64           `json:"total_employer_cost"`
}

func toReportDTO(r *payroll.ComplianceReport) reportDTO {
	dto := reportDTO{
		Jurisdiction:      string(r.JurisdictionID),
		TaxYear:           r.TaxYear,
		WindowStart:       r.Window.Start.Format("2006-01-02"),
		WindowEnd:         r.Window.End.Format("2006-01-02"),
		GeneratedAt:       r.GeneratedAt,
		Gross:             int64(r.Gross),
		IncomeTax:         int64(r.IncomeTax),
		EmployeeSocial:    int64(r.EmployeeSocial),
		EmployerSocial:    int64(r.EmployerSocial),
		TotalDeductions:   int64(r.TotalDeductions),
		Net:               int64(r.Net),
		TotalEmployerCost: int64(r.TotalEmployerCost),
	}
	for _, line := range r.Lines {
		ids := make([]string, len(line.PeriodIDs))
		for i, id := range line.PeriodIDs {
			ids[i] = string(id)
		}
		dto.Lines = append(dto.Lines, reportLineDTO{
			Subject:           string(line.SubjectID),
			PeriodIDs:         ids,
			Gross:             int64(line.Gross),
			IncomeTax:         int64(line.IncomeTax),
			EmployeeSocial:    int64(line.EmployeeSocial),
			EmployerSocial:    int64(line.EmployerSocial),
			TotalDeductions:   int64(line.TotalDeductions),
			Net:               int64(line.Net),
			TotalEmployerCost: int64(line.TotalEmployerCost),
		})
	}
	return dto
}

type errorResponse struct {
	Error string `json:"error"`
}
