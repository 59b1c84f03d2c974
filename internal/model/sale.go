package model

import (
	"strings"
	"time"
	"unicode"
)

// SaleLead is a prospective installation recorded by a team member. It has
// no mirrors.
type SaleLead struct {
	SaleID       string     `json:"saleId"`
	CustomerName string     `json:"customerName"`
	Phone        FlexString `json:"phone"`
	Email        string     `json:"email,omitempty"`
	Address      string     `json:"address,omitempty"`
	LiftType     string     `json:"liftType,omitempty"`
	Floors       int        `json:"floors,omitempty"`
	Notes        string     `json:"notes,omitempty"`
	Status       string     `json:"status,omitempty"`
	CreatedAt    string     `json:"createdAt,omitempty"`
	CreatedBy    string     `json:"createdBy,omitempty"`
}

// SaleID derives a lead id from the customer name with all whitespace
// removed, the last five characters of the phone number and the date. Two
// leads for the same customer and phone on the same day share an id.
func SaleID(name, phone string, date time.Time) string {
	compact := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, name)

	p := []rune(strings.TrimSpace(phone))
	if len(p) > 5 {
		p = p[len(p)-5:]
	}
	return compact + string(p) + LocalDate(date)
}
