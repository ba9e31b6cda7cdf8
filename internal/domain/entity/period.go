package entity

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"time"
)

var periodPattern = regexp.MustCompile(`^\d{4}-\d{2}$`)

// Period is the year-month a measurement covers, written as YYYY-MM.
type Period struct {
	Year  int
	Month time.Month
}

var monthNames = [...]string{
	"Janeiro", "Fevereiro", "Março", "Abril", "Maio", "Junho",
	"Julho", "Agosto", "Setembro", "Outubro", "Novembro", "Dezembro",
}

// ParsePeriod parses a YYYY-MM token. Years must fall in 2000..2100.
func ParsePeriod(s string) (Period, error) {
	if !periodPattern.MatchString(s) {
		return Period{}, NewValidationError("period", "must use the format YYYY-MM (e.g. 2025-02)")
	}

	year, _ := strconv.Atoi(s[:4])
	month, _ := strconv.Atoi(s[5:])

	if month < 1 || month > 12 {
		return Period{}, NewValidationError("period", "month must be between 01 and 12")
	}
	if year < 2000 || year > 2100 {
		return Period{}, NewValidationError("period", "year must be between 2000 and 2100")
	}

	return Period{Year: year, Month: time.Month(month)}, nil
}

// MustParsePeriod is ParsePeriod for literals known to be valid.
func MustParsePeriod(s string) Period {
	p, err := ParsePeriod(s)
	if err != nil {
		panic(err)
	}
	return p
}

func (p Period) String() string {
	return fmt.Sprintf("%04d-%02d", p.Year, int(p.Month))
}

// IsZero reports whether p was never set.
func (p Period) IsZero() bool {
	return p.Year == 0 && p.Month == 0
}

// Before reports whether p is chronologically earlier than o.
func (p Period) Before(o Period) bool {
	if p.Year != o.Year {
		return p.Year < o.Year
	}
	return p.Month < o.Month
}

// Label renders the period for people, e.g. "Março 2025".
func (p Period) Label() string {
	if p.Month < time.January || p.Month > time.December {
		return p.String()
	}
	return fmt.Sprintf("%s %d", monthNames[p.Month-1], p.Year)
}

// CheckReferences verifies that a caller-supplied month/year pair agrees with p.
func (p Period) CheckReferences(month, year int) error {
	if month < 1 || month > 12 {
		return NewValidationError("month_reference", "must be between 1 and 12")
	}
	if year < 2000 {
		return NewValidationError("year_reference", "must be 2000 or later")
	}
	if month != int(p.Month) || year != p.Year {
		return fmt.Errorf("%w: period %s, got month %d year %d", ErrPeriodMismatch, p, month, year)
	}
	return nil
}

func (p Period) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.String())
}

func (p *Period) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return NewValidationError("period", "must be a string")
	}
	parsed, err := ParsePeriod(s)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}
