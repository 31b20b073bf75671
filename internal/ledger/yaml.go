package ledger

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"flusso/internal/core"
)

// Document is the on-disk YAML ledger. Kinds and frequencies are matched
// case-insensitively. Dates and unknown names are kept as written: a bad
// value only disqualifies its own entry when the projection runs. Amounts
// must parse at load time.
type Document struct {
	Accounts     []AccountDTO     `yaml:"accounts"`
	Transactions []TransactionDTO `yaml:"transactions"`
	Recurring    []RuleDTO        `yaml:"recurring"`
}

type AccountDTO struct {
	Name    string `yaml:"name"`
	Balance string `yaml:"balance"`
}

type TransactionDTO struct {
	Date        string `yaml:"date"`
	Description string `yaml:"description"`
	Amount      string `yaml:"amount"`
	Kind        string `yaml:"kind"`
}

type RuleDTO struct {
	Description string `yaml:"description"`
	Every       string `yaml:"every"`
	Amount      string `yaml:"amount"`
	Kind        string `yaml:"kind"`
	StartDate   string `yaml:"start_date"`
	EndDate     string `yaml:"end_date,omitempty"`
	DayOfWeek   int    `yaml:"day_of_week,omitempty"`
	DayOfMonth  int    `yaml:"day_of_month,omitempty"`
}

// Decode reads a YAML ledger document.
func Decode(r io.Reader) (*Document, error) {
	var doc Document
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil && err != io.EOF {
		return nil, fmt.Errorf("decode ledger: %w", err)
	}
	return &doc, nil
}

// DecodeFile reads the YAML ledger at path.
func DecodeFile(path string) (*Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	defer f.Close()
	return Decode(f)
}

// Contents is a ledger document mapped onto domain types.
type Contents struct {
	Accounts     []core.Account
	Transactions []core.Transaction
	Rules        []core.RecurringRule
}

// ToDomain maps the document onto domain types.
func (d *Document) ToDomain() (Contents, error) {
	var c Contents
	for i, a := range d.Accounts {
		cents, err := core.ParseSignedAmount(a.Balance)
		if err != nil {
			return Contents{}, fmt.Errorf("accounts[%d] %q: balance: %w", i, a.Name, err)
		}
		c.Accounts = append(c.Accounts, core.Account{Name: a.Name, Balance: core.Money{Cents: cents}})
	}
	for i, t := range d.Transactions {
		cents, err := core.ParseAmount(t.Amount)
		if err != nil {
			return Contents{}, fmt.Errorf("transactions[%d]: amount: %w", i, err)
		}
		c.Transactions = append(c.Transactions, core.Transaction{
			Date:        core.DateText(t.Date),
			Description: t.Description,
			Amount:      core.Money{Cents: cents},
			Kind:        core.KindOf(t.Kind),
		})
	}
	for i, r := range d.Recurring {
		cents, err := core.ParseAmount(r.Amount)
		if err != nil {
			return Contents{}, fmt.Errorf("recurring[%d]: amount: %w", i, err)
		}
		every, _ := core.ParseRepetition(r.Every)
		rule := core.RecurringRule{
			Description: r.Description,
			Every:       every,
			Amount:      core.Money{Cents: cents},
			Kind:        core.KindOf(r.Kind),
			StartDate:   core.DateText(r.StartDate),
			DayOfWeek:   r.DayOfWeek,
			DayOfMonth:  r.DayOfMonth,
		}
		if r.EndDate != "" {
			rule.EndDate = core.DateText(r.EndDate)
		}
		c.Rules = append(c.Rules, rule)
	}
	return c, nil
}

// FromDomain builds a document from domain values, the inverse of ToDomain.
func FromDomain(c Contents) *Document {
	d := &Document{}
	for _, a := range c.Accounts {
		d.Accounts = append(d.Accounts, AccountDTO{Name: a.Name, Balance: a.Balance.String()})
	}
	for _, t := range c.Transactions {
		d.Transactions = append(d.Transactions, TransactionDTO{
			Date:        t.Date.String(),
			Description: t.Description,
			Amount:      t.Amount.String(),
			Kind:        string(t.Kind),
		})
	}
	for _, r := range c.Rules {
		d.Recurring = append(d.Recurring, RuleDTO{
			Description: r.Description,
			Every:       string(r.Every),
			Amount:      r.Amount.String(),
			Kind:        string(r.Kind),
			StartDate:   r.StartDate.String(),
			EndDate:     r.EndDate.String(),
			DayOfWeek:   r.DayOfWeek,
			DayOfMonth:  r.DayOfMonth,
		})
	}
	return d
}

// Encode writes d as YAML.
func (d *Document) Encode(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(d); err != nil {
		return fmt.Errorf("encode ledger: %w", err)
	}
	return enc.Close()
}
