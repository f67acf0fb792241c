package ledger

import (
	"encoding/json"
	"fmt"
	"time"

	"ZakatSentinel/internal/hijri"
	"ZakatSentinel/internal/model"

	"github.com/shopspring/decimal"
)

// SchemaVersion is written into every serialized ledger. Readers accept any
// version up to this one; new fields must be optional.
const SchemaVersion = 1

type document struct {
	SchemaVersion int             `json:"schema_version"`
	Entries       []entryRecord   `json:"entries"`
	Payments      []paymentRecord `json:"payments,omitempty"`
}

type entryRecord struct {
	HijriYear     int              `json:"hijri_year"`
	HijriMonth    int              `json:"hijri_month"`
	HijriDay      int              `json:"hijri_day"`
	GregorianDate string           `json:"gregorian_date"`
	TotalBalance  *decimal.Decimal `json:"total_balance"`
	SourceID      string           `json:"source_id"`
}

type paymentRecord struct {
	GregorianDate string           `json:"gregorian_date"`
	Amount        *decimal.Decimal `json:"amount"`
}

// Serialize encodes the ledger as a versioned JSON document.
func Serialize(l *Ledger) ([]byte, error) {
	doc := document{
		SchemaVersion: SchemaVersion,
		Entries:       make([]entryRecord, 0, len(l.Entries)),
	}
	for _, e := range l.Entries {
		doc.Entries = append(doc.Entries, entryRecord{
			HijriYear:     e.Hijri.Year,
			HijriMonth:    e.Hijri.Month,
			HijriDay:      e.Hijri.Day,
			GregorianDate: e.Date.Format(time.DateOnly),
			TotalBalance:  &e.Balance,
			SourceID:      e.SourceID,
		})
	}
	for _, p := range l.Payments {
		doc.Payments = append(doc.Payments, paymentRecord{
			GregorianDate: p.Date.Format(time.DateOnly),
			Amount:        &p.Amount,
		})
	}
	return json.Marshal(doc)
}

// Deserialize decodes a ledger and validates it. Any structural problem is
// reported as model.ErrCorruptHistory.
func Deserialize(data []byte) (*Ledger, error) {
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrCorruptHistory, err)
	}
	if doc.SchemaVersion < 1 || doc.SchemaVersion > SchemaVersion {
		return nil, fmt.Errorf("%w: unsupported schema version %d", model.ErrCorruptHistory, doc.SchemaVersion)
	}

	l := New()
	seen := make(map[int]bool, len(doc.Entries))
	for i, rec := range doc.Entries {
		obs, err := rec.observation()
		if err != nil {
			return nil, fmt.Errorf("%w: entry %d: %v", model.ErrCorruptHistory, i, err)
		}
		if seen[obs.MonthIndex()] {
			return nil, fmt.Errorf("%w: entry %d: duplicate month %d-%02d", model.ErrCorruptHistory, i, obs.Hijri.Year, obs.Hijri.Month)
		}
		seen[obs.MonthIndex()] = true
		l.Entries = append(l.Entries, obs)
	}
	Sort(l.Entries)

	for i, rec := range doc.Payments {
		date, err := time.Parse(time.DateOnly, rec.GregorianDate)
		if err != nil {
			return nil, fmt.Errorf("%w: payment %d: %v", model.ErrCorruptHistory, i, err)
		}
		if rec.Amount == nil {
			return nil, fmt.Errorf("%w: payment %d: missing amount", model.ErrCorruptHistory, i)
		}
		l.RecordPayment(model.Payment{Date: date, Amount: *rec.Amount})
	}
	return l, nil
}

func (r entryRecord) observation() (model.Observation, error) {
	if r.TotalBalance == nil {
		return model.Observation{}, fmt.Errorf("missing total_balance")
	}
	if r.SourceID == "" {
		return model.Observation{}, fmt.Errorf("missing source_id")
	}
	date, err := time.Parse(time.DateOnly, r.GregorianDate)
	if err != nil {
		return model.Observation{}, err
	}
	obs, err := model.NewObservation(date, *r.TotalBalance, r.SourceID)
	if err != nil {
		return model.Observation{}, err
	}
	stored := hijri.Date{Year: r.HijriYear, Month: r.HijriMonth, Day: r.HijriDay}
	if stored != obs.Hijri {
		return model.Observation{}, fmt.Errorf("hijri date %v does not match %s (%v)", stored, r.GregorianDate, obs.Hijri)
	}
	return obs, nil
}
