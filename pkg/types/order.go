package types

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// RecordKind distinguishes commodity orders from blood requests
type RecordKind string

const (
	KindCommodity         RecordKind = "commodity"
	KindBiologicalRequest RecordKind = "biological-request"
)

// Default statuses assigned at creation time
const (
	StatusPlaced    = "Placed"
	StatusRequested = "Requested"
)

// CreatedAtLayout is the ISO-8601 layout used for Record.CreatedAt.
// Fixed width so that lexicographic order matches chronological order.
const CreatedAtLayout = "2006-01-02T15:04:05.000Z"

// Contact holds the submitter's contact details
type Contact struct {
	Name    string `json:"name" validate:"required"`
	Phone   string `json:"phone" validate:"required"`
	Address string `json:"address,omitempty"`
	City    string `json:"city,omitempty"`
}

// LineItem is one line of a commodity order
type LineItem struct {
	SKU   string  `json:"sku" validate:"required"`
	Name  string  `json:"name"`
	Price float64 `json:"price" validate:"gte=0"`
	Qty   int     `json:"qty" validate:"gte=1"`
}

// BloodRequest is the payload of a biological request
type BloodRequest struct {
	BloodType   string `json:"bloodType" validate:"required"`
	Units       string `json:"units"`
	Urgency     string `json:"urgency"`
	Hospital    string `json:"hospital,omitempty"`
	PatientName string `json:"patientName,omitempty"`
}

// Record is the persisted representation of one order or blood request
type Record struct {
	ID           string        `json:"id"`
	CreatedAt    string        `json:"createdAt"`
	Kind         RecordKind    `json:"kind"`
	Status       string        `json:"status"`
	Contact      Contact       `json:"contact"`
	Note         string        `json:"note,omitempty"`
	Items        []LineItem    `json:"items,omitempty"`
	Total        float64       `json:"total,omitempty"`
	BloodRequest *BloodRequest `json:"bloodRequest,omitempty"`
}

// Draft is a record as handed to submission, before an id is assigned
type Draft struct {
	Kind         RecordKind    `json:"kind"`
	Status       string        `json:"status,omitempty"`
	Contact      Contact       `json:"contact"`
	Note         string        `json:"note,omitempty"`
	Items        []LineItem    `json:"items,omitempty"`
	Total        float64       `json:"total,omitempty"`
	BloodRequest *BloodRequest `json:"bloodRequest,omitempty"`
}

// ComputeTotal sums price*qty over items rounded to 2 decimal places
func ComputeTotal(items []LineItem) float64 {
	sum := decimal.Zero
	for _, item := range items {
		line := decimal.NewFromFloat(item.Price).Mul(decimal.NewFromInt(int64(item.Qty)))
		sum = sum.Add(line)
	}
	return sum.Round(2).InexactFloat64()
}

// FormatCreatedAt renders t in the layout used for Record.CreatedAt
func FormatCreatedAt(t time.Time) string {
	return t.UTC().Format(CreatedAtLayout)
}

// Normalize fills defaults a draft may omit: status per kind, a frozen
// total for commodity orders and default blood request fields.
func (d Draft) Normalize() Draft {
	out := d
	switch out.Kind {
	case KindCommodity:
		if out.Status == "" {
			out.Status = StatusPlaced
		}
		out.Items = append([]LineItem(nil), d.Items...)
		out.Total = ComputeTotal(out.Items)
		out.BloodRequest = nil
	case KindBiologicalRequest:
		if out.Status == "" {
			out.Status = StatusRequested
		}
		out.Items = nil
		out.Total = 0
		var br BloodRequest
		if d.BloodRequest != nil {
			br = *d.BloodRequest
		}
		if br.Units == "" {
			br.Units = "1"
		}
		if br.Urgency == "" {
			br.Urgency = "Normal"
		}
		out.BloodRequest = &br
	}
	return out
}

// ToRecord materializes the draft into a record with the given id and time
func (d Draft) ToRecord(id string, createdAt time.Time) Record {
	n := d.Normalize()
	return Record{
		ID:           id,
		CreatedAt:    FormatCreatedAt(createdAt),
		Kind:         n.Kind,
		Status:       n.Status,
		Contact:      n.Contact,
		Note:         n.Note,
		Items:        n.Items,
		Total:        n.Total,
		BloodRequest: n.BloodRequest,
	}
}

// MarshalJSON writes total for every commodity record, a zero total
// included, and never for blood requests.
func (r Record) MarshalJSON() ([]byte, error) {
	type plain Record
	return json.Marshal(struct {
		plain
		Total *float64 `json:"total,omitempty"`
	}{plain: plain(r), Total: commodityTotal(r.Kind, r.Total)})
}

// MarshalJSON follows Record.MarshalJSON
func (d Draft) MarshalJSON() ([]byte, error) {
	type plain Draft
	return json.Marshal(struct {
		plain
		Total *float64 `json:"total,omitempty"`
	}{plain: plain(d), Total: commodityTotal(d.Kind, d.Total)})
}

func commodityTotal(kind RecordKind, total float64) *float64 {
	if kind != KindCommodity {
		return nil
	}
	return &total
}

// Origin identifies which store served or created a record
type Origin string

const (
	OriginRemote Origin = "remote"
	OriginLocal  Origin = "local"
)
