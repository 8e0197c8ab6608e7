package catalog

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/dentaldesk/clinic/internal/clinic"
)

var ErrNotFound = errors.New("procedure not found")

// Procedure is a billable catalog entry with English and Arabic labels.
type Procedure struct {
	ID            uuid.UUID       `json:"id"`
	NameEn        string          `json:"name_en"`
	NameAr        string          `json:"name_ar"`
	Price         decimal.Decimal `json:"price"`
	DescriptionEn string          `json:"description_en,omitempty"`
	DescriptionAr string          `json:"description_ar,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

func (p Procedure) MarshalJSON() ([]byte, error) {
	type alias Procedure
	return json.Marshal(struct {
		alias
		Price string `json:"price"`
	}{alias: alias(p), Price: clinic.Money(p.Price)})
}

// Core returns the pricing view used when charging.
func (p Procedure) Core() clinic.Procedure {
	return clinic.Procedure{ID: p.ID.String(), Price: p.Price}
}

// ProcedureUpdate carries a partial update; nil fields are unchanged.
type ProcedureUpdate struct {
	NameEn        *string          `json:"name_en"`
	NameAr        *string          `json:"name_ar"`
	Price         *decimal.Decimal `json:"price"`
	DescriptionEn *string          `json:"description_en"`
	DescriptionAr *string          `json:"description_ar"`
}

// DefaultProcedures is the starter catalog for a new clinic.
func DefaultProcedures() []Procedure {
	p := func(en, ar string, price int64, descEn, descAr string) Procedure {
		return Procedure{NameEn: en, NameAr: ar, Price: decimal.NewFromInt(price), DescriptionEn: descEn, DescriptionAr: descAr}
	}
	return []Procedure{
		p("Dental Cleaning", "تنظيف الأسنان", 100, "Professional teeth cleaning", "تنظيف احترافي للأسنان"),
		p("Tooth Filling", "حشو الأسنان", 150, "Cavity filling", "حشو تسوس الأسنان"),
		p("Tooth Extraction", "خلع الأسنان", 200, "Tooth removal", "إزالة السن"),
		p("Root Canal", "علاج الجذور", 500, "Root canal treatment", "علاج قناة الجذر"),
		p("Dental Crown", "تاج الأسنان", 800, "Tooth crown placement", "تركيب تاج الأسنان"),
		p("Teeth Whitening", "تبييض الأسنان", 300, "Professional whitening", "تبييض احترافي"),
		p("Dental Implant", "زراعة الأسنان", 2000, "Tooth implant surgery", "جراحة زراعة الأسنان"),
		p("Orthodontic Braces", "تقويم الأسنان", 3000, "Braces installation", "تركيب التقويم"),
		p("X-Ray", "أشعة سينية", 50, "Dental X-ray imaging", "تصوير الأسنان بالأشعة"),
		p("Consultation", "استشارة", 75, "Initial consultation", "استشارة أولية"),
	}
}
