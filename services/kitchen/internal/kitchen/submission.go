package kitchen

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// OrderSubmission is one terminal order as pushed by the point of sale. Lines
// is the complete current line set of the order.
type OrderSubmission struct {
	Reference       string           `json:"pos_reference" validate:"required,max=128"`
	Name            string           `json:"name" validate:"max=128"`
	ConfigID        ConfigID         `json:"config_id" validate:"required"`
	SessionID       SessionID        `json:"session_id" validate:"required"`
	TableName       string           `json:"table_name" validate:"max=64"`
	Floor           string           `json:"floor" validate:"max=64"`
	AmountTotal     float64          `json:"amount_total" validate:"gte=0"`
	AmountPaid      float64          `json:"amount_paid" validate:"gte=0"`
	AmountTax       float64          `json:"amount_tax" validate:"gte=0"`
	AmountReturn    float64          `json:"amount_return" validate:"gte=0"`
	Lines           []SubmissionLine `json:"lines" validate:"dive"`
	TargetScreenIDs []ScreenID       `json:"target_screen_ids"`
}

type SubmissionLine struct {
	ProductID   ProductID `json:"product_id" validate:"required"`
	ProductName string    `json:"full_product_name" validate:"max=256"`
	Qty         float64   `json:"qty" validate:"gt=0"`
	PriceUnit   float64   `json:"price_unit"`
	Note        string    `json:"note" validate:"max=512"`
	IsCooking   *bool     `json:"is_cooking"`
}

// Cooking defaults to true when the terminal does not say otherwise.
func (l SubmissionLine) Cooking() bool {
	return l.IsCooking == nil || *l.IsCooking
}

// SubmissionResult reports the outcome of one submission in a batch.
type SubmissionResult struct {
	Reference string     `json:"pos_reference"`
	OrderID   *OrderID   `json:"order_id,omitempty"`
	Created   bool       `json:"created"`
	IsCooking bool       `json:"is_cooking"`
	ScreenIDs []ScreenID `json:"screen_ids,omitempty"`
	Warnings  []string   `json:"warnings,omitempty"`
	Error     string     `json:"error,omitempty"`
	Err       error      `json:"-"`
}

// BatchResult lists the processed order ids; failed items only show up in Items.
type BatchResult struct {
	OrderIDs []OrderID          `json:"order_ids"`
	Items    []SubmissionResult `json:"items"`
}

func validateStruct(v interface{}) error {
	if err := validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s(%s)", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(fields, ", "))
		}
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return nil
}
