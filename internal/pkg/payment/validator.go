package payment

import (
	"bytes"
	"encoding/json"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"

	"github.com/ManuelReschke/PayFox/app/models"
	"github.com/ManuelReschke/PayFox/internal/pkg/apperror"
)

// maxAmount keeps amounts inside a decimal(18,2) column.
var maxAmount = decimal.New(1, 16)

// CreateRequest is a normalized create call. Raw holds the request body
// verbatim, unknown fields included.
type CreateRequest struct {
	PaymentID     string          `json:"paymentId" validate:"omitempty,max=191,printascii"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency" validate:"len=3,alpha"`
	PaymentMethod string          `json:"paymentMethod" validate:"omitempty,max=50"`
	ReturnURL     string          `json:"returnUrl" validate:"omitempty,max=500"`
	Customer      Customer        `json:"customer"`
	OrderID       string          `json:"orderId" validate:"omitempty,max=191"`

	BillingAddress json.RawMessage `json:"-"`
	Vendor         json.RawMessage `json:"-"`
	OrderDetails   json.RawMessage `json:"-"`
	Raw            json.RawMessage `json:"-"`

	// Order is the mirror of orderDetails when it carries an order id.
	Order *models.PlayfoodOrder `json:"-"`
}

type Customer struct {
	Email string `json:"email" validate:"omitempty,max=200"`
	Phone string `json:"phone" validate:"omitempty,max=32"`
	Name  string `json:"name" validate:"omitempty,max=200"`
}

// Validator turns raw create bodies into CreateRequests. Only amount is
// required; everything else is optional and passed through.
type Validator struct {
	validate        *validator.Validate
	defaultCurrency string
}

func NewValidator(defaultCurrency string) *Validator {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	if defaultCurrency == "" {
		defaultCurrency = "MZN"
	}
	return &Validator{validate: v, defaultCurrency: strings.ToUpper(defaultCurrency)}
}

// Parse validates body and applies defaults. Errors are *apperror.ValidationError.
func (v *Validator) Parse(body []byte) (*CreateRequest, error) {
	body = bytes.TrimSpace(body)
	var fields map[string]json.RawMessage
	if len(body) == 0 || json.Unmarshal(body, &fields) != nil || fields == nil {
		return nil, apperror.NewValidationError("body", "request body must be a JSON object")
	}

	req := &CreateRequest{Raw: json.RawMessage(body)}
	errs := map[string]string{}

	rawAmount, ok := pick(fields, "amount")
	switch {
	case !ok:
		errs["amount"] = "amount is required"
	default:
		amount, err := parseAmount(rawAmount)
		if err != nil {
			errs["amount"] = "amount must be a number"
		} else if amount = amount.Round(2); !amount.IsPositive() {
			errs["amount"] = "amount must be greater than 0"
		} else if amount.GreaterThanOrEqual(maxAmount) {
			errs["amount"] = "amount is too large"
		} else {
			req.Amount = amount
		}
	}

	req.PaymentID = stringField(fields, "paymentId", "payment_id")
	req.Currency = strings.ToUpper(stringField(fields, "currency"))
	if req.Currency == "" {
		req.Currency = v.defaultCurrency
	}
	req.PaymentMethod = strings.ToLower(stringField(fields, "paymentMethod", "payment_method", "method"))
	req.ReturnURL = stringField(fields, "returnUrl", "return_url")

	if raw, ok := pick(fields, "customer"); ok {
		var customer map[string]json.RawMessage
		if json.Unmarshal(raw, &customer) != nil {
			errs["customer"] = "customer must be an object"
		} else {
			req.Customer = Customer{
				Email: stringField(customer, "email"),
				Phone: stringField(customer, "phone", "phoneNumber", "phone_number"),
				Name:  stringField(customer, "name"),
			}
			req.BillingAddress, _ = pick(customer, "billingAddress", "billing_address")
		}
	}
	if req.Customer.Phone == "" {
		req.Customer.Phone = stringField(fields, "phone", "customerPhone", "customer_phone")
	}

	req.Vendor, _ = pick(fields, "vendor", "merchant")
	if raw, ok := pick(fields, "orderDetails", "order_details"); ok {
		var details map[string]json.RawMessage
		if json.Unmarshal(raw, &details) != nil {
			errs["orderDetails"] = "orderDetails must be an object"
		} else {
			req.OrderDetails = raw
			req.OrderID = stringField(details, "orderId", "order_id", "id")
			req.Order = mirrorOrder(req.OrderID, req.Currency, details, req.Customer.Name, req.Vendor)
		}
	}
	if req.OrderID == "" {
		req.OrderID = stringField(fields, "orderId", "order_id")
	}

	if err := v.validate.Struct(req); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok {
			for _, fe := range verrs {
				errs[fieldPath(fe)] = fieldMessage(fe)
			}
		} else {
			errs["body"] = err.Error()
		}
	}

	if len(errs) > 0 {
		return nil, &apperror.ValidationError{Fields: errs}
	}
	return req, nil
}

// ToPayment builds the pending payment row for the request.
func (r *CreateRequest) ToPayment() *models.Payment {
	p := &models.Payment{
		PaymentID:      r.PaymentID,
		Amount:         r.Amount,
		Currency:       r.Currency,
		Status:         models.PaymentStatusPending,
		ReturnURL:      r.ReturnURL,
		CustomerEmail:  r.Customer.Email,
		CustomerPhone:  r.Customer.Phone,
		CustomerName:   r.Customer.Name,
		OrderID:        r.OrderID,
		BillingAddress: jsonColumn(r.BillingAddress),
		Vendor:         jsonColumn(r.Vendor),
		OrderDetails:   jsonColumn(r.OrderDetails),
		Metadata:       jsonColumn(r.Raw),
	}
	if r.PaymentMethod != "" {
		method := r.PaymentMethod
		p.PaymentMethod = &method
	}
	return p
}

func mirrorOrder(orderID, currency string, details map[string]json.RawMessage, customerName string, vendor json.RawMessage) *models.PlayfoodOrder {
	if orderID == "" {
		return nil
	}
	order := &models.PlayfoodOrder{
		OrderID:      orderID,
		Currency:     currency,
		CustomerName: customerName,
	}

	if raw, ok := pick(details, "public"); ok {
		var public map[string]json.RawMessage
		if json.Unmarshal(raw, &public) == nil {
			order.Subtotal = decimalField(public, "subtotal", "subTotal")
			order.DeliveryFee = decimalField(public, "deliveryFee", "delivery_fee")
			order.Total = decimalField(public, "total")
		}
	}
	if order.Total.IsZero() {
		order.Total = decimalField(details, "total")
	}

	vendorFields := map[string]json.RawMessage{}
	if len(vendor) > 0 {
		_ = json.Unmarshal(vendor, &vendorFields)
	}
	if raw, ok := pick(details, "internal"); ok {
		var internal map[string]json.RawMessage
		if json.Unmarshal(raw, &internal) == nil {
			if rawVendor, ok := pick(internal, "vendor", "merchant"); ok {
				_ = json.Unmarshal(rawVendor, &vendorFields)
			}
		}
	}
	order.VendorName = stringField(vendorFields, "name", "vendorName")

	if raw, ok := pick(details, "items"); ok {
		var items []map[string]json.RawMessage
		if json.Unmarshal(raw, &items) == nil {
			for _, item := range items {
				qty := decimalField(item, "quantity", "qty")
				order.Items = append(order.Items, models.OrderItem{
					Name:       stringField(item, "name", "title"),
					Quantity:   int(qty.IntPart()),
					UnitPrice:  decimalField(item, "unitPrice", "unit_price", "price"),
					TotalPrice: decimalField(item, "totalPrice", "total_price", "total"),
				})
			}
		}
	}
	return order
}

// pick returns the first present, non-null value among keys.
func pick(fields map[string]json.RawMessage, keys ...string) (json.RawMessage, bool) {
	for _, key := range keys {
		raw, ok := fields[key]
		if !ok {
			continue
		}
		// null and "" both mean absent
		if t := bytes.TrimSpace(raw); len(t) == 0 || bytes.Equal(t, []byte("null")) || bytes.Equal(t, []byte(`""`)) {
			continue
		}
		return raw, true
	}
	return nil, false
}

// stringField reads a string or number. Anything else reads as empty.
func stringField(fields map[string]json.RawMessage, keys ...string) string {
	raw, ok := pick(fields, keys...)
	if !ok {
		return ""
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return strings.TrimSpace(s)
	}
	var n json.Number
	if json.Unmarshal(raw, &n) == nil {
		return n.String()
	}
	return ""
}

func decimalField(fields map[string]json.RawMessage, keys ...string) decimal.Decimal {
	raw, ok := pick(fields, keys...)
	if !ok {
		return decimal.Zero
	}
	d, err := parseAmount(raw)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// parseAmount accepts a JSON number or a numeric string.
func parseAmount(raw json.RawMessage) (decimal.Decimal, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return decimal.NewFromString(strings.TrimSpace(s))
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromString(n.String())
}

func jsonColumn(raw json.RawMessage) datatypes.JSON {
	if len(raw) == 0 {
		return nil
	}
	return datatypes.JSON(raw)
}

func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if idx := strings.IndexByte(ns, '.'); idx >= 0 {
		ns = ns[idx+1:]
	}
	return ns
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "len":
		return fe.Field() + " must be " + fe.Param() + " characters long"
	case "alpha":
		return fe.Field() + " must contain letters only"
	case "max":
		return fe.Field() + " must be at most " + fe.Param() + " characters long"
	case "printascii":
		return fe.Field() + " contains unsupported characters"
	default:
		return fe.Field() + " is invalid"
	}
}
