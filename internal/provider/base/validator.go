package base

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"paygate/internal/provider"
)

// PhoneValidator normalizes and checks MSISDNs for one country.
type PhoneValidator struct {
	country  provider.Country
	dialCode string
	pattern  *regexp.Regexp
}

// NewPhoneValidator creates a validator for a specific country
func NewPhoneValidator(country provider.Country) *PhoneValidator {
	var pattern *regexp.Regexp
	switch country {
	case provider.CountryIvoryCoast:
		pattern = regexp.MustCompile(`^225(01|05|07|21|25|27)\d{8}$`) // 10-digit national plan
	case provider.CountrySenegal:
		pattern = regexp.MustCompile(`^221(7[0-8]|3[03])\d{7}$`)
	default:
		pattern = regexp.MustCompile(`^\d{8,15}$`)
	}
	return &PhoneValidator{country: country, dialCode: country.DialCode(), pattern: pattern}
}

// Normalize strips formatting and prefixes the country dial code.
func (v *PhoneValidator) Normalize(phone string) string {
	replacer := strings.NewReplacer(" ", "", "-", "", "+", "", ".", "", "(", "", ")", "")
	normalized := replacer.Replace(strings.TrimSpace(phone))
	normalized = strings.TrimPrefix(normalized, "00")
	if v.dialCode != "" && !strings.HasPrefix(normalized, v.dialCode) {
		normalized = v.dialCode + normalized
	}
	return normalized
}

// ValidatePhone validates and normalizes a phone number
func (v *PhoneValidator) ValidatePhone(providerName, phone string) (string, error) {
	normalized := v.Normalize(phone)
	if !v.pattern.MatchString(normalized) {
		return "", provider.ValidationError(providerName, fmt.Sprintf("invalid phone number %q for %s", phone, v.country))
	}
	return normalized, nil
}

// AmountValidator validates payment amounts
type AmountValidator struct {
	min decimal.Decimal
	max decimal.Decimal // zero means unbounded
}

// NewAmountValidator creates an amount validator with limits
func NewAmountValidator(min, max decimal.Decimal) *AmountValidator {
	return &AmountValidator{min: min, max: max}
}

// ValidateAmount checks positivity, limits and currency decimal places.
func (v *AmountValidator) ValidateAmount(providerName string, amount decimal.Decimal, currency string) error {
	if !amount.IsPositive() {
		return provider.ValidationError(providerName, "amount must be greater than zero")
	}
	if provider.IsZeroDecimal(currency) {
		if !amount.Equal(amount.Truncate(0)) {
			return provider.ValidationError(providerName, fmt.Sprintf("%s amounts must not have decimals", currency))
		}
	} else if !amount.Equal(amount.Truncate(2)) {
		return provider.ValidationError(providerName, fmt.Sprintf("%s amounts allow at most 2 decimals", currency))
	}
	if v.min.IsPositive() && amount.LessThan(v.min) {
		return provider.ValidationError(providerName, fmt.Sprintf("amount must be at least %s %s", v.min, currency))
	}
	if v.max.IsPositive() && amount.GreaterThan(v.max) {
		return provider.ValidationError(providerName, fmt.Sprintf("amount must not exceed %s %s", v.max, currency))
	}
	return nil
}

// URLField names a callback URL carried by a PaymentRequest.
type URLField string

const (
	URLNotify  URLField = "notify_url"
	URLReturn  URLField = "return_url"
	URLCancel  URLField = "cancel_url"
	URLSuccess URLField = "success_url"
	URLError   URLField = "error_url"
)

func urlValue(req provider.PaymentRequest, f URLField) string {
	switch f {
	case URLNotify:
		return req.NotifyURL
	case URLReturn:
		return req.ReturnURL
	case URLCancel:
		return req.CancelURL
	case URLSuccess:
		return req.SuccessURL
	case URLError:
		return req.ErrorURL
	}
	return ""
}

// RequestValidator applies the contract-level checks for one gateway.
type RequestValidator struct {
	provider        string
	currencies      map[string]bool // empty allows any
	requiredURLs    []URLField
	requirePhone    bool
	phoneValidator  *PhoneValidator
	amountValidator *AmountValidator
}

type ValidatorOption func(*RequestValidator)

// WithSecureURLs makes the named URLs mandatory and https-only.
func WithSecureURLs(fields ...URLField) ValidatorOption {
	return func(v *RequestValidator) { v.requiredURLs = append(v.requiredURLs, fields...) }
}

// WithCurrencies restricts accepted currencies.
func WithCurrencies(codes ...string) ValidatorOption {
	return func(v *RequestValidator) {
		v.currencies = make(map[string]bool, len(codes))
		for _, c := range codes {
			v.currencies[strings.ToUpper(c)] = true
		}
	}
}

// WithPayerPhone requires and normalizes PayerPhone.
func WithPayerPhone(country provider.Country) ValidatorOption {
	return func(v *RequestValidator) {
		v.requirePhone = true
		v.phoneValidator = NewPhoneValidator(country)
	}
}

func WithAmountLimits(min, max decimal.Decimal) ValidatorOption {
	return func(v *RequestValidator) { v.amountValidator = NewAmountValidator(min, max) }
}

// NewRequestValidator creates a new request validator
func NewRequestValidator(providerName string, opts ...ValidatorOption) *RequestValidator {
	v := &RequestValidator{
		provider:        providerName,
		amountValidator: NewAmountValidator(decimal.Zero, decimal.Zero),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// ValidatePayment checks req and normalizes PayerPhone in place.
func (v *RequestValidator) ValidatePayment(req *provider.PaymentRequest) error {
	if strings.TrimSpace(req.Reference) == "" {
		return provider.ValidationError(v.provider, "reference is required")
	}
	currency := req.CurrencyOrDefault()
	if len(v.currencies) > 0 && !v.currencies[currency] {
		return provider.ValidationError(v.provider, fmt.Sprintf("currency %s is not supported", currency))
	}
	if err := v.amountValidator.ValidateAmount(v.provider, req.Amount, currency); err != nil {
		return err
	}
	for _, f := range v.requiredURLs {
		if err := requireSecureURL(v.provider, string(f), urlValue(*req, f)); err != nil {
			return err
		}
	}
	if v.requirePhone {
		if strings.TrimSpace(req.PayerPhone) == "" {
			return provider.ValidationError(v.provider, "payer phone is required")
		}
		phone, err := v.phoneValidator.ValidatePhone(v.provider, req.PayerPhone)
		if err != nil {
			return err
		}
		req.PayerPhone = phone
	}
	return nil
}

// ValidateTransfer applies the amount, reference and recipient rules.
func (v *RequestValidator) ValidateTransfer(req *provider.TransferRequest) error {
	if strings.TrimSpace(req.Reference) == "" {
		return provider.ValidationError(v.provider, "reference is required")
	}
	currency := strings.ToUpper(req.Currency)
	if currency == "" {
		currency = provider.DefaultCurrency
	}
	if err := v.amountValidator.ValidateAmount(v.provider, req.Amount, currency); err != nil {
		return err
	}
	if strings.TrimSpace(req.RecipientPhone) == "" {
		return provider.ValidationError(v.provider, "recipient phone is required")
	}
	return nil
}

func requireSecureURL(providerName, field, raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return provider.ValidationError(providerName, field+" is required")
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return provider.ValidationError(providerName, field+" must be an absolute URL")
	}
	if u.Scheme != "https" {
		return provider.ValidationError(providerName, field+" must use https")
	}
	return nil
}

// FormatAmount renders amount with the currency's decimal places.
func FormatAmount(amount decimal.Decimal, currency string) string {
	if provider.IsZeroDecimal(currency) {
		return amount.Truncate(0).String()
	}
	return amount.StringFixed(2)
}
