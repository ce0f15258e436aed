// Package validation 输入白名单校验与清洗
//
// 服务端与客户端（pkg/client）共用同一套规则，服务端结果为准。
package validation

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

// MaxInputLength 清洗后文本的最大长度（字符数）
const MaxInputLength = 1000

// 金额业务上下限（含边界）
var (
	MinAmount = decimal.NewFromInt(10)
	MaxAmount = decimal.NewFromInt(100000)
)

// 白名单正则
var (
	UsernamePattern      = regexp.MustCompile(`^[a-zA-Z0-9_]{3,20}$`)
	EmailPattern         = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	AmountPattern        = regexp.MustCompile(`^\d+(\.\d{1,2})?$`)
	CurrencyPattern      = regexp.MustCompile(`^[A-Z]{3}$`)
	AccountNumberPattern = regexp.MustCompile(`^[A-Z0-9]{8,34}$`)
	SwiftCodePattern     = regexp.MustCompile(`^[A-Z]{6}[A-Z0-9]{2}([A-Z0-9]{3})?$`)
	RoutingNumberPattern = regexp.MustCompile(`^\d{9}$`)
	NamePattern          = regexp.MustCompile(`^[a-zA-Z\s]{2,50}$`)
	AddressPattern       = regexp.MustCompile(`^[a-zA-Z0-9\s,.-]{5,100}$`)
	PhonePattern         = regexp.MustCompile(`^\+?[1-9]\d{0,15}$`)
	PurposePattern       = regexp.MustCompile(`^[a-zA-Z0-9\s.,-]{5,200}$`)

	// Go 的 RE2 不支持前瞻，密码强度拆成字符集 + 各类字符检查
	passwordCharset = regexp.MustCompile(`^[A-Za-z\d@$!%*?&]{8,}$`)
	passwordLower   = regexp.MustCompile(`[a-z]`)
	passwordUpper   = regexp.MustCompile(`[A-Z]`)
	passwordDigit   = regexp.MustCompile(`\d`)
	passwordSpecial = regexp.MustCompile(`[@$!%*?&]`)

	htmlChars   = regexp.MustCompile(`[<>&"']`)
	sqlKeywords = regexp.MustCompile(`(?i)\b(ALTER|CREATE|DELETE|DROP|EXEC|INSERT|SELECT|UPDATE|UNION|WHERE)\b`)
)

// Match 去除首尾空白后匹配
func Match(pattern *regexp.Regexp, value string) bool {
	return pattern.MatchString(strings.TrimSpace(value))
}

// IsStrongPassword 至少 8 位，包含大小写字母、数字和特殊字符 @$!%*?&
func IsStrongPassword(password string) bool {
	return passwordCharset.MatchString(password) &&
		passwordLower.MatchString(password) &&
		passwordUpper.MatchString(password) &&
		passwordDigit.MatchString(password) &&
		passwordSpecial.MatchString(password)
}

// Sanitize 清洗自由文本：去掉尖括号等 HTML 字符和 SQL 关键字，截断到 MaxInputLength
func Sanitize(input string) string {
	s := htmlChars.ReplaceAllString(input, "")
	s = sqlKeywords.ReplaceAllString(s, "")
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) > MaxInputLength {
		s = string([]rune(s)[:MaxInputLength])
	}
	return s
}

// PaymentInput 待校验的付款字段（已清洗）
type PaymentInput struct {
	SourceAccount   string
	TargetAccount   string
	BeneficiaryName string
	BeneficiaryBank string
	Amount          string
	Currency        string
	Purpose         string
}

// 校验失败提示
const (
	MsgInvalidAmount      = "Invalid amount format (e.g., 1000.00)"
	MsgInvalidCurrency    = "Invalid currency code (use 3-letter format like USD, EUR, GBP)"
	MsgInvalidSource      = "Invalid source account number (8-34 alphanumeric characters)"
	MsgInvalidTarget      = "Invalid destination account number (8-34 alphanumeric characters)"
	MsgInvalidBeneficiary = "Invalid beneficiary name (2-50 letters and spaces only)"
	MsgInvalidSwift       = "Invalid bank SWIFT code (8 or 11 characters, e.g., BOFAUS3N)"
	MsgInvalidPurpose     = "Invalid payment purpose (5-200 characters)"
	MsgAmountBelowMinimum = "Minimum payment amount is 10"
	MsgAmountAboveMaximum = "Maximum payment amount is 100,000"
	MsgInvalidUsername    = "Username must be 3-20 letters, digits or underscores"
	MsgWeakPassword       = "Password must be at least 8 characters with upper and lower case letters, a digit and a special character (@$!%*?&)"
	MsgInvalidEmail       = "Invalid email address"
	MsgFullNameRequired   = "Full name is required"
)

// ValidatePayment 校验付款字段格式，返回逐字段错误信息；无错误时返回空切片
//
// 金额上下限由 CheckAmountBounds 单独检查。
func ValidatePayment(in PaymentInput) []string {
	errs := []string{}

	if !Match(AmountPattern, in.Amount) {
		errs = append(errs, MsgInvalidAmount)
	}
	if !Match(CurrencyPattern, in.Currency) {
		errs = append(errs, MsgInvalidCurrency)
	}
	if !Match(AccountNumberPattern, in.SourceAccount) {
		errs = append(errs, MsgInvalidSource)
	}
	if !Match(AccountNumberPattern, in.TargetAccount) {
		errs = append(errs, MsgInvalidTarget)
	}
	if !Match(NamePattern, in.BeneficiaryName) {
		errs = append(errs, MsgInvalidBeneficiary)
	}
	if !Match(SwiftCodePattern, in.BeneficiaryBank) {
		errs = append(errs, MsgInvalidSwift)
	}
	if !Match(PurposePattern, in.Purpose) {
		errs = append(errs, MsgInvalidPurpose)
	}
	return errs
}

// CheckAmountBounds 检查金额是否在 [MinAmount, MaxAmount] 内，返回错误信息或空串
func CheckAmountBounds(amount string) string {
	d, err := decimal.NewFromString(strings.TrimSpace(amount))
	if err != nil {
		return MsgInvalidAmount
	}
	if d.LessThan(MinAmount) {
		return MsgAmountBelowMinimum
	}
	if d.GreaterThan(MaxAmount) {
		return MsgAmountAboveMaximum
	}
	return ""
}

// RegistrationInput 注册请求字段
type RegistrationInput struct {
	Username string
	Password string
	FullName string
	Email    string
}

// ValidateRegistration 校验注册字段
func ValidateRegistration(in RegistrationInput) []string {
	errs := []string{}
	if !Match(UsernamePattern, in.Username) {
		errs = append(errs, MsgInvalidUsername)
	}
	if !IsStrongPassword(in.Password) {
		errs = append(errs, MsgWeakPassword)
	}
	if strings.TrimSpace(in.FullName) == "" {
		errs = append(errs, MsgFullNameRequired)
	}
	if in.Email != "" && !Match(EmailPattern, in.Email) {
		errs = append(errs, MsgInvalidEmail)
	}
	return errs
}
