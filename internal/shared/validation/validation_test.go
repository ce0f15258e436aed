package validation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func validPayment() PaymentInput {
	return PaymentInput{
		SourceAccount:   "ACC123456789",
		TargetAccount:   "GB29NWBK60161331926819",
		BeneficiaryName: "Jane Smith",
		BeneficiaryBank: "BOFAUS3N",
		Amount:          "1500.50",
		Currency:        "USD",
		Purpose:         "Invoice 42 settlement",
	}
}

func TestValidatePayment_Valid(t *testing.T) {
	assert.Empty(t, ValidatePayment(validPayment()))

	in := validPayment()
	in.BeneficiaryBank = "DEUTDEFF500"
	assert.Empty(t, ValidatePayment(in), "11 位 SWIFT 代码")
}

func TestValidatePayment_FieldErrors(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*PaymentInput)
		want   string
	}{
		{"三位小数", func(p *PaymentInput) { p.Amount = "10.123" }, MsgInvalidAmount},
		{"负数金额", func(p *PaymentInput) { p.Amount = "-50" }, MsgInvalidAmount},
		{"小写币种", func(p *PaymentInput) { p.Currency = "usd" }, MsgInvalidCurrency},
		{"四位币种", func(p *PaymentInput) { p.Currency = "USDT" }, MsgInvalidCurrency},
		{"源账户过短", func(p *PaymentInput) { p.SourceAccount = "ACC1" }, MsgInvalidSource},
		{"目标账户小写", func(p *PaymentInput) { p.TargetAccount = "acc123456789" }, MsgInvalidTarget},
		{"收款人含数字", func(p *PaymentInput) { p.BeneficiaryName = "R2D2" }, MsgInvalidBeneficiary},
		{"SWIFT 长度错误", func(p *PaymentInput) { p.BeneficiaryBank = "BOFAUS3" }, MsgInvalidSwift},
		{"用途过短", func(p *PaymentInput) { p.Purpose = "abc" }, MsgInvalidPurpose},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := validPayment()
			tt.modify(&in)
			errs := ValidatePayment(in)
			assert.Equal(t, []string{tt.want}, errs)
		})
	}
}

func TestCheckAmountBounds(t *testing.T) {
	tests := []struct {
		amount string
		want   string
	}{
		{"9.99", MsgAmountBelowMinimum},
		{"10", ""},
		{"10.00", ""},
		{"99999.99", ""},
		{"100000", ""},
		{"100000.00", ""},
		{"100000.01", MsgAmountAboveMaximum},
		{"abc", MsgInvalidAmount},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, CheckAmountBounds(tt.amount), "amount %s", tt.amount)
	}
}

func TestSanitize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "hello world", "hello world"},
		{"angle brackets", "<script>alert(1)</script>", "scriptalert(1)/script"},
		{"quotes", `say "hi" & 'bye'`, "say hi  bye"},
		{"sql keywords", "DROP TABLE payments", "TABLE payments"},
		{"case insensitive", "select name", "name"},
		{"word boundary", "selection updated", "selection updated"},
		{"trim", "  padded  ", "padded"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Sanitize(tt.in))
		})
	}
}

func TestSanitize_Truncates(t *testing.T) {
	long := strings.Repeat("a", MaxInputLength+50)
	assert.Len(t, Sanitize(long), MaxInputLength)

	// 按字符截断，不破坏多字节字符
	multi := strings.Repeat("é", MaxInputLength+1)
	got := Sanitize(multi)
	assert.Equal(t, MaxInputLength, len([]rune(got)))
}

func TestIsStrongPassword(t *testing.T) {
	assert.True(t, IsStrongPassword("StrongPass@123"))
	assert.True(t, IsStrongPassword("AnotherP@ss1"))
	assert.False(t, IsStrongPassword("password123"), "缺少大写和特殊字符")
	assert.False(t, IsStrongPassword("Sh@rt1"), "长度不足")
	assert.False(t, IsStrongPassword("NoDigits@Here"))
	assert.False(t, IsStrongPassword("Bad#Char123"), "不在白名单内的特殊字符")
}

func TestValidateRegistration(t *testing.T) {
	ok := RegistrationInput{Username: "john_doe", Password: "StrongPass@123", FullName: "John Doe", Email: "john@example.com"}
	assert.Empty(t, ValidateRegistration(ok))

	bad := RegistrationInput{Username: "jd", Password: "weak", FullName: " ", Email: "not-an-email"}
	errs := ValidateRegistration(bad)
	assert.ElementsMatch(t, []string{MsgInvalidUsername, MsgWeakPassword, MsgFullNameRequired, MsgInvalidEmail}, errs)
}
