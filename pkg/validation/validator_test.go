package validation

import (
	"net/http"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Aidin1998/instapay/pkg/errors"
	"github.com/Aidin1998/instapay/pkg/models"
)

func TestValidateStructPaymentRequest(t *testing.T) {
	v := NewValidator(zap.NewNop())

	ok := models.PaymentRequest{ClientCode: "C1", BankAccNo: "111", Amount: decimal.NewFromInt(50000)}
	assert.NoError(t, v.ValidateStruct(ok))

	err := v.ValidateStruct(models.PaymentRequest{ClientCode: "C1", Amount: decimal.Zero})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.Validation))
	assert.Equal(t, http.StatusBadRequest, errors.HTTPStatus(err))

	var e *errors.Error
	require.True(t, errors.As(err, &e))
	fields := map[string]string{}
	for _, f := range e.Fields {
		fields[f.Field] = f.Kind
	}
	assert.Equal(t, "required", fields["bank_acc_no"])
	assert.Equal(t, "gt", fields["amount"])
}

func TestValidIFSC(t *testing.T) {
	assert.True(t, ValidIFSC("ICIC0001596"))
	assert.True(t, ValidIFSC("hdfc0000123"))
	assert.False(t, ValidIFSC("ICIC1001596"))
	assert.False(t, ValidIFSC("IFSC1"))
}

func TestSanitize(t *testing.T) {
	v := NewValidator(zap.NewNop())
	assert.Equal(t, "RAVI KUMAR", v.Sanitize("  <b>RAVI KUMAR</b> "))
	assert.Equal(t, "", v.Sanitize(""))
}
