package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCompanyStatusValid(t *testing.T) {
	assert.True(t, CompanyActive.Valid())
	assert.True(t, CompanyBlocked.Valid())
	assert.False(t, CompanyStatus("pending").Valid())
	assert.False(t, CompanyStatus("").Valid())
}

func TestCheckResultAuthorized(t *testing.T) {
	assert.True(t, CheckAuthorized.Authorized())

	for _, result := range []CheckResult{CheckRevoked, CheckUnknownDevice, CheckUnknownCompany, CheckCompanyBlocked} {
		assert.False(t, result.Authorized(), string(result))
	}
}
