package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSignIsDeterministic(t *testing.T) {
	body := []byte(`{"id":"evt_1","type":"contact.created"}`)

	first := Sign("whsec_0123456789abcdef", "1700000000", body)
	second := Sign("whsec_0123456789abcdef", "1700000000", body)
	assert.Equal(t, first, second)
	assert.Len(t, first, 64)

	assert.NotEqual(t, first, Sign("whsec_other_secret_value", "1700000000", body))
	assert.NotEqual(t, first, Sign("whsec_0123456789abcdef", "1700000001", body))
	assert.NotEqual(t, first, Sign("whsec_0123456789abcdef", "1700000000", []byte(`{}`)))
}

func TestVerifySignature(t *testing.T) {
	body := []byte(`{"id":"evt_1"}`)
	signature := Sign("whsec_0123456789abcdef", "1700000000", body)

	assert.True(t, VerifySignature("whsec_0123456789abcdef", "1700000000", body, signature))
	assert.False(t, VerifySignature("whsec_0123456789abcdef", "1700000001", body, signature))
	assert.False(t, VerifySignature("whsec_wrong", "1700000000", body, signature))
	assert.False(t, VerifySignature("whsec_0123456789abcdef", "1700000000", body, "deadbeef"))
}
