package payments

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVerifySignature(t *testing.T) {
	secret := "whsec_test"
	body := []byte(`{"event":"payment.completed"}`)

	sig := SignPayload(secret, body)
	assert.True(t, VerifySignature(secret, body, sig))

	assert.False(t, VerifySignature(secret, body, ""))
	assert.False(t, VerifySignature(secret, body, sig+"00"))
	assert.False(t, VerifySignature(secret, []byte(`tampered`), sig))
	assert.False(t, VerifySignature("other_secret", body, sig))
}
