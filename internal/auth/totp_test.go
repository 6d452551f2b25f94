package auth

import (
	"encoding/base64"
	"strings"
	"testing"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func codeAt(t *testing.T, secret string, at time.Time) string {
	t.Helper()
	code, err := totp.GenerateCodeCustom(secret, at, totp.ValidateOpts{
		Period:    30,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	require.NoError(t, err)
	return code
}

// ============================================================================
// Secret generation
// ============================================================================

func TestTOTPManager_GenerateSecret(t *testing.T) {
	tm := NewTOTPManager("")

	setup, err := tm.GenerateSecret("a@x.com")
	require.NoError(t, err)

	// 20 bytes -> 32 base32 characters, no padding
	assert.Len(t, setup.Secret, 32)
	assert.True(t, strings.HasPrefix(setup.URL, "otpauth://totp/"))
	assert.Contains(t, setup.URL, "issuer=AuthenticatorApp")
	assert.Contains(t, setup.URL, "secret="+setup.Secret)
	assert.Contains(t, setup.URL, "a@x.com")

	require.True(t, strings.HasPrefix(setup.QRCode, "data:image/png;base64,"))
	png, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(setup.QRCode, "data:image/png;base64,"))
	require.NoError(t, err)
	assert.Equal(t, "\x89PNG", string(png[:4]))
}

func TestTOTPManager_GenerateSecret_Unique(t *testing.T) {
	tm := NewTOTPManager("Issuer")

	s1, err := tm.GenerateSecret("a@x.com")
	require.NoError(t, err)
	s2, err := tm.GenerateSecret("a@x.com")
	require.NoError(t, err)

	assert.NotEqual(t, s1.Secret, s2.Secret)
}

func TestTOTPManager_ProvisioningFor_KeepsSecret(t *testing.T) {
	tm := NewTOTPManager("")

	original, err := tm.GenerateSecret("a@x.com")
	require.NoError(t, err)

	again, err := tm.ProvisioningFor("a@x.com", original.Secret)
	require.NoError(t, err)
	assert.Equal(t, original.Secret, again.Secret)
	assert.Equal(t, original.URL, again.URL)
}

func TestTOTPManager_ProvisioningFor_MalformedSecret(t *testing.T) {
	_, err := NewTOTPManager("").ProvisioningFor("a@x.com", "not base32!")
	assert.ErrorIs(t, err, ErrMalformedTOTPSecret)
}

// ============================================================================
// Code validation
// ============================================================================

func TestTOTPManager_ValidateCodeAt_Window(t *testing.T) {
	tm := NewTOTPManager("")
	setup, err := tm.GenerateSecret("a@x.com")
	require.NoError(t, err)

	// middle of a step so neighbouring steps are unambiguous
	now := time.Unix(1_700_000_015, 0)
	step := 30 * time.Second

	tests := []struct {
		name   string
		offset int
		want   bool
	}{
		{"T-3", -3, false},
		{"T-2", -2, true},
		{"T-1", -1, true},
		{"T", 0, true},
		{"T+1", 1, true},
		{"T+2", 2, true},
		{"T+3", 3, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code := codeAt(t, setup.Secret, now.Add(time.Duration(tt.offset)*step))
			ok, err := tm.ValidateCodeAt(code, setup.Secret, now)
			require.NoError(t, err)
			if tt.want {
				assert.True(t, ok)
				return
			}
			// a far-off code can collide with an in-window one by chance; only assert when distinct
			inWindow := map[string]bool{}
			for i := -2; i <= 2; i++ {
				inWindow[codeAt(t, setup.Secret, now.Add(time.Duration(i)*step))] = true
			}
			if !inWindow[code] {
				assert.False(t, ok)
			}
		})
	}
}

func TestTOTPManager_ValidateCode_Now(t *testing.T) {
	tm := NewTOTPManager("")
	setup, err := tm.GenerateSecret("a@x.com")
	require.NoError(t, err)

	ok, err := tm.ValidateCode(codeAt(t, setup.Secret, time.Now()), setup.Secret)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestTOTPManager_ValidateCode_BadFormatIsFalseNotError(t *testing.T) {
	tm := NewTOTPManager("")
	setup, err := tm.GenerateSecret("a@x.com")
	require.NoError(t, err)

	for _, code := range []string{"", "12345", "1234567", "abcdef", "12 456"} {
		ok, err := tm.ValidateCode(code, setup.Secret)
		assert.NoError(t, err, "code %q", code)
		assert.False(t, ok, "code %q", code)
	}
}

func TestTOTPManager_ValidateCode_MalformedSecretIsError(t *testing.T) {
	tm := NewTOTPManager("")

	for _, secret := range []string{"", "!!!!", "1890"} {
		_, err := tm.ValidateCode("123456", secret)
		assert.ErrorIs(t, err, ErrMalformedTOTPSecret, "secret %q", secret)
	}
}
