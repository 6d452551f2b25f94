package auth

import (
	"encoding/base32"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	qrcode "github.com/skip2/go-qrcode"
)

const (
	DefaultTOTPIssuer = "AuthenticatorApp"
	totpSecretSize    = 20 // 160 bits
	totpPeriod        = 30
	totpSkew          = 2 // accept T-2 .. T+2 steps
	qrCodeSize        = 256
)

var ErrMalformedTOTPSecret = errors.New("malformed TOTP secret")

// TOTPSetup is what an authenticator app needs to enrol a secret.
type TOTPSetup struct {
	Secret string // base32, unpadded
	URL    string // otpauth:// provisioning URI
	QRCode string // PNG data URL of URL
}

// TOTPManager generates and checks RFC 6238 codes (SHA1, 6 digits, 30s period).
type TOTPManager struct {
	issuer string
	now    func() time.Time
}

func NewTOTPManager(issuer string) *TOTPManager {
	if issuer == "" {
		issuer = DefaultTOTPIssuer
	}
	return &TOTPManager{
		issuer: issuer,
		now:    time.Now,
	}
}

// GenerateSecret creates a fresh secret bound to label (the account email).
func (tm *TOTPManager) GenerateSecret(label string) (*TOTPSetup, error) {
	return tm.provision(label, nil)
}

// ProvisioningFor rebuilds the URI and QR code for an existing secret.
func (tm *TOTPManager) ProvisioningFor(label, secret string) (*TOTPSetup, error) {
	raw, err := decodeTOTPSecret(secret)
	if err != nil {
		return nil, err
	}
	return tm.provision(label, raw)
}

func (tm *TOTPManager) provision(label string, secret []byte) (*TOTPSetup, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      tm.issuer,
		AccountName: label,
		Period:      totpPeriod,
		SecretSize:  totpSecretSize,
		Secret:      secret,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate TOTP key: %w", err)
	}

	png, err := qrcode.Encode(key.URL(), qrcode.Medium, qrCodeSize)
	if err != nil {
		return nil, fmt.Errorf("failed to render QR code: %w", err)
	}

	return &TOTPSetup{
		Secret: key.Secret(),
		URL:    key.URL(),
		QRCode: "data:image/png;base64," + base64.StdEncoding.EncodeToString(png),
	}, nil
}

// ValidateCode checks code against secret at the current time. A wrong or badly formatted code is
// (false, nil); only a secret that cannot be decoded is an error.
func (tm *TOTPManager) ValidateCode(code, secret string) (bool, error) {
	return tm.ValidateCodeAt(code, secret, tm.now())
}

func (tm *TOTPManager) ValidateCodeAt(code, secret string, at time.Time) (bool, error) {
	if _, err := decodeTOTPSecret(secret); err != nil {
		return false, err
	}

	code = strings.TrimSpace(code)
	if !isNumericCode(code, otp.DigitsSix.Length()) {
		return false, nil
	}

	valid, err := totp.ValidateCustom(code, secret, at.UTC(), totp.ValidateOpts{
		Period:    totpPeriod,
		Skew:      totpSkew,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	if err != nil {
		return false, fmt.Errorf("failed to validate TOTP code: %w", err)
	}
	return valid, nil
}

func decodeTOTPSecret(secret string) ([]byte, error) {
	secret = strings.ToUpper(strings.TrimSpace(secret))
	if secret == "" {
		return nil, ErrMalformedTOTPSecret
	}
	if n := len(secret) % 8; n != 0 {
		secret += strings.Repeat("=", 8-n)
	}
	raw, err := base32.StdEncoding.DecodeString(secret)
	if err != nil || len(raw) == 0 {
		return nil, ErrMalformedTOTPSecret
	}
	return raw, nil
}

func isNumericCode(code string, digits int) bool {
	if len(code) != digits {
		return false
	}
	for i := 0; i < len(code); i++ {
		if code[i] < '0' || code[i] > '9' {
			return false
		}
	}
	return true
}
