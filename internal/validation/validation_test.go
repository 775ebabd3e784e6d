package validation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidatePassword(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		password string
		wantErr  bool
	}{
		{"Valid", "Secure1!", false},
		{"Exactly Max Length", "Ab1!" + strings.Repeat("x", 16), false},
		{"Empty", "", true},
		{"Too Short", "Ab1!xyz", true},
		{"Too Long", "Ab1!" + strings.Repeat("x", 17), true},
		{"No Upper", "secure12!", true},
		{"No Lower", "SECURE12!", true},
		{"No Digit", "SecurePass!", true},
		{"No Special", "SecurePass1", true},
		{"Special Outside Set", "Secure12#", true},
		{"Space", "Secure 12!", true},
		{"Unicode Letters", "Ångstrom1!", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePassword(tt.password)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateNickname(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		nickname string
		wantErr  bool
	}{
		{"Valid", "alice", false},
		{"Ten Runes", "가나다라마바사아자차", false},
		{"Empty", "", true},
		{"Too Long", "abcdefghijk", true},
		{"Inner Space", "al ice", true},
		{"Tab", "al\tice", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateNickname(tt.nickname)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateEmail(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		email   string
		wantErr bool
	}{
		{"Valid", "test@example.com", false},
		{"Subdomain", "a.b@mail.example.co", false},
		{"Empty", "", true},
		{"Invalid Format", "not-an-email", true},
		{"Missing Domain", "user@", true},
		{"Multiple At Symbols", "user@@example.com", true},
		{"Space In Local Part", "user @example.com", true},
		{"Too Long", strings.Repeat("a", 250) + "@x.com", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateEmail(tt.email)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateTitle(t *testing.T) {
	t.Parallel()
	assert.NoError(t, ValidateTitle("hello"))
	assert.NoError(t, ValidateTitle(strings.Repeat("가", TitleMaxLength)))
	assert.Error(t, ValidateTitle("   "))
	assert.Error(t, ValidateTitle(strings.Repeat("a", TitleMaxLength+1)))
}
