package store

import (
	"crypto/rand"
	"encoding/base64"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mukuzz/myfi-sub000/internal/crypto"
	"github.com/mukuzz/myfi-sub000/internal/models"
)

func TestMain(m *testing.M) {
	key := make([]byte, 32)
	rand.Read(key)
	os.Setenv("ENCRYPTION_KEY", base64.StdEncoding.EncodeToString(key))

	if err := crypto.InitEncryption(); err != nil {
		panic("failed to initialize encryption for tests: " + err.Error())
	}

	code := m.Run()
	os.Unsetenv("ENCRYPTION_KEY")
	os.Exit(code)
}

func TestCredentials(t *testing.T) {
	s := testStore(t)

	t.Run("Should round-trip a credential with the password encrypted at rest", func(t *testing.T) {
		require.NoError(t, s.SaveCredential("HDFC Bank", "1234567890", "user1", "s3cret"))

		var row models.ScrapeCredential
		require.NoError(t, s.db.First(&row, "account_number = ?", "1234567890").Error)
		assert.NotEqual(t, "s3cret", row.PasswordEnc)

		creds, err := s.LoadCredentials()
		require.NoError(t, err)
		require.Len(t, creds, 1)
		assert.Equal(t, "HDFC Bank", creds[0].InstitutionName)
		assert.Equal(t, "user1", creds[0].Username)
		assert.Equal(t, "s3cret", creds[0].Password)
	})

	t.Run("Should replace on re-save for the same account", func(t *testing.T) {
		require.NoError(t, s.SaveCredential("HDFC Bank", "1234567890", "user1", "rotated"))

		var count int64
		require.NoError(t, s.db.Model(&models.ScrapeCredential{}).Count(&count).Error)
		assert.Equal(t, int64(1), count)

		creds, err := s.LoadCredentials()
		require.NoError(t, err)
		require.Len(t, creds, 1)
		assert.Equal(t, "rotated", creds[0].Password)
	})
}
