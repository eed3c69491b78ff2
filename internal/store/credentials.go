package store

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/mukuzz/myfi-sub000/internal/crypto"
	"github.com/mukuzz/myfi-sub000/internal/models"
)

// SaveCredential stores or replaces the login credentials for one account,
// encrypting the password at rest.
func (s *Store) SaveCredential(institution, accountNumber, username, password string) error {
	passwordEnc, err := crypto.EncryptPassword(password)
	if err != nil {
		return fmt.Errorf("failed to encrypt password: %w", err)
	}

	var cred models.ScrapeCredential
	err = s.db.Where("account_number = ?", accountNumber).First(&cred).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("failed to query credential: %w", err)
	}

	cred.InstitutionName = institution
	cred.AccountNumber = accountNumber
	cred.Username = username
	cred.PasswordEnc = passwordEnc
	return s.db.Save(&cred).Error
}

// DecryptedCredential is one stored credential with the password recovered.
// It is consumed once per scrape task and never persisted in the clear.
type DecryptedCredential struct {
	InstitutionName string
	AccountNumber   string
	Username        string
	Password        string
}

// LoadCredentials decrypts every stored credential for a refresh batch.
func (s *Store) LoadCredentials() ([]DecryptedCredential, error) {
	var rows []models.ScrapeCredential
	if err := s.db.Order("account_number").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list credentials: %w", err)
	}

	creds := make([]DecryptedCredential, 0, len(rows))
	for _, row := range rows {
		password, err := crypto.DecryptPassword(row.PasswordEnc)
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt password for %s: %w", row.AccountNumber, err)
		}
		creds = append(creds, DecryptedCredential{
			InstitutionName: row.InstitutionName,
			AccountNumber:   row.AccountNumber,
			Username:        row.Username,
			Password:        password,
		})
	}
	return creds, nil
}
