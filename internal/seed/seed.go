// Package seed creates the default company and admin user on first boot.
package seed

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"

	"github.com/saulto/saulto/internal/model"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// Options configures the seed company and admin user.
type Options struct {
	AdminEmail    string
	AdminPassword string // if empty, a random password is generated
	CompanyName   string
}

// Ensure creates a seed company and admin user if no users exist. The admin
// is attached to the company so company-scoped routes work out of the box.
// It prints a generated password to stdout exactly once.
// The function is idempotent and safe to call on every startup.
func Ensure(_ context.Context, db *gorm.DB, opts Options, log *slog.Logger) error {
	var count int64
	if err := db.Model(&model.User{}).Count(&count).Error; err != nil {
		return fmt.Errorf("count users: %w", err)
	}
	if count > 0 {
		log.Info("seed admin already exists")
		return nil
	}

	company := model.Company{
		Name:      opts.CompanyName,
		Slug:      slugify(opts.CompanyName),
		SchemaKey: 1,
		Status:    "active",
	}
	if err := db.Where("slug = ?", company.Slug).FirstOrCreate(&company).Error; err != nil {
		return fmt.Errorf("insert seed company: %w", err)
	}

	password := opts.AdminPassword
	if password == "" {
		var err error
		password, err = generatePassword()
		if err != nil {
			return fmt.Errorf("generate seed password: %w", err)
		}
		fmt.Printf("[saulto] seed admin password: %s\n", password)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash seed password: %w", err)
	}

	u := &model.User{
		CompanyID:    &company.ID,
		Email:        opts.AdminEmail,
		Name:         "Seed Admin",
		PasswordHash: string(hash),
		Roles:        model.StringSlice{"Admin"},
	}
	if err := db.Create(u).Error; err != nil {
		return fmt.Errorf("insert seed admin: %w", err)
	}

	log.Info("seed admin created", "email", opts.AdminEmail, "company", company.Name)
	return nil
}

func slugify(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	s = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		case r == ' ' || r == '-' || r == '_':
			return '-'
		}
		return -1
	}, s)
	if s == "" {
		s = "company"
	}
	return s
}

func generatePassword() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
