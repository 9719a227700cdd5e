package models

import "time"

// User представляет пользователя сервиса доставки
type User struct {
	ID          int64
	Phone       string // уникальный естественный ключ
	PassHash    []byte // nil для пользователей, пришедших из Telegram
	ExternalID  *int64 // Telegram ID, если пользователь входил через WebApp
	DisplayName string
	CreatedAt   time.Time
}

// HasPassword сообщает, может ли пользователь входить по паролю
func (u *User) HasPassword() bool {
	return len(u.PassHash) > 0
}
