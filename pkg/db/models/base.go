package models

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

func ensureID(id *uuid.UUID) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
}

// BeforeCreate assigns client-side ids so sqlite-backed tests behave like Postgres defaults.
func (u *User) BeforeCreate(*gorm.DB) error { ensureID(&u.ID); return nil }

func (g *Gig) BeforeCreate(*gorm.DB) error { ensureID(&g.ID); return nil }

func (o *Order) BeforeCreate(*gorm.DB) error { ensureID(&o.ID); return nil }

func (f *DeliveryFile) BeforeCreate(*gorm.DB) error { ensureID(&f.ID); return nil }

func (t *Transaction) BeforeCreate(*gorm.DB) error { ensureID(&t.ID); return nil }

func (n *Notification) BeforeCreate(*gorm.DB) error { ensureID(&n.ID); return nil }
