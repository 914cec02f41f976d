package store

import (
	"context"
	"sync"
	"time"

	"github.com/kollektive-hackathon/walletrelay-backend/internal/pkg/model"
	"github.com/kollektive-hackathon/walletrelay-backend/internal/pkg/reject"
)

// MemoryStore is a process-local Store for development and tests. It enforces
// the same unique keys as the database schema.
type MemoryStore struct {
	mu      sync.Mutex
	wallets []model.UserWallet
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{now: time.Now}
}

func (s *MemoryStore) FindByEmbedded(_ context.Context, address string) (*model.UserWallet, error) {
	return s.find(func(w model.UserWallet) bool { return w.EmbeddedWalletAddress == address }), nil
}

func (s *MemoryStore) FindByServer(_ context.Context, address string) (*model.UserWallet, error) {
	return s.find(func(w model.UserWallet) bool { return w.ServerWalletAddress == address }), nil
}

func (s *MemoryStore) FindByEither(_ context.Context, address string) (*model.UserWallet, error) {
	return s.find(func(w model.UserWallet) bool {
		return w.EmbeddedWalletAddress == address || w.ServerWalletAddress == address
	}), nil
}

func (s *MemoryStore) FindByEmail(_ context.Context, email string) (*model.UserWallet, error) {
	return s.find(func(w model.UserWallet) bool { return w.Email != nil && *w.Email == email }), nil
}

func (s *MemoryStore) Insert(_ context.Context, wallet *model.UserWallet) (*model.UserWallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, w := range s.wallets {
		if w.Id == wallet.Id ||
			w.EmbeddedWalletAddress == wallet.EmbeddedWalletAddress ||
			w.ServerWalletAddress == wallet.ServerWalletAddress ||
			w.ServerWalletId == wallet.ServerWalletId ||
			sameEmail(w.Email, wallet.Email) {
			return nil, reject.Conflict("wallet mapping already exists", nil)
		}
	}

	now := s.now().UTC()
	stored := *wallet
	stored.CreatedAt = now
	stored.UpdatedAt = now
	s.wallets = append(s.wallets, stored)

	return &stored, nil
}

func (s *MemoryStore) UpdateProfile(_ context.Context, id string, update model.ProfileUpdate) (*model.UserWallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	index := -1
	for i, w := range s.wallets {
		if w.Id == id {
			index = i
			break
		}
	}
	if index < 0 {
		return nil, nil
	}
	if update.IsEmpty() {
		stored := s.wallets[index]
		return &stored, nil
	}

	if update.Email != nil && *update.Email != "" {
		for i, w := range s.wallets {
			if i != index && sameEmail(w.Email, update.Email) {
				return nil, reject.Conflict("email already linked to another wallet", nil)
			}
		}
	}

	w := &s.wallets[index]
	if update.Email != nil {
		if *update.Email == "" {
			w.Email = nil
		} else {
			email := *update.Email
			w.Email = &email
		}
	}
	if update.Username != nil {
		username := *update.Username
		w.Username = &username
	}
	w.UpdatedAt = s.now().UTC()

	stored := *w
	return &stored, nil
}

// Len reports the number of stored mappings.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.wallets)
}

func (s *MemoryStore) find(match func(model.UserWallet) bool) *model.UserWallet {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, w := range s.wallets {
		if match(w) {
			found := w
			return &found
		}
	}
	return nil
}

func sameEmail(a *string, b *string) bool {
	return a != nil && b != nil && *a != "" && *a == *b
}
