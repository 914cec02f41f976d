package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/kollektive-hackathon/walletrelay-backend/internal/pkg/model"
	"github.com/kollektive-hackathon/walletrelay-backend/internal/pkg/reject"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

const uniqueViolation = "23505"

type GormStore struct {
	db      *gorm.DB
	timeout time.Duration
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// WithTimeout bounds every query. Zero leaves deadlines to the caller.
func (s *GormStore) WithTimeout(timeout time.Duration) *GormStore {
	s.timeout = timeout
	return s
}

func (s *GormStore) session(ctx context.Context) (*gorm.DB, context.CancelFunc) {
	if s.timeout <= 0 {
		return s.db.WithContext(ctx), func() {}
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	return s.db.WithContext(ctx), cancel
}

func (s *GormStore) Migrate() error {
	return s.db.AutoMigrate(&model.UserWallet{})
}

func (s *GormStore) FindByEmbedded(ctx context.Context, address string) (*model.UserWallet, error) {
	return s.findOne(ctx, columnEmbedded+" = ?", address)
}

func (s *GormStore) FindByServer(ctx context.Context, address string) (*model.UserWallet, error) {
	return s.findOne(ctx, columnServer+" = ?", address)
}

func (s *GormStore) FindByEither(ctx context.Context, address string) (*model.UserWallet, error) {
	return s.findOne(ctx, columnEmbedded+" = ? OR "+columnServer+" = ?", address, address)
}

func (s *GormStore) FindByEmail(ctx context.Context, email string) (*model.UserWallet, error) {
	return s.findOne(ctx, columnEmail+" = ?", email)
}

func (s *GormStore) findOne(ctx context.Context, query string, args ...any) (*model.UserWallet, error) {
	db, cancel := s.session(ctx)
	defer cancel()

	var wallets []model.UserWallet
	result := db.
		Where(query, args...).
		Limit(1).
		Find(&wallets)

	if result.Error != nil {
		log.Warn().Err(result.Error).Msg("Error while loading user wallet")
		return nil, reject.Transport("loading user wallet", result.Error)
	}
	if len(wallets) == 0 {
		return nil, nil
	}
	return &wallets[0], nil
}

func (s *GormStore) Insert(ctx context.Context, wallet *model.UserWallet) (*model.UserWallet, error) {
	db, cancel := s.session(ctx)
	defer cancel()

	result := db.Create(wallet)
	if result.Error != nil {
		if isUniqueViolation(result.Error) {
			return nil, reject.Conflict("wallet mapping already exists", result.Error)
		}
		log.Warn().Err(result.Error).Msg("Error while inserting user wallet")
		return nil, reject.Transport("inserting user wallet", result.Error)
	}
	return wallet, nil
}

func (s *GormStore) UpdateProfile(ctx context.Context, id string, update model.ProfileUpdate) (*model.UserWallet, error) {
	if !update.IsEmpty() {
		db, cancel := s.session(ctx)
		defer cancel()

		result := db.
			Model(&model.UserWallet{}).
			Where(columnId+" = ?", id).
			Updates(profileColumns(update))

		if result.Error != nil {
			if isUniqueViolation(result.Error) {
				return nil, reject.Conflict("email already linked to another wallet", result.Error)
			}
			log.Warn().Err(result.Error).Msg("Error while updating user wallet profile")
			return nil, reject.Transport("updating user wallet profile", result.Error)
		}
		if result.RowsAffected == 0 {
			return nil, nil
		}
	}
	return s.findOne(ctx, columnId+" = ?", id)
}

// profileColumns maps an update onto column values. An empty email clears the
// link so the unique index keeps ignoring the row.
func profileColumns(update model.ProfileUpdate) map[string]any {
	columns := map[string]any{}
	if update.Email != nil {
		if *update.Email == "" {
			columns[columnEmail] = nil
		} else {
			columns[columnEmail] = *update.Email
		}
	}
	if update.Username != nil {
		columns[columnUsername] = *update.Username
	}
	return columns
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
