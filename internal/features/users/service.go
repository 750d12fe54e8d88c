package users

import (
	"context"

	"ashlounge.ru/loyalty-bot/internal/phone"
)

// Service инкапсулирует бизнес-логику работы с пользователями.
type Service struct {
	repo *Repository
}

// NewService создаёт новый сервис пользователей.
func NewService(repo *Repository) *Service {
	return &Service{repo: repo}
}

// Get возвращает пользователя по внутреннему id.
func (s *Service) Get(ctx context.Context, id int64) (*User, error) {
	return s.repo.GetByID(ctx, id)
}

// GetByTelegramID возвращает пользователя по Telegram id.
func (s *Service) GetByTelegramID(ctx context.Context, telegramID int64) (*User, error) {
	return s.repo.GetByTelegramID(ctx, telegramID)
}

// Upsert создаёт или обновляет пользователя.
func (s *Service) Upsert(ctx context.Context, p UpsertParams) (*User, error) {
	return s.repo.Upsert(ctx, p)
}

// ResolveByPhone ищет пользователя по сырому телефону из внешней системы,
// сравнивая все варианты написания номера.
func (s *Service) ResolveByPhone(ctx context.Context, rawPhone string) (*User, error) {
	return s.repo.FindByPhoneVariants(ctx, phone.MatchVariants(rawPhone))
}

// ResolveByYClientsID ищет пользователя по id клиента YClients.
func (s *Service) ResolveByYClientsID(ctx context.Context, clientID int64) (*User, error) {
	return s.repo.GetByYClientsID(ctx, clientID)
}

// BindYClientsID сохраняет id клиента YClients, если он ещё не известен.
func (s *Service) BindYClientsID(ctx context.Context, userID, clientID int64) error {
	return s.repo.BindYClientsID(ctx, userID, clientID)
}

// ListWithPhone возвращает пользователей для массовой синхронизации.
func (s *Service) ListWithPhone(ctx context.Context) ([]*User, error) {
	return s.repo.ListWithPhone(ctx)
}
