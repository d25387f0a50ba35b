package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/kavara-app/kavara-backend/internal/repository"
)

const (
	// Схема реферальной программы: скидка приглашённому и кэшбэк владельцу кода.
	referralDiscountPercent = 10
	referralRewardPercent   = 10
	// Разовый бонус пригласившему после первого оплаченного заказа приглашённого.
	referralBonusPoints = 500

	codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	codeLength   = 8
)

func generateCode() (string, error) {
	buf := make([]byte, codeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random: %w", err)
	}
	for i := range buf {
		buf[i] = codeAlphabet[int(buf[i])%len(codeAlphabet)]
	}
	return "KAV" + string(buf), nil
}

// GenerateReferralCode возвращает реферальный код пользователя, создавая его при
// первом обращении. Код регистрируется как промокод, принадлежащий пользователю,
// поэтому уникальность обеспечивается общим пространством имён промокодов.
// Повторные вызовы возвращают уже существующий код.
func (s *Service) GenerateReferralCode(ctx context.Context, userID uuid.UUID) (string, error) {
	user, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		return "", err
	}
	if user.ReferralCode != nil {
		return *user.ReferralCode, nil
	}

	for attempt := 0; attempt < 5; attempt++ {
		code, err := generateCode()
		if err != nil {
			return "", err
		}

		err = s.repo.CreateReferralCode(ctx, userID, code, referralDiscountPercent, referralRewardPercent)
		if err != nil {
			if errors.Is(err, repository.ErrCodeTaken) {
				continue
			}
			return "", err
		}

		// Конкурентный запрос мог присвоить код первым.
		user, err = s.repo.GetUserByID(ctx, userID)
		if err != nil {
			return "", err
		}
		if user.ReferralCode != nil {
			return *user.ReferralCode, nil
		}
		return code, nil
	}

	return "", fmt.Errorf("generate referral code: attempts exhausted")
}

// RegisterTelegramUser создаёт или обновляет пользователя по данным Telegram и
// привязывает его к пригласившему, если передан чужой реферальный код.
func (s *Service) RegisterTelegramUser(ctx context.Context, telegramID int64, username *string, firstName, referralCode string) error {
	user, err := s.repo.GetOrCreateUser(ctx, telegramID, username, firstName)
	if err != nil {
		return err
	}

	if referralCode == "" || user.ReferredBy != nil {
		return nil
	}

	referrer, err := s.repo.GetUserByReferralCode(ctx, referralCode)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil
		}
		return err
	}
	if referrer.ID == user.ID {
		return nil
	}

	linked, err := s.repo.SetReferredBy(ctx, user.ID, referrer.ID)
	if err != nil {
		return err
	}
	if !linked {
		return nil
	}

	return s.repo.CreateReferral(ctx, referrer.ID, user.ID)
}

// CompleteReferral завершает реферальную связь и единожды начисляет бонус
// пригласившему. Повторные вызовы — no-op: событие оплаты может доставляться
// более одного раза.
func (s *Service) CompleteReferral(ctx context.Context, referralID uuid.UUID) (bool, error) {
	return s.repo.CompleteReferral(ctx, referralID, referralBonusPoints,
		"Бонус за приглашённого друга")
}
