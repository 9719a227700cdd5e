package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/linemk/tolo-delivery/internal/domain/models"
	"github.com/linemk/tolo-delivery/internal/initdata"
	"github.com/linemk/tolo-delivery/internal/lib/apperr"
	"github.com/linemk/tolo-delivery/internal/lib/metrics"
	"github.com/linemk/tolo-delivery/internal/storage"
	"golang.org/x/crypto/bcrypt"
)

// TelegramPhonePrefix - префикс синтетического телефона для пользователей
// Telegram без номера. Обычные номера не должны начинаться с него.
const TelegramPhonePrefix = "tg:"

// SyntheticPhone строит ключ пользователя по Telegram ID
func SyntheticPhone(externalID int64) string {
	return TelegramPhonePrefix + strconv.FormatInt(externalID, 10)
}

// TokenIssuer выпускает и разбирает сессионные токены
type TokenIssuer interface {
	NewToken(userID int64) (string, error)
	ParseToken(token string) (int64, error)
}

// InitDataVerifier проверяет подпись Telegram initData
type InitDataVerifier interface {
	Verify(raw string) (*initdata.InitData, error)
}

type AuthServiceInterface interface {
	Register(ctx context.Context, phone, password string) (*models.User, error)
	Login(ctx context.Context, phone, password string) (string, *models.User, error)
	LoginTelegram(ctx context.Context, initData string) (string, *models.User, error)
}

// Authenticator определяет пользователя защищённого запроса
type Authenticator interface {
	Authenticate(ctx context.Context, token, initData string) (*models.User, error)
}

type AuthService struct {
	log      *slog.Logger
	userRepo storage.UserStorage
	tokens   TokenIssuer
	initData InitDataVerifier
	metrics  *metrics.Metrics
}

func NewAuthService(log *slog.Logger, userRepo storage.UserStorage, tokens TokenIssuer, verifier InitDataVerifier, m *metrics.Metrics) *AuthService {
	return &AuthService{
		log:      log,
		userRepo: userRepo,
		tokens:   tokens,
		initData: verifier,
		metrics:  m,
	}
}

// Register создаёт пользователя с паролем. Занятый телефон - ErrPhoneAlreadyRegistered.
func (a *AuthService) Register(ctx context.Context, phone, password string) (*models.User, error) {
	const op = "service.AuthService.Register"
	phone = strings.TrimSpace(phone)
	logger := a.log.With(slog.String("op", op), slog.String("phone", phone))

	if phone == "" || password == "" {
		return nil, fmt.Errorf("%s: %w", op, apperr.New(apperr.KindValidation, "missing_credentials", "phone and password required"))
	}
	if strings.HasPrefix(phone, TelegramPhonePrefix) {
		return nil, fmt.Errorf("%s: %w", op, apperr.New(apperr.KindValidation, "invalid_phone", "phone must not start with "+TelegramPhonePrefix))
	}

	if _, err := a.userRepo.GetUserByPhone(ctx, phone); err == nil {
		logger.Info("phone already registered")
		return nil, fmt.Errorf("%s: %w", op, apperr.ErrPhoneAlreadyRegistered)
	} else if !errors.Is(err, storage.ErrUserNotFound) {
		logger.Error("failed to get user", slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to get user: %w", op, err)
	}

	// bcrypt сам добавляет соль
	passHash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		logger.Error("failed to hash password", slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to hash password: %w", op, err)
	}

	user, err := a.userRepo.CreateUser(ctx, &models.User{Phone: phone, PassHash: passHash})
	if err != nil {
		if errors.Is(err, storage.ErrPhoneTaken) {
			return nil, fmt.Errorf("%s: %w", op, apperr.ErrPhoneAlreadyRegistered)
		}
		logger.Error("failed to create user", slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to create user: %w", op, err)
	}

	logger.Info("user registered", slog.Int64("userID", user.ID))
	return user, nil
}

// Login проверяет телефон и пароль и выдаёт токен.
// Отсутствующий пользователь и неверный пароль неразличимы для клиента.
func (a *AuthService) Login(ctx context.Context, phone, password string) (string, *models.User, error) {
	const op = "service.AuthService.Login"
	phone = strings.TrimSpace(phone)
	logger := a.log.With(slog.String("op", op), slog.String("phone", phone))

	user, err := a.userRepo.GetUserByPhone(ctx, phone)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			logger.Warn("user not found")
			a.countLogin("password", "rejected")
			return "", nil, fmt.Errorf("%s: %w", op, apperr.ErrInvalidCredentials)
		}
		logger.Error("failed to get user", slog.Any("error", err))
		return "", nil, fmt.Errorf("%s: failed to get user: %w", op, err)
	}

	if !user.HasPassword() {
		logger.Warn("user has no password")
		a.countLogin("password", "rejected")
		return "", nil, fmt.Errorf("%s: %w", op, apperr.ErrInvalidCredentials)
	}
	if err := bcrypt.CompareHashAndPassword(user.PassHash, []byte(password)); err != nil {
		logger.Warn("invalid password")
		a.countLogin("password", "rejected")
		return "", nil, fmt.Errorf("%s: %w", op, apperr.ErrInvalidCredentials)
	}

	token, err := a.tokens.NewToken(user.ID)
	if err != nil {
		logger.Error("failed to generate token", slog.Any("error", err))
		return "", nil, fmt.Errorf("%s: failed to generate token: %w", op, err)
	}

	a.countLogin("password", "ok")
	logger.Info("user logged in successfully", slog.Int64("userID", user.ID))
	return token, user, nil
}

// LoginTelegram проверяет initData, находит или создаёт пользователя и выдаёт токен
func (a *AuthService) LoginTelegram(ctx context.Context, rawInitData string) (string, *models.User, error) {
	const op = "service.AuthService.LoginTelegram"
	logger := a.log.With(slog.String("op", op))

	data, err := a.initData.Verify(rawInitData)
	if err != nil {
		logger.Warn("init data rejected", slog.Any("error", err))
		a.countLogin("telegram", "rejected")
		return "", nil, fmt.Errorf("%s: %w", op, err)
	}

	user, err := a.ResolveTelegramUser(ctx, data)
	if err != nil {
		return "", nil, fmt.Errorf("%s: %w", op, err)
	}

	token, err := a.tokens.NewToken(user.ID)
	if err != nil {
		logger.Error("failed to generate token", slog.Any("error", err))
		return "", nil, fmt.Errorf("%s: failed to generate token: %w", op, err)
	}

	a.countLogin("telegram", "ok")
	logger.Info("telegram user logged in", slog.Int64("userID", user.ID))
	return token, user, nil
}

// ResolveTelegramUser находит пользователя Telegram и создаёт его при первом входе.
// Поиск идёт по Telegram ID, затем по телефону из Telegram, затем по синтетическому ключу tg:<id>.
// Телефон, уже привязанный к другому Telegram ID, не используется.
// Повторный вызов возвращает того же пользователя.
func (a *AuthService) ResolveTelegramUser(ctx context.Context, data *initdata.InitData) (*models.User, error) {
	const op = "service.AuthService.ResolveTelegramUser"

	if data == nil || data.User == nil {
		return nil, fmt.Errorf("%s: %w", op, apperr.ErrNoTelegramUser)
	}
	tgUser := data.User
	logger := a.log.With(slog.String("op", op), slog.Int64("telegramID", tgUser.ID))

	user, err := a.userRepo.GetUserByExternalID(ctx, tgUser.ID)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, storage.ErrUserNotFound) {
		logger.Error("failed to get user by telegram id", slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to get user: %w", op, err)
	}

	phones := make([]string, 0, 2)
	if phone := strings.TrimSpace(tgUser.PhoneNumber); phone != "" {
		phones = append(phones, phone)
	}
	phones = append(phones, SyntheticPhone(tgUser.ID))

	for _, phone := range phones {
		user, err := a.telegramUserByPhone(ctx, logger.With(slog.String("phone", phone)), tgUser, phone)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		if user != nil {
			return user, nil
		}
	}

	logger.Error("no free phone for telegram user")
	return nil, fmt.Errorf("%s: %w", op, apperr.ErrTelegramIdentityConflict)
}

// telegramUserByPhone находит или создаёт пользователя с данным телефоном.
// nil без ошибки - телефон занят другим Telegram ID.
func (a *AuthService) telegramUserByPhone(ctx context.Context, logger *slog.Logger, tgUser *initdata.User, phone string) (*models.User, error) {
	user, err := a.userRepo.GetUserByPhone(ctx, phone)
	if errors.Is(err, storage.ErrUserNotFound) {
		externalID := tgUser.ID
		user, err = a.userRepo.CreateUser(ctx, &models.User{
			Phone:       phone,
			ExternalID:  &externalID,
			DisplayName: tgUser.DisplayName(),
		})
		switch {
		case err == nil:
			logger.Info("telegram user created", slog.Int64("userID", user.ID))
			return user, nil
		case errors.Is(err, storage.ErrExternalIDTaken):
			// параллельный вход того же пользователя успел создать запись
			return a.telegramUserByExternalID(ctx, logger, tgUser.ID)
		case errors.Is(err, storage.ErrPhoneTaken):
			user, err = a.userRepo.GetUserByPhone(ctx, phone)
		}
	}
	if err != nil {
		logger.Error("failed to resolve user by phone", slog.Any("error", err))
		return nil, fmt.Errorf("failed to resolve user by phone: %w", err)
	}

	if user.ExternalID != nil {
		if *user.ExternalID == tgUser.ID {
			return user, nil
		}
		logger.Warn("phone is bound to another telegram id", slog.Int64("userID", user.ID))
		return nil, nil
	}

	if err := a.userRepo.AttachExternalID(ctx, user.ID, tgUser.ID, tgUser.DisplayName()); err != nil {
		if errors.Is(err, storage.ErrExternalIDTaken) {
			return a.telegramUserByExternalID(ctx, logger, tgUser.ID)
		}
		logger.Error("failed to attach telegram id", slog.Any("error", err))
		return nil, fmt.Errorf("failed to attach telegram id: %w", err)
	}
	externalID := tgUser.ID
	user.ExternalID = &externalID
	if user.DisplayName == "" {
		user.DisplayName = tgUser.DisplayName()
	}
	logger.Info("telegram id attached", slog.Int64("userID", user.ID))
	return user, nil
}

func (a *AuthService) telegramUserByExternalID(ctx context.Context, logger *slog.Logger, externalID int64) (*models.User, error) {
	user, err := a.userRepo.GetUserByExternalID(ctx, externalID)
	if err != nil {
		logger.Error("failed to re-read user by telegram id", slog.Any("error", err))
		return nil, fmt.Errorf("failed to get user by telegram id: %w", err)
	}
	return user, nil
}

// Authenticate сначала проверяет сессионный токен, а если его нет - initData.
// Невалидный токен не приводит к проверке initData.
func (a *AuthService) Authenticate(ctx context.Context, token, rawInitData string) (*models.User, error) {
	const op = "service.AuthService.Authenticate"

	if token != "" {
		userID, err := a.tokens.ParseToken(token)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		user, err := a.userRepo.GetUserByID(ctx, userID)
		if err != nil {
			if errors.Is(err, storage.ErrUserNotFound) {
				return nil, fmt.Errorf("%s: %w", op, apperr.ErrUserNotFound)
			}
			return nil, fmt.Errorf("%s: failed to get user: %w", op, err)
		}
		return user, nil
	}

	if rawInitData != "" {
		data, err := a.initData.Verify(rawInitData)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		return a.ResolveTelegramUser(ctx, data)
	}

	return nil, fmt.Errorf("%s: %w", op, apperr.ErrTokenMissing)
}

func (a *AuthService) countLogin(channel, result string) {
	if a.metrics != nil {
		a.metrics.Logins.WithLabelValues(channel, result).Inc()
	}
}
