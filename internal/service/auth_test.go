package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/linemk/tolo-delivery/internal/domain/models"
	"github.com/linemk/tolo-delivery/internal/lib/apperr"
	"github.com/linemk/tolo-delivery/internal/lib/metrics"
	"github.com/linemk/tolo-delivery/internal/service"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAuthService(t *testing.T, repo *fakeUserRepo) (*service.AuthService, *metrics.Metrics) {
	t.Helper()
	m := metrics.NewNoop()
	return service.NewAuthService(discardLogger(), repo, newIssuer(t), newVerifier(t), m), m
}

func TestAuthService_Register_NewUser(t *testing.T) {
	repo := newFakeUserRepo()
	authSvc, _ := newAuthService(t, repo)
	ctx := context.Background()

	user, err := authSvc.Register(ctx, " 0911000000 ", "password123")
	require.NoError(t, err)
	assert.Equal(t, int64(1), user.ID)
	assert.Equal(t, "0911000000", user.Phone)

	stored, err := repo.GetUserByPhone(ctx, "0911000000")
	require.NoError(t, err)
	// Проверяем, что пароль хэширован (не равен исходному паролю)
	assert.NotEqual(t, "password123", string(stored.PassHash))
	assert.True(t, stored.HasPassword())
}

func TestAuthService_Register_Twice(t *testing.T) {
	repo := newFakeUserRepo()
	authSvc, _ := newAuthService(t, repo)
	ctx := context.Background()

	_, err := authSvc.Register(ctx, "0911000000", "password123")
	require.NoError(t, err)

	_, err = authSvc.Register(ctx, "0911000000", "another-pass")
	assert.True(t, errors.Is(err, apperr.ErrPhoneAlreadyRegistered))
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))
	assert.Equal(t, 1, repo.creates)
}

func TestAuthService_Register_MissingFields(t *testing.T) {
	authSvc, _ := newAuthService(t, newFakeUserRepo())

	_, err := authSvc.Register(context.Background(), "  ", "password123")
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	_, err = authSvc.Register(context.Background(), "0911000000", "")
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestAuthService_Register_TelegramPrefixRejected(t *testing.T) {
	repo := newFakeUserRepo()
	authSvc, _ := newAuthService(t, repo)

	_, err := authSvc.Register(context.Background(), "tg:42", "password123")
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	assert.Equal(t, 0, repo.creates)
}

func TestAuthService_Login_Success(t *testing.T) {
	repo := newFakeUserRepo()
	authSvc, m := newAuthService(t, repo)
	ctx := context.Background()

	registered, err := authSvc.Register(ctx, "0911000000", "password123")
	require.NoError(t, err)

	token, user, err := authSvc.Login(ctx, "0911000000", "password123")
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.Equal(t, registered.ID, user.ID)

	authenticated, err := authSvc.Authenticate(ctx, token, "")
	require.NoError(t, err)
	assert.Equal(t, registered.ID, authenticated.ID)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Logins.WithLabelValues("password", "ok")))
}

func TestAuthService_Login_WrongPassword(t *testing.T) {
	repo := newFakeUserRepo()
	authSvc, m := newAuthService(t, repo)
	ctx := context.Background()

	_, err := authSvc.Register(ctx, "0911000000", "password123")
	require.NoError(t, err)

	token, user, err := authSvc.Login(ctx, "0911000000", "wrongpassword")
	assert.True(t, errors.Is(err, apperr.ErrInvalidCredentials))
	assert.Equal(t, apperr.KindAuth, apperr.KindOf(err))
	assert.Empty(t, token)
	assert.Nil(t, user)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Logins.WithLabelValues("password", "rejected")))
}

func TestAuthService_Login_UnknownPhone(t *testing.T) {
	authSvc, _ := newAuthService(t, newFakeUserRepo())

	token, _, err := authSvc.Login(context.Background(), "0911999999", "password123")
	assert.True(t, errors.Is(err, apperr.ErrInvalidCredentials))
	assert.Empty(t, token)
}

func TestAuthService_Login_TelegramUserHasNoPassword(t *testing.T) {
	repo := newFakeUserRepo()
	authSvc, _ := newAuthService(t, repo)
	ctx := context.Background()

	_, _, err := authSvc.LoginTelegram(ctx, signedInitData(`{"id":555,"first_name":"Sara","phone_number":"0911555555"}`))
	require.NoError(t, err)

	_, _, err = authSvc.Login(ctx, "0911555555", "")
	assert.True(t, errors.Is(err, apperr.ErrInvalidCredentials))
}

func TestAuthService_Login_RepoError(t *testing.T) {
	repo := newFakeUserRepo()
	repo.getErr = errors.New("db down")
	authSvc, _ := newAuthService(t, repo)

	_, _, err := authSvc.Login(context.Background(), "0911000000", "password123")
	assert.Error(t, err)
	assert.Equal(t, apperr.KindInternal, apperr.KindOf(err))
}

func TestAuthService_LoginTelegram_Idempotent(t *testing.T) {
	repo := newFakeUserRepo()
	authSvc, _ := newAuthService(t, repo)
	ctx := context.Background()
	raw := signedInitData(`{"id":279058397,"first_name":"Abebe","last_name":"Kebede"}`)

	token1, user1, err := authSvc.LoginTelegram(ctx, raw)
	require.NoError(t, err)
	token2, user2, err := authSvc.LoginTelegram(ctx, raw)
	require.NoError(t, err)

	assert.NotEmpty(t, token1)
	assert.NotEmpty(t, token2)
	assert.Equal(t, user1.ID, user2.ID)
	assert.Equal(t, 1, repo.creates)
	assert.Equal(t, "tg:279058397", user1.Phone)
	assert.Equal(t, "Abebe Kebede", user1.DisplayName)
	require.NotNil(t, user1.ExternalID)
	assert.Equal(t, int64(279058397), *user1.ExternalID)
}

func TestAuthService_LoginTelegram_ConcurrentFirstLogin(t *testing.T) {
	repo := newFakeUserRepo()
	authSvc, _ := newAuthService(t, repo)
	raw := signedInitData(`{"id":42,"first_name":"Sara"}`)

	var wg sync.WaitGroup
	ids := make([]int64, 8)
	errs := make([]error, 8)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, user, err := authSvc.LoginTelegram(context.Background(), raw)
			errs[i] = err
			if err == nil {
				ids[i] = user.ID
			}
		}(i)
	}
	wg.Wait()

	for i := range ids {
		require.NoError(t, errs[i])
		assert.Equal(t, ids[0], ids[i])
	}
	assert.Equal(t, 1, repo.creates)
}

func TestAuthService_LoginTelegram_AttachesToExistingPhone(t *testing.T) {
	repo := newFakeUserRepo()
	authSvc, _ := newAuthService(t, repo)
	ctx := context.Background()

	registered, err := authSvc.Register(ctx, "0911000000", "password123")
	require.NoError(t, err)

	_, user, err := authSvc.LoginTelegram(ctx, signedInitData(`{"id":777,"first_name":"Lemlem","phone_number":"0911000000"}`))
	require.NoError(t, err)
	assert.Equal(t, registered.ID, user.ID)
	require.NotNil(t, user.ExternalID)
	assert.Equal(t, int64(777), *user.ExternalID)
	assert.Equal(t, 1, repo.creates)

	// пароль по-прежнему работает
	_, _, err = authSvc.Login(ctx, "0911000000", "password123")
	assert.NoError(t, err)
}

func TestAuthService_LoginTelegram_PhoneArrivesLater(t *testing.T) {
	repo := newFakeUserRepo()
	authSvc, _ := newAuthService(t, repo)
	ctx := context.Background()

	_, first, err := authSvc.LoginTelegram(ctx, signedInitData(`{"id":42,"first_name":"Sara"}`))
	require.NoError(t, err)
	assert.Equal(t, "tg:42", first.Phone)

	// тот же аккаунт, теперь с номером
	_, second, err := authSvc.LoginTelegram(ctx, signedInitData(`{"id":42,"first_name":"Sara","phone_number":"0911000000"}`))
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 1, repo.creates)
}

func TestAuthService_LoginTelegram_PhoneBoundToAnotherAccount(t *testing.T) {
	repo := newFakeUserRepo()
	otherID := int64(7)
	other := repo.seed(&models.User{Phone: "0911000000", ExternalID: &otherID, DisplayName: "Other"})
	authSvc, _ := newAuthService(t, repo)

	_, user, err := authSvc.LoginTelegram(context.Background(), signedInitData(`{"id":42,"first_name":"Sara","phone_number":"0911000000"}`))
	require.NoError(t, err)
	assert.NotEqual(t, other.ID, user.ID)
	assert.Equal(t, "tg:42", user.Phone)
	require.NotNil(t, user.ExternalID)
	assert.Equal(t, int64(42), *user.ExternalID)

	stored, err := repo.GetUserByPhone(context.Background(), "0911000000")
	require.NoError(t, err)
	assert.Equal(t, int64(7), *stored.ExternalID)
}

func TestAuthService_LoginTelegram_ExternalIDTakenOnCreate(t *testing.T) {
	repo := newFakeUserRepo()
	externalID := int64(42)
	// параллельный вход без номера успел создать tg:42
	repo.racer = &models.User{Phone: "tg:42", ExternalID: &externalID, DisplayName: "Sara"}
	authSvc, _ := newAuthService(t, repo)

	_, user, err := authSvc.LoginTelegram(context.Background(), signedInitData(`{"id":42,"first_name":"Sara","phone_number":"0911000000"}`))
	require.NoError(t, err)
	assert.Nil(t, repo.racer)
	assert.Equal(t, "tg:42", user.Phone)
	assert.Equal(t, 0, repo.creates)
}

func TestAuthService_LoginTelegram_ExternalIDTakenOnAttach(t *testing.T) {
	repo := newFakeUserRepo()
	password := repo.seed(&models.User{Phone: "0911000000", PassHash: []byte("hash")})
	externalID := int64(42)
	racer := &models.User{Phone: "tg:42", ExternalID: &externalID}
	repo.racer = racer
	authSvc, _ := newAuthService(t, repo)

	_, user, err := authSvc.LoginTelegram(context.Background(), signedInitData(`{"id":42,"first_name":"Sara","phone_number":"0911000000"}`))
	require.NoError(t, err)
	assert.Equal(t, racer.ID, user.ID)
	assert.NotEqual(t, password.ID, user.ID)

	stored, err := repo.GetUserByPhone(context.Background(), "0911000000")
	require.NoError(t, err)
	assert.Nil(t, stored.ExternalID, "password user keeps no telegram id")
}

func TestAuthService_LoginTelegram_BadSignature(t *testing.T) {
	repo := newFakeUserRepo()
	authSvc, m := newAuthService(t, repo)

	raw := signedInitData(`{"id":1,"first_name":"A"}`) + "x"
	token, user, err := authSvc.LoginTelegram(context.Background(), raw)
	assert.True(t, errors.Is(err, apperr.ErrInvalidSignature))
	assert.Empty(t, token)
	assert.Nil(t, user)
	assert.Equal(t, 0, repo.creates)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Logins.WithLabelValues("telegram", "rejected")))
}

func TestAuthService_LoginTelegram_NoUserObject(t *testing.T) {
	authSvc, _ := newAuthService(t, newFakeUserRepo())

	_, _, err := authSvc.LoginTelegram(context.Background(), signedInitData("not-json"))
	assert.True(t, errors.Is(err, apperr.ErrNoTelegramUser))
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestAuthService_Authenticate(t *testing.T) {
	repo := newFakeUserRepo()
	authSvc, _ := newAuthService(t, repo)
	ctx := context.Background()

	t.Run("no credentials", func(t *testing.T) {
		_, err := authSvc.Authenticate(ctx, "", "")
		assert.True(t, errors.Is(err, apperr.ErrTokenMissing))
		assert.Equal(t, apperr.KindAuth, apperr.KindOf(err))
	})

	t.Run("invalid token does not fall back to init data", func(t *testing.T) {
		_, err := authSvc.Authenticate(ctx, "garbage", signedInitData(`{"id":9,"first_name":"N"}`))
		assert.True(t, errors.Is(err, apperr.ErrTokenInvalid))
		assert.Equal(t, 0, repo.creates)
	})

	t.Run("init data fallback", func(t *testing.T) {
		user, err := authSvc.Authenticate(ctx, "", signedInitData(`{"id":9,"first_name":"N"}`))
		require.NoError(t, err)
		assert.Equal(t, "tg:9", user.Phone)
	})

	t.Run("tampered init data", func(t *testing.T) {
		_, err := authSvc.Authenticate(ctx, "", signedInitData(`{"id":9,"first_name":"N"}`)+"0")
		assert.Equal(t, apperr.KindAuth, apperr.KindOf(err))
	})

	t.Run("deleted user", func(t *testing.T) {
		token, err := newIssuer(t).NewToken(9999)
		require.NoError(t, err)
		_, err = authSvc.Authenticate(ctx, token, "")
		assert.True(t, errors.Is(err, apperr.ErrUserNotFound))
		assert.Equal(t, apperr.KindAuth, apperr.KindOf(err))
	})
}

func TestSyntheticPhone(t *testing.T) {
	assert.Equal(t, "tg:279058397", service.SyntheticPhone(279058397))
}
