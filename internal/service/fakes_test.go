package service_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/linemk/tolo-delivery/internal/domain/models"
	"github.com/linemk/tolo-delivery/internal/gateway"
	"github.com/linemk/tolo-delivery/internal/initdata"
	security "github.com/linemk/tolo-delivery/internal/jwt-new"
	"github.com/linemk/tolo-delivery/internal/storage"
	"github.com/stretchr/testify/require"
)

const testBotToken = "7000000000:AAtest-bot-token"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeUserRepo struct {
	mu      sync.Mutex
	users   map[string]*models.User // ключ - телефон
	nextID  int64
	creates int
	getErr  error
	// racer вставляется перед первой записью, как будто его создал параллельный запрос
	racer *models.User
}

var _ storage.UserStorage = (*fakeUserRepo)(nil)

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[string]*models.User)}
}

// seed кладёт пользователя в обход CreateUser
func (f *fakeUserRepo) seed(user *models.User) *models.User {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.insert(user)
	return user
}

func (f *fakeUserRepo) insert(user *models.User) {
	f.nextID++
	user.ID = f.nextID
	user.CreatedAt = time.Now()
	stored := *user
	f.users[user.Phone] = &stored
}

func (f *fakeUserRepo) applyRacer() {
	if f.racer != nil {
		f.insert(f.racer)
		f.racer = nil
	}
}

func (f *fakeUserRepo) byExternalID(externalID int64) *models.User {
	for _, u := range f.users {
		if u.ExternalID != nil && *u.ExternalID == externalID {
			return u
		}
	}
	return nil
}

func (f *fakeUserRepo) GetUserByPhone(ctx context.Context, phone string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	user, ok := f.users[phone]
	if !ok {
		return nil, storage.ErrUserNotFound
	}
	copied := *user
	return &copied, nil
}

func (f *fakeUserRepo) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.ID == id {
			copied := *u
			return &copied, nil
		}
	}
	return nil, storage.ErrUserNotFound
}

func (f *fakeUserRepo) GetUserByExternalID(ctx context.Context, externalID int64) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	user := f.byExternalID(externalID)
	if user == nil {
		return nil, storage.ErrUserNotFound
	}
	copied := *user
	return &copied, nil
}

func (f *fakeUserRepo) CreateUser(ctx context.Context, user *models.User) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.applyRacer()
	if _, ok := f.users[user.Phone]; ok {
		return nil, storage.ErrPhoneTaken
	}
	if user.ExternalID != nil && f.byExternalID(*user.ExternalID) != nil {
		return nil, storage.ErrExternalIDTaken
	}
	f.creates++
	f.insert(user)
	return user, nil
}

func (f *fakeUserRepo) AttachExternalID(ctx context.Context, id int64, externalID int64, displayName string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.applyRacer()
	if owner := f.byExternalID(externalID); owner != nil && owner.ID != id {
		return storage.ErrExternalIDTaken
	}
	for _, u := range f.users {
		if u.ID == id && u.ExternalID == nil {
			ext := externalID
			u.ExternalID = &ext
			if u.DisplayName == "" {
				u.DisplayName = displayName
			}
		}
	}
	return nil
}

type fakeOrderRepo struct {
	mu        sync.Mutex
	orders    map[string]*models.Order
	updates   int
	createErr error
}

var _ storage.OrderStorage = (*fakeOrderRepo)(nil)

func newFakeOrderRepo() *fakeOrderRepo {
	return &fakeOrderRepo{orders: make(map[string]*models.Order)}
}

func (f *fakeOrderRepo) CreateOrder(ctx context.Context, order *models.Order) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	order.CreatedAt = time.Now()
	order.UpdatedAt = order.CreatedAt
	stored := *order
	f.orders[order.ID] = &stored
	return nil
}

func (f *fakeOrderRepo) GetOrderByID(ctx context.Context, id string) (*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	order, ok := f.orders[id]
	if !ok {
		return nil, storage.ErrOrderNotFound
	}
	copied := *order
	return &copied, nil
}

func (f *fakeOrderRepo) UpdateOrderStatus(ctx context.Context, id string, status models.OrderStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	order, ok := f.orders[id]
	if !ok {
		return storage.ErrOrderNotFound
	}
	f.updates++
	order.Status = status
	return nil
}

func (f *fakeOrderRepo) SetCheckoutURL(ctx context.Context, id string, checkoutURL string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if order, ok := f.orders[id]; ok {
		order.CheckoutURL = checkoutURL
	}
	return nil
}

func (f *fakeOrderRepo) GetOrdersByUserID(ctx context.Context, userID int64) ([]*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var result []*models.Order
	for _, o := range f.orders {
		if o.UserID == userID {
			copied := *o
			result = append(result, &copied)
		}
	}
	return result, nil
}

func (f *fakeOrderRepo) get(id string) *models.Order {
	f.mu.Lock()
	defer f.mu.Unlock()
	order, ok := f.orders[id]
	if !ok {
		return nil
	}
	copied := *order
	return &copied
}

type fakeGateway struct {
	checkoutURL  string
	initErr      error
	verification *gateway.Verification
	verifyErr    error
	initCalls    []gateway.InitializeRequest
	verifyCalls  int
}

func (f *fakeGateway) Initialize(ctx context.Context, req gateway.InitializeRequest) (*gateway.Checkout, error) {
	f.initCalls = append(f.initCalls, req)
	if f.initErr != nil {
		return nil, f.initErr
	}
	return &gateway.Checkout{CheckoutURL: f.checkoutURL}, nil
}

func (f *fakeGateway) Verify(ctx context.Context, reference string) (*gateway.Verification, error) {
	f.verifyCalls++
	if f.verifyErr != nil {
		return nil, f.verifyErr
	}
	v := *f.verification
	v.Reference = reference
	return &v, nil
}

func newIssuer(t *testing.T) *security.Issuer {
	t.Helper()
	issuer, err := security.NewIssuer([]byte("testsecret"), 7*24*time.Hour)
	require.NoError(t, err)
	return issuer
}

func newVerifier(t *testing.T) *initdata.Verifier {
	t.Helper()
	v, err := initdata.NewVerifier(testBotToken, 0)
	require.NoError(t, err)
	return v
}

func signedInitData(user string) string {
	return initdata.Sign(testBotToken, map[string]string{
		"auth_date": "1700000000",
		"query_id":  "AAHdF6IQAAAAAN0XohDhrOrc",
		"user":      user,
	})
}
