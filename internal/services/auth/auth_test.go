// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package auth_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"codeberg.org/oliverandrich/chat-backend/internal/apperr"
	"codeberg.org/oliverandrich/chat-backend/internal/models"
	"codeberg.org/oliverandrich/chat-backend/internal/repository"
	"codeberg.org/oliverandrich/chat-backend/internal/services/auth"
	"codeberg.org/oliverandrich/chat-backend/internal/services/password"
	"codeberg.org/oliverandrich/chat-backend/internal/services/token"
	"codeberg.org/oliverandrich/chat-backend/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type fixture struct {
	svc    *auth.Service
	repo   *repository.Repository
	sender *testutil.RecordingSender
	clock  *testutil.Clock
	issuer *token.Issuer
}

func newFixture(t *testing.T, opts ...auth.Option) *fixture {
	t.Helper()
	_, repo := testutil.NewTestDB(t)
	clock := testutil.NewClock(time.Now().UTC().Truncate(time.Second))
	issuer, err := token.NewIssuer(token.Config{
		AccessSecret:  "access-secret",
		RefreshSecret: "refresh-secret",
	}, token.WithClock(clock.Now))
	require.NoError(t, err)

	sender := &testutil.RecordingSender{}
	opts = append([]auth.Option{auth.WithClock(clock.Now), auth.WithBcryptCost(bcrypt.MinCost)}, opts...)

	return &fixture{
		svc:    auth.NewService(repo, issuer, sender, opts...),
		repo:   repo,
		sender: sender,
		clock:  clock,
		issuer: issuer,
	}
}

func (f *fixture) signUp(t *testing.T, email string) string {
	t.Helper()
	_, err := f.svc.SignUp(context.Background(), auth.SignUpParams{
		Email:    email,
		Password: testutil.TestPassword,
		Name:     "Alice Smith",
	})
	require.NoError(t, err)
	code := f.sender.LastCode(email)
	require.NotEmpty(t, code)
	return code
}

func sequence(codes ...string) func() (string, error) {
	var mu sync.Mutex
	return func() (string, error) {
		mu.Lock()
		defer mu.Unlock()
		code := codes[0]
		if len(codes) > 1 {
			codes = codes[1:]
		}
		return code, nil
	}
}

func TestSignUp(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	result, err := f.svc.SignUp(ctx, auth.SignUpParams{
		Email:    "alice@example.com",
		Password: testutil.TestPassword,
		Name:     "Alice Smith",
	})

	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", result.Email)

	user, err := f.repo.GetUserByEmail(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.False(t, user.IsEmailVerified)
	assert.Equal(t, "Alice Smith", user.Name)
	require.True(t, user.HasPendingCode())
	assert.Len(t, *user.EmailVerificationCode, 6)
	assert.True(t, f.clock.Now().Add(15*time.Minute).Equal(*user.EmailVerificationExpiry))
	assert.NoError(t, password.Compare([]byte(user.PasswordHash), testutil.TestPassword))
	assert.NotEqual(t, testutil.TestPassword, user.PasswordHash)

	require.Len(t, f.sender.Messages, 1)
	msg := f.sender.Messages[0]
	assert.Equal(t, "alice@example.com", msg.To)
	assert.Equal(t, "Alice Smith", msg.Name)
	assert.Equal(t, *user.EmailVerificationCode, msg.Code)
	assert.Equal(t, 15*time.Minute, msg.TTL)
}

func TestSignUp_LongMultibytePassword(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	pw := "Aa1" + strings.Repeat("ß", 125)
	require.Greater(t, len(pw), 72)

	_, err := f.svc.SignUp(ctx, auth.SignUpParams{Email: "long@example.com", Password: pw, Name: "Long Password"})
	require.NoError(t, err)
	_, err = f.svc.VerifyEmail(ctx, "long@example.com", f.sender.LastCode("long@example.com"))
	require.NoError(t, err)

	session, err := f.svc.SignIn(ctx, "long@example.com", pw)
	require.NoError(t, err)
	assert.Equal(t, "long@example.com", session.User.Email)

	_, err = f.svc.SignIn(ctx, "long@example.com", pw[:len(pw)-2])
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials)
}

func TestSignUp_DefaultBcryptCost(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	issuer, err := token.NewIssuer(token.Config{AccessSecret: "a", RefreshSecret: "r"})
	require.NoError(t, err)
	svc := auth.NewService(repo, issuer, &testutil.RecordingSender{})

	_, err = svc.SignUp(context.Background(), auth.SignUpParams{
		Email: "cost@example.com", Password: testutil.TestPassword, Name: "Cost Check",
	})
	require.NoError(t, err)

	user, err := repo.GetUserByEmail(context.Background(), "cost@example.com")
	require.NoError(t, err)
	cost, err := bcrypt.Cost([]byte(user.PasswordHash))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, cost, auth.DefaultBcryptCost)
}

func TestSignUp_EmailTaken(t *testing.T) {
	f := newFixture(t)
	testutil.NewTestUser(t, f.repo, "taken@example.com", true)

	_, err := f.svc.SignUp(context.Background(), auth.SignUpParams{
		Email: "taken@example.com", Password: testutil.TestPassword, Name: "Someone Else",
	})

	assert.ErrorIs(t, err, auth.ErrEmailTaken)
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))
	assert.Empty(t, f.sender.Messages)
}

func TestSignUp_ConcurrentSameEmail(t *testing.T) {
	f := newFixture(t)

	const attempts = 5
	errs := make([]error, attempts)
	var wg sync.WaitGroup
	for i := range attempts {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.SignUp(context.Background(), auth.SignUpParams{
				Email: "race@example.com", Password: testutil.TestPassword, Name: "Race Runner",
			})
		}(i)
	}
	wg.Wait()

	var ok int
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		assert.ErrorIs(t, err, auth.ErrEmailTaken)
	}
	assert.Equal(t, 1, ok)

	count, err := f.repo.CountUsers(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestSignUp_DeliveryFailureIsNotFatal(t *testing.T) {
	f := newFixture(t)
	f.sender.Err = errors.New("smtp down")

	result, err := f.svc.SignUp(context.Background(), auth.SignUpParams{
		Email: "bob@example.com", Password: testutil.TestPassword, Name: "Bob",
	})

	require.NoError(t, err)
	assert.Equal(t, "bob@example.com", result.Email)

	user, err := f.repo.GetUserByEmail(context.Background(), "bob@example.com")
	require.NoError(t, err)
	assert.False(t, user.IsEmailVerified)
}

func TestSignUp_Validation(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name   string
		params auth.SignUpParams
		fields []string
	}{
		{"all empty", auth.SignUpParams{}, []string{"email", "password", "name"}},
		{"bad email", auth.SignUpParams{Email: "nope", Password: testutil.TestPassword, Name: "Alice"}, []string{"email"}},
		{"weak password", auth.SignUpParams{Email: "a@example.com", Password: "password", Name: "Alice"}, []string{"password"}},
		{"name with digits", auth.SignUpParams{Email: "a@example.com", Password: testutil.TestPassword, Name: "R2D2"}, []string{"name"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.SignUp(context.Background(), tt.params)

			var appErr *apperr.Error
			require.ErrorAs(t, err, &appErr)
			assert.Equal(t, apperr.KindValidation, appErr.Kind)
			var fields []string
			for _, fe := range appErr.Fields {
				fields = append(fields, fe.Field)
			}
			for _, field := range tt.fields {
				assert.Contains(t, fields, field)
			}
		})
	}

	count, err := f.repo.CountUsers(context.Background())
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestVerifyEmail(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	code := f.signUp(t, "alice@example.com")

	session, err := f.svc.VerifyEmail(ctx, "alice@example.com", code)

	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", session.User.Email)
	assert.Equal(t, "Alice Smith", session.User.Name)

	claims, err := f.issuer.Validate(session.Tokens.AccessToken, token.KindAccess)
	require.NoError(t, err)
	assert.Equal(t, session.User.ID, claims.Subject)
	_, err = f.issuer.Validate(session.Tokens.RefreshToken, token.KindRefresh)
	require.NoError(t, err)

	user, err := f.repo.GetUserByEmail(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.True(t, user.IsEmailVerified)
	assert.Nil(t, user.EmailVerificationCode)
	assert.Nil(t, user.EmailVerificationExpiry)
}

func TestVerifyEmail_Twice(t *testing.T) {
	f := newFixture(t)
	code := f.signUp(t, "alice@example.com")

	_, err := f.svc.VerifyEmail(context.Background(), "alice@example.com", code)
	require.NoError(t, err)

	_, err = f.svc.VerifyEmail(context.Background(), "alice@example.com", code)
	assert.ErrorIs(t, err, auth.ErrAlreadyVerified)
}

// resendingStore stores a fresh code right after the user is read, as a
// resend landing between the read and the update would.
type resendingStore struct {
	*repository.Repository
	newCode string
}

func (s *resendingStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	user, err := s.Repository.GetUserByEmail(ctx, email)
	if err != nil || user.IsEmailVerified || s.newCode == "" {
		return user, err
	}
	if err := s.SetVerificationCode(ctx, user.ID, s.newCode, time.Now().Add(time.Hour)); err != nil {
		return nil, err
	}
	return user, nil
}

func TestVerifyEmail_CodeReplacedAfterRead(t *testing.T) {
	_, repo := testutil.NewTestDB(t)
	ctx := context.Background()
	issuer, err := token.NewIssuer(token.Config{AccessSecret: "a", RefreshSecret: "r"})
	require.NoError(t, err)
	store := &resendingStore{Repository: repo}
	svc := auth.NewService(store, issuer, &testutil.RecordingSender{},
		auth.WithBcryptCost(bcrypt.MinCost),
		auth.WithCodeGenerator(sequence("111111")),
	)
	_, err = svc.SignUp(ctx, auth.SignUpParams{
		Email: "alice@example.com", Password: testutil.TestPassword, Name: "Alice Smith",
	})
	require.NoError(t, err)
	store.newCode = "222222"

	_, err = svc.VerifyEmail(ctx, "alice@example.com", "111111")

	require.ErrorIs(t, err, auth.ErrInvalidCode)
	user, err := repo.GetUserByEmail(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.False(t, user.IsEmailVerified)
	require.NotNil(t, user.EmailVerificationCode)
	assert.Equal(t, "222222", *user.EmailVerificationCode)
}

func TestVerifyEmail_UnknownUser(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.VerifyEmail(context.Background(), "ghost@example.com", "123456")

	assert.ErrorIs(t, err, auth.ErrUserNotFound)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestVerifyEmail_WrongCode(t *testing.T) {
	f := newFixture(t, auth.WithCodeGenerator(sequence("111111")))
	f.signUp(t, "alice@example.com")

	_, err := f.svc.VerifyEmail(context.Background(), "alice@example.com", "222222")

	assert.ErrorIs(t, err, auth.ErrInvalidCode)

	user, err := f.repo.GetUserByEmail(context.Background(), "alice@example.com")
	require.NoError(t, err)
	assert.False(t, user.IsEmailVerified)
	assert.True(t, user.HasPendingCode())
}

func TestVerifyEmail_Expiry(t *testing.T) {
	t.Run("valid at the expiry instant", func(t *testing.T) {
		f := newFixture(t)
		code := f.signUp(t, "alice@example.com")
		f.clock.Advance(15 * time.Minute)

		_, err := f.svc.VerifyEmail(context.Background(), "alice@example.com", code)
		assert.NoError(t, err)
	})

	t.Run("expired one tick later", func(t *testing.T) {
		f := newFixture(t)
		code := f.signUp(t, "alice@example.com")
		f.clock.Advance(15*time.Minute + time.Nanosecond)

		_, err := f.svc.VerifyEmail(context.Background(), "alice@example.com", code)
		assert.ErrorIs(t, err, auth.ErrCodeExpired)
	})

	t.Run("expiry is checked before the code", func(t *testing.T) {
		f := newFixture(t, auth.WithCodeGenerator(sequence("111111")))
		f.signUp(t, "alice@example.com")
		f.clock.Advance(time.Hour)

		_, err := f.svc.VerifyEmail(context.Background(), "alice@example.com", "999999")
		assert.ErrorIs(t, err, auth.ErrCodeExpired)
	})
}

func TestVerifyEmail_NoCodeIssued(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.repo.CreateUser(context.Background(), &models.User{
		Email:        "nocode@example.com",
		PasswordHash: "x",
		Name:         "No Code",
	}))

	_, err := f.svc.VerifyEmail(context.Background(), "nocode@example.com", "123456")

	assert.ErrorIs(t, err, auth.ErrNoCodeIssued)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestVerifyEmail_MalformedCode(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.VerifyEmail(context.Background(), "alice@example.com", "12ab56")

	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestResendCode(t *testing.T) {
	f := newFixture(t, auth.WithCodeGenerator(sequence("111111", "222222")))
	ctx := context.Background()
	f.signUp(t, "alice@example.com")
	f.clock.Advance(10 * time.Minute)

	require.NoError(t, f.svc.ResendCode(ctx, "alice@example.com"))

	assert.Equal(t, "222222", f.sender.LastCode("alice@example.com"))
	user, err := f.repo.GetUserByEmail(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, "222222", *user.EmailVerificationCode)
	assert.True(t, f.clock.Now().Add(15*time.Minute).Equal(*user.EmailVerificationExpiry))

	// The replaced code no longer works
	_, err = f.svc.VerifyEmail(ctx, "alice@example.com", "111111")
	assert.ErrorIs(t, err, auth.ErrInvalidCode)

	_, err = f.svc.VerifyEmail(ctx, "alice@example.com", "222222")
	assert.NoError(t, err)
}

func TestResendCode_Errors(t *testing.T) {
	f := newFixture(t)
	testutil.NewTestUser(t, f.repo, "verified@example.com", true)

	assert.ErrorIs(t, f.svc.ResendCode(context.Background(), "ghost@example.com"), auth.ErrUserNotFound)
	assert.ErrorIs(t, f.svc.ResendCode(context.Background(), "verified@example.com"), auth.ErrAlreadyVerified)
	assert.Empty(t, f.sender.Messages)
}

func TestResendCode_DeliveryFailureIsFatal(t *testing.T) {
	f := newFixture(t)
	f.signUp(t, "alice@example.com")
	f.sender.Err = errors.New("smtp down")

	err := f.svc.ResendCode(context.Background(), "alice@example.com")

	assert.ErrorIs(t, err, auth.ErrDeliveryFailed)
	assert.Equal(t, apperr.KindInternal, apperr.KindOf(err))
}

func TestSignIn(t *testing.T) {
	f := newFixture(t)
	user := testutil.NewTestUser(t, f.repo, "alice@example.com", true)

	session, err := f.svc.SignIn(context.Background(), "alice@example.com", testutil.TestPassword)

	require.NoError(t, err)
	assert.Equal(t, user.ID, session.User.ID)
	claims, err := f.issuer.Validate(session.Tokens.AccessToken, token.KindAccess)
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", claims.Email)
}

func TestSignIn_Failures(t *testing.T) {
	f := newFixture(t)
	testutil.NewTestUser(t, f.repo, "verified@example.com", true)
	testutil.NewTestUser(t, f.repo, "pending@example.com", false)

	tests := []struct {
		name     string
		email    string
		password string
		want     error
	}{
		{"unknown user", "ghost@example.com", testutil.TestPassword, auth.ErrInvalidCredentials},
		{"wrong password", "verified@example.com", "Wrong1234", auth.ErrInvalidCredentials},
		{"unverified", "pending@example.com", testutil.TestPassword, auth.ErrEmailNotVerified},
		{"unverified is checked before the password", "pending@example.com", "Wrong1234", auth.ErrEmailNotVerified},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.SignIn(context.Background(), tt.email, tt.password)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestSignIn_Validation(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.SignIn(context.Background(), "", "")

	var appErr *apperr.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperr.KindValidation, appErr.Kind)
	assert.Len(t, appErr.Fields, 2)
}

func TestRefresh(t *testing.T) {
	f := newFixture(t)
	testutil.NewTestUser(t, f.repo, "alice@example.com", true)
	session, err := f.svc.SignIn(context.Background(), "alice@example.com", testutil.TestPassword)
	require.NoError(t, err)

	pair, err := f.svc.Refresh(context.Background(), session.Tokens.RefreshToken)

	require.NoError(t, err)
	assert.NotEqual(t, session.Tokens.RefreshToken, pair.RefreshToken)
	assert.NotEqual(t, session.Tokens.AccessToken, pair.AccessToken)
	claims, err := f.issuer.Validate(pair.AccessToken, token.KindAccess)
	require.NoError(t, err)
	assert.Equal(t, session.User.ID, claims.Subject)

	// No revocation: the old refresh token keeps working until it expires
	_, err = f.svc.Refresh(context.Background(), session.Tokens.RefreshToken)
	assert.NoError(t, err)
}

func TestRefresh_Rejections(t *testing.T) {
	f := newFixture(t)
	verified := testutil.NewTestUser(t, f.repo, "alice@example.com", true)
	pending := testutil.NewTestUser(t, f.repo, "pending@example.com", false)

	verifiedPair, err := f.issuer.Issue(verified.ID, verified.Email)
	require.NoError(t, err)
	pendingPair, err := f.issuer.Issue(pending.ID, pending.Email)
	require.NoError(t, err)
	ghostPair, err := f.issuer.Issue("00000000-0000-0000-0000-000000000000", "ghost@example.com")
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{"garbage", "not-a-token"},
		{"access token", verifiedPair.AccessToken},
		{"unknown user", ghostPair.RefreshToken},
		{"unverified user", pendingPair.RefreshToken},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Refresh(context.Background(), tt.token)
			assert.ErrorIs(t, err, auth.ErrInvalidRefreshToken)
			assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))
		})
	}

	t.Run("expired", func(t *testing.T) {
		f.clock.Advance(token.DefaultRefreshTTL + time.Second)
		_, err := f.svc.Refresh(context.Background(), verifiedPair.RefreshToken)
		assert.ErrorIs(t, err, auth.ErrInvalidRefreshToken)
	})
}

func TestLogout(t *testing.T) {
	f := newFixture(t)

	assert.NoError(t, f.svc.Logout(context.Background()))
}

func TestMe(t *testing.T) {
	f := newFixture(t)
	user := testutil.NewTestUser(t, f.repo, "alice@example.com", true)

	profile, err := f.svc.Me(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Equal(t, user.Profile(), profile)

	_, err = f.svc.Me(context.Background(), "missing")
	assert.ErrorIs(t, err, auth.ErrUserNotFound)
}

func TestCodesAreSixDigits(t *testing.T) {
	f := newFixture(t)

	for i := range 5 {
		code := f.signUp(t, fmt.Sprintf("user%d@example.com", i))
		assert.Regexp(t, `^[1-9][0-9]{5}$`, code)
	}
}
