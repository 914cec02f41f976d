package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jpillora/backoff"
	"github.com/kollektive-hackathon/walletrelay-backend/internal/auth"
	"github.com/kollektive-hackathon/walletrelay-backend/internal/pkg/chain"
	"github.com/kollektive-hackathon/walletrelay-backend/internal/pkg/model"
	"github.com/kollektive-hackathon/walletrelay-backend/internal/pkg/reject"
	"github.com/kollektive-hackathon/walletrelay-backend/internal/wallet"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

const (
	ErrorNoWallet    = "NO_WALLET"
	ErrorSetupFailed = "SETUP_FAILED"

	defaultMaxAttempts    = 4
	defaultAttemptTimeout = 30 * time.Second
)

type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// State is what a client needs to render its wallet: whether setup is still
// running, the resolved server wallet and its balance, or why setup failed.
type State struct {
	Loading               bool   `json:"loading"`
	EmbeddedWalletAddress string `json:"embeddedWalletAddress,omitempty"`
	ServerWalletAddress   string `json:"serverWalletAddress,omitempty"`
	Balance               string `json:"balance,omitempty"`
	Error                 *Error `json:"error,omitempty"`
}

type walletService interface {
	GetServerWallet(ctx context.Context, embeddedAddress string) (string, error)
	CreateWalletMapping(ctx context.Context, embeddedAddress string, email string) (*model.UserWallet, error)
	GetWalletBalance(ctx context.Context, address string) (*wallet.Balance, error)
}

// Adapter resolves the caller's server wallet, provisioning one on first use.
// Concurrent setups for the same embedded wallet share one attempt, which runs
// on its own context so that one caller leaving does not fail the others.
type Adapter struct {
	wallets        walletService
	maxAttempts    int
	attemptTimeout time.Duration
	newBackoff     func() *backoff.Backoff

	group    singleflight.Group
	mu       sync.Mutex
	inflight map[string]int
}

func NewAdapter(wallets walletService) *Adapter {
	return &Adapter{
		wallets:        wallets,
		maxAttempts:    defaultMaxAttempts,
		attemptTimeout: defaultAttemptTimeout,
		newBackoff: func() *backoff.Backoff {
			return &backoff.Backoff{
				Min:    200 * time.Millisecond,
				Max:    5 * time.Second,
				Factor: 2,
				Jitter: true,
			}
		},
		inflight: make(map[string]int),
	}
}

// Setup looks up the server wallet for the caller's embedded wallet and
// creates the mapping when there is none. Transport failures are retried with
// backoff; every other failure ends up in State.Error.
func (a *Adapter) Setup(ctx context.Context, identity *auth.Identity) State {
	embedded, ok := embeddedWallet(identity)
	if !ok {
		return State{Error: &Error{Code: ErrorNoWallet, Message: "No wallet connected"}}
	}

	email := identity.Email
	ch := a.group.DoChan(embedded, func() (any, error) {
		a.begin(embedded)
		defer a.end(embedded)

		attemptCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.attemptTimeout)
		defer cancel()
		return a.resolve(attemptCtx, embedded, email)
	})

	var (
		v      any
		err    error
		shared bool
	)
	select {
	case <-ctx.Done():
		err = reject.Transport("wallet setup cancelled", ctx.Err())
	case res := <-ch:
		v, err, shared = res.Val, res.Err, res.Shared
	}
	if err != nil {
		log.Warn().Err(err).Str("embeddedWalletAddress", embedded).Msg("Wallet setup failed")
		return State{
			EmbeddedWalletAddress: embedded,
			Error:                 &Error{Code: ErrorSetupFailed, Message: setupFailureMessage(err)},
		}
	}
	if shared {
		log.Debug().Str("embeddedWalletAddress", embedded).Msg("Joined in-flight wallet setup")
	}

	state := State{
		EmbeddedWalletAddress: embedded,
		ServerWalletAddress:   v.(string),
	}
	a.refreshBalance(ctx, &state)
	return state
}

// Status reports the caller's current wallet state without provisioning.
func (a *Adapter) Status(ctx context.Context, identity *auth.Identity) State {
	embedded, ok := embeddedWallet(identity)
	if !ok {
		return State{Error: &Error{Code: ErrorNoWallet, Message: "No wallet connected"}}
	}

	state := State{EmbeddedWalletAddress: embedded, Loading: a.loading(embedded)}
	server, err := a.wallets.GetServerWallet(ctx, embedded)
	if err != nil {
		state.Error = &Error{Code: ErrorSetupFailed, Message: setupFailureMessage(err)}
		return state
	}
	state.ServerWalletAddress = server
	if server != "" {
		a.refreshBalance(ctx, &state)
	}
	return state
}

func (a *Adapter) resolve(ctx context.Context, embedded string, email string) (string, error) {
	b := a.newBackoff()
	for attempt := 1; ; attempt++ {
		server, err := a.lookupOrProvision(ctx, embedded, email)
		if err == nil {
			return server, nil
		}
		if !errors.Is(err, reject.ErrTransport) || attempt >= a.maxAttempts {
			return "", err
		}

		wait := b.Duration()
		log.Debug().
			Err(err).
			Int("attempt", attempt).
			Dur("wait", wait).
			Msg("Wallet setup hit a transport error, will retry")

		select {
		case <-ctx.Done():
			return "", reject.Transport("wallet setup cancelled", ctx.Err())
		case <-time.After(wait):
		}
	}
}

func (a *Adapter) lookupOrProvision(ctx context.Context, embedded string, email string) (string, error) {
	server, err := a.wallets.GetServerWallet(ctx, embedded)
	if err != nil || server != "" {
		return server, err
	}

	created, err := a.wallets.CreateWalletMapping(ctx, embedded, email)
	if errors.Is(err, reject.ErrConflict) {
		// another request provisioned this wallet first
		server, lookupErr := a.wallets.GetServerWallet(ctx, embedded)
		if lookupErr != nil {
			return "", lookupErr
		}
		if server == "" {
			return "", err
		}
		return server, nil
	}
	if err != nil {
		return "", err
	}
	return created.ServerWalletAddress, nil
}

func (a *Adapter) refreshBalance(ctx context.Context, state *State) {
	balance, err := a.wallets.GetWalletBalance(ctx, state.ServerWalletAddress)
	if err != nil {
		log.Warn().Err(err).Str("serverWalletAddress", state.ServerWalletAddress).Msg("Error fetching balance")
		return
	}
	state.Balance = balance.Wei.String()
}

func (a *Adapter) begin(embedded string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.inflight[embedded]++
}

func (a *Adapter) end(embedded string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.inflight[embedded]--
	if a.inflight[embedded] <= 0 {
		delete(a.inflight, embedded)
	}
}

func (a *Adapter) loading(embedded string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.inflight[embedded] > 0
}

func embeddedWallet(identity *auth.Identity) (string, bool) {
	if identity == nil || !chain.IsAddress(identity.EmbeddedWallet) {
		return "", false
	}
	return chain.NormalizeAddress(identity.EmbeddedWallet), true
}

func setupFailureMessage(err error) string {
	var rejected *reject.Error
	if errors.As(err, &rejected) && rejected.Message != "" {
		return rejected.Message
	}
	return "Failed to setup wallets"
}
