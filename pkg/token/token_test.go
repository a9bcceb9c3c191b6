package token_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adflow-io/adflow/pkg/token"
)

func TestGetToken_RefreshesWhenMissing(t *testing.T) {
	clock := clockwork.NewFakeClock()
	var calls int32
	p := token.NewProvider(clock, time.Minute, func(ctx context.Context, platform string) (token.Token, error) {
		atomic.AddInt32(&calls, 1)
		return token.Token{Value: "tok-1", Expiry: clock.Now().Add(time.Hour)}, nil
	})

	val, err := p.GetToken(context.Background(), "linkedin")
	require.NoError(t, err)
	assert.Equal(t, "tok-1", val)
	assert.EqualValues(t, 1, calls)
}

func TestGetToken_ReusesCachedTokenUntilNearExpiry(t *testing.T) {
	clock := clockwork.NewFakeClock()
	var calls int32
	p := token.NewProvider(clock, 5*time.Minute, func(ctx context.Context, platform string) (token.Token, error) {
		atomic.AddInt32(&calls, 1)
		return token.Token{Value: "tok", Expiry: clock.Now().Add(time.Hour)}, nil
	})

	_, err := p.GetToken(context.Background(), "facebook")
	require.NoError(t, err)

	clock.Advance(10 * time.Minute)
	_, err = p.GetToken(context.Background(), "facebook")
	require.NoError(t, err)
	assert.EqualValues(t, 1, calls, "token still far from expiry, no second refresh")

	clock.Advance(50 * time.Minute) // now within the 5-minute refresh buffer
	_, err = p.GetToken(context.Background(), "facebook")
	require.NoError(t, err)
	assert.EqualValues(t, 2, calls)
}

func TestGetToken_ConcurrentCallsCollapseToOneRefresh(t *testing.T) {
	clock := clockwork.NewFakeClock()
	var calls int32
	release := make(chan struct{})
	started := make(chan struct{}, 10)

	p := token.NewProvider(clock, time.Minute, func(ctx context.Context, platform string) (token.Token, error) {
		atomic.AddInt32(&calls, 1)
		started <- struct{}{}
		<-release
		return token.Token{Value: "tok", Expiry: clock.Now().Add(time.Hour)}, nil
	})

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = p.GetToken(context.Background(), "google")
		}()
	}

	<-started
	close(release)
	wg.Wait()

	assert.EqualValues(t, 1, calls)
}

func TestProvider_SeparatePlatformsDoNotShareLock(t *testing.T) {
	clock := clockwork.NewFakeClock()
	p := token.NewProvider(clock, time.Minute, func(ctx context.Context, platform string) (token.Token, error) {
		return token.Token{Value: "tok-" + platform, Expiry: clock.Now().Add(time.Hour)}, nil
	})

	a, err := p.GetToken(context.Background(), "linkedin")
	require.NoError(t, err)
	b, err := p.GetToken(context.Background(), "microsoft")
	require.NoError(t, err)
	assert.Equal(t, "tok-linkedin", a)
	assert.Equal(t, "tok-microsoft", b)
}
