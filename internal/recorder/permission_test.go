package recorder

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCheckPermissionGrantedAndDenied(t *testing.T) {
	platform := &fakePlatform{status: PermissionGranted}
	s := newTestSession(t, platform, nil, Options{})

	require.True(t, s.CheckPermission(context.Background()))
	require.Equal(t, PermissionGranted, s.Permission())

	platform.status = PermissionDenied
	require.False(t, s.CheckPermission(context.Background()))
	require.Equal(t, PermissionDenied, s.Permission())
	require.Equal(t, int32(0), platform.requests.Load())
}

func TestCheckPermissionUnknownStatusIsDenied(t *testing.T) {
	platform := &fakePlatform{status: Permission(42)}
	s := newTestSession(t, platform, nil, Options{})

	require.False(t, s.CheckPermission(context.Background()))
	require.Equal(t, PermissionDenied, s.Permission())
}

func TestCheckPermissionAwaitsRequestOutcome(t *testing.T) {
	platform := &fakePlatform{status: PermissionUndetermined, allow: true}
	s := newTestSession(t, platform, nil, Options{AwaitPermission: true})

	require.True(t, s.CheckPermission(context.Background()))
	require.Equal(t, int32(1), platform.requests.Load())
	require.Equal(t, PermissionGranted, s.Permission())

	platform.allow = false
	require.False(t, s.CheckPermission(context.Background()))
	require.Equal(t, PermissionDenied, s.Permission())
}

func TestCheckPermissionWithoutAwaitReturnsPreRequestValue(t *testing.T) {
	platform := &fakePlatform{status: PermissionUndetermined, allow: true, release: make(chan struct{})}
	s := newTestSession(t, platform, nil, Options{AwaitPermission: false})

	require.False(t, s.CheckPermission(context.Background()))
	require.Equal(t, PermissionUndetermined, s.Permission())

	close(platform.release)
	s.requests.Wait()

	require.Equal(t, PermissionGranted, s.Permission())
	require.Equal(t, int32(1), platform.requests.Load())
}

func TestCloseWaitsForPendingPermissionRequest(t *testing.T) {
	platform := &fakePlatform{status: PermissionUndetermined, allow: true, release: make(chan struct{})}
	s := newTestSession(t, platform, nil, Options{})

	require.False(t, s.CheckPermission(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s.Close(ctx) // returns on cancelled context even with a pending request

	close(platform.release)
	s.Close(context.Background())
	require.Equal(t, PermissionGranted, s.Permission())
}

func TestPermissionString(t *testing.T) {
	require.Equal(t, "undetermined", PermissionUndetermined.String())
	require.Equal(t, "denied", PermissionDenied.String())
	require.Equal(t, "granted", PermissionGranted.String())
	require.Equal(t, "permission(9)", Permission(9).String())
}

func TestCheckPermissionAfterCloseSkipsBackgroundRequest(t *testing.T) {
	platform := &fakePlatform{status: PermissionUndetermined, allow: true}
	s := newTestSession(t, platform, nil, Options{AwaitPermission: false})

	s.Close(context.Background())

	require.False(t, s.CheckPermission(context.Background()))
	s.requests.Wait()
	require.Equal(t, int32(0), platform.requests.Load())
	require.Equal(t, PermissionUndetermined, s.Permission())
}
