// Package testutil holds helpers shared by package tests.
package testutil

import (
	"os"
	"testing"
)

// SkipNetworkEnv disables tests that listen on loopback sockets.
const SkipNetworkEnv = "PARLEY_TEST_SKIP_NETWORK"

// SkipIfNoNetwork skips the test if PARLEY_TEST_SKIP_NETWORK is set.
// httptest servers and websocket tests need a loopback listener, which some
// sandboxes do not allow.
func SkipIfNoNetwork(t *testing.T) {
	t.Helper()
	if os.Getenv(SkipNetworkEnv) != "" {
		t.Skip("skipping network test: " + SkipNetworkEnv + " is set")
	}
}
