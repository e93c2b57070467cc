package main

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jtara/storygraph-sync/internal/browser"
)

func TestErrorFieldsIncludesRemediation(t *testing.T) {
	t.Parallel()

	authErr := &browser.AuthenticationError{
		Service:     "Audible",
		Reason:      "library export failed: exit status 1",
		Remediation: "run `audible quickstart` once, then re-run the sync",
	}

	fields := errorFields(authErr)
	assert.Equal(t, authErr.Error(), fields["error"])
	require.Contains(t, fields, "remediation")
	assert.Equal(t, authErr.Remediation, fields["remediation"])
}

func TestErrorFieldsUnwrapsWrappedAuthError(t *testing.T) {
	t.Parallel()

	authErr := &browser.AuthenticationError{
		Service:     "StoryGraph",
		Reason:      "credentials rejected",
		Remediation: "verify STORYGRAPH_EMAIL and STORYGRAPH_PASSWORD, then retry",
	}
	wrapped := fmt.Errorf("failed to connect to remote: %w", authErr)

	fields := errorFields(wrapped)
	assert.Equal(t, authErr.Remediation, fields["remediation"])
}

func TestErrorFieldsPlainError(t *testing.T) {
	t.Parallel()

	fields := errorFields(errors.New("disk full"))
	assert.Equal(t, "disk full", fields["error"])
	assert.NotContains(t, fields, "remediation")
}
