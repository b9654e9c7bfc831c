package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveInputsFromPositionalArgEquals(t *testing.T) {
	files, err := resolveInputs("", []string{"app.exe=/tmp/a.exe"})
	require.NoError(t, err)
	assert.Equal(t, "/tmp/a.exe", files["app.exe"])
}

func TestResolveKeySourceRejectsMissingSlot(t *testing.T) {
	certPath = ""
	modulePath = "/usr/lib/opensc-pkcs11.so"
	slotID = -1
	defer func() { modulePath = "" }()

	_, err := resolveKeySource()
	assert.Error(t, err)
}

func TestResolveKeySourceNoneRequested(t *testing.T) {
	certPath = ""
	modulePath = ""
	src, err := resolveKeySource()
	require.NoError(t, err)
	assert.Nil(t, src)
}
