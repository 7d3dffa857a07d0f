package credentials

import (
	"context"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/insight-back/pkg/models"
)

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func TestStore_SetGetClear(t *testing.T) {
	ctx := context.Background()
	defaults := map[models.Vendor]models.Credential{
		models.VendorPredictions: {Key: "default-key"},
	}
	store := NewStore(NewMemoryBackend(), defaults, testLogger())

	// Before any Set, Get serves the default.
	assert.Equal(t, "default-key", store.Get(models.VendorPredictions).Key)

	// Set overwrites the slot.
	err := store.Set(ctx, models.VendorPredictions, models.Credential{Key: "user-key"})
	require.NoError(t, err)
	assert.Equal(t, "user-key", store.Get(models.VendorPredictions).Key)

	// Clear falls back to the default.
	err = store.Clear(ctx, models.VendorPredictions)
	require.NoError(t, err)
	assert.Equal(t, "default-key", store.Get(models.VendorPredictions).Key)
}

func TestStore_ClearWithoutDefault(t *testing.T) {
	ctx := context.Background()
	store := NewStore(NewMemoryBackend(), nil, testLogger())

	require.NoError(t, store.Set(ctx, models.VendorSpeech, models.Credential{Key: "abc"}))
	require.NoError(t, store.Clear(ctx, models.VendorSpeech))

	// No default exists for the slot: Get still succeeds with a zero
	// credential, and the vendor call is what ultimately fails.
	cred := store.Get(models.VendorSpeech)
	assert.True(t, cred.IsZero())
}

func TestStore_GetNeverFails(t *testing.T) {
	store := NewStore(NewMemoryBackend(), nil, testLogger())

	for _, vendor := range models.AllVendors() {
		cred := store.Get(vendor)
		assert.True(t, cred.IsZero(), "unset slot %s should yield zero credential", vendor)
	}
}

func TestStore_SetRejectsUnknownVendor(t *testing.T) {
	store := NewStore(NewMemoryBackend(), nil, testLogger())

	err := store.Set(context.Background(), models.Vendor("bogus"), models.Credential{Key: "k"})
	assert.Error(t, err)

	err = store.Clear(context.Background(), models.Vendor("bogus"))
	assert.Error(t, err)
}

func TestStore_PersistsAcrossLoad(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend()

	first := NewStore(backend, nil, testLogger())
	require.NoError(t, first.Set(ctx, models.VendorNews, models.Credential{Key: "id", Secret: "sekret"}))

	// A fresh store over the same backend sees the stored credential.
	second := NewStore(backend, nil, testLogger())
	require.NoError(t, second.Load(ctx))

	cred := second.Get(models.VendorNews)
	assert.Equal(t, "id", cred.Key)
	assert.Equal(t, "sekret", cred.Secret)
}

func TestStore_SecretStoredAlongsideKey(t *testing.T) {
	ctx := context.Background()
	store := NewStore(NewMemoryBackend(), nil, testLogger())

	require.NoError(t, store.Set(ctx, models.VendorNews, models.Credential{Key: "k", Secret: "s"}))

	cred := store.Get(models.VendorNews)
	assert.Equal(t, "k", cred.Key)
	assert.Equal(t, "s", cred.Secret)
}

func TestStore_StatusMasksKeys(t *testing.T) {
	ctx := context.Background()
	defaults := map[models.Vendor]models.Credential{
		models.VendorFinance: {Key: "finance-default-key"},
	}
	store := NewStore(NewMemoryBackend(), defaults, testLogger())
	require.NoError(t, store.Set(ctx, models.VendorPredictions, models.Credential{Key: "sk-live-abcdef123456"}))

	statuses := store.Status()
	require.Len(t, statuses, len(models.AllVendors()))

	byVendor := make(map[models.Vendor]models.CredentialStatus)
	for _, st := range statuses {
		byVendor[st.Vendor] = st
		assert.NotContains(t, st.MaskedKey, "abcdef123456")
	}

	pred := byVendor[models.VendorPredictions]
	assert.True(t, pred.Configured)
	assert.False(t, pred.IsDefault)

	fin := byVendor[models.VendorFinance]
	assert.True(t, fin.Configured)
	assert.True(t, fin.IsDefault)

	speech := byVendor[models.VendorSpeech]
	assert.False(t, speech.Configured)
}

func TestMaskKey(t *testing.T) {
	assert.Equal(t, "", MaskKey(""))
	assert.Equal(t, "****", MaskKey("abcd"))
	assert.Equal(t, "********", MaskKey("abcdefgh"))

	masked := MaskKey("sk-live-abcdef123456")
	assert.Equal(t, "sk-l", masked[:4])
	assert.Equal(t, "56", masked[len(masked)-2:])
	assert.NotContains(t, masked, "abcdef")
}
