package clinic

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewStore(client)
}

func TestStoreGetReturnsDefaultWhenMissing(t *testing.T) {
	store := newTestStore(t)
	cfg, err := store.Get(context.Background(), "clinic-9")
	require.NoError(t, err)
	assert.Equal(t, "clinic-9", cfg.ID)
	assert.Equal(t, DefaultTimezone, cfg.Timezone)
	assert.Nil(t, cfg.BusinessHours.Sunday)
}

func TestStoreSetIndexesNumbers(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	cfg := DefaultConfig("clinic-1")
	cfg.Name = "Veterinaria Patitas"
	cfg.Numbers = []string{"+57 (300) 555-0101"}
	require.NoError(t, store.Set(ctx, cfg))

	got, err := store.Get(ctx, "clinic-1")
	require.NoError(t, err)
	assert.Equal(t, "Veterinaria Patitas", got.Name)

	id, err := store.ResolveClinicID(ctx, "+573005550101")
	require.NoError(t, err)
	assert.Equal(t, "clinic-1", id)

	_, err = store.ResolveClinicID(ctx, "+15550000000")
	assert.True(t, errors.Is(err, ErrClinicNotFound))
}

func TestChainResolverFallsThrough(t *testing.T) {
	static, err := ParseStaticResolver(`{"+57 300 111 2222":"clinic-static"}`)
	require.NoError(t, err)
	chain := ChainResolver{newTestStore(t), static}

	id, err := chain.ResolveClinicID(context.Background(), "whatsapp:+573001112222")
	require.NoError(t, err)
	assert.Equal(t, "clinic-static", id)

	_, err = chain.ResolveClinicID(context.Background(), "+1")
	assert.ErrorIs(t, err, ErrClinicNotFound)
}

func TestDecodeProfilesFillsDefaults(t *testing.T) {
	doc := `
clinics:
  - id: patitas
    name: Veterinaria Patitas
    numbers: ["+573005550101"]
    escalation_contacts:
      - name: Dra. Gómez
        phone: "+573001234567"
        role: veterinaria
        priority: 1
`
	profiles, err := DecodeProfiles(strings.NewReader(doc))
	require.NoError(t, err)
	require.Len(t, profiles, 1)
	p := profiles[0]
	assert.Equal(t, DefaultTimezone, p.Timezone)
	require.NotNil(t, p.BusinessHours.Monday)
	assert.Equal(t, "08:00", p.BusinessHours.Monday.Open)
	assert.Equal(t, 1, p.EscalationContacts[0].EffectivePriority())
	assert.NotEmpty(t, p.FollowUpProtocols)

	store := newTestStore(t)
	require.NoError(t, Seed(context.Background(), store, profiles))
	id, err := store.ResolveClinicID(context.Background(), "+573005550101")
	require.NoError(t, err)
	assert.Equal(t, "patitas", id)
}

func TestDecodeProfilesRejectsUnknownFields(t *testing.T) {
	_, err := DecodeProfiles(strings.NewReader("clinics:\n  - id: x\n    colour: red\n"))
	assert.Error(t, err)
}
