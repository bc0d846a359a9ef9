package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GTDGit/gtd_map/internal/config"
	"github.com/GTDGit/gtd_map/internal/models"
	"github.com/GTDGit/gtd_map/internal/utils"
)

func TestEmbeddingService_Update(t *testing.T) {
	catalog := seedCatalog()
	provider := &fakeProvider{}
	svc := NewEmbeddingService(provider, catalog, nil, 3)

	res, err := svc.Update(context.Background(), "", 0, false)
	require.NoError(t, err)

	assert.Equal(t, 4, res.Candidates)
	assert.Equal(t, 4, res.Updated)
	assert.Equal(t, 0, res.Failed)
	// batches of 3 then 1
	assert.Equal(t, 2, provider.calls)
	assert.Contains(t, provider.texts, "ECM ECM Synchronika")

	res, err = svc.Update(context.Background(), "", 0, false)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Candidates)
}

func TestEmbeddingService_UpdateDryRunAndFilters(t *testing.T) {
	catalog := seedCatalog()
	provider := &fakeProvider{}
	svc := NewEmbeddingService(provider, catalog, nil, 5)

	res, err := svc.Update(context.Background(), "cafe", 1, true)
	require.NoError(t, err)
	assert.True(t, res.DryRun)
	assert.Equal(t, 1, res.Candidates)
	assert.Equal(t, 0, provider.calls)
	assert.Equal(t, 0, catalog.embedWrites)
}

func TestEmbeddingService_UpdateWithoutProvider(t *testing.T) {
	svc := NewEmbeddingService(nil, seedCatalog(), nil, 5)
	_, err := svc.Update(context.Background(), "", 0, false)
	assert.ErrorIs(t, err, utils.ErrNoEmbeddingProvider)
	assert.Equal(t, config.EmbeddingProviderNone, svc.ProviderName())
}

func TestEmbeddingService_Cache(t *testing.T) {
	vc := &memVectorCache{data: map[string][]float64{}}
	provider := &fakeProvider{}
	p1 := product("cafe", "c-1", "ECM", "ECM Synchronika", "", 3050)
	p1.ID = "cafe:c-1"
	p2 := p1

	svc := NewEmbeddingService(provider, newFakeCatalog(p1), vc, 5)
	out := svc.Embed(context.Background(), []*models.Product{&p1})
	assert.Equal(t, 1, out.Updated)
	assert.Equal(t, 0, out.Cached)
	assert.Equal(t, 1, provider.calls)
	assert.Len(t, vc.data, 2)

	out = svc.Embed(context.Background(), []*models.Product{&p2})
	assert.Equal(t, 1, out.Updated)
	assert.Equal(t, 1, out.Cached)
	assert.Equal(t, 1, provider.calls, "served from cache")
	assert.Equal(t, []float64{1, 0, 0}, []float64(p2.TitleEmbedding))
}

func TestEmbeddingService_FailureLeavesProductsUntouched(t *testing.T) {
	catalog := seedCatalog()
	svc := NewEmbeddingService(&fakeProvider{err: errors.New("service unavailable")}, catalog, nil, 2)

	res, err := svc.Update(context.Background(), "", 0, false)
	require.NoError(t, err)
	assert.Equal(t, 4, res.Failed)
	assert.Equal(t, 0, res.Updated)
	assert.Equal(t, 0, catalog.embedWrites)
}

func TestEmbeddingService_BatchFailureOnlyFailsRejectedProducts(t *testing.T) {
	catalog := seedCatalog()
	provider := &fakeProvider{failOn: "Specialita"}
	svc := NewEmbeddingService(provider, catalog, nil, 5)

	res, err := svc.Update(context.Background(), "", 0, false)
	require.NoError(t, err)

	assert.Equal(t, 4, res.Candidates)
	assert.Equal(t, 2, res.Updated)
	assert.Equal(t, 2, res.Failed)
	assert.Equal(t, 2, catalog.embedWrites)
	// one batch request, then one request per product
	assert.Equal(t, 5, provider.calls)

	assert.NotEmpty(t, catalog.get(ecmRef).TitleEmbedding)
	assert.NotEmpty(t, catalog.get(ecmComp).TitleEmbedding)
	assert.Empty(t, catalog.get(eurekaRef).TitleEmbedding)
	assert.Empty(t, catalog.get(eurekaCmp).TitleEmbedding)
}
