//go:build integration

package carerecipient_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hans/hans/internal/domain/careprovider"
	"github.com/hans/hans/internal/domain/carerecipient"
	"github.com/hans/hans/internal/platform/db"
	"github.com/hans/hans/internal/testutil/containers"
)

func seedLocation(t *testing.T, ctx context.Context, pg *containers.PostgresContainer, name string) *careprovider.CareProviderLocation {
	t.Helper()
	m := &careprovider.RegisteredManager{GivenName: "Grace", FamilyName: "Hopper", CreatedBy: "test", UpdatedBy: "test"}
	require.NoError(t, careprovider.NewManagerRepo(pg.Pool).Create(ctx, m))
	loc := &careprovider.CareProviderLocation{RegisteredManagerID: m.ID, Name: name, CreatedBy: "test", UpdatedBy: "test"}
	require.NoError(t, careprovider.NewLocationRepo(pg.Pool).Create(ctx, loc))
	return loc
}

func TestRepo_Postgres(t *testing.T) {
	pg := containers.NewPostgresContainer(t)
	ctx := context.Background()
	repo := carerecipient.NewRepo(pg.Pool)

	newRecipient := func(loc uuid.UUID, ref, hash string) *carerecipient.CareRecipient {
		return &carerecipient.CareRecipient{
			CareProviderLocationID: loc,
			ProviderReferenceID:    ref,
			NHSNumberHash:          hash,
			SubscriptionID:         uuid.New(),
			CreatedBy:              "alice",
			UpdatedBy:              "alice",
		}
	}

	t.Run("create and read back", func(t *testing.T) {
		require.NoError(t, pg.Truncate(ctx))
		loc := seedLocation(t, ctx, pg, "Rose House")

		rec := newRecipient(loc.ID, "REF-1", "hash-1")
		require.NoError(t, repo.Create(ctx, rec))
		assert.NotEqual(t, uuid.Nil, rec.ID)
		assert.False(t, rec.CreatedAt.IsZero())

		got, err := repo.GetByID(ctx, rec.ID)
		require.NoError(t, err)
		assert.Equal(t, "Rose House", got.LocationName)
		assert.Equal(t, rec.SubscriptionID, got.SubscriptionID)
		assert.Equal(t, "alice", got.CreatedBy)

		byHash, err := repo.FindByHash(ctx, "hash-1")
		require.NoError(t, err)
		assert.Equal(t, rec.ID, byHash.ID)

		exists, err := repo.ExistsByProviderReference(ctx, "REF-1")
		require.NoError(t, err)
		assert.True(t, exists)
	})

	t.Run("unique columns map to already exists", func(t *testing.T) {
		require.NoError(t, pg.Truncate(ctx))
		loc := seedLocation(t, ctx, pg, "Rose House")
		require.NoError(t, repo.Create(ctx, newRecipient(loc.ID, "REF-1", "hash-1")))

		err := repo.Create(ctx, newRecipient(loc.ID, "REF-2", "hash-1"))
		require.True(t, errors.Is(err, carerecipient.ErrAlreadyExists), "got %v", err)
		assert.Contains(t, err.Error(), "nhs_number_hash")

		err = repo.Create(ctx, newRecipient(loc.ID, "REF-1", "hash-2"))
		require.True(t, errors.Is(err, carerecipient.ErrAlreadyExists), "got %v", err)
		assert.Contains(t, err.Error(), "provider_reference_id")
	})

	t.Run("create inside a rolled back transaction leaves nothing", func(t *testing.T) {
		require.NoError(t, pg.Truncate(ctx))
		loc := seedLocation(t, ctx, pg, "Rose House")

		boom := errors.New("boom")
		err := db.RunInTx(ctx, pg.Pool, func(ctx context.Context) error {
			if err := repo.Create(ctx, newRecipient(loc.ID, "REF-1", "hash-1")); err != nil {
				return err
			}
			return boom
		})
		require.ErrorIs(t, err, boom)

		_, err = repo.FindByHash(ctx, "hash-1")
		assert.ErrorIs(t, err, carerecipient.ErrNotFound)
	})

	t.Run("list filters by query and location", func(t *testing.T) {
		require.NoError(t, pg.Truncate(ctx))
		rose := seedLocation(t, ctx, pg, "Rose House")
		oak := seedLocation(t, ctx, pg, "Oak Lodge")
		require.NoError(t, repo.Create(ctx, newRecipient(rose.ID, "ROSE-001", "hash-a")))
		require.NoError(t, repo.Create(ctx, newRecipient(rose.ID, "ROSE-002", "hash-b")))
		require.NoError(t, repo.Create(ctx, newRecipient(oak.ID, "OAK-001", "hash-c")))

		recs, total, err := repo.List(ctx, carerecipient.ListFilter{}, 10, 0)
		require.NoError(t, err)
		assert.Equal(t, 3, total)
		assert.Len(t, recs, 3)

		recs, total, err = repo.List(ctx, carerecipient.ListFilter{Query: "rose"}, 10, 0)
		require.NoError(t, err)
		assert.Equal(t, 2, total)
		assert.Len(t, recs, 2)

		recs, total, err = repo.List(ctx, carerecipient.ListFilter{Query: "hash-c"}, 10, 0)
		require.NoError(t, err)
		require.Equal(t, 1, total)
		assert.Equal(t, "OAK-001", recs[0].ProviderReferenceID)

		recs, total, err = repo.List(ctx, carerecipient.ListFilter{LocationID: &oak.ID}, 10, 0)
		require.NoError(t, err)
		require.Equal(t, 1, total)
		assert.Equal(t, "Oak Lodge", recs[0].LocationName)

		recs, total, err = repo.List(ctx, carerecipient.ListFilter{}, 2, 2)
		require.NoError(t, err)
		assert.Equal(t, 3, total)
		assert.Len(t, recs, 1)
	})

	t.Run("list treats wildcards in the query literally", func(t *testing.T) {
		require.NoError(t, pg.Truncate(ctx))
		loc := seedLocation(t, ctx, pg, "Rose House")
		require.NoError(t, repo.Create(ctx, newRecipient(loc.ID, "ROSE_001", "hash-a")))
		require.NoError(t, repo.Create(ctx, newRecipient(loc.ID, "ROSEX001", "hash-b")))
		require.NoError(t, repo.Create(ctx, newRecipient(loc.ID, "100%-A", "hash-c")))

		recs, total, err := repo.List(ctx, carerecipient.ListFilter{Query: "rose_"}, 10, 0)
		require.NoError(t, err)
		require.Equal(t, 1, total)
		assert.Equal(t, "ROSE_001", recs[0].ProviderReferenceID)

		_, total, err = repo.List(ctx, carerecipient.ListFilter{Query: "%"}, 10, 0)
		require.NoError(t, err)
		assert.Equal(t, 1, total)
	})

	t.Run("location search by pseudonym", func(t *testing.T) {
		require.NoError(t, pg.Truncate(ctx))
		loc := seedLocation(t, ctx, pg, "Rose House")
		require.NoError(t, repo.Create(ctx, newRecipient(loc.ID, "REF-1", "hash-1")))

		locs := careprovider.NewLocationRepo(pg.Pool)
		got, err := locs.GetByRecipientPseudonym(ctx, "hash-1")
		require.NoError(t, err)
		assert.Equal(t, loc.ID, got.ID)

		_, err = locs.GetByRecipientPseudonym(ctx, "hash-unknown")
		assert.ErrorIs(t, err, careprovider.ErrNotFound)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, pg.Truncate(ctx))
		loc := seedLocation(t, ctx, pg, "Rose House")
		rec := newRecipient(loc.ID, "REF-1", "hash-1")
		require.NoError(t, repo.Create(ctx, rec))

		require.NoError(t, repo.Delete(ctx, rec.ID))
		assert.ErrorIs(t, repo.Delete(ctx, rec.ID), carerecipient.ErrNotFound)
		_, err := repo.GetByID(ctx, rec.ID)
		assert.ErrorIs(t, err, carerecipient.ErrNotFound)
	})
}
